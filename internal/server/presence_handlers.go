package server

import (
	"socialgraph/internal/middleware"
	"socialgraph/internal/models"

	"github.com/gofiber/fiber/v2"
)

// PresenceRequest is the body of PUT /api/presence.
type PresenceRequest struct {
	Online *bool `json:"online"`
}

// UpdatePresence handles PUT /api/presence. Clients without a websocket use it
// to mark themselves online or offline; a websocket session does the same
// automatically.
func (s *Server) UpdatePresence(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := middleware.UserID(c)

	var body PresenceRequest
	if err := c.BodyParser(&body); err != nil || body.Online == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(`Body must be {"online": true|false}`))
	}

	if err := s.tracker.MarkPresence(ctx, userID, *body.Online); err != nil {
		return respondError(c, err)
	}

	view, err := s.tracker.Presence(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// GetPresence handles GET /api/presence/:userId
func (s *Server) GetPresence(c *fiber.Ctx) error {
	uid, err := s.parseUID(c, "userId")
	if err != nil {
		return nil
	}

	view, err := s.tracker.Presence(c.UserContext(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}
