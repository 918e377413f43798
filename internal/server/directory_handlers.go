package server

import (
	"socialgraph/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// GetDirectory handles GET /api/directory. It returns the caller's friends
// with presence and profile, plus pending requests in both directions.
func (s *Server) GetDirectory(c *fiber.Ctx) error {
	view, err := s.projection.Snapshot(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}
