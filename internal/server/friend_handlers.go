package server

import (
	"time"

	"socialgraph/internal/middleware"
	"socialgraph/internal/models"
	"socialgraph/internal/service"

	"github.com/gofiber/fiber/v2"
)

// FriendResponse is one friend joined with their current presence.
type FriendResponse struct {
	UID      string              `json:"uid"`
	Since    time.Time           `json:"since"`
	Presence models.PresenceView `json:"presence"`
}

// FriendshipStatusResponse answers GET /api/friends/status/:userId.
type FriendshipStatusResponse struct {
	Status   models.FriendshipState `json:"status"`
	IsFriend bool                   `json:"is_friend"`
	Request  *models.FriendRequest  `json:"request,omitempty"`
}

// RespondRequest is the body of POST /api/friends/requests/:requestId/respond.
type RespondRequest struct {
	Accept *bool `json:"accept"`
}

// SendFriendRequest handles POST /api/friends/requests/:userId
// @Summary Propose a friendship
// @Tags friends
// @Param userId path string true "target user"
// @Param strict query bool false "fail with ALREADY_PENDING instead of returning the existing request"
// @Success 201 {object} models.FriendRequest
// @Success 200 {object} models.FriendRequest
// @Failure 409 {object} models.ErrorResponse
// @Router /friends/requests/{userId} [post]
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := middleware.UserID(c)
	targetUserID, err := s.parseUID(c, "userId")
	if err != nil {
		return nil
	}

	res, err := s.friendService.SendFriendRequest(ctx, userID, targetUserID, service.SendOptions{
		Strict: c.QueryBool("strict", false),
	})
	if err != nil {
		return respondError(c, err)
	}

	if res.Created {
		return c.Status(fiber.StatusCreated).JSON(res.Request)
	}
	return c.JSON(res.Request)
}

// GetPendingRequests handles GET /api/friends/requests
func (s *Server) GetPendingRequests(c *fiber.Ctx) error {
	requests, err := s.friendService.IncomingPending(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(requests)
}

// GetSentRequests handles GET /api/friends/requests/sent
func (s *Server) GetSentRequests(c *fiber.Ctx) error {
	requests, err := s.friendService.OutgoingPending(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(requests)
}

// GetFriendRequest handles GET /api/friends/requests/:requestId
func (s *Server) GetFriendRequest(c *fiber.Ctx) error {
	requestID, err := s.parseRequestID(c, "requestId")
	if err != nil {
		return nil
	}

	req, err := s.friendService.GetRequest(c.UserContext(), middleware.UserID(c), requestID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}

// RespondToFriendRequest handles POST /api/friends/requests/:requestId/respond
func (s *Server) RespondToFriendRequest(c *fiber.Ctx) error {
	requestID, err := s.parseRequestID(c, "requestId")
	if err != nil {
		return nil
	}

	var body RespondRequest
	if err := c.BodyParser(&body); err != nil || body.Accept == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(`Body must be {"accept": true|false}`))
	}

	req, err := s.friendService.RespondToRequest(c.UserContext(), middleware.UserID(c), requestID, *body.Accept)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}

// AcceptFriendRequest handles POST /api/friends/requests/:requestId/accept
func (s *Server) AcceptFriendRequest(c *fiber.Ctx) error {
	requestID, err := s.parseRequestID(c, "requestId")
	if err != nil {
		return nil
	}

	req, err := s.friendService.AcceptFriendRequest(c.UserContext(), middleware.UserID(c), requestID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}

// RejectFriendRequest handles POST /api/friends/requests/:requestId/reject
func (s *Server) RejectFriendRequest(c *fiber.Ctx) error {
	requestID, err := s.parseRequestID(c, "requestId")
	if err != nil {
		return nil
	}

	req, err := s.friendService.RejectFriendRequest(c.UserContext(), middleware.UserID(c), requestID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}

// CancelFriendRequest handles DELETE /api/friends/requests/:requestId
func (s *Server) CancelFriendRequest(c *fiber.Ctx) error {
	requestID, err := s.parseRequestID(c, "requestId")
	if err != nil {
		return nil
	}

	if _, err := s.friendService.CancelRequest(c.UserContext(), middleware.UserID(c), requestID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetFriends handles GET /api/friends
func (s *Server) GetFriends(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := middleware.UserID(c)

	edges, err := s.friendService.ListFriends(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}

	uids := make([]string, len(edges))
	for i, e := range edges {
		uids[i] = e.UID
	}
	views, err := s.tracker.PresenceMany(ctx, uids)
	if err != nil {
		// The friend list is still correct without presence.
		views = nil
	}

	friends := make([]FriendResponse, 0, len(edges))
	for _, e := range edges {
		pv, ok := views[e.UID]
		if !ok {
			pv = models.PresenceView{UID: e.UID}
		}
		friends = append(friends, FriendResponse{UID: e.UID, Since: e.Since, Presence: pv})
	}
	return c.JSON(friends)
}

// GetFriendshipStatus handles GET /api/friends/status/:userId
func (s *Server) GetFriendshipStatus(c *fiber.Ctx) error {
	otherUserID, err := s.parseUID(c, "userId")
	if err != nil {
		return nil
	}

	ctx := c.UserContext()
	userID := middleware.UserID(c)

	status, req, err := s.friendService.FriendshipStatus(ctx, userID, otherUserID)
	if err != nil {
		return respondError(c, err)
	}
	isFriend, err := s.friendService.IsFriend(ctx, userID, otherUserID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(FriendshipStatusResponse{
		Status:   status,
		IsFriend: isFriend,
		Request:  req,
	})
}

// RemoveFriend handles DELETE /api/friends/:userId
func (s *Server) RemoveFriend(c *fiber.Ctx) error {
	otherUserID, err := s.parseUID(c, "userId")
	if err != nil {
		return nil
	}

	res, err := s.friendService.RemoveFriend(c.UserContext(), middleware.UserID(c), otherUserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"removed": res.Removed})
}
