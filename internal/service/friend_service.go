// Package service holds the social graph business logic.
package service

import (
	"context"
	"errors"

	"socialgraph/internal/models"
	"socialgraph/internal/notifications"
	"socialgraph/internal/observability"
	"socialgraph/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// SendOptions tunes SendFriendRequest.
type SendOptions struct {
	// Strict surfaces an absorbed duplicate proposal as ALREADY_PENDING
	// (or INVALID_STATE when the existing request was already answered).
	Strict bool
}

// SendResult is the request that exists for the pair after a send.
type SendResult struct {
	Request *models.FriendRequest `json:"request"`
	Created bool                  `json:"created"`
}

// RemoveResult reports whether a friendship existed before RemoveFriend.
type RemoveResult struct {
	Removed bool `json:"removed"`
}

// FriendService runs the friend request state machine. Every mutation is a
// single store transaction; events are published only after it commits.
// Nothing is retried internally.
type FriendService struct {
	friendRepo repository.FriendRepository
	publisher  notifications.Publisher
}

// NewFriendService returns a new FriendService.
func NewFriendService(friendRepo repository.FriendRepository, publisher notifications.Publisher) *FriendService {
	if publisher == nil {
		publisher = notifications.NopPublisher{}
	}
	return &FriendService{
		friendRepo: friendRepo,
		publisher:  publisher,
	}
}

// SendFriendRequest proposes a friendship from requesterUID to targetUID.
// A request that already exists for the pair, in any status and from either
// side, is never overwritten: the call returns it with Created=false.
func (s *FriendService) SendFriendRequest(ctx context.Context, requesterUID, targetUID string, opts SendOptions) (res *SendResult, err error) {
	if err := validatePair(requesterUID, targetUID); err != nil {
		return nil, err
	}
	if requesterUID == targetUID {
		return nil, models.NewValidationError("Cannot send friend request to yourself")
	}

	span, ctx := observability.NewSpan(ctx, "friends.send",
		attribute.String("friend.sender", requesterUID),
		attribute.String("friend.receiver", targetUID),
	)
	defer func() { finish(span, "send", err) }()
	defer observability.TrackBatch("send_friend_request")()

	result := &SendResult{}
	err = s.friendRepo.Transaction(ctx, func(tx repository.FriendRepository) error {
		edge, err := tx.GetEdge(ctx, requesterUID, targetUID)
		if err != nil {
			return err
		}
		if edge != nil {
			return models.NewAlreadyFriendsError()
		}

		req := &models.FriendRequest{
			ID:          models.RequestID(requesterUID, targetUID),
			SenderUID:   requesterUID,
			ReceiverUID: targetUID,
			Status:      models.RequestStatusPending,
			CreatedAt:   tx.ServerTime(),
		}
		created, err := tx.CreateRequest(ctx, req)
		if err != nil {
			return err
		}
		if created {
			result.Request = req
			result.Created = true
			return nil
		}

		existing, err := tx.GetRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		if opts.Strict {
			if existing.IsPending() {
				return models.NewAlreadyPendingError(existing.ID)
			}
			return models.NewInvalidStateError("Friend request was already answered")
		}
		result.Request = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.AddAttributes(attribute.Bool("friend.created", result.Created))
	if result.Created {
		s.publish(ctx, notifications.NewRequestEvent(notifications.EventRequestCreated, *result.Request, result.Request.CreatedAt))
	}
	return result, nil
}

// AcceptFriendRequest moves a pending request to accepted and creates both
// friendship edges in the same transaction.
func (s *FriendService) AcceptFriendRequest(ctx context.Context, responderUID, requestID string) (*models.FriendRequest, error) {
	return s.resolve(ctx, responderUID, requestID, models.RequestStatusAccepted)
}

// RejectFriendRequest moves a pending request to rejected. Rejection is terminal.
func (s *FriendService) RejectFriendRequest(ctx context.Context, responderUID, requestID string) (*models.FriendRequest, error) {
	return s.resolve(ctx, responderUID, requestID, models.RequestStatusRejected)
}

// RespondToRequest accepts or rejects a request addressed to responderUID.
func (s *FriendService) RespondToRequest(ctx context.Context, responderUID, requestID string, accept bool) (*models.FriendRequest, error) {
	if accept {
		return s.AcceptFriendRequest(ctx, responderUID, requestID)
	}
	return s.RejectFriendRequest(ctx, responderUID, requestID)
}

func (s *FriendService) resolve(ctx context.Context, responderUID, requestID string, to models.RequestStatus) (req *models.FriendRequest, err error) {
	if responderUID == "" {
		return nil, models.NewUnauthenticatedError()
	}
	if requestID == "" {
		return nil, models.NewValidationError("Request ID is required")
	}

	transition := "reject"
	if to == models.RequestStatusAccepted {
		transition = "accept"
	}
	span, ctx := observability.NewSpan(ctx, "friends."+transition,
		attribute.String("friend.request_id", requestID),
		attribute.String("friend.responder", responderUID),
	)
	defer func() { finish(span, transition, err) }()
	defer observability.TrackBatch(transition + "_friend_request")()

	err = s.friendRepo.Transaction(ctx, func(tx repository.FriendRepository) error {
		current, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if current.ReceiverUID != responderUID {
			return models.NewUnauthorizedError("You can only respond to friend requests sent to you")
		}
		if !current.IsPending() {
			return models.NewInvalidStateError("Friend request is not pending")
		}

		now := tx.ServerTime()
		ok, err := tx.TransitionRequest(ctx, requestID, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewInvalidStateError("Friend request is not pending")
		}
		if to == models.RequestStatusAccepted {
			if err := tx.CreateEdgePair(ctx, current.SenderUID, current.ReceiverUID, now); err != nil {
				return err
			}
		}

		current.Status = to
		current.RespondedAt = &now
		req = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notifications.NewRequestEvent(notifications.EventRequestResolved, *req, *req.RespondedAt))
	if to == models.RequestStatusAccepted {
		s.publish(ctx, notifications.NewFriendshipEvent(notifications.EventFriendshipEstablished,
			req.SenderUID, req.ReceiverUID, *req.RespondedAt, *req.RespondedAt))
	}
	return req, nil
}

// CancelRequest withdraws a pending request. Only its sender may cancel it.
func (s *FriendService) CancelRequest(ctx context.Context, cancellerUID, requestID string) (req *models.FriendRequest, err error) {
	if cancellerUID == "" {
		return nil, models.NewUnauthenticatedError()
	}
	if requestID == "" {
		return nil, models.NewValidationError("Request ID is required")
	}

	span, ctx := observability.NewSpan(ctx, "friends.cancel",
		attribute.String("friend.request_id", requestID),
	)
	defer func() { finish(span, "cancel", err) }()
	defer observability.TrackBatch("cancel_friend_request")()

	var cancelledAt = s.friendRepo.ServerTime()
	err = s.friendRepo.Transaction(ctx, func(tx repository.FriendRepository) error {
		current, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if current.SenderUID != cancellerUID {
			return models.NewUnauthorizedError("You can only cancel friend requests you sent")
		}
		if !current.IsPending() {
			return models.NewInvalidStateError("Only pending friend requests can be cancelled")
		}

		ok, err := tx.DeletePendingRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewInvalidStateError("Only pending friend requests can be cancelled")
		}
		cancelledAt = tx.ServerTime()
		req = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notifications.NewRequestEvent(notifications.EventRequestCancelled, *req, cancelledAt))
	return req, nil
}

// RemoveFriend deletes both friendship edges and the pair's answered request
// in one transaction, so the pair may propose again later. Removing a
// friendship that does not exist is not an error.
func (s *FriendService) RemoveFriend(ctx context.Context, initiatorUID, otherUID string) (res RemoveResult, err error) {
	if err := validatePair(initiatorUID, otherUID); err != nil {
		return RemoveResult{}, err
	}
	if initiatorUID == otherUID {
		return RemoveResult{}, models.NewValidationError("Cannot remove yourself as a friend")
	}

	span, ctx := observability.NewSpan(ctx, "friends.remove",
		attribute.String("friend.initiator", initiatorUID),
		attribute.String("friend.other", otherUID),
	)
	defer func() { finish(span, "remove", err) }()
	defer observability.TrackBatch("remove_friend")()

	var (
		edge *models.FriendshipEdge
		now  = s.friendRepo.ServerTime()
	)
	err = s.friendRepo.Transaction(ctx, func(tx repository.FriendRepository) error {
		var err error
		if edge, err = tx.GetEdge(ctx, initiatorUID, otherUID); err != nil {
			return err
		}
		removed, err := tx.DeleteEdgePair(ctx, initiatorUID, otherUID)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteResolvedRequest(ctx, models.RequestID(initiatorUID, otherUID)); err != nil {
			return err
		}
		res.Removed = removed
		now = tx.ServerTime()
		return nil
	})
	if err != nil {
		return RemoveResult{}, err
	}

	if res.Removed {
		since := now
		if edge != nil {
			since = edge.Since
		}
		s.publish(ctx, notifications.NewFriendshipEvent(notifications.EventFriendshipRemoved,
			initiatorUID, otherUID, since, now))
	}
	return res, nil
}

// ListFriends returns uid's friendship edges, most recent first.
func (s *FriendService) ListFriends(ctx context.Context, uid string) ([]models.FriendshipEdge, error) {
	if uid == "" {
		return nil, models.NewUnauthenticatedError()
	}
	return s.friendRepo.ListFriends(ctx, uid)
}

// IsFriend reports whether uid and otherUID are friends.
func (s *FriendService) IsFriend(ctx context.Context, uid, otherUID string) (bool, error) {
	if err := validatePair(uid, otherUID); err != nil {
		return false, err
	}
	if uid == otherUID {
		return false, nil
	}
	edge, err := s.friendRepo.GetEdge(ctx, uid, otherUID)
	if err != nil {
		return false, err
	}
	return edge != nil, nil
}

// IncomingPending returns pending requests addressed to uid, newest first.
func (s *FriendService) IncomingPending(ctx context.Context, uid string) ([]models.FriendRequest, error) {
	if uid == "" {
		return nil, models.NewUnauthenticatedError()
	}
	return s.friendRepo.ListIncomingPending(ctx, uid)
}

// OutgoingPending returns pending requests sent by uid, newest first.
func (s *FriendService) OutgoingPending(ctx context.Context, uid string) ([]models.FriendRequest, error) {
	if uid == "" {
		return nil, models.NewUnauthenticatedError()
	}
	return s.friendRepo.ListOutgoingPending(ctx, uid)
}

// GetRequest returns a request visible to uid. Only the two participants may read it.
func (s *FriendService) GetRequest(ctx context.Context, uid, requestID string) (*models.FriendRequest, error) {
	if uid == "" {
		return nil, models.NewUnauthenticatedError()
	}
	req, err := s.friendRepo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Involves(uid) {
		return nil, models.NewUnauthorizedError("You can only view your own friend requests")
	}
	return req, nil
}

// FriendshipStatus describes the relationship between uid and otherUID from
// uid's point of view, with the pair's request when one exists.
func (s *FriendService) FriendshipStatus(ctx context.Context, uid, otherUID string) (models.FriendshipState, *models.FriendRequest, error) {
	if err := validatePair(uid, otherUID); err != nil {
		return "", nil, err
	}
	if uid == otherUID {
		return models.FriendshipStateNone, nil, nil
	}

	edge, err := s.friendRepo.GetEdge(ctx, uid, otherUID)
	if err != nil {
		return "", nil, err
	}

	req, err := s.friendRepo.GetRequest(ctx, models.RequestID(uid, otherUID))
	if err != nil {
		if !models.IsCode(err, models.CodeNotFound) {
			return "", nil, err
		}
		req = nil
	}

	switch {
	case edge != nil:
		return models.FriendshipStateFriends, req, nil
	case req == nil:
		return models.FriendshipStateNone, nil, nil
	case req.Status == models.RequestStatusRejected:
		return models.FriendshipStateRejected, req, nil
	case req.IsPending() && req.SenderUID == uid:
		return models.FriendshipStatePendingSent, req, nil
	case req.IsPending():
		return models.FriendshipStatePendingReceived, req, nil
	}
	return models.FriendshipStateNone, req, nil
}

func (s *FriendService) publish(ctx context.Context, ev notifications.Event) {
	s.publisher.Publish(context.WithoutCancel(ctx), ev)
}

func validatePair(uid, otherUID string) error {
	if uid == "" {
		return models.NewUnauthenticatedError()
	}
	if err := models.ValidateUID(uid); err != nil {
		return err
	}
	return models.ValidateUID(otherUID)
}

// finish records the transition outcome on the span and in metrics.
func finish(span *observability.Span, transition string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errorCode(err)
		span.SetError(err)
		if outcome == models.CodeStoreUnavailable || outcome == models.CodeInternal {
			observability.StoreErrors.WithLabelValues(transition, outcome).Inc()
		}
	}
	observability.RequestTransitions.WithLabelValues(transition, outcome).Inc()
	span.End()
}

func errorCode(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return models.CodeInternal
}
