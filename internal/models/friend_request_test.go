package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestID_IsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"B", "A"},
		{"uid42", "uid7"},
		{"zz", "zz0"},
	}
	for _, p := range pairs {
		assert.Equal(t, RequestID(p[0], p[1]), RequestID(p[1], p[0]))
	}
	assert.Equal(t, "A_B", RequestID("B", "A"))
}

func TestSplitRequestID(t *testing.T) {
	a, b, ok := SplitRequestID(RequestID("dana", "carl"))
	assert.True(t, ok)
	assert.Equal(t, "carl", a)
	assert.Equal(t, "dana", b)

	for _, bad := range []string{"", "nounderscore", "_b", "a_", "a_b_c"} {
		_, _, ok := SplitRequestID(bad)
		assert.False(t, ok, bad)
	}
}

func TestValidateUID(t *testing.T) {
	assert.NoError(t, ValidateUID("k3jH2lQ9"))

	for _, uid := range []string{"", "has_underscore", strings.Repeat("x", MaxUIDLength+1)} {
		err := ValidateUID(uid)
		var appErr *AppError
		if assert.True(t, errors.As(err, &appErr), uid) {
			assert.Equal(t, CodeValidation, appErr.Code)
		}
	}
}

func TestFriendRequest_Participants(t *testing.T) {
	req := FriendRequest{SenderUID: "a", ReceiverUID: "b", Status: RequestStatusPending}
	assert.True(t, req.Involves("a"))
	assert.True(t, req.Involves("b"))
	assert.False(t, req.Involves("c"))
	assert.Equal(t, "b", req.OtherParty("a"))
	assert.Equal(t, "a", req.OtherParty("b"))
	assert.True(t, req.IsPending())
	assert.False(t, RequestStatus("cancelled").Valid())
}

func TestMirroredEdges(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	edges := MirroredEdges("a", "b", since)
	assert.Len(t, edges, 2)
	assert.Equal(t, FriendshipEdge{OwnerUID: "a", UID: "b", Since: since}, edges[0])
	assert.Equal(t, FriendshipEdge{OwnerUID: "b", UID: "a", Since: since}, edges[1])
}

func TestPresenceRecord_OnlineAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := PresenceRecord{UID: "a", IsOnline: true, LastSeen: now.Add(-10 * time.Second)}
	stale := PresenceRecord{UID: "a", IsOnline: true, LastSeen: now.Add(-5 * time.Minute)}
	offline := PresenceRecord{UID: "a", IsOnline: false, LastSeen: now}

	assert.True(t, fresh.OnlineAt(now, time.Minute))
	assert.False(t, stale.OnlineAt(now, time.Minute))
	assert.True(t, stale.OnlineAt(now, 0))
	assert.False(t, offline.OnlineAt(now, time.Minute))
}

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{NewUnauthenticatedError(), 401},
		{NewUnauthorizedError("no"), 403},
		{NewNotFoundError("FriendRequest", "a_b"), 404},
		{NewInvalidStateError("not pending"), 409},
		{NewAlreadyFriendsError(), 409},
		{NewAlreadyPendingError("a_b"), 409},
		{NewValidationError("bad"), 400},
		{NewStoreUnavailableError(errors.New("conn refused")), 503},
		{NewInternalError(errors.New("boom")), 500},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
			assert.Equal(t, tt.status, StatusFor(tt.err))
		})
	}
	assert.True(t, NewStoreUnavailableError(nil).Retryable())
	assert.False(t, NewInvalidStateError("x").Retryable())
	assert.Equal(t, 500, StatusFor(errors.New("plain")))
}
