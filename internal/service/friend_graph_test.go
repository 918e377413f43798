package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"socialgraph/internal/models"
	"socialgraph/internal/notifications"
	"socialgraph/internal/repository"
	"socialgraph/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newGraphService(t *testing.T) (*FriendService, *gorm.DB, *recordingPublisher) {
	t.Helper()
	db := testutil.NewTestDB(t)
	pub := &recordingPublisher{}
	return NewFriendService(repository.NewFriendRepository(db), pub), db, pub
}

func countEdges(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.FriendshipEdge{}).Count(&n).Error)
	return n
}

func countRequests(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.FriendRequest{}).Count(&n).Error)
	return n
}

func assertSymmetric(t *testing.T, svc *FriendService, a, b string) bool {
	t.Helper()
	ctx := context.Background()
	ab, err := svc.IsFriend(ctx, a, b)
	require.NoError(t, err)
	ba, err := svc.IsFriend(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, ab, ba, "IsFriend(%s,%s) and IsFriend(%s,%s) differ", a, b, b, a)
	return ab
}

func TestFriendGraph_AcceptScenario(t *testing.T) {
	svc, _, pub := newGraphService(t)
	ctx := context.Background()

	res, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, "alice_bob", res.Request.ID)
	assert.Equal(t, models.RequestStatusPending, res.Request.Status)
	assert.Equal(t, "alice", res.Request.SenderUID)
	assert.Equal(t, "bob", res.Request.ReceiverUID)
	assert.False(t, assertSymmetric(t, svc, "alice", "bob"))

	req, err := svc.AcceptFriendRequest(ctx, "bob", res.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, req.Status)

	stored, err := svc.GetRequest(ctx, "alice", "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, stored.Status)
	require.NotNil(t, stored.RespondedAt)

	aliceFriends, err := svc.ListFriends(ctx, "alice")
	require.NoError(t, err)
	bobFriends, err := svc.ListFriends(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, aliceFriends, 1)
	require.Len(t, bobFriends, 1)
	assert.Equal(t, "bob", aliceFriends[0].UID)
	assert.Equal(t, "alice", bobFriends[0].UID)
	assert.True(t, aliceFriends[0].Since.Equal(bobFriends[0].Since))
	assert.True(t, aliceFriends[0].Since.Equal(*stored.RespondedAt))
	assert.True(t, assertSymmetric(t, svc, "alice", "bob"))

	state, _, err := svc.FriendshipStatus(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStateFriends, state)

	assert.Equal(t, []notifications.EventType{
		notifications.EventRequestCreated,
		notifications.EventRequestResolved,
		notifications.EventFriendshipEstablished,
	}, pub.types())
}

func TestFriendGraph_DuplicateProposal(t *testing.T) {
	svc, db, _ := newGraphService(t)
	ctx := context.Background()

	first, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)
	require.True(t, first.Created)

	again, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)
	assert.False(t, again.Created)

	reverse, err := svc.SendFriendRequest(ctx, "bob", "alice", SendOptions{})
	require.NoError(t, err)
	assert.False(t, reverse.Created)
	assert.Equal(t, "alice", reverse.Request.SenderUID, "an existing request must not be overwritten")

	assert.Equal(t, int64(1), countRequests(t, db))

	_, err = svc.SendFriendRequest(ctx, "bob", "alice", SendOptions{Strict: true})
	assert.True(t, models.IsCode(err, models.CodeAlreadyPending))

	state, _, err := svc.FriendshipStatus(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStatePendingReceived, state)
	state, _, err = svc.FriendshipStatus(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStatePendingSent, state)
}

// The test database has a single connection, so these transactions run one
// after the other. The insert that loses on the primary key is covered here;
// true overlap inside the status CAS is covered by
// TestFriendServiceAcceptLostRace.
func TestFriendGraph_ConcurrentMutualProposal(t *testing.T) {
	svc, db, _ := newGraphService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*SendResult, 2)
	errs := make([]error, 2)
	pairs := [][2]string{{"alice", "bob"}, {"bob", "alice"}}
	for i, p := range pairs {
		wg.Add(1)
		go func(i int, from, to string) {
			defer wg.Done()
			results[i], errs[i] = svc.SendFriendRequest(ctx, from, to, SendOptions{})
		}(i, p[0], p[1])
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, results[0].Created, results[1].Created, "exactly one proposal must win")
	assert.Equal(t, int64(1), countRequests(t, db))
}

func TestFriendGraph_NoSelfFriendship(t *testing.T) {
	svc, db, _ := newGraphService(t)

	_, err := svc.SendFriendRequest(context.Background(), "alice", "alice", SendOptions{})
	assert.True(t, models.IsCode(err, models.CodeValidation))
	assert.Equal(t, int64(0), countRequests(t, db))
	assert.Equal(t, int64(0), countEdges(t, db))
}

func TestFriendGraph_Authorization(t *testing.T) {
	svc, db, _ := newGraphService(t)
	ctx := context.Background()

	_, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)

	for _, uid := range []string{"alice", "carol"} {
		_, err = svc.RespondToRequest(ctx, uid, "alice_bob", true)
		assert.True(t, models.IsCode(err, models.CodeUnauthorized), "responder %s", uid)
	}
	_, err = svc.CancelRequest(ctx, "bob", "alice_bob")
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	req, err := svc.GetRequest(ctx, "bob", "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Nil(t, req.RespondedAt)
	assert.Equal(t, int64(0), countEdges(t, db))
}

func TestFriendGraph_AtomicAcceptance(t *testing.T) {
	svc, db, pub := newGraphService(t)
	ctx := context.Background()

	_, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)

	injected := errors.New("injected edge write failure")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_edges", func(tx *gorm.DB) {
		if tx.Statement.Table == "friendship_edges" {
			_ = tx.AddError(injected)
		}
	}))

	_, err = svc.AcceptFriendRequest(ctx, "bob", "alice_bob")
	require.Error(t, err)
	assert.ErrorIs(t, err, injected)

	assert.Equal(t, int64(0), countEdges(t, db), "no edge may survive a failed acceptance")
	req, err := svc.GetRequest(ctx, "bob", "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, req.Status, "status change must roll back with the edges")
	assert.False(t, assertSymmetric(t, svc, "alice", "bob"))
	assert.Equal(t, []notifications.EventType{notifications.EventRequestCreated}, pub.types())

	require.NoError(t, db.Callback().Create().Remove("test:fail_edges"))
	_, err = svc.AcceptFriendRequest(ctx, "bob", "alice_bob")
	require.NoError(t, err, "a retry after the failure must succeed")
	assert.Equal(t, int64(2), countEdges(t, db))
}

// Accepts are serialized by the single test connection; the second one sees
// the committed status. See TestFriendServiceAcceptLostRace for the zero-row CAS.
func TestFriendGraph_DuplicateAccept(t *testing.T) {
	svc, db, _ := newGraphService(t)
	ctx := context.Background()

	_, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AcceptFriendRequest(ctx, "bob", "alice_bob")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, models.IsCode(err, models.CodeInvalidState), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(2), countEdges(t, db))
}

func TestFriendGraph_CancelScenario(t *testing.T) {
	svc, db, pub := newGraphService(t)
	ctx := context.Background()

	_, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)
	incoming, err := svc.IncomingPending(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, incoming, 1)

	_, err = svc.CancelRequest(ctx, "alice", "alice_bob")
	require.NoError(t, err)

	incoming, err = svc.IncomingPending(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, incoming)
	outgoing, err := svc.OutgoingPending(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, outgoing)
	assert.Equal(t, int64(0), countRequests(t, db))

	_, err = svc.CancelRequest(ctx, "alice", "alice_bob")
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	assert.Equal(t, notifications.EventRequestCancelled, pub.types()[1])
}

func TestFriendGraph_CancelAccepted(t *testing.T) {
	svc, _, _ := newGraphService(t)
	ctx := context.Background()

	_, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)
	_, err = svc.AcceptFriendRequest(ctx, "bob", "alice_bob")
	require.NoError(t, err)

	_, err = svc.CancelRequest(ctx, "alice", "alice_bob")
	assert.True(t, models.IsCode(err, models.CodeInvalidState))
}

func TestFriendGraph_RemoveAndRepropose(t *testing.T) {
	svc, db, pub := newGraphService(t)
	ctx := context.Background()

	_, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)
	_, err = svc.AcceptFriendRequest(ctx, "bob", "alice_bob")
	require.NoError(t, err)

	res, err := svc.RemoveFriend(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Equal(t, int64(0), countEdges(t, db))
	assert.Equal(t, int64(0), countRequests(t, db))
	assert.False(t, assertSymmetric(t, svc, "alice", "bob"))

	res, err = svc.RemoveFriend(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, res.Removed)

	again, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)
	assert.True(t, again.Created)
	assert.Equal(t, models.RequestStatusPending, again.Request.Status)

	types := pub.types()
	assert.Contains(t, types, notifications.EventFriendshipRemoved)
	assert.Equal(t, notifications.EventRequestCreated, types[len(types)-1])
}

func TestFriendGraph_RejectIsTerminalUntilRemoved(t *testing.T) {
	svc, db, _ := newGraphService(t)
	ctx := context.Background()

	_, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)
	_, err = svc.RejectFriendRequest(ctx, "bob", "alice_bob")
	require.NoError(t, err)

	_, err = svc.AcceptFriendRequest(ctx, "bob", "alice_bob")
	assert.True(t, models.IsCode(err, models.CodeInvalidState))

	again, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, models.RequestStatusRejected, again.Request.Status)

	state, _, err := svc.FriendshipStatus(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStateRejected, state)

	res, err := svc.RemoveFriend(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, res.Removed)
	assert.Equal(t, int64(0), countRequests(t, db))

	fresh, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)
	assert.True(t, fresh.Created)
}

func TestFriendGraph_RemoveKeepsPendingRequest(t *testing.T) {
	svc, db, _ := newGraphService(t)
	ctx := context.Background()

	_, err := svc.SendFriendRequest(ctx, "alice", "bob", SendOptions{})
	require.NoError(t, err)

	res, err := svc.RemoveFriend(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, res.Removed)
	assert.Equal(t, int64(1), countRequests(t, db))
}
