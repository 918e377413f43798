package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"socialgraph/internal/models"
	"socialgraph/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newPendingRequest(sender, receiver string, at time.Time) *models.FriendRequest {
	return &models.FriendRequest{
		ID:          models.RequestID(sender, receiver),
		SenderUID:   sender,
		ReceiverUID: receiver,
		Status:      models.RequestStatusPending,
		CreatedAt:   at,
	}
}

func TestFriendRepository_Requests(t *testing.T) {
	repo := NewFriendRepository(testutil.NewTestDB(t))
	ctx := context.Background()
	now := repo.ServerTime()

	t.Run("CreateRequest absorbs duplicates in either direction", func(t *testing.T) {
		created, err := repo.CreateRequest(ctx, newPendingRequest("alice", "bob", now))
		require.NoError(t, err)
		assert.True(t, created)

		created, err = repo.CreateRequest(ctx, newPendingRequest("bob", "alice", now.Add(time.Second)))
		require.NoError(t, err)
		assert.False(t, created)

		req, err := repo.GetRequest(ctx, models.RequestID("alice", "bob"))
		require.NoError(t, err)
		assert.Equal(t, "alice", req.SenderUID)
		assert.Equal(t, "bob", req.ReceiverUID)
		assert.Equal(t, models.RequestStatusPending, req.Status)
		assert.True(t, req.CreatedAt.Equal(now))
		assert.Nil(t, req.RespondedAt)
	})

	t.Run("pending listings", func(t *testing.T) {
		_, err := repo.CreateRequest(ctx, newPendingRequest("carol", "bob", now.Add(time.Minute)))
		require.NoError(t, err)

		incoming, err := repo.ListIncomingPending(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, incoming, 2)
		assert.Equal(t, "carol", incoming[0].SenderUID)
		assert.Equal(t, "alice", incoming[1].SenderUID)

		outgoing, err := repo.ListOutgoingPending(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, outgoing, 1)
		assert.Equal(t, "bob", outgoing[0].ReceiverUID)
	})

	t.Run("TransitionRequest only leaves pending once", func(t *testing.T) {
		id := models.RequestID("alice", "bob")
		at := now.Add(2 * time.Minute)

		ok, err := repo.TransitionRequest(ctx, id, models.RequestStatusRejected, at)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.TransitionRequest(ctx, id, models.RequestStatusAccepted, at.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, ok)

		req, err := repo.GetRequest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusRejected, req.Status)
		require.NotNil(t, req.RespondedAt)
		assert.True(t, req.RespondedAt.Equal(at))
	})

	t.Run("guarded deletes", func(t *testing.T) {
		resolved := models.RequestID("alice", "bob")
		pending := models.RequestID("carol", "bob")

		ok, err := repo.DeletePendingRequest(ctx, resolved)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.DeleteResolvedRequest(ctx, pending)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.DeletePendingRequest(ctx, pending)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.DeleteResolvedRequest(ctx, resolved)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = repo.GetRequest(ctx, resolved)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})
}

func TestFriendRepository_Edges(t *testing.T) {
	repo := NewFriendRepository(testutil.NewTestDB(t))
	ctx := context.Background()
	base := repo.ServerTime()

	require.NoError(t, repo.CreateEdgePair(ctx, "dana", "erin", base))
	require.NoError(t, repo.CreateEdgePair(ctx, "dana", "fay", base.Add(time.Hour)))

	t.Run("both halves exist with equal since", func(t *testing.T) {
		ab, err := repo.GetEdge(ctx, "dana", "erin")
		require.NoError(t, err)
		ba, err := repo.GetEdge(ctx, "erin", "dana")
		require.NoError(t, err)
		require.NotNil(t, ab)
		require.NotNil(t, ba)
		assert.True(t, ab.Since.Equal(ba.Since))
	})

	t.Run("ListFriends newest first", func(t *testing.T) {
		friends, err := repo.ListFriends(ctx, "dana")
		require.NoError(t, err)
		require.Len(t, friends, 2)
		assert.Equal(t, "fay", friends[0].UID)
		assert.Equal(t, "erin", friends[1].UID)
	})

	t.Run("CreateEdgePair rejects an existing pair", func(t *testing.T) {
		err := repo.CreateEdgePair(ctx, "erin", "dana", base)
		assert.Error(t, err)
	})

	t.Run("DeleteEdgePair removes both halves", func(t *testing.T) {
		removed, err := repo.DeleteEdgePair(ctx, "erin", "dana")
		require.NoError(t, err)
		assert.True(t, removed)

		edge, err := repo.GetEdge(ctx, "dana", "erin")
		require.NoError(t, err)
		assert.Nil(t, edge)
		edge, err = repo.GetEdge(ctx, "erin", "dana")
		require.NoError(t, err)
		assert.Nil(t, edge)

		removed, err = repo.DeleteEdgePair(ctx, "erin", "dana")
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestFriendRepository_TransactionRollsBack(t *testing.T) {
	repo := NewFriendRepository(testutil.NewTestDB(t))
	ctx := context.Background()
	boom := models.NewInvalidStateError("boom")

	err := repo.Transaction(ctx, func(tx FriendRepository) error {
		if _, err := tx.CreateRequest(ctx, newPendingRequest("gus", "hal", tx.ServerTime())); err != nil {
			return err
		}
		if err := tx.CreateEdgePair(ctx, "gus", "hal", tx.ServerTime()); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetRequest(ctx, models.RequestID("gus", "hal"))
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	edge, err := repo.GetEdge(ctx, "gus", "hal")
	require.NoError(t, err)
	assert.Nil(t, edge)
}

func TestFriendRepository_TransactionRollbackOnStoreFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	repo := NewFriendRepository(gormDB)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "friend_requests"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "friendship_edges"`).WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()

	err = repo.Transaction(ctx, func(tx FriendRepository) error {
		ok, err := tx.TransitionRequest(ctx, "a_b", models.RequestStatusAccepted, at)
		if err != nil {
			return err
		}
		require.True(t, ok)
		return tx.CreateEdgePair(ctx, "a", "b", at)
	})

	assert.True(t, models.IsCode(err, models.CodeStoreUnavailable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, models.CodeStoreUnavailable},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, models.CodeStoreUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, models.CodeStoreUnavailable},
		{"connection exception", &pgconn.PgError{Code: "08006"}, models.CodeStoreUnavailable},
		{"deadline", context.DeadlineExceeded, models.CodeStoreUnavailable},
		{"syntax error", &pgconn.PgError{Code: "42601"}, models.CodeInternal},
		{"plain", errors.New("boom"), models.CodeInternal},
		{"app error passes through", models.NewAlreadyFriendsError(), models.CodeAlreadyFriends},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, models.IsCode(classify(tt.err), tt.code))
		})
	}
	assert.NoError(t, classify(nil))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
}
