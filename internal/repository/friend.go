// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"time"

	"socialgraph/internal/models"
	"socialgraph/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FriendRepository defines the interface for friend request and friendship
// edge operations. Every method runs against the transaction it was obtained
// from when called inside Transaction.
type FriendRepository interface {
	GetRequest(ctx context.Context, id string) (*models.FriendRequest, error)
	CreateRequest(ctx context.Context, req *models.FriendRequest) (bool, error)
	TransitionRequest(ctx context.Context, id string, to models.RequestStatus, at time.Time) (bool, error)
	DeletePendingRequest(ctx context.Context, id string) (bool, error)
	DeleteResolvedRequest(ctx context.Context, id string) (bool, error)

	CreateEdgePair(ctx context.Context, a, b string, since time.Time) error
	DeleteEdgePair(ctx context.Context, a, b string) (bool, error)
	GetEdge(ctx context.Context, owner, other string) (*models.FriendshipEdge, error)
	ListFriends(ctx context.Context, uid string) ([]models.FriendshipEdge, error)

	ListIncomingPending(ctx context.Context, uid string) ([]models.FriendRequest, error)
	ListOutgoingPending(ctx context.Context, uid string) ([]models.FriendRequest, error)

	// ServerTime returns the store clock. Callers read it once per batch.
	ServerTime() time.Time
	// Transaction runs fn as one atomic batch. Any error rolls the batch back.
	Transaction(ctx context.Context, fn func(repo FriendRepository) error) error
}

// friendRepository implements FriendRepository
type friendRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewFriendRepository creates a new friend repository
func NewFriendRepository(db *gorm.DB) FriendRepository {
	return &friendRepository{db: db, log: observability.NewRepoLogger("friend_requests")}
}

func (r *friendRepository) GetRequest(ctx context.Context, id string) (*models.FriendRequest, error) {
	var req models.FriendRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("FriendRequest", id)
		}
		r.log.LogError(ctx, err, "get_request")
		return nil, classify(err)
	}
	return &req, nil
}

// CreateRequest inserts req unless a request for the pair already exists.
// It reports false when the insert was absorbed.
func (r *friendRepository) CreateRequest(ctx context.Context, req *models.FriendRequest) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(req)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, nil
		}
		r.log.LogError(ctx, res.Error, "create_request")
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// TransitionRequest moves a pending request to a terminal status. It reports
// false when the request was no longer pending.
func (r *friendRepository) TransitionRequest(ctx context.Context, id string, to models.RequestStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FriendRequest{}).
		Where("id = ? AND status = ?", id, models.RequestStatusPending).
		Updates(map[string]interface{}{
			"status":       to,
			"responded_at": at,
		})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "transition_request")
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *friendRepository) DeletePendingRequest(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, models.RequestStatusPending).
		Delete(&models.FriendRequest{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete_pending_request")
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *friendRepository) DeleteResolvedRequest(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status <> ?", id, models.RequestStatusPending).
		Delete(&models.FriendRequest{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete_resolved_request")
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CreateEdgePair writes both halves of the friendship in a single statement.
func (r *friendRepository) CreateEdgePair(ctx context.Context, a, b string, since time.Time) error {
	edges := models.MirroredEdges(a, b, since)
	if err := r.db.WithContext(ctx).Create(&edges).Error; err != nil {
		r.log.LogError(ctx, err, "create_edge_pair")
		return classify(err)
	}
	return nil
}

// DeleteEdgePair removes both halves of the friendship in a single statement.
// It reports whether any edge existed.
func (r *friendRepository) DeleteEdgePair(ctx context.Context, a, b string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("(owner_uid = ? AND uid = ?) OR (owner_uid = ? AND uid = ?)", a, b, b, a).
		Delete(&models.FriendshipEdge{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete_edge_pair")
		return false, classify(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetEdge returns nil without error when owner has no edge to other.
func (r *friendRepository) GetEdge(ctx context.Context, owner, other string) (*models.FriendshipEdge, error) {
	var edge models.FriendshipEdge
	if err := r.db.WithContext(ctx).
		Where("owner_uid = ? AND uid = ?", owner, other).
		First(&edge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.LogError(ctx, err, "get_edge")
		return nil, classify(err)
	}
	return &edge, nil
}

func (r *friendRepository) ListFriends(ctx context.Context, uid string) ([]models.FriendshipEdge, error) {
	var edges []models.FriendshipEdge
	if err := r.db.WithContext(ctx).
		Where("owner_uid = ?", uid).
		Order("since DESC").
		Order("uid ASC").
		Find(&edges).Error; err != nil {
		r.log.LogError(ctx, err, "list_friends")
		return nil, classify(err)
	}
	return edges, nil
}

func (r *friendRepository) ListIncomingPending(ctx context.Context, uid string) ([]models.FriendRequest, error) {
	return r.listPending(ctx, "receiver_uid", uid)
}

func (r *friendRepository) ListOutgoingPending(ctx context.Context, uid string) ([]models.FriendRequest, error) {
	return r.listPending(ctx, "sender_uid", uid)
}

func (r *friendRepository) listPending(ctx context.Context, column, uid string) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	if err := r.db.WithContext(ctx).
		Where(column+" = ? AND status = ?", uid, models.RequestStatusPending).
		Order("created_at DESC").
		Order("id ASC").
		Find(&reqs).Error; err != nil {
		r.log.LogError(ctx, err, "list_pending")
		return nil, classify(err)
	}
	return reqs, nil
}

func (r *friendRepository) ServerTime() time.Time {
	return r.db.NowFunc()
}

func (r *friendRepository) Transaction(ctx context.Context, fn func(repo FriendRepository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&friendRepository{db: tx, log: r.log})
	})
	return classify(err)
}
