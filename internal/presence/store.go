// Package presence tracks per-user liveness records with last-writer-wins
// semantics and derives online state from heartbeat freshness.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"socialgraph/internal/models"
)

// UpsertResult describes the outcome of a conditional presence write.
type UpsertResult struct {
	// Applied is false when the stored record carries a newer LastSeen.
	Applied bool
	// Previous is the record before the write, nil if there was none.
	Previous *models.PresenceRecord
}

// Store persists one PresenceRecord per uid. Records are never deleted.
type Store interface {
	// Upsert merges rec unless the stored record is newer.
	Upsert(ctx context.Context, rec models.PresenceRecord) (UpsertResult, error)
	Get(ctx context.Context, uid string) (*models.PresenceRecord, error)
	GetMany(ctx context.Context, uids []string) (map[string]models.PresenceRecord, error)
	// StaleOnline lists uids flagged online whose LastSeen is at or before cutoff.
	StaleOnline(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	// ExpireIfStale flips uid offline when it is still flagged online with a
	// LastSeen at or before cutoff. LastSeen is kept.
	ExpireIfStale(ctx context.Context, uid string, cutoff time.Time) (bool, error)
}

// MemoryStore is the in-process Store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.PresenceRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.PresenceRecord)}
}

func (s *MemoryStore) Upsert(_ context.Context, rec models.PresenceRecord) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res UpsertResult
	if prev, ok := s.records[rec.UID]; ok {
		p := prev
		res.Previous = &p
		if prev.LastSeen.After(rec.LastSeen) {
			return res, nil
		}
	}
	s.records[rec.UID] = rec
	res.Applied = true
	return res, nil
}

func (s *MemoryStore) Get(_ context.Context, uid string) (*models.PresenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[uid]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) GetMany(_ context.Context, uids []string) (map[string]models.PresenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.PresenceRecord, len(uids))
	for _, uid := range uids {
		if rec, ok := s.records[uid]; ok {
			out[uid] = rec
		}
	}
	return out, nil
}

func (s *MemoryStore) StaleOnline(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for uid, rec := range s.records {
		if rec.IsOnline && !rec.LastSeen.After(cutoff) {
			out = append(out, uid)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ExpireIfStale(_ context.Context, uid string, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[uid]
	if !ok || !rec.IsOnline || rec.LastSeen.After(cutoff) {
		return false, nil
	}
	rec.IsOnline = false
	s.records[uid] = rec
	return true, nil
}
