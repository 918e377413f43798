package presence

import (
	"context"
	"log/slog"
	"time"

	"socialgraph/internal/featureflags"
	"socialgraph/internal/models"
	"socialgraph/internal/notifications"
	"socialgraph/internal/observability"
)

// StalenessFlag gates the heartbeat-window check on derived online state.
const StalenessFlag = "presence_staleness"

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultStaleAfter        = 90 * time.Second
)

// Config controls presence timing.
type Config struct {
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	Flags             *featureflags.Manager
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Tracker writes presence records and derives online state from them. Every
// applied write that changes a user's derived online state is published as a
// PresenceChanged event.
type Tracker struct {
	store      Store
	publisher  notifications.Publisher
	heartbeat  time.Duration
	staleAfter time.Duration
	flags      *featureflags.Manager
	now        func() time.Time
}

// NewTracker creates a Tracker over store. A nil publisher discards events.
func NewTracker(store Store, publisher notifications.Publisher, cfg Config) *Tracker {
	t := &Tracker{
		store:      store,
		publisher:  publisher,
		heartbeat:  cfg.HeartbeatInterval,
		staleAfter: cfg.StaleAfter,
		flags:      cfg.Flags,
		now:        cfg.Now,
	}
	if t.publisher == nil {
		t.publisher = notifications.NopPublisher{}
	}
	if t.heartbeat <= 0 {
		t.heartbeat = defaultHeartbeatInterval
	}
	if t.staleAfter <= 0 {
		t.staleAfter = defaultStaleAfter
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// HeartbeatInterval returns the refresh period for visible sessions.
func (t *Tracker) HeartbeatInterval() time.Duration {
	return t.heartbeat
}

// StaleAfter returns the freshness window for online records.
func (t *Tracker) StaleAfter() time.Duration {
	return t.staleAfter
}

func (t *Tracker) clock() time.Time {
	return t.now().UTC().Truncate(time.Millisecond)
}

// staleWindow returns the window applied to uid, or zero to trust the flag.
func (t *Tracker) staleWindow(uid string) time.Duration {
	if t.flags != nil && !t.flags.Enabled(StalenessFlag, uid) {
		return 0
	}
	return t.staleAfter
}

// MarkPresence upserts uid's record with LastSeen set to now.
func (t *Tracker) MarkPresence(ctx context.Context, uid string, isOnline bool) error {
	if uid == "" {
		return models.NewUnauthenticatedError()
	}
	if err := models.ValidateUID(uid); err != nil {
		return err
	}

	now := t.clock()
	rec := models.PresenceRecord{UID: uid, IsOnline: isOnline, LastSeen: now}
	res, err := t.store.Upsert(ctx, rec)
	if err != nil {
		observability.PresenceWrites.WithLabelValues("error").Inc()
		observability.Logger.ErrorContext(ctx, "presence write failed",
			slog.String("uid", uid),
			slog.String("error", err.Error()),
		)
		return models.NewStoreUnavailableError(err)
	}
	if !res.Applied {
		observability.PresenceWrites.WithLabelValues("superseded").Inc()
		return nil
	}
	observability.PresenceWrites.WithLabelValues("applied").Inc()

	window := t.staleWindow(uid)
	wasOnline := res.Previous != nil && res.Previous.OnlineAt(now, window)
	if wasOnline != rec.OnlineAt(now, window) {
		t.publisher.Publish(ctx, notifications.NewPresenceEvent(rec, now))
	}
	return nil
}

// Presence returns uid's record as seen by others. A user that never wrote a
// record is offline with no LastSeen.
func (t *Tracker) Presence(ctx context.Context, uid string) (models.PresenceView, error) {
	rec, err := t.store.Get(ctx, uid)
	if err != nil {
		return models.PresenceView{}, models.NewStoreUnavailableError(err)
	}
	if rec == nil {
		return models.PresenceView{UID: uid}, nil
	}
	return t.view(*rec, t.clock()), nil
}

// PresenceMany returns views for each uid in uids.
func (t *Tracker) PresenceMany(ctx context.Context, uids []string) (map[string]models.PresenceView, error) {
	recs, err := t.store.GetMany(ctx, uids)
	if err != nil {
		return nil, models.NewStoreUnavailableError(err)
	}
	now := t.clock()
	out := make(map[string]models.PresenceView, len(uids))
	for _, uid := range uids {
		if rec, ok := recs[uid]; ok {
			out[uid] = t.view(rec, now)
		} else {
			out[uid] = models.PresenceView{UID: uid}
		}
	}
	return out, nil
}

// View derives the rendered presence of rec at the current time.
func (t *Tracker) View(rec models.PresenceRecord) models.PresenceView {
	return t.view(rec, t.clock())
}

func (t *Tracker) view(rec models.PresenceRecord, now time.Time) models.PresenceView {
	lastSeen := rec.LastSeen
	return models.PresenceView{
		UID:      rec.UID,
		IsOnline: rec.IsOnline,
		Online:   rec.OnlineAt(now, t.staleWindow(rec.UID)),
		LastSeen: &lastSeen,
	}
}

// ReapOnce flips stale online records offline and publishes a PresenceChanged
// event for each. It returns the number of records expired.
func (t *Tracker) ReapOnce(ctx context.Context) int {
	now := t.clock()
	cutoff := now.Add(-t.staleAfter)

	uids, err := t.store.StaleOnline(ctx, cutoff, 500)
	if err != nil {
		observability.Logger.WarnContext(ctx, "presence reaper scan failed", slog.String("error", err.Error()))
		return 0
	}

	reaped := 0
	for _, uid := range uids {
		expired, err := t.store.ExpireIfStale(ctx, uid, cutoff)
		if err != nil {
			observability.Logger.WarnContext(ctx, "presence reaper expire failed",
				slog.String("uid", uid),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !expired {
			continue
		}
		reaped++
		observability.PresenceReaped.Inc()

		rec, err := t.store.Get(ctx, uid)
		if err != nil || rec == nil {
			continue
		}
		t.publisher.Publish(ctx, notifications.NewPresenceEvent(*rec, now))
	}
	return reaped
}
