package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"socialgraph/internal/observability"
)

const offlineWriteTimeout = 5 * time.Second

// Session is the presence lifecycle of one live client connection. It marks
// the user online on start, follows the client's visibility, refreshes the
// record on a heartbeat while visible, and marks the user offline on Close.
// Sessions of the same user do not coordinate; the newest write wins.
type Session struct {
	tracker *Tracker
	uid     string

	// mu serializes writes with Close so nothing lands after the offline write.
	mu      sync.Mutex
	visible bool
	closed  bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// StartSession marks uid online and starts the heartbeat.
func (t *Tracker) StartSession(ctx context.Context, uid string) (*Session, error) {
	if err := t.MarkPresence(ctx, uid, true); err != nil {
		return nil, err
	}
	s := &Session{
		tracker: t,
		uid:     uid,
		visible: true,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.heartbeatLoop()
	return s, nil
}

// UID returns the session's user.
func (s *Session) UID() string {
	return s.uid
}

// Visible reports the last visibility the client announced.
func (s *Session) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// SetVisible records a visibility change and writes it through immediately.
func (s *Session) SetVisible(ctx context.Context, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.visible = visible
	return s.tracker.MarkPresence(ctx, s.uid, visible)
}

// Heartbeat refreshes the record now if the client is visible.
func (s *Session) Heartbeat(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.visible {
		return nil
	}
	return s.tracker.MarkPresence(ctx, s.uid, true)
}

func (s *Session) heartbeatLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.tracker.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.tracker.HeartbeatInterval())
			if err := s.Heartbeat(ctx); err != nil {
				observability.LogAsyncOperationError(ctx, "presence_heartbeat", err,
					map[string]interface{}{"uid": s.uid})
			}
			cancel()
		}
	}
}

// Close stops the heartbeat and makes a best-effort offline write. It is safe
// to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.stop)
		<-s.done

		ctx, cancel := context.WithTimeout(context.Background(), offlineWriteTimeout)
		defer cancel()
		if err := s.tracker.MarkPresence(ctx, s.uid, false); err != nil {
			observability.Logger.Warn("presence offline write failed",
				slog.String("uid", s.uid),
				slog.String("error", err.Error()),
			)
		}
	})
}
