package notifications

import (
	"context"
	"log/slog"
	"sync/atomic"

	"socialgraph/internal/observability"
)

// Stream is the application's Publisher. With Redis configured, events travel
// through Redis and come back into the local Bus on every instance, this one
// included. Without Redis they go to the local Bus directly.
type Stream struct {
	bus      *Bus
	notifier *Notifier
	remote   atomic.Bool
}

// NewStream joins a local bus and an optional notifier.
func NewStream(bus *Bus, notifier *Notifier) *Stream {
	return &Stream{bus: bus, notifier: notifier}
}

// Bus returns the local fan-out.
func (s *Stream) Bus() *Bus {
	return s.bus
}

// Start forwards Redis events into the local bus until ctx is done.
func (s *Stream) Start(ctx context.Context) error {
	if !s.notifier.Enabled() {
		return nil
	}
	if err := s.notifier.StartEventSubscriber(ctx, func(ev Event) {
		s.bus.Publish(ctx, ev)
	}); err != nil {
		return err
	}
	s.remote.Store(true)
	return nil
}

// Publish implements Publisher.
func (s *Stream) Publish(ctx context.Context, ev Event) {
	if !s.remote.Load() {
		s.bus.Publish(ctx, ev)
		return
	}
	if err := s.notifier.PublishEvent(ctx, ev); err != nil {
		observability.Logger.WarnContext(ctx, "redis event publish failed, delivering locally",
			slog.String("event_type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		s.bus.Publish(ctx, ev)
	}
}
