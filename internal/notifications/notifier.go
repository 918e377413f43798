package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"socialgraph/internal/observability"

	"github.com/redis/go-redis/v9"
)

const eventChannelPrefix = "graph:events:"

// EventChannel derives the Redis channel an event type is published on.
func EventChannel(t EventType) string {
	return eventChannelPrefix + string(t)
}

// Notifier publishes graph events into Redis so every instance sees them.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether a Redis client is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishEvent sends ev to its type channel.
func (n *Notifier) PublishEvent(ctx context.Context, ev Event) error {
	if !n.Enabled() {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, span := observability.TraceRedisOperation(ctx, "publish")
	defer span.End()
	return n.rdb.Publish(ctx, EventChannel(ev.Type), payload).Err()
}

// StartEventSubscriber subscribes to every event channel and calls onEvent for
// each decoded event until ctx is done.
func (n *Notifier) StartEventSubscriber(ctx context.Context, onEvent func(Event)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, eventChannelPrefix+"*")
	// Wait for the subscription to be confirmed so no event published after
	// this call returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to graph events: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !strings.HasPrefix(msg.Channel, eventChannelPrefix) {
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.Logger.Error("panic in event subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					var ev Event
					if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
						observability.Logger.Warn("dropping malformed graph event",
							slog.String("channel", msg.Channel),
							slog.String("error", err.Error()),
						)
						return
					}
					onEvent(ev)
				}()
			}
		}
	}()

	return nil
}
