// Package notifications provides the graph event stream and real-time delivery.
package notifications

import (
	"context"
	"time"

	"socialgraph/internal/models"

	"github.com/google/uuid"
)

// EventType names a change in the social graph.
type EventType string

const (
	EventRequestCreated        EventType = "request_created"
	EventRequestResolved       EventType = "request_resolved"
	EventRequestCancelled      EventType = "request_cancelled"
	EventFriendshipEstablished EventType = "friendship_established"
	EventFriendshipRemoved     EventType = "friendship_removed"
	EventPresenceChanged       EventType = "presence_changed"
	// EventStreamDegraded tells a subscriber it missed events and should reload.
	EventStreamDegraded EventType = "event_stream_degraded"
)

// FriendshipChange identifies the pair a friendship event is about.
type FriendshipChange struct {
	A     string    `json:"a"`
	B     string    `json:"b"`
	Since time.Time `json:"since,omitempty"`
}

// Event is a committed change to the graph or to presence.
type Event struct {
	ID           string                 `json:"id"`
	Type         EventType              `json:"type"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Participants []string               `json:"participants,omitempty"`
	Request      *models.FriendRequest  `json:"request,omitempty"`
	Friendship   *FriendshipChange      `json:"friendship,omitempty"`
	Presence     *models.PresenceRecord `json:"presence,omitempty"`
	Dropped      int64                  `json:"dropped,omitempty"`
}

// Involves reports whether uid is one of the event's participants.
func (e Event) Involves(uid string) bool {
	for _, p := range e.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// Publisher accepts committed events. Publish never blocks on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) {}

func newEvent(t EventType, at time.Time, participants ...string) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         t,
		OccurredAt:   at,
		Participants: participants,
	}
}

// NewRequestEvent describes a change to req. Both parties participate.
func NewRequestEvent(t EventType, req models.FriendRequest, at time.Time) Event {
	ev := newEvent(t, at, req.SenderUID, req.ReceiverUID)
	ev.Request = &req
	return ev
}

// NewFriendshipEvent describes the friendship between a and b being established or removed.
func NewFriendshipEvent(t EventType, a, b string, since, at time.Time) Event {
	ev := newEvent(t, at, a, b)
	ev.Friendship = &FriendshipChange{A: a, B: b, Since: since}
	return ev
}

// NewPresenceEvent describes an applied presence change of rec.UID.
func NewPresenceEvent(rec models.PresenceRecord, at time.Time) Event {
	ev := newEvent(EventPresenceChanged, at, rec.UID)
	ev.Presence = &rec
	return ev
}

func newDegradedEvent(dropped int64) Event {
	ev := newEvent(EventStreamDegraded, time.Now().UTC())
	ev.Dropped = dropped
	return ev
}
