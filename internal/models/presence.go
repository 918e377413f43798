package models

import "time"

// PresenceRecord is the liveness record a client publishes for its own uid.
type PresenceRecord struct {
	UID      string    `json:"uid"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// OnlineAt derives actual liveness: the advisory flag only counts while the
// last write is younger than staleAfter. A zero staleAfter trusts the flag.
func (p PresenceRecord) OnlineAt(now time.Time, staleAfter time.Duration) bool {
	if !p.IsOnline {
		return false
	}
	if staleAfter <= 0 {
		return true
	}
	return now.Sub(p.LastSeen) < staleAfter
}

// PresenceView is the presence of a user as rendered to other users.
type PresenceView struct {
	UID      string     `json:"uid"`
	IsOnline bool       `json:"is_online"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
