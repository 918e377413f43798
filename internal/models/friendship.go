package models

import "time"

// FriendshipEdge is one directed half of a friendship, stored under its owner.
// Two mirrored edges with equal Since form an undirected friendship.
type FriendshipEdge struct {
	OwnerUID string    `gorm:"primaryKey;size:128;index:idx_friendship_edges_owner_since,priority:1" json:"-"`
	UID      string    `gorm:"primaryKey;size:128" json:"uid"`
	Since    time.Time `gorm:"not null;index:idx_friendship_edges_owner_since,priority:2,sort:desc" json:"since"`
}

// TableName specifies the table name for GORM
func (FriendshipEdge) TableName() string {
	return "friendship_edges"
}

// MirroredEdges returns both halves of the friendship between a and b.
func MirroredEdges(a, b string, since time.Time) []FriendshipEdge {
	return []FriendshipEdge{
		{OwnerUID: a, UID: b, Since: since},
		{OwnerUID: b, UID: a, Since: since},
	}
}

// FriendshipState describes the relationship between a viewer and another user.
type FriendshipState string

const (
	FriendshipStateNone            FriendshipState = "none"
	FriendshipStateFriends         FriendshipState = "friends"
	FriendshipStatePendingSent     FriendshipState = "pending_sent"
	FriendshipStatePendingReceived FriendshipState = "pending_received"
	FriendshipStateRejected        FriendshipState = "rejected"
)
