// Package models contains data structures for the social graph domain.
package models

import (
	"strings"
	"time"
)

// RequestIDSeparator joins the two identities of a deterministic pair id.
const RequestIDSeparator = "_"

// MaxUIDLength bounds a user identity so a pair id fits its column.
const MaxUIDLength = 128

// RequestStatus represents the lifecycle state of a friend request.
type RequestStatus string

const (
	// RequestStatusPending indicates a request awaiting the receiver's answer.
	RequestStatusPending RequestStatus = "pending"
	// RequestStatusAccepted indicates the receiver accepted the request.
	RequestStatusAccepted RequestStatus = "accepted"
	// RequestStatusRejected indicates the receiver declined the request.
	RequestStatusRejected RequestStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusAccepted, RequestStatusRejected:
		return true
	}
	return false
}

// FriendRequest is a single relationship proposal between two users. Its ID is
// derived from the unordered pair so there is at most one per pair.
type FriendRequest struct {
	ID          string        `gorm:"primaryKey;size:260" json:"id"`
	SenderUID   string        `gorm:"size:128;not null;index:idx_friend_requests_sender_status,priority:1" json:"sender_uid"`
	ReceiverUID string        `gorm:"size:128;not null;index:idx_friend_requests_receiver_status,priority:1" json:"receiver_uid"`
	Status      RequestStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_friend_requests_sender_status,priority:2;index:idx_friend_requests_receiver_status,priority:2" json:"status"`
	CreatedAt   time.Time     `gorm:"not null;autoCreateTime:false" json:"created_at"`
	RespondedAt *time.Time    `json:"responded_at,omitempty"`
}

// TableName specifies the table name for GORM
func (FriendRequest) TableName() string {
	return "friend_requests"
}

// Involves reports whether uid is the sender or the receiver.
func (r *FriendRequest) Involves(uid string) bool {
	return r.SenderUID == uid || r.ReceiverUID == uid
}

// OtherParty returns the participant that is not uid.
func (r *FriendRequest) OtherParty(uid string) string {
	if r.SenderUID == uid {
		return r.ReceiverUID
	}
	return r.SenderUID
}

// IsPending reports whether the request can still be answered or cancelled.
func (r *FriendRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

// RequestID derives the deterministic id of the unordered pair {a, b}.
func RequestID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + RequestIDSeparator + b
}

// SplitRequestID returns the two identities encoded in a pair id.
func SplitRequestID(id string) (string, string, bool) {
	a, b, ok := strings.Cut(id, RequestIDSeparator)
	if !ok || a == "" || b == "" || strings.Contains(b, RequestIDSeparator) {
		return "", "", false
	}
	return a, b, true
}

// ValidateUID checks that uid can take part in a pair id.
func ValidateUID(uid string) error {
	switch {
	case uid == "":
		return NewValidationError("User ID is required")
	case len(uid) > MaxUIDLength:
		return NewValidationError("User ID is too long")
	case strings.Contains(uid, RequestIDSeparator):
		return NewValidationError("User ID must not contain " + RequestIDSeparator)
	}
	return nil
}
