// Package directory maintains per-user read models that join friendships,
// pending requests and presence, updated incrementally from graph events.
package directory

import (
	"context"
	"sort"
	"time"

	"socialgraph/internal/models"
)

// Profile is display data for a user, when a profile source is configured.
type Profile struct {
	UID         string `json:"uid" yaml:"uid"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty" yaml:"avatar_url"`
}

// ProfileLookup resolves profiles for a set of users. Missing users are omitted.
type ProfileLookup interface {
	Profiles(ctx context.Context, uids []string) (map[string]Profile, error)
}

// StaticProfiles is an in-memory ProfileLookup.
type StaticProfiles map[string]Profile

// Profiles implements ProfileLookup.
func (s StaticProfiles) Profiles(_ context.Context, uids []string) (map[string]Profile, error) {
	out := make(map[string]Profile, len(uids))
	for _, uid := range uids {
		if p, ok := s[uid]; ok {
			out[uid] = p
		}
	}
	return out, nil
}

// Friend is one entry of a user's friend list.
type Friend struct {
	UID      string              `json:"uid"`
	Since    time.Time           `json:"since"`
	Presence models.PresenceView `json:"presence"`
	Profile  *Profile            `json:"profile,omitempty"`
}

// View is the denormalized directory of one user.
type View struct {
	UID      string                 `json:"uid"`
	Friends  []Friend               `json:"friends"`
	Incoming []models.FriendRequest `json:"incoming"`
	Outgoing []models.FriendRequest `json:"outgoing"`
	// Degraded is set when the view could not be refreshed after missed
	// events; its contents may be stale.
	Degraded  bool      `json:"degraded,omitempty"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (v View) clone() View {
	out := v
	out.Friends = append([]Friend(nil), v.Friends...)
	out.Incoming = append([]models.FriendRequest(nil), v.Incoming...)
	out.Outgoing = append([]models.FriendRequest(nil), v.Outgoing...)
	return out
}

func (v *View) hasFriend(uid string) bool {
	for _, f := range v.Friends {
		if f.UID == uid {
			return true
		}
	}
	return false
}

func (v *View) upsertFriend(f Friend) {
	for i := range v.Friends {
		if v.Friends[i].UID == f.UID {
			v.Friends[i] = f
			sortFriends(v.Friends)
			return
		}
	}
	v.Friends = append(v.Friends, f)
	sortFriends(v.Friends)
}

func (v *View) removeFriend(uid string) bool {
	for i := range v.Friends {
		if v.Friends[i].UID == uid {
			v.Friends = append(v.Friends[:i], v.Friends[i+1:]...)
			return true
		}
	}
	return false
}

func (v *View) setPresence(p models.PresenceView) bool {
	for i := range v.Friends {
		if v.Friends[i].UID == p.UID {
			v.Friends[i].Presence = p
			return true
		}
	}
	return false
}

func upsertRequest(list []models.FriendRequest, req models.FriendRequest) []models.FriendRequest {
	for i := range list {
		if list[i].ID == req.ID {
			list[i] = req
			sortRequests(list)
			return list
		}
	}
	list = append(list, req)
	sortRequests(list)
	return list
}

func removeRequest(list []models.FriendRequest, id string) ([]models.FriendRequest, bool) {
	for i := range list {
		if list[i].ID == id {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

func sortFriends(fs []Friend) {
	sort.SliceStable(fs, func(i, j int) bool {
		if !fs[i].Since.Equal(fs[j].Since) {
			return fs[i].Since.After(fs[j].Since)
		}
		return fs[i].UID < fs[j].UID
	})
}

func sortRequests(rs []models.FriendRequest) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
