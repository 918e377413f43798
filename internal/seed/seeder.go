package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"socialgraph/internal/directory"
	"socialgraph/internal/models"
	"socialgraph/internal/observability"
	"socialgraph/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

// Stats counts what Apply changed.
type Stats struct {
	Friendships int
	Pending     int
	Skipped     int
}

// Seeder drives fixtures through the friend service.
type Seeder struct {
	friends *service.FriendService
}

// NewSeeder creates a seeder bound to friends.
func NewSeeder(friends *service.FriendService) *Seeder {
	return &Seeder{friends: friends}
}

// Apply proposes and accepts every fixture friendship and proposes every
// pending pair. Pairs already in the requested state are skipped, so a
// fixture can be applied more than once.
func (s *Seeder) Apply(ctx context.Context, f *Fixture) (Stats, error) {
	var stats Stats

	for _, p := range f.Friendships {
		res, err := s.friends.SendFriendRequest(ctx, p.From, p.To, service.SendOptions{})
		if models.IsCode(err, models.CodeAlreadyFriends) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("propose %s -> %s: %w", p.From, p.To, err)
		}
		if !res.Request.IsPending() {
			// A rejected pair stays rejected until someone removes it.
			stats.Skipped++
			continue
		}
		// A mutual proposal leaves the other side as the receiver.
		if _, err := s.friends.AcceptFriendRequest(ctx, res.Request.ReceiverUID, res.Request.ID); err != nil {
			return stats, fmt.Errorf("accept %s: %w", res.Request.ID, err)
		}
		stats.Friendships++
	}

	for _, p := range f.Pending {
		res, err := s.friends.SendFriendRequest(ctx, p.From, p.To, service.SendOptions{})
		if models.IsCode(err, models.CodeAlreadyFriends) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("propose %s -> %s: %w", p.From, p.To, err)
		}
		if !res.Created {
			stats.Skipped++
			continue
		}
		stats.Pending++
	}

	observability.Logger.InfoContext(ctx, "seed fixture applied",
		slog.Int("users", len(f.Users)),
		slog.Int("friendships", stats.Friendships),
		slog.Int("pending", stats.Pending),
		slog.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// GraphOptions shapes a random fixture.
type GraphOptions struct {
	Users int
	// FriendRatio is the chance that any two users are friends.
	FriendRatio float64
	// PendingRatio is the chance that two users who are not friends have a
	// pending request between them.
	PendingRatio float64
	// Seed makes the graph reproducible.
	Seed int64
}

// RandomFixture generates users with fake profiles and a random graph between them.
func RandomFixture(opts GraphOptions) *Fixture {
	faker := gofakeit.New(opts.Seed)

	f := &Fixture{}
	taken := make(map[string]bool, opts.Users)
	for i := 0; i < opts.Users; i++ {
		base := strings.ToLower(strings.ReplaceAll(faker.Username(), models.RequestIDSeparator, "-"))
		uid := base
		for n := 1; taken[uid]; n++ {
			uid = base + "-" + strconv.Itoa(n)
		}
		taken[uid] = true

		f.Users = append(f.Users, directory.Profile{
			UID:         uid,
			DisplayName: faker.Name(),
			AvatarURL:   fmt.Sprintf("https://picsum.photos/seed/%s/200/200", uid),
		})
	}

	for i := 0; i < len(f.Users); i++ {
		for j := i + 1; j < len(f.Users); j++ {
			a, b := f.Users[i].UID, f.Users[j].UID
			if faker.Bool() {
				a, b = b, a
			}
			r := faker.Float64()
			switch {
			case r < opts.FriendRatio:
				f.Friendships = append(f.Friendships, Pair{From: a, To: b})
			case r < opts.FriendRatio+opts.PendingRatio:
				f.Pending = append(f.Pending, Pair{From: a, To: b})
			}
		}
	}
	return f
}
