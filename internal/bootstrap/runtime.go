// Package bootstrap prepares the process-wide dependencies shared by the
// server and the command line tools.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"socialgraph/internal/cache"
	"socialgraph/internal/config"
	"socialgraph/internal/database"
	"socialgraph/internal/directory"
	"socialgraph/internal/observability"
	"socialgraph/internal/repository"
	"socialgraph/internal/seed"
	"socialgraph/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// Fixture is a YAML seed file. Its profiles are returned and, outside
	// production, its graph is applied.
	Fixture string
}

// Runtime is the initialized process state.
type Runtime struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Profiles directory.StaticProfiles
}

// InitRuntime connects to DB and Redis and optionally loads a seed fixture.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	// Connect DB
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	rt := &Runtime{DB: db, Redis: cache.GetClient()}

	if opts.Fixture == "" {
		return rt, nil
	}

	fixture, err := seed.LoadFixture(opts.Fixture)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed fixture: %w", err)
	}
	rt.Profiles = fixture.Profiles()

	if cfg.IsProduction() {
		observability.Logger.Warn("seed fixture graph ignored in production",
			slog.String("fixture", opts.Fixture))
		return rt, nil
	}

	// Events are not published: nothing is subscribed before the server starts.
	friends := service.NewFriendService(repository.NewFriendRepository(db), nil)
	if _, err := seed.NewSeeder(friends).Apply(ctx, fixture); err != nil {
		return nil, fmt.Errorf("failed to apply seed fixture: %w", err)
	}
	return rt, nil
}
