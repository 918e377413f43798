// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "socialgraph/docs" // swagger docs
	"socialgraph/internal/cache"
	"socialgraph/internal/config"
	"socialgraph/internal/database"
	"socialgraph/internal/directory"
	"socialgraph/internal/featureflags"
	"socialgraph/internal/middleware"
	"socialgraph/internal/models"
	"socialgraph/internal/notifications"
	"socialgraph/internal/observability"
	"socialgraph/internal/presence"
	"socialgraph/internal/repository"
	"socialgraph/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Option customizes a Server built by NewServerWithDeps.
type Option func(*Server)

// WithProfiles attaches display profiles to directory views.
func WithProfiles(profiles directory.ProfileLookup) Option {
	return func(s *Server) { s.profiles = profiles }
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	startOnce      sync.Once

	friendRepo    repository.FriendRepository
	friendService *service.FriendService
	notifier      *notifications.Notifier
	bus           *notifications.Bus
	stream        *notifications.Stream
	hub           *notifications.Hub
	tracker       *presence.Tracker
	reaper        *presence.Reaper
	projection    *directory.Projection
	profiles      directory.ProfileLookup
	featureFlags  *featureflags.Manager
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// A nil redisClient runs presence and events in process.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("socialgraph-api"),
		friendRepo:     repository.NewFriendRepository(db),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.notifier = notifications.NewNotifier(redisClient)
	server.bus = notifications.NewBus(cfg.EventBufferSize)
	server.stream = notifications.NewStream(server.bus, server.notifier)
	server.hub = notifications.NewHub()

	var store presence.Store
	if redisClient != nil {
		store = presence.NewRedisStore(redisClient)
	} else {
		store = presence.NewMemoryStore()
	}
	server.tracker = presence.NewTracker(store, server.stream, presence.Config{
		HeartbeatInterval: cfg.HeartbeatInterval(),
		StaleAfter:        cfg.StaleAfter(),
		Flags:             server.featureFlags,
	})
	server.reaper = presence.NewReaper(server.tracker, cfg.ReaperInterval())

	server.friendService = service.NewFriendService(server.friendRepo, server.stream)
	server.projection = directory.NewProjection(server.friendService, server.tracker, server.profiles)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so error responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || !s.config.IsProduction()
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Live directory over websocket. Registered ahead of the protected group:
	// browsers cannot set headers on upgrade requests and pass ?token= instead.
	api.Get("/ws", middleware.WebSocketAuthRequired, s.WebsocketHandler())

	protected := api.Group("", middleware.AuthRequired)

	// Friend routes
	friends := protected.Group("/friends")
	friends.Get("/", s.GetFriends)
	// Specific /requests routes before generic /:userId
	friends.Post("/requests/:userId", middleware.RateLimit(
		s.redis, 5, 5*time.Minute, "friend_request"), s.SendFriendRequest)
	friends.Get("/requests", s.GetPendingRequests)
	friends.Get("/requests/sent", s.GetSentRequests)
	friends.Get("/requests/:requestId", s.GetFriendRequest)
	friends.Post("/requests/:requestId/respond", s.RespondToFriendRequest)
	friends.Post("/requests/:requestId/accept", s.AcceptFriendRequest)
	friends.Post("/requests/:requestId/reject", s.RejectFriendRequest)
	friends.Delete("/requests/:requestId", s.CancelFriendRequest)
	// Specific /status routes before generic /:userId
	friends.Get("/status/:userId", s.GetFriendshipStatus)
	// Generic /:userId route must be last
	friends.Delete("/:userId", s.RemoveFriend)

	// Presence routes
	protected.Put("/presence", s.UpdatePresence)
	protected.Get("/presence/:userId", s.GetPresence)

	// Directory snapshot
	protected.Get("/directory", s.GetDirectory)

}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: without
// it presence and events run in process, so it never fails readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "not_configured"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus == "unhealthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"watched_views": s.projection.Watched(),
		"time":          time.Now(),
	})
}

// App builds the Fiber application and starts the background event
// consumers. It is idempotent.
func (s *Server) App() *fiber.App {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.shutdownCtx = ctx
		s.shutdownFn = cancel

		app := fiber.New(fiber.Config{
			AppName: "Social Graph API",
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				if fe, ok := err.(*fiber.Error); ok {
					return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
				}
				observability.Logger.ErrorContext(c.UserContext(), "unhandled error",
					slog.String("error", err.Error()))
				return models.RespondWithError(c, fiber.StatusInternalServerError,
					models.NewInternalError(err))
			},
		})
		s.app = app

		s.SetupMiddleware(app)
		s.SetupRoutes(app)
		s.startBackground(ctx)
	})
	return s.app
}

// startBackground wires the event stream into the websocket hub and the
// directory projection and starts the presence reaper.
func (s *Server) startBackground(ctx context.Context) {
	if err := s.stream.Start(ctx); err != nil {
		observability.Logger.Warn("redis event subscriber unavailable, delivering events in process",
			slog.String("error", err.Error()))
	}

	go s.hub.Run(ctx, s.bus.Subscribe("hub", nil))
	go s.projection.Run(ctx, s.bus.Subscribe("directory", nil))

	s.reaper.Start()
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()
	observability.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the event consumers
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			observability.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	// Close WebSocket connections gracefully
	if err := s.hub.Shutdown(ctx); err != nil {
		observability.Logger.Error("error shutting down hub", slog.String("error", err.Error()))
	}

	s.reaper.Stop()
	s.bus.Close()

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			observability.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			observability.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	observability.Logger.Info("Server shutdown complete")
	return nil
}
