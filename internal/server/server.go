// Package server contains the HTTP and WebSocket handlers for the station's
// API endpoints.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/egypcoder/grouptherapy-radio/internal/catalog"
	"github.com/egypcoder/grouptherapy-radio/internal/clock"
	"github.com/egypcoder/grouptherapy-radio/internal/config"
	"github.com/egypcoder/grouptherapy-radio/internal/engine"
	"github.com/egypcoder/grouptherapy-radio/internal/history"
	"github.com/egypcoder/grouptherapy-radio/internal/middleware"
	"github.com/egypcoder/grouptherapy-radio/internal/presence"
	"github.com/egypcoder/grouptherapy-radio/internal/session"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	logger         *slog.Logger
	promMiddleware *fiberprometheus.FiberPrometheus
	engine         *engine.Engine
	broadcaster    *session.Broadcaster
	store          session.Store
	historyRepo    history.Repository
	showRepo       catalog.ShowRepository
	presence       *presence.Counter
	shared         *clock.SharedClock
}

// Deps carries the already-initialized collaborators a Server needs. The
// bootstrap layer (cmd or test setup) establishes DB, Redis and the engine
// before constructing the server.
type Deps struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Engine      *engine.Engine
	Broadcaster *session.Broadcaster
	Store       session.Store
	History     history.Repository
	Shows       catalog.ShowRepository
	Presence    *presence.Counter
	Shared      *clock.SharedClock
	Logger      *slog.Logger
}

// NewServer creates a Server using already-initialized dependencies.
func NewServer(cfg *config.Config, d Deps) *Server {
	return &Server{
		config:         cfg,
		db:             d.DB,
		redis:          d.Redis,
		logger:         d.Logger,
		promMiddleware: fiberprometheus.New("grouptherapy-radio"),
		engine:         d.Engine,
		broadcaster:    d.Broadcaster,
		store:          d.Store,
		historyRepo:    d.History,
		showRepo:       d.Shows,
		presence:       d.Presence,
		shared:         d.Shared,
	}
}

// SetupMiddleware configures the middleware chain for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger(s.logger))

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// CORS runs before middlewares that can short-circuit so browser clients
	// still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
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

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	if s.config.MonitorEnabled {
		api.Get("/metrics/dashboard", monitor.New(monitor.Config{
			Title: "Group Therapy Radio Metrics",
		}))
	}

	auth := api.Group("/auth")
	auth.Post("/login", s.Login)

	// Public listener surface.
	api.Get("/status", s.GetStatus)
	api.Post("/sync", s.ForceSync)
	api.Get("/history", s.GetHistory)
	api.Get("/shows/today", s.GetTodaysShows)

	// Broadcaster surface.
	broadcast := api.Group("/broadcast", s.AuthRequired())
	broadcast.Post("/start", s.StartBroadcast)
	broadcast.Post("/restart", s.RestartBroadcast)
	broadcast.Post("/end", s.EndBroadcast)

	app.Get("/ws/state", s.WebSocketStateHandler())
}

// Shutdown releases the server's backend connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("redis close failed", slog.String("error", err.Error()))
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if s.db == nil {
		dbStatus = "unavailable"
	} else if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		// The session backend is degraded but the schedule still resolves.
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}
