// Command radio is the entry point for the Group Therapy live radio server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/egypcoder/grouptherapy-radio/internal/catalog"
	"github.com/egypcoder/grouptherapy-radio/internal/clock"
	"github.com/egypcoder/grouptherapy-radio/internal/config"
	"github.com/egypcoder/grouptherapy-radio/internal/database"
	"github.com/egypcoder/grouptherapy-radio/internal/engine"
	"github.com/egypcoder/grouptherapy-radio/internal/history"
	"github.com/egypcoder/grouptherapy-radio/internal/observability"
	"github.com/egypcoder/grouptherapy-radio/internal/player"
	"github.com/egypcoder/grouptherapy-radio/internal/presence"
	"github.com/egypcoder/grouptherapy-radio/internal/schedule"
	"github.com/egypcoder/grouptherapy-radio/internal/server"
	"github.com/egypcoder/grouptherapy-radio/internal/session"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger("radio")

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "grouptherapy-radio",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis unreachable, running schedule-only", "error", err)
		rdb = nil
	}

	shared := clock.NewShared(clock.RealClock{})
	sched := clock.NewScheduler()
	audio := player.NewSimulatedAudio(shared)
	syncer := player.NewSynchronizer(audio, shared, observability.NewLogger("player"))
	showRepo := catalog.NewShowRepository(db)
	histRepo := history.NewRepository(db)
	counter := presence.NewCounter(rdb, sched, shared, cfg.DefaultListenerCount, observability.NewLogger("presence"))

	var (
		store session.Store
		bc    *session.Broadcaster
	)
	if rdb != nil {
		redisStore := session.NewRedisStore(rdb, observability.NewLogger("session"))
		store = redisStore
		bc = session.NewBroadcaster(redisStore, session.NewRedisAnnouncer(rdb), shared, observability.NewLogger("broadcast"))
	}

	eng := engine.New(engine.Deps{
		Store:        store,
		Broadcaster:  bc,
		Poller:       catalog.NewPoller(showRepo, sched, observability.NewLogger("catalog")),
		Resolver:     schedule.NewResolver(cfg.FallbackAudioURL),
		Synchronizer: syncer,
		Audio:        audio,
		Presence:     counter,
		History:      histRepo,
		Shared:       shared,
		Scheduler:    sched,
		Logger:       observability.NewLogger("engine"),
	})
	eng.Start(context.Background())

	srv := server.NewServer(cfg, server.Deps{
		DB:          db,
		Redis:       rdb,
		Engine:      eng,
		Broadcaster: bc,
		Store:       store,
		History:     histRepo,
		Shows:       showRepo,
		Presence:    counter,
		Shared:      shared,
		Logger:      observability.NewLogger("http"),
	})

	app := fiber.New(fiber.Config{
		AppName: "Group Therapy Radio",
	})
	srv.SetupMiddleware(app)
	srv.SetupRoutes(app)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		eng.Stop()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server resource shutdown error: %v", err)
		}
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s...", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
