package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/cloudinary"
	"qrattend/internal/config"
	"qrattend/internal/httpapi"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/journal"
	"qrattend/internal/metrics"
	"qrattend/internal/outbox"
	"qrattend/internal/qrtoken"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "attendance-api ", log.LstdFlags|log.LUTC)

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("api failed: %v", err)
	}
}

func run(cfg config.App, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httpapi.HealthCheck{}

	var db *store.DB
	needDB := cfg.RosterBackend == "postgres" || cfg.QueueBackend == "memory"
	if needDB {
		var err error
		db, err = store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			if cfg.RosterBackend == "postgres" {
				return err
			}
			logger.Printf("warning: db not reachable, journal disabled: %v", err)
		} else {
			defer db.Close()
			checks["db"] = db.Healthy
		}
	}

	var roster interface {
		attendance.RosterStore
		attendance.RosterWriter
	}
	var repo *attendance.Repository
	if db != nil {
		repo = attendance.NewRepository(db.Client)
	}
	if cfg.RosterBackend == "postgres" {
		roster = repo
	} else {
		roster = attendance.NewMemoryRoster()
	}

	engine := attendance.NewEngine(roster, attendance.Options{
		TokenWindow: cfg.TokenWindow,
		TickUnit:    cfg.TickInterval,
	})
	m := metrics.New(engine.ActiveSessions, engine.DroppedEvents)

	expirer := attendance.NewExpirer(engine, cfg.TickInterval, logger, func(string) {
		m.Lifecycle.WithLabelValues("expired").Inc()
	})
	expirer.Start(ctx)

	var q queue.Queue
	var local *journal.Local
	switch cfg.QueueBackend {
	case "redis":
		rdb, err := store.NewRedis(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks["redis"] = rdb.Healthy
		q = queue.NewRedisQueue(rdb.Client, cfg.QueueKey, logger.Printf)
	case "memory":
		if repo != nil {
			mem := queue.NewInMemory(1024)
			local = journal.NewLocal(mem, repo, logger)
			local.Start()
			q = mem
		}
	case "none":
	default:
		logger.Printf("unknown QUEUE_BACKEND %q, events stay in memory", cfg.QueueBackend)
	}
	var relay *outbox.Relay
	if q != nil {
		relay = outbox.NewRelay(engine, q, cfg.OutboxInterval, logger)
		relay.OnPublished = func(n int) { m.Published.Add(float64(n)) }
		relay.Start(ctx)
	}

	var codec qrtoken.Codec = qrtoken.JSONCodec{}
	if cfg.TokenSigning {
		codec = qrtoken.NewJWTCodec(cfg.TokenSigningKey, cfg.JWTIssuer)
	}

	// Cloudinary client (nil when not configured)
	var publisher httpapi.TokenPublisher
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		publisher = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Printf("cloudinary configured: %s", cfg.CloudinaryCloudName)
	}

	var audit httpapi.AuditArchive
	if repo != nil && q != nil {
		audit = repo
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:    logger,
		Addr:      ":" + cfg.HTTPPort,
		Engine:    engine,
		Roster:    roster,
		Audit:     audit,
		Codec:     codec,
		Metrics:   m,
		Publisher: publisher,
		Auth: httpapi.AuthConfig{
			SigningKey: cfg.JWTSigningKey,
			Issuer:     cfg.JWTIssuer,
			AccessTTL:  cfg.AccessTTL,
			DevTokens:  !cfg.IsProduction(),
		},
		Limiter:     httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, nil, nil),
		CORSOrigins: cfg.CORSOrigins,
		Checks:      checks,
		Threshold:   cfg.LowAttendanceThreshold,
	})

	go func() {
		logger.Printf("listening on :%s (roster=%s queue=%s)", cfg.HTTPPort, cfg.RosterBackend, cfg.QueueBackend)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("server forced shutdown: %v", err)
	}

	// The relay's final flush must reach the journal before it stops.
	expirer.Stop()
	if relay != nil {
		relay.Stop()
	}
	if local != nil {
		local.Stop(shutdownCtx)
	}
	return nil
}
