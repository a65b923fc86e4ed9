package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/journal"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// Worker consumes engine events from Redis and writes them to the Postgres journal.
func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "attendance-worker ", log.LstdFlags|log.LUTC)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		logger.Fatalf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	rdb, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		logger.Fatalf("redis config: %v", err)
	}
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		logger.Printf("warning: redis not reachable at %s, will keep retrying", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(rdb.Client, cfg.QueueKey, logger.Printf)
	repo := attendance.NewRepository(db.Client)

	logger.Println("worker started, waiting for events...")
	n, err := journal.NewConsumer(q, repo, logger).Run(ctx)
	if err != nil {
		logger.Printf("consume failed: %v", err)
	}
	logger.Printf("worker stopped after applying %d events", n)
}
