package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"checkin/internal/attendance"
	"checkin/internal/config"
	"checkin/internal/events"
	"checkin/internal/queue"
	"checkin/internal/store"
)

// Worker consumes attendance outcomes from the queue and appends them to the scan log.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatalf("QUEUE_BACKEND=memory is drained inside the api process; the worker needs redis")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db.Client); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	q := queue.NewRedisQueue(redisClient.Client, "")
	repo := attendance.NewRepository(db.Client)

	log.Println("worker started, waiting for messages...")
	if err := events.Drain(ctx, q, repo.AuditLog); err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}
	log.Println("worker stopped")
}
