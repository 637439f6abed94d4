package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"checkin/internal/api"
	"checkin/internal/attendance"
	"checkin/internal/config"
	"checkin/internal/events"
	"checkin/internal/httpmiddleware"
	"checkin/internal/kiosk"
	"checkin/internal/queue"
	"checkin/internal/roster"
	"checkin/internal/schedule"
	"checkin/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()
	health := map[string]api.HealthCheck{}

	var (
		schedules schedule.Directory
		people    roster.Directory
		records   attendance.Store
		audit     events.Sink
	)
	switch cfg.DataBackend {
	case "memory":
		dir, students := schedule.NewMemory(), roster.NewMemory()
		if cfg.SeedFile != "" {
			if err := loadSeed(cfg.SeedFile, dir, students); err != nil {
				return err
			}
		}
		schedules, people, records = dir, students, attendance.NewMemoryStore()
		audit = func(_ context.Context, o attendance.Outcome) error {
			log.Printf("scan %s %s student=%s status=%s duplicate=%v", o.ScheduleID, o.Type, o.Record.StudentID, o.Status, o.Duplicate)
			return nil
		}
		log.Println("data backend: memory (records are lost on restart)")
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if db == nil {
			return err
		}
		if err != nil {
			log.Printf("warning: db not reachable: %v", err)
		}
		defer db.Close()
		if cfg.AutoMigrate && err == nil {
			if err := store.Migrate(ctx, db.Client); err != nil {
				return err
			}
		}
		schedules = schedule.NewPostgres(db.Client)
		people = roster.NewPostgres(db.Client)
		repo := attendance.NewRepository(db.Client)
		records, audit = repo, repo.AuditLog
		health["db"] = db.Healthy
	}

	var redisClient *store.Redis
	if cfg.SessionBackend != "memory" || cfg.QueueBackend != "memory" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		health["redis"] = redisClient.Healthy
	}

	var sessionStore kiosk.Store
	if cfg.SessionBackend == "memory" {
		sessionStore = kiosk.NewMemoryStore()
	} else {
		sessionStore = kiosk.NewRedisStore(redisClient.Client, cfg.SessionRetention)
	}

	drainCtx, stopDrain := context.WithCancel(ctx)
	defer stopDrain()
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// No separate worker can reach an in-process queue, so drain it here.
		q = queue.NewInMemory(256)
		go func() {
			if err := events.Drain(drainCtx, q, audit); err != nil {
				log.Printf("scan audit stopped: %v", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	hub := events.NewHub(32)
	sessions := kiosk.NewService(sessionStore, schedules, cfg.SessionTTL)
	resolver := attendance.NewResolver(sessions, schedules, people, records, attendance.Options{
		GracePeriod: cfg.GracePeriod,
		Timeout:     cfg.ScanTimeout,
		Location:    cfg.Location(),
		Notifier:    events.Fanout{hub, events.NewQueuePublisher(q)},
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())

	api.New(api.Config{
		JWTIssuer:       cfg.JWTIssuer,
		JWTSigningKey:   cfg.JWTSigningKey,
		AccessTTL:       cfg.AccessTTL,
		StaffAPIKey:     cfg.StaffAPIKey,
		RateLimitPerMin: cfg.RateLimitPerMin,
	}, sessions, resolver, schedules, hub, health).Register(r)

	// No WriteTimeout: kiosk feeds stream for the length of a session.
	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// corsMiddleware allows the kiosk and staff browser UIs. Auth travels in the
// Authorization header, so credentials mode is never needed.
func corsMiddleware(origins []string) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = origins
	}
	return cors.New(conf)
}
