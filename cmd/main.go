package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reviewplace/slotboard/internal/config"
	"github.com/reviewplace/slotboard/internal/database"
	"github.com/reviewplace/slotboard/internal/handler"
	"github.com/reviewplace/slotboard/internal/middleware"
	"github.com/reviewplace/slotboard/internal/policy"
	"github.com/reviewplace/slotboard/internal/repository"
	"github.com/reviewplace/slotboard/internal/service"
)

func main() {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting slot service in %s mode", cfg.App.Environment)

	// Initialize database connections
	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database connections: %v", err)
		}
	}()

	// Stores
	reviews := repository.NewReviewRepository(db.Postgres)
	slots := repository.NewSlotRepository(db.Postgres)
	quotas := repository.NewQuotaRepository(db.Postgres)
	subs := repository.NewSubmissionRepository(db.Postgres)
	events := repository.NewEventRepository(db.Postgres)

	// Reservation policy rules: the global hold limit applies everywhere,
	// strict platforms get the extra per-day counters.
	policies := policy.NewRegistry()
	policies.Global(&policy.ActiveHoldLimit{Max: cfg.Reserve.MaxActiveReservations, Counters: events})
	for _, platform := range cfg.Reserve.StrictPlatforms {
		policies.Platform(platform,
			&policy.DailyActionLimit{Max: cfg.Reserve.DailyActionLimit, Counters: events},
			&policy.ReviewDailyLimit{Counters: events},
		)
	}

	slotService := service.New(reviews, slots, quotas, subs, events, policies)
	h := handler.NewHandler(slotService)

	// Per-client rate limiter
	var limiter *middleware.ClientLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewClientLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		defer limiter.Stop()
	}

	// Setup router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if limiter != nil {
		r.Use(middleware.RateLimit(limiter))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/", h.Routes())

	// Add health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		w.WriteHeader(http.StatusOK)
		response := fmt.Sprintf(`{"status":"ok","service":"slotboard","hostname":"%s"}`, hostname)
		w.Write([]byte(response))
	})

	// Add database health check endpoint
	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Postgres.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","message":"postgres unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","postgres":"connected"}`))
	})

	// Add Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Create server with configuration optimized for high concurrency
	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second, // Keep connections alive longer
		MaxHeaderBytes: 1 << 20,           // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(r, &http2.Server{
			MaxConcurrentStreams: 1000, // Allow more concurrent streams
		}),
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting slot service on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully")
}
