package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"medminder/internal/auth"
	"medminder/internal/clock"
	"medminder/internal/config"
	"medminder/internal/database"
	"medminder/internal/handlers"
	"medminder/internal/intake"
	"medminder/internal/logger"
	"medminder/internal/middleware"
	"medminder/internal/repository"
	"medminder/internal/services"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	// Load environment variables
	if err := config.LoadEnvFile(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog := logger.NewFromEnv("medminder-server")
	clk := clock.NewReal()

	// Open database
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}
	db, err := database.OpenAndMigrate(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.close()
	log.Printf("Using %s store for medicines and history", cfg.Store.Driver)

	audit := repository.NewAuditRepository(db)
	recorder := intake.NewRecorder(st.intakes, clk, appLog)

	// Initialize security components
	jwtManager := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.SessionDuration)
	rateLimiter := middleware.NewRateLimiter(cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow)
	defer rateLimiter.Stop()
	loginRateLimiter := middleware.NewRateLimiter(cfg.Security.LoginRateLimit, cfg.Security.LoginRateWindow)
	defer loginRateLimiter.Stop()

	// Initialize router
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(appLog.With(logger.Fields{"component": "http"})))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(middleware.SecurityHeaders(cfg.Security.CSPEnabled, cfg.Security.HSTSEnabled))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Security.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handlers.Routes{
		DB:         db,
		JWT:        jwtManager,
		Medicines:  st.medicines,
		Intakes:    st.intakes,
		Recorder:   recorder,
		Audit:      audit,
		Clock:      clk,
		RateLimit:  rateLimiter.Middleware,
		LoginLimit: loginRateLimiter.Middleware,
	}.Mount(r)

	// Nightly missed-dose sweep
	if cfg.Sweep.Enabled {
		retention := time.Duration(cfg.Sweep.AuditRetentionDays) * 24 * time.Hour
		adherence := services.NewAdherenceService(st.medicines, st.intakes, recorder, audit, clk, appLog, retention)
		go func() {
			if err := adherence.RunDaily(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Adherence service stopped: %v", err)
			}
		}()
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on http://localhost%s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Printf("Server stopped")
}
