package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"medminder/internal/agent"
	"medminder/internal/alarm"
	"medminder/internal/alert"
	"medminder/internal/client"
	"medminder/internal/clock"
	"medminder/internal/config"
	"medminder/internal/database"
	"medminder/internal/ledger"
	"medminder/internal/logger"
	"medminder/internal/repository"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: %v", err)
	}

	cfg, err := config.LoadAgent()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog := logger.NewFromEnv("medminder-agent")
	clk := clock.NewReal()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Log in before anything else so the engine knows whose doses it records
	api, err := client.New(client.Config{BaseURL: cfg.APIURL})
	if err != nil {
		log.Fatalf("Failed to create API client: %v", err)
	}
	loginCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	user, err := api.Login(loginCtx, cfg.Username, cfg.Password)
	cancel()
	if err != nil {
		log.Fatalf("Failed to log in as %s: %v", cfg.Username, err)
	}
	log.Printf("Logged in as %s", user.Username)

	kv, closeKV, err := openLedgerKV(cfg.StatePath)
	if err != nil {
		log.Fatalf("Failed to open agent state: %v", err)
	}
	defer closeKV()

	doses, err := ledger.New(kv, clk, appLog)
	if err != nil {
		log.Fatalf("Failed to load dose ledger: %v", err)
	}

	sinks := alert.Multi{alert.NewLogSink(appLog)}
	if cfg.BellEnabled {
		sinks = append(sinks, alert.NewTerminal(os.Stdout))
	}
	if cfg.AudioEnabled {
		tone, err := alert.NewToneSink(appLog)
		if err != nil {
			log.Printf("Warning: audio disabled: %v", err)
		} else {
			sinks = append(sinks, tone)
		}
	}

	engineCfg := alarm.DefaultConfig()
	engineCfg.UserID = user.ID
	engineCfg.PollInterval = cfg.PollInterval
	engineCfg.SnoozeDuration = cfg.SnoozeDuration
	engine := alarm.New(engineCfg, clk, doses, api, sinks, appLog)
	defer engine.Close()

	runner := agent.NewRunner(api, engine, clk, appLog, cfg.RefreshInterval)
	if err := runner.Refresh(ctx); err != nil {
		log.Printf("Warning: initial medicine refresh failed: %v", err)
	}

	go runner.Run(ctx)
	go engine.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           agent.NewRouter(engine, clk, cfg.ControlToken, appLog.With(logger.Fields{"component": "control"})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Control API shutdown error: %v", err)
		}
	}()

	log.Printf("Agent control API listening on http://%s", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Control API failed: %v", err)
	}
	engine.Stop()
	log.Printf("Agent stopped")
}

// openLedgerKV returns the SQLite-backed store at path, or an in-memory one
// when path is empty.
func openLedgerKV(path string) (ledger.KV, func(), error) {
	if path == "" {
		return ledger.NewMemoryKV(), func() {}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, err
		}
	}
	db, err := database.OpenAndMigrate(path)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewKVRepository(db), func() { db.Close() }, nil
}
