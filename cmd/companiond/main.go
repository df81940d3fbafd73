package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"recursive-companion/internal/config"
	"recursive-companion/internal/provider/openai"
	"recursive-companion/internal/server"
	"recursive-companion/internal/session"
	"recursive-companion/internal/similarity"
	"recursive-companion/internal/storage"
	"recursive-companion/internal/storage/memory"
	"recursive-companion/internal/storage/sqlite"
	"recursive-companion/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.OpenAI.APIKey == "" {
		log.Fatal("COMPANION_OPENAI__API_KEY is required")
	}

	shutdown, err := telemetry.Init("recursive-companion", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	var opts []openai.Option
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	if cfg.OpenAI.EmbeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel))
	}
	prov := openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, opts...)
	scorer := similarity.NewScorer(prov)

	registry := session.NewRegistry(prov, scorer, cfg.Session.TTL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Session.TTL > 0 && cfg.Session.SweepInterval > 0 {
		go registry.Sweep(ctx, cfg.Session.SweepInterval)
	}

	var store storage.SlotStore
	switch cfg.Storage.Type {
	case "memory":
		store = memory.New()
	case "sqlite":
		store, err = sqlite.New(cfg.Storage.SQLite.Path)
		if err != nil {
			log.Fatalf("Failed to open slot store: %v", err)
		}
		defer store.Close()
	}

	handler := server.NewHandler(registry, store, logger)
	srv := server.New(cfg.Server.Port, cfg.Server.RequestTimeout, logger, handler)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigChan:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
