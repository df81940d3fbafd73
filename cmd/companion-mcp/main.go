package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"recursive-companion/internal/config"
	"recursive-companion/internal/mcptools"
	"recursive-companion/internal/provider/openai"
	"recursive-companion/internal/session"
	"recursive-companion/internal/similarity"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Stdout carries the MCP transport, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
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

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "recursive-companion",
		Version: "1.0.0",
	}, nil)
	mcptools.NewTools(registry, logger).Register(server)

	logger.Info("starting MCP server on stdio")
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}
}
