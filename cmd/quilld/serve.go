package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quillmind/quill/agent"
	"github.com/quillmind/quill/config"
	"github.com/quillmind/quill/engine"
	"github.com/quillmind/quill/ingest"
	"github.com/quillmind/quill/knowledge"
	"github.com/quillmind/quill/knowledge/embedder/cached"
	"github.com/quillmind/quill/knowledge/embedder/mock"
	"github.com/quillmind/quill/knowledge/embedder/rest"
	"github.com/quillmind/quill/provider/anthropic"
	"github.com/quillmind/quill/server"
	"github.com/quillmind/quill/sessions"
	"github.com/quillmind/quill/tools"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	store, err := knowledge.NewStore(filepath.Join(cfg.DataDir, "vectors"), embedder, log)
	if err != nil {
		return err
	}

	sessionStore, err := sessions.NewFileStore(filepath.Join(cfg.DataDir, "sessions"), log)
	if err != nil {
		return err
	}
	manager, err := sessions.NewManager(sessionStore, store, knowledge.SessionPartition, log)
	if err != nil {
		return err
	}

	retriever := knowledge.NewRetriever(store, log)

	model := anthropic.New(cfg.Anthropic.APIKey, cfg.Anthropic.Model)

	registry := engine.NewToolRegistry()
	registry.Register(tools.NewCalculator())
	registry.Register(tools.NewClock())
	registry.Register(tools.NewWeather())
	registry.Register(tools.NewKnowledgeSearch(retriever))
	registry.Register(tools.NewImageAnalysis(model))

	eng := engine.New(model, registry, agent.SystemPrompt, cfg.Agent.MaxTokens, log)
	svc := agent.New(eng, manager, retriever, log)

	splitter := ingest.NewSplitter(0, 0)
	ingestSvc := ingest.New(store, splitter, manager, log)

	if cfg.KnowledgeDir != "" {
		loaded, err := ingestSvc.LoadKnowledgeDir(ctx, cfg.KnowledgeDir)
		if err != nil {
			return err
		}
		log.Info().Int("files", loaded).Str("dir", cfg.KnowledgeDir).Msg("knowledge base seeded")
	}

	srv := server.New(svc, manager, store, ingestSvc, log)
	return srv.ListenAndServe(ctx, cfg.Listen)
}

func buildEmbedder(cfg *config.Config) (knowledge.Embedder, error) {
	var (
		inner knowledge.Embedder
		err   error
	)
	switch cfg.Embedding.Provider {
	case "mock":
		inner = mock.New(cfg.Embedding.Dimensions)
	case "rest":
		inner, err = rest.New(rest.Config{
			Endpoint:   cfg.Embedding.Endpoint,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	if cfg.Embedding.CacheSize < 0 {
		return inner, nil
	}
	cachedEmbedder, err := cached.New(inner, cfg.Embedding.CacheSize)
	if err != nil {
		return nil, err
	}
	return cachedEmbedder, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
