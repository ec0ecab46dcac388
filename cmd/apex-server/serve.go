package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benredmond/apex-sub002/internal/cache"
	"github.com/benredmond/apex-sub002/internal/config"
	"github.com/benredmond/apex-sub002/internal/logging"
	"github.com/benredmond/apex-sub002/internal/mcp"
	"github.com/benredmond/apex-sub002/internal/metrics"
	"github.com/benredmond/apex-sub002/internal/rank"
	"github.com/benredmond/apex-sub002/internal/ratelimit"
	"github.com/benredmond/apex-sub002/internal/reflectpipeline"
	"github.com/benredmond/apex-sub002/internal/store"
	"github.com/benredmond/apex-sub002/internal/tasklifecycle"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the apex_* tool catalog over line-delimited JSON-RPC on stdio",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	logging.Configure(cfg.Logging.DebugMode || verbose, logging.LevelInfo)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	respCache := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer respCache.Close()

	limiter := ratelimit.New(ratelimit.Config{
		WindowSeconds: cfg.RateLimit.WindowSeconds,
		DefaultMax:    cfg.RateLimit.DefaultMax,
		PerToolMax:    cfg.RateLimit.PerToolMax,
	})
	collector := metrics.New()
	tasks := tasklifecycle.New(st)
	pipeline := reflectpipeline.New(st, nil, cfg.Reflection.AllowedRepoURLs, nil)

	deps := &mcp.Deps{
		Store:           st,
		Cache:           respCache,
		RateLimit:       limiter,
		Metrics:         collector,
		Tasks:           tasks,
		Pipeline:        pipeline,
		Priors:          nil,
		Weights:         rank.DefaultWeights,
		PackMaxBytes:    cfg.Pack.DefaultMaxSizeBytes,
		ContextMaxBytes: 28672,
	}

	registry := mcp.NewRegistry()
	mcp.RegisterAll(registry, deps)

	server := mcp.NewServer(registry, mcp.ServerInfo{Name: "apex-server", Version: version})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Boot("apex-server serving %d tools from %s", len(registry.List()), cfg.DBPath)
	return server.Run(ctx)
}
