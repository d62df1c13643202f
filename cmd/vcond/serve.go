package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/config"
	"github.com/fyrsmithlabs/vcond/internal/embeddings"
	"github.com/fyrsmithlabs/vcond/internal/hookbus"
	"github.com/fyrsmithlabs/vcond/internal/logging"
	"github.com/fyrsmithlabs/vcond/internal/mcp"
	"github.com/fyrsmithlabs/vcond/internal/search"
	"github.com/fyrsmithlabs/vcond/internal/service"
	"github.com/fyrsmithlabs/vcond/internal/store"
	"github.com/fyrsmithlabs/vcond/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP tools on the stdio transport",
	RunE:  runServe,
}

// deps is the wired collaborator set shared by serve and embed.
type deps struct {
	cfg      *config.Config
	logger   *zap.Logger
	backend  store.Backend
	vectors  vectorstore.Store
	embedder embeddings.Provider
}

func (d *deps) close() {
	if d.embedder != nil {
		if err := d.embedder.Close(); err != nil {
			d.logger.Warn("closing embedder", zap.Error(err))
		}
	}
	if d.backend != nil {
		if err := d.backend.Close(); err != nil {
			d.logger.Warn("closing backend", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}

// buildDeps loads config and wires storage, vectors, and the embedding
// model. A missing embedding model is not fatal: the service runs with
// keyword search only.
func buildDeps() (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	var backend store.Backend
	switch cfg.Store.Driver {
	case "memory":
		backend = store.NewMemory()
	default:
		backend, err = store.NewSQLite(store.SQLiteConfig{Path: cfg.Store.Path}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
	}

	var vectors vectorstore.Store
	if cfg.Vector.VectorEnabled() {
		vectors, err = vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path:       cfg.Vector.Path,
			Compress:   cfg.Vector.Compress,
			Collection: cfg.Vector.Collection,
			VectorSize: cfg.Vector.VectorSize,
		}, logger)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("opening vector store: %w", err)
		}
	}

	var embedder embeddings.Provider
	if cfg.Vector.VectorEnabled() {
		embedder, err = embeddings.NewFastEmbedProvider(embeddings.FastEmbedConfig{
			Model:     cfg.Embeddings.Model,
			CacheDir:  cfg.Embeddings.CacheDir,
			MaxLength: cfg.Embeddings.MaxLength,
		})
		if err != nil {
			logger.Warn("embedding model unavailable, semantic search disabled", zap.Error(err))
			embedder = nil
		}
	}

	return &deps{cfg: cfg, logger: logger, backend: backend, vectors: vectors, embedder: embedder}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := search.NewEngine(d.backend, d.vectors, search.Config{
		HybridWeight:    d.cfg.Search.HybridWeight,
		SubqueryTimeout: d.cfg.Search.SubqueryTimeout,
		DefaultLimit:    d.cfg.Search.DefaultLimit,
	}, d.logger)
	bus := hookbus.New(d.logger)
	svc := service.New(d.backend, d.vectors, engine, bus, d.logger)

	var embedder vectorstore.Embedder
	if d.embedder != nil {
		embedder = d.embedder
	}
	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "vcond",
		Version: version,
		Logger:  d.logger,
	}, svc, embedder)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	if d.cfg.Metrics.Addr != "" {
		startMetrics(ctx, d.cfg.Metrics.Addr, d.logger)
	}

	d.logger.Info("vcond ready",
		zap.String("store", d.cfg.Store.Driver),
		zap.Bool("vectors", d.vectors != nil),
		zap.Bool("embedder", d.embedder != nil),
	)
	return srv.Run(ctx)
}

// startMetrics serves Prometheus metrics on a sidecar listener. A
// failure here is logged, not fatal: observability never takes the
// service down.
func startMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics endpoint failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
