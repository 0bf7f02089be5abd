// Package app wires the engine's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppiankov/schemetrust/internal/cache"
	"github.com/ppiankov/schemetrust/internal/catalog"
	"github.com/ppiankov/schemetrust/internal/dashboard"
	"github.com/ppiankov/schemetrust/internal/fetch"
	"github.com/ppiankov/schemetrust/internal/model"
	"github.com/ppiankov/schemetrust/internal/source"
	"github.com/ppiankov/schemetrust/internal/store"
	"github.com/ppiankov/schemetrust/internal/transport/rest"
	"github.com/ppiankov/schemetrust/internal/verify"
	"github.com/ppiankov/schemetrust/internal/worker"
)

// App holds the wired engine
type App struct {
	Config       model.Config
	Logger       *slog.Logger
	Store        *store.Store
	Catalog      catalog.Catalog
	Cache        cache.Cache
	Sources      *source.Registry
	Orchestrator *verify.Orchestrator
	Dashboard    *dashboard.Aggregator
}

// New opens the store, loads the catalogue and builds the orchestrator.
// The dashboard aggregator is registered as a run hook.
func New(ctx context.Context, cfg model.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	cat, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalogue: %w", err)
	}

	respCache, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store.Path, store.WithLockTimeout(cfg.Store.LockTimeout))
	if err != nil {
		closeCache(respCache)
		return nil, err
	}

	fetcher := fetch.NewFetcher(cfg.HTTP, logger.With("component", "fetch"))
	sources := source.NewDefaultRegistry(cfg, fetcher, respCache, logger.With("component", "source"))
	if sources.Len() == 0 {
		logger.Warn("no evidence sources enabled")
	}

	orch := verify.New(cfg, cat, sources, st, logger.With("component", "verify"))
	agg := dashboard.New(st, cat, respCache, cfg.Dashboard, logger.With("component", "dashboard"))
	orch.OnRunComplete(agg.OnRunComplete)

	logger.Info("engine ready",
		"version", Version,
		"schemes", len(cat.List()),
		"sources", sources.IDs(),
		"store", cfg.Store.Path,
		"cache", cfg.Cache.Backend,
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        st,
		Catalog:      cat,
		Cache:        respCache,
		Sources:      sources,
		Orchestrator: orch,
		Dashboard:    agg,
	}, nil
}

// Close releases the store and cache
func (a *App) Close() error {
	closeCache(a.Cache)
	return a.Store.Close()
}

func closeCache(c cache.Cache) {
	if closer, ok := c.(io.Closer); ok {
		_ = closer.Close()
	}
}

// Serve runs the HTTP API, the trigger queue and the periodic dashboard
// rebuild until ctx is done, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config.Server
	if cfg.AdminAPIKey == "" {
		a.Logger.Warn("admin API key is empty: trigger and override endpoints are unauthenticated")
	}

	if !a.Dashboard.Warm() {
		if _, err := a.Dashboard.Rebuild(ctx); err != nil {
			a.Logger.Warn("initial dashboard rebuild failed", "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := worker.NewQueue(a.Orchestrator, a.Config.Verify.BatchWorkers, a.Config.Verify.QueueSize, a.Logger.With("component", "queue"))
	queue.Start(runCtx)
	go a.Dashboard.Run(runCtx)

	handler := rest.NewVerificationHandler(a.Store, a.Catalog, queue, a.Dashboard, a.Sources.Len(), a.Logger)
	router := rest.NewRouter(handler, rest.NewHealthHandler(a.Store, Version), cfg.AdminAPIKey, a.Logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			queue.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer done()

	err := srv.Shutdown(shutdownCtx)
	cancel()
	queue.Stop()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
