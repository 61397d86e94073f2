// Package main provides the fieldsync agent: a localhost daemon the field
// UI talks to over REST/WebSocket. It owns the local SQLite mirror, the
// offline write queues and the sync loop against the MeliCheck backend.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/melicheck/fieldsync/cmd/agent/handlers"
	"github.com/melicheck/fieldsync/internal/api"
	"github.com/melicheck/fieldsync/internal/cache"
	"github.com/melicheck/fieldsync/internal/config"
	"github.com/melicheck/fieldsync/internal/connectivity"
	"github.com/melicheck/fieldsync/internal/events"
	"github.com/melicheck/fieldsync/internal/logging"
	"github.com/melicheck/fieldsync/internal/metrics"
	"github.com/melicheck/fieldsync/internal/queue"
	"github.com/melicheck/fieldsync/internal/store"
	"github.com/melicheck/fieldsync/internal/syncer"
)

func main() {
	cfg := config.Load()
	logging.Init(os.Stdout, cfg.LogLevel)

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		logging.Error("failed to open local database", err, logging.Fields{"dataDir": cfg.DataDir})
		os.Exit(1)
	}
	defer db.Close()

	repo := store.NewRepository(db)

	// The API client reads the bearer token from the persisted session on
	// every request, so a session swap needs no client rebuild.
	client := api.NewClient(cfg.BackendURL, cfg.RequestTimeout, func() string {
		user, err := repo.GetSession()
		if err != nil || user == nil {
			return ""
		}
		return user.Token
	})

	bus := events.NewBus()
	monitor := connectivity.NewMonitor(cfg.ProbeURL, cfg.ProbeInterval, bus)
	cacheLayer := cache.New(repo, monitor)
	puller := syncer.NewSyncer(repo, client, bus)
	queueMgr := queue.NewManager(repo, client, monitor, bus)
	watcher := connectivity.NewWatcher(bus, monitor, queueMgr, puller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mets := metrics.New()
	go mets.Observe(ctx, bus)

	hub := NewWSHub()
	go hub.Relay(ctx, bus)

	monitor.Start(ctx)
	defer monitor.Stop()
	watcher.Start(ctx)
	defer watcher.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"fieldsync-agent"}`))
	})

	handlers.NewSessionHandler(repo).RegisterRoutes(r)
	handlers.NewWritesHandler(queueMgr).RegisterRoutes(r)
	handlers.NewReadsHandler(repo, cacheLayer, client).RegisterRoutes(r)
	handlers.NewSyncHandler(repo, queueMgr, puller, watcher, monitor, cacheLayer, bus).RegisterRoutes(r)
	r.Handle("/metrics", mets.Handler())
	r.Get("/ws", HandleWebSocket(hub))

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		logging.Info("fieldsync agent listening", logging.Fields{
			"addr":    cfg.ListenAddr,
			"backend": cfg.BackendURL,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("http server failed", err, nil)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Info("shutting down", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("graceful shutdown failed", err, nil)
	}
}
