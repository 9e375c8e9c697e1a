package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/elsanchez/imagine-gateway/internal/config"
	"github.com/elsanchez/imagine-gateway/internal/imagine"
	"github.com/elsanchez/imagine-gateway/internal/repository"
	"github.com/elsanchez/imagine-gateway/internal/repository/sqlite"
	"github.com/elsanchez/imagine-gateway/internal/server"
	"github.com/elsanchez/imagine-gateway/internal/ssopool"
	"github.com/elsanchez/imagine-gateway/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("imagine-gatewayd starting", "addr", cfg.Addr(), "strategy", cfg.RotationStrategy)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("create data directory", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Historial de generaciones
	var history repository.HistoryRepository
	db, err := sqlite.NewDatabase(cfg.HistoryDBPath())
	if err != nil {
		// El gateway funciona sin historial; se degrada con aviso
		slog.Warn("history database unavailable, continuing without it", "error", err)
	} else {
		defer db.Close()
		history = db.HistoryRepo
	}

	// Store de estado del pool: Redis compartido o archivo local
	var store ssopool.Store
	if cfg.RedisEnabled {
		store, err = ssopool.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("connect redis", "error", err)
			os.Exit(1)
		}
		slog.Info("pool state on redis", "url", cfg.RedisURL)
	} else {
		store, err = ssopool.NewFileStore(filepath.Join(cfg.DataDir, "sso_state.json"))
		if err != nil {
			slog.Error("open pool state file", "error", err)
			os.Exit(1)
		}
	}
	defer store.Close()

	pool := ssopool.NewManager(store, ssopool.Options{
		Source:     cfg.SSOFile,
		Strategy:   cfg.RotationStrategy,
		DailyLimit: cfg.DailyLimit,
	})
	count, err := pool.Load(ctx)
	if err != nil {
		slog.Error("load credentials", "error", err)
		os.Exit(1)
	}
	if count == 0 {
		slog.Warn("no credentials loaded, generation will fail until some are added", "file", cfg.SSOFile)
	}

	media, err := storage.NewMediaStore(cfg.ImagesDir, cfg.PublicBaseURL())
	if err != nil {
		slog.Error("prepare images directory", "error", err)
		os.Exit(1)
	}

	generator, err := imagine.NewClient(pool, media, imagine.Options{
		WSURL:          config.UpstreamWSURL,
		ProxyURL:       cfg.ProxyURL,
		CFClearance:    cfg.CFClearance,
		AttemptTimeout: cfg.GenerationTimeout,
		DefaultCount:   cfg.DefaultImageCount,
	})
	if err != nil {
		slog.Error("build generation client", "error", err)
		os.Exit(1)
	}

	srv := server.NewServer(cfg, generator, pool, media, history)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}
}
