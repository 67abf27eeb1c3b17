package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lumapics/gallery-backend/internal/adapter"
	"github.com/lumapics/gallery-backend/internal/api/middleware"
	"github.com/lumapics/gallery-backend/internal/api/server"
	"github.com/lumapics/gallery-backend/internal/cachestore"
	"github.com/lumapics/gallery-backend/internal/config"
	"github.com/lumapics/gallery-backend/internal/dedup"
	"github.com/lumapics/gallery-backend/internal/logger"
	"github.com/lumapics/gallery-backend/internal/overlay"
	"github.com/lumapics/gallery-backend/internal/registry"
	"github.com/lumapics/gallery-backend/internal/upstream"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "gallery-api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting gallery cache API")

	// Build the persistent cache backend
	var store cachestore.Store
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		redisClient := adapter.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisClient.Ping(ctx); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("Failed to close Redis connection", zap.Error(err))
			}
		}()
		store = cachestore.NewRedisStore(redisClient, cfg.Redis.Prefix)
		logger.InfoCtx(ctx, "Using redis cache backend", zap.String("addr", cfg.Redis.Addr))
	default:
		fileStore, err := cachestore.NewFileStore(cfg.Cache.Dir)
		if err != nil {
			logger.Fatal("Failed to open cache directory", zap.Error(err), zap.String("dir", cfg.Cache.Dir))
		}
		store = fileStore
		logger.InfoCtx(ctx, "Using file cache backend", zap.String("dir", cfg.Cache.Dir))
	}

	clock := adapter.NewClock()
	ov := overlay.Load(ctx, store, clock)

	// Upstream image API client and page walker
	httpClient := adapter.NewHTTPClient(cfg.Upstream.HTTPTimeout)
	client := upstream.NewClient(httpClient, upstream.Config{
		BaseURL:           cfg.Upstream.BaseURL,
		AccountID:         cfg.Upstream.AccountID,
		APIKey:            cfg.Upstream.APIKey,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
	})
	walker := upstream.NewWalker(client, ov, cfg.Cache.PageSize, cfg.Cache.MaxPages)

	// The registry is the single per-process cache instance; everything
	// downstream receives it by reference.
	cache := registry.New(registry.Config{
		MemoryTTL:     cfg.Cache.MemoryTTL,
		PersistentTTL: cfg.Cache.PersistentTTL,
	}, store, ov, walker, client, clock)
	defer cache.Close()

	detector := dedup.New(cache)

	srv := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
	}, cache, detector)

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.Info("Shutting down", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(err)
		}
		cancel()
	}()

	if err := srv.Start(); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
