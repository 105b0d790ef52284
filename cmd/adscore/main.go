// Package main wires together the adscore service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/adsabs/adscore/internal/api"
	"github.com/adsabs/adscore/internal/cache"
	"github.com/adsabs/adscore/internal/config"
	"github.com/adsabs/adscore/internal/crawler"
	"github.com/adsabs/adscore/internal/logging"
	"github.com/adsabs/adscore/internal/metrics"
	"github.com/adsabs/adscore/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store cache.Store
	if cfg.Cache.RedisURL != "" {
		redisStore, err := cache.NewRedis(cfg.Cache.RedisURL)
		if err != nil {
			logger.Fatal("redis init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := redisStore.Close(); closeErr != nil {
				logger.Warn("redis close failed", zap.Error(closeErr))
			}
		}()
		store = redisStore
		logger.Info("using redis cache")
	} else {
		memStore, err := cache.NewMemory(cfg.Cache.MemoryEntries)
		if err != nil {
			logger.Fatal("memory cache init failed", zap.Error(err))
		}
		store = memStore
		logger.Info("using in-memory cache", zap.Int("entries", cfg.Cache.MemoryEntries))
	}

	verifier := crawler.NewVerifier(nil, cfg.DNSTimeout(), logger.Named("verifier"))
	classifier := crawler.NewClassifier(verifier, store, logger.Named("classifier"), crawler.Options{
		TTL:       cfg.BotTTL(),
		KeyPrefix: cfg.Cache.BotKeyPrefix,
		Strict:    cfg.Debug,
	})

	var pool *http.Client
	if cfg.API.PoolEnabled {
		pool = api.NewHTTPClient(cfg.APITimeout())
	}

	apiServer := server.NewServer(classifier, store, pool, cfg, logger.Named("server"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
