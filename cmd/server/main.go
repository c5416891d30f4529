package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koios/snapshot-processor/internal/config"
	"github.com/koios/snapshot-processor/internal/handlers"
	"github.com/koios/snapshot-processor/internal/imaging"
	"github.com/koios/snapshot-processor/internal/overlay"
	"github.com/koios/snapshot-processor/internal/redis"
	"github.com/koios/snapshot-processor/internal/snapshot"
	"github.com/koios/snapshot-processor/internal/source"
	"github.com/koios/snapshot-processor/internal/states"
	"github.com/koios/snapshot-processor/internal/template"
	"github.com/koios/snapshot-processor/pkg/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Camera definitions
	registry := models.NewCameraRegistry(cfg.Cameras.File)
	issues, err := registry.Reload()
	if err != nil {
		logger.Error("Failed to load cameras, starting with none", zap.Error(err))
	}
	handlers.LogIssues(logger, issues)

	// Entity states and last good frames live in Redis when it is reachable
	var (
		stateSource overlay.StateSource
		frames      snapshot.FrameStore
	)
	redisClient, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis unavailable, using in-memory state and frame stores", zap.Error(err))
		stateSource = states.NewStaticStore(nil)
		frames = snapshot.NewMemoryFrameStore()
	} else {
		defer redisClient.Close()
		stateStore := states.NewRedisStore(redisClient.Redis(), cfg.Render.StatesKey, logger)
		stateSource = stateStore
		frames = snapshot.NewRedisFrameStore(redisClient.Redis(), cfg.Render.FrameTTL)

		if cfg.Redis.StateConsumer {
			consumer := redis.NewConsumer(redisClient, stateStore, logger)
			go func() {
				if err := consumer.Start(); err != nil {
					logger.Error("State consumer failed", zap.Error(err))
				}
			}()
			defer consumer.Stop()
		}
	}

	// Render pipeline
	fonts := imaging.NewFontCache(cfg.Cameras.FontsDir, logger)
	templates := template.NewRenderer(stateSource, logger)
	compositor := overlay.NewCompositor(fonts, stateSource, templates, logger)

	pool := snapshot.NewWorkerPool(cfg.Render.Workers, logger)
	pool.Start()

	processor := snapshot.NewProcessor(pool, compositor, logger)
	coordinator := snapshot.NewCoordinator(processor, cfg.Render.GraceWindow, cfg.Render.Timeout, logger)
	fetcher := source.NewFetcher(&http.Client{Timeout: cfg.Render.SourceTimeout}, logger)
	service := snapshot.NewService(registry, coordinator, fetcher, frames, logger)

	// HTTP server
	mux := http.NewServeMux()
	limiter, err := handlers.NewClientLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, cfg.Server.TrustedProxies)
	if err != nil {
		logger.Fatal("Invalid rate limit configuration", zap.Error(err))
	}
	defer limiter.Stop()
	cameraHandler := handlers.NewCameraHandler(service, limiter, logger)
	cameraHandler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("Server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("cameras_file", cfg.Cameras.File),
		zap.Int("cameras", registry.Len()),
		zap.Int("render_workers", cfg.Render.Workers),
		zap.Duration("grace_window", cfg.Render.GraceWindow))

	// Wait for interrupt signal or server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	pool.Stop()
	cancel()

	logger.Info("Server shutdown complete")
}

// newLogger builds a production logger at the given level
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
