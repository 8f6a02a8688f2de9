package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	redisv9 "github.com/redis/go-redis/v9"

	"facecrop_backend/internal/app/config"
	"facecrop_backend/internal/app/di"
	"facecrop_backend/internal/app/router"
	facehandler "facecrop_backend/internal/feature/facedetection/transport/handler"
	"facecrop_backend/internal/platform/http/handler"
	"facecrop_backend/internal/platform/http/middleware"
	"facecrop_backend/internal/platform/logger"
	infraredis "facecrop_backend/internal/platform/redis"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadConfig()

	// Logger
	l, logCloser := logger.New(cfg.Log)
	slog.SetDefault(l)
	defer func() { _ = logCloser.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis
	var rdb *redisv9.Client
	if cfg.Redis.Enabled() {
		if tmp, err := infraredis.NewRedisClient(ctx, cfg.Redis); err != nil {
			slog.Warn("Redis unavailable. Running without pose cache.")
		} else {
			rdb = tmp
			defer func() {
				if err := rdb.Close(); err != nil {
					slog.Error("Failed to close Redis client", "error", err)
				}
			}()
		}
	}

	// Usecase
	fd, err := di.NewFaceDetection(cfg, rdb, false)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := fd.Close(); err != nil {
			slog.Error("Failed to release pose models", "error", err)
		}
	}()

	// Readiness probes
	var probes []handler.Probe
	if rdb != nil {
		probes = append(probes, handler.Probe{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if fd.ModelProbe != nil {
		probes = append(probes, handler.Probe{Name: "pose_model", Check: fd.ModelProbe})
	}

	// JWT_SECRETチェック（開発中の注意喚起）
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET is not set. /v1 endpoints are served without authentication.")
	}

	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(facehandler.NewFaceDetectionHandler(fd.Usecase), router.Options{
		JWTSecret:      cfg.JWTSecret,
		RateLimiter:    middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Probes:         probes,
		TrustedProxies: cfg.TrustedProxies,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.HTTPAddr, "backend", cfg.PoseBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
