// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"facecrop_backend/internal/app/config"
	"facecrop_backend/internal/feature/facedetection/adapters/canvas"
	"facecrop_backend/internal/feature/facedetection/adapters/gemini"
	"facecrop_backend/internal/feature/facedetection/adapters/imagesource"
	"facecrop_backend/internal/feature/facedetection/adapters/posenet"
	"facecrop_backend/internal/feature/facedetection/adapters/vision"
	"facecrop_backend/internal/feature/facedetection/transport/handler"
	"facecrop_backend/internal/feature/facedetection/usecase"
	"facecrop_backend/internal/platform/cache"
	infrahttp "facecrop_backend/internal/platform/http"
	"facecrop_backend/internal/platform/model"
	"facecrop_backend/internal/shared/ratelimiter"
)

// ErrUnknownBackend is returned for an unsupported POSE_BACKEND value.
var ErrUnknownBackend = errors.New("unknown pose backend")

// FaceDetection bundles the wired use case with the resources it owns.
type FaceDetection struct {
	Usecase handler.FaceDetectionUsecase
	// ModelProbe checks the pose backend for readiness. Nil when the backend has no cheap probe.
	ModelProbe func(ctx context.Context) error

	shared *model.SharedLoader
}

// Close releases loaded models.
func (f *FaceDetection) Close() error {
	if f.shared == nil {
		return nil
	}
	return f.shared.Close()
}

// NewFaceDetection wires the face detection use case from configuration.
// rdb may be nil, in which case pose estimates are not cached.
// trusted lets image references name local paths and private network hosts and must only be set
// for callers that already have that access, such as the CLI. Untrusted callers can only fetch
// public addresses unless cfg.ImagePrivate is set.
func NewFaceDetection(cfg config.Config, rdb *redis.Client, trusted bool) (*FaceDetection, error) {
	limiter := ratelimiter.NewRateLimiter("pose-model", cfg.ModelRPM, time.Minute)

	backend, probe, err := NewBackendLoader(cfg, limiter)
	if err != nil {
		return nil, err
	}

	fd := &FaceDetection{ModelProbe: probe}

	loader := backend
	if cfg.SharedModel {
		fd.shared = model.NewSharedLoader(backend)
		loader = fd.shared
	}
	if rdb != nil {
		loader = cache.NewCachingModelLoader(rdb, cfg.PoseCacheTTL, loader, "poses")
	}

	fetchClient := infrahttp.NewPublicHTTPClient(cfg.ImageTimeout)
	if trusted || cfg.ImagePrivate {
		fetchClient = infrahttp.NewHTTPClient(cfg.ImageTimeout)
	}
	resolver := imagesource.NewResolver(fetchClient, trusted)
	surfaces := canvas.NewCanvas(resolver, cfg.CropFormat, cfg.CropJPEGQuality)

	fd.Usecase = usecase.NewFaceDetectionUsecase(loader, surfaces)
	slog.Info("face detection configured",
		"backend", cfg.PoseBackend,
		"shared_model", cfg.SharedModel,
		"pose_cache", rdb != nil,
		"private_image_fetch", trusted || cfg.ImagePrivate,
		"crop_format", cfg.CropFormat,
	)
	return fd, nil
}

// NewBackendLoader creates the ModelLoader for cfg.PoseBackend and, when available, a readiness probe.
func NewBackendLoader(cfg config.Config, limiter ratelimiter.RateLimiterInterface) (usecase.ModelLoader, func(ctx context.Context) error, error) {
	switch cfg.PoseBackend {
	case config.BackendPosenet, "":
		l := posenet.NewLoader(cfg.Posenet, infrahttp.NewHTTPClient(cfg.Posenet.Timeout), limiter)
		return l, l.Ping, nil
	case config.BackendVision:
		return vision.NewLoader(limiter), nil, nil
	case config.BackendGemini:
		return gemini.NewLoader(limiter), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.PoseBackend)
	}
}
