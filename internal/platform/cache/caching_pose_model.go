// Package cache provides caching decorators for the pose model ports.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"facecrop_backend/internal/feature/facedetection/domain/entity"
	"facecrop_backend/internal/feature/facedetection/usecase"
)

// CachingModelLoader decorates a ModelLoader so that every loaded model
// caches its pose estimates in Redis.
type CachingModelLoader struct {
	inner     usecase.ModelLoader
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

var _ usecase.ModelLoader = (*CachingModelLoader)(nil)

// NewCachingModelLoader decorates a ModelLoader with Redis caching.
// If ttl is 0, it defaults to 10 minutes. If namespace is empty, it uses "poses".
func NewCachingModelLoader(rdb *redis.Client, ttl time.Duration, inner usecase.ModelLoader, namespace string) *CachingModelLoader {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if namespace == "" {
		namespace = "poses"
	}
	return &CachingModelLoader{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// Load loads the inner model and wraps it. Without Redis the inner model is returned as is.
func (c *CachingModelLoader) Load(ctx context.Context, cfg entity.ModelConfig) (usecase.PoseModel, error) {
	m, err := c.inner.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c.rdb == nil {
		return m, nil
	}
	return &CachingPoseModel{
		inner:     m,
		rdb:       c.rdb,
		ttl:       c.ttl,
		namespace: c.namespace,
		modelKey:  cfg.Key(),
	}, nil
}

// CachingPoseModel decorates a PoseModel with Redis caching keyed by image content.
type CachingPoseModel struct {
	inner     usecase.PoseModel
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	modelKey  string
}

// EstimateMultiplePoses returns cached estimates for identical pixels and inference
// parameters, falling back to the inner model.
func (c *CachingPoseModel) EstimateMultiplePoses(ctx context.Context, img entity.SourceImage, cfg entity.InferenceConfig) ([]entity.PoseEstimate, error) {
	key := c.cacheKey(img, cfg)

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.PoseEstimate
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to the model
	out, err := c.inner.EstimateMultiplePoses(ctx, img, cfg)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort)
	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}

	return out, nil
}

// Close closes the inner model when it implements io.Closer.
func (c *CachingPoseModel) Close() error {
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// cacheKey generates a cache key for a specific inference.
func (c *CachingPoseModel) cacheKey(img entity.SourceImage, cfg entity.InferenceConfig) string {
	return fmt.Sprintf("%s:%s:%s:%d:%t",
		c.namespace,
		safe(c.modelKey),
		imageDigest(img),
		cfg.MaxDetections,
		cfg.FlipHorizontal,
	)
}

// imageDigest hashes the image dimensions and pixels.
func imageDigest(img entity.SourceImage) string {
	h := sha256.New()
	var dims [16]byte
	binary.BigEndian.PutUint64(dims[:8], uint64(img.Width()))
	binary.BigEndian.PutUint64(dims[8:], uint64(img.Height()))
	h.Write(dims[:])
	h.Write(img.Image.Pix)
	return hex.EncodeToString(h.Sum(nil))
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
