// Package model provides process-wide sharing of loaded pose models.
package model

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"facecrop_backend/internal/feature/facedetection/domain/entity"
	"facecrop_backend/internal/feature/facedetection/usecase"
)

// SharedLoader loads each distinct model configuration once and hands the same
// model to every caller. Concurrent loads of the same configuration are coalesced.
// Failed loads are not remembered, so the next call retries.
// Handed-out models do not implement io.Closer; only Close releases them.
type SharedLoader struct {
	inner  usecase.ModelLoader
	group  singleflight.Group
	mu     sync.RWMutex
	models map[string]*sharedModel
}

// sharedModel hides the inner model's Close from callers.
type sharedModel struct {
	usecase.PoseModel
}

var _ usecase.ModelLoader = (*SharedLoader)(nil)

// NewSharedLoader wraps inner.
func NewSharedLoader(inner usecase.ModelLoader) *SharedLoader {
	return &SharedLoader{inner: inner, models: make(map[string]*sharedModel)}
}

// Load returns the shared model for cfg, loading it on first use.
func (s *SharedLoader) Load(ctx context.Context, cfg entity.ModelConfig) (usecase.PoseModel, error) {
	key := cfg.Key()

	s.mu.RLock()
	m, ok := s.models[key]
	s.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		s.mu.RLock()
		m, ok := s.models[key]
		s.mu.RUnlock()
		if ok {
			return m, nil
		}

		// shared by every waiting caller
		loaded, err := s.inner.Load(context.WithoutCancel(ctx), cfg)
		if err != nil {
			return nil, err
		}
		m = &sharedModel{PoseModel: loaded}

		s.mu.Lock()
		s.models[key] = m
		s.mu.Unlock()
		slog.Info("pose model loaded", "model", key)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sharedModel), nil
}

// Loaded returns the number of models currently held.
func (s *SharedLoader) Loaded() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.models)
}

// Close releases every held model that implements io.Closer and forgets all models.
func (s *SharedLoader) Close() error {
	s.mu.Lock()
	models := s.models
	s.models = make(map[string]*sharedModel)
	s.mu.Unlock()

	var errs []error
	for key, m := range models {
		if c, ok := m.PoseModel.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Warn("failed to close pose model", "model", key, "error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
