// Package posenet はHTTPで公開された姿勢推定モデルサーバー（TorchServe形式）のクライアントを提供します。
package posenet

import (
	"os"
	"time"
)

// Config holds configuration for the pose model server client.
type Config struct {
	BaseURL   string        // Base URL of the model server (e.g., "http://localhost:8080")
	ModelName string        // Registered model name used in /predictions/{name}
	Timeout   time.Duration // HTTP request timeout
}

// LoadConfig loads pose model server configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		BaseURL:   os.Getenv("POSENET_URL"),
		ModelName: os.Getenv("POSENET_MODEL"),
		Timeout:   10 * time.Second,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "posenet"
	}
	if d, err := time.ParseDuration(os.Getenv("POSENET_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	return cfg
}
