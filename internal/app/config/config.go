// Package config はアプリケーション全体の設定を環境変数から読み込みます。
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"facecrop_backend/internal/feature/facedetection/adapters/canvas"
	"facecrop_backend/internal/feature/facedetection/adapters/posenet"
	"facecrop_backend/internal/platform/logger"
	"facecrop_backend/internal/platform/redis"
)

// 姿勢推定バックエンドの種類です。
const (
	BackendPosenet = "posenet"
	BackendVision  = "vision"
	BackendGemini  = "gemini"
)

// Config はサーバーとCLIが共有する設定です。
type Config struct {
	HTTPAddr string

	PoseBackend     string
	Posenet         posenet.Config
	SharedModel     bool    // 読み込み済みモデルをプロセス内で共有するか
	ModelRPM        int     // 姿勢推定バックエンドへの分間リクエスト上限（0以下で無制限）
	ImageTimeout    time.Duration
	ImagePrivate    bool // サーバーでもプライベートネットワーク上の画像URLを取得するか
	PoseCacheTTL    time.Duration
	CropFormat      canvas.Format
	CropJPEGQuality int

	Redis redis.Config

	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	TrustedProxies []string // X-Forwarded-For を信頼するプロキシ（空なら信頼しない）

	Log logger.Config
}

// LoadDotEnv はカレントディレクトリの .env を読み込みます。ファイルがなければ何もしません。
// 既に設定されている環境変数は上書きしません。
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("failed to load env file", "file", f, "error", err)
		}
	}
}

// LoadConfig は環境変数から設定を読み込みます。不正な値は既定値に置き換えます。
func LoadConfig() Config {
	cfg := Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		PoseBackend:     strings.ToLower(getenv("POSE_BACKEND", BackendPosenet)),
		Posenet:         posenet.LoadConfig(),
		SharedModel:     getBool("POSE_MODEL_SHARED", true),
		ModelRPM:        getInt("MODEL_RPM", 0),
		ImageTimeout:    getDuration("IMAGE_FETCH_TIMEOUT", 10*time.Second),
		ImagePrivate:    getBool("IMAGE_FETCH_ALLOW_PRIVATE", false),
		PoseCacheTTL:    getDuration("POSE_CACHE_TTL", 10*time.Minute),
		CropFormat:      canvas.Format(strings.ToLower(getenv("CROP_FORMAT", string(canvas.FormatPNG)))),
		CropJPEGQuality: getInt("CROP_JPEG_QUALITY", canvas.DefaultJPEGQuality),
		Redis:           redis.LoadConfig(),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		RateLimitRPS:    getFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:  getInt("RATE_LIMIT_BURST", 10),
		TrustedProxies:  getList("TRUSTED_PROXIES"),
		Log:             logger.LoadConfig(),
	}
	return cfg
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getList はカンマ区切りの値を返します。未設定なら nil です。
func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}
