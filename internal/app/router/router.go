// Package router はHTTPルーティングを定義します。
package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	facehandler "facecrop_backend/internal/feature/facedetection/transport/handler"
	"facecrop_backend/internal/platform/http/handler"
	"facecrop_backend/internal/platform/http/middleware"
	jwtmw "facecrop_backend/internal/platform/jwt"
)

// Options はルーターの生成オプションです。
type Options struct {
	// JWTSecret が空でなければ /v1 配下にJWT認証を適用します。
	JWTSecret string
	// RateLimiter が nil でなければ /v1 配下にIP単位のレート制限を適用します。
	RateLimiter *middleware.IPRateLimiter
	// Probes は /readyz で実行するチェックです。
	Probes []handler.Probe
	// TrustedProxies はクライアントIPの転送ヘッダーを信頼するプロキシのIPまたはCIDRです。
	// nil なら転送ヘッダーを無視し、接続元アドレスを使います。
	TrustedProxies []string
}

// NewRouter はGinエンジンを生成し、全ルートを登録します。
func NewRouter(faces *facehandler.FaceDetectionHandler, opts Options) *gin.Engine {
	r := gin.New()
	// gin.New は全プロキシを信頼するため、必ず明示的に設定する
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		slog.Warn("invalid trusted proxies, forwarded headers are ignored", "proxies", opts.TrustedProxies, "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog())

	// 認証不要
	// 導通確認用
	r.GET("/healthz", handler.Health)
	r.HEAD("/healthz", handler.Health)
	r.OPTIONS("/healthz", handler.Health)
	// 依存先の疎通確認
	r.GET("/readyz", handler.Ready(opts.Probes...))

	v1 := r.Group("/v1")
	if opts.RateLimiter != nil {
		v1.Use(middleware.RateLimit(opts.RateLimiter))
	}
	if opts.JWTSecret != "" {
		// リクエストヘッダーに JWT が必要になる
		v1.Use(jwtmw.AuthRequired(opts.JWTSecret))
	}
	{
		v1.POST("/faces/detect", faces.DetectFaces)
	}

	return r
}
