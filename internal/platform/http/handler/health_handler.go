// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"facecrop_backend/internal/api"
)

// probeTimeout は各レディネスチェックの上限時間です。
const probeTimeout = 2 * time.Second

// Health はサービスヘルスチェック用の /healthz エンドポイントを処理します。
// HTTPメソッドに応じて適切にレスポンスし、キャッシュを防止します。
func Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	switch c.Request.Method {
	case http.MethodHead:
		c.Status(http.StatusOK)
	case http.MethodOptions:
		c.Status(http.StatusNoContent)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Probe は依存先1件分のレディネスチェックです。
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Ready は /readyz エンドポイントのハンドラーを返します。
// すべてのチェックが成功すれば200、1件でも失敗すれば503を返します。
func Ready(probes ...Probe) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")

		resp := api.ReadinessResponse{Status: "ok", Probes: make([]api.ProbeStatus, 0, len(probes))}
		code := http.StatusOK
		for _, p := range probes {
			ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
			err := p.Check(ctx)
			cancel()

			st := api.ProbeStatus{Name: p.Name, Status: "ok"}
			if err != nil {
				st.Status = "fail"
				st.Error = err.Error()
				resp.Status = "unavailable"
				code = http.StatusServiceUnavailable
			}
			resp.Probes = append(resp.Probes, st)
		}
		c.JSON(code, resp)
	}
}
