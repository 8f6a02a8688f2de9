// Package api はHTTP APIのリクエスト・レスポンスDTOを定義します。
package api

import "encoding/json"

// ErrorResponse はエラー時の共通レスポンスです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// DetectFacesRequest はJSON形式の顔検出リクエストです。
// Accuracy と MaxFaces は数値として解釈できない場合は未指定として扱うため、生のJSONのまま受け取ります。
type DetectFacesRequest struct {
	Image    string          `json:"image" binding:"required"` // data URL または http(s) URL
	Accuracy json.RawMessage `json:"accuracy,omitempty"`
	MaxFaces json.RawMessage `json:"max_faces,omitempty"`
}

// FaceResponse は切り出した顔1件分のレスポンスです。
type FaceResponse struct {
	Score float64 `json:"score"`
	Image string  `json:"image"`
}

// ProbeStatus はレディネスチェック1件分の結果です。
type ProbeStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReadinessResponse は /readyz のレスポンスです。
type ReadinessResponse struct {
	Status string        `json:"status"`
	Probes []ProbeStatus `json:"probes"`
}
