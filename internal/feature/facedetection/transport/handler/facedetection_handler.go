// Package handler はfacedetectionフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"facecrop_backend/internal/api"
	"facecrop_backend/internal/feature/facedetection/domain"
	"facecrop_backend/internal/feature/facedetection/domain/entity"
	"facecrop_backend/internal/platform/logger"
)

// maxBodySize はリクエストボディの上限です（画像10MB + フォーム項目の余裕分）。
const maxBodySize = 11 << 20

// FaceDetectionUsecase は顔検出のユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type FaceDetectionUsecase interface {
	DetectFaces(ctx context.Context, in entity.ImageInput, o entity.OptionOverrides) ([]entity.FaceResult, error)
}

// FaceDetectionHandler は顔検出のHTTPリクエストを処理します。
type FaceDetectionHandler struct {
	uc FaceDetectionUsecase
}

// NewFaceDetectionHandler はFaceDetectionHandlerの新しいインスタンスを生成します。
func NewFaceDetectionHandler(uc FaceDetectionUsecase) *FaceDetectionHandler {
	return &FaceDetectionHandler{uc: uc}
}

// DetectFaces は画像から顔を検出し、切り出した顔画像をスコア降順で返します。
//
// エンドポイント: POST /v1/faces/detect
// Content-Type: multipart/form-data
// フィールド: image（画像ファイル、最大10MB）, accuracy, max_faces（任意）
//
// Content-Type: application/json
// ボディ: {"image": "data URL または http(s) URL", "accuracy": 0.5, "max_faces": 3}
func (h *FaceDetectionHandler) DetectFaces(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)

	var (
		in        entity.ImageInput
		overrides entity.OptionOverrides
	)
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req api.DetectFacesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Warn("顔検出リクエストのバリデーションに失敗", "error", err, "remote_addr", c.ClientIP())
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "画像が必要です"})
			return
		}
		in.Ref = req.Image
		overrides.Accuracy = parseAccuracy(rawString(req.Accuracy))
		overrides.MaxFaces = parseMaxFaces(rawString(req.MaxFaces))
	} else {
		data, ok := readFormImage(c, log)
		if !ok {
			return
		}
		in.Data = data
		overrides.Accuracy = parseAccuracy(c.PostForm("accuracy"))
		overrides.MaxFaces = parseMaxFaces(c.PostForm("max_faces"))
	}

	faces, err := h.uc.DetectFaces(c.Request.Context(), in, overrides)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidImage) {
			log.Warn("不正な画像", "error", err, "remote_addr", c.ClientIP())
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "画像を読み込めませんでした"})
			return
		}
		log.Error("顔検出に失敗", "error", err)
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "顔検出に失敗しました"})
		return
	}

	out := make([]api.FaceResponse, 0, len(faces))
	for _, f := range faces {
		out = append(out, api.FaceResponse{Score: f.Score, Image: f.Image})
	}
	log.Info("顔検出が完了", "faces", len(out))
	c.JSON(http.StatusOK, out)
}

// readFormImage はマルチパートの image フィールドを読み込みます。失敗時はレスポンスを書き込み false を返します。
func readFormImage(c *gin.Context, log *slog.Logger) ([]byte, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		log.Warn("画像ファイルの取得に失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "画像ファイルが必要です"})
		return nil, false
	}

	f, err := file.Open()
	if err != nil {
		log.Error("画像ファイルのオープンに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "画像の読み込みに失敗しました"})
		return nil, false
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn("画像ファイルのクローズに失敗", "error", err)
		}
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		log.Error("画像データの読み取りに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "画像の読み込みに失敗しました"})
		return nil, false
	}
	return data, true
}

// rawString はJSONの値を文字列として取り出します。文字列値の場合は引用符を外します。
func rawString(raw []byte) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

// parseAccuracy は数値として解釈できない場合 nil を返します。範囲チェックはユースケース側で行います。
func parseAccuracy(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseMaxFaces は整数として解釈できない場合 nil を返します。
func parseMaxFaces(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
