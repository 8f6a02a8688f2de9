// Package gemini はGoogle Gemini APIを姿勢推定モデルとして利用するクライアントを提供します。
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"facecrop_backend/internal/feature/facedetection/adapters/canvas"
	"facecrop_backend/internal/feature/facedetection/domain/entity"
	"facecrop_backend/internal/feature/facedetection/usecase"
	"facecrop_backend/internal/shared/ratelimiter"
)

const (
	// DefaultModel はGemini APIのデフォルトモデルです。
	DefaultModel = "gemini-2.5-flash"

	requestJPEGQuality = 90
)

// contentGenerator はgenai.Modelsのうち本パッケージが利用する操作です。
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Loader はADCでGeminiクライアントを生成します。
type Loader struct {
	model     string
	newClient func(ctx context.Context) (contentGenerator, error)
	limiter   ratelimiter.RateLimiterInterface
}

// LoaderがModelLoaderを実装していることをコンパイル時に検証します。
var _ usecase.ModelLoader = (*Loader)(nil)

// NewLoader はGeminiクライアントを生成するLoaderを返します。
// 環境変数 GOOGLE_GENAI_USE_VERTEXAI, GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION が必要です。
// GEMINI_MODEL が未設定の場合は DefaultModel を使用します。
func NewLoader(limiter ratelimiter.RateLimiterInterface) *Loader {
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = DefaultModel
	}
	return &Loader{
		model: model,
		newClient: func(ctx context.Context) (contentGenerator, error) {
			client, err := genai.NewClient(ctx, nil)
			if err != nil {
				return nil, err
			}
			return client.Models, nil
		},
		limiter: limiter,
	}
}

// Load はGeminiクライアントを生成します。
func (l *Loader) Load(ctx context.Context, _ entity.ModelConfig) (usecase.PoseModel, error) {
	gen, err := l.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Model{gen: gen, model: l.model, limiter: l.limiter}, nil
}

// Model はGeminiに顔のキーポイントを推定させます。
type Model struct {
	gen     contentGenerator
	model   string
	limiter ratelimiter.RateLimiterInterface
}

// EstimateMultiplePoses は画像内の人物ごとに鼻・目・耳の座標をGeminiに推定させます。
func (m *Model) EstimateMultiplePoses(ctx context.Context, img entity.SourceImage, ic entity.InferenceConfig) ([]entity.PoseEstimate, error) {
	jpeg, err := canvas.Encode(img.Image, canvas.FormatJPEG, requestJPEGQuality)
	if err != nil {
		return nil, err
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(jpeg, "image/jpeg"),
			genai.NewPartFromText(buildPrompt(img.Width(), img.Height(), ic.MaxDetections)),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	resp, err := m.gen.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini API request failed: %w", err)
	}

	return parsePoses(resp.Text())
}

func buildPrompt(width, height, maxDetections int) string {
	return fmt.Sprintf(`この画像（幅%dpx、高さ%dpx）に写っている人物を最大%d人まで検出してください。
各人物について、鼻(nose)、左目(leftEye)、右目(rightEye)、左耳(leftEar)、右耳(rightEar)の位置をピクセル座標で推定してください。
左右は写っている人物から見た向きです。座標の原点は画像の左上です。

以下のJSON形式のみで回答してください:
[{"score": 0.0〜1.0の検出の確信度, "keypoints": [{"part": "nose", "score": 0.0〜1.0, "position": {"x": 0, "y": 0}}]}]
人物がいない場合は [] を返してください。`, width, height, maxDetections)
}

// parsePoses はGeminiの応答テキストから姿勢推定結果のJSON配列を取り出します。
func parsePoses(text string) ([]entity.PoseEstimate, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("gemini response does not contain a JSON array")
	}

	var poses []entity.PoseEstimate
	if err := json.Unmarshal([]byte(text[start:end+1]), &poses); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", err)
	}
	if poses == nil {
		poses = []entity.PoseEstimate{}
	}
	return poses, nil
}
