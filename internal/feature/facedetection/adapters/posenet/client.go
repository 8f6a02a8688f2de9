package posenet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"facecrop_backend/internal/feature/facedetection/adapters/canvas"
	"facecrop_backend/internal/feature/facedetection/domain/entity"
	"facecrop_backend/internal/feature/facedetection/usecase"
	"facecrop_backend/internal/shared/ratelimiter"
)

// requestJPEGQuality はモデルサーバーへ送る画像のJPEG品質です。
const requestJPEGQuality = 95

// Loader はモデルサーバーの疎通を確認してPoseModelを返します。
type Loader struct {
	client  *http.Client
	cfg     Config
	limiter ratelimiter.RateLimiterInterface
}

// LoaderがModelLoaderを実装していることをコンパイル時に検証します。
var _ usecase.ModelLoader = (*Loader)(nil)

// NewLoader はLoaderの新しいインスタンスを生成します。
func NewLoader(cfg Config, client *http.Client, limiter ratelimiter.RateLimiterInterface) *Loader {
	return &Loader{client: client, cfg: cfg, limiter: limiter}
}

// Load はモデルサーバーの /ping を確認し、設定を束ねたモデルハンドルを返します。
func (l *Loader) Load(ctx context.Context, mc entity.ModelConfig) (usecase.PoseModel, error) {
	if err := l.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to load pose model: %w", err)
	}
	return &Model{
		client:   l.client,
		endpoint: strings.TrimRight(l.cfg.BaseURL, "/") + "/predictions/" + url.PathEscape(l.cfg.ModelName),
		config:   mc,
		limiter:  l.limiter,
	}, nil
}

// Ping はモデルサーバーの死活を確認します。
func (l *Loader) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(l.cfg.BaseURL, "/")+"/ping", nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http error: %s", resp.Status)
	}
	return nil
}

// Model はモデルサーバー上の姿勢推定モデルです。
type Model struct {
	client   *http.Client
	endpoint string
	config   entity.ModelConfig
	limiter  ratelimiter.RateLimiterInterface
}

// EstimateMultiplePoses は画像をモデルサーバーへ送り、複数人の姿勢推定結果を返します。
func (m *Model) EstimateMultiplePoses(ctx context.Context, img entity.SourceImage, ic entity.InferenceConfig) ([]entity.PoseEstimate, error) {
	body, err := canvas.Encode(img.Image, canvas.FormatJPEG, requestJPEGQuality)
	if err != nil {
		return nil, err
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	q := url.Values{}
	q.Set("architecture", m.config.Architecture)
	q.Set("outputStride", strconv.Itoa(m.config.OutputStride))
	q.Set("inputResolution", m.config.InputResolution.String())
	q.Set("maxDetections", strconv.Itoa(ic.MaxDetections))
	q.Set("flipHorizontal", strconv.FormatBool(ic.FlipHorizontal))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, m.endpoint+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pose model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http error: %s", resp.Status)
	}

	var poses []entity.PoseEstimate
	if err := json.NewDecoder(resp.Body).Decode(&poses); err != nil {
		return nil, fmt.Errorf("failed to decode pose model response: %w", err)
	}
	return poses, nil
}
