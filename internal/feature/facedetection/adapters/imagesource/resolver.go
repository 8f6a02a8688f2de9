// Package imagesource は画像入力（バイト列、data URL、http(s) URL、ローカルファイル）をバイト列に解決します。
package imagesource

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"facecrop_backend/internal/feature/facedetection/domain"
	"facecrop_backend/internal/feature/facedetection/domain/entity"
)

// MaxImageSize は受け付ける画像の最大サイズ（10MB）です。
const MaxImageSize = 10 * 1024 * 1024

// Resolver は画像入力をバイト列に解決します。
type Resolver struct {
	client          *http.Client
	allowLocalFiles bool
}

// NewResolver はResolverの新しいインスタンスを生成します。
// client が nil の場合、http(s) URL は受け付けません。
// allowLocalFiles はCLIなど信頼できる呼び出し元でのみ有効にしてください。
func NewResolver(client *http.Client, allowLocalFiles bool) *Resolver {
	return &Resolver{client: client, allowLocalFiles: allowLocalFiles}
}

// Resolve は入力を画像のバイト列に変換し、サイズと内容を検証します。
func (r *Resolver) Resolve(ctx context.Context, in entity.ImageInput) ([]byte, error) {
	data := in.Data
	if len(data) == 0 && in.Ref != "" {
		var err error
		if data, err = r.resolveRef(ctx, strings.TrimSpace(in.Ref)); err != nil {
			return nil, err
		}
	}
	if err := check(data); err != nil {
		return nil, err
	}
	return data, nil
}

func (r *Resolver) resolveRef(ctx context.Context, ref string) ([]byte, error) {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "data:"):
		return parseDataURL(ref)
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return r.fetch(ctx, ref)
	case r.allowLocalFiles:
		return readLocal(ref)
	default:
		return nil, fmt.Errorf("%w: unsupported image reference", domain.ErrInvalidImage)
	}
}

// parseDataURL は "data:[<mediatype>][;base64],<data>" を解析します。
func parseDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(ref[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data URL", domain.ErrInvalidImage)
	}
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64 payload: %v", domain.ErrInvalidImage, err)
		}
		return b, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid data URL payload: %v", domain.ErrInvalidImage, err)
	}
	return []byte(s), nil
}

func (r *Resolver) fetch(ctx context.Context, ref string) ([]byte, error) {
	if r.client == nil {
		return nil, fmt.Errorf("%w: remote images are disabled", domain.ErrInvalidImage)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch image: %v", domain.ErrInvalidImage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: failed to fetch image: %s", domain.ErrInvalidImage, resp.Status)
	}
	// 上限を1バイト超えて読み、サイズ超過を check で検出する
	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read image: %v", domain.ErrInvalidImage, err)
	}
	return b, nil
}

func readLocal(ref string) ([]byte, error) {
	path := ref
	if strings.HasPrefix(strings.ToLower(ref), "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
		}
		path = u.Path
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	if info.Size() > MaxImageSize {
		return nil, fmt.Errorf("%w: image size exceeds maximum of %d bytes", domain.ErrInvalidImage, MaxImageSize)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	return b, nil
}

func check(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: image data is empty", domain.ErrInvalidImage)
	}
	if len(data) > MaxImageSize {
		return fmt.Errorf("%w: image size exceeds maximum of %d bytes", domain.ErrInvalidImage, MaxImageSize)
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return fmt.Errorf("%w: unsupported content type %s", domain.ErrInvalidImage, mt.String())
	}
	return nil
}
