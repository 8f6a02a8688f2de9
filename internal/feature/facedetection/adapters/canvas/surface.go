// Package canvas はimagingを使ったメモリ上の描画サーフェスを提供します。
// 切り出しの挙動はHTML canvasのgetImageDataに合わせています。
package canvas

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // webpデコーダの登録

	"facecrop_backend/internal/feature/facedetection/domain"
	"facecrop_backend/internal/feature/facedetection/domain/entity"
	"facecrop_backend/internal/feature/facedetection/usecase"
)

// Format は切り出し画像のエンコード形式です。
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"

	// DefaultJPEGQuality はJPEGエンコード時の既定品質です。
	DefaultJPEGQuality = 92
	// MaxCropPixels は1回の切り出しで確保する最大ピクセル数です。
	MaxCropPixels = 64 * 1024 * 1024
)

// Resolver は画像入力をバイト列に解決します。
type Resolver interface {
	Resolve(ctx context.Context, in entity.ImageInput) ([]byte, error)
}

// Canvas は入力画像をデコードして描画サーフェスを生成します。
type Canvas struct {
	resolver    Resolver
	format      Format
	jpegQuality int
}

// CanvasがSurfaceFactoryを実装していることをコンパイル時に検証します。
var _ usecase.SurfaceFactory = (*Canvas)(nil)

// NewCanvas はCanvasの新しいインスタンスを生成します。
// 未知の形式はPNG、範囲外の品質は DefaultJPEGQuality として扱います。
func NewCanvas(resolver Resolver, format Format, jpegQuality int) *Canvas {
	if format != FormatJPEG {
		format = FormatPNG
	}
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	return &Canvas{resolver: resolver, format: format, jpegQuality: jpegQuality}
}

// NewSurface は入力画像を解決・デコードし、EXIFの向きを反映したサーフェスを返します。
func (c *Canvas) NewSurface(ctx context.Context, in entity.ImageInput) (usecase.DrawingSurface, error) {
	data, err := c.resolver.Resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", domain.ErrInvalidImage, err)
	}
	return NewSurface(img, c.format, c.jpegQuality), nil
}

// Surface は画像をコピーしたメモリ上のサーフェスです。
type Surface struct {
	pix         *image.NRGBA
	format      Format
	jpegQuality int
}

// NewSurface は画像を原点基準のNRGBAにコピーしてSurfaceを生成します。
func NewSurface(img image.Image, format Format, jpegQuality int) *Surface {
	return &Surface{pix: imaging.Clone(img), format: format, jpegQuality: jpegQuality}
}

// Source はモデルに渡す画像を返します。
func (s *Surface) Source() entity.SourceImage {
	return entity.SourceImage{Image: s.pix}
}

// GetImageData は領域のピクセルを取り出します。
//
// 座標は0方向に切り捨て（非有限値は0）、幅・高さが0ならエラー、負の幅・高さは正規化します。
// サーフェス外のピクセルは透明になります。
func (s *Surface) GetImageData(region entity.CropRegion) (*image.NRGBA, error) {
	x, y := toLong(region.X), toLong(region.Y)
	w, h := toLong(region.Side), toLong(region.Side)
	if w == 0 || h == 0 {
		return nil, domain.ErrDegenerateRegion
	}
	if w < 0 {
		x += w
		w = -w
	}
	if h < 0 {
		y += h
		h = -h
	}
	if int64(w)*int64(h) > MaxCropPixels {
		return nil, fmt.Errorf("%w: %dx%d", domain.ErrRegionTooLarge, w, h)
	}

	dst := imaging.New(w, h, color.Transparent)
	return imaging.Paste(dst, s.pix, image.Pt(-x, -y)), nil
}

// CropToDataURL は領域を切り出し、同じ大きさのサーフェスに配置してdata URLにエンコードします。
func (s *Surface) CropToDataURL(region entity.CropRegion) (string, error) {
	cropped, err := s.GetImageData(region)
	if err != nil {
		return "", err
	}
	return EncodeDataURL(cropped, s.format, s.jpegQuality)
}

// Encode は画像を指定形式でエンコードします。未知の形式はPNGとして扱います。
func Encode(img image.Image, format Format, jpegQuality int) ([]byte, error) {
	var (
		buf bytes.Buffer
		err error
	)
	switch format {
	case FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
	default:
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeDataURL は画像を "data:image/<format>;base64,..." 形式にエンコードします。
func EncodeDataURL(img image.Image, format Format, jpegQuality int) (string, error) {
	if format != FormatJPEG {
		format = FormatPNG
	}
	b, err := Encode(img, format, jpegQuality)
	if err != nil {
		return "", err
	}
	return "data:image/" + string(format) + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}

// toLong は座標値を整数に変換します。NaN・無限大は0、それ以外は0方向へ切り捨てます。
func toLong(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	t := math.Trunc(v)
	if t > math.MaxInt32 {
		return math.MaxInt32
	}
	if t < math.MinInt32 {
		return math.MinInt32
	}
	return int(t)
}
