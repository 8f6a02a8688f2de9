package canvas

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facecrop_backend/internal/feature/facedetection/domain"
	"facecrop_backend/internal/feature/facedetection/domain/entity"
)

// gradient は各ピクセルの色が座標から決まるテスト画像を生成します。
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 200, A: 255})
		}
	}
	return img
}

// fakeResolver はResolverのモック実装です。
type fakeResolver struct {
	data []byte
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, in entity.ImageInput) ([]byte, error) {
	return f.data, f.err
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeDataURL(t *testing.T, s, mime string) image.Image {
	t.Helper()
	prefix := "data:" + mime + ";base64,"
	require.True(t, strings.HasPrefix(s, prefix), "unexpected data URL prefix: %.40s", s)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, prefix))
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestSurface_GetImageData(t *testing.T) {
	t.Parallel()

	s := NewSurface(gradient(10, 10), FormatPNG, 0)

	tests := []struct {
		name       string
		region     entity.CropRegion
		size       int
		origin     image.Point // 切り出し画像の(0,0)に対応する元画像の座標
		checkPixel image.Point // 切り出し画像上で検証する座標
		wantOpaque bool
	}{
		{
			name:       "inside bounds",
			region:     entity.CropRegion{X: 2, Y: 3, Side: 4},
			size:       4,
			origin:     image.Pt(2, 3),
			checkPixel: image.Pt(1, 1),
			wantOpaque: true,
		},
		{
			name:       "fractional values are truncated",
			region:     entity.CropRegion{X: 2.9, Y: 3.7, Side: 4.99},
			size:       4,
			origin:     image.Pt(2, 3),
			checkPixel: image.Pt(0, 0),
			wantOpaque: true,
		},
		{
			name:       "negative side is normalised",
			region:     entity.CropRegion{X: 6, Y: 7, Side: -4},
			size:       4,
			origin:     image.Pt(2, 3),
			checkPixel: image.Pt(3, 3),
			wantOpaque: true,
		},
		{
			name:       "outside pixels are transparent",
			region:     entity.CropRegion{X: -2, Y: -2, Side: 4},
			size:       4,
			origin:     image.Pt(-2, -2),
			checkPixel: image.Pt(0, 0),
			wantOpaque: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := s.GetImageData(tt.region)
			require.NoError(t, err)
			assert.Equal(t, tt.size, got.Bounds().Dx())
			assert.Equal(t, tt.size, got.Bounds().Dy())

			px := got.NRGBAAt(tt.checkPixel.X, tt.checkPixel.Y)
			if !tt.wantOpaque {
				assert.Equal(t, uint8(0), px.A)
				return
			}
			src := tt.origin.Add(tt.checkPixel)
			assert.Equal(t, s.pix.NRGBAAt(src.X, src.Y), px)
		})
	}
}

func TestSurface_GetImageData_Errors(t *testing.T) {
	t.Parallel()

	s := NewSurface(gradient(10, 10), FormatPNG, 0)

	tests := []struct {
		name     string
		region   entity.CropRegion
		expected error
	}{
		{name: "zero side", region: entity.CropRegion{X: 1, Y: 1, Side: 0}, expected: domain.ErrDegenerateRegion},
		{name: "side truncates to zero", region: entity.CropRegion{X: 1, Y: 1, Side: 0.7}, expected: domain.ErrDegenerateRegion},
		{name: "NaN side", region: entity.CropRegion{X: math.NaN(), Y: 1, Side: math.NaN()}, expected: domain.ErrDegenerateRegion},
		{name: "infinite side", region: entity.CropRegion{X: math.Inf(-1), Y: 1, Side: math.Inf(1)}, expected: domain.ErrDegenerateRegion},
		{name: "huge side", region: entity.CropRegion{X: 0, Y: 0, Side: 1e6}, expected: domain.ErrRegionTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := s.GetImageData(tt.region)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestSurface_CropToDataURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format Format
		mime   string
	}{
		{name: "png", format: FormatPNG, mime: "image/png"},
		{name: "jpeg", format: FormatJPEG, mime: "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewSurface(gradient(20, 20), tt.format, 90)

			out, err := s.CropToDataURL(entity.CropRegion{X: 5, Y: 5, Side: 8})
			require.NoError(t, err)

			img := decodeDataURL(t, out, tt.mime)
			assert.Equal(t, 8, img.Bounds().Dx())
			assert.Equal(t, 8, img.Bounds().Dy())
		})
	}
}

func TestCanvas_NewSurface(t *testing.T) {
	t.Parallel()

	src := gradient(12, 8)
	c := NewCanvas(&fakeResolver{data: encodePNG(t, src)}, FormatPNG, 0)

	surface, err := c.NewSurface(context.Background(), entity.ImageInput{Ref: "ignored"})
	require.NoError(t, err)

	got := surface.Source()
	assert.Equal(t, 12, got.Width())
	assert.Equal(t, 8, got.Height())
	assert.Equal(t, src.NRGBAAt(3, 4), got.Image.NRGBAAt(3, 4))
}

func TestCanvas_NewSurface_Errors(t *testing.T) {
	t.Parallel()

	errResolve := errors.New("resolve failed")

	t.Run("resolver error is returned", func(t *testing.T) {
		t.Parallel()
		c := NewCanvas(&fakeResolver{err: errResolve}, FormatPNG, 0)
		_, err := c.NewSurface(context.Background(), entity.ImageInput{})
		assert.ErrorIs(t, err, errResolve)
	})

	t.Run("undecodable bytes", func(t *testing.T) {
		t.Parallel()
		c := NewCanvas(&fakeResolver{data: []byte("not an image")}, FormatPNG, 0)
		_, err := c.NewSurface(context.Background(), entity.ImageInput{})
		assert.ErrorIs(t, err, domain.ErrInvalidImage)
	})
}

func TestNewCanvas_Defaults(t *testing.T) {
	t.Parallel()

	c := NewCanvas(nil, "gif", 0)
	assert.Equal(t, FormatPNG, c.format)
	assert.Equal(t, DefaultJPEGQuality, c.jpegQuality)

	c = NewCanvas(nil, FormatJPEG, 75)
	assert.Equal(t, FormatJPEG, c.format)
	assert.Equal(t, 75, c.jpegQuality)
}
