// Package usecase はfacedetectionフィーチャーのビジネスロジックを実装します。
package usecase

import (
	"context"
	"io"
	"log/slog"

	"facecrop_backend/internal/feature/facedetection/domain/entity"
)

const (
	// ModelArchitecture は姿勢推定モデルのアーキテクチャです。
	ModelArchitecture = "MobileNetV1"
	// ModelOutputStride はモデルの出力ストライドです。
	ModelOutputStride = 16
)

var (
	landscapeResolution = entity.Resolution{Width: 800, Height: 600}
	portraitResolution  = entity.Resolution{Width: 600, Height: 800}
)

// PoseModel は読み込み済みの姿勢推定モデルです。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type PoseModel interface {
	// EstimateMultiplePoses は画像内の複数人の姿勢を推定します。結果の順序は保証されません。
	EstimateMultiplePoses(ctx context.Context, img entity.SourceImage, cfg entity.InferenceConfig) ([]entity.PoseEstimate, error)
}

// ModelLoader は姿勢推定モデルを取得します。
// 返したモデルがio.Closerを実装する場合、そのモデルは呼び出しごとのもので、DetectFaces の終了時に閉じられます。
// 共有モデルを返すローダーはCloseを公開してはいけません。
type ModelLoader interface {
	// Load は設定に合うモデルを読み込みます。
	Load(ctx context.Context, cfg entity.ModelConfig) (PoseModel, error)
}

// DrawingSurface は画像をコピーした描画サーフェスです。呼び出しごとに生成・破棄されます。
type DrawingSurface interface {
	// Source はモデルに渡す画像を返します。
	Source() entity.SourceImage
	// CropToDataURL は領域を切り出してエンコード済み文字列を返します。
	CropToDataURL(region entity.CropRegion) (string, error)
}

// SurfaceFactory は入力画像から描画サーフェスを生成します。
type SurfaceFactory interface {
	NewSurface(ctx context.Context, in entity.ImageInput) (DrawingSurface, error)
}

// facedetectionUsecase は顔検出・切り出しのビジネスロジックを提供します。
type facedetectionUsecase struct {
	loader   ModelLoader
	surfaces SurfaceFactory
}

// NewFaceDetectionUsecase はfacedetectionUsecaseの新しいインスタンスを生成します。
func NewFaceDetectionUsecase(loader ModelLoader, surfaces SurfaceFactory) *facedetectionUsecase {
	return &facedetectionUsecase{loader: loader, surfaces: surfaces}
}

// ModelConfigFor は画像の向きに応じたモデル設定を返します。縦長画像は縦長の入力解像度を使います。
func ModelConfigFor(width, height int) entity.ModelConfig {
	res := landscapeResolution
	if height > width {
		res = portraitResolution
	}
	return entity.ModelConfig{
		Architecture:    ModelArchitecture,
		OutputStride:    ModelOutputStride,
		InputResolution: res,
	}
}

// DetectFaces は画像から顔を検出し、スコア降順の切り出し画像を返します。
// モデルの読み込み・推論のエラーはそのまま返し、部分的な結果は返しません。
func (u *facedetectionUsecase) DetectFaces(ctx context.Context, in entity.ImageInput, o entity.OptionOverrides) ([]entity.FaceResult, error) {
	opts := ResolveOptions(o)

	surface, err := u.surfaces.NewSurface(ctx, in)
	if err != nil {
		return nil, err
	}
	src := surface.Source()

	model, err := u.loader.Load(ctx, ModelConfigFor(src.Width(), src.Height()))
	if err != nil {
		return nil, err
	}
	if c, ok := model.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				slog.WarnContext(ctx, "failed to close pose model", "error", err)
			}
		}()
	}
	poses, err := model.EstimateMultiplePoses(ctx, src, entity.InferenceConfig{
		MaxDetections:  opts.MaxFaces,
		FlipHorizontal: false,
	})
	if err != nil {
		return nil, err
	}

	accepted := SelectPoses(poses, opts)
	faces := make([]entity.FaceResult, 0, len(accepted))
	for _, p := range accepted {
		region, err := DeriveFaceBox(p)
		if err != nil {
			return nil, err
		}
		img, err := surface.CropToDataURL(region)
		if err != nil {
			return nil, err
		}
		faces = append(faces, entity.FaceResult{Score: p.Score, Image: img})
	}
	return faces, nil
}
