// Package vision はGoogle Cloud Vision APIの顔検出を姿勢推定モデルとして利用するクライアントを提供します。
package vision

import (
	"context"
	"fmt"
	"math"

	gvision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"

	"facecrop_backend/internal/feature/facedetection/adapters/canvas"
	"facecrop_backend/internal/feature/facedetection/domain/entity"
	"facecrop_backend/internal/feature/facedetection/usecase"
	"facecrop_backend/internal/shared/ratelimiter"
)

const requestJPEGQuality = 95

// ImageAnnotator はVision APIクライアントのうち本パッケージが利用する操作です。
type ImageAnnotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// ImageAnnotatorClientがImageAnnotatorを満たすことをコンパイル時に検証します。
var _ ImageAnnotator = (*gvision.ImageAnnotatorClient)(nil)

// Loader はADCでVision APIクライアントを生成します。
type Loader struct {
	newClient func(ctx context.Context) (ImageAnnotator, error)
	limiter   ratelimiter.RateLimiterInterface
}

// LoaderがModelLoaderを実装していることをコンパイル時に検証します。
var _ usecase.ModelLoader = (*Loader)(nil)

// NewLoader はADCを使用するLoaderの新しいインスタンスを生成します。
func NewLoader(limiter ratelimiter.RateLimiterInterface) *Loader {
	return NewLoaderWithFactory(func(ctx context.Context) (ImageAnnotator, error) {
		return gvision.NewImageAnnotatorClient(ctx)
	}, limiter)
}

// NewLoaderWithFactory は任意のクライアント生成関数を使うLoaderを生成します。
func NewLoaderWithFactory(newClient func(ctx context.Context) (ImageAnnotator, error), limiter ratelimiter.RateLimiterInterface) *Loader {
	return &Loader{newClient: newClient, limiter: limiter}
}

// Load はVision APIクライアントを生成します。Vision APIは入力解像度を受け付けないため、モデル設定は使用しません。
func (l *Loader) Load(ctx context.Context, _ entity.ModelConfig) (usecase.PoseModel, error) {
	client, err := l.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &Model{client: client, limiter: l.limiter}, nil
}

// Model はVision APIの顔検出結果を姿勢推定結果として返します。
type Model struct {
	client  ImageAnnotator
	limiter ratelimiter.RateLimiterInterface
}

// Close はVision APIクライアントを解放します。
func (m *Model) Close() error {
	return m.client.Close()
}

// EstimateMultiplePoses は画像から顔を検出し、顔のランドマークをキーポイントに変換して返します。
func (m *Model) EstimateMultiplePoses(ctx context.Context, img entity.SourceImage, ic entity.InferenceConfig) ([]entity.PoseEstimate, error) {
	content, err := canvas.Encode(img.Image, canvas.FormatJPEG, requestJPEGQuality)
	if err != nil {
		return nil, err
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_FACE_DETECTION, MaxResults: maxResults(ic.MaxDetections)},
				},
			},
		},
	}

	resp, err := m.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision API request failed: %w", err)
	}

	if len(resp.Responses) == 0 {
		return []entity.PoseEstimate{}, nil
	}

	if resp.Responses[0].Error != nil {
		return nil, fmt.Errorf("vision API error: %s", resp.Responses[0].Error.Message)
	}

	return toPoseEstimates(resp.Responses[0].FaceAnnotations), nil
}

// maxResults は検出上限をint32の範囲に収めます。
func maxResults(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	if n < 0 {
		return 0
	}
	return int32(n)
}

// landmarkParts はVisionのランドマーク種別とキーポイント名の対応です。
var landmarkParts = map[visionpb.FaceAnnotation_Landmark_Type]string{
	visionpb.FaceAnnotation_Landmark_NOSE_TIP:          entity.PartNose,
	visionpb.FaceAnnotation_Landmark_LEFT_EYE:          entity.PartLeftEye,
	visionpb.FaceAnnotation_Landmark_RIGHT_EYE:         entity.PartRightEye,
	visionpb.FaceAnnotation_Landmark_LEFT_EAR_TRAGION:  entity.PartLeftEar,
	visionpb.FaceAnnotation_Landmark_RIGHT_EAR_TRAGION: entity.PartRightEar,
}

func toPoseEstimates(faces []*visionpb.FaceAnnotation) []entity.PoseEstimate {
	poses := make([]entity.PoseEstimate, 0, len(faces))
	for _, face := range faces {
		score := float64(face.GetDetectionConfidence())
		pose := entity.PoseEstimate{Score: score, Keypoints: []entity.Keypoint{}}
		for _, lm := range face.GetLandmarks() {
			part, ok := landmarkParts[lm.GetType()]
			if !ok || lm.GetPosition() == nil {
				continue
			}
			pose.Keypoints = append(pose.Keypoints, entity.Keypoint{
				Part:  part,
				Score: score,
				Position: entity.Point{
					X: float64(lm.GetPosition().GetX()),
					Y: float64(lm.GetPosition().GetY()),
				},
			})
		}
		poses = append(poses, pose)
	}
	return poses
}
