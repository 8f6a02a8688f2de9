package vision

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"

	"facecrop_backend/internal/feature/facedetection/domain/entity"
)

// mockAnnotator はImageAnnotatorのモック実装です。
type mockAnnotator struct {
	annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)
	closed       bool
	lastReq      *visionpb.BatchAnnotateImagesRequest
}

func (m *mockAnnotator) BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	m.lastReq = req
	return m.annotateFunc(ctx, req)
}

func (m *mockAnnotator) Close() error {
	m.closed = true
	return nil
}

func landmark(t visionpb.FaceAnnotation_Landmark_Type, x, y float32) *visionpb.FaceAnnotation_Landmark {
	return &visionpb.FaceAnnotation_Landmark{Type: t, Position: &visionpb.Position{X: x, Y: y}}
}

func loadModel(t *testing.T, m *mockAnnotator) *Model {
	t.Helper()
	loader := NewLoaderWithFactory(func(ctx context.Context) (ImageAnnotator, error) { return m, nil }, nil)
	pm, err := loader.Load(context.Background(), entity.ModelConfig{})
	require.NoError(t, err)
	return pm.(*Model)
}

func source() entity.SourceImage {
	return entity.SourceImage{Image: image.NewNRGBA(image.Rect(0, 0, 32, 32))}
}

func TestToPoseEstimates(t *testing.T) {
	t.Parallel()

	faces := []*visionpb.FaceAnnotation{
		{
			DetectionConfidence: 0.5,
			Landmarks: []*visionpb.FaceAnnotation_Landmark{
				landmark(visionpb.FaceAnnotation_Landmark_NOSE_TIP, 100, 80),
				landmark(visionpb.FaceAnnotation_Landmark_LEFT_EAR_TRAGION, 120, 70),
				landmark(visionpb.FaceAnnotation_Landmark_RIGHT_EAR_TRAGION, 80, 70),
				landmark(visionpb.FaceAnnotation_Landmark_LEFT_EYE, 105, 70),
				landmark(visionpb.FaceAnnotation_Landmark_RIGHT_EYE, 95, 70),
				landmark(visionpb.FaceAnnotation_Landmark_CHIN_GNATHION, 100, 120),
			},
		},
		{DetectionConfidence: 0.25},
	}

	poses := toPoseEstimates(faces)

	require.Len(t, poses, 2)
	assert.Equal(t, 0.5, poses[0].Score)
	assert.Len(t, poses[0].Keypoints, 5)

	nose, ok := poses[0].Find(entity.PartNose)
	assert.True(t, ok)
	assert.Equal(t, entity.Point{X: 100, Y: 80}, nose)

	leftEar, ok := poses[0].Find(entity.PartLeftEar)
	assert.True(t, ok)
	assert.Equal(t, entity.Point{X: 120, Y: 70}, leftEar)

	assert.Equal(t, 0.25, poses[1].Score)
	assert.Empty(t, poses[1].Keypoints)
}

func TestModel_EstimateMultiplePoses(t *testing.T) {
	t.Parallel()

	m := &mockAnnotator{
		annotateFunc: func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return &visionpb.BatchAnnotateImagesResponse{
				Responses: []*visionpb.AnnotateImageResponse{{
					FaceAnnotations: []*visionpb.FaceAnnotation{{
						DetectionConfidence: 0.75,
						Landmarks: []*visionpb.FaceAnnotation_Landmark{
							landmark(visionpb.FaceAnnotation_Landmark_NOSE_TIP, 10, 10),
						},
					}},
				}},
			}, nil
		},
	}
	model := loadModel(t, m)

	poses, err := model.EstimateMultiplePoses(context.Background(), source(), entity.InferenceConfig{MaxDetections: 4})
	require.NoError(t, err)

	require.Len(t, poses, 1)
	assert.Equal(t, 0.75, poses[0].Score)

	require.Len(t, m.lastReq.Requests, 1)
	feature := m.lastReq.Requests[0].Features[0]
	assert.Equal(t, visionpb.Feature_FACE_DETECTION, feature.Type)
	assert.Equal(t, int32(4), feature.MaxResults)
	assert.NotEmpty(t, m.lastReq.Requests[0].Image.Content)

	require.NoError(t, model.Close())
	assert.True(t, m.closed)
}

func TestModel_EstimateMultiplePoses_MaxResults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		max      int
		expected int32
	}{
		{name: "zero", max: 0, expected: 0},
		{name: "in range", max: 10, expected: 10},
		{name: "int32 max", max: math.MaxInt32, expected: math.MaxInt32},
		{name: "just above int32", max: math.MaxInt32 + 1, expected: math.MaxInt32},
		{name: "multiple of 2^32", max: 1 << 32, expected: math.MaxInt32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := &mockAnnotator{
				annotateFunc: func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
					return &visionpb.BatchAnnotateImagesResponse{}, nil
				},
			}
			model := loadModel(t, m)

			_, err := model.EstimateMultiplePoses(context.Background(), source(), entity.InferenceConfig{MaxDetections: tt.max})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m.lastReq.Requests[0].Features[0].MaxResults)
		})
	}
}

func TestModel_EstimateMultiplePoses_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		resp    *visionpb.BatchAnnotateImagesResponse
		err     error
		wantErr string
	}{
		{name: "request failure", err: errors.New("unavailable"), wantErr: "vision API request failed"},
		{
			name: "per-image error",
			resp: &visionpb.BatchAnnotateImagesResponse{
				Responses: []*visionpb.AnnotateImageResponse{{Error: &status.Status{Message: "bad image"}}},
			},
			wantErr: "vision API error: bad image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			model := loadModel(t, &mockAnnotator{
				annotateFunc: func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
					return tt.resp, tt.err
				},
			})

			poses, err := model.EstimateMultiplePoses(context.Background(), source(), entity.InferenceConfig{MaxDetections: 1})
			require.Error(t, err)
			assert.Nil(t, poses)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestModel_EstimateMultiplePoses_EmptyResponse(t *testing.T) {
	t.Parallel()

	model := loadModel(t, &mockAnnotator{
		annotateFunc: func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return &visionpb.BatchAnnotateImagesResponse{}, nil
		},
	})

	poses, err := model.EstimateMultiplePoses(context.Background(), source(), entity.InferenceConfig{MaxDetections: 1})
	require.NoError(t, err)
	assert.Empty(t, poses)
}

func TestLoader_Load_ClientError(t *testing.T) {
	t.Parallel()

	loader := NewLoaderWithFactory(func(ctx context.Context) (ImageAnnotator, error) {
		return nil, errors.New("no credentials")
	}, nil)

	model, err := loader.Load(context.Background(), entity.ModelConfig{})
	require.Error(t, err)
	assert.Nil(t, model)
	assert.Contains(t, err.Error(), "failed to create vision client")
}
