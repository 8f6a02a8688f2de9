package usecase_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"facecrop_backend/internal/feature/facedetection/domain/entity"
	"facecrop_backend/internal/feature/facedetection/usecase"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func TestResolveOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       entity.OptionOverrides
		expected entity.DetectionOptions
	}{
		{
			name:     "no overrides use defaults",
			in:       entity.OptionOverrides{},
			expected: entity.DetectionOptions{Accuracy: 0.2, MaxFaces: 10},
		},
		{
			name:     "valid overrides applied",
			in:       entity.OptionOverrides{Accuracy: f64(0.9), MaxFaces: intp(1)},
			expected: entity.DetectionOptions{Accuracy: 0.9, MaxFaces: 1},
		},
		{
			name:     "zero values are valid",
			in:       entity.OptionOverrides{Accuracy: f64(0), MaxFaces: intp(0)},
			expected: entity.DetectionOptions{Accuracy: 0, MaxFaces: 0},
		},
		{
			name:     "accuracy above range falls back",
			in:       entity.OptionOverrides{Accuracy: f64(1.5)},
			expected: entity.DetectionOptions{Accuracy: 0.2, MaxFaces: 10},
		},
		{
			name:     "accuracy of exactly one falls back",
			in:       entity.OptionOverrides{Accuracy: f64(1)},
			expected: entity.DetectionOptions{Accuracy: 0.2, MaxFaces: 10},
		},
		{
			name:     "negative accuracy falls back",
			in:       entity.OptionOverrides{Accuracy: f64(-0.1)},
			expected: entity.DetectionOptions{Accuracy: 0.2, MaxFaces: 10},
		},
		{
			name:     "NaN accuracy falls back",
			in:       entity.OptionOverrides{Accuracy: f64(math.NaN())},
			expected: entity.DetectionOptions{Accuracy: 0.2, MaxFaces: 10},
		},
		{
			name:     "negative maxFaces falls back independently",
			in:       entity.OptionOverrides{Accuracy: f64(0.5), MaxFaces: intp(-1)},
			expected: entity.DetectionOptions{Accuracy: 0.5, MaxFaces: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := usecase.ResolveOptions(tt.in)

			assert.Equal(t, tt.expected, got)
			assert.GreaterOrEqual(t, got.Accuracy, 0.0)
			assert.Less(t, got.Accuracy, 1.0)
			assert.GreaterOrEqual(t, got.MaxFaces, 0)
		})
	}
}
