package entity

import "fmt"

const (
	// DefaultAccuracy は既定の信頼度しきい値です。
	DefaultAccuracy = 0.2
	// DefaultMaxFaces は既定の最大顔数です。
	DefaultMaxFaces = 10
)

// DetectionOptions は1回の検出に使う確定済みオプションです。
type DetectionOptions struct {
	Accuracy float64 // [0, 1)
	MaxFaces int     // >= 0
}

// DefaultDetectionOptions は既定値のオプションを返します。
func DefaultDetectionOptions() DetectionOptions {
	return DetectionOptions{Accuracy: DefaultAccuracy, MaxFaces: DefaultMaxFaces}
}

// OptionOverrides は呼び出し元が指定する部分的な上書きです。nil は未指定を表します。
type OptionOverrides struct {
	Accuracy *float64
	MaxFaces *int
}

// Resolution はモデルの入力解像度です。
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String は "WxH" 形式の文字列を返します。
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ModelConfig は姿勢推定モデルの読み込み設定です。
type ModelConfig struct {
	Architecture    string
	OutputStride    int
	InputResolution Resolution
}

// Key はモデル設定を一意に表す文字列を返します。キャッシュキーに使います。
func (c ModelConfig) Key() string {
	return fmt.Sprintf("%s:%d:%s", c.Architecture, c.OutputStride, c.InputResolution)
}

// InferenceConfig は推論1回分のパラメータです。
type InferenceConfig struct {
	MaxDetections  int
	FlipHorizontal bool
}
