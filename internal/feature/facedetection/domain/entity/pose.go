// Package entity はfacedetectionフィーチャーのドメインモデルを定義します。
package entity

// キーポイントの部位名（posenetの命名に合わせています）。
const (
	PartNose     = "nose"
	PartLeftEye  = "leftEye"
	PartRightEye = "rightEye"
	PartLeftEar  = "leftEar"
	PartRightEar = "rightEar"
)

// Point は画像上のピクセル座標です。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Keypoint は名前付きの解剖学的ランドマークです。
type Keypoint struct {
	Part     string  `json:"part"`
	Score    float64 `json:"score"`
	Position Point   `json:"position"`
}

// PoseEstimate は姿勢推定モデルが返す1人分の推定結果です。
// 外部モデルが生成するもので、このコードでは変更しません。
type PoseEstimate struct {
	Score     float64    `json:"score"`
	Keypoints []Keypoint `json:"keypoints"`
}

// Find は指定した部位のキーポイントを返します。同名の部位が複数ある場合は最後のものを返します。
func (p PoseEstimate) Find(part string) (Point, bool) {
	var (
		pos   Point
		found bool
	)
	for _, kp := range p.Keypoints {
		if kp.Part == part {
			pos = kp.Position
			found = true
		}
	}
	return pos, found
}
