package usecase

import (
	"fmt"
	"sort"

	"facecrop_backend/internal/feature/facedetection/domain"
	"facecrop_backend/internal/feature/facedetection/domain/entity"
)

// ExtractLandmarks は推定結果から顔のランドマークを取り出します。
// 鼻と両耳のいずれかが無い場合は domain.ErrMissingKeypoint を返します。目は任意です。
func ExtractLandmarks(p entity.PoseEstimate) (entity.FaceLandmarks, error) {
	var lm entity.FaceLandmarks
	for _, req := range []struct {
		part string
		dst  *entity.Point
	}{
		{entity.PartNose, &lm.Nose},
		{entity.PartLeftEar, &lm.LeftEar},
		{entity.PartRightEar, &lm.RightEar},
	} {
		pos, ok := p.Find(req.part)
		if !ok {
			return entity.FaceLandmarks{}, fmt.Errorf("%w: %s", domain.ErrMissingKeypoint, req.part)
		}
		*req.dst = pos
	}
	lm.LeftEye, _ = p.Find(entity.PartLeftEye)
	lm.RightEye, _ = p.Find(entity.PartRightEye)
	return lm, nil
}

// FaceBox は鼻と両耳の位置から正方形の切り出し領域を計算します。
// nose.X == 0 や耳の左右が逆の場合の値もそのまま返します。
func FaceBox(lm entity.FaceLandmarks) entity.CropRegion {
	center := lm.Nose
	offcenter := 1 + ((lm.LeftEar.X-lm.RightEar.X)/2)/center.X
	earToEar := (lm.LeftEar.X - lm.RightEar.X) * offcenter
	return entity.CropRegion{
		X:    center.X - earToEar/2,
		Y:    center.Y - earToEar/2,
		Side: earToEar,
	}
}

// DeriveFaceBox はランドマーク抽出とボックス計算をまとめて行います。
func DeriveFaceBox(p entity.PoseEstimate) (entity.CropRegion, error) {
	lm, err := ExtractLandmarks(p)
	if err != nil {
		return entity.CropRegion{}, err
	}
	return FaceBox(lm), nil
}

// SelectPoses はスコア降順に並べ、しきい値を超えるものを最大 MaxFaces 件まで返します。
// 入力スライスは変更しません。
func SelectPoses(poses []entity.PoseEstimate, opts entity.DetectionOptions) []entity.PoseEstimate {
	sorted := make([]entity.PoseEstimate, len(poses))
	copy(sorted, poses)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	out := make([]entity.PoseEstimate, 0, min(len(sorted), opts.MaxFaces))
	for _, p := range sorted {
		if len(out) >= opts.MaxFaces {
			break
		}
		if p.Score > opts.Accuracy {
			out = append(out, p)
		}
	}
	return out
}
