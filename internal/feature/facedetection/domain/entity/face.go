package entity

import "image"

// FaceLandmarks は顔の切り出しに使うランドマークです。
// 目の位置は抽出しますが、ボックス計算には使いません。
type FaceLandmarks struct {
	Nose     Point
	LeftEar  Point
	RightEar Point
	LeftEye  Point
	RightEye Point
}

// CropRegion は (X, Y) を左上とする一辺 Side の正方形です。
// Side は負や非有限値になり得ます。解釈は描画サーフェス側に委ねます。
type CropRegion struct {
	X    float64
	Y    float64
	Side float64
}

// FaceResult は切り出した顔画像とスコアです。
type FaceResult struct {
	Score float64 // 姿勢推定の信頼度スコア
	Image string  // エンコード済み画像（data URL）
}

// ImageInput は読み込み可能な画像の参照、またはバイト列です。
// Data が空でなければ Data を優先します。
type ImageInput struct {
	Ref  string
	Data []byte
}

// SourceImage は姿勢推定モデルに渡すデコード済み画像です。
type SourceImage struct {
	Image *image.NRGBA
}

// Width は画像の幅を返します。
func (s SourceImage) Width() int { return s.Image.Bounds().Dx() }

// Height は画像の高さを返します。
func (s SourceImage) Height() int { return s.Image.Bounds().Dy() }
