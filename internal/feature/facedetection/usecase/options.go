package usecase

import (
	"github.com/go-playground/validator/v10"

	"facecrop_backend/internal/feature/facedetection/domain/entity"
)

const (
	accuracyRule = "gte=0,lt=1"
	maxFacesRule = "gte=0"
)

var validate = validator.New()

// ResolveOptions は上書き値を既定値にマージして確定済みオプションを返します。
// 範囲外の上書き値はエラーにせず黙って無視します（呼び出し元からは区別できません）。
func ResolveOptions(o entity.OptionOverrides) entity.DetectionOptions {
	opts := entity.DefaultDetectionOptions()
	if o.Accuracy != nil && validate.Var(*o.Accuracy, accuracyRule) == nil {
		opts.Accuracy = *o.Accuracy
	}
	if o.MaxFaces != nil && validate.Var(*o.MaxFaces, maxFacesRule) == nil {
		opts.MaxFaces = *o.MaxFaces
	}
	return opts
}
