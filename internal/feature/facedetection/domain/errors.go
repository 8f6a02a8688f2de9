// Package domain defines domain-level errors for the facedetection feature.
package domain

import "errors"

var (
	// ErrInvalidImage indicates that the input could not be resolved or decoded as an image.
	ErrInvalidImage = errors.New("invalid image")

	// ErrMissingKeypoint indicates that a pose estimate lacks a landmark the face box needs.
	ErrMissingKeypoint = errors.New("pose estimate is missing a required keypoint")

	// ErrDegenerateRegion indicates a crop region whose width or height truncates to zero.
	ErrDegenerateRegion = errors.New("crop region has zero width or height")

	// ErrRegionTooLarge indicates a crop region whose pixel area exceeds the surface limit.
	ErrRegionTooLarge = errors.New("crop region is too large")
)
