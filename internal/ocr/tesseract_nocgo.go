//go:build !cgo

package ocr

import (
	"context"
	"image"
)

// Tesseract is unavailable in builds without cgo.
type Tesseract struct{}

// NewTesseract always fails without cgo.
func NewTesseract(Config) (*Tesseract, error) {
	return nil, ErrUnavailable
}

// ExtractText implements Engine.
func (*Tesseract) ExtractText(context.Context, image.Image) ([]TextBlock, error) {
	return nil, ErrUnavailable
}
