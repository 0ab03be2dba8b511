// Package ocr defines positioned text blocks and the engines that produce them.
//
// Engines return word-level blocks in page pixel coordinates. The Tesseract
// engine requires cgo and the Tesseract/Leptonica libraries; without cgo
// NewTesseract reports ErrUnavailable and callers fall back to vector text or
// static blocks.
package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/MeKo-Tech/elscan/internal/utils"
)

// ErrUnavailable is returned when an engine cannot run in this build or environment.
var ErrUnavailable = errors.New("ocr engine unavailable")

// TextBlock is a piece of recognized text with its bounding box.
type TextBlock struct {
	Text       string    `json:"text"`
	Box        utils.Box `json:"bbox"`
	Confidence float64   `json:"confidence"`
}

// Engine extracts positioned text from a page image.
type Engine interface {
	ExtractText(ctx context.Context, img image.Image) ([]TextBlock, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, img image.Image) ([]TextBlock, error)

// ExtractText implements Engine.
func (f EngineFunc) ExtractText(ctx context.Context, img image.Image) ([]TextBlock, error) {
	return f(ctx, img)
}

// Config selects and tunes the OCR engine.
type Config struct {
	Engine        string  `mapstructure:"engine" yaml:"engine" json:"engine"`
	Language      string  `mapstructure:"language" yaml:"language" json:"language"`
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	PageSegMode   int     `mapstructure:"page_seg_mode" yaml:"page_seg_mode" json:"page_seg_mode"`
	TessdataDir   string  `mapstructure:"tessdata_dir" yaml:"tessdata_dir" json:"tessdata_dir"`
}

// Engine names accepted in Config.Engine.
const (
	EngineTesseract = "tesseract"
	EngineVector    = "vector"
	EngineNone      = "none"
)

// DefaultConfig returns Tesseract with English and a raw confidence floor of 30.
func DefaultConfig() Config {
	return Config{Engine: EngineTesseract, Language: "eng", MinConfidence: 30, PageSegMode: 3}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineTesseract, EngineVector, EngineNone:
	default:
		return fmt.Errorf("unknown ocr engine %q", c.Engine)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("min confidence must be in [0, 100], got %v", c.MinConfidence)
	}
	if c.PageSegMode < 0 || c.PageSegMode > 13 {
		return fmt.Errorf("page segmentation mode must be in [0, 13], got %d", c.PageSegMode)
	}
	return nil
}

// Static returns the same blocks for every page. Useful when text comes from
// an external source such as a JSON sidecar file.
type Static []TextBlock

// ExtractText implements Engine.
func (s Static) ExtractText(context.Context, image.Image) ([]TextBlock, error) {
	return append([]TextBlock(nil), s...), nil
}

// None is an engine that never finds text.
var None = EngineFunc(func(context.Context, image.Image) ([]TextBlock, error) {
	return []TextBlock{}, nil
})

// LoadBlocks reads a JSON array of text blocks ({"text", "bbox": [x1,y1,x2,y2], "confidence"}).
// Entries with a malformed bbox are dropped; blank text is kept for the caller to filter.
func LoadBlocks(path string) ([]TextBlock, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-provided sidecar path
	if err != nil {
		return nil, fmt.Errorf("failed to read text blocks: %w", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse text blocks: %w", err)
	}
	blocks := make([]TextBlock, 0, len(raw))
	for _, r := range raw {
		var b TextBlock
		if err := json.Unmarshal(r, &b); err != nil || !b.Box.Valid() {
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// FullText joins block texts with single spaces.
func FullText(blocks []TextBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
