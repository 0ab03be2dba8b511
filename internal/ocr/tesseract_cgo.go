//go:build cgo

package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/MeKo-Tech/elscan/internal/utils"
)

// Tesseract recognizes words with the native Tesseract library.
// A new client is created per call because gosseract clients are not safe
// for concurrent use.
type Tesseract struct {
	cfg Config
}

// NewTesseract verifies that Tesseract can be initialized with cfg.
func NewTesseract(cfg Config) (*Tesseract, error) {
	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()
	if err := configureClient(client, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &Tesseract{cfg: cfg}, nil
}

func configureClient(client *gosseract.Client, cfg Config) error {
	if cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataDir); err != nil {
			return fmt.Errorf("failed to set tessdata dir: %w", err)
		}
	}
	if cfg.Language != "" {
		if err := client.SetLanguage(cfg.Language); err != nil {
			return fmt.Errorf("failed to set language: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
		return fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	return nil
}

// ExtractText implements Engine. Words with raw confidence at or below
// MinConfidence are dropped; the kept confidence is scaled to [0, 1].
func (t *Tesseract) ExtractText(ctx context.Context, img image.Image) ([]TextBlock, error) {
	if err := utils.ValidateImage(img); err != nil {
		return nil, err
	}
	data, err := utils.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()
	if err := configureClient(client, t.cfg); err != nil {
		return nil, err
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	origin := img.Bounds().Min
	blocks := make([]TextBlock, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" || b.Confidence <= t.cfg.MinConfidence {
			continue
		}
		blocks = append(blocks, TextBlock{
			Text:       word,
			Box:        utils.BoxFromRect(b.Box.Add(origin)),
			Confidence: b.Confidence / 100,
		})
	}
	return blocks, nil
}
