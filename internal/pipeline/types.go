package pipeline

import (
	"context"
	"image"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/ocr"
	"github.com/MeKo-Tech/elscan/internal/reference"
)

// Page is one rasterized page of a document. Number is 1-based. When Blocks
// is nil the pipeline's OCR engine supplies the text; an empty non-nil slice
// means the page has no text.
type Page struct {
	Number int
	Image  image.Image
	Blocks []ocr.TextBlock
}

// PageResult is the per-page output before classification.
type PageResult struct {
	PageNumber int                   `json:"page_number"`
	Width      int                   `json:"width"`
	Height     int                   `json:"height"`
	Fixtures   []association.Fixture `json:"fixtures"`
	References []reference.Row       `json:"references"`
	Symbols    []reference.Symbol    `json:"emergency_symbols"`
	TextBlocks int                   `json:"text_blocks"`
	// TextDensity is keyed by fixture type; see association.Associator.Density.
	TextDensity map[association.FixtureType]association.TextDensity `json:"text_density"`
	Processing  struct {
		OCRNs       int64 `json:"ocr_ns"`
		DetectionNs int64 `json:"detection_ns"`
		TotalNs     int64 `json:"total_ns"`
	} `json:"processing"`
}

// DocumentResult is the merged, classified output for a whole document.
// Pages, Fixtures and References are in page order.
type DocumentResult struct {
	Classification classifier.Result     `json:"classification"`
	Pages          []PageResult          `json:"pages"`
	Fixtures       []association.Fixture `json:"fixtures"`
	References     []reference.Row       `json:"references"`
	Stats          association.Stats     `json:"association_stats"`
	Processing     struct {
		ClassificationNs int64 `json:"classification_ns"`
		TotalNs          int64 `json:"total_ns"`
	} `json:"processing"`
}

// Rasterizer turns a document file into pages in page order.
type Rasterizer interface {
	Pages(ctx context.Context, path string) ([]Page, error)
}
