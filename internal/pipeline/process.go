package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/detector"
	"github.com/MeKo-Tech/elscan/internal/ocr"
	"github.com/MeKo-Tech/elscan/internal/reference"
)

// Fixtures built from raw OCR symbol hits carry this sheet and method.
const (
	ocrSheet  = "OCR"
	ocrMethod = detector.Method("ocr_symbol")
)

// ProcessPage detects candidates on img and associates them with blocks.
// Every fixture is labeled with the page's sheet name. It never fails; an
// unusable image yields no fixtures.
func (p *Pipeline) ProcessPage(ctx context.Context, img image.Image, blocks []ocr.TextBlock, page int) []association.Fixture {
	candidates := p.Detector.Detect(ctx, img)
	fixtures := p.Associator.Associate(candidates, blocks)
	sheet := reference.SheetName(page)
	for i := range fixtures {
		fixtures[i].SourceSheet = sheet
	}
	return fixtures
}

// Classify runs the configured classifier. The returned result always
// satisfies the count invariant for fixtures.
func (p *Pipeline) Classify(ctx context.Context, fixtures []association.Fixture, refs []reference.Row) classifier.Result {
	result, err := p.Classifier.Classify(ctx, fixtures, refs)
	if err != nil {
		// Only a custom classifier without a fallback can end up here.
		p.logger.Warn("Classifier failed, using fallback grouping", "error", err)
		result, _ = classifier.Fallback{}.Classify(ctx, fixtures, refs)
	}
	return result
}

// processPage runs OCR (when needed), detection, association and reference
// extraction for a single page.
func (p *Pipeline) processPage(ctx context.Context, page Page) (PageResult, error) {
	start := time.Now()
	res := PageResult{PageNumber: page.Number}
	if page.Image != nil {
		b := page.Image.Bounds()
		res.Width, res.Height = b.Dx(), b.Dy()
	}

	blocks := page.Blocks
	if blocks == nil {
		ocrStart := time.Now()
		var err error
		blocks, err = p.OCR.ExtractText(ctx, page.Image)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			p.logger.Warn("Text extraction failed, continuing without text",
				"page", page.Number, "error", err)
			blocks = []ocr.TextBlock{}
		}
		res.Processing.OCRNs = time.Since(ocrStart).Nanoseconds()
	}
	res.TextBlocks = len(blocks)

	detStart := time.Now()
	res.Fixtures = p.ProcessPage(ctx, page.Image, blocks, page.Number)
	res.Processing.DetectionNs = time.Since(detStart).Nanoseconds()
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("page %d: %w", page.Number, err)
	}

	res.TextDensity = p.Associator.Density(res.Fixtures, blocks)
	res.References = reference.Extract(blocks, page.Number)
	res.Symbols = reference.EmergencySymbols(blocks)
	res.Processing.TotalNs = time.Since(start).Nanoseconds()

	pagesProcessed.Inc()
	pageDuration.Observe(time.Since(start).Seconds())
	fixturesPerPage.Observe(float64(len(res.Fixtures)))
	p.logger.Debug("Page processed",
		"page", page.Number,
		"fixtures", len(res.Fixtures),
		"text_blocks", len(blocks),
		"references", len(res.References),
		"duration", time.Since(start))
	return res, nil
}

// ocrSymbolFixtures turns raw OCR symbol hits into emergency light fixtures.
func ocrSymbolFixtures(symbols []reference.Symbol) []association.Fixture {
	out := make([]association.Fixture, 0, len(symbols))
	for _, s := range symbols {
		f := association.Fixture{
			TextNearby:    []string{s.Text},
			Symbols:       []string{s.Symbol},
			Type:          association.TypeEmergencyLight,
			Description:   association.Describe(association.TypeEmergencyLight),
			PrimarySymbol: s.Symbol,
			SourceSheet:   ocrSheet,
		}
		f.Method = ocrMethod
		f.Box = s.Box
		f.Confidence = s.Confidence
		f.Area = s.Box.Area()
		out = append(out, f)
	}
	return out
}
