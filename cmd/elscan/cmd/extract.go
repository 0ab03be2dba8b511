package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/elscan/internal/config"
	"github.com/MeKo-Tech/elscan/internal/ocr"
	"github.com/MeKo-Tech/elscan/internal/pdf"
	"github.com/MeKo-Tech/elscan/internal/pipeline"
	"github.com/MeKo-Tech/elscan/internal/render"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

// documentReader rasterizes PDFs and, when vector is set, fills page text
// from the PDF text layer.
type documentReader struct {
	raster *pdf.Rasterizer
	vector *pdf.VectorText
	logger *slog.Logger
}

// Pages implements pipeline.Rasterizer.
func (d documentReader) Pages(ctx context.Context, path string) ([]pipeline.Page, error) {
	pages, err := d.raster.Pages(ctx, path)
	if err != nil {
		return nil, err
	}
	if d.vector != nil {
		if err := d.vector.Attach(path, pages); err != nil {
			d.logger.Warn("PDF text layer unavailable", "path", path, "error", err)
		}
	}
	return pages, nil
}

// newOCREngine returns the engine for page images. Only tesseract reads
// pixels; every other engine leaves text to the caller.
func newOCREngine(cfg ocr.Config) (ocr.Engine, error) {
	if cfg.Engine != ocr.EngineTesseract {
		return ocr.None, nil
	}
	t, err := ocr.NewTesseract(cfg)
	if err != nil {
		return ocr.None, err
	}
	return t, nil
}

// newDocumentPipeline builds the pipeline and PDF reader for cfg. The PDF
// text layer is used for ocr.engine=vector and whenever Tesseract is unavailable.
func newDocumentPipeline(cfg *config.Config, logger *slog.Logger, progress pipeline.ProgressCallback) (*pipeline.Pipeline, documentReader, error) {
	engine, err := newOCREngine(cfg.OCR)
	if err != nil {
		logger.Warn("Tesseract unavailable, using the PDF text layer", "error", err)
	}
	reader := documentReader{raster: pdf.NewRasterizer(cfg.PDF, logger), logger: logger}
	if cfg.OCR.Engine == ocr.EngineVector || err != nil {
		v := pdf.NewVectorText(cfg.PDF.Zoom)
		reader.vector = &v
	}

	b := pipeline.NewBuilder().
		WithConfig(cfg.ToPipelineConfig()).
		WithOCR(engine).
		WithLogger(logger)
	if progress != nil {
		b = b.WithProgressCallback(progress)
	}
	p, err := b.Build()
	if err != nil {
		return nil, documentReader{}, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return p, reader, nil
}

// renderResult formats doc for output. Detailed JSON includes per-page results.
func renderResult(doc *pipeline.DocumentResult, format string, detailed bool) (string, error) {
	if detailed && (format == "" || format == "json") {
		return pipeline.ToJSONDocument(doc)
	}
	return pipeline.Format(doc.Classification, format)
}

// writeOutput writes content to file, or to w when file is empty.
func writeOutput(w io.Writer, file, content string) error {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if file == "" {
		_, err := io.WriteString(w, content)
		return err
	}
	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// writeOverlays saves one overlay PNG per processed page. name returns the
// file name for a page number.
func writeOverlays(dir string, doc *pipeline.DocumentResult, images map[int]image.Image,
	opts render.Options, name func(page int) string,
) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create overlay directory: %w", err)
	}
	var written []string
	for _, page := range doc.Pages {
		img, ok := images[page.PageNumber]
		if !ok {
			continue
		}
		path := filepath.Join(dir, name(page.PageNumber))
		if err := utils.SavePNG(path, render.Overlay(img, page.Fixtures, opts)); err != nil {
			return written, fmt.Errorf("failed to save overlay for page %d: %w", page.PageNumber, err)
		}
		written = append(written, path)
	}
	return written, nil
}
