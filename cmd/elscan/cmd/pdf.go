package cmd

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/elscan/internal/config"
	"github.com/MeKo-Tech/elscan/internal/pipeline"
)

func newPDFCommand(a *app) *cobra.Command {
	var (
		detailed     bool
		showProgress bool
	)

	cmd := &cobra.Command{
		Use:   "pdf <file>",
		Short: "Extract emergency lighting fixtures from a PDF drawing set",
		Long: `Rasterize a PDF drawing set, process its pages concurrently and classify
all fixtures found in the document.

Page text comes from Tesseract (--ocr tesseract), from the PDF text layer
(--ocr vector) or is skipped (--ocr none). Without Tesseract the text layer
is used automatically.

Examples:
  elscan pdf drawings.pdf
  elscan pdf drawings.pdf --pages 1-3,7 --format text
  elscan pdf secured.pdf --password secret --overlay-dir overlays`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			cfg := a.cfg
			logger := a.logger.With("command", "pdf", "file", filepath.Base(path))

			if !strings.EqualFold(filepath.Ext(path), ".pdf") {
				return fmt.Errorf("%s is not a PDF file", path)
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("cannot read %s: %w", path, err)
			}

			var progress pipeline.ProgressCallback
			if showProgress {
				progress = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "")
			}
			p, reader, err := newDocumentPipeline(cfg, logger, progress)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			pages, err := reader.Pages(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("failed to rasterize %s: %w", path, err)
			}
			doc, err := p.ProcessDocument(cmd.Context(), pages)
			if err != nil {
				return err
			}

			if dir := cfg.Output.OverlayDir; dir != "" {
				if err := writePDFOverlays(cfg, dir, path, doc, pages); err != nil {
					return err
				}
			}

			out, err := renderResult(doc, cfg.Output.Format, detailed)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), cfg.Output.File, out)
		},
	}

	flags := cmd.Flags()
	bindings := addExtractionFlags(flags)
	def := config.DefaultConfig()
	flags.String("pages", "", "page selection, e.g. 1-3,5 (default all pages)")
	flags.Float64("zoom", def.PDF.Zoom, "rasterization zoom factor")
	flags.String("password", "", "password for encrypted PDFs")
	flags.BoolVar(&detailed, "details", false, "include per-page results in JSON output")
	flags.BoolVar(&showProgress, "progress", false, "show page progress on stderr")
	bindings["pages"] = "pdf.pages"
	bindings["zoom"] = "pdf.zoom"
	bindings["password"] = "pdf.password"
	a.bind(cmd, bindings)
	return cmd
}

func writePDFOverlays(cfg *config.Config, dir, path string, doc *pipeline.DocumentResult, pages []pipeline.Page) error {
	images := make(map[int]image.Image, len(pages))
	for _, pg := range pages {
		images[pg.Number] = pg.Image
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	_, err := writeOverlays(dir, doc, images, cfg.RenderOptions(), func(page int) string {
		return fmt.Sprintf("%s_page%03d_overlay.png", base, page)
	})
	return err
}
