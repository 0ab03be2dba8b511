package cmd

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/elscan/internal/batch"
	"github.com/MeKo-Tech/elscan/internal/ocr"
	"github.com/MeKo-Tech/elscan/internal/pipeline"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

func newImageCommand(a *app) *cobra.Command {
	var (
		textFile string
		detailed bool
		discover batch.Options
	)

	cmd := &cobra.Command{
		Use:   "image <file|dir>...",
		Short: "Extract emergency lighting fixtures from blueprint images",
		Long: `Detect, associate and classify emergency lighting fixtures on one or
more page images. The images are treated as consecutive pages of one
drawing set and classified together. Directories contribute their images in
name order.

Supported formats: ` + strings.Join(utils.SupportedImageExtensions, ", ") + `

Examples:
  elscan image level1.png
  elscan image level1.png --text level1.words.json --format text
  elscan image p1.png p2.png --overlay-dir overlays --classifier fallback
  elscan image sheets/ --recursive --exclude '*_overlay.png'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			logger := a.logger.With("command", "image")

			files, err := batch.Discover(args, discover)
			if err != nil {
				return err
			}
			if textFile != "" && len(files) != 1 {
				return errors.New("--text can only be used with a single image")
			}

			pages := make([]pipeline.Page, 0, len(files))
			images := make(map[int]image.Image, len(files))
			for i, path := range files {
				img, meta, err := utils.LoadImage(path)
				if err != nil {
					return fmt.Errorf("failed to load %s: %w", path, err)
				}
				logger.Debug("Image loaded", "path", path, "width", meta.Width, "height", meta.Height, "format", meta.Format)
				page := pipeline.Page{Number: i + 1, Image: img}
				if textFile != "" {
					if page.Blocks, err = ocr.LoadBlocks(textFile); err != nil {
						return fmt.Errorf("failed to load text blocks: %w", err)
					}
				}
				pages = append(pages, page)
				images[page.Number] = img
			}

			engine, err := newOCREngine(cfg.OCR)
			switch {
			case err != nil:
				logger.Warn("Tesseract unavailable, continuing without text", "error", err)
			case cfg.OCR.Engine == ocr.EngineVector && textFile == "":
				logger.Warn("Vector text needs a PDF, continuing without text")
			}

			p, err := pipeline.NewBuilder().
				WithConfig(cfg.ToPipelineConfig()).
				WithOCR(engine).
				WithLogger(logger).
				Build()
			if err != nil {
				return fmt.Errorf("failed to build pipeline: %w", err)
			}
			defer func() { _ = p.Close() }()

			doc, err := p.ProcessDocument(cmd.Context(), pages)
			if err != nil {
				return err
			}

			if dir := cfg.Output.OverlayDir; dir != "" {
				written, err := writeOverlays(dir, doc, images, cfg.RenderOptions(), func(page int) string {
					base := strings.TrimSuffix(filepath.Base(files[page-1]), filepath.Ext(files[page-1]))
					return base + "_overlay.png"
				})
				if err != nil {
					return err
				}
				logger.Info("Overlays written", "dir", dir, "files", len(written))
			}

			out, err := renderResult(doc, cfg.Output.Format, detailed)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), cfg.Output.File, out)
		},
	}

	cmd.Flags().StringVar(&textFile, "text", "", "JSON file of text blocks to use instead of OCR")
	cmd.Flags().BoolVar(&detailed, "details", false, "include per-page results in JSON output")
	cmd.Flags().BoolVarP(&discover.Recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().StringSliceVar(&discover.Include, "include", nil, "only use directory images matching these patterns")
	cmd.Flags().StringSliceVar(&discover.Exclude, "exclude", nil, "skip images matching these patterns")
	a.bind(cmd, addExtractionFlags(cmd.Flags()))
	return cmd
}
