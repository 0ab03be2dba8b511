// Package pdf turns blueprint PDFs into page images and positioned text.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/MeKo-Tech/elscan/internal/pipeline"
)

// ErrNoPages is returned when a document yields no page images.
var ErrNoPages = errors.New("pdf has no page images")

// Config controls rasterization.
type Config struct {
	// Zoom scales extracted page images; 2.0 doubles both dimensions.
	Zoom     float64 `mapstructure:"zoom" yaml:"zoom" json:"zoom"`
	Password string  `mapstructure:"password" yaml:"password,omitempty" json:"-"`
	// Pages selects pages, e.g. "1-3,5". Empty means all pages.
	Pages string `mapstructure:"pages" yaml:"pages" json:"pages"`
}

// DefaultConfig returns a zoom of 2.0 over all pages.
func DefaultConfig() Config {
	return Config{Zoom: 2.0}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Zoom <= 0 {
		return fmt.Errorf("zoom must be positive, got %v", c.Zoom)
	}
	if _, err := ParsePageRange(c.Pages); err != nil {
		return fmt.Errorf("invalid page range %q: %w", c.Pages, err)
	}
	return nil
}

// Rasterizer extracts one image per page from a PDF.
type Rasterizer struct {
	config Config
	logger *slog.Logger
}

// NewRasterizer creates a Rasterizer. A non-positive zoom falls back to 2.0.
func NewRasterizer(config Config, logger *slog.Logger) *Rasterizer {
	if config.Zoom <= 0 {
		config.Zoom = DefaultConfig().Zoom
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{config: config, logger: logger}
}

// Pages returns the selected pages of the document at path in page order.
// Each page carries the largest embedded image of that page scaled by the
// configured zoom, and nil Blocks so the pipeline runs its OCR engine.
func (r *Rasterizer) Pages(ctx context.Context, path string) ([]pipeline.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pageNumbers, err := ParsePageRange(r.config.Pages)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", r.config.Pages, err)
	}

	source, cleanup, err := r.open(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	tempDir, err := os.MkdirTemp("", "elscan-pages-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, n := range pageNumbers {
		selected = append(selected, strconv.Itoa(n))
	}
	if err := api.ExtractImagesFile(source, tempDir, selected, r.pdfcpuConfig()); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	images, err := collectLargestImages(tempDir, strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)))
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	if len(images) == 0 {
		return nil, ErrNoPages
	}

	numbers := make([]int, 0, len(images))
	for n := range images {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	pages := make([]pipeline.Page, 0, len(numbers))
	for _, n := range numbers {
		pages = append(pages, pipeline.Page{Number: n, Image: scale(images[n], r.config.Zoom)})
	}
	r.logger.Debug("Rasterized PDF", "path", path, "pages", len(pages), "zoom", r.config.Zoom)
	return pages, nil
}

// open returns the path to read from, decrypting to a temporary file when
// the document is encrypted and a password is configured.
func (r *Rasterizer) open(path string) (string, func(), error) {
	noop := func() {}
	if _, err := os.Stat(path); err != nil {
		return "", noop, fmt.Errorf("failed to open PDF: %w", err)
	}
	if r.config.Password == "" {
		return path, noop, nil
	}
	encrypted, err := IsEncrypted(path)
	if err != nil || !encrypted {
		return path, noop, nil //nolint:nilerr // extraction reports the real error
	}
	out, err := Decrypt(path, r.config.Password)
	if err != nil {
		return "", noop, err
	}
	return out, func() { _ = os.Remove(out) }, nil
}

func (r *Rasterizer) pdfcpuConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if r.config.Password != "" {
		conf.UserPW = r.config.Password
		conf.OwnerPW = r.config.Password
	}
	return conf
}

// PageCount returns the number of pages in the document.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	return n, nil
}

func scale(img image.Image, zoom float64) image.Image {
	if zoom == 1 {
		return img
	}
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*zoom+0.5))
	h := max(1, int(float64(b.Dy())*zoom+0.5))
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// collectLargestImages walks dir and keeps the largest decodable image per page.
func collectLargestImages(dir, base string) (map[int]image.Image, error) {
	result := make(map[int]image.Image)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		page, err := parsePageFromFilename(info.Name(), base)
		if err != nil {
			return nil
		}
		img, err := imaging.Open(path)
		if err != nil {
			return nil
		}
		if prev, ok := result[page]; !ok || pixels(img) > pixels(prev) {
			result[page] = img
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func pixels(img image.Image) int {
	b := img.Bounds()
	return b.Dx() * b.Dy()
}

// parsePageFromFilename extracts the page number from an extracted image
// name. pdfcpu writes <base>_<page>_<name>.<ext>; page_<page>_... is also accepted.
func parsePageFromFilename(filename, base string) (int, error) {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	switch {
	case base != "" && strings.HasPrefix(name, base+"_"):
		name = strings.TrimPrefix(name, base+"_")
	case strings.HasPrefix(name, "page_"):
		name = strings.TrimPrefix(name, "page_")
	default:
		return 0, errors.New("not a page file")
	}
	num, _, _ := strings.Cut(name, "_")
	page, err := strconv.Atoi(num)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("invalid page number in %q", filename)
	}
	return page, nil
}

// ParsePageRange parses a selection such as "1-5" or "1,3,5-7". The result
// is sorted and free of duplicates; an empty string selects all pages (nil).
func ParsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}
	seen := make(map[int]bool)
	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		for _, p := range tokenPages {
			if !seen[p] {
				seen[p] = true
				pages = append(pages, p)
			}
		}
	}
	sort.Ints(pages)
	return pages, nil
}

// parseRangeToken parses either a single page ("3") or a range ("1-5").
func parseRangeToken(part string) ([]int, error) {
	if startStr, endStr, ok := strings.Cut(part, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(startStr))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", startStr)
		}
		end, err := strconv.Atoi(strings.TrimSpace(endStr))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", endStr)
		}
		if start < 1 {
			return nil, fmt.Errorf("page numbers start at 1, got %d", start)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	if page < 1 {
		return nil, fmt.Errorf("page numbers start at 1, got %d", page)
	}
	return []int{page}, nil
}
