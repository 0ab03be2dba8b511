package pdf

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/MeKo-Tech/elscan/internal/ocr"
	"github.com/MeKo-Tech/elscan/internal/pipeline"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

// letter is the page size assumed when a page has no usable MediaBox.
var letter = [4]float64{0, 0, 612, 792}

// VectorText reads positioned words from the text layer of a vector PDF and
// maps them into the pixel space of pages rasterized with the same zoom.
type VectorText struct {
	Zoom float64
}

// NewVectorText returns a VectorText for the given zoom (2.0 when not positive).
func NewVectorText(zoom float64) VectorText {
	if zoom <= 0 {
		zoom = DefaultConfig().Zoom
	}
	return VectorText{Zoom: zoom}
}

// PageText returns the words of a 1-based page as text blocks with
// confidence 1.0. A page without a text layer yields an empty slice.
func (v VectorText) PageText(path string, page int) ([]ocr.TextBlock, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %q: %w", path, err)
	}
	if page < 1 || page > r.NumPage() {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, r.NumPage())
	}
	return v.pageText(r.Page(page))
}

// Attach fills the text blocks of every page that has none from the text
// layer of path. Pages that fail to parse are left for the OCR engine.
func (v VectorText) Attach(path string, pages []pipeline.Page) error {
	r, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open PDF %q: %w", path, err)
	}
	for i := range pages {
		if pages[i].Blocks != nil || pages[i].Number < 1 || pages[i].Number > r.NumPage() {
			continue
		}
		blocks, err := v.pageText(r.Page(pages[i].Number))
		if err != nil {
			continue
		}
		pages[i].Blocks = blocks
	}
	return nil
}

func (v VectorText) pageText(page pdf.Page) (blocks []ocr.TextBlock, err error) {
	if page.V.IsNull() {
		return nil, fmt.Errorf("page is null")
	}
	defer func() {
		if r := recover(); r != nil {
			blocks, err = nil, fmt.Errorf("malformed page content: %v", r)
		}
	}()
	return groupWords(page.Content().Text, mediaBox(page), v.Zoom), nil
}

// mediaBox returns the page's MediaBox, looking through parent page nodes.
func mediaBox(page pdf.Page) (box [4]float64) {
	defer func() {
		if recover() != nil {
			box = letter
		}
	}()
	v := page.V
	for range 16 {
		if v.IsNull() {
			break
		}
		mb := v.Key("MediaBox")
		if mb.Kind() == pdf.Array && mb.Len() == 4 {
			for i := range 4 {
				box[i] = mb.Index(i).Float64()
			}
			if box[2] > box[0] && box[3] > box[1] {
				return box
			}
		}
		v = v.Key("Parent")
	}
	return letter
}

// groupWords joins glyph runs into words. Runs are ordered top to bottom by
// baseline and left to right; a word ends at whitespace, a baseline change of
// more than half the font size, or a horizontal gap wider than a third of it.
// Coordinates are flipped from PDF user space (origin bottom left) to image
// pixels (origin top left) and scaled by zoom.
func groupWords(texts []pdf.Text, box [4]float64, zoom float64) []ocr.TextBlock {
	runs := make([]pdf.Text, 0, len(texts))
	for _, t := range texts {
		if t.S != "" {
			runs = append(runs, t)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if math.Abs(runs[i].Y-runs[j].Y) > 0.5 {
			return runs[i].Y > runs[j].Y
		}
		return runs[i].X < runs[j].X
	})

	blocks := []ocr.TextBlock{}
	var (
		word      strings.Builder
		x0, x1, y float64
		size      float64
		inWord    bool
	)
	flush := func() {
		if !inWord {
			return
		}
		text := strings.TrimSpace(word.String())
		if text != "" {
			top := box[3] - (y + size)
			bottom := box[3] - y
			blocks = append(blocks, ocr.TextBlock{
				Text:       text,
				Box:        utils.NewBox((x0-box[0])*zoom, top*zoom, (x1-box[0])*zoom, bottom*zoom),
				Confidence: 1.0,
			})
		}
		word.Reset()
		inWord = false
	}

	for _, t := range runs {
		if strings.TrimSpace(t.S) == "" {
			flush()
			continue
		}
		fs := t.FontSize
		if fs <= 0 {
			fs = 1
		}
		if inWord && (math.Abs(t.Y-y) > size/2 || t.X-x1 > size/3) {
			flush()
		}
		if !inWord {
			x0, x1, y, size = t.X, t.X, t.Y, fs
			inWord = true
		}
		word.WriteString(t.S)
		x1 = max(x1, t.X+t.W)
		size = max(size, fs)
	}
	flush()
	return blocks
}
