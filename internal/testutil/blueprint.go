// Package testutil builds synthetic blueprint pages for tests.
package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Symbol is a filled dark rectangle with an optional label drawn below it.
type Symbol struct {
	Rect  image.Rectangle
	Label string
	Ink   color.Color // defaults to black
}

// BlueprintConfig describes a synthetic page.
type BlueprintConfig struct {
	Width      int
	Height     int
	Background color.Color
	Symbols    []Symbol
	Notes      []Note
}

// Note is free text drawn at a baseline position.
type Note struct {
	Text string
	At   image.Point
}

// DefaultBlueprintConfig returns an empty white 800x600 page.
func DefaultBlueprintConfig() BlueprintConfig {
	return BlueprintConfig{Width: 800, Height: 600, Background: color.White}
}

// Blueprint renders cfg into an RGBA image.
func Blueprint(cfg BlueprintConfig) *image.RGBA {
	if cfg.Background == nil {
		cfg.Background = color.White
	}
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: cfg.Background}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	for _, s := range cfg.Symbols {
		ink := s.Ink
		if ink == nil {
			ink = color.Black
		}
		draw.Draw(img, s.Rect, &image.Uniform{C: ink}, image.Point{}, draw.Src)
		if s.Label != "" {
			drawText(img, face, s.Label, image.Pt(s.Rect.Min.X, s.Rect.Max.Y+face.Metrics().Height.Ceil()+4))
		}
	}
	for _, n := range cfg.Notes {
		drawText(img, face, n.Text, n.At)
	}
	return img
}

// SingleSymbolPage returns a w x h white page with one black rectangle.
func SingleSymbolPage(w, h int, r image.Rectangle) *image.RGBA {
	return Blueprint(BlueprintConfig{Width: w, Height: h, Symbols: []Symbol{{Rect: r}}})
}

func drawText(dst draw.Image, face font.Face, text string, at image.Point) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.Black), Face: face, Dot: fixed.P(at.X, at.Y)}
	d.DrawString(text)
}

// SaveImage writes img as PNG under dir and returns the path.
func SaveImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return path
}

// GrayAt returns the luminance of img at (x, y).
func GrayAt(img image.Image, x, y int) uint8 {
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}
