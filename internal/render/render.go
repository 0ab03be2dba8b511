// Package render draws detected fixtures over page images.
package render

import (
	"image"
	"image/color"
	"image/draw"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

// typeOrder fixes the palette slot of every fixture type.
var typeOrder = []association.FixtureType{
	association.TypeRecessedLED,
	association.TypeWallpack,
	association.TypeEmergencyExit,
	association.TypeEmergencyLight,
	association.TypePhotocell,
	association.TypeUnknown,
}

var typePalette = Palette(len(typeOrder))

// Palette returns n colors evenly spaced in HCL hue with fixed chroma and
// lightness, so neighboring entries stay distinguishable.
func Palette(n int) []color.Color {
	out := make([]color.Color, 0, max(n, 0))
	for i := range max(n, 0) {
		h := float64(i) * 360 / float64(n)
		out = append(out, colorful.Hcl(h, 0.9, 0.55).Clamped())
	}
	return out
}

// TypeColor returns the overlay color for a fixture type.
func TypeColor(t association.FixtureType) color.Color {
	for i, k := range typeOrder {
		if k == t {
			return typePalette[i]
		}
	}
	return typePalette[len(typePalette)-1]
}

// Options controls overlay drawing.
type Options struct {
	Thickness int
	Labels    bool
}

// DefaultOptions draws 2 px boxes with labels.
func DefaultOptions() Options { return Options{Thickness: 2, Labels: true} }

// Overlay returns an RGBA copy of img with every fixture box drawn in its
// type color and labeled with its primary symbol (or type). A nil image
// yields nil.
func Overlay(img image.Image, fixtures []association.Fixture, opts Options) *image.RGBA {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	thickness := max(1, opts.Thickness)
	for _, f := range fixtures {
		if !f.Box.Valid() {
			continue
		}
		rect := f.Box.ToRect(dst.Bounds())
		if rect.Empty() {
			continue
		}
		col := TypeColor(f.Type)
		utils.DrawRect(dst, rect, col, thickness)
		if opts.Labels {
			label := f.PrimarySymbol
			if label == "" {
				label = string(f.Type)
			}
			drawLabel(dst, label, rect, col)
		}
	}
	return dst
}

// drawLabel writes text on a filled tag just above rect, or inside its top
// edge when there is no room above.
func drawLabel(dst *image.RGBA, text string, rect image.Rectangle, bg color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	top := rect.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = rect.Min.Y
	}
	tag := image.Rect(rect.Min.X, top, rect.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, tag, &image.Uniform{C: bg}, image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(rect.Min.X+2, top+face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(text)
}
