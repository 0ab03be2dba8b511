package pdf

import (
	"path/filepath"
	"testing"

	"github.com/dslipak/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/elscan/internal/utils"
)

func glyphs(s string, x, y, size float64) []pdf.Text {
	out := make([]pdf.Text, 0, len(s))
	for _, r := range s {
		out = append(out, pdf.Text{FontSize: size, X: x, Y: y, W: size / 2, S: string(r)})
		x += size / 2
	}
	return out
}

func TestGroupWords_SplitsOnSpacesAndLines(t *testing.T) {
	box := [4]float64{0, 0, 600, 800}
	var texts []pdf.Text
	// second line first: output is ordered top to bottom
	texts = append(texts, glyphs("EXIT", 100, 680, 10)...)
	texts = append(texts, glyphs("EL1 A2E", 100, 700, 10)...)

	blocks := groupWords(texts, box, 1)
	require.Len(t, blocks, 3)
	assert.Equal(t, "EL1", blocks[0].Text)
	assert.Equal(t, "A2E", blocks[1].Text)
	assert.Equal(t, "EXIT", blocks[2].Text)

	assert.Equal(t, utils.NewBox(100, 90, 115, 100), blocks[0].Box)
	assert.Equal(t, utils.NewBox(120, 90, 135, 100), blocks[1].Box)
	for _, b := range blocks {
		assert.InDelta(t, 1.0, b.Confidence, 1e-9)
	}
}

func TestGroupWords_GapSplitsWord(t *testing.T) {
	texts := append(glyphs("EL", 0, 100, 12), glyphs("12", 30, 100, 12)...)
	blocks := groupWords(texts, [4]float64{0, 0, 200, 200}, 1)
	require.Len(t, blocks, 2)
	assert.Equal(t, "EL", blocks[0].Text)
	assert.Equal(t, "12", blocks[1].Text)
}

func TestGroupWords_Zoom(t *testing.T) {
	box := [4]float64{10, 20, 110, 220}
	blocks := groupWords(glyphs("AB", 20, 100, 10), box, 2)
	require.Len(t, blocks, 1)
	// x: (20-10)*2 .. (30-10)*2, y: (220-110)*2 .. (220-100)*2
	assert.Equal(t, utils.NewBox(20, 220, 40, 240), blocks[0].Box)
}

func TestGroupWords_Empty(t *testing.T) {
	blocks := groupWords(nil, letter, 2)
	assert.NotNil(t, blocks)
	assert.Empty(t, blocks)

	blocks = groupWords([]pdf.Text{{S: " "}, {S: ""}}, letter, 2)
	assert.Empty(t, blocks)
}

func TestVectorText_Errors(t *testing.T) {
	v := NewVectorText(0)
	assert.InDelta(t, 2.0, v.Zoom, 1e-9)

	_, err := v.PageText(filepath.Join(t.TempDir(), "missing.pdf"), 1)
	require.Error(t, err)
	require.Error(t, v.Attach(filepath.Join(t.TempDir(), "missing.pdf"), nil))
}
