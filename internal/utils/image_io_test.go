package utils

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedImage(t *testing.T) {
	cases := []struct {
		path string
		ok   bool
	}{
		{"a.jpg", true},
		{"b.JPEG", true},
		{"c.png", true},
		{"d.bmp", true},
		{"e.tiff", true},
		{"f.gif", false},
		{"g.pdf", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, IsSupportedImage(c.path), c.path)
	}
}

func TestLoadImageRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 20))
	for y := range 20 {
		for x := range 10 {
			src.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "page.png")
	require.NoError(t, SavePNG(path, src))

	img, meta, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 10, meta.Width)
	assert.Equal(t, 20, meta.Height)
	assert.Positive(t, meta.SizeBytes)
	assert.Equal(t, 10, img.Bounds().Dx())
}

func TestLoadImageErrors(t *testing.T) {
	_, _, err := LoadImage("")
	require.Error(t, err)

	_, _, err = LoadImage("file.gif")
	var ipe *ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "load", ipe.Operation)

	_, _, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
}

func TestToGray(t *testing.T) {
	_, err := ToGray(nil)
	require.True(t, errors.Is(err, ErrEmptyImage))

	_, err = ToGray(image.NewRGBA(image.Rect(0, 0, 0, 5)))
	require.ErrorIs(t, err, ErrEmptyImage)

	src := image.NewRGBA(image.Rect(5, 5, 9, 8))
	for y := 5; y < 8; y++ {
		for x := 5; x < 9; x++ {
			src.Set(x, y, color.White)
		}
	}
	src.Set(5, 5, color.Black)
	g, err := ToGray(src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), g.Bounds())
	assert.Equal(t, uint8(0), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), g.GrayAt(3, 2).Y)
}
