package testutil

import (
	"image"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlueprintDrawsSymbols(t *testing.T) {
	cfg := DefaultBlueprintConfig()
	cfg.Symbols = []Symbol{{Rect: image.Rect(100, 100, 200, 160), Label: "EL1"}}
	img := Blueprint(cfg)

	assert.Equal(t, image.Rect(0, 0, 800, 600), img.Bounds())
	assert.Equal(t, uint8(0), GrayAt(img, 150, 130))
	assert.Equal(t, uint8(255), GrayAt(img, 10, 10))

	// The label is drawn somewhere below the symbol.
	dark := 0
	for y := 161; y < 190; y++ {
		for x := 100; x < 130; x++ {
			if GrayAt(img, x, y) < 128 {
				dark++
			}
		}
	}
	assert.Positive(t, dark)
}

func TestSaveImage(t *testing.T) {
	path := SaveImage(t, t.TempDir(), "page.png", SingleSymbolPage(50, 40, image.Rect(10, 10, 20, 20)))
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, st.Size())
}
