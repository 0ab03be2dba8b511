package cmd

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/testutil"
)

// writeSymbolPage saves a page with one fixture and a text sidecar naming it.
func writeSymbolPage(t *testing.T, dir string) (imgPath, textPath string) {
	t.Helper()
	img := testutil.SingleSymbolPage(400, 300, image.Rect(100, 100, 200, 160))
	imgPath = testutil.SaveImage(t, dir, "level1.png", img)

	textPath = filepath.Join(dir, "level1.words.json")
	blocks := `[{"text": "EL502 2x4 RECESSED LED", "bbox": [140, 170, 200, 185], "confidence": 0.9}]`
	require.NoError(t, os.WriteFile(textPath, []byte(blocks), 0o600))
	return imgPath, textPath
}

func TestImageCommandJSON(t *testing.T) {
	imgPath, textPath := writeSymbolPage(t, t.TempDir())

	out, err := execute(t, "image", imgPath, "--text", textPath, "--workers", "1")
	require.NoError(t, err)

	var res classifier.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.TotalCount())
	assert.Equal(t, []string{"Lights01"}, res.Labels())
	require.Len(t, res.DetailedDetections, 1)
	assert.Equal(t, association.TypeRecessedLED, res.DetailedDetections[0].Type)
	assert.Equal(t, "Page 1", res.DetailedDetections[0].SourceSheet)
}

func TestImageCommandTextFormat(t *testing.T) {
	imgPath, textPath := writeSymbolPage(t, t.TempDir())

	out, err := execute(t, "image", imgPath, "--text", textPath, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Lights01: 1 x")
}

func TestImageCommandDetails(t *testing.T) {
	imgPath, textPath := writeSymbolPage(t, t.TempDir())

	out, err := execute(t, "image", imgPath, "--text", textPath, "--details")
	require.NoError(t, err)
	assert.Contains(t, out, `"pages"`)
	assert.Contains(t, out, `"page_number": 1`)
}

func TestImageCommandOverlayAndOutputFile(t *testing.T) {
	dir := t.TempDir()
	imgPath, textPath := writeSymbolPage(t, dir)
	overlays := filepath.Join(dir, "overlays")
	outFile := filepath.Join(dir, "out", "result.json")

	out, err := execute(t, "image", imgPath, "--text", textPath,
		"--overlay-dir", overlays, "-o", outFile)
	require.NoError(t, err)
	assert.Empty(t, out)

	info, err := os.Stat(filepath.Join(overlays, "level1_overlay.png"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Lights01")
}

func TestImageCommandMultiplePagesWithoutText(t *testing.T) {
	dir := t.TempDir()
	blank := testutil.Blueprint(testutil.BlueprintConfig{Width: 200, Height: 150})
	p1 := testutil.SaveImage(t, dir, "p1.png", blank)
	p2 := testutil.SaveImage(t, dir, "p2.png", blank)

	out, err := execute(t, "image", p1, p2, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "no fixtures detected")
}

func TestImageCommandErrors(t *testing.T) {
	dir := t.TempDir()
	imgPath, textPath := writeSymbolPage(t, dir)

	t.Run("text with several images", func(t *testing.T) {
		_, err := execute(t, "image", imgPath, imgPath, "--text", textPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--text can only be used with a single image")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
		_, err := execute(t, "image", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported format")
	})

	t.Run("missing argument", func(t *testing.T) {
		_, err := execute(t, "image")
		require.Error(t, err)
	})

	t.Run("unknown output format", func(t *testing.T) {
		_, err := execute(t, "image", imgPath, "--format", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "format")
	})
}

func TestImageCommandDirectory(t *testing.T) {
	dir := t.TempDir()
	blank := testutil.Blueprint(testutil.BlueprintConfig{Width: 200, Height: 150})
	testutil.SaveImage(t, dir, "sheet-01.png", blank)
	testutil.SaveImage(t, dir, "sheet-02.png", blank)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("notes"), 0o600))

	out, err := execute(t, "image", dir, "--details")
	require.NoError(t, err)
	assert.Contains(t, out, `"page_number": 2`)
	assert.NotContains(t, out, `"page_number": 3`)

	_, err = execute(t, "image", dir, "--include", "*.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image files found")
}
