package detector

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/elscan/internal/utils"
)

func maskFromRows(rows ...string) ([]bool, int, int) {
	h := len(rows)
	w := len(rows[0])
	mask := make([]bool, w*h)
	for y, r := range rows {
		for x, c := range r {
			mask[y*w+x] = c == '#'
		}
	}
	return mask, w, h
}

func TestConnectedComponents_DiagonalIsConnected(t *testing.T) {
	mask, w, h := maskFromRows(
		"#...",
		".#..",
		"....",
		"..##",
	)
	comps, labels := connectedComponents(mask, nil, w, h)
	require.Len(t, comps, 2)
	assert.Equal(t, 2, comps[0].count)
	assert.Equal(t, labels[0], labels[1*w+1])
	assert.Equal(t, 2, comps[1].count)
	assert.Equal(t, 2, comps[1].minX)
	assert.Equal(t, 3, comps[1].maxX)
	assert.Zero(t, labels[2*w+2])
}

func TestConnectedComponents_ProbabilityStats(t *testing.T) {
	mask := []bool{true, true, false, false}
	prob := []float32{0.8, 0.6, 0.1, 0.2}
	comps, _ := connectedComponents(mask, prob, 2, 2)
	require.Len(t, comps, 1)
	assert.InDelta(t, 0.7, comps[0].mean(), 1e-6)
	assert.Zero(t, compStats{}.mean())
}

func TestTraceContour_FilledRectangle(t *testing.T) {
	mask, w, h := maskFromRows(
		"......",
		".####.",
		".####.",
		".####.",
		"......",
	)
	comps, labels := connectedComponents(mask, nil, w, h)
	require.Len(t, comps, 1)
	pts := traceContourMoore(labels, w, h, 1, comps[0])
	// Collinear points collapse to the four corners.
	assert.ElementsMatch(t, []utils.Point{{X: 1, Y: 1}, {X: 4, Y: 1}, {X: 4, Y: 3}, {X: 1, Y: 3}}, pts)
	assert.InDelta(t, 6.0, utils.PolygonArea(pts), 1e-9)
}

func TestTraceContour_RingUsesOuterBoundary(t *testing.T) {
	mask, w, h := maskFromRows(
		"#####",
		"#...#",
		"#...#",
		"#####",
	)
	comps, labels := connectedComponents(mask, nil, w, h)
	require.Len(t, comps, 1)
	pts := traceContourMoore(labels, w, h, 1, comps[0])
	assert.InDelta(t, 12.0, utils.PolygonArea(pts), 1e-9)
}

func TestTraceContour_Degenerate(t *testing.T) {
	mask, w, h := maskFromRows("...", ".#.", "...")
	comps, labels := connectedComponents(mask, nil, w, h)
	pts := traceContourMoore(labels, w, h, 1, comps[0])
	assert.Len(t, pts, 1)
	assert.Zero(t, utils.PolygonArea(pts))
	assert.Nil(t, traceContourMoore(labels, w, h, 0, comps[0]))
}

func TestOtsuThreshold_Bimodal(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := range 10 {
		for x := range 10 {
			v := uint8(220)
			if x < 3 {
				v = 30
			}
			g.SetGray(x, y, color.Gray{Y: v})
		}
	}
	thr := otsuThreshold(g)
	assert.GreaterOrEqual(t, thr, uint8(30))
	assert.Less(t, thr, uint8(220))

	mask := otsuMask(g)
	assert.True(t, mask[0])
	assert.False(t, mask[9])
}

func TestAdaptiveMask_UniformPageIsEmpty(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 30, 30))
	for i := range g.Pix {
		g.Pix[i] = 200
	}
	for _, v := range adaptiveMask(g, 11, 2) {
		require.False(t, v)
	}
}

func TestEdgeMask_UniformPageIsEmpty(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 30, 30))
	for i := range g.Pix {
		g.Pix[i] = 255
	}
	for _, v := range edgeMask(g, 50, 150) {
		require.False(t, v)
	}
}

func TestHysteresis(t *testing.T) {
	// strong at index 0, weak chain to index 2, isolated weak at 4.
	mag := []float64{200, 60, 60, 0, 60}
	mask := hysteresis(mag, 5, 1, 50, 150)
	assert.Equal(t, []bool{true, true, true, false, false}, mask)
}
