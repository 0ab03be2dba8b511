package utils

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBoxOrdersCoordinates(t *testing.T) {
	b := NewBox(10, 20, 0, 5)
	assert.Equal(t, Box{MinX: 0, MinY: 5, MaxX: 10, MaxY: 20}, b)
	assert.InDelta(t, 10.0, b.Width(), 1e-9)
	assert.InDelta(t, 15.0, b.Height(), 1e-9)
	assert.InDelta(t, 150.0, b.Area(), 1e-9)
}

func TestBoxValid(t *testing.T) {
	cases := []struct {
		name string
		box  Box
		ok   bool
	}{
		{"regular", Box{0, 0, 10, 10}, true},
		{"degenerate", Box{5, 5, 5, 5}, true},
		{"inverted x", Box{10, 0, 0, 10}, false},
		{"inverted y", Box{0, 10, 10, 0}, false},
		{"nan", Box{math.NaN(), 0, 10, 10}, false},
		{"inf", Box{0, 0, math.Inf(1), 10}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.ok, c.box.Valid())
		})
	}
}

func TestBoxCenterFloors(t *testing.T) {
	assert.Equal(t, Point{X: 5, Y: 7}, Box{0, 0, 11, 15}.Center())
	assert.Equal(t, Point{X: 150, Y: 225}, Box{100, 200, 200, 250}.Center())
	assert.Equal(t, Point{X: -1, Y: -1}, Box{-3, -3, 2, 2}.Center())
}

func TestIoU(t *testing.T) {
	a := Box{0, 0, 10, 10}
	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.Zero(t, IoU(a, Box{20, 20, 30, 30}))
	// Touching edges share no area.
	assert.Zero(t, IoU(a, Box{10, 0, 20, 10}))
	// Half overlap: inter 50, union 150.
	assert.InDelta(t, 1.0/3.0, IoU(a, Box{5, 0, 15, 10}), 1e-9)
	assert.Zero(t, IoU(Box{1, 1, 1, 1}, Box{1, 1, 1, 1}))
}

func TestCenterDistance(t *testing.T) {
	a := Box{100, 200, 200, 250}
	b := Box{140, 255, 200, 275}
	// centers (150,225) and (170,265)
	assert.InDelta(t, math.Hypot(20, 40), CenterDistance(a, b), 1e-9)
	assert.InDelta(t, CenterDistance(b, a), CenterDistance(a, b), 1e-12)
}

func TestPolygonArea(t *testing.T) {
	square := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	assert.InDelta(t, 100.0, PolygonArea(square), 1e-9)
	reversed := []Point{{0, 10}, {10, 10}, {10, 0}, {0, 0}}
	assert.InDelta(t, 100.0, PolygonArea(reversed), 1e-9)
	assert.Zero(t, PolygonArea(square[:2]))
}

func TestBoundingBox(t *testing.T) {
	assert.Equal(t, Box{}, BoundingBox(nil))
	b := BoundingBox([]Point{{3, 4}, {-1, 8}, {5, 2}})
	assert.Equal(t, Box{MinX: -1, MinY: 2, MaxX: 5, MaxY: 8}, b)
}

func TestBoxJSON(t *testing.T) {
	data, err := json.Marshal(Box{100, 200, 200.4, 250.6})
	require.NoError(t, err)
	assert.JSONEq(t, `[100,200,200,251]`, string(data))

	var b Box
	require.NoError(t, json.Unmarshal([]byte(`[1,2,3,4]`), &b))
	assert.Equal(t, Box{1, 2, 3, 4}, b)

	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &b))
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &b))
}
