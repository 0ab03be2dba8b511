package utils

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
)

// Point represents a 2D coordinate in float space.
type Point struct {
	X float64
	Y float64
}

// Box is an axis-aligned rectangle [x1, y1, x2, y2] in page pixel coordinates.
// It serializes as a four element JSON array.
type Box struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// NewBox constructs a Box from min/max coordinates ensuring ordering.
func NewBox(x1, y1, x2, y2 float64) Box {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Box{MinX: x1, MinY: y1, MaxX: x2, MaxY: y2}
}

// BoxFromRect converts an image.Rectangle to a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{MinX: float64(r.Min.X), MinY: float64(r.Min.Y), MaxX: float64(r.Max.X), MaxY: float64(r.Max.Y)}
}

// Width returns the box width.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height returns the box height.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Area returns width*height, or 0 for inverted boxes.
func (b Box) Area() float64 {
	if b.MaxX <= b.MinX || b.MaxY <= b.MinY {
		return 0
	}
	return b.Width() * b.Height()
}

// Valid reports whether all coordinates are finite and the box is not inverted.
// Zero-width or zero-height boxes are valid; they simply have no area.
func (b Box) Valid() bool {
	for _, v := range [...]float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MaxX >= b.MinX && b.MaxY >= b.MinY
}

// Center returns the box center using floor division, so integral boxes
// yield integral centers.
func (b Box) Center() Point {
	return Point{X: math.Floor((b.MinX + b.MaxX) / 2), Y: math.Floor((b.MinY + b.MaxY) / 2)}
}

// Scale multiplies every coordinate by sx (x axis) and sy (y axis).
func (b Box) Scale(sx, sy float64) Box {
	return Box{MinX: b.MinX * sx, MinY: b.MinY * sy, MaxX: b.MaxX * sx, MaxY: b.MaxY * sy}
}

// Ints returns the coordinates rounded to the nearest integer.
func (b Box) Ints() [4]int {
	return [4]int{
		int(math.Round(b.MinX)), int(math.Round(b.MinY)),
		int(math.Round(b.MaxX)), int(math.Round(b.MaxY)),
	}
}

// ToRect converts a Box to an image.Rectangle, clamped to image bounds.
func (b Box) ToRect(bounds image.Rectangle) image.Rectangle {
	x1 := clampInt(int(math.Floor(b.MinX)), bounds.Min.X, bounds.Max.X)
	y1 := clampInt(int(math.Floor(b.MinY)), bounds.Min.Y, bounds.Max.Y)
	x2 := clampInt(int(math.Ceil(b.MaxX)), bounds.Min.X, bounds.Max.X)
	y2 := clampInt(int(math.Ceil(b.MaxY)), bounds.Min.Y, bounds.Max.Y)
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return image.Rect(x1, y1, x2, y2)
}

// String implements fmt.Stringer.
func (b Box) String() string {
	v := b.Ints()
	return fmt.Sprintf("[%d, %d, %d, %d]", v[0], v[1], v[2], v[3])
}

// MarshalJSON encodes the box as [x1, y1, x2, y2] with integer coordinates.
func (b Box) MarshalJSON() ([]byte, error) {
	v := b.Ints()
	return json.Marshal(v[:])
}

// UnmarshalJSON decodes a four element numeric array. Any other length is an error.
func (b *Box) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("bounding box: %w", err)
	}
	if len(v) != 4 {
		return fmt.Errorf("bounding box: expected 4 coordinates, got %d", len(v))
	}
	*b = Box{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IoU computes intersection-over-union of two boxes. Disjoint boxes and
// boxes whose union has no area yield 0.
func IoU(a, b Box) float64 {
	x1 := math.Max(a.MinX, b.MinX)
	y1 := math.Max(a.MinY, b.MinY)
	x2 := math.Min(a.MaxX, b.MaxX)
	y2 := math.Min(a.MaxY, b.MaxY)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CenterDistance returns the Euclidean distance between the centers of two boxes.
func CenterDistance(a, b Box) float64 {
	ca, cb := a.Center(), b.Center()
	return math.Hypot(ca.X-cb.X, ca.Y-cb.Y)
}

// BoundingBox returns the axis-aligned bounding box for a set of points.
func BoundingBox(pts []Point) Box {
	if len(pts) == 0 {
		return Box{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Box{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// PolygonArea returns the absolute area enclosed by a closed polygon (shoelace formula).
func PolygonArea(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var s float64
	for i := range pts {
		j := (i + 1) % len(pts)
		s += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(s) / 2
}
