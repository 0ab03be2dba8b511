package detector

import "github.com/MeKo-Tech/elscan/internal/utils"

// Clockwise 8-neighborhood starting east: E, SE, S, SW, W, NW, N, NE.
var (
	mooreDX = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	mooreDY = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
)

// traceContourMoore returns the outer boundary of a labeled component using
// Moore-neighbor tracing. Points are pixel centers; collinear runs are collapsed.
func traceContourMoore(labels []int, w, h, label int, st compStats) []utils.Point {
	if label <= 0 || len(labels) != w*h || st.count == 0 {
		return nil
	}

	// The first labeled pixel in raster order is always on the outer boundary.
	sx, sy := -1, -1
	for y := st.minY; y <= st.maxY && sx < 0; y++ {
		for x := st.minX; x <= st.maxX; x++ {
			if labels[y*w+x] == label {
				sx, sy = x, y
				break
			}
		}
	}
	if sx < 0 {
		return nil
	}

	isLabel := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && labels[y*w+x] == label
	}

	pts := make([]utils.Point, 0, 64)
	add := func(x, y int) {
		p := utils.Point{X: float64(x), Y: float64(y)}
		if n := len(pts); n > 0 && pts[n-1] == p {
			return
		}
		if n := len(pts); n >= 2 {
			a, b := pts[n-2], pts[n-1]
			if (b.X-a.X)*(p.Y-b.Y)-(b.Y-a.Y)*(p.X-b.X) == 0 {
				pts = pts[:n-1]
			}
		}
		pts = append(pts, p)
	}
	add(sx, sy)

	cx, cy := sx, sy
	bx, by := sx-1, sy // start was entered from the west
	fx, fy := -1, -1
	maxSteps := 4*st.count + 8

	// Stop once the start pixel is about to repeat its first move.
	for range maxSteps {
		nx, ny, nbx, nby, found := nextBoundaryPixel(isLabel, cx, cy, bx, by)
		if !found {
			break // isolated pixel
		}
		if fx < 0 {
			fx, fy = nx, ny
		} else if cx == sx && cy == sy && nx == fx && ny == fy {
			break
		}
		cx, cy, bx, by = nx, ny, nbx, nby
		add(cx, cy)
	}

	if n := len(pts); n >= 2 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
	}
	return pts
}

// nextBoundaryPixel scans the Moore neighborhood of (cx, cy) clockwise,
// starting just after the backtrack pixel (bx, by).
func nextBoundaryPixel(isLabel func(x, y int) bool, cx, cy, bx, by int) (int, int, int, int, bool) {
	start := 0
	for i := range 8 {
		if mooreDX[i] == bx-cx && mooreDY[i] == by-cy {
			start = (i + 1) % 8
			break
		}
	}
	px, py := bx, by
	for k := range 8 {
		i := (start + k) % 8
		tx, ty := cx+mooreDX[i], cy+mooreDY[i]
		if isLabel(tx, ty) {
			return tx, ty, px, py, true
		}
		px, py = tx, ty
	}
	return 0, 0, bx, by, false
}
