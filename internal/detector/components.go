package detector

import (
	"container/list"

	"github.com/MeKo-Tech/elscan/internal/mempool"
)

// compStats represents statistics for a connected component.
type compStats struct {
	count int
	sum   float64
	minX  int
	minY  int
	maxX  int
	maxY  int
}

// mean returns the average probability over the component.
func (c compStats) mean() float64 {
	if c.count == 0 {
		return 0
	}
	return c.sum / float64(c.count)
}

var neighbors8 = [8][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}

// connectedComponents labels 8-connected foreground regions of mask.
// prob may be nil; when present its values are accumulated into the stats.
// Labels start at 1; background pixels keep label 0. The label slice comes
// from mempool and may be returned with mempool.PutInt.
func connectedComponents(mask []bool, prob []float32, w, h int) ([]compStats, []int) {
	labels := mempool.GetInt(w * h)
	var comps []compStats
	label := 1

	for y := range h {
		for x := range w {
			idx := y*w + x
			if mask[idx] && labels[idx] == 0 {
				comps = append(comps, floodComponent(mask, prob, labels, w, h, x, y, label))
				label++
			}
		}
	}
	return comps, labels
}

// floodComponent performs BFS from a seed pixel, labeling every reachable foreground pixel.
func floodComponent(mask []bool, prob []float32, labels []int, w, h, startX, startY, label int) compStats {
	st := compStats{minX: startX, minY: startY, maxX: startX, maxY: startY}
	q := list.New()
	start := startY*w + startX
	labels[start] = label
	q.PushBack(start)

	for q.Len() > 0 {
		e := q.Front()
		q.Remove(e)
		ci, ok := e.Value.(int)
		if !ok {
			continue
		}
		cx, cy := ci%w, ci/w
		var p float32
		if prob != nil {
			p = prob[ci]
		}
		st.add(p, cx, cy)

		for _, d := range neighbors8 {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			ni := ny*w + nx
			if mask[ni] && labels[ni] == 0 {
				labels[ni] = label
				q.PushBack(ni)
			}
		}
	}
	return st
}

func (c *compStats) add(p float32, x, y int) {
	c.count++
	c.sum += float64(p)
	c.minX = min(c.minX, x)
	c.minY = min(c.minY, y)
	c.maxX = max(c.maxX, x)
	c.maxY = max(c.maxY, y)
}
