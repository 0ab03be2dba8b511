package detector

import (
	"image"

	"github.com/anthonynsimon/bild/blur"

	"github.com/MeKo-Tech/elscan/internal/mempool"
)

// adaptiveMask marks pixels darker than their Gaussian-weighted neighborhood
// mean by more than c. blockSize is the odd window width.
func adaptiveMask(gray *image.Gray, blockSize int, c float64) []bool {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	radius := float64(blockSize-1) / 2
	local := blur.Gaussian(gray, radius)

	mask := mempool.GetBool(w * h)
	for y := range h {
		src := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		ref := local.Pix[y*local.Stride : y*local.Stride+4*w]
		for x, v := range src {
			mask[y*w+x] = float64(v) <= float64(ref[4*x])-c
		}
	}
	return mask
}

// otsuThreshold implements Otsu's method on an 8-bit histogram and returns
// the threshold maximizing between-class variance.
func otsuThreshold(gray *image.Gray) uint8 {
	const bins = 256
	var histogram [bins]int
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	for y := range h {
		for _, v := range gray.Pix[y*gray.Stride : y*gray.Stride+w] {
			histogram[v]++
		}
	}
	total := w * h
	if total == 0 {
		return 0
	}

	var sumAll float64
	for i, n := range histogram {
		sumAll += float64(i) * float64(n)
	}

	var sumB, maxVariance float64
	best, wB := 0, 0
	for t := range bins {
		wB += histogram[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(histogram[t])
		meanB := sumB / float64(wB)
		meanF := (sumAll - sumB) / float64(wF)
		variance := float64(wB) * float64(wF) * (meanB - meanF) * (meanB - meanF)
		if variance > maxVariance {
			maxVariance = variance
			best = t
		}
	}
	return uint8(best)
}

// otsuMask marks pixels at or below the Otsu threshold (dark ink on light paper).
func otsuMask(gray *image.Gray) []bool {
	t := otsuThreshold(gray)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	mask := mempool.GetBool(w * h)
	for y := range h {
		for x, v := range gray.Pix[y*gray.Stride : y*gray.Stride+w] {
			mask[y*w+x] = v <= t
		}
	}
	return mask
}
