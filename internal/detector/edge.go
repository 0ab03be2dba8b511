package detector

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/convolution"

	"github.com/MeKo-Tech/elscan/internal/mempool"
)

// The Sobel responses are computed at 1/8 scale around a bias of 128 so that
// signed gradients survive bild's 8-bit clamping.
const (
	sobelScale = 8.0
	sobelBias  = 128.0
)

var (
	sobelX = &convolution.Kernel{Matrix: []float64{-1, 0, 1, -2, 0, 2, -1, 0, 1}, Width: 3, Height: 3}
	sobelY = &convolution.Kernel{Matrix: []float64{-1, -2, -1, 0, 0, 0, 1, 2, 1}, Width: 3, Height: 3}
)

func scaledKernel(k *convolution.Kernel) *convolution.Kernel {
	out := convolution.NewKernel(k.Width, k.Height)
	for i, v := range k.Matrix {
		out.Matrix[i] = v / sobelScale
	}
	return out
}

// edgeMask runs Canny-style edge detection: Sobel gradients, non-maximum
// suppression along the gradient direction, then hysteresis between low and high.
func edgeMask(gray *image.Gray, low, high float64) []bool {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	opts := &convolution.Options{Bias: sobelBias, Wrap: false, KeepAlpha: true}
	gxImg := convolution.Convolve(gray, scaledKernel(sobelX), opts)
	gyImg := convolution.Convolve(gray, scaledKernel(sobelY), opts)

	gx := mempool.GetFloat64(w * h)
	gy := mempool.GetFloat64(w * h)
	mag := mempool.GetFloat64(w * h)
	defer func() {
		mempool.PutFloat64(gx)
		mempool.PutFloat64(gy)
		mempool.PutFloat64(mag)
	}()
	for y := range h {
		for x := range w {
			i := y*w + x
			gx[i] = (float64(gxImg.Pix[y*gxImg.Stride+4*x]) - sobelBias) * sobelScale
			gy[i] = (float64(gyImg.Pix[y*gyImg.Stride+4*x]) - sobelBias) * sobelScale
			mag[i] = math.Abs(gx[i]) + math.Abs(gy[i])
		}
	}

	thin := suppressNonMaxima(mag, gx, gy, w, h)
	defer mempool.PutFloat64(thin)
	return hysteresis(thin, w, h, low, high)
}

// suppressNonMaxima keeps a magnitude only where it is a local maximum along
// the quantized gradient direction. Border pixels are dropped.
func suppressNonMaxima(mag, gx, gy []float64, w, h int) []float64 {
	out := mempool.GetFloat64(w * h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m == 0 {
				continue
			}
			angle := math.Atan2(gy[i], gx[i])
			if angle < 0 {
				angle += math.Pi
			}
			var n1, n2 float64
			switch {
			case angle < math.Pi/8 || angle >= 7*math.Pi/8:
				n1, n2 = mag[i-1], mag[i+1]
			case angle < 3*math.Pi/8:
				n1, n2 = mag[i-w-1], mag[i+w+1]
			case angle < 5*math.Pi/8:
				n1, n2 = mag[i-w], mag[i+w]
			default:
				n1, n2 = mag[i-w+1], mag[i+w-1]
			}
			if m >= n1 && m >= n2 {
				out[i] = m
			}
		}
	}
	return out
}

// hysteresis keeps strong pixels (>= high) and every weak pixel (>= low)
// 8-connected to a strong one.
func hysteresis(mag []float64, w, h int, low, high float64) []bool {
	mask := mempool.GetBool(w * h)
	stack := make([]int, 0, 256)
	for i, m := range mag {
		if m >= high && !mask[i] {
			mask[i] = true
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for _, d := range neighbors8 {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			ni := ny*w + nx
			if !mask[ni] && mag[ni] >= low {
				mask[ni] = true
				stack = append(stack, ni)
			}
		}
	}
	return mask
}
