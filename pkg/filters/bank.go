package filters

import (
	"math"
)

// Gabor-like filter constants. Orientation and aspect ratio are fixed at θ=0 and
// γ=0.5; with θ=0 the aspect ratio does not enter the simplified weighting.
const (
	GaborSigma  = 2.0
	GaborLambda = 4.0
	gaborRadius = 3
)

// GaussianKernel returns the unnormalized 1-D kernel exp(-x²/2σ²) for x in
// [-ceil(3σ), ceil(3σ)].
func GaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
	}
	return kernel
}

// GaussianBlur applies a separable Gaussian blur: a horizontal pass followed by a
// vertical pass over the horizontal result. Each output value is divided by the
// sum of the kernel weights that fell inside the image, so borders are not darkened.
func GaussianBlur(src *Buffer, sigma float64) *Buffer {
	if sigma <= 0 {
		out := NewBuffer(src.Width, src.Height)
		copy(out.Data, src.Data)
		return out
	}

	kernel := GaussianKernel(sigma)
	radius := len(kernel) / 2
	w, h := src.Width, src.Height

	temp := NewBuffer(w, h)
	rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := y * w
			for x := 0; x < w; x++ {
				var sum, weightSum float64
				for i, k := range kernel {
					xi := x + i - radius
					if xi >= 0 && xi < w {
						sum += float64(src.Data[row+xi]) * k
						weightSum += k
					}
				}
				temp.Data[row+x] = float32(sum / weightSum)
			}
		}
	})

	out := NewBuffer(w, h)
	rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				var sum, weightSum float64
				for i, k := range kernel {
					yi := y + i - radius
					if yi >= 0 && yi < h {
						sum += float64(temp.Data[yi*w+x]) * k
						weightSum += k
					}
				}
				out.Data[y*w+x] = float32(sum / weightSum)
			}
		}
	})

	return out
}

// interior runs fn for every pixel that has all 8 neighbours. The one-pixel
// frame of the output is left at 0.
func interior(src *Buffer, fn func(x, y int) float64) *Buffer {
	w, h := src.Width, src.Height
	out := NewBuffer(w, h)
	if w < 3 || h < 3 {
		return out
	}

	rows(h-2, func(r0, r1 int) {
		for y := r0 + 1; y < r1+1; y++ {
			for x := 1; x < w-1; x++ {
				out.Data[y*w+x] = float32(fn(x, y))
			}
		}
	})
	return out
}

var laplacianKernel = [9]float64{
	0, -1, 0,
	-1, 4, -1,
	0, -1, 0,
}

// Laplacian returns |L * I| for the 4-neighbour Laplacian kernel.
func Laplacian(src *Buffer) *Buffer {
	w := src.Width
	d := src.Data
	return interior(src, func(x, y int) float64 {
		var sum float64
		for ky := -1; ky <= 1; ky++ {
			for kx := -1; kx <= 1; kx++ {
				sum += float64(d[(y+ky)*w+x+kx]) * laplacianKernel[(ky+1)*3+kx+1]
			}
		}
		return math.Abs(sum)
	})
}

// GradientMagnitude returns sqrt(gx²+gy²) using central differences.
func GradientMagnitude(src *Buffer) *Buffer {
	w := src.Width
	d := src.Data
	return interior(src, func(x, y int) float64 {
		gx := float64(d[y*w+x+1]) - float64(d[y*w+x-1])
		gy := float64(d[(y+1)*w+x]) - float64(d[(y-1)*w+x])
		return math.Sqrt(gx*gx + gy*gy)
	})
}

var (
	sobelX = [9]float64{-1, 0, 1, -2, 0, 2, -1, 0, 1}
	sobelY = [9]float64{-1, -2, -1, 0, 0, 0, 1, 2, 1}
)

// SobelMagnitude returns sqrt(Gx²+Gy²) for the 3×3 Sobel kernels.
func SobelMagnitude(src *Buffer) *Buffer {
	w := src.Width
	d := src.Data
	return interior(src, func(x, y int) float64 {
		var gx, gy float64
		for ky := -1; ky <= 1; ky++ {
			for kx := -1; kx <= 1; kx++ {
				v := float64(d[(y+ky)*w+x+kx])
				k := (ky+1)*3 + kx + 1
				gx += v * sobelX[k]
				gy += v * sobelY[k]
			}
		}
		return math.Sqrt(gx*gx + gy*gy)
	})
}

// gaborWeights holds the 7×7 window, zero outside radius 3.
var gaborWeights = func() [2*gaborRadius + 1][2*gaborRadius + 1]float64 {
	var wts [2*gaborRadius + 1][2*gaborRadius + 1]float64
	for dy := -gaborRadius; dy <= gaborRadius; dy++ {
		for dx := -gaborRadius; dx <= gaborRadius; dx++ {
			r2 := float64(dx*dx + dy*dy)
			if math.Sqrt(r2) > gaborRadius {
				continue
			}
			wts[dy+gaborRadius][dx+gaborRadius] = math.Exp(-r2/(2*GaborSigma*GaborSigma)) *
				math.Cos(2*math.Pi*float64(dx)/GaborLambda)
		}
	}
	return wts
}()

// Gabor computes a simplified Gabor-like response: the weighted neighbourhood sum
// normalized by the sum of absolute weights of in-bounds neighbours, as an absolute
// value. Pixels whose weight sum is 0 get 0.
func Gabor(src *Buffer) *Buffer {
	w, h := src.Width, src.Height
	d := src.Data
	out := NewBuffer(w, h)

	rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				var sum, weightSum float64
				for dy := -gaborRadius; dy <= gaborRadius; dy++ {
					ny := y + dy
					if ny < 0 || ny >= h {
						continue
					}
					for dx := -gaborRadius; dx <= gaborRadius; dx++ {
						nx := x + dx
						if nx < 0 || nx >= w || dx*dx+dy*dy > gaborRadius*gaborRadius {
							continue
						}
						wt := gaborWeights[dy+gaborRadius][dx+gaborRadius]
						sum += float64(d[ny*w+nx]) * wt
						weightSum += math.Abs(wt)
					}
				}
				if weightSum > 0 {
					out.Data[y*w+x] = float32(math.Abs(sum / weightSum))
				}
			}
		}
	})

	return out
}

// HessianDeterminant returns |fxx·fyy - fxy²| from finite-difference second derivatives.
func HessianDeterminant(src *Buffer) *Buffer {
	w := src.Width
	d := src.Data
	return interior(src, func(x, y int) float64 {
		c := float64(d[y*w+x])
		fxx := float64(d[y*w+x+1]) - 2*c + float64(d[y*w+x-1])
		fyy := float64(d[(y+1)*w+x]) - 2*c + float64(d[(y-1)*w+x])
		fxy := (float64(d[(y+1)*w+x+1]) - float64(d[(y+1)*w+x-1]) -
			float64(d[(y-1)*w+x+1]) + float64(d[(y-1)*w+x-1])) / 4
		return math.Abs(fxx*fyy - fxy*fxy)
	})
}

// DifferenceOfGaussians returns GaussianBlur(σ1) - GaussianBlur(σ2).
func DifferenceOfGaussians(src *Buffer, sigma1, sigma2 float64) *Buffer {
	a := GaussianBlur(src, sigma1)
	b := GaussianBlur(src, sigma2)
	out := NewBuffer(src.Width, src.Height)
	for i := range out.Data {
		out.Data[i] = a.Data[i] - b.Data[i]
	}
	return out
}
