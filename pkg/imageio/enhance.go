package imageio

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"

	"pixelseg/internal/models"
)

// Adjustments are enhancement factors relative to the original image: 1.0 leaves
// a property unchanged, 0.5 halves it, 2.0 doubles it.
type Adjustments struct {
	Brightness float64
	Contrast   float64
	Sharpness  float64

	// Denoise runs a 3×3 median filter after the other adjustments.
	Denoise bool
}

// NoAdjustments returns the identity adjustments.
func NoAdjustments() Adjustments {
	return Adjustments{Brightness: 1, Contrast: 1, Sharpness: 1}
}

// IsIdentity reports whether applying a would leave every image unchanged. Zero
// factors are treated as unset.
func (a Adjustments) IsIdentity() bool {
	return unset(a.Brightness) && unset(a.Contrast) && unset(a.Sharpness) && !a.Denoise
}

func unset(f float64) bool {
	return f == 0 || f == 1
}

// Enhance applies brightness, contrast and sharpness in that order, then the
// optional median denoise.
//
// Brightness blends toward black, contrast toward the mean gray level of the image
// and sharpness toward a smoothed copy; factors above 1 extrapolate away from the
// blend target.
func Enhance(img *models.Image, adj Adjustments) *models.Image {
	if adj.IsIdentity() {
		return img
	}
	out := imaging.Clone(img.ToNRGBA())

	if !unset(adj.Brightness) {
		f := adj.Brightness
		out = imaging.AdjustFunc(out, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{
				R: clamp(float64(c.R) * f),
				G: clamp(float64(c.G) * f),
				B: clamp(float64(c.B) * f),
				A: c.A,
			}
		})
	}

	if !unset(adj.Contrast) {
		f := adj.Contrast
		mean := meanGray(out)
		out = imaging.AdjustFunc(out, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{
				R: clamp(mean + f*(float64(c.R)-mean)),
				G: clamp(mean + f*(float64(c.G)-mean)),
				B: clamp(mean + f*(float64(c.B)-mean)),
				A: c.A,
			}
		})
	}

	if !unset(adj.Sharpness) {
		smooth := imaging.Convolve3x3(out, [9]float64{
			1, 1, 1,
			1, 5, 1,
			1, 1, 1,
		}, &imaging.ConvolveOptions{Normalize: true})
		out = blend(smooth, out, adj.Sharpness)
	}

	if adj.Denoise {
		out = median3x3(out)
	}

	return models.FromImage(out)
}

// Crop returns the pixels of img inside rect. rect must be non-empty and lie
// inside the image.
func Crop(img *models.Image, rect image.Rectangle) (*models.Image, error) {
	bounds := image.Rect(0, 0, img.Width, img.Height)
	if rect.Empty() || !rect.In(bounds) {
		return nil, fmt.Errorf("crop rectangle %v outside %dx%d image", rect, img.Width, img.Height)
	}
	return models.FromImage(imaging.Crop(img.ToNRGBA(), rect)), nil
}

// meanGray is the average luminance of img rounded to the nearest level.
func meanGray(img *image.NRGBA) float64 {
	gray := imaging.Grayscale(img)
	var sum float64
	n := 0
	for i := 0; i < len(gray.Pix); i += 4 {
		sum += float64(gray.Pix[i])
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(int(sum/float64(n) + 0.5))
}

// blend returns base + f·(img − base) per color channel; alpha comes from img.
func blend(base, img *image.NRGBA, f float64) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 0; i < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			b := float64(base.Pix[i+c])
			out.Pix[i+c] = clamp(b + f*(float64(img.Pix[i+c])-b))
		}
	}
	return out
}

// median3x3 replaces each color channel with the median of its 3×3 neighbourhood,
// replicating edge pixels.
func median3x3(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := imaging.Clone(img)
	var window [9]int

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst := y*out.Stride + x*4
			for c := 0; c < 3; c++ {
				n := 0
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						sx := clampInt(x+dx, 0, w-1)
						sy := clampInt(y+dy, 0, h-1)
						window[n] = int(img.Pix[sy*img.Stride+sx*4+c])
						n++
					}
				}
				sort.Ints(window[:])
				out.Pix[dst+c] = uint8(window[4])
			}
		}
	}
	return out
}

func clamp(v float64) uint8 {
	v += 0.5
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
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
