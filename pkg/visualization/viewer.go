// Package visualization renders feature maps, label strokes and segmentation
// results as ordinary images for inspection.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"

	"pixelseg/internal/models"
	"pixelseg/pkg/features"
	"pixelseg/pkg/filters"
	"pixelseg/pkg/imageio"
	"pixelseg/pkg/labels"
)

// OverlayAlpha is the opacity of label colors drawn over an image.
const OverlayAlpha = 128

// Viewer renders the feature maps of one image.
type Viewer struct {
	// set holds the feature maps in column order
	set *features.Set
}

// NewViewer creates a viewer over set
func NewViewer(set *features.Set) *Viewer {
	return &Viewer{set: set}
}

// ExtractMap renders the named feature map as a grayscale image
func (v *Viewer) ExtractMap(name string) (*image.Gray, error) {
	buf, ok := v.set.Get(name)
	if !ok {
		return nil, fmt.Errorf("no feature map named %q (have %v)", name, v.set.Names())
	}
	return FeaturePreview(buf), nil
}

// SaveFeaturePreviews writes every feature map as feature_NN_<name>.png in
// outputDir and returns the written paths in column order.
func (v *Viewer) SaveFeaturePreviews(outputDir string) ([]string, error) {
	var paths []string
	for i, name := range v.set.Names() {
		img, err := v.ExtractMap(name)
		if err != nil {
			return paths, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("feature_%02d_%s.png", i, name))
		if err := imageio.SavePNG(filename, img); err != nil {
			return paths, err
		}
		paths = append(paths, filename)
	}
	return paths, nil
}

// SaveFeaturePreviews is the package-level form of Viewer.SaveFeaturePreviews.
func SaveFeaturePreviews(set *features.Set, outputDir string) ([]string, error) {
	return NewViewer(set).SaveFeaturePreviews(outputDir)
}

// FeaturePreview min-max normalizes buf into 0..255. A constant map renders black
// and non-finite values render as 0.
func FeaturePreview(buf *filters.Buffer) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, buf.Width, buf.Height))

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range buf.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	if !(hi > lo) {
		return img
	}

	scale := 255 / (hi - lo)
	for i, v := range buf.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		x, y := i%buf.Width, i/buf.Width
		img.Pix[y*img.Stride+x] = uint8(math.Round((f - lo) * scale))
	}
	return img
}

// LabelOverlay draws the color of every non-zero label in ids over img at
// OverlayAlpha. ids is row-major with the image's dimensions, as in a label mask
// or a segmentation label map.
func LabelOverlay(img *models.Image, ids []models.Label, table *labels.Table) (*image.NRGBA, error) {
	if len(ids) != img.Width*img.Height {
		return nil, fmt.Errorf("%d labels for a %dx%d image", len(ids), img.Width, img.Height)
	}

	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	copy(out.Pix, img.Pix)
	for i, id := range ids {
		if id == models.Unlabeled {
			continue
		}
		c := table.Color(id)
		p := out.Pix[i*4 : i*4+4]
		for ch := 0; ch < 3; ch++ {
			p[ch] = mix(c[ch], p[ch], OverlayAlpha)
		}
		p[3] = 255
	}
	return out, nil
}

// BinaryImage wraps a 0/255 mask as a grayscale image.
func BinaryImage(mask []uint8, width, height int) (*image.Gray, error) {
	if len(mask) != width*height {
		return nil, fmt.Errorf("%d mask values for a %dx%d image", len(mask), width, height)
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i, v := range mask {
		img.SetGray(i%width, i/width, color.Gray{Y: v})
	}
	return img, nil
}

// mix blends fg over bg with the given 8-bit alpha
func mix(fg, bg, alpha uint8) uint8 {
	a := uint32(alpha)
	return uint8((uint32(fg)*a + uint32(bg)*(255-a) + 127) / 255)
}
