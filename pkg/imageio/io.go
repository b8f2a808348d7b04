// Package imageio loads and saves images and label masks and applies the optional
// pre-processing (enhancement, crop) done before feature extraction.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pixelseg/internal/models"
	"pixelseg/pkg/labels"
)

// Extensions lists the file extensions ListImages accepts.
var Extensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Decode reads any registered image format from path.
func Decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Load reads an image file into an RGBA buffer.
func Load(path string) (*models.Image, error) {
	img, err := Decode(path)
	if err != nil {
		return nil, err
	}
	out := models.FromImage(img)
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// SavePNG writes img to path, creating parent directories.
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

// LoadLabelMask reads a label mask whose gray value at each pixel is the label id.
// 16-bit grayscale files carry ids above 255.
func LoadLabelMask(path string) (*labels.Mask, error) {
	img, err := Decode(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	mask := labels.NewMask(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < mask.Height; y++ {
			for x := 0; x < mask.Width; x++ {
				mask.Labels[y*mask.Width+x] = models.Label(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < mask.Height; y++ {
			for x := 0; x < mask.Width; x++ {
				g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				mask.Labels[y*mask.Width+x] = models.Label(g.Y)
			}
		}
	}
	return mask, nil
}

// SaveLabelMask writes mask as an 8-bit grayscale PNG, or 16-bit when a label
// exceeds 255.
func SaveLabelMask(path string, mask *labels.Mask) error {
	wide := false
	for _, l := range mask.Labels {
		if l > 255 {
			wide = true
			break
		}
	}

	rect := image.Rect(0, 0, mask.Width, mask.Height)
	if wide {
		img := image.NewGray16(rect)
		for i, l := range mask.Labels {
			img.SetGray16(i%mask.Width, i/mask.Width, color.Gray16{Y: uint16(l)})
		}
		return SavePNG(path, img)
	}
	img := image.NewGray(rect)
	for i, l := range mask.Labels {
		img.Pix[(i/mask.Width)*img.Stride+i%mask.Width] = uint8(l)
	}
	return SavePNG(path, img)
}

// ListImages returns the image files in dir ordered by the number embedded in
// their names, then by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, want := range Extensions {
			if ext == want {
				files = append(files, entry.Name())
				break
			}
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		numI := extractNumber(files[i])
		numJ := extractNumber(files[j])
		if numI != numJ {
			return numI < numJ
		}
		return files[i] < files[j]
	})

	paths := make([]string, len(files))
	for i, name := range files {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}
