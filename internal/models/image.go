package models

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Label identifies a pixel class. 0 means unlabeled.
type Label uint16

// Reserved label ids shared by every label table.
const (
	Unlabeled  Label = 0
	Cell       Label = 1
	Background Label = 2
	Nucleus    Label = 3
	Membrane   Label = 4

	// FirstCustom is the first id handed out to user-defined classes.
	FirstCustom Label = 5
)

// Image is an RGBA pixel buffer with 8 bits per channel, stored row-major.
// Once loaded it is treated as immutable by every engine package.
type Image struct {
	// Width and Height are the dimensions in pixels
	Width  int
	Height int

	// Pix holds 4 bytes per pixel in R, G, B, A order. Color channels are not
	// premultiplied by alpha.
	Pix []uint8
}

// NewImage allocates a transparent black image of the given size.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}
}

// FromImage converts any image.Image into a straight (non-premultiplied) RGBA
// buffer anchored at (0,0).
func FromImage(src image.Image) *Image {
	bounds := src.Bounds()
	out := NewImage(bounds.Dx(), bounds.Dy())

	if n, ok := src.(*image.NRGBA); ok {
		for y := 0; y < out.Height; y++ {
			i := n.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out.Pix[y*out.Width*4:(y+1)*out.Width*4], n.Pix[i:i+out.Width*4])
		}
		return out
	}

	draw.Draw(out.ToNRGBA(), image.Rect(0, 0, out.Width, out.Height), src, bounds.Min, draw.Src)
	return out
}

// Validate reports whether the buffer is non-empty and consistent with its dimensions.
func (m *Image) Validate() error {
	if m == nil {
		return fmt.Errorf("image is nil")
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("image has invalid dimensions %dx%d", m.Width, m.Height)
	}
	if len(m.Pix) != m.Width*m.Height*4 {
		return fmt.Errorf("image buffer has %d bytes, expected %d", len(m.Pix), m.Width*m.Height*4)
	}
	return nil
}

// RGBA returns the color of the pixel at (x, y).
func (m *Image) RGBA(x, y int) (r, g, b, a uint8) {
	i := (y*m.Width + x) * 4
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3]
}

// SetRGBA sets the pixel at (x, y).
func (m *Image) SetRGBA(x, y int, r, g, b, a uint8) {
	i := (y*m.Width + x) * 4
	m.Pix[i] = r
	m.Pix[i+1] = g
	m.Pix[i+2] = b
	m.Pix[i+3] = a
}

// ToNRGBA wraps the buffer as an *image.NRGBA without copying.
func (m *Image) ToNRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    m.Pix,
		Stride: m.Width * 4,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

// Uniform builds an image where every pixel has the same color.
func Uniform(width, height int, c color.RGBA) *Image {
	img := NewImage(width, height)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}
