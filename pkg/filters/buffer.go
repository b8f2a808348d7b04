// Package filters implements the grayscale conversion and the filter bank used to
// build per-pixel feature maps.
//
// Every filter is a pure function from a Buffer to a new Buffer of the same shape.
// None of them keep state between calls, so they can run concurrently on the same
// input. Work inside a single filter is split across goroutines by rows.
package filters

import (
	"runtime"
	"sync"
	"sync/atomic"

	"pixelseg/internal/models"
)

// Buffer is a W×H single-channel float32 image stored row-major.
type Buffer struct {
	Width  int
	Height int
	Data   []float32
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(width, height int) *Buffer {
	return &Buffer{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height),
	}
}

// Constant allocates a buffer filled with value.
func Constant(width, height int, value float32) *Buffer {
	b := NewBuffer(width, height)
	for i := range b.Data {
		b.Data[i] = value
	}
	return b
}

// Index returns the linear index of (x, y).
func (b *Buffer) Index(x, y int) int {
	return y*b.Width + x
}

// At returns the value at (x, y). Coordinates must be in range.
func (b *Buffer) At(x, y int) float32 {
	return b.Data[y*b.Width+x]
}

// SameShape reports whether both buffers have identical dimensions.
func (b *Buffer) SameShape(o *Buffer) bool {
	return b.Width == o.Width && b.Height == o.Height
}

// Grayscale converts an RGBA image to luminance in [0,1] using
// (0.299R + 0.587G + 0.114B) / 255. Alpha is ignored.
func Grayscale(img *models.Image) *Buffer {
	out := NewBuffer(img.Width, img.Height)
	rows(img.Height, func(y0, y1 int) {
		for i := y0 * img.Width; i < y1*img.Width; i++ {
			p := i * 4
			gray := 0.299*float64(img.Pix[p]) + 0.587*float64(img.Pix[p+1]) + 0.114*float64(img.Pix[p+2])
			out.Data[i] = float32(gray / 255.0)
		}
	})
	return out
}

var workerCount atomic.Int32

func init() {
	workerCount.Store(int32(runtime.NumCPU()))
}

// SetWorkers sets how many goroutines a single filter may use. Values below 1
// reset it to the number of CPUs.
func SetWorkers(n int) {
	if n < 1 {
		n = runtime.NumCPU()
	}
	workerCount.Store(int32(n))
}

// Workers returns the current per-filter goroutine budget.
func Workers() int {
	return int(workerCount.Load())
}

// rows splits [0, height) into contiguous bands and runs fn on each band in
// its own goroutine, returning once all bands are done.
func rows(height int, fn func(y0, y1 int)) {
	ParallelRows(height, Workers(), fn)
}

// ParallelRows runs fn over contiguous row bands using up to workers goroutines.
func ParallelRows(height, workers int, fn func(y0, y1 int)) {
	if height <= 0 {
		return
	}
	if workers < 1 {
		workers = 1
	}
	if workers > height {
		workers = height
	}
	if workers == 1 {
		fn(0, height)
		return
	}

	rowsPerWorker := (height + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < height; start += rowsPerWorker {
		end := start + rowsPerWorker
		if end > height {
			end = height
		}
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			fn(y0, y1)
		}(start, end)
	}
	wg.Wait()
}
