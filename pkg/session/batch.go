package session

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"pixelseg/internal/models"
	"pixelseg/pkg/classifier"
	"pixelseg/pkg/imageio"
	"pixelseg/pkg/labels"
	"pixelseg/pkg/segmentation"
	"pixelseg/pkg/visualization"
)

// ProgressCallback is a function type for reporting progress
type ProgressCallback func(completed, total int, message string)

// BatchItem is one image of a batch. Image takes precedence over Path.
type BatchItem struct {
	Name  string
	Path  string
	Image *models.Image

	// OutputPrefix, when set, is the path prefix of the written masks
	OutputPrefix string
}

// ItemResult is the outcome of one batch item.
type ItemResult struct {
	Name    string
	Summary segmentation.Summary
	Outputs []string
	Err     error
}

// BatchResult collects the outcome of a batch run.
type BatchResult struct {
	Items     []ItemResult
	Succeeded int
	Failed    int

	// Cancelled is set when the context ended before every item was processed
	Cancelled bool
	Duration  time.Duration
}

// Batch segments items one at a time with the classifier published when the call
// starts. A failing item is recorded and the batch continues. The context is
// checked between items; on cancellation the partial result is returned with the
// context error. Session state is never modified.
func (s *Session) Batch(ctx context.Context, items []BatchItem, progress ProgressCallback) (*BatchResult, error) {
	clf := s.holder.Current()
	if !clf.Trained() {
		return nil, ErrNotTrained
	}

	s.mu.Lock()
	crop := s.crop
	s.mu.Unlock()

	start := time.Now()
	result := &BatchResult{}
	total := len(items)
	s.log.Info(component, "batch started", map[string]interface{}{"items": total})

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			result.Duration = time.Since(start)
			s.log.Warning(component, "batch cancelled", map[string]interface{}{
				"completed": i,
				"remaining": total - i,
			})
			return result, err
		}

		name := itemName(item, i)
		res := ItemResult{Name: name}
		res.Summary, res.Outputs, res.Err = s.runItem(item, clf, crop)
		if res.Err != nil {
			result.Failed++
			s.log.Error(component, res.Err, map[string]interface{}{"item": name})
		} else {
			result.Succeeded++
		}
		result.Items = append(result.Items, res)

		if progress != nil {
			progress(i+1, total, name)
		}
	}

	result.Duration = time.Since(start)
	s.log.Info(component, "batch finished", map[string]interface{}{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"elapsed":   result.Duration.String(),
	})
	return result, nil
}

func (s *Session) runItem(item BatchItem, clf *classifier.Classifier, crop image.Rectangle) (segmentation.Summary, []string, error) {
	img := item.Image
	if img == nil {
		loaded, err := imageio.Load(item.Path)
		if err != nil {
			return segmentation.Summary{}, nil, err
		}
		img = loaded
	}
	if err := img.Validate(); err != nil {
		return segmentation.Summary{}, nil, err
	}
	img = imageio.Enhance(img, s.params.Enhance)

	if s.params.CropBatch && !crop.Empty() {
		cropped, err := imageio.Crop(img, crop)
		if err != nil {
			return segmentation.Summary{}, nil, fmt.Errorf("%w: %v", ErrInvalidCrop, err)
		}
		img = cropped
	}

	res, err := s.segment(img, clf)
	if err != nil {
		return segmentation.Summary{}, nil, err
	}
	summary := segmentation.Summarize(res.Labels)

	if item.OutputPrefix == "" {
		return summary, nil, nil
	}
	outputs, err := WriteResult(res, item.OutputPrefix)
	return summary, outputs, err
}

// WriteResult saves a segmentation next to prefix: <prefix>_mask.png for binary
// results, otherwise <prefix>_labels.png (gray value = label id) and, when a color
// rendering exists, <prefix>_color.png.
func WriteResult(res *segmentation.Result, prefix string) ([]string, error) {
	var written []string

	if res.Binary != nil {
		path := prefix + "_mask.png"
		img, err := visualization.BinaryImage(res.Binary, res.Labels.Width, res.Labels.Height)
		if err != nil {
			return written, err
		}
		if err := imageio.SavePNG(path, img); err != nil {
			return written, err
		}
		return append(written, path), nil
	}

	path := prefix + "_labels.png"
	mask := &labels.Mask{Width: res.Labels.Width, Height: res.Labels.Height, Labels: res.Labels.Labels}
	if err := imageio.SaveLabelMask(path, mask); err != nil {
		return written, err
	}
	written = append(written, path)

	if res.Color != nil {
		path := prefix + "_color.png"
		if err := imageio.SavePNG(path, res.Color.ToNRGBA()); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// OutputPrefix returns dir/<base name of path without extension>.
func OutputPrefix(dir, path string) string {
	base := filepath.Base(path)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base)))
}

func itemName(item BatchItem, i int) string {
	switch {
	case item.Name != "":
		return item.Name
	case item.Path != "":
		return filepath.Base(item.Path)
	default:
		return fmt.Sprintf("item %d", i+1)
	}
}
