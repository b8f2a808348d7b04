// Package session drives the interactive workflow around the engine: it owns the
// loaded image and its label mask, validates training preconditions, publishes the
// fitted classifier and runs single and batch segmentations.
package session

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"pixelseg/internal/logger"
	"pixelseg/internal/models"
	"pixelseg/pkg/classifier"
	"pixelseg/pkg/features"
	"pixelseg/pkg/imageio"
	"pixelseg/pkg/labels"
	"pixelseg/pkg/segmentation"
)

const component = "session"

// Precondition failures returned by Session methods.
var (
	ErrNoImage       = errors.New("no image loaded")
	ErrNoLabels      = errors.New("no labeled pixels")
	ErrTooFewClasses = errors.New("at least two different labels are required")
	ErrNoFeatures    = errors.New("no features selected")
	ErrNotTrained    = errors.New("classifier is not trained")
	ErrInvalidCrop   = errors.New("invalid crop rectangle")
)

// State is the position of a session in the workflow
// Empty → ImageLoaded → Labeled → Trained → Segmented.
type State int

const (
	Empty State = iota
	ImageLoaded
	Labeled
	Trained
	Segmented
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case ImageLoaded:
		return "image-loaded"
	case Labeled:
		return "labeled"
	case Trained:
		return "trained"
	case Segmented:
		return "segmented"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Params holds the session configuration.
type Params struct {
	// NumCores bounds the goroutines used to classify one image
	NumCores int

	// Extractor computes feature maps; nil means features.NewExtractor()
	Extractor *features.Extractor

	// K and Index configure the classifier
	K     int
	Index classifier.IndexKind

	// Table supplies label names and colors; nil means the classic palette
	Table *labels.Table

	// Binary selects 0/255 output masks; ForegroundLabels picks the 255 labels
	Binary           bool
	ForegroundLabels []models.Label

	// WriteColor also renders label maps in color
	WriteColor bool

	// Enhance is applied to every image as it is loaded
	Enhance imageio.Adjustments

	// CropBatch applies the crop of the training image to batch images as well
	CropBatch bool
}

// TrainingReport summarizes a fit.
type TrainingReport struct {
	Samples  int
	Features []string
	Counts   map[models.Label]int
	Index    classifier.IndexKind
	Duration time.Duration
}

// Session is one interactive labeling workflow. All methods are safe for
// concurrent use.
type Session struct {
	params *Params
	log    logger.Logger

	mu       sync.Mutex
	state    State
	image    *models.Image
	mask     *labels.Mask
	crop     image.Rectangle
	selected []string
	last     *segmentation.Result

	holder classifier.Holder
}

// NewSession creates an empty session. A nil logger discards output.
func NewSession(params *Params, log logger.Logger) *Session {
	if params == nil {
		params = &Params{}
	}
	if params.NumCores < 1 {
		params.NumCores = runtime.NumCPU()
	}
	if params.Extractor == nil {
		params.Extractor = features.NewExtractor()
	}
	if params.K < 1 {
		params.K = classifier.DefaultK
	}
	if params.Index == "" {
		params.Index = classifier.IndexLinear
	}
	if params.Table == nil {
		params.Table = labels.ClassicTable()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Session{params: params, log: log}
}

// State returns the current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Image returns the current (enhanced, possibly cropped) image.
func (s *Session) Image() *models.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// Mask returns a copy of the label mask, or nil before an image is loaded.
func (s *Session) Mask() *labels.Mask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mask == nil {
		return nil
	}
	return s.mask.Clone()
}

// Table returns the label table.
func (s *Session) Table() *labels.Table {
	return s.params.Table
}

// Classifier returns the published classifier snapshot, possibly nil.
func (s *Session) Classifier() *classifier.Classifier {
	return s.holder.Current()
}

// Selected returns the selected filter names.
func (s *Session) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selected...)
}

// Load makes img the current image. The label mask is reallocated and any
// trained classifier is discarded.
func (s *Session) Load(img *models.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	img = imageio.Enhance(img, s.params.Enhance)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = img
	s.mask = labels.NewMask(img.Width, img.Height)
	s.crop = image.Rectangle{}
	s.last = nil
	s.holder.Publish(nil)
	s.state = ImageLoaded

	s.log.Info(component, "image loaded", map[string]interface{}{
		"width":  img.Width,
		"height": img.Height,
	})
	return nil
}

// LoadFile decodes path and loads it.
func (s *Session) LoadFile(path string) error {
	img, err := imageio.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	if err := s.Load(img); err != nil {
		return err
	}
	s.log.Debug(component, "image file read", map[string]interface{}{"path": path})
	return nil
}

// Crop replaces the current image by its pixels inside rect, given in the
// coordinates of the current image. Repeated crops compose. The label mask is
// reallocated and the classifier discarded.
func (s *Session) Crop(rect image.Rectangle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return ErrNoImage
	}

	cropped, err := imageio.Crop(s.image, rect)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCrop, err)
	}
	s.image = cropped
	s.mask = labels.NewMask(cropped.Width, cropped.Height)
	// s.crop stays relative to the image as loaded
	s.crop = rect.Add(s.crop.Min)
	s.last = nil
	s.holder.Publish(nil)
	s.state = ImageLoaded

	s.log.Info(component, "image cropped", map[string]interface{}{
		"rect":   s.crop.String(),
		"width":  cropped.Width,
		"height": cropped.Height,
	})
	return nil
}

// SetMask replaces the label mask, for example with one read from a file. Its
// shape must match the current image.
func (s *Session) SetMask(mask *labels.Mask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return ErrNoImage
	}
	if mask.Width != s.image.Width || mask.Height != s.image.Height {
		return fmt.Errorf("label mask is %dx%d but image is %dx%d",
			mask.Width, mask.Height, s.image.Width, s.image.Height)
	}
	s.mask = mask.Clone()
	s.updateLabeledState()

	s.log.Info(component, "label mask set", map[string]interface{}{
		"labeled": s.mask.LabeledCount(),
		"classes": len(s.mask.DistinctLabels()),
	})
	return nil
}

// Paint stamps a circular brush of the given size at (x, y).
func (s *Session) Paint(x, y, size int, label models.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return ErrNoImage
	}
	s.mask.Paint(x, y, size, label)
	s.updateLabeledState()
	return nil
}

// Erase clears a circular brush of the given size at (x, y).
func (s *Session) Erase(x, y, size int) error {
	return s.Paint(x, y, size, models.Unlabeled)
}

// ClearLabels resets the label mask. A trained classifier is kept.
func (s *Session) ClearLabels() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return ErrNoImage
	}
	s.mask.Clear()
	s.updateLabeledState()
	s.log.Debug(component, "labels cleared", nil)
	return nil
}

// updateLabeledState moves between ImageLoaded and Labeled. Later states are kept
// since the published classifier is still valid. Callers hold s.mu.
func (s *Session) updateLabeledState() {
	if s.state > Labeled {
		return
	}
	if s.mask.LabeledCount() > 0 {
		s.state = Labeled
	} else {
		s.state = ImageLoaded
	}
}

// SelectFeatures sets the filters used for training and segmentation. Names the
// configured extractor does not offer are rejected; "raw" is always included and
// need not be listed.
func (s *Session) SelectFeatures(names []string) error {
	available := s.params.Extractor.Available()
	offered := make(map[string]bool, len(available))
	for _, name := range available {
		offered[name] = true
	}

	var selected []string
	seen := make(map[string]bool)
	for _, name := range names {
		if name == features.Raw || seen[name] {
			continue
		}
		if !offered[name] {
			if features.IsKnown(name) {
				return fmt.Errorf("feature %q is disabled (available: %v)", name, available)
			}
			return fmt.Errorf("unknown feature %q (available: %v)", name, available)
		}
		seen[name] = true
		selected = append(selected, name)
	}

	s.mu.Lock()
	s.selected = selected
	s.mu.Unlock()

	s.log.Debug(component, "features selected", map[string]interface{}{"features": selected})
	return nil
}

// Train fits a classifier on the labeled pixels of the current image and
// publishes it. It requires an image, at least one labeled pixel, two distinct
// labels and one selected feature.
func (s *Session) Train() (*TrainingReport, error) {
	start := time.Now()

	s.mu.Lock()
	img, selected := s.image, s.selected
	var mask *labels.Mask
	if s.mask != nil {
		mask = s.mask.Clone()
	}
	s.mu.Unlock()

	switch {
	case img == nil:
		return nil, ErrNoImage
	case mask.LabeledCount() == 0:
		return nil, ErrNoLabels
	case len(mask.DistinctLabels()) < 2:
		return nil, ErrTooFewClasses
	case len(selected) == 0:
		return nil, ErrNoFeatures
	}

	set := s.params.Extractor.Extract(img, selected)
	if set.Len() < 2 {
		return nil, ErrNoFeatures
	}
	samples, err := classifier.SamplesFromMask(set, mask)
	if err != nil {
		return nil, err
	}
	clf, err := classifier.Fit(samples,
		classifier.WithK(s.params.K),
		classifier.WithIndex(s.params.Index),
		classifier.WithFeatureNames(set.Names()),
	)
	if err != nil {
		s.log.Error(component, err, map[string]interface{}{"samples": len(samples)})
		return nil, err
	}

	s.mu.Lock()
	if s.image != img {
		s.mu.Unlock()
		return nil, fmt.Errorf("image changed during training")
	}
	s.holder.Publish(clf)
	s.state = Trained
	s.last = nil
	s.mu.Unlock()

	report := &TrainingReport{
		Samples:  clf.Len(),
		Features: set.Names(),
		Counts:   samples.Counts(),
		Index:    clf.Index(),
		Duration: time.Since(start),
	}
	s.log.Info(component, "classifier trained", map[string]interface{}{
		"samples":  report.Samples,
		"features": report.Features,
		"classes":  len(report.Counts),
		"index":    string(report.Index),
		"elapsed":  report.Duration.String(),
	})
	return report, nil
}

// Segment classifies every pixel of the current image.
func (s *Session) Segment() (*segmentation.Result, error) {
	s.mu.Lock()
	img := s.image
	s.mu.Unlock()
	if img == nil {
		return nil, ErrNoImage
	}

	res, err := s.segment(img, s.holder.Current())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.image == img {
		s.last = res
		s.state = Segmented
	}
	s.mu.Unlock()
	return res, nil
}

// SegmentImage classifies another image with the trained classifier. The image
// is enhanced like loaded images but not cropped.
func (s *Session) SegmentImage(img *models.Image) (*segmentation.Result, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return s.segment(imageio.Enhance(img, s.params.Enhance), s.holder.Current())
}

// segment runs extraction and classification with one classifier snapshot.
func (s *Session) segment(img *models.Image, clf *classifier.Classifier) (*segmentation.Result, error) {
	if !clf.Trained() {
		return nil, ErrNotTrained
	}
	start := time.Now()

	set := s.params.Extractor.Extract(img, clf.FeatureNames())
	res, err := segmentation.SegmentImage(img, set, clf, segmentation.Options{
		Binary:           s.params.Binary,
		ForegroundLabels: s.params.ForegroundLabels,
		Color:            s.params.WriteColor,
		Table:            s.params.Table,
		Workers:          s.params.NumCores,
	})
	if err != nil {
		return nil, err
	}

	summary := segmentation.Summarize(res.Labels)
	s.log.Info(component, "image segmented", map[string]interface{}{
		"width":      img.Width,
		"height":     img.Height,
		"foreground": summary.ForegroundFraction,
		"elapsed":    time.Since(start).String(),
	})
	return res, nil
}

// Evaluate scores the last segmentation of the current image against its label
// mask.
func (s *Session) Evaluate() (segmentation.Evaluation, error) {
	s.mu.Lock()
	last := s.last
	var mask *labels.Mask
	if last != nil {
		mask = s.mask.Clone()
	}
	s.mu.Unlock()
	if last == nil {
		return segmentation.Evaluation{}, fmt.Errorf("current image has not been segmented")
	}
	return segmentation.Evaluate(last.Labels, mask)
}
