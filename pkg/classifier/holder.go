package classifier

import "sync"

// Holder publishes the current classifier to concurrent readers. Segmentation
// reads a snapshot with Current while a retrain builds a new value and swaps it in
// with Publish.
type Holder struct {
	mu      sync.RWMutex
	current *Classifier
}

// Publish replaces the current classifier. nil returns the holder to untrained.
func (h *Holder) Publish(c *Classifier) {
	h.mu.Lock()
	h.current = c
	h.mu.Unlock()
}

// Current returns the most recently published classifier, possibly nil.
func (h *Holder) Current() *Classifier {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Trained reports whether a trained classifier is published.
func (h *Holder) Trained() bool {
	return h.Current().Trained()
}
