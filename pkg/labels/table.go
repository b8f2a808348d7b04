package labels

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/exp/maps"

	"pixelseg/internal/models"
)

// UnknownColor is used for labels that have no table entry.
var UnknownColor = [3]uint8{128, 128, 128}

// DefaultForeground lists the labels collapsed to 255 in a binary mask:
// Cell, Nucleus and Membrane.
var DefaultForeground = []models.Label{models.Cell, models.Nucleus, models.Membrane}

// Entry describes one class.
type Entry struct {
	ID    models.Label
	Name  string
	Color [3]uint8
}

// Table maps label ids to names and display colors.
type Table struct {
	entries map[models.Label]Entry
	nextID  models.Label
}

// NewTable creates an empty table. Custom labels start at models.FirstCustom.
func NewTable() *Table {
	return &Table{
		entries: make(map[models.Label]Entry),
		nextID:  models.FirstCustom,
	}
}

// ClassicTable returns the default palette: red cells, green background,
// blue nuclei and yellow membranes.
func ClassicTable() *Table {
	t := NewTable()
	t.Set(models.Cell, "Cell", [3]uint8{255, 0, 0})
	t.Set(models.Background, "Background", [3]uint8{0, 255, 0})
	t.Set(models.Nucleus, "Nucleus", [3]uint8{0, 0, 255})
	t.Set(models.Membrane, "Membrane", [3]uint8{255, 255, 0})
	return t
}

// ContrastTable returns the alternate palette with a black background, which
// makes color masks read like binary masks.
func ContrastTable() *Table {
	t := NewTable()
	t.Set(models.Cell, "Cell", [3]uint8{255, 0, 0})
	t.Set(models.Background, "Background", [3]uint8{0, 0, 0})
	t.Set(models.Nucleus, "Nucleus", [3]uint8{0, 255, 0})
	t.Set(models.Membrane, "Membrane", [3]uint8{0, 0, 255})
	return t
}

// Palette returns the named built-in table ("classic" or "contrast").
func Palette(name string) (*Table, error) {
	switch strings.ToLower(name) {
	case "", "classic":
		return ClassicTable(), nil
	case "contrast":
		return ContrastTable(), nil
	default:
		return nil, fmt.Errorf("unknown label palette %q", name)
	}
}

// Set adds or replaces an entry.
func (t *Table) Set(id models.Label, name string, color [3]uint8) {
	t.entries[id] = Entry{ID: id, Name: name, Color: color}
	if id >= t.nextID {
		t.nextID = id + 1
	}
}

// Add registers a user-defined class under the next free id and gives it a
// color spread around the hue circle by the golden ratio.
func (t *Table) Add(name string) Entry {
	id := t.nextID
	t.Set(id, name, GeneratedColor(id))
	return t.entries[id]
}

// GeneratedColor is the color assigned to a user-defined label id:
// HSV(hue = id·0.618 mod 1, s = 0.8, v = 0.8), channels truncated to 8 bits.
func GeneratedColor(id models.Label) [3]uint8 {
	hue := math.Mod(float64(id)*0.618, 1.0)
	c := colorful.Hsv(hue*360, 0.8, 0.8)
	return [3]uint8{uint8(255 * c.R), uint8(255 * c.G), uint8(255 * c.B)}
}

// Color returns the display color of id, or UnknownColor.
func (t *Table) Color(id models.Label) [3]uint8 {
	if e, ok := t.entries[id]; ok {
		return e.Color
	}
	return UnknownColor
}

// Name returns the class name of id, or "Label <id>".
func (t *Table) Name(id models.Label) string {
	if e, ok := t.entries[id]; ok && e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("Label %d", id)
}

// IDs returns every registered id, ascending.
func (t *Table) IDs() []models.Label {
	ids := maps.Keys(t.entries)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Entries returns every entry ordered by id.
func (t *Table) Entries() []Entry {
	ids := t.IDs()
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = t.entries[id]
	}
	return out
}

// Len returns the number of registered labels.
func (t *Table) Len() int {
	return len(t.entries)
}
