package labels

import (
	"image"
	"reflect"
	"testing"

	"pixelseg/internal/models"
)

func TestNewMaskIsUnlabeled(t *testing.T) {
	m := NewMask(5, 4)
	if len(m.Labels) != 20 {
		t.Fatalf("Expected 20 labels, got %d", len(m.Labels))
	}
	if m.LabeledCount() != 0 {
		t.Errorf("Expected no labeled pixels, got %d", m.LabeledCount())
	}
	if m.At(10, 10) != models.Unlabeled {
		t.Errorf("Expected out-of-range lookup to be unlabeled")
	}
}

func TestClearThenSinglePixelBrush(t *testing.T) {
	m := NewMask(6, 6)
	m.Paint(3, 3, 5, models.Nucleus)
	m.Clear()

	for i, l := range m.Labels {
		if l != models.Unlabeled {
			t.Fatalf("Expected cleared mask, pixel %d has label %d", i, l)
		}
	}

	m.Paint(2, 4, 1, models.Cell)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			want := models.Unlabeled
			if x == 2 && y == 4 {
				want = models.Cell
			}
			if got := m.At(x, y); got != want {
				t.Errorf("pixel (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestPaintCircularBrush(t *testing.T) {
	m := NewMask(9, 9)
	m.Paint(4, 4, 5, models.Membrane) // radius 2

	// radius 2 disc: 13 pixels (corners of the 5x5 box and the (±2,±1) ring excluded)
	if got := m.LabeledCount(); got != 13 {
		t.Fatalf("Expected 13 painted pixels, got %d", got)
	}
	if m.At(6, 4) != models.Membrane || m.At(4, 2) != models.Membrane {
		t.Errorf("Expected axis pixels at distance 2 to be painted")
	}
	if m.At(5, 5) != models.Membrane {
		t.Errorf("Expected diagonal pixel at distance 1.41 to be painted")
	}
	if m.At(6, 5) != models.Unlabeled || m.At(6, 6) != models.Unlabeled {
		t.Errorf("Expected pixels beyond the radius to stay unlabeled")
	}
}

func TestPaintClipsAtEdgesAndIgnoresOutsideCentre(t *testing.T) {
	m := NewMask(4, 4)
	m.Paint(0, 0, 3, models.Cell)
	if got := m.LabeledCount(); got != 3 {
		t.Errorf("Expected 3 pixels painted at the corner, got %d", got)
	}

	m.Paint(-1, 2, 9, models.Background)
	m.Paint(2, 4, 9, models.Background)
	if got := m.Counts()[models.Background]; got != 0 {
		t.Errorf("Expected brush with centre outside the mask to paint nothing, got %d", got)
	}
}

func TestEraseAndCounts(t *testing.T) {
	m := NewMask(5, 5)
	m.Paint(1, 1, 3, models.Cell)
	m.Paint(3, 3, 1, models.Background)
	m.Set(4, 0, 7)

	want := map[models.Label]int{models.Cell: 5, models.Background: 1, 7: 1}
	if got := m.Counts(); !reflect.DeepEqual(got, want) {
		t.Errorf("Counts = %v, want %v", got, want)
	}
	if got := m.DistinctLabels(); !reflect.DeepEqual(got, []models.Label{1, 2, 7}) {
		t.Errorf("DistinctLabels = %v", got)
	}

	m.Erase(1, 1, 1)
	if m.At(1, 1) != models.Unlabeled || m.Counts()[models.Cell] != 4 {
		t.Errorf("Expected erase to clear only the centre pixel")
	}
}

func TestCrop(t *testing.T) {
	m := NewMask(4, 3)
	for i := range m.Labels {
		m.Labels[i] = models.Label(i)
	}

	out, err := m.Crop(image.Rect(1, 1, 3, 3))
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if out.Width != 2 || out.Height != 2 {
		t.Fatalf("Expected 2x2 crop, got %dx%d", out.Width, out.Height)
	}
	if !reflect.DeepEqual(out.Labels, []models.Label{5, 6, 9, 10}) {
		t.Errorf("Unexpected crop contents %v", out.Labels)
	}

	if _, err := m.Crop(image.Rect(2, 0, 5, 2)); err == nil {
		t.Error("Expected error for rectangle outside the mask")
	}
	if _, err := m.Crop(image.Rect(1, 1, 1, 2)); err == nil {
		t.Error("Expected error for empty rectangle")
	}
}

func TestClassicAndContrastTables(t *testing.T) {
	classic := ClassicTable()
	if classic.Color(models.Background) != [3]uint8{0, 255, 0} {
		t.Errorf("Expected green background, got %v", classic.Color(models.Background))
	}
	if classic.Name(models.Membrane) != "Membrane" {
		t.Errorf("Expected Membrane, got %s", classic.Name(models.Membrane))
	}

	contrast := ContrastTable()
	if contrast.Color(models.Background) != [3]uint8{0, 0, 0} {
		t.Errorf("Expected black background, got %v", contrast.Color(models.Background))
	}

	if classic.Color(42) != UnknownColor {
		t.Errorf("Expected gray for unknown label")
	}
	if classic.Name(42) != "Label 42" {
		t.Errorf("Expected fallback name, got %s", classic.Name(42))
	}

	if _, err := Palette("neon"); err == nil {
		t.Error("Expected error for unknown palette")
	}
	if p, err := Palette("Contrast"); err != nil || p.Color(models.Nucleus) != [3]uint8{0, 255, 0} {
		t.Errorf("Expected contrast palette, got %v (%v)", p, err)
	}
}

func TestAddCustomLabel(t *testing.T) {
	table := ClassicTable()

	first := table.Add("Vacuole")
	second := table.Add("Debris")
	if first.ID != 5 || second.ID != 6 {
		t.Fatalf("Expected ids 5 and 6, got %d and %d", first.ID, second.ID)
	}
	if table.Name(5) != "Vacuole" {
		t.Errorf("Expected name Vacuole, got %s", table.Name(5))
	}

	// hue 0.09 at s=v=0.8 is roughly (204, 128, 40)
	want := [3]int{204, 128, 40}
	for i, c := range first.Color {
		if d := int(c) - want[i]; d < -1 || d > 1 {
			t.Errorf("Channel %d = %d, want about %d", i, c, want[i])
		}
	}
	if first.Color == second.Color {
		t.Errorf("Expected distinct generated colors")
	}

	if got := table.IDs(); !reflect.DeepEqual(got, []models.Label{1, 2, 3, 4, 5, 6}) {
		t.Errorf("IDs = %v", got)
	}
	if len(table.Entries()) != table.Len() {
		t.Errorf("Entries and Len disagree")
	}
}

func TestSetAdvancesNextID(t *testing.T) {
	table := NewTable()
	table.Set(9, "Spore", [3]uint8{1, 2, 3})
	if e := table.Add("Next"); e.ID != 10 {
		t.Errorf("Expected next id 10, got %d", e.ID)
	}
}
