package merge

import (
	"reflect"
	"testing"

	"github.com/hyperjump/bukken/internal/models"
)

func TestMerge_SummableNumericField(t *testing.T) {
	m := NewMerger("")
	out, stats := m.Merge([]models.Record{
		{"Unit Name": "U1", "Unit Price": 100.0},
		{"Unit Name": "U1", "Unit Price": 50.0},
	})
	if len(out) != 1 {
		t.Fatalf("units: got %d", len(out))
	}
	if out[0]["Unit Price"] != 150.0 {
		t.Errorf("Unit Price = %v, want 150", out[0]["Unit Price"])
	}
	if stats.Units != 1 || stats.InputRows != 2 || stats.Dropped != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMerge_NonSummableNumericFirstWins(t *testing.T) {
	m := NewMerger("")
	out, _ := m.Merge([]models.Record{
		{"Unit Name": "U1", "Floor": 3.0},
		{"Unit Name": "U1", "Floor": 5.0},
	})
	if out[0]["Floor"] != 3.0 {
		t.Errorf("Floor = %v, want 3 (first wins)", out[0]["Floor"])
	}
}

func TestMerge_StringConcatenation(t *testing.T) {
	m := NewMerger("")
	out, _ := m.Merge([]models.Record{
		{"Unit Name": "U1", "Phase": "A"},
		{"Unit Name": "U1", "Phase": "B"},
	})
	if out[0]["Phase"] != "A, B" {
		t.Errorf("Phase = %v, want %q", out[0]["Phase"], "A, B")
	}
}

func TestMerge_IdenticalStringsNotConcatenated(t *testing.T) {
	m := NewMerger("")
	out, _ := m.Merge([]models.Record{
		{"Unit Name": "U1", "Phase": "A"},
		{"Unit Name": "U1", "Phase": "A"},
	})
	if out[0]["Phase"] != "A" {
		t.Errorf("Phase = %v, want %q", out[0]["Phase"], "A")
	}
}

func TestMerge_DuplicateStringsNotDeduplicated(t *testing.T) {
	m := NewMerger("")
	out, _ := m.Merge([]models.Record{
		{"Unit Name": "U1", "Phase": "A"},
		{"Unit Name": "U1", "Phase": "B"},
		{"Unit Name": "U1", "Phase": "A"},
	})
	// Fold order, no dedup: "A, B" then "A, B, A".
	if out[0]["Phase"] != "A, B, A" {
		t.Errorf("Phase = %v, want %q", out[0]["Phase"], "A, B, A")
	}
}

func TestMerge_AbsentFieldAdopted(t *testing.T) {
	m := NewMerger("")
	out, _ := m.Merge([]models.Record{
		{"Unit Name": "U1"},
		{"Unit Name": "U1", "Garden Area": 40.0},
	})
	if out[0]["Garden Area"] != 40.0 {
		t.Errorf("Garden Area = %v, want adopted value", out[0]["Garden Area"])
	}
}

func TestMerge_MixedTypesKeepAccumulator(t *testing.T) {
	m := NewMerger("")
	out, _ := m.Merge([]models.Record{
		{"Unit Name": "U1", "Block": "B1"},
		{"Unit Name": "U1", "Block": 7.0},
	})
	if out[0]["Block"] != "B1" {
		t.Errorf("Block = %v, want accumulator value kept", out[0]["Block"])
	}
}

func TestMerge_MissingKeyDropped(t *testing.T) {
	m := NewMerger("")
	out, stats := m.Merge([]models.Record{
		{"Unit Name": "U1", "Phase": "A"},
		{"Phase": "B", "Unit Price": 100.0}, // no key: dropped regardless of other fields
		{"Unit Name": "  ", "Phase": "C"},   // whitespace-only key counts as missing
	})
	if len(out) != 1 {
		t.Fatalf("units: got %d, want 1", len(out))
	}
	if stats.Dropped != 2 {
		t.Errorf("dropped = %d, want 2", stats.Dropped)
	}
	if !reflect.DeepEqual(stats.DroppedRows, []int{1, 2}) {
		t.Errorf("dropped rows = %v, want [1 2]", stats.DroppedRows)
	}
}

func TestMerge_SingletonsPassThrough(t *testing.T) {
	m := NewMerger("")
	in := []models.Record{
		{"Unit Name": "U1", "Phase": "A"},
		{"Unit Name": "U2", "Unit Price": 100.0},
	}
	out, stats := m.Merge(in)
	if !reflect.DeepEqual(out, in) {
		t.Errorf("singleton groups should pass through unchanged:\n got %v\nwant %v", out, in)
	}
	if stats.Units != 2 {
		t.Errorf("units = %d", stats.Units)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	m := NewMerger("")
	once, _ := m.Merge([]models.Record{
		{"Unit Name": "U1", "Unit Price": 100.0, "Phase": "A"},
		{"Unit Name": "U1", "Unit Price": 50.0, "Phase": "B"},
		{"Unit Name": "U2", "Floor": 3.0},
	})
	twice, stats := m.Merge(once)
	if !reflect.DeepEqual(twice, once) {
		t.Errorf("merging a merged set should be a no-op:\n got %v\nwant %v", twice, once)
	}
	if stats.Dropped != 0 {
		t.Errorf("dropped = %d", stats.Dropped)
	}
}

func TestMerge_OrderStable(t *testing.T) {
	m := NewMerger("")
	out, _ := m.Merge([]models.Record{
		{"Unit Name": "U2", "Phase": "late"},
		{"Unit Name": "U1", "Phase": "B"},
		{"Unit Name": "U1", "Phase": "A"},
	})
	if out[0]["Unit Name"] != "U2" || out[1]["Unit Name"] != "U1" {
		t.Fatalf("output order should follow first appearance: %v", out)
	}
	if out[1]["Phase"] != "B, A" {
		t.Errorf("Phase = %v, want fold in input order", out[1]["Phase"])
	}
}

func TestMerge_CustomKeyField(t *testing.T) {
	m := NewMerger("Unit Code")
	out, _ := m.Merge([]models.Record{
		{"Unit Code": 101.0, "Unit Price": 100.0},
		{"Unit Code": 101.0, "Unit Price": 50.0},
	})
	if len(out) != 1 || out[0]["Unit Price"] != 150.0 {
		t.Fatalf("numeric custom key should group: %v", out)
	}
}

func TestMerge_InputNotMutated(t *testing.T) {
	m := NewMerger("")
	first := models.Record{"Unit Name": "U1", "Unit Price": 100.0}
	_, _ = m.Merge([]models.Record{
		first,
		{"Unit Name": "U1", "Unit Price": 50.0},
	})
	if first["Unit Price"] != 100.0 {
		t.Errorf("input record mutated: %v", first)
	}
}

func TestIsSummable(t *testing.T) {
	for _, f := range []string{"Unit Price", "unit price", "GROSS AREA", " Sellable Area "} {
		if !isSummable(f) {
			t.Errorf("%q should be summable", f)
		}
	}
	for _, f := range []string{"Floor", "Bedrooms", "Phase"} {
		if isSummable(f) {
			t.Errorf("%q should not be summable", f)
		}
	}
}
