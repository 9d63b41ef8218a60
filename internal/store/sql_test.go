package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/bukken/internal/models"
)

func newTestStore(t *testing.T) *SQL {
	t.Helper()
	s, err := NewSQL("sqlite3", filepath.Join(t.TempDir(), "units.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testFields = []*models.FieldDescriptor{
	{Name: "Unit Name", Type: models.FieldString, Label: "Unit Name"},
	{Name: "Unit Price", Type: models.FieldNumber, Label: "Unit Price"},
	{Name: "Phase", Type: models.FieldString, Label: "Phase"},
}

func TestEnsureColumnsAndUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.EnsureColumns(ctx, testFields); err != nil {
		t.Fatal(err)
	}
	// Re-provisioning the same fields is a no-op.
	if err := s.EnsureColumns(ctx, testFields); err != nil {
		t.Fatal(err)
	}

	units := []models.Record{
		{"Unit Name": "A-101", "Unit Price": 1200.0, "Phase": "One"},
		{"Unit Name": "B-202", "Unit Price": 980.0},
	}
	if err := s.UpsertUnits(ctx, "Unit Name", units); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetUnit(ctx, "A-101")
	if err != nil {
		t.Fatal(err)
	}
	if got["Unit Name"] != "A-101" {
		t.Errorf("Unit Name = %v", got["Unit Name"])
	}
	if got["Unit Price"] != 1200.0 {
		t.Errorf("Unit Price = %v, want 1200", got["Unit Price"])
	}
	if got["Phase"] != "One" {
		t.Errorf("Phase = %v", got["Phase"])
	}

	count, err := s.CountUnits(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestUpsertUnits_UpdatesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.EnsureColumns(ctx, testFields); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertUnits(ctx, "Unit Name", []models.Record{
		{"Unit Name": "A-101", "Unit Price": 1200.0, "Phase": "One"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertUnits(ctx, "Unit Name", []models.Record{
		{"Unit Name": "A-101", "Unit Price": 1500.0},
	}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetUnit(ctx, "A-101")
	if err != nil {
		t.Fatal(err)
	}
	if got["Unit Price"] != 1500.0 {
		t.Errorf("Unit Price = %v, want updated 1500", got["Unit Price"])
	}
	// Fields absent from the re-upload keep their stored value.
	if got["Phase"] != "One" {
		t.Errorf("Phase = %v, want One", got["Phase"])
	}
	count, _ := s.CountUnits(ctx)
	if count != 1 {
		t.Errorf("count = %d, want 1 (upsert, not insert)", count)
	}
}

func TestEnsureColumns_NewFieldsAcrossUploads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.EnsureColumns(ctx, testFields); err != nil {
		t.Fatal(err)
	}
	// A later upload discovers a new column.
	extra := []*models.FieldDescriptor{
		{Name: "Garden Area", Type: models.FieldNumber, Label: "Garden Area"},
	}
	if err := s.EnsureColumns(ctx, extra); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertUnits(ctx, "Unit Name", []models.Record{
		{"Unit Name": "C-303", "Garden Area": 40.0},
	}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetUnit(ctx, "C-303")
	if err != nil {
		t.Fatal(err)
	}
	if got["Garden Area"] != 40.0 {
		t.Errorf("Garden Area = %v", got["Garden Area"])
	}
}

func TestEnsureColumns_CollidingNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fields := []*models.FieldDescriptor{
		{Name: "Unit Price", Type: models.FieldNumber},
		{Name: "unit price", Type: models.FieldString}, // same normalized identifier
	}
	if err := s.EnsureColumns(ctx, fields); err != nil {
		t.Fatal(err)
	}
	s.mu.RLock()
	a := s.columns["Unit Price"].Column
	b := s.columns["unit price"].Column
	s.mu.RUnlock()
	if a == b {
		t.Errorf("colliding field names must get distinct columns, both %q", a)
	}
}

func TestGetUnit_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetUnit(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing unit")
	}
}

func TestListUnits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.EnsureColumns(ctx, testFields); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertUnits(ctx, "Unit Name", []models.Record{
		{"Unit Name": "A-101", "Unit Price": 1200.0},
		{"Unit Name": "B-202", "Unit Price": 980.0},
		{"Unit Name": "C-303", "Unit Price": 1100.0},
	}); err != nil {
		t.Fatal(err)
	}
	units, err := s.ListUnits(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 2 {
		t.Fatalf("list: got %d, want 2", len(units))
	}
}

func TestUploadHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	up := &models.Upload{
		ID:           "u-1",
		Filename:     "phase2.xlsx",
		SizeBytes:    2048,
		ParsedRows:   120,
		Units:        100,
		DroppedNoKey: 3,
	}
	if err := s.RecordUpload(ctx, up); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListUploads(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("uploads: got %d", len(list))
	}
	if list[0].Filename != "phase2.xlsx" || list[0].DroppedNoKey != 3 {
		t.Errorf("upload = %+v", list[0])
	}
	if list[0].CreatedAt.IsZero() {
		t.Error("created_at should be set on insert")
	}
}

func TestColumnName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Unit Name", "unit_name"},
		{"Unit Price (EGP)", "unit_price_egp"},
		{"  Plot Area  ", "plot_area"},
		{"3BR Count", "f_3br_count"},
		{"???", "field"},
		{"unit_key", "unit_key_field"},
	}
	for _, tt := range tests {
		if got := columnName(tt.in); got != tt.want {
			t.Errorf("columnName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
