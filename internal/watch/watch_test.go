package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_PicksUpDroppedFile(t *testing.T) {
	dir := t.TempDir()
	got := make(chan string, 1)
	w := NewWatcher([]string{dir}, []string{".csv"}, func(path string) {
		got <- path
	}, WithDebounce(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "drop.csv")
	if err := os.WriteFile(path, []byte("Unit Name\nA-101\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if p != path {
			t.Errorf("path = %q, want %q", p, path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for dropped file")
	}
}

func TestWatcher_IgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	got := make(chan string, 1)
	w := NewWatcher([]string{dir}, []string{".csv", ".xlsx"}, func(path string) {
		got <- path
	}, WithDebounce(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		t.Fatalf("unexpected pickup of %q", p)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_CreatesMissingDirs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "drop", "nested")
	w := NewWatcher([]string{dir}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("drop dir not created: %v", err)
	}
}

func TestSyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "old.csv"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	var seen []string
	w := NewWatcher([]string{dir}, []string{"csv"}, func(path string) {
		seen = append(seen, path)
	})
	w.SyncExistingFiles()
	if len(seen) != 1 || filepath.Base(seen[0]) != "old.csv" {
		t.Errorf("seen = %v", seen)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path string
		exts []string
		want bool
	}{
		{"a.csv", []string{".csv"}, true},
		{"a.CSV", []string{"csv"}, true},
		{"a.xlsx", []string{".csv", ".xlsx"}, true},
		{"a.txt", []string{".csv"}, false},
		{"a.txt", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.exts); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.exts, got, tt.want)
		}
	}
}
