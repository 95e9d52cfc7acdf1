package ledger

import (
	"os"
	"path/filepath"
	"testing"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	led, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return led
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	led := newLedger(t)
	ids, err := led.Load(PhaseDownloaded)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected empty set, got %v", ids)
	}
}

func TestAppendThenLoad(t *testing.T) {
	led := newLedger(t)
	for _, id := range []int{100, 55, 7} {
		if err := led.Append(PhaseDownloaded, id); err != nil {
			t.Fatalf("Append(%d): %v", id, err)
		}
	}
	ids, err := led.Load(PhaseDownloaded)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	for _, id := range []int{100, 55, 7} {
		if _, ok := ids[id]; !ok {
			t.Errorf("id %d missing after append", id)
		}
	}
}

func TestLoadDeduplicatesRepeats(t *testing.T) {
	led := newLedger(t)
	for i := 0; i < 5; i++ {
		if err := led.Append(PhaseIndexed, 42); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	ids, err := led.Load(PhaseIndexed)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("expected 1 distinct id after 5 identical appends, got %d", len(ids))
	}
}

func TestLoadSkipsGarbageLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, PhaseDownloaded.filename())
	if err := os.WriteFile(path, []byte("100\n\n  200  \nnot-a-number\n-5\n100\n"), 0o644); err != nil {
		t.Fatalf("seeding ledger file: %v", err)
	}
	led, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ids, err := led.Load(PhaseDownloaded)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected {100, 200}, got %v", ids)
	}
	for _, id := range []int{100, 200} {
		if _, ok := ids[id]; !ok {
			t.Errorf("id %d missing", id)
		}
	}
}

func TestPhasesAreSeparateFiles(t *testing.T) {
	led := newLedger(t)
	if err := led.Append(PhaseDownloaded, 1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	indexed, err := led.Load(PhaseIndexed)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(indexed) != 0 {
		t.Errorf("indexed ledger polluted by downloaded append: %v", indexed)
	}
}
