package hosts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmpty(t *testing.T) {
	r := NewRegistry(t.TempDir())

	reg, err := r.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(reg.Hosts) != 0 {
		t.Errorf("expected empty registry, got %d hosts", len(reg.Hosts))
	}
}

func TestAddGetList(t *testing.T) {
	r := NewRegistry(t.TempDir())

	if err := r.Add(Entry{Name: "lab", Address: "hv01.lab", User: "ops"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := r.Add(Entry{Name: "edge"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	h, err := r.Get("LAB")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if h.Address != "hv01.lab" || h.User != "ops" {
		t.Errorf("Get = %+v", h)
	}
	if h.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	edge, err := r.Get("edge")
	if err != nil {
		t.Fatal(err)
	}
	if edge.Address != "edge" {
		t.Errorf("address should default to the name, got %q", edge.Address)
	}

	list, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "lab" || list[1].Name != "edge" {
		t.Errorf("List = %+v", list)
	}
}

func TestAddDuplicate(t *testing.T) {
	r := NewRegistry(t.TempDir())
	if err := r.Add(Entry{Name: "lab"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(Entry{Name: "Lab"}); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
	if err := r.Add(Entry{}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestActive(t *testing.T) {
	r := NewRegistry(t.TempDir())

	if err := r.SetActive("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetActive of unknown host: got %v", err)
	}

	if err := r.Add(Entry{Name: "lab"}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetActive("LAB"); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	active, err := r.GetActive()
	if err != nil {
		t.Fatal(err)
	}
	if active != "lab" {
		t.Errorf("active = %q, want stored name 'lab'", active)
	}

	if err := r.ClearActive(); err != nil {
		t.Fatal(err)
	}
	if active, _ := r.GetActive(); active != "" {
		t.Errorf("active after clear = %q", active)
	}
	// Clearing twice is fine.
	if err := r.ClearActive(); err != nil {
		t.Errorf("second ClearActive: %v", err)
	}
}

func TestRemoveClearsActive(t *testing.T) {
	r := NewRegistry(t.TempDir())
	for _, name := range []string{"a", "b"} {
		if err := r.Add(Entry{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.SetActive("a"); err != nil {
		t.Fatal(err)
	}

	if err := r.Remove("a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if active, _ := r.GetActive(); active != "" {
		t.Errorf("active should be cleared, got %q", active)
	}
	if _, err := r.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("removed host still present: %v", err)
	}
	if err := r.Remove("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove: got %v", err)
	}
}

func TestResolve(t *testing.T) {
	r := NewRegistry(t.TempDir())

	if _, err := r.Resolve(""); !errors.Is(err, ErrNoActive) {
		t.Errorf("expected ErrNoActive, got %v", err)
	}

	if err := r.Add(Entry{Name: "lab", Address: "10.0.0.5", Port: 2222}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetActive("lab"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		input      string
		wantTarget string
	}{
		{"active", "", "10.0.0.5:2222"},
		{"registered", "lab", "10.0.0.5:2222"},
		{"bare address", "hv02.example", "hv02.example"},
		{"bare address with port", "hv02.example:22", "hv02.example:22"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := r.Resolve(tt.input)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if got := h.Target(); got != tt.wantTarget {
				t.Errorf("Target = %q, want %q", got, tt.wantTarget)
			}
		})
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)
	if err := r.Add(Entry{Name: "lab"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "hosts.json.tmp")); !os.IsNotExist(err) {
		t.Error("temporary file should not remain after save")
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hosts.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRegistry(dir).Load(); err == nil {
		t.Error("expected parse error")
	}
}
