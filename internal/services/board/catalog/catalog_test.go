package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogValidatesSlots(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}

	if !c.IsValidSlot("Opener") {
		t.Fatal("expected Opener to be a valid slot")
	}
	if !c.IsValidSlot("Encore") {
		t.Fatal("expected Encore to be a valid slot")
	}
	if c.IsValidSlot("opener") {
		t.Fatal("slot matching must be case-sensitive")
	}
	if c.IsValidSlot("Intermission") {
		t.Fatal("expected unknown slot to be rejected")
	}
	if len(c.ListSongs()) == 0 {
		t.Fatal("expected default catalog to ship songs")
	}
}

func TestSlotsPreserveDeclarationOrder(t *testing.T) {
	c, err := New([]string{"Opener", "Closer", "Encore"}, nil)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	slots := c.Slots()
	want := []string{"Opener", "Closer", "Encore"}
	for i, slot := range want {
		if slots[i] != slot {
			t.Fatalf("expected order %v, got %v", want, slots)
		}
	}
}

func TestNewRejectsBadSlotSets(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected empty slot set to be rejected")
	}
	if _, err := New([]string{"Opener", "Opener"}, nil); err == nil {
		t.Fatal("expected duplicate slot to be rejected")
	}
	if _, err := New([]string{"Opener", "  "}, nil); err == nil {
		t.Fatal("expected blank slot to be rejected")
	}
}

func TestLoadReadsOperatorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	payload := `{"slots": ["First", "Last"], "songs": ["Only Song", "  "]}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if !c.IsValidSlot("First") || !c.IsValidSlot("Last") {
		t.Fatal("expected file-defined slots to validate")
	}
	songs := c.ListSongs()
	if len(songs) != 1 || songs[0] != "Only Song" {
		t.Fatalf("expected blank songs to be dropped, got %v", songs)
	}
}

func TestLoadRejectsMissingOrMalformedFiles(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected missing file to error")
	}

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected malformed file to error")
	}
}

func TestAccessorsCopyState(t *testing.T) {
	c, err := New([]string{"Opener"}, []string{"Horizon"})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	c.Slots()[0] = "Mutated"
	c.ListSongs()[0] = "Mutated"
	if !c.IsValidSlot("Opener") {
		t.Fatal("expected catalog state to be immutable through accessors")
	}
	if c.ListSongs()[0] != "Horizon" {
		t.Fatal("expected song list to be copied")
	}
}
