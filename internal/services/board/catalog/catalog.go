// Package catalog provides the immutable slot and song catalogs a board
// validates mutations against.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

//go:embed catalog.json
var defaultCatalogJSON []byte

// Catalog is the validated set of slot names plus the advisory song list.
// It is immutable after construction and safe for concurrent readers.
type Catalog struct {
	slots   []string
	slotSet map[string]struct{}
	songs   []string
}

type catalogFile struct {
	Slots []string `json:"slots"`
	Songs []string `json:"songs"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return parse(defaultCatalogJSON)
}

// Load reads an operator-supplied catalog file so deployments can swap slot
// sets and song lists without rebuilding.
func Load(path string) (*Catalog, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return parse(payload)
}

// New builds a catalog from explicit slot and song lists.
func New(slots, songs []string) (*Catalog, error) {
	return build(catalogFile{Slots: slots, Songs: songs})
}

func parse(payload []byte) (*Catalog, error) {
	var file catalogFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return build(file)
}

func build(file catalogFile) (*Catalog, error) {
	if len(file.Slots) == 0 {
		return nil, fmt.Errorf("catalog requires at least one slot")
	}

	catalog := &Catalog{
		slots:   make([]string, 0, len(file.Slots)),
		slotSet: make(map[string]struct{}, len(file.Slots)),
		songs:   make([]string, 0, len(file.Songs)),
	}
	for _, slot := range file.Slots {
		slot = strings.TrimSpace(slot)
		if slot == "" {
			return nil, fmt.Errorf("catalog slot names must be non-empty")
		}
		if _, ok := catalog.slotSet[slot]; ok {
			return nil, fmt.Errorf("catalog slot %q is duplicated", slot)
		}
		catalog.slots = append(catalog.slots, slot)
		catalog.slotSet[slot] = struct{}{}
	}
	for _, song := range file.Songs {
		song = strings.TrimSpace(song)
		if song == "" {
			continue
		}
		catalog.songs = append(catalog.songs, song)
	}
	return catalog, nil
}

// IsValidSlot reports whether name is a slot boards may fill. Matching is
// case-sensitive: slot names are fixed labels, not free text.
func (c *Catalog) IsValidSlot(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.slotSet[name]
	return ok
}

// Slots returns slot names in declaration order.
func (c *Catalog) Slots() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.slots))
	copy(out, c.slots)
	return out
}

// ListSongs returns the advisory song list. Pick values are not restricted
// to it; they are validated only for non-emptiness.
func (c *Catalog) ListSongs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.songs))
	copy(out, c.songs)
	return out
}
