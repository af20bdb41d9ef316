// Package catalog holds the follow-up question sets and the problem category
// vocabulary. The catalog ships embedded and can be overridden by a TOML file
// that is reloaded when it changes.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed default.toml
var defaultTOML []byte

// ErrInvalidCatalog is returned when a catalog document fails validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Wildcard is the equipment type of the default follow-up set.
const Wildcard = "*"

const maxCatalogSize = 1 << 20

type document struct {
	Categories  []string            `toml:"categories"`
	SafetyTerms map[string][]string `toml:"safety_terms"`
	Followups   []followup          `toml:"followups"`
}

type followup struct {
	EquipmentType string   `toml:"equipment_type"`
	Questions     []string `toml:"questions"`
}

type snapshot struct {
	categories []string
	questions  map[string][]string
	safety     map[string]bool
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu   sync.RWMutex
	snap *snapshot
}

// Default returns the embedded catalog.
func Default() *Catalog {
	snap, err := parse(defaultTOML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return &Catalog{snap: snap}
}

// Load reads a catalog file. An empty path returns the embedded catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	snap, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return &Catalog{snap: snap}, nil
}

// Questions returns the follow-up questions for an equipment type, falling
// back to the wildcard set. The result is a copy.
func (c *Catalog) Questions(equipmentType string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	qs, ok := c.snap.questions[normalize(equipmentType)]
	if !ok {
		qs = c.snap.questions[Wildcard]
	}
	return append([]string(nil), qs...)
}

// Categories returns the category vocabulary.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.snap.categories...)
}

// HasCategory reports whether label is in the vocabulary.
func (c *Catalog) HasCategory(label string) bool {
	label = normalize(label)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cat := range c.snap.categories {
		if cat == label {
			return true
		}
	}
	return false
}

// IsSafetyTerm reports whether word is a hazard word in any language.
func (c *Catalog) IsSafetyTerm(word string) bool {
	word = normalize(word)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.safety[word]
}

// Reload replaces the catalog with the file's contents. On error the current
// catalog is kept.
func (c *Catalog) Reload(path string) error {
	snap, err := readFile(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	return nil
}

func readFile(path string) (*snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidCatalog, path)
	}
	if info.Size() > maxCatalogSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidCatalog, path, maxCatalogSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*snapshot, error) {
	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidCatalog)
	}

	snap := &snapshot{
		questions: make(map[string][]string, len(doc.Followups)),
		safety:    make(map[string]bool),
	}
	for lang, terms := range doc.SafetyTerms {
		for _, term := range terms {
			term = normalize(term)
			if strings.ContainsRune(term, ' ') {
				return nil, fmt.Errorf("%w: safety term %q (%s) is not a single word", ErrInvalidCatalog, term, lang)
			}
			if term != "" {
				snap.safety[term] = true
			}
		}
	}
	for _, cat := range doc.Categories {
		if cat = normalize(cat); cat != "" {
			snap.categories = append(snap.categories, cat)
		}
	}
	for i, f := range doc.Followups {
		key := normalize(f.EquipmentType)
		if key == "" {
			return nil, fmt.Errorf("%w: followups[%d] has no equipment_type", ErrInvalidCatalog, i)
		}
		if _, dup := snap.questions[key]; dup {
			return nil, fmt.Errorf("%w: duplicate followups for %q", ErrInvalidCatalog, key)
		}
		var qs []string
		for _, q := range f.Questions {
			if q = strings.TrimSpace(q); q != "" {
				qs = append(qs, q)
			}
		}
		snap.questions[key] = qs
	}
	if _, ok := snap.questions[Wildcard]; !ok {
		return nil, fmt.Errorf("%w: missing %q followups", ErrInvalidCatalog, Wildcard)
	}
	return snap, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
