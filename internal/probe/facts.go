package probe

import (
	"fmt"
	"os"
	"sort"

	toml "github.com/pelletier/go-toml"
)

// Fact is the measured layout of one type.
type Fact struct {
	Size  int `toml:"size"`
	Align int `toml:"align"`
	// Offsets holds byte offsets of the data members that were safe to
	// measure; absent for types where offsetof is not well-defined.
	Offsets map[string]int `toml:"offsets,omitempty"`
}

// Table is the persisted layout-fact artifact: every measured type for one
// (model, platform, toolchain) combination. It is TOML so a regenerated
// table diffs cleanly next to the emitted sources.
type Table struct {
	Platform  string `toml:"platform"`
	Toolchain string `toml:"toolchain"`
	// Key ties the table to the inputs that produced it; see CacheKey.
	Key   string          `toml:"key,omitempty"`
	Facts map[string]Fact `toml:"facts"`
}

// NewTable builds an empty table stamped with its provenance.
func NewTable(platform, toolchain, key string) *Table {
	return &Table{Platform: platform, Toolchain: toolchain, Key: key, Facts: make(map[string]Fact)}
}

// Lookup returns the fact recorded for a C++ type name.
func (t *Table) Lookup(name string) (Fact, bool) {
	f, ok := t.Facts[name]
	return f, ok
}

// Names returns every recorded type name, sorted.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.Facts))
	for n := range t.Facts {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// LoadTable reads a fact table from disk.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fact table: %w", err)
	}
	var t Table
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse fact table %s: %w", path, err)
	}
	if t.Facts == nil {
		t.Facts = make(map[string]Fact)
	}
	return &t, nil
}

// Save writes the table to disk.
func (t *Table) Save(path string) error {
	data, err := toml.Marshal(*t)
	if err != nil {
		return fmt.Errorf("encode fact table: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fact table: %w", err)
	}
	return nil
}
