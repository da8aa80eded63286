// Package platform describes the generation target: pointer width and the
// mapping from fixed-width integer aliases to the primitives that realize
// them there.
//
// Overload resolution keys are computed against this mapping, so two
// source-distinct overloads may legitimately collide on one platform and
// stay apart on another. Profiles are TOML files; a few common targets are
// built in.
package platform

import (
	"fmt"
	"os"
	"sort"

	toml "github.com/pelletier/go-toml"

	"github.com/binderylabs/bindery/internal/model"
)

// Profile is one target-platform description.
type Profile struct {
	// Name identifies the target, e.g. "linux-amd64".
	Name string `toml:"name"`
	// PointerWidth is the pointer size in bytes.
	PointerWidth int `toml:"pointer_width"`
	// LongWidth is the size of the C long type in bytes. Zero means it
	// matches the pointer width, which holds everywhere except LLP64
	// targets (64-bit Windows), where long stays 4 bytes.
	LongWidth int `toml:"long_width,omitempty"`
	// Aliases maps a fixed-width or platform-dependent alias name to the
	// canonical spelling of its underlying primitive on this target.
	Aliases map[string]string `toml:"aliases"`
}

// LongBytes returns the size of the C long type in bytes.
func (p *Profile) LongBytes() int {
	if p.LongWidth != 0 {
		return p.LongWidth
	}
	return p.PointerWidth
}

// HasAlias reports whether name is a known alias on this target.
func (p *Profile) HasAlias(name string) bool {
	_, ok := p.Aliases[name]
	return ok
}

// Normalize resolves fixed-width aliases to their underlying primitive,
// recursively through pointers, references and template arguments. Names
// that are not aliases pass through unchanged.
func (p *Profile) Normalize(t model.TypeRef) model.TypeRef {
	switch t.Kind {
	case model.KindNamed:
		if underlying, ok := p.Aliases[t.Name]; ok {
			prim := model.MustParseTypeRef(underlying)
			prim.Const = t.Const
			return prim
		}
		return t
	case model.KindPointer, model.KindReference:
		elem := p.Normalize(*t.Elem)
		t.Elem = &elem
		return t
	case model.KindTemplate:
		args := make([]model.TypeRef, len(t.Args))
		for i, a := range t.Args {
			args[i] = p.Normalize(a)
		}
		t.Args = args
		return t
	default:
		return t
	}
}

// Validate checks the profile for obvious mistakes: alias targets must
// parse as primitive spellings.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("platform profile has no name")
	}
	if p.PointerWidth != 4 && p.PointerWidth != 8 {
		return fmt.Errorf("platform %s: pointer width %d is not 4 or 8", p.Name, p.PointerWidth)
	}
	if p.LongWidth != 0 && p.LongWidth != 4 && p.LongWidth != 8 {
		return fmt.Errorf("platform %s: long width %d is not 4 or 8", p.Name, p.LongWidth)
	}
	names := make([]string, 0, len(p.Aliases))
	for a := range p.Aliases {
		names = append(names, a)
	}
	sort.Strings(names)
	for _, a := range names {
		ref, err := model.ParseTypeRef(p.Aliases[a])
		if err != nil {
			return fmt.Errorf("platform %s: alias %s: %w", p.Name, a, err)
		}
		if ref.Kind != model.KindPrimitive {
			return fmt.Errorf("platform %s: alias %s maps to %q, which is not a primitive", p.Name, a, p.Aliases[a])
		}
	}
	return nil
}

// Load reads a profile from a TOML file and validates it.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platform profile: %w", err)
	}
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse platform profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save writes the profile as TOML, so a built-in profile can be dumped,
// edited and loaded back.
func (p *Profile) Save(path string) error {
	data, err := toml.Marshal(*p)
	if err != nil {
		return fmt.Errorf("encode platform profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write platform profile: %w", err)
	}
	return nil
}
