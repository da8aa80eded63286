// Package diag collects generation diagnostics across pipeline stages.
//
// Fatal kinds abort the run; recoverable kinds exclude the affected entity
// and let the rest of the model generate. Omissions are not errors at all:
// they record operations that were intentionally not generated because the
// source type forbids them.
package diag

import "fmt"

// Kind classifies a diagnostic.
type Kind string

const (
	// ModelError marks a malformed or self-contradictory input model. Fatal.
	ModelError Kind = "model-error"
	// ProbeCompileError marks a layout probe that failed to build against
	// the real headers. Fatal: no downstream layout fact is trustworthy.
	ProbeCompileError Kind = "probe-compile-error"
	// ProbeFactMissing marks a single type that could not be probed. The
	// type and its dependents are excluded from output.
	ProbeFactMissing Kind = "probe-fact-missing"
	// AmbiguousOverload marks an overload set whose members normalize to
	// the same resolution key on the target platform. The set is excluded.
	AmbiguousOverload Kind = "ambiguous-overload"
	// InaccessibleOperation records a constructor, destructor or accessor
	// that was omitted because the member is not public. Not an error.
	InaccessibleOperation Kind = "inaccessible-operation"
)

// Fatal reports whether this kind aborts the whole run.
func (k Kind) Fatal() bool {
	return k == ModelError || k == ProbeCompileError
}

// Silent reports whether this kind is an omission record rather than a
// user-facing warning.
func (k Kind) Silent() bool {
	return k == InaccessibleOperation
}

// Diagnostic is one recorded problem or omission, attached to the
// namespace-qualified entity it concerns.
type Diagnostic struct {
	Kind   Kind
	Entity string
	Detail string
}

func (d *Diagnostic) Error() string {
	if d.Entity == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", d.Kind, d.Entity, d.Detail)
}

// New builds a diagnostic for the given entity.
func New(kind Kind, entity, format string, args ...any) *Diagnostic {
	return &Diagnostic{Kind: kind, Entity: entity, Detail: fmt.Sprintf(format, args...)}
}

// List accumulates diagnostics in the order they were reported. Stages
// append from a single goroutine; parallel workers hand their results back
// to the owning stage, which appends them in deterministic order.
type List struct {
	items []*Diagnostic
}

// Add appends a prepared diagnostic.
func (l *List) Add(d *Diagnostic) {
	l.items = append(l.items, d)
}

// Addf builds and appends a diagnostic in one call.
func (l *List) Addf(kind Kind, entity, format string, args ...any) {
	l.Add(New(kind, entity, format, args...))
}

// Merge appends all diagnostics from other, preserving order.
func (l *List) Merge(other *List) {
	if other == nil {
		return
	}
	l.items = append(l.items, other.items...)
}

// All returns every recorded diagnostic in report order.
func (l *List) All() []*Diagnostic {
	return l.items
}

// Len returns the number of recorded diagnostics.
func (l *List) Len() int {
	return len(l.items)
}

// HasFatal reports whether any recorded diagnostic aborts the run.
func (l *List) HasFatal() bool {
	for _, d := range l.items {
		if d.Kind.Fatal() {
			return true
		}
	}
	return false
}

// Fatals returns the diagnostics that abort the run.
func (l *List) Fatals() []*Diagnostic {
	return l.filter(func(k Kind) bool { return k.Fatal() })
}

// Warnings returns the recoverable, user-visible diagnostics.
func (l *List) Warnings() []*Diagnostic {
	return l.filter(func(k Kind) bool { return !k.Fatal() && !k.Silent() })
}

// Omissions returns the silent omission records.
func (l *List) Omissions() []*Diagnostic {
	return l.filter(Kind.Silent)
}

func (l *List) filter(keep func(Kind) bool) []*Diagnostic {
	var out []*Diagnostic
	for _, d := range l.items {
		if keep(d.Kind) {
			out = append(out, d)
		}
	}
	return out
}
