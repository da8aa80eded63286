package resolve

import (
	"strings"

	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/platform"
)

// Key is the resolution identity of one operation: scope, name, constness,
// static flag and the platform-normalized parameter signature. Two
// operations whose keys compare equal cannot both receive a symbol; they
// are an ambiguous overload pair on this platform.
type Key struct {
	// Scope is the qualified class name, or the namespace path for free
	// operations.
	Scope string
	// Name is the C++ member name, or "operator" plus the token.
	Name   string
	Const  bool
	Static bool
	// Sig holds one canonical spelling per parameter, after alias
	// resolution and top-level const stripping.
	Sig []string
}

// String renders the key the way a C++ reader would expect, for use in
// diagnostics and map lookups.
func (k Key) String() string {
	var b strings.Builder
	if k.Static {
		b.WriteString("static ")
	}
	if k.Scope != "" {
		b.WriteString(k.Scope)
		b.WriteString("::")
	}
	b.WriteString(k.Name)
	b.WriteByte('(')
	b.WriteString(strings.Join(k.Sig, ", "))
	b.WriteByte(')')
	if k.Const {
		b.WriteString(" const")
	}
	return b.String()
}

// normalizeParam rewrites a parameter type into resolution form: fixed
// width aliases become their platform primitives, and top-level const is
// dropped because it never participates in C++ overload resolution
// ("f(const int)" and "f(int)" declare the same function). Const behind a
// pointer or reference stays, since that genuinely overloads.
func normalizeParam(prof *platform.Profile, t model.TypeRef) model.TypeRef {
	n := prof.Normalize(t)
	n.Const = false
	return n
}

// signature renders the normalized signature of the first arity
// parameters.
func signature(prof *platform.Profile, params []model.Param, arity int) []string {
	if arity == 0 {
		return nil
	}
	sig := make([]string, arity)
	for i := 0; i < arity; i++ {
		sig[i] = normalizeParam(prof, params[i].Type).String()
	}
	return sig
}
