package gowrap

import (
	"fmt"

	"github.com/binderylabs/bindery/internal/generator/common"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/platform"
	"github.com/binderylabs/bindery/internal/registry"
	"github.com/binderylabs/bindery/internal/resolve"
)

// goKind classifies how one declared C++ type crosses into Go.
type goKind int

const (
	goVoid goKind = iota
	// goScalar crosses as a plain Go scalar.
	goScalar
	// goEnum crosses as a generated enum type over int32.
	goEnum
	// goClass crosses as a wrapper handle; the bridge sees an opaque
	// pointer either way.
	goClass
	// goPrimPtr is one level of indirection onto a scalar-compatible
	// pointee, typed *scalar on the Go side.
	goPrimPtr
	// goRawPtr is a crossing with no typed Go spelling: void pointers
	// and double indirection. The wrapper sees unsafe.Pointer.
	goRawPtr
)

// goSpec is the full crossing description of one type: the wrapper
// spelling, the bridge-function spelling and the cgo conversions
// between them.
type goSpec struct {
	kind   goKind
	scalar string // Go scalar name for goScalar and goPrimPtr
	cgo    string // identifier after "C." naming the C-side type
	target *resolve.Target
	enum   *model.Enum
	// raw is the full cgo cast spelling for goRawPtr crossings that
	// still need a typed C argument, e.g. "**C.int". Empty means the
	// value passes through as unsafe.Pointer unchanged.
	raw string
	// cdecl is the C declaration spelling without qualifiers, used in
	// the extern prototypes of exported trampolines.
	cdecl string
	// byValue marks a class crossing declared by value rather than
	// through a pointer or reference.
	byValue bool
}

// goMapper classifies platform-normalized types against the plan. It is
// the wrapper-side twin of the shim's type mapper and must route names
// to the same targets, or the two files would disagree about a symbol's
// signature.
type goMapper struct {
	ix   *model.Index
	prof *platform.Profile
	arts *common.Artifacts

	byClass map[*model.Class]*resolve.Target
	byKey   map[string]*resolve.Target
}

func newGoMapper(plan *resolve.Plan, ix *model.Index, prof *platform.Profile, arts *common.Artifacts) *goMapper {
	g := &goMapper{
		ix:      ix,
		prof:    prof,
		arts:    arts,
		byClass: make(map[*model.Class]*resolve.Target, len(plan.Targets)),
		byKey:   make(map[string]*resolve.Target),
	}
	for _, t := range plan.Targets {
		g.byClass[t.Class] = t
		if t.Instance != nil {
			g.byKey[t.Instance.CppName()] = t
		}
	}
	return g
}

func (g *goMapper) targetFor(from []string, t model.TypeRef) *resolve.Target {
	switch t.Kind {
	case model.KindNamed:
		if c := g.ix.LookupClass(from, t.Name); c != nil {
			return g.byClass[c]
		}
	case model.KindTemplate:
		if key := registry.InstanceKey(g.ix, g.prof, from, t); key != "" {
			return g.byKey[key]
		}
	}
	return nil
}

func (g *goMapper) enumFor(from []string, t model.TypeRef) *model.Enum {
	if t.Kind != model.KindNamed {
		return nil
	}
	e := g.ix.LookupEnum(from, t.Name)
	if e == nil {
		return nil
	}
	if _, ok := g.arts.Enum[e]; !ok {
		return nil
	}
	return e
}

// primitive maps one canonical primitive spelling. Only the width of
// long depends on the profile; everything else is fixed by the C ABI on
// every supported target.
func (g *goMapper) primitive(name string) (goSpec, error) {
	s := goSpec{kind: goScalar, cdecl: name}
	switch name {
	case "bool":
		s.scalar, s.cgo = "bool", "bool"
	case "char":
		s.scalar, s.cgo = "int8", "char"
	case "signed char":
		s.scalar, s.cgo = "int8", "schar"
	case "unsigned char":
		s.scalar, s.cgo = "uint8", "uchar"
	case "short":
		s.scalar, s.cgo = "int16", "short"
	case "unsigned short":
		s.scalar, s.cgo = "uint16", "ushort"
	case "int":
		s.scalar, s.cgo = "int32", "int"
	case "unsigned int":
		s.scalar, s.cgo = "uint32", "uint"
	case "long":
		s.cgo = "long"
		if g.prof.LongBytes() == 4 {
			s.scalar = "int32"
		} else {
			s.scalar = "int64"
		}
	case "unsigned long":
		s.cgo = "ulong"
		if g.prof.LongBytes() == 4 {
			s.scalar = "uint32"
		} else {
			s.scalar = "uint64"
		}
	case "long long":
		s.scalar, s.cgo = "int64", "longlong"
	case "unsigned long long":
		s.scalar, s.cgo = "uint64", "ulonglong"
	case "float":
		s.scalar, s.cgo = "float32", "float"
	case "double":
		s.scalar, s.cgo = "float64", "double"
	default:
		return goSpec{}, fmt.Errorf("primitive %q has no Go representation", name)
	}
	return s, nil
}

// spec classifies one declared type. Classification happens after
// platform normalization, so fixed-width aliases resolve before the
// primitive table is consulted.
func (g *goMapper) spec(from []string, declared model.TypeRef) (goSpec, error) {
	t := g.prof.Normalize(declared)
	switch t.Kind {
	case model.KindVoid, "":
		return goSpec{kind: goVoid}, nil
	case model.KindPrimitive:
		return g.primitive(t.Name)
	case model.KindNamed:
		if tg := g.targetFor(from, t); tg != nil {
			return goSpec{kind: goClass, target: tg, cgo: g.arts.CType[tg],
				cdecl: g.arts.CType[tg] + "*", byValue: true}, nil
		}
		if e := g.enumFor(from, t); e != nil {
			return goSpec{kind: goEnum, enum: e, cgo: g.arts.Enum[e], cdecl: g.arts.Enum[e]}, nil
		}
		return goSpec{}, fmt.Errorf("type %q has no generated form", t.Name)
	case model.KindTemplate:
		if tg := g.targetFor(from, t); tg != nil {
			return goSpec{kind: goClass, target: tg, cgo: g.arts.CType[tg],
				cdecl: g.arts.CType[tg] + "*", byValue: true}, nil
		}
		return goSpec{}, fmt.Errorf("template %q has no generated instance", t.String())
	case model.KindPointer, model.KindReference:
		return g.pointee(from, t)
	}
	return goSpec{}, fmt.Errorf("unsupported type %q", declared.String())
}

// pointee classifies one level of indirection. Class and enum pointees
// keep a typed crossing; a second level degrades to a raw pointer.
func (g *goMapper) pointee(from []string, t model.TypeRef) (goSpec, error) {
	e := *t.Elem
	switch e.Kind {
	case model.KindVoid:
		return goSpec{kind: goRawPtr, cdecl: "void*"}, nil
	case model.KindPrimitive:
		ps, err := g.primitive(e.Name)
		if err != nil {
			return goSpec{}, err
		}
		return goSpec{kind: goPrimPtr, scalar: ps.scalar, cgo: ps.cgo, cdecl: ps.cdecl + "*"}, nil
	case model.KindNamed, model.KindTemplate:
		if tg := g.targetFor(from, e); tg != nil {
			return goSpec{kind: goClass, target: tg, cgo: g.arts.CType[tg],
				cdecl: g.arts.CType[tg] + "*"}, nil
		}
		if en := g.enumFor(from, e); en != nil {
			return goSpec{kind: goPrimPtr, scalar: "int32", cgo: g.arts.Enum[en],
				cdecl: g.arts.Enum[en] + "*"}, nil
		}
		return goSpec{}, fmt.Errorf("pointee %q has no generated form", e.String())
	case model.KindPointer:
		inner := *e.Elem
		if inner.Kind == model.KindPrimitive {
			ps, err := g.primitive(inner.Name)
			if err != nil {
				return goSpec{}, err
			}
			return goSpec{kind: goRawPtr, raw: "**C." + ps.cgo, cdecl: ps.cdecl + "**"}, nil
		}
		if tg := g.targetFor(from, inner); tg != nil {
			ct := g.arts.CType[tg]
			return goSpec{kind: goRawPtr, raw: "**C." + ct, cdecl: ct + "**"}, nil
		}
		return goSpec{}, fmt.Errorf("indirection too deep for %q", t.String())
	}
	return goSpec{}, fmt.Errorf("unsupported pointee %q", e.String())
}

// bridgeType is the parameter or result type of a bridge function, as
// source text. Bridge functions traffic in plain Go types; every C type
// stays behind the conversions below.
func (s goSpec) bridgeType() string {
	switch s.kind {
	case goScalar:
		return s.scalar
	case goEnum:
		return "int32"
	case goClass, goRawPtr:
		return "unsafe.Pointer"
	case goPrimPtr:
		return "*" + s.scalar
	}
	return ""
}

// cArg renders the C call argument converting one bridge parameter.
func (s goSpec) cArg(name string) string {
	switch s.kind {
	case goScalar, goEnum:
		return "C." + s.cgo + "(" + name + ")"
	case goClass:
		return "(*C." + s.cgo + ")(" + name + ")"
	case goPrimPtr:
		return "(*C." + s.cgo + ")(unsafe.Pointer(" + name + "))"
	case goRawPtr:
		if s.raw == "" {
			return name
		}
		return "(" + s.raw + ")(" + name + ")"
	}
	return name
}

// fromC renders the bridge-side wrap of one C call result.
func (s goSpec) fromC(call string) string {
	switch s.kind {
	case goScalar:
		return s.scalar + "(" + call + ")"
	case goEnum:
		return "int32(" + call + ")"
	case goClass, goRawPtr:
		return "unsafe.Pointer(" + call + ")"
	case goPrimPtr:
		return "(*" + s.scalar + ")(unsafe.Pointer(" + call + "))"
	}
	return call
}

// cgoParam is the trampoline-side parameter type for one signal payload
// value, spelled in cgo types so the exported function matches the C
// prototype the shim typedef expects.
func (s goSpec) cgoParam() string {
	switch s.kind {
	case goScalar, goEnum:
		return "C." + s.cgo
	case goClass:
		return "*C." + s.cgo
	case goPrimPtr:
		return "*C." + s.cgo
	case goRawPtr:
		if s.raw == "" {
			return "unsafe.Pointer"
		}
		return s.raw
	}
	return "unsafe.Pointer"
}

// declScope is the namespace unqualified signature names resolve
// against, mirroring the shim emitter's rule.
func declScope(op *resolve.Operation) []string {
	if op.Kind == resolve.OpFunction {
		return op.Path
	}
	return op.Target.DeclPath()
}
