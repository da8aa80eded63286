package cshim

import (
	"fmt"

	"github.com/binderylabs/bindery/internal/generator/common"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/platform"
	"github.com/binderylabs/bindery/internal/registry"
	"github.com/binderylabs/bindery/internal/resolve"
)

// mapper renders model types into the C surface of the shim and into the
// C++ expressions that cross back to the library. It works on
// platform-normalized references only, so fixed-width aliases never leak
// into emitted text.
type mapper struct {
	ix   *model.Index
	prof *platform.Profile
	arts *common.Artifacts

	byClass map[*model.Class]*resolve.Target
	byKey   map[string]*resolve.Target
}

func newMapper(plan *resolve.Plan, ix *model.Index, prof *platform.Profile, arts *common.Artifacts) *mapper {
	m := &mapper{
		ix:      ix,
		prof:    prof,
		arts:    arts,
		byClass: make(map[*model.Class]*resolve.Target, len(plan.Targets)),
		byKey:   make(map[string]*resolve.Target),
	}
	for _, t := range plan.Targets {
		m.byClass[t.Class] = t
		if t.Instance != nil {
			m.byKey[t.Instance.CppName()] = t
		}
	}
	return m
}

// ctype is the opaque C struct name standing for a class.
func (m *mapper) ctype(t *resolve.Target) string {
	return m.arts.CType[t]
}

func (m *mapper) storageType(t *resolve.Target) string {
	return m.arts.Storage[t]
}

// cppName is the fully qualified C++ spelling of a target, anchored at
// the global namespace so shim code never depends on using-directives.
func (m *mapper) cppName(t *resolve.Target) string {
	return "::" + t.CppName
}

func (m *mapper) enumCType(e *model.Enum) string {
	return m.arts.Enum[e]
}

// targetFor resolves a named or template reference to its generated
// target; nil when the reference is not a generated class.
func (m *mapper) targetFor(from []string, t model.TypeRef) *resolve.Target {
	switch t.Kind {
	case model.KindNamed:
		if c := m.ix.LookupClass(from, t.Name); c != nil {
			return m.byClass[c]
		}
	case model.KindTemplate:
		if key := registry.InstanceKey(m.ix, m.prof, from, t); key != "" {
			return m.byKey[key]
		}
	}
	return nil
}

func (m *mapper) enumFor(from []string, t model.TypeRef) *model.Enum {
	if t.Kind != model.KindNamed {
		return nil
	}
	e := m.ix.LookupEnum(from, t.Name)
	if e == nil {
		return nil
	}
	if _, ok := m.arts.Enum[e]; !ok {
		return nil
	}
	return e
}

func maybeConst(isConst bool) string {
	if isConst {
		return "const "
	}
	return ""
}

// cSpelling renders the C declaration type for a normalized reference.
// Classes and enums appear under their shim typedef names; references
// are the caller's business and rejected here.
func (m *mapper) cSpelling(from []string, t model.TypeRef) (string, error) {
	switch t.Kind {
	case model.KindVoid:
		return maybeConst(t.Const) + "void", nil
	case model.KindPrimitive:
		return maybeConst(t.Const) + t.Name, nil
	case model.KindNamed:
		if tg := m.targetFor(from, t); tg != nil {
			return maybeConst(t.Const) + m.ctype(tg), nil
		}
		if e := m.enumFor(from, t); e != nil {
			return maybeConst(t.Const) + m.enumCType(e), nil
		}
		return "", fmt.Errorf("type %q has no generated form", t.Name)
	case model.KindTemplate:
		if tg := m.targetFor(from, t); tg != nil {
			return maybeConst(t.Const) + m.ctype(tg), nil
		}
		return "", fmt.Errorf("template %q has no generated instance", t.String())
	case model.KindPointer:
		inner, err := m.cSpelling(from, *t.Elem)
		if err != nil {
			return "", err
		}
		return inner + "*", nil
	case model.KindReference:
		return "", fmt.Errorf("reference %q cannot be declared in C", t.String())
	}
	return "", fmt.Errorf("unrepresentable type %q", t.String())
}

// cppSpelling renders the C++ spelling used inside casts, with class and
// enum names fully qualified.
func (m *mapper) cppSpelling(from []string, t model.TypeRef) (string, error) {
	switch t.Kind {
	case model.KindVoid:
		return maybeConst(t.Const) + "void", nil
	case model.KindPrimitive:
		return maybeConst(t.Const) + t.Name, nil
	case model.KindNamed:
		if tg := m.targetFor(from, t); tg != nil {
			return maybeConst(t.Const) + m.cppName(tg), nil
		}
		if e := m.enumFor(from, t); e != nil {
			return maybeConst(t.Const) + "::" + e.QualifiedName(), nil
		}
		return "", fmt.Errorf("type %q has no generated form", t.Name)
	case model.KindTemplate:
		if tg := m.targetFor(from, t); tg != nil {
			return maybeConst(t.Const) + m.cppName(tg), nil
		}
		return "", fmt.Errorf("template %q has no generated instance", t.String())
	case model.KindPointer:
		inner, err := m.cppSpelling(from, *t.Elem)
		if err != nil {
			return "", err
		}
		return inner + "*", nil
	}
	return "", fmt.Errorf("unrepresentable type %q", t.String())
}

// mentionsGenerated reports whether a reference involves a class or enum
// anywhere, i.e. whether the C and C++ sides disagree on its spelling.
func (m *mapper) mentionsGenerated(from []string, t model.TypeRef) bool {
	switch t.Kind {
	case model.KindNamed, model.KindTemplate:
		return true
	case model.KindPointer, model.KindReference:
		return m.mentionsGenerated(from, *t.Elem)
	}
	return false
}

type cParam struct {
	Type string
	Name string
}

// param maps one declared parameter to its C surface declaration and the
// C++ argument expression that forwards it into the library call.
func (m *mapper) param(from []string, declared model.TypeRef, name string) (cParam, string, error) {
	t := m.prof.Normalize(declared)
	switch t.Kind {
	case model.KindPrimitive:
		return cParam{Type: t.Name, Name: name}, name, nil
	case model.KindNamed:
		if tg := m.targetFor(from, t); tg != nil {
			expr := fmt.Sprintf("*reinterpret_cast<const %s*>(%s)", m.cppName(tg), name)
			return cParam{Type: "const " + m.ctype(tg) + "*", Name: name}, expr, nil
		}
		if e := m.enumFor(from, t); e != nil {
			expr := fmt.Sprintf("static_cast<::%s>(%s)", e.QualifiedName(), name)
			return cParam{Type: m.enumCType(e), Name: name}, expr, nil
		}
		return cParam{}, "", fmt.Errorf("parameter type %q has no generated form", t.Name)
	case model.KindTemplate:
		tg := m.targetFor(from, t)
		if tg == nil {
			return cParam{}, "", fmt.Errorf("parameter template %q has no generated instance", t.String())
		}
		expr := fmt.Sprintf("*reinterpret_cast<const %s*>(%s)", m.cppName(tg), name)
		return cParam{Type: "const " + m.ctype(tg) + "*", Name: name}, expr, nil
	case model.KindPointer:
		decl, err := m.cSpelling(from, t)
		if err != nil {
			return cParam{}, "", err
		}
		expr := name
		if m.mentionsGenerated(from, t) {
			cpp, err := m.cppSpelling(from, t)
			if err != nil {
				return cParam{}, "", err
			}
			expr = fmt.Sprintf("reinterpret_cast<%s>(%s)", cpp, name)
		}
		return cParam{Type: decl, Name: name}, expr, nil
	case model.KindReference:
		asPtr := model.TypeRef{Kind: model.KindPointer, Elem: t.Elem}
		decl, err := m.cSpelling(from, asPtr)
		if err != nil {
			return cParam{}, "", err
		}
		expr := "*" + name
		if m.mentionsGenerated(from, *t.Elem) {
			cpp, err := m.cppSpelling(from, asPtr)
			if err != nil {
				return cParam{}, "", err
			}
			expr = fmt.Sprintf("*reinterpret_cast<%s>(%s)", cpp, name)
		}
		return cParam{Type: decl, Name: name}, expr, nil
	}
	return cParam{}, "", fmt.Errorf("unsupported parameter type %q", declared.String())
}

// cReturn describes how one declared return type crosses the boundary:
// the C return type plus an optional caller-storage output parameter.
// The finish function wraps the forwarded C++ call into the statements
// that end the body.
type cReturn struct {
	Ret string
	Out *cParam
}

func (m *mapper) ret(from []string, declared model.TypeRef) (cReturn, func(call string) []string, error) {
	t := m.prof.Normalize(declared)
	switch t.Kind {
	case model.KindVoid, "":
		return cReturn{Ret: "void"}, func(call string) []string {
			return []string{call + ";"}
		}, nil
	case model.KindPrimitive:
		return cReturn{Ret: t.Name}, func(call string) []string {
			return []string{"return " + call + ";"}
		}, nil
	case model.KindNamed, model.KindTemplate:
		if tg := m.targetFor(from, t); tg != nil {
			if tg.Class.Movable {
				out := &cParam{Type: m.storageType(tg) + "*", Name: "out"}
				cpp := m.cppName(tg)
				return cReturn{Ret: "void", Out: out}, func(call string) []string {
					return []string{fmt.Sprintf("new (out) %s(%s);", cpp, call)}
				}, nil
			}
			ctype := m.ctype(tg)
			cpp := m.cppName(tg)
			return cReturn{Ret: ctype + "*"}, func(call string) []string {
				return []string{fmt.Sprintf("return reinterpret_cast<%s*>(new %s(%s));", ctype, cpp, call)}
			}, nil
		}
		if e := m.enumFor(from, t); e != nil {
			return cReturn{Ret: m.enumCType(e)}, func(call string) []string {
				return []string{fmt.Sprintf("return static_cast<int>(%s);", call)}
			}, nil
		}
		return cReturn{}, nil, fmt.Errorf("return type %q has no generated form", t.String())
	case model.KindPointer:
		decl, err := m.cSpelling(from, t)
		if err != nil {
			return cReturn{}, nil, err
		}
		if !m.mentionsGenerated(from, t) {
			return cReturn{Ret: decl}, func(call string) []string {
				return []string{"return " + call + ";"}
			}, nil
		}
		return cReturn{Ret: decl}, func(call string) []string {
			return []string{fmt.Sprintf("return reinterpret_cast<%s>(%s);", decl, call)}
		}, nil
	case model.KindReference:
		asPtr := model.TypeRef{Kind: model.KindPointer, Elem: t.Elem}
		decl, err := m.cSpelling(from, asPtr)
		if err != nil {
			return cReturn{}, nil, err
		}
		if !m.mentionsGenerated(from, *t.Elem) {
			return cReturn{Ret: decl}, func(call string) []string {
				return []string{fmt.Sprintf("return &(%s);", call)}
			}, nil
		}
		return cReturn{Ret: decl}, func(call string) []string {
			return []string{fmt.Sprintf("return reinterpret_cast<%s>(&(%s));", decl, call)}
		}, nil
	}
	return cReturn{}, nil, fmt.Errorf("unsupported return type %q", declared.String())
}
