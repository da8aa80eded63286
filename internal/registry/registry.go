// Package registry allocates concrete types for template instantiations.
//
// Identity is structural: one (generic, argument list) pair maps to exactly
// one concrete allocation no matter how many call sites request it. Argument
// lists are platform-normalized before keying, so a request spelled over a
// fixed-width alias and one spelled over the underlying primitive share an
// allocation, matching what the C++ compiler would instantiate.
package registry

import (
	"fmt"
	"sync"

	"github.com/binderylabs/bindery/internal/diag"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/platform"
)

// Instance is one allocated concrete instantiation.
type Instance struct {
	Generic *model.Class
	// Args are the platform-normalized concrete arguments.
	Args []model.TypeRef
	// Concrete is the generic class with every template parameter
	// substituted. Its methods and fields are deep copies; mutating them
	// never touches the generic declaration.
	Concrete *model.Class

	cppName string
}

// CppName returns the C++ spelling of the instance, e.g. "QVector<int>".
func (in *Instance) CppName() string {
	return in.cppName
}

// Type returns the instance as a type reference.
func (in *Instance) Type() model.TypeRef {
	return model.TypeRef{Kind: model.KindTemplate, Name: in.Generic.QualifiedName(), Args: in.Args}
}

// Registry is the shared instantiation map for one generation run.
// Requests may arrive from concurrent walkers; the map is mutex-guarded so
// the create-once guarantee holds regardless of traversal order.
type Registry struct {
	prof *platform.Profile

	mu    sync.Mutex
	byKey map[string]*Instance
	order []*Instance
}

// New returns an empty registry keyed against the given platform.
func New(prof *platform.Profile) *Registry {
	return &Registry{prof: prof, byKey: make(map[string]*Instance)}
}

// Request returns the allocation for (generic, args), creating it on first
// use. Re-requesting an identical pair returns the same *Instance.
func (r *Registry) Request(generic *model.Class, args []model.TypeRef) (*Instance, error) {
	if len(args) != len(generic.TemplateParams) {
		return nil, fmt.Errorf("instantiate %s: %d arguments for %d parameters",
			generic.QualifiedName(), len(args), len(generic.TemplateParams))
	}
	normalized := make([]model.TypeRef, len(args))
	for i, a := range args {
		normalized[i] = r.prof.Normalize(a)
	}
	key := model.TypeRef{Kind: model.KindTemplate, Name: generic.QualifiedName(), Args: normalized}.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if in, ok := r.byKey[key]; ok {
		return in, nil
	}
	in := &Instance{
		Generic: generic,
		Args:    normalized,
		cppName: key,
	}
	in.Concrete = substituteClass(generic, normalized)
	r.byKey[key] = in
	r.order = append(r.order, in)
	return in, nil
}

// InstanceKey computes the structural identity a template reference
// resolves to: the generic's qualified name over qualified, normalized
// arguments. It matches the CppName of the instance Request allocates for
// the same reference, so emitters can route signature mentions to
// allocations. Returns "" when the name does not resolve to a generic.
func InstanceKey(ix *model.Index, prof *platform.Profile, from []string, t model.TypeRef) string {
	if t.Kind != model.KindTemplate {
		return ""
	}
	generic := ix.LookupClass(from, t.Name)
	if generic == nil || !generic.IsGeneric() {
		return ""
	}
	args := make([]model.TypeRef, len(t.Args))
	for i, a := range t.Args {
		args[i] = prof.Normalize(qualifyType(ix, from, a))
	}
	return model.TypeRef{Kind: model.KindTemplate, Name: generic.QualifiedName(), Args: args}.String()
}

// Instances returns every allocation in creation order. With the
// single-pass discovery walk this order is deterministic for a given model
// and platform.
func (r *Registry) Instances() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Instance, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of distinct allocations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// Discover walks every signature in the model plus the explicit
// instantiation requests and allocates each template instance it finds.
// Nested instances are requested innermost first.
func Discover(ix *model.Index, r *Registry, diags *diag.List) {
	for _, c := range ix.ClassList {
		if c.IsGeneric() {
			continue
		}
		q := c.QualifiedName()
		from := c.Path()
		for _, f := range c.Fields {
			discoverType(ix, r, from, q+"::"+f.Name, f.Type, diags)
		}
		for _, ctor := range c.Constructors {
			for _, p := range ctor.Params {
				discoverType(ix, r, from, q, p.Type, diags)
			}
		}
		for _, m := range c.Methods {
			for _, p := range m.Params {
				discoverType(ix, r, from, q+"::"+m.Name, p.Type, diags)
			}
			discoverType(ix, r, from, q+"::"+m.Name, m.Returns, diags)
		}
		for _, s := range c.Signals {
			for _, p := range s.Params {
				discoverType(ix, r, from, q+"::"+s.Name, p.Type, diags)
			}
		}
	}
	for _, nf := range ix.FuncList {
		for _, p := range nf.Fn.Params {
			discoverType(ix, r, nf.Path, nf.QualifiedName(), p.Type, diags)
		}
		discoverType(ix, r, nf.Path, nf.QualifiedName(), nf.Fn.Returns, diags)
	}
	for _, t := range ix.Model.Instantiate {
		discoverType(ix, r, nil, "instantiate", t, diags)
	}
}

func discoverType(ix *model.Index, r *Registry, from []string, entity string, t model.TypeRef, diags *diag.List) {
	switch t.Kind {
	case model.KindPointer, model.KindReference:
		discoverType(ix, r, from, entity, *t.Elem, diags)
	case model.KindTemplate:
		for _, a := range t.Args {
			discoverType(ix, r, from, entity, a, diags)
		}
		generic := ix.LookupClass(from, t.Name)
		if generic == nil || !generic.IsGeneric() {
			// Validation has already reported this.
			return
		}
		args := make([]model.TypeRef, len(t.Args))
		for i, a := range t.Args {
			args[i] = qualifyType(ix, from, a)
		}
		if _, err := r.Request(generic, args); err != nil {
			diags.Addf(diag.ModelError, entity, "%v", err)
		}
	}
}

// qualifyType rewrites named types to their fully qualified spelling, so
// instantiation identity does not depend on the namespace the request was
// written in.
func qualifyType(ix *model.Index, from []string, t model.TypeRef) model.TypeRef {
	switch t.Kind {
	case model.KindNamed:
		if c := ix.LookupClass(from, t.Name); c != nil {
			t.Name = c.QualifiedName()
		} else if e := ix.LookupEnum(from, t.Name); e != nil {
			t.Name = e.QualifiedName()
		}
		return t
	case model.KindPointer, model.KindReference:
		elem := qualifyType(ix, from, *t.Elem)
		t.Elem = &elem
		return t
	case model.KindTemplate:
		if c := ix.LookupClass(from, t.Name); c != nil {
			t.Name = c.QualifiedName()
		}
		args := make([]model.TypeRef, len(t.Args))
		for i, a := range t.Args {
			args[i] = qualifyType(ix, from, a)
		}
		t.Args = args
		return t
	}
	return t
}

// substituteClass builds the concrete class for one instantiation.
func substituteClass(generic *model.Class, args []model.TypeRef) *model.Class {
	sub := make(map[string]model.TypeRef, len(generic.TemplateParams))
	for i, p := range generic.TemplateParams {
		sub[p] = args[i]
	}
	c := &model.Class{
		Name:            generic.Name,
		Destructor:      generic.Destructor,
		Abstract:        generic.Abstract,
		Movable:         generic.Movable,
		TracksInstances: generic.TracksInstances,
	}
	for _, b := range generic.Bases {
		c.Bases = append(c.Bases, b)
	}
	for _, f := range generic.Fields {
		nf := *f
		nf.Type = substituteType(f.Type, sub)
		c.Fields = append(c.Fields, &nf)
	}
	for _, ctor := range generic.Constructors {
		nc := &model.Constructor{Visibility: ctor.Visibility, Params: substituteParams(ctor.Params, sub)}
		c.Constructors = append(c.Constructors, nc)
	}
	for _, m := range generic.Methods {
		nm := *m
		nm.Params = substituteParams(m.Params, sub)
		nm.Returns = substituteType(m.Returns, sub)
		c.Methods = append(c.Methods, &nm)
	}
	for _, s := range generic.Signals {
		ns := &model.Signal{Name: s.Name, Params: substituteParams(s.Params, sub)}
		c.Signals = append(c.Signals, ns)
	}
	return c
}

func substituteParams(params []model.Param, sub map[string]model.TypeRef) []model.Param {
	if params == nil {
		return nil
	}
	out := make([]model.Param, len(params))
	for i, p := range params {
		out[i] = p
		out[i].Type = substituteType(p.Type, sub)
	}
	return out
}

func substituteType(t model.TypeRef, sub map[string]model.TypeRef) model.TypeRef {
	switch t.Kind {
	case model.KindNamed:
		if rep, ok := sub[t.Name]; ok {
			rep.Const = rep.Const || t.Const
			return rep
		}
		return t
	case model.KindPointer, model.KindReference:
		elem := substituteType(*t.Elem, sub)
		t.Elem = &elem
		return t
	case model.KindTemplate:
		args := make([]model.TypeRef, len(t.Args))
		for i, a := range t.Args {
			args[i] = substituteType(a, sub)
		}
		t.Args = args
		return t
	default:
		return t
	}
}
