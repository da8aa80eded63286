package model

import (
	"regexp"
	"sort"

	"github.com/binderylabs/bindery/internal/diag"
)

// Index resolves qualified names to declarations and fixes the walk order
// every later stage iterates in: namespace paths sorted lexically, then
// declaration order within a namespace. The order is what makes repeated
// runs over the same model byte-identical.
type Index struct {
	Model   *Model
	Classes map[string]*Class
	Enums   map[string]*Enum

	// ClassList, EnumList and FuncList hold the deterministic walk order.
	ClassList []*Class
	EnumList  []*Enum
	FuncList  []NamespaceFunction
}

// NamespaceFunction pairs a free function with its enclosing namespace
// path.
type NamespaceFunction struct {
	Path []string
	Fn   *Function
}

// QualifiedName returns the namespace-qualified function name.
func (nf NamespaceFunction) QualifiedName() string {
	return qualify(nf.Path, nf.Fn.Name)
}

var libraryName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks the model for structural problems, reporting each as a
// ModelError diagnostic, and builds the Index. knownAlias reports whether
// a name is a fixed-width alias on the target platform; such names are
// legal type references even though the model declares nothing for them.
func Validate(m *Model, knownAlias func(string) bool) (*Index, *diag.List) {
	diags := &diag.List{}
	ix := &Index{
		Model:   m,
		Classes: make(map[string]*Class),
		Enums:   make(map[string]*Enum),
	}

	if !libraryName.MatchString(m.Library) {
		diags.Addf(diag.ModelError, "", "library name %q must be a lowercase identifier", m.Library)
	}
	if len(m.Headers) == 0 {
		diags.Addf(diag.ModelError, "", "model declares no headers; the probe and shim cannot include the library")
	}

	ix.index(&m.Root, nil, diags)

	if knownAlias == nil {
		knownAlias = func(string) bool { return false }
	}
	for _, c := range ix.ClassList {
		ix.checkClass(c, knownAlias, diags)
	}
	for _, nf := range ix.FuncList {
		if nf.Fn.Name != "" && nf.Fn.Operator != "" {
			diags.Addf(diag.ModelError, nf.QualifiedName(), "function declares both a name and an operator kind")
		}
		if nf.Fn.Name == "" && nf.Fn.Operator == "" {
			diags.Addf(diag.ModelError, qualify(nf.Path, "?"), "function without a name")
		}
		ix.checkSignature(nf.QualifiedName(), nf.Path, nil, nf.Fn.Params, nf.Fn.Returns, knownAlias, diags)
	}
	for _, inst := range m.Instantiate {
		if inst.Kind != KindTemplate {
			diags.Addf(diag.ModelError, inst.String(), "instantiation request is not a template instance")
		}
		ix.checkType("instantiate", nil, nil, inst, knownAlias, diags)
	}
	return ix, diags
}

// index records one namespace's declarations and recurses into children
// sorted by name.
func (ix *Index) index(ns *Namespace, path []string, diags *diag.List) {
	seen := make(map[string]bool)
	for _, e := range ns.Enums {
		e.path = path
		q := e.QualifiedName()
		if seen[e.Name] {
			diags.Addf(diag.ModelError, q, "duplicate declaration in namespace")
			continue
		}
		seen[e.Name] = true
		ix.Enums[q] = e
		ix.EnumList = append(ix.EnumList, e)
		memberSeen := make(map[string]bool)
		for _, mem := range e.Members {
			if memberSeen[mem.Name] {
				diags.Addf(diag.ModelError, q, "duplicate enum member %q", mem.Name)
			}
			memberSeen[mem.Name] = true
		}
		if len(e.Members) == 0 {
			diags.Addf(diag.ModelError, q, "enum has no members")
		}
	}
	for _, c := range ns.Classes {
		c.path = path
		q := c.QualifiedName()
		if seen[c.Name] {
			diags.Addf(diag.ModelError, q, "duplicate declaration in namespace")
			continue
		}
		seen[c.Name] = true
		ix.Classes[q] = c
		ix.ClassList = append(ix.ClassList, c)
	}
	for _, f := range ns.Functions {
		ix.FuncList = append(ix.FuncList, NamespaceFunction{Path: path, Fn: f})
	}

	children := make([]*Namespace, len(ns.Namespaces))
	copy(children, ns.Namespaces)
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	childSeen := make(map[string]bool)
	for _, child := range children {
		if child.Name == "" {
			diags.Addf(diag.ModelError, qualify(path, "?"), "nested namespace without a name")
			continue
		}
		if childSeen[child.Name] {
			diags.Addf(diag.ModelError, qualify(path, child.Name), "duplicate namespace")
			continue
		}
		childSeen[child.Name] = true
		ix.index(child, append(append([]string{}, path...), child.Name), diags)
	}
}

func (ix *Index) checkClass(c *Class, knownAlias func(string) bool, diags *diag.List) {
	q := c.QualifiedName()
	tparams := make(map[string]bool, len(c.TemplateParams))
	for _, p := range c.TemplateParams {
		if tparams[p] {
			diags.Addf(diag.ModelError, q, "duplicate template parameter %q", p)
		}
		tparams[p] = true
	}
	switch c.Destructor {
	case "", DtorPublic, DtorProtected, DtorPrivate, DtorNone:
	default:
		diags.Addf(diag.ModelError, q, "unknown destructor disposition %q", c.Destructor)
	}
	for _, b := range c.Bases {
		if ix.lookupClassFrom(c.path, b.Name) == nil {
			diags.Addf(diag.ModelError, q, "base class %q is not declared in the model", b.Name)
		}
	}
	methodNames := make(map[string]bool, len(c.Methods))
	for _, m := range c.Methods {
		if m.Name != "" {
			methodNames[m.Name] = true
		}
	}
	fieldSeen := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if fieldSeen[f.Name] {
			diags.Addf(diag.ModelError, q+"::"+f.Name, "duplicate field")
		}
		fieldSeen[f.Name] = true
		if methodNames[f.Name] {
			diags.Addf(diag.ModelError, q+"::"+f.Name, "field and method share a name")
		}
		ix.checkType(q+"::"+f.Name, c.path, tparams, f.Type, knownAlias, diags)
	}
	for _, ctor := range c.Constructors {
		ix.checkDefaults(q+"::(constructor)", ctor.Params, diags)
		for _, p := range ctor.Params {
			ix.checkType(q+"::(constructor)", c.path, tparams, p.Type, knownAlias, diags)
		}
	}
	for _, m := range c.Methods {
		name := m.Name
		if m.Operator != "" {
			name = "operator " + m.Operator
			if m.Name != "" {
				diags.Addf(diag.ModelError, q+"::"+m.Name, "method declares both a name and an operator kind")
			}
		} else if m.Name == "" {
			diags.Addf(diag.ModelError, q, "method without a name")
			continue
		}
		if m.Pure && !m.Virtual {
			diags.Addf(diag.ModelError, q+"::"+name, "pure method must be virtual")
		}
		if m.Static && (m.Const || m.Virtual) {
			diags.Addf(diag.ModelError, q+"::"+name, "static method cannot be const or virtual")
		}
		ix.checkSignature(q+"::"+name, c.path, tparams, m.Params, m.Returns, knownAlias, diags)
	}
	signalSeen := make(map[string]bool, len(c.Signals))
	for _, s := range c.Signals {
		if s.Name == "" {
			diags.Addf(diag.ModelError, q, "signal without a name")
			continue
		}
		if signalSeen[s.Name] {
			diags.Addf(diag.ModelError, q+"::"+s.Name, "duplicate signal")
		}
		signalSeen[s.Name] = true
		for _, p := range s.Params {
			ix.checkType(q+"::"+s.Name, c.path, tparams, p.Type, knownAlias, diags)
		}
	}
}

func (ix *Index) checkSignature(entity string, from []string, tparams map[string]bool, params []Param, returns TypeRef, knownAlias func(string) bool, diags *diag.List) {
	ix.checkDefaults(entity, params, diags)
	for _, p := range params {
		ix.checkType(entity, from, tparams, p.Type, knownAlias, diags)
	}
	if !returns.IsVoid() {
		ix.checkType(entity, from, tparams, returns, knownAlias, diags)
	}
}

// checkDefaults enforces that defaulted parameters form a trailing run,
// matching C++ rules; the resolver relies on this when allocating
// reduced-arity variants.
func (ix *Index) checkDefaults(entity string, params []Param, diags *diag.List) {
	seenDefault := false
	for _, p := range params {
		if p.HasDefault {
			seenDefault = true
		} else if seenDefault {
			diags.Addf(diag.ModelError, entity, "parameter %q without default follows a defaulted parameter", p.Name)
			return
		}
	}
}

func (ix *Index) checkType(entity string, from []string, tparams map[string]bool, t TypeRef, knownAlias func(string) bool, diags *diag.List) {
	switch t.Kind {
	case KindVoid, "", KindPrimitive:
	case KindPointer, KindReference:
		ix.checkType(entity, from, tparams, *t.Elem, knownAlias, diags)
	case KindTemplate:
		generic := ix.lookupClassFrom(from, t.Name)
		if generic == nil {
			diags.Addf(diag.ModelError, entity, "template %q is not declared in the model", t.Name)
			return
		}
		if !generic.IsGeneric() {
			diags.Addf(diag.ModelError, entity, "type %q is not a template but is given arguments", t.Name)
			return
		}
		if len(t.Args) != len(generic.TemplateParams) {
			diags.Addf(diag.ModelError, entity, "template %q expects %d arguments, got %d",
				t.Name, len(generic.TemplateParams), len(t.Args))
		}
		for _, a := range t.Args {
			ix.checkType(entity, from, tparams, a, knownAlias, diags)
		}
	case KindNamed:
		if tparams[t.Name] {
			return
		}
		if c := ix.lookupClassFrom(from, t.Name); c != nil {
			if c.IsGeneric() {
				diags.Addf(diag.ModelError, entity, "template %q used without arguments", t.Name)
			}
			return
		}
		if ix.lookupEnumFrom(from, t.Name) != nil {
			return
		}
		if knownAlias(t.Name) {
			return
		}
		diags.Addf(diag.ModelError, entity, "unknown type %q", t.Name)
	}
}

// lookupClassFrom resolves a possibly-unqualified name the way C++ name
// lookup does: innermost enclosing namespace outward.
func (ix *Index) lookupClassFrom(from []string, name string) *Class {
	for i := len(from); i >= 0; i-- {
		if c, ok := ix.Classes[qualify(from[:i], name)]; ok {
			return c
		}
	}
	return nil
}

func (ix *Index) lookupEnumFrom(from []string, name string) *Enum {
	for i := len(from); i >= 0; i-- {
		if e, ok := ix.Enums[qualify(from[:i], name)]; ok {
			return e
		}
	}
	return nil
}

// LookupClass resolves a class name relative to a namespace path.
func (ix *Index) LookupClass(from []string, name string) *Class {
	return ix.lookupClassFrom(from, name)
}

// LookupEnum resolves an enum name relative to a namespace path.
func (ix *Index) LookupEnum(from []string, name string) *Enum {
	return ix.lookupEnumFrom(from, name)
}

// Bases returns the resolved direct base classes in declaration order.
func (ix *Index) Bases(c *Class) []*Class {
	out := make([]*Class, 0, len(c.Bases))
	for _, b := range c.Bases {
		if rc := ix.lookupClassFrom(c.path, b.Name); rc != nil {
			out = append(out, rc)
		}
	}
	return out
}

// Ancestors returns every transitive base exactly once, direct bases
// first, in deterministic depth-first order.
func (ix *Index) Ancestors(c *Class) []*Class {
	var out []*Class
	seen := map[*Class]bool{c: true}
	var walk func(*Class)
	walk = func(cur *Class) {
		for _, b := range ix.Bases(cur) {
			if seen[b] {
				continue
			}
			seen[b] = true
			out = append(out, b)
			walk(b)
		}
	}
	walk(c)
	return out
}

// Polymorphic reports whether the class or any ancestor declares virtual
// methods. Virtual dispatch in the shim forwards through the object
// pointer whenever this holds.
func (ix *Index) Polymorphic(c *Class) bool {
	if c.Polymorphic() {
		return true
	}
	for _, a := range ix.Ancestors(c) {
		if a.Polymorphic() {
			return true
		}
	}
	return false
}
