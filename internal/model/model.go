// Package model holds the structured API surface consumed by the
// generation pipeline: namespaces, classes, overloads, enums, templates.
//
// The model is produced by an external header reader and loaded from YAML.
// Later pipeline stages attach annotations (layout facts, flat symbols) but
// never rewrite entities that an earlier stage has committed.
package model

// Model is the root of one library's API surface.
type Model struct {
	// Library is the short lowercase name used as the flat-symbol prefix
	// and in emitted artifact names.
	Library string `yaml:"library"`
	// Headers are the include directives the probe program and the C shim
	// need to see the real declarations.
	Headers []string `yaml:"headers"`
	// Root is the global namespace.
	Root Namespace `yaml:"root"`
	// Instantiate lists template instantiations requested explicitly, in
	// addition to those discovered from signatures.
	Instantiate []TypeRef `yaml:"instantiate,omitempty"`
}

// Namespace is an ordered scope of declarations. Name is empty for the
// root namespace.
type Namespace struct {
	Name       string       `yaml:"name,omitempty"`
	Enums      []*Enum      `yaml:"enums,omitempty"`
	Classes    []*Class     `yaml:"classes,omitempty"`
	Functions  []*Function  `yaml:"functions,omitempty"`
	Namespaces []*Namespace `yaml:"namespaces,omitempty"`
}

// Visibility is a C++ access level.
type Visibility string

const (
	Public    Visibility = "public"
	Protected Visibility = "protected"
	Private   Visibility = "private"
)

// Accessible reports whether a member with this visibility may receive a
// generated entry point. Empty visibility defaults to public.
func (v Visibility) Accessible() bool {
	return v == Public || v == ""
}

// DtorDisposition describes a class destructor as seen by the generator.
type DtorDisposition string

const (
	// DtorPublic allows a generated destroy entry point.
	DtorPublic DtorDisposition = "public"
	// DtorProtected and DtorPrivate forbid a destroy entry point.
	DtorProtected DtorDisposition = "protected"
	DtorPrivate   DtorDisposition = "private"
	// DtorNone marks a deleted destructor.
	DtorNone DtorDisposition = "none"
)

// Destroyable reports whether a destroy entry point may be generated.
// Empty defaults to public, matching the C++ implicit destructor.
func (d DtorDisposition) Destroyable() bool {
	return d == DtorPublic || d == ""
}

// Ownership is how the wrapper holds a class value obtained from a call.
type Ownership string

const (
	// Owned handles free the underlying object exactly once on Close.
	Owned Ownership = "owned"
	// Borrowed handles never free and must not outlive their owner.
	Borrowed Ownership = "borrowed"
	// Shared handles decrement an external live count instead of freeing.
	Shared Ownership = "shared"
)

// Base is one entry in a class's base-class list.
type Base struct {
	// Name is the namespace-qualified base class name.
	Name    string     `yaml:"name"`
	Access  Visibility `yaml:"access,omitempty"`
	Virtual bool       `yaml:"virtual,omitempty"`
}

// Field is a data member.
type Field struct {
	Name       string     `yaml:"name"`
	Type       TypeRef    `yaml:"type"`
	Visibility Visibility `yaml:"visibility,omitempty"`
	Static     bool       `yaml:"static,omitempty"`
	// Const fields receive a getter but never a setter.
	Const bool `yaml:"const,omitempty"`
}

// Param is one method or function parameter.
type Param struct {
	Name string  `yaml:"name"`
	Type TypeRef `yaml:"type"`
	// HasDefault marks a trailing defaulted parameter; the resolver
	// allocates reduced-arity symbol variants for each droppable suffix.
	HasDefault bool `yaml:"default,omitempty"`
}

// Method is a single overload of a member function or operator.
type Method struct {
	Name string `yaml:"name,omitempty"`
	// Operator holds the operator kind word ("plus", "equals", ...) when
	// this entry is an operator; Name is then ignored.
	Operator   string     `yaml:"operator,omitempty"`
	Params     []Param    `yaml:"params,omitempty"`
	Returns    TypeRef    `yaml:"returns,omitempty"`
	Const      bool       `yaml:"const,omitempty"`
	Static     bool       `yaml:"static,omitempty"`
	Virtual    bool       `yaml:"virtual,omitempty"`
	Pure       bool       `yaml:"pure,omitempty"`
	Visibility Visibility `yaml:"visibility,omitempty"`
	// ReturnOwnership overrides the wrapper's default ownership for a
	// class-typed return (value returns default to owned, pointer and
	// reference returns to borrowed).
	ReturnOwnership Ownership `yaml:"ownership,omitempty"`
}

// Constructor is one constructor overload.
type Constructor struct {
	Params     []Param    `yaml:"params,omitempty"`
	Visibility Visibility `yaml:"visibility,omitempty"`
}

// Signal is a callback-style event a class can raise. Connections are
// registered through the generated shim's registration table.
type Signal struct {
	Name   string  `yaml:"name"`
	Params []Param `yaml:"params,omitempty"`
}

// Function is a free function or free operator declared in a namespace.
type Function struct {
	Name            string    `yaml:"name,omitempty"`
	Operator        string    `yaml:"operator,omitempty"`
	Params          []Param   `yaml:"params,omitempty"`
	Returns         TypeRef   `yaml:"returns,omitempty"`
	ReturnOwnership Ownership `yaml:"ownership,omitempty"`
}

// Class describes one record type and its member surface.
type Class struct {
	Name string `yaml:"name"`
	// TemplateParams is non-empty for a generic class; such classes emit
	// nothing themselves and exist only to be instantiated through the
	// registry.
	TemplateParams []string       `yaml:"template_params,omitempty"`
	Bases          []Base         `yaml:"bases,omitempty"`
	Fields         []*Field       `yaml:"fields,omitempty"`
	Constructors   []*Constructor `yaml:"constructors,omitempty"`
	Methods        []*Method      `yaml:"methods,omitempty"`
	Signals        []*Signal      `yaml:"signals,omitempty"`
	Destructor     DtorDisposition `yaml:"destructor,omitempty"`
	// Abstract classes get no constructor entry points; they are reached
	// only through derived instances or factory returns.
	Abstract bool `yaml:"abstract,omitempty"`
	// Movable classes cross the boundary by value in caller-provided
	// opaque storage sized from their layout fact.
	Movable bool `yaml:"movable,omitempty"`
	// TracksInstances marks factory classes whose wrapper owns an
	// explicit live counter; handles produced by their methods default
	// to shared ownership.
	TracksInstances bool `yaml:"tracks_instances,omitempty"`

	path []string // enclosing namespace path, set by Index
}

// Path returns the enclosing namespace path. Valid after indexing.
func (c *Class) Path() []string {
	return c.path
}

// QualifiedName returns the namespace-qualified C++ name, valid after
// indexing.
func (c *Class) QualifiedName() string {
	return qualify(c.path, c.Name)
}

// IsGeneric reports whether the class declares template parameters.
func (c *Class) IsGeneric() bool {
	return len(c.TemplateParams) > 0
}

// Polymorphic reports whether the class declares or inherits virtual
// methods as far as its own declaration shows. Base virtuality is resolved
// through the Index.
func (c *Class) Polymorphic() bool {
	for _, m := range c.Methods {
		if m.Virtual || m.Pure {
			return true
		}
	}
	return false
}

// Enum is a named constant set.
type Enum struct {
	Name string `yaml:"name"`
	// Flags enums combine members with bitwise or; their wrapper type
	// gains a combine operation.
	Flags   bool         `yaml:"flags,omitempty"`
	Members []EnumMember `yaml:"members"`

	path []string
}

// Path returns the enclosing namespace path. Valid after indexing.
func (e *Enum) Path() []string {
	return e.path
}

// QualifiedName returns the namespace-qualified C++ name, valid after
// indexing.
func (e *Enum) QualifiedName() string {
	return qualify(e.path, e.Name)
}

// EnumMember is one enumerator; Value is nil for implicit values, which
// follow C rules (previous + 1, first member 0).
type EnumMember struct {
	Name  string
	Value *int64
}

// ResolvedValues returns the concrete integer value of every member in
// declaration order, applying C implicit-value rules.
func (e *Enum) ResolvedValues() []int64 {
	out := make([]int64, len(e.Members))
	next := int64(0)
	for i, m := range e.Members {
		if m.Value != nil {
			next = *m.Value
		}
		out[i] = next
		next++
	}
	return out
}

func qualify(path []string, name string) string {
	q := ""
	for _, p := range path {
		q += p + "::"
	}
	return q + name
}
