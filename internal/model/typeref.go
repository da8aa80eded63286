package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// TypeKind is the category of a type reference.
type TypeKind string

const (
	KindVoid      TypeKind = "void"
	KindPrimitive TypeKind = "primitive"
	// KindNamed covers classes, enums and fixed-width aliases; the
	// resolver classifies the name against the platform alias table and
	// the model index.
	KindNamed     TypeKind = "named"
	KindPointer   TypeKind = "pointer"
	KindReference TypeKind = "reference"
	KindTemplate  TypeKind = "template"
)

// TypeRef is one parsed type reference. References are written in compact
// C++ spelling in the model file ("const QPoint &", "QVector<int>") and
// parsed on load.
type TypeRef struct {
	Kind  TypeKind
	Const bool
	// Name holds the canonical primitive spelling, the alias name, or the
	// namespace-qualified class/enum name.
	Name string
	// Elem is the pointee or referee for pointer/reference kinds.
	Elem *TypeRef
	// Args are the concrete template arguments for template kinds.
	Args []TypeRef
}

// IsVoid reports whether the reference is the void type.
func (t TypeRef) IsVoid() bool {
	return t.Kind == KindVoid || t.Kind == ""
}

// Indirect reports whether the reference is a pointer or reference.
func (t TypeRef) Indirect() bool {
	return t.Kind == KindPointer || t.Kind == KindReference
}

// Target returns the type behind any chain of pointers and references.
func (t TypeRef) Target() TypeRef {
	cur := t
	for cur.Elem != nil {
		cur = *cur.Elem
	}
	return cur
}

// String renders the canonical spelling. The rendering is deterministic
// and doubles as the structural identity key for template instantiation.
func (t TypeRef) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t TypeRef) write(b *strings.Builder) {
	switch t.Kind {
	case KindVoid, "":
		b.WriteString("void")
	case KindPointer:
		t.Elem.write(b)
		b.WriteString(" *")
		if t.Const {
			b.WriteString(" const")
		}
	case KindReference:
		t.Elem.write(b)
		b.WriteString(" &")
	case KindTemplate:
		if t.Const {
			b.WriteString("const ")
		}
		b.WriteString(t.Name)
		b.WriteByte('<')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			a.write(b)
		}
		b.WriteByte('>')
	default:
		if t.Const {
			b.WriteString("const ")
		}
		b.WriteString(t.Name)
	}
}

// Equal reports structural equality.
func (t TypeRef) Equal(o TypeRef) bool {
	return t.String() == o.String()
}

// UnmarshalYAML parses the compact spelling form.
func (t *TypeRef) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseTypeRef(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML renders the compact spelling form.
func (t TypeRef) MarshalYAML() (any, error) {
	return t.String(), nil
}

// UnmarshalYAML accepts either a bare member name or a {name, value}
// mapping.
func (m *EnumMember) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		m.Name = value.Value
		m.Value = nil
		return nil
	}
	var full struct {
		Name  string `yaml:"name"`
		Value *int64 `yaml:"value"`
	}
	if err := value.Decode(&full); err != nil {
		return err
	}
	m.Name = full.Name
	m.Value = full.Value
	return nil
}

// MarshalYAML renders implicit members as bare names.
func (m EnumMember) MarshalYAML() (any, error) {
	if m.Value == nil {
		return m.Name, nil
	}
	return map[string]any{"name": m.Name, "value": *m.Value}, nil
}

// primitiveWords are the tokens that assemble into built-in numeric
// spellings. Anything else is a named type.
var primitiveWords = map[string]bool{
	"signed": true, "unsigned": true,
	"short": true, "long": true,
	"int": true, "char": true,
	"float": true, "double": true,
	"bool": true,
}

// ParseTypeRef parses a compact C++ type spelling into a TypeRef.
//
// Grammar: ["const"] core ( "*" ["const"] | "&" )* where core is void, a
// multi-word primitive, or a qualified name with optional template
// arguments. Constness written before the core binds to the core (so
// "const T *" is a pointer to const T).
func ParseTypeRef(spelling string) (TypeRef, error) {
	p := &typeParser{toks: tokenizeType(spelling), src: spelling}
	ref, err := p.parseType()
	if err != nil {
		return TypeRef{}, err
	}
	if p.pos != len(p.toks) {
		return TypeRef{}, fmt.Errorf("parse type %q: unexpected %q", spelling, p.toks[p.pos])
	}
	return ref, nil
}

// MustParseTypeRef is ParseTypeRef for known-good spellings in tests and
// built-in tables.
func MustParseTypeRef(spelling string) TypeRef {
	ref, err := ParseTypeRef(spelling)
	if err != nil {
		panic(err)
	}
	return ref
}

type typeParser struct {
	toks []string
	pos  int
	src  string
}

func (p *typeParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *typeParser) next() string {
	t := p.peek()
	if t != "" {
		p.pos++
	}
	return t
}

func (p *typeParser) parseType() (TypeRef, error) {
	isConst := false
	if p.peek() == "const" {
		p.next()
		isConst = true
	}
	core, err := p.parseCore()
	if err != nil {
		return TypeRef{}, err
	}
	core.Const = isConst
	for {
		switch p.peek() {
		case "*":
			if core.Kind == KindReference {
				return TypeRef{}, fmt.Errorf("parse type %q: pointer to reference", p.src)
			}
			p.next()
			elem := core
			core = TypeRef{Kind: KindPointer, Elem: &elem}
			if p.peek() == "const" {
				p.next()
				core.Const = true
			}
		case "&":
			if core.Kind == KindReference {
				return TypeRef{}, fmt.Errorf("parse type %q: reference to reference", p.src)
			}
			p.next()
			elem := core
			core = TypeRef{Kind: KindReference, Elem: &elem}
		default:
			return core, nil
		}
	}
}

func (p *typeParser) parseCore() (TypeRef, error) {
	tok := p.peek()
	if tok == "" {
		return TypeRef{}, fmt.Errorf("parse type %q: empty type", p.src)
	}
	if tok == "void" {
		p.next()
		return TypeRef{Kind: KindVoid, Name: "void"}, nil
	}
	if primitiveWords[tok] {
		var words []string
		for primitiveWords[p.peek()] {
			words = append(words, p.next())
		}
		name, err := canonicalPrimitive(words)
		if err != nil {
			return TypeRef{}, fmt.Errorf("parse type %q: %w", p.src, err)
		}
		return TypeRef{Kind: KindPrimitive, Name: name}, nil
	}
	if !isIdentifier(tok) {
		return TypeRef{}, fmt.Errorf("parse type %q: unexpected %q", p.src, tok)
	}
	name := p.next()
	for p.peek() == "::" {
		p.next()
		part := p.next()
		if !isIdentifier(part) {
			return TypeRef{}, fmt.Errorf("parse type %q: bad name segment %q", p.src, part)
		}
		name += "::" + part
	}
	if p.peek() != "<" {
		return TypeRef{Kind: KindNamed, Name: name}, nil
	}
	p.next()
	ref := TypeRef{Kind: KindTemplate, Name: name}
	for {
		arg, err := p.parseType()
		if err != nil {
			return TypeRef{}, err
		}
		ref.Args = append(ref.Args, arg)
		switch p.next() {
		case ",":
			continue
		case ">":
			return ref, nil
		default:
			return TypeRef{}, fmt.Errorf("parse type %q: unterminated template arguments", p.src)
		}
	}
}

// canonicalPrimitive normalizes multi-word spellings: redundant "int" is
// dropped next to short/long, "unsigned" alone becomes "unsigned int",
// and "signed" collapses everywhere except "signed char", which is a
// distinct type from plain char.
func canonicalPrimitive(words []string) (string, error) {
	signed, unsigned := false, false
	length := "" // "short", "long", "long long"
	base := ""
	for _, w := range words {
		switch w {
		case "signed":
			signed = true
		case "unsigned":
			unsigned = true
		case "short":
			if length != "" {
				return "", fmt.Errorf("invalid primitive: %q after %q", w, length)
			}
			length = "short"
		case "long":
			switch length {
			case "":
				length = "long"
			case "long":
				length = "long long"
			default:
				return "", fmt.Errorf("invalid primitive: %q after %q", w, length)
			}
		default:
			if base != "" {
				return "", fmt.Errorf("invalid primitive: both %q and %q", base, w)
			}
			base = w
		}
	}
	if signed && unsigned {
		return "", fmt.Errorf("invalid primitive: both signed and unsigned")
	}
	switch base {
	case "float", "bool":
		if signed || unsigned || length != "" {
			return "", fmt.Errorf("invalid primitive: qualified %s", base)
		}
	case "double":
		if signed || unsigned || length == "short" || length == "long long" {
			return "", fmt.Errorf("invalid primitive: qualified double")
		}
	case "char":
		if length != "" {
			return "", fmt.Errorf("invalid primitive: %s char", length)
		}
	}
	if base == "int" && length != "" {
		base = ""
	}
	if base == "" && length == "" {
		base = "int"
	}
	parts := make([]string, 0, 3)
	if unsigned {
		parts = append(parts, "unsigned")
	} else if signed && base == "char" {
		parts = append(parts, "signed")
	}
	if length != "" {
		parts = append(parts, length)
	}
	if base != "" {
		parts = append(parts, base)
	}
	return strings.Join(parts, " "), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		alpha := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		digit := r >= '0' && r <= '9'
		if !alpha && !(digit && i > 0) {
			return false
		}
	}
	return true
}

func tokenizeType(s string) []string {
	var toks []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == ':' && i+1 < len(s) && s[i+1] == ':':
			toks = append(toks, "::")
			i += 2
		case c == '*' || c == '&' || c == '<' || c == '>' || c == ',':
			toks = append(toks, string(c))
			i++
		default:
			j := i
			for j < len(s) && s[j] != ' ' && s[j] != '\t' && s[j] != '*' &&
				s[j] != '&' && s[j] != '<' && s[j] != '>' && s[j] != ',' && s[j] != ':' {
				j++
			}
			if j == i {
				// lone ':' or other stray byte
				toks = append(toks, string(c))
				i++
			} else {
				toks = append(toks, s[i:j])
				i = j
			}
		}
	}
	return toks
}
