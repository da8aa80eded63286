package resolve

import (
	"strconv"
	"strings"

	"github.com/binderylabs/bindery/internal/model"
)

// primCaption maps canonical primitive spellings to the short words used
// inside flat symbols. Every distinct primitive keeps a distinct caption;
// "long" stays literal because its width is the platform's business, not
// the name's.
var primCaption = map[string]string{
	"bool":               "bool",
	"char":               "char",
	"signed char":        "i8",
	"unsigned char":      "u8",
	"short":              "i16",
	"unsigned short":     "u16",
	"int":                "i32",
	"unsigned int":       "u32",
	"long":               "long",
	"unsigned long":      "ulong",
	"long long":          "i64",
	"unsigned long long": "u64",
	"float":              "f32",
	"double":             "f64",
	"long double":        "ldouble",
}

// captioner allocates the lowercase words standing in for classes and
// enums inside flat symbols, and renders parameter-type captions.
type captioner struct {
	ix    *model.Index
	class map[*model.Class]string
	enum  map[*model.Enum]string
	used  map[string]bool
}

func newCaptioner(ix *model.Index) *captioner {
	return &captioner{
		ix:    ix,
		class: make(map[*model.Class]string),
		enum:  make(map[*model.Enum]string),
		used:  make(map[string]bool),
	}
}

// sanitizeCaption lowers a C++ qualified name into flat-symbol alphabet:
// lowercase letters, digits and underscores.
func sanitizeCaption(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ':' || r == ' ' || r == '_':
			if n := b.Len(); n > 0 && b.String()[n-1] != '_' {
				b.WriteByte('_')
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// reserve hands out a caption for the given qualified name, appending a
// numeric suffix when two distinct names lower to the same word. Callers
// reserve in index walk order, so the outcome is deterministic.
func (cp *captioner) reserve(qualified string) string {
	base := sanitizeCaption(qualified)
	if base == "" {
		base = "anon"
	}
	word := base
	for n := 2; cp.used[word]; n++ {
		word = base + "_" + strconv.Itoa(n)
	}
	cp.used[word] = true
	return word
}

func (cp *captioner) reserveClass(c *model.Class, qualified string) string {
	word := cp.reserve(qualified)
	cp.class[c] = word
	return word
}

func (cp *captioner) reserveEnum(e *model.Enum) string {
	word := cp.reserve(e.QualifiedName())
	cp.enum[e] = word
	return word
}

// typeCaption renders the flat-symbol word for one platform-normalized
// parameter type, resolving names from the given namespace. Pointers and
// references append "_ptr"/"_ref"; pointee constness appends "_const"
// before them, so "const QPoint &" reads "qpoint_const_ref".
func (cp *captioner) typeCaption(from []string, t model.TypeRef) string {
	switch t.Kind {
	case model.KindVoid, "":
		return "void"
	case model.KindPrimitive:
		if w, ok := primCaption[t.Name]; ok {
			return w
		}
		return sanitizeCaption(t.Name)
	case model.KindNamed:
		if c := cp.ix.LookupClass(from, t.Name); c != nil {
			if w, ok := cp.class[c]; ok {
				return w
			}
		}
		if e := cp.ix.LookupEnum(from, t.Name); e != nil {
			if w, ok := cp.enum[e]; ok {
				return w
			}
		}
		return sanitizeCaption(t.Name)
	case model.KindTemplate:
		parts := make([]string, 0, 1+len(t.Args))
		if c := cp.ix.LookupClass(from, t.Name); c != nil && cp.class[c] != "" {
			parts = append(parts, cp.class[c])
		} else {
			parts = append(parts, sanitizeCaption(t.Name))
		}
		for _, a := range t.Args {
			parts = append(parts, cp.typeCaption(from, a))
		}
		return strings.Join(parts, "_")
	case model.KindPointer:
		elem := *t.Elem
		isConst := elem.Const
		elem.Const = false
		w := cp.typeCaption(from, elem)
		if isConst {
			w += "_const"
		}
		return w + "_ptr"
	case model.KindReference:
		elem := *t.Elem
		isConst := elem.Const
		elem.Const = false
		w := cp.typeCaption(from, elem)
		if isConst {
			w += "_const"
		}
		return w + "_ref"
	}
	return "unknown"
}
