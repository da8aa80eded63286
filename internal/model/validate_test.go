package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binderylabs/bindery/internal/diag"
)

func parseModel(t *testing.T, src string) *Model {
	t.Helper()
	m, err := Parse([]byte(src))
	require.NoError(t, err)
	return m
}

const rectModel = `
library: geom
headers: ["geom/rect.h"]
root:
  classes:
    - name: Rect
      movable: true
      constructors:
        - params:
            - {name: w, type: int}
            - {name: h, type: int}
      methods:
        - {name: width, returns: int, const: true}
        - {name: height, returns: int, const: true}
        - name: translated
          const: true
          params:
            - {name: by, type: const util::Point &}
          returns: Rect
  namespaces:
    - name: util
      classes:
        - name: Point
          movable: true
          fields:
            - {name: x, type: int}
            - {name: y, type: int}
        - name: Line
          methods:
            - {name: start, returns: Point &}
    - name: app
      enums:
        - name: Mode
          members: [Fast, Exact]
`

func TestValidateCleanModel(t *testing.T) {
	m := parseModel(t, rectModel)
	ix, diags := Validate(m, nil)
	require.False(t, diags.HasFatal(), "unexpected diagnostics: %v", diags.All())

	rect := ix.LookupClass(nil, "Rect")
	require.NotNil(t, rect)
	assert.Equal(t, "Rect", rect.QualifiedName())

	pt := ix.LookupClass(nil, "util::Point")
	require.NotNil(t, pt)
	assert.Equal(t, "util::Point", pt.QualifiedName())
	assert.Equal(t, []string{"util"}, pt.Path())

	require.NotNil(t, ix.LookupEnum(nil, "app::Mode"))

	// Namespaces are walked in sorted order regardless of declaration
	// order, so the class list is stable across runs. Line::start names
	// Point without qualification and resolves within util.
	var names []string
	for _, c := range ix.ClassList {
		names = append(names, c.QualifiedName())
	}
	assert.Equal(t, []string{"Rect", "util::Point", "util::Line"}, names)
}

func TestValidateUnqualifiedLookupWalksOutward(t *testing.T) {
	src := `library: geom
headers: [g.h]
root:
  classes:
    - name: Point
  namespaces:
    - name: util
      classes:
        - name: Line
          methods:
            - {name: start, returns: Point &}
`
	m := parseModel(t, src)
	_, diags := Validate(m, nil)
	assert.False(t, diags.HasFatal(), "root Point is visible from util: %v", diags.All())

	// With the declaration gone, the same reference must fail.
	src = strings.Replace(src, "    - name: Point\n", "", 1)
	m = parseModel(t, src)
	_, diags = Validate(m, nil)
	require.True(t, diags.HasFatal())
	assert.Contains(t, diags.Fatals()[0].Error(), `unknown type "Point"`)
}

func TestValidateDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "bad library name",
			src:  "library: Geom\nheaders: [g.h]\nroot: {}\n",
			want: "lowercase identifier",
		},
		{
			name: "no headers",
			src:  "library: geom\nheaders: []\nroot: {}\n",
			want: "no headers",
		},
		{
			name: "duplicate class",
			src: `library: geom
headers: [g.h]
root:
  classes:
    - {name: Rect}
    - {name: Rect}
`,
			want: "duplicate declaration",
		},
		{
			name: "unknown base",
			src: `library: geom
headers: [g.h]
root:
  classes:
    - name: Rect
      bases: [{name: Shape}]
`,
			want: `base class "Shape"`,
		},
		{
			name: "pure without virtual",
			src: `library: geom
headers: [g.h]
root:
  classes:
    - name: Shape
      methods:
        - {name: area, returns: double, pure: true}
`,
			want: "pure method must be virtual",
		},
		{
			name: "static const method",
			src: `library: geom
headers: [g.h]
root:
  classes:
    - name: Shape
      methods:
        - {name: kind, returns: int, static: true, const: true}
`,
			want: "static method cannot be const or virtual",
		},
		{
			name: "gap in defaulted params",
			src: `library: geom
headers: [g.h]
root:
  classes:
    - name: Rect
      methods:
        - name: scaled
          params:
            - {name: x, type: int, default: true}
            - {name: y, type: int}
          returns: Rect
`,
			want: "without default follows",
		},
		{
			name: "template arity mismatch",
			src: `library: geom
headers: [g.h]
root:
  classes:
    - name: Vector
      template_params: [T]
    - name: Rect
      methods:
        - {name: corners, returns: 'Vector<int, int>'}
`,
			want: "expects 1 arguments, got 2",
		},
		{
			name: "generic used without args",
			src: `library: geom
headers: [g.h]
root:
  classes:
    - name: Vector
      template_params: [T]
    - name: Rect
      methods:
        - {name: corners, returns: Vector}
`,
			want: "without arguments",
		},
		{
			name: "arguments on non-template",
			src: `library: geom
headers: [g.h]
root:
  classes:
    - name: Rect
      methods:
        - {name: other, returns: 'Rect<int>'}
`,
			want: "not a template",
		},
		{
			name: "empty enum",
			src: `library: geom
headers: [g.h]
root:
  enums:
    - {name: Mode, members: []}
`,
			want: "enum has no members",
		},
		{
			name: "name and operator together",
			src: `library: geom
headers: [g.h]
root:
  classes:
    - name: Rect
      methods:
        - {name: plus, operator: plus, returns: Rect}
`,
			want: "both a name and an operator",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parseModel(t, tt.src)
			_, diags := Validate(m, nil)
			require.True(t, diags.HasFatal(), "expected a model error")
			found := false
			for _, d := range diags.Fatals() {
				assert.Equal(t, diag.ModelError, d.Kind)
				if strings.Contains(d.Error(), tt.want) {
					found = true
				}
			}
			assert.True(t, found, "no diagnostic mentions %q in %v", tt.want, diags.All())
		})
	}
}

func TestValidateKnownAlias(t *testing.T) {
	src := `library: geom
headers: [g.h]
root:
  classes:
    - name: Rect
      methods:
        - {name: area, returns: uint64_t, const: true}
`
	m := parseModel(t, src)
	_, diags := Validate(m, nil)
	require.True(t, diags.HasFatal(), "alias must be unknown without a platform")

	m = parseModel(t, src)
	_, diags = Validate(m, func(name string) bool { return name == "uint64_t" })
	assert.False(t, diags.HasFatal(), "unexpected: %v", diags.All())
}

func TestAncestorsDiamond(t *testing.T) {
	src := `library: geom
headers: [g.h]
root:
  classes:
    - name: Base
      methods:
        - {name: kind, returns: int, virtual: true, const: true}
    - name: Left
      bases: [{name: Base}]
    - name: Right
      bases: [{name: Base}]
    - name: Join
      bases: [{name: Left}, {name: Right}]
`
	m := parseModel(t, src)
	ix, diags := Validate(m, nil)
	require.False(t, diags.HasFatal(), "unexpected: %v", diags.All())

	join := ix.LookupClass(nil, "Join")
	require.NotNil(t, join)
	var names []string
	for _, a := range ix.Ancestors(join) {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"Left", "Base", "Right"}, names, "Base must appear once")

	assert.True(t, ix.Polymorphic(join), "virtual kind() is inherited")
	assert.False(t, join.Polymorphic(), "Join itself declares nothing virtual")
}

func TestEnumResolvedValues(t *testing.T) {
	src := `library: geom
headers: [g.h]
root:
  enums:
    - name: Flags
      flags: true
      members:
        - None
        - {name: Bold, value: 1}
        - {name: Wide, value: 4}
        - Tall
`
	m := parseModel(t, src)
	ix, diags := Validate(m, nil)
	require.False(t, diags.HasFatal(), "unexpected: %v", diags.All())

	e := ix.LookupEnum(nil, "Flags")
	require.NotNil(t, e)
	assert.Equal(t, []int64{0, 1, 4, 5}, e.ResolvedValues())
	assert.True(t, e.Flags)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("library: geom\nheaderz: [g.h]\nroot: {}\n"))
	require.Error(t, err, "typos must not be dropped silently")
}
