package resolve

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binderylabs/bindery/internal/diag"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/platform"
	"github.com/binderylabs/bindery/internal/registry"
)

func linuxProfile(t *testing.T) *platform.Profile {
	t.Helper()
	p, err := platform.Builtin("linux-amd64")
	require.NoError(t, err)
	return p
}

// buildPlan validates the model, discovers instantiations and runs the
// allocation pass, returning the plan and the accumulated diagnostics.
func buildPlan(t *testing.T, src string, prof *platform.Profile) (*Plan, *diag.List) {
	t.Helper()
	m, err := model.Parse([]byte(src))
	require.NoError(t, err)
	ix, diags := model.Validate(m, prof.HasAlias)
	require.False(t, diags.HasFatal(), "model invalid: %v", diags.All())

	reg := registry.New(prof)
	registry.Discover(ix, reg, diags)
	require.False(t, diags.HasFatal(), "discovery failed: %v", diags.All())

	plan := Resolve(Config{Index: ix, Platform: prof, Instances: reg.Instances()}, diags)
	return plan, diags
}

func symbols(p *Plan) []string {
	out := make([]string, 0, len(p.Symbols))
	for s := range p.Symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

const rectSrc = `
library: geom
headers: [geom.h]
root:
  classes:
    - name: QRect
      movable: true
      constructors:
        - params:
            - {name: x, type: int, default: true}
            - {name: y, type: int, default: true}
            - {name: width, type: int, default: true}
            - {name: height, type: int, default: true}
      methods:
        - {name: width, returns: int, const: true}
        - {name: height, returns: int, const: true}
`

func TestBareNamesStayBare(t *testing.T) {
	plan, diags := buildPlan(t, rectSrc, linuxProfile(t))
	require.False(t, diags.HasFatal())

	got := symbols(plan)
	assert.Contains(t, got, "geom_qrect_height")
	assert.Contains(t, got, "geom_qrect_width")
	assert.Contains(t, got, "geom_qrect_destruct")
	assert.Contains(t, got, "geom_qrect_delete")
	assert.Contains(t, got, "geom_qrect_construct")
}

func TestDefaultedParamsGetReducedForms(t *testing.T) {
	plan, _ := buildPlan(t, rectSrc, linuxProfile(t))

	// All four parameters defaulted: the full form plus one reduced
	// form per droppable suffix.
	for _, want := range []string{
		"geom_qrect_construct",
		"geom_qrect_construct_a0",
		"geom_qrect_construct_a1",
		"geom_qrect_construct_a2",
		"geom_qrect_construct_a3",
	} {
		assert.Contains(t, plan.Symbols, want)
	}
	assert.Equal(t, 2, plan.Symbols["geom_qrect_construct_a2"].Arity)
	assert.Equal(t, 4, plan.Symbols["geom_qrect_construct"].Arity)
}

func TestOverloadSeparation(t *testing.T) {
	src := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: Box
      methods:
        - {name: f1, returns: int}
        - {name: f1, returns: int, const: true}
        - name: f1
          static: true
          returns: int
          params:
            - {name: v, type: int}
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal(), "%v", diags.All())

	assert.Contains(t, plan.Symbols, "geom_box_f1")
	assert.Contains(t, plan.Symbols, "geom_box_f1_c")
	assert.Contains(t, plan.Symbols, "geom_box_f1_s")
	assert.Equal(t, OpMethod, plan.Symbols["geom_box_f1"].Kind)
	assert.Equal(t, OpStaticMethod, plan.Symbols["geom_box_f1_s"].Kind)
	assert.True(t, plan.Symbols["geom_box_f1_c"].IsConst())
}

func TestParameterCaptions(t *testing.T) {
	src := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: Point
      movable: true
    - name: Canvas
      methods:
        - name: draw
          params: [{name: v, type: int}]
        - name: draw
          params: [{name: v, type: double}]
        - name: draw
          params: [{name: p, type: const Point &}]
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal(), "%v", diags.All())

	assert.Contains(t, plan.Symbols, "geom_canvas_draw_i32")
	assert.Contains(t, plan.Symbols, "geom_canvas_draw_f64")
	assert.Contains(t, plan.Symbols, "geom_canvas_draw_point_const_ref")
	assert.NotContains(t, plan.Symbols, "geom_canvas_draw", "collided set never keeps the bare name for a parameterful overload")
}

func TestPlatformDependentAmbiguity(t *testing.T) {
	// qint16 coincides with int on the merge platform and with short on
	// the split platform; the overload pair is ambiguous only where the
	// alias table merges it.
	src := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: S
      methods:
        - name: f
          params: [{name: v, type: int}]
        - name: f
          params: [{name: v, type: qint16}]
`
	merge := &platform.Profile{Name: "merge", PointerWidth: 8, Aliases: map[string]string{"qint16": "int"}}
	split := &platform.Profile{Name: "split", PointerWidth: 8, Aliases: map[string]string{"qint16": "short"}}

	plan, diags := buildPlan(t, src, merge)
	ambiguous := diags.Warnings()
	require.NotEmpty(t, ambiguous)
	found := false
	for _, d := range ambiguous {
		if d.Kind == diag.AmbiguousOverload {
			found = true
			assert.Contains(t, d.Error(), "f(int)")
			assert.Contains(t, d.Error(), "f(qint16)")
			assert.Contains(t, d.Error(), "merge")
		}
	}
	require.True(t, found, "expected an ambiguous overload report: %v", diags.All())
	assert.NotContains(t, plan.Symbols, "geom_s_f_i32", "excluded set emits nothing")

	plan, diags = buildPlan(t, src, split)
	require.False(t, diags.HasFatal())
	assert.Contains(t, plan.Symbols, "geom_s_f_i32")
	assert.Contains(t, plan.Symbols, "geom_s_f_i16")
}

func TestAmbiguitySparesOtherSets(t *testing.T) {
	src := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: S
      methods:
        - name: f
          params: [{name: v, type: int}]
        - name: f
          params: [{name: v, type: int32_t}]
        - {name: g, returns: int}
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal())

	assert.NotContains(t, plan.Symbols, "geom_s_f_i32")
	assert.Contains(t, plan.Symbols, "geom_s_g", "one ambiguous set must not block the class")
	assert.Contains(t, plan.Symbols, "geom_s_destruct")
}

func TestReducedFormYieldsToRealOverload(t *testing.T) {
	src := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: S
      methods:
        - name: f
          params: [{name: v, type: int}]
        - name: f
          params:
            - {name: v, type: int}
            - {name: scale, type: double, default: true}
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal())

	assert.Contains(t, plan.Symbols, "geom_s_f_i32")
	assert.Contains(t, plan.Symbols, "geom_s_f_i32_f64")
	// The one-argument reduced form of the second overload would
	// duplicate the first overload's key; it is dropped, not renamed.
	assert.NotContains(t, plan.Symbols, "geom_s_f_i32_f64_a1")
	dropped := false
	for _, d := range diags.Warnings() {
		if d.Kind == diag.AmbiguousOverload {
			dropped = true
		}
	}
	assert.True(t, dropped, "the dropped reduced form must be reported")
}

func TestDestructorOmission(t *testing.T) {
	src := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: Held
      destructor: private
      methods:
        - {name: id, returns: int, const: true}
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal())

	assert.NotContains(t, plan.Symbols, "geom_held_destruct")
	assert.NotContains(t, plan.Symbols, "geom_held_delete")
	assert.Contains(t, plan.Symbols, "geom_held_id")

	omitted := diags.Omissions()
	require.NotEmpty(t, omitted)
	assert.Equal(t, diag.InaccessibleOperation, omitted[0].Kind)
	assert.Contains(t, omitted[0].Error(), "destructor is private")
}

func TestInaccessibleMembersAreOmitted(t *testing.T) {
	src := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: S
      constructors:
        - {visibility: private}
      methods:
        - {name: visible, returns: int}
        - {name: hidden, returns: int, visibility: protected}
      fields:
        - {name: open, type: int}
        - {name: closed, type: int, visibility: private}
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal())

	assert.NotContains(t, plan.Symbols, "geom_s_construct")
	assert.Contains(t, plan.Symbols, "geom_s_visible")
	assert.NotContains(t, plan.Symbols, "geom_s_hidden")
	assert.Contains(t, plan.Symbols, "geom_s_open")
	assert.Contains(t, plan.Symbols, "geom_s_set_open")
	assert.NotContains(t, plan.Symbols, "geom_s_closed")
	assert.Len(t, diags.Omissions(), 3)
}

func TestFieldAccessors(t *testing.T) {
	src := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: Point
      movable: true
      fields:
        - {name: x, type: int}
        - {name: y, type: int, const: true}
    - name: Shape
      fields:
        - {name: origin, type: Point}
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal())

	assert.Contains(t, plan.Symbols, "geom_point_x")
	assert.Contains(t, plan.Symbols, "geom_point_set_x")
	assert.Contains(t, plan.Symbols, "geom_point_y")
	assert.NotContains(t, plan.Symbols, "geom_point_set_y", "const field gets no setter")
	assert.Equal(t, OpFieldGet, plan.Symbols["geom_point_x"].Kind)

	// Class-typed fields hand out references instead of copies.
	assert.Equal(t, OpFieldRef, plan.Symbols["geom_shape_origin"].Kind)
	assert.Equal(t, OpFieldMut, plan.Symbols["geom_shape_origin_mut"].Kind)
	assert.Contains(t, plan.Symbols, "geom_shape_set_origin")
}

func TestOperators(t *testing.T) {
	src := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: Vec
      movable: true
      methods:
        - name: plus
          operator: plus
          params: [{name: other, type: const Vec &}]
          returns: Vec
        - operator: equals
          const: true
          params: [{name: other, type: const Vec &}]
          returns: bool
  functions:
    - operator: multiply
      params:
        - {name: a, type: const Vec &}
        - {name: b, type: double}
      returns: Vec
    - operator: multiply
      params:
        - {name: a, type: double}
        - {name: b, type: const Vec &}
      returns: Vec
`
	// "name: plus" together with "operator: plus" is a model error.
	m, err := model.Parse([]byte(src))
	require.NoError(t, err)
	_, diags := model.Validate(m, nil)
	require.True(t, diags.HasFatal())

	srcFixed := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: Vec
      movable: true
      methods:
        - operator: plus
          params: [{name: other, type: const Vec &}]
          returns: Vec
        - operator: equals
          const: true
          params: [{name: other, type: const Vec &}]
          returns: bool
  functions:
    - operator: multiply
      params:
        - {name: a, type: const Vec &}
        - {name: b, type: double}
      returns: Vec
    - operator: multiply
      params:
        - {name: a, type: double}
        - {name: b, type: const Vec &}
      returns: Vec
`
	plan, pdiags := buildPlan(t, srcFixed, linuxProfile(t))
	require.False(t, pdiags.HasFatal(), "%v", pdiags.All())

	assert.Contains(t, plan.Symbols, "geom_vec_plus")
	assert.Contains(t, plan.Symbols, "geom_vec_equals")

	// The first free multiply has a Vec left operand, so it joins Vec's
	// groups; the second is scalar-led and stays free, named by its
	// left-operand type.
	assert.Contains(t, plan.Symbols, "geom_vec_multiply")
	assert.Contains(t, plan.Symbols, "geom_f64_multiply")
	assert.Equal(t, "Vec", plan.Symbols["geom_vec_multiply"].Target.CppName)
}

func TestCasts(t *testing.T) {
	src := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: BaseClass1
      methods:
        - {name: virtualFunction, returns: int, virtual: true, const: true}
    - name: DerivedClass1
      bases: [{name: BaseClass1}]
      methods:
        - {name: virtualFunction, returns: int, virtual: true, const: true}
    - name: Plain
    - name: Holder
      bases: [{name: Plain}]
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal())

	assert.Contains(t, plan.Symbols, "geom_derivedclass1_upcast_baseclass1")
	assert.Contains(t, plan.Symbols, "geom_baseclass1_downcast_derivedclass1")

	// Non-polymorphic bases get the upcast but no checked downcast.
	assert.Contains(t, plan.Symbols, "geom_holder_upcast_plain")
	assert.NotContains(t, plan.Symbols, "geom_plain_downcast_holder")
}

func TestSignalsAllocateConnectAndDisconnect(t *testing.T) {
	src := `
library: ui
headers: [ui.h]
root:
  classes:
    - name: Button
      signals:
        - name: clicked
          params: [{name: count, type: int}]
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal())

	assert.Contains(t, plan.Symbols, "ui_button_connect_clicked")
	assert.Contains(t, plan.Symbols, "ui_button_disconnect_clicked")
	assert.Contains(t, plan.Symbols, "ui_button_raise_clicked")
	assert.Equal(t, OpRaise, plan.Symbols["ui_button_raise_clicked"].Kind)
}

func TestTemplateInstanceTargets(t *testing.T) {
	src := `
library: coll
headers: [coll.h]
root:
  classes:
    - name: Vector
      template_params: [T]
      movable: true
      constructors:
        - {}
      methods:
        - {name: size, returns: int, const: true}
        - name: push
          params: [{name: value, type: const T &}]
    - name: Window
      methods:
        - {name: points, returns: 'Vector<int>', const: true}
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal(), "%v", diags.All())

	assert.Contains(t, plan.Symbols, "coll_vector_i32_size")
	assert.Contains(t, plan.Symbols, "coll_vector_i32_push")
	assert.Contains(t, plan.Symbols, "coll_vector_i32_construct")
	assert.NotContains(t, plan.Symbols, "coll_vector_size", "the generic itself emits nothing")

	var inst *Target
	for _, tg := range plan.Targets {
		if tg.Instance != nil {
			inst = tg
		}
	}
	require.NotNil(t, inst)
	assert.Equal(t, "Vector<int>", inst.CppName)
	assert.Equal(t, "vector_i32", inst.Caption)
}

func TestFreeFunctions(t *testing.T) {
	src := `
library: geom
headers: [geom.h]
root:
  functions:
    - {name: version, returns: int}
  namespaces:
    - name: util
      functions:
        - name: clamp
          params:
            - {name: v, type: double}
            - {name: lo, type: double}
            - {name: hi, type: double}
          returns: double
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal())

	assert.Contains(t, plan.Symbols, "geom_version")
	assert.Contains(t, plan.Symbols, "geom_util_clamp")
	assert.Equal(t, OpFunction, plan.Symbols["geom_util_clamp"].Kind)
}

func TestDeterminism(t *testing.T) {
	prof := linuxProfile(t)
	a, _ := buildPlan(t, rectSrc, prof)
	b, _ := buildPlan(t, rectSrc, prof)
	assert.Equal(t, symbols(a), symbols(b))

	var orderA, orderB []string
	for _, op := range a.Operations() {
		orderA = append(orderA, op.Symbol)
	}
	for _, op := range b.Operations() {
		orderB = append(orderB, op.Symbol)
	}
	assert.Equal(t, orderA, orderB, "emission order must be reproducible")
}

func TestGlobalInjectivity(t *testing.T) {
	// Two scopes that flatten onto the same symbol: class "a" with
	// method "b_f" and class "a_b" with method "f". Both claimants are
	// dropped and reported rather than silently renamed.
	src := `
library: x
headers: [x.h]
root:
  classes:
    - name: a
      methods:
        - {name: b_f, returns: int}
    - name: a_b
      methods:
        - {name: f, returns: int}
`
	plan, diags := buildPlan(t, src, linuxProfile(t))
	require.False(t, diags.HasFatal())

	assert.NotContains(t, plan.Symbols, "x_a_b_f")
	reported := false
	for _, d := range diags.Warnings() {
		if d.Kind == diag.AmbiguousOverload {
			reported = true
		}
	}
	assert.True(t, reported, "cross-scope collision must be reported: %v", diags.All())
}
