// Package resolve turns the validated model into a symbol plan: every
// reachable operation grouped into overload sets, checked for ambiguity
// against the target platform, and allocated a unique flat C symbol.
//
// Names stay human-stable: an unambiguous method keeps its bare name
// ("geom_rect_height"); markers appear only inside a collided overload
// set, in a fixed ladder of constness ("_c"), staticness ("_s") and
// parameter-type captions. A set the ladder cannot separate is excluded
// and reported, never silently renamed. Allocation is one deterministic
// pass over the index walk order, so identical inputs yield identical
// symbols.
package resolve

import (
	"strconv"
	"strings"

	"github.com/binderylabs/bindery/internal/diag"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/platform"
	"github.com/binderylabs/bindery/internal/registry"
)

// OpKind classifies one generated entry point.
type OpKind string

const (
	OpConstruct OpKind = "construct"
	// OpDestruct destroys an object in caller-provided storage in place;
	// OpDelete frees a heap-allocated one. Both exist only for public
	// destructors.
	OpDestruct     OpKind = "destruct"
	OpDelete       OpKind = "delete"
	OpMethod       OpKind = "method"
	OpStaticMethod OpKind = "static-method"
	OpFunction     OpKind = "function"
	// OpFieldGet copies a plain field out; OpFieldRef and OpFieldMut hand
	// out const and mutable pointers to class-typed fields.
	OpFieldGet   OpKind = "field-get"
	OpFieldRef   OpKind = "field-ref"
	OpFieldMut   OpKind = "field-mut"
	OpFieldSet   OpKind = "field-set"
	OpUpcast     OpKind = "upcast"
	OpDowncast   OpKind = "downcast"
	OpConnect    OpKind = "connect"
	OpDisconnect OpKind = "disconnect"
	// OpRaise is the emission entry point that fans one signal out to its
	// registered callbacks.
	OpRaise OpKind = "raise"
)

// Target is one concrete class receiving generated code: a plain model
// class or an allocated template instance.
type Target struct {
	Class   *model.Class
	CppName string
	// Caption is the lowercase word standing in for the class inside
	// flat symbols.
	Caption string
	// Instance is set when the target came from the template registry.
	Instance *registry.Instance
	Ops      []*Operation

	from []string
}

// DeclPath returns the namespace path type names in this target's
// signatures resolve against. For template instances it is the generic's
// enclosing namespace; substituted argument types are already fully
// qualified.
func (t *Target) DeclPath() []string {
	return t.from
}

// Operation is one allocated entry point.
type Operation struct {
	Kind   OpKind
	Symbol string
	Target *Target
	Key    Key

	Method *model.Method
	Ctor   *model.Constructor
	Fn     *model.Function
	Field  *model.Field
	Signal *model.Signal
	// Path is the declaring namespace of a free function; class
	// operations resolve signature names from their target instead.
	Path []string
	// CastTo is the destination class for upcasts and downcasts.
	CastTo *Target
	// Operator is set for operator forwarding, member or free.
	Operator *Operator
	// Arity is the number of declared parameters this entry takes;
	// reduced-arity variants of defaulted signatures share the
	// declaration but take a shorter prefix.
	Arity int

	dropped bool
}

// Params returns the parameter prefix this entry forwards.
func (op *Operation) Params() []model.Param {
	switch {
	case op.Ctor != nil:
		return op.Ctor.Params[:op.Arity]
	case op.Method != nil:
		return op.Method.Params[:op.Arity]
	case op.Fn != nil:
		return op.Fn.Params[:op.Arity]
	case op.Kind == OpConnect || op.Kind == OpDisconnect || op.Kind == OpRaise:
		return op.Signal.Params
	}
	return nil
}

// Returns reports the declared C++ return type, void where none applies.
func (op *Operation) Returns() model.TypeRef {
	switch {
	case op.Method != nil:
		return op.Method.Returns
	case op.Fn != nil:
		return op.Fn.Returns
	case op.Kind == OpFieldGet:
		return op.Field.Type
	}
	return model.TypeRef{Kind: model.KindVoid, Name: "void"}
}

// IsConst reports whether the entry forwards through a const receiver.
func (op *Operation) IsConst() bool {
	switch op.Kind {
	case OpMethod:
		return op.Method != nil && op.Method.Const
	case OpFieldGet, OpFieldRef:
		return true
	}
	return false
}

// IsStatic reports whether the entry takes no receiver.
func (op *Operation) IsStatic() bool {
	switch {
	case op.Method != nil:
		return op.Method.Static
	case op.Field != nil:
		return op.Field.Static
	case op.Fn != nil:
		return true
	}
	return false
}

// EnumInfo pairs an enum with its flat caption.
type EnumInfo struct {
	Enum    *model.Enum
	Caption string
}

// Plan is the resolver's output: targets with their operations, free
// operations, enums, and the injective symbol table.
type Plan struct {
	Library string
	Targets []*Target
	Free    []*Operation
	Enums   []EnumInfo
	// Symbols maps every allocated flat symbol to its operation.
	Symbols map[string]*Operation
}

// Operations yields every allocated operation in emission order.
func (p *Plan) Operations() []*Operation {
	var out []*Operation
	for _, t := range p.Targets {
		out = append(out, t.Ops...)
	}
	return append(out, p.Free...)
}

// TargetFor returns the target generated for a class, nil when the class
// was excluded or is generic.
func (p *Plan) TargetFor(c *model.Class) *Target {
	for _, t := range p.Targets {
		if t.Class == c {
			return t
		}
	}
	return nil
}

// Config carries the resolver's inputs.
type Config struct {
	Index    *model.Index
	Platform *platform.Profile
	// Instances are the registry allocations, in creation order.
	Instances []*registry.Instance
	// Skip marks classes excluded by earlier stages (missing layout
	// facts); they receive no target and no symbols.
	Skip map[*model.Class]bool
}

// Resolve runs the single allocation pass.
func Resolve(cfg Config, diags *diag.List) *Plan {
	r := &resolver{
		cfg:      cfg,
		cp:       newCaptioner(cfg.Index),
		diags:    diags,
		targetOf: make(map[*model.Class]*Target),
		groups:   make(map[*Target]*groupList),
		plan: &Plan{
			Library: cfg.Index.Model.Library,
			Symbols: make(map[string]*Operation),
		},
	}
	r.buildTargets()
	r.buildEnums()
	for _, t := range r.plan.Targets {
		r.collectClass(t)
	}
	r.collectFree()
	for _, t := range r.plan.Targets {
		t.Ops = r.allocate(r.plan.Library+"_"+t.Caption, r.groups[t])
	}
	r.plan.Free = r.allocate(r.plan.Library, r.freeGroups)
	r.checkInjective()
	return r.plan
}

type entry struct {
	op      *Operation
	basic   string
	key     Key
	origSig []string
	from    []string
	// params and minArity drive reduced-arity variants of defaulted
	// signatures; params is nil for entries that never vary.
	params       []model.Param
	minArity     int
	overloadable bool
}

type group struct {
	basic   string
	entries []*entry
}

type groupList struct {
	byBasic map[string]*group
	order   []*group
}

func newGroupList() *groupList {
	return &groupList{byBasic: make(map[string]*group)}
}

func (gl *groupList) add(e *entry) {
	g, ok := gl.byBasic[e.basic]
	if !ok {
		g = &group{basic: e.basic}
		gl.byBasic[e.basic] = g
		gl.order = append(gl.order, g)
	}
	g.entries = append(g.entries, e)
}

type resolver struct {
	cfg        Config
	cp         *captioner
	diags      *diag.List
	plan       *Plan
	targetOf   map[*model.Class]*Target
	groups     map[*Target]*groupList
	freeGroups *groupList
}

// buildTargets reserves captions in walk order and creates one target per
// concrete class. Generic classes get captions (their instances build on
// them) but no target.
func (r *resolver) buildTargets() {
	for _, c := range r.cfg.Index.ClassList {
		caption := r.cp.reserveClass(c, c.QualifiedName())
		if c.IsGeneric() || r.cfg.Skip[c] {
			continue
		}
		t := &Target{Class: c, CppName: c.QualifiedName(), Caption: caption, from: c.Path()}
		r.targetOf[c] = t
		r.plan.Targets = append(r.plan.Targets, t)
	}
	for _, in := range r.cfg.Instances {
		if r.cfg.Skip[in.Concrete] {
			continue
		}
		word := r.cp.typeCaption(nil, in.Type())
		t := &Target{
			Class:    in.Concrete,
			CppName:  in.CppName(),
			Caption:  r.cp.reserve(word),
			Instance: in,
			from:     in.Generic.Path(),
		}
		r.cp.class[in.Concrete] = t.Caption
		r.targetOf[in.Concrete] = t
		r.plan.Targets = append(r.plan.Targets, t)
	}
	for _, t := range r.plan.Targets {
		r.groups[t] = newGroupList()
	}
	r.freeGroups = newGroupList()
}

func (r *resolver) buildEnums() {
	for _, e := range r.cfg.Index.EnumList {
		r.plan.Enums = append(r.plan.Enums, EnumInfo{Enum: e, Caption: r.cp.reserveEnum(e)})
	}
}

// origSignature renders the as-declared parameter spellings for
// diagnostics, before any platform normalization.
func origSignature(params []model.Param) []string {
	if len(params) == 0 {
		return nil
	}
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.Type.String()
	}
	return out
}

// minArity counts the parameters without defaults; the trailing run of
// defaulted parameters may be dropped one by one.
func minArity(params []model.Param) int {
	n := len(params)
	for n > 0 && params[n-1].HasDefault {
		n--
	}
	return n
}

func (r *resolver) collectClass(t *Target) {
	c := t.Class
	gl := r.groups[t]
	prof := r.cfg.Platform

	if !c.Abstract {
		if len(c.Constructors) == 0 {
			// No declared constructors means the implicit default one.
			gl.add(&entry{
				op:    &Operation{Kind: OpConstruct, Target: t, Ctor: &model.Constructor{}},
				basic: "construct",
				key:   Key{Scope: t.CppName, Name: "(constructor)"},
			})
		}
		for _, ctor := range c.Constructors {
			if !ctor.Visibility.Accessible() {
				r.diags.Addf(diag.InaccessibleOperation, t.CppName,
					"%s constructor omitted", ctor.Visibility)
				continue
			}
			gl.add(&entry{
				op:    &Operation{Kind: OpConstruct, Target: t, Ctor: ctor, Arity: len(ctor.Params)},
				basic: "construct",
				key: Key{Scope: t.CppName, Name: "(constructor)",
					Sig: signature(prof, ctor.Params, len(ctor.Params))},
				origSig:      origSignature(ctor.Params),
				from:         t.from,
				params:       ctor.Params,
				minArity:     minArity(ctor.Params),
				overloadable: true,
			})
		}
	}

	if c.Destructor.Destroyable() {
		gl.add(&entry{
			op:    &Operation{Kind: OpDestruct, Target: t},
			basic: "destruct",
			key:   Key{Scope: t.CppName, Name: "(destructor)"},
		})
		gl.add(&entry{
			op:    &Operation{Kind: OpDelete, Target: t},
			basic: "delete",
			key:   Key{Scope: t.CppName, Name: "(delete)"},
		})
	} else {
		r.diags.Addf(diag.InaccessibleOperation, t.CppName,
			"destructor is %s; no destroy entry point", c.Destructor)
	}

	for _, f := range c.Fields {
		r.collectField(t, f)
	}
	for _, m := range c.Methods {
		r.collectMethod(t, m)
	}
	for _, s := range c.Signals {
		r.collectSignal(t, s)
	}
	r.collectCasts(t)
}

func (r *resolver) collectField(t *Target, f *model.Field) {
	gl := r.groups[t]
	entity := t.CppName + "::" + f.Name
	if !f.Visibility.Accessible() {
		r.diags.Addf(diag.InaccessibleOperation, entity, "%s field omitted", f.Visibility)
		return
	}
	basic := sanitizeCaption(f.Name)
	if r.classLike(t.from, f.Type) {
		gl.add(&entry{
			op:    &Operation{Kind: OpFieldRef, Target: t, Field: f},
			basic: basic,
			key:   Key{Scope: t.CppName, Name: f.Name, Static: f.Static, Const: true},
		})
		if !f.Const {
			gl.add(&entry{
				op:    &Operation{Kind: OpFieldMut, Target: t, Field: f},
				basic: basic + "_mut",
				key:   Key{Scope: t.CppName, Name: f.Name + " (mutable)", Static: f.Static},
			})
		}
	} else {
		gl.add(&entry{
			op:    &Operation{Kind: OpFieldGet, Target: t, Field: f},
			basic: basic,
			key:   Key{Scope: t.CppName, Name: f.Name, Static: f.Static, Const: true},
		})
	}
	if !f.Const {
		gl.add(&entry{
			op:    &Operation{Kind: OpFieldSet, Target: t, Field: f},
			basic: "set_" + basic,
			key:   Key{Scope: t.CppName, Name: f.Name + " (setter)", Static: f.Static},
		})
	}
}

// classLike reports whether a type crosses the boundary as an object
// rather than a scalar, after platform normalization.
func (r *resolver) classLike(from []string, t model.TypeRef) bool {
	n := r.cfg.Platform.Normalize(t)
	switch n.Kind {
	case model.KindTemplate:
		return true
	case model.KindNamed:
		return r.cfg.Index.LookupClass(from, n.Name) != nil
	}
	return false
}

func (r *resolver) collectMethod(t *Target, m *model.Method) {
	gl := r.groups[t]
	prof := r.cfg.Platform

	var basic, keyName string
	var oper *Operator
	switch {
	case m.Operator != "":
		op, ok := LookupOperator(m.Operator)
		if !ok {
			r.diags.Addf(diag.ModelError, t.CppName, "unknown operator kind %q", m.Operator)
			return
		}
		if !op.AcceptsArity(len(m.Params)) {
			r.diags.Addf(diag.ModelError, t.CppName,
				"operator %q takes %d parameters, not %d", m.Operator, op.Params, len(m.Params))
			return
		}
		oper = op
		basic = op.Kind
		keyName = "operator" + op.Token
	default:
		basic = sanitizeCaption(m.Name)
		keyName = m.Name
	}

	entity := t.CppName + "::" + keyName
	if !m.Visibility.Accessible() {
		r.diags.Addf(diag.InaccessibleOperation, entity, "%s method omitted", m.Visibility)
		return
	}

	kind := OpMethod
	if m.Static {
		kind = OpStaticMethod
	}
	gl.add(&entry{
		op:       &Operation{Kind: kind, Target: t, Method: m, Operator: oper, Arity: len(m.Params)},
		basic:    basic,
		key:      Key{Scope: t.CppName, Name: keyName, Const: m.Const, Static: m.Static, Sig: signature(prof, m.Params, len(m.Params))},
		origSig:  origSignature(m.Params),
		from:     t.from,
		params:   m.Params,
		minArity: minArity(m.Params),
		// Operators share the collision rules of named methods.
		overloadable: true,
	})
}

func (r *resolver) collectSignal(t *Target, s *model.Signal) {
	gl := r.groups[t]
	basic := sanitizeCaption(s.Name)
	gl.add(&entry{
		op:    &Operation{Kind: OpConnect, Target: t, Signal: s},
		basic: "connect_" + basic,
		key:   Key{Scope: t.CppName, Name: s.Name + " (connect)"},
	})
	gl.add(&entry{
		op:    &Operation{Kind: OpDisconnect, Target: t, Signal: s},
		basic: "disconnect_" + basic,
		key:   Key{Scope: t.CppName, Name: s.Name + " (disconnect)"},
	})
	gl.add(&entry{
		op:    &Operation{Kind: OpRaise, Target: t, Signal: s},
		basic: "raise_" + basic,
		key:   Key{Scope: t.CppName, Name: s.Name + " (raise)"},
	})
}

// collectCasts emits one upcast per accessible direct base edge, and a
// checked downcast alongside it when the base is polymorphic.
func (r *resolver) collectCasts(t *Target) {
	ix := r.cfg.Index
	for _, b := range t.Class.Bases {
		base := ix.LookupClass(t.from, b.Name)
		if base == nil {
			continue
		}
		bt := r.targetOf[base]
		if bt == nil {
			continue
		}
		if b.Access != "" && b.Access != model.Public {
			r.diags.Addf(diag.InaccessibleOperation, t.CppName,
				"%s base %s; no cast entry points", b.Access, bt.CppName)
			continue
		}
		r.groups[t].add(&entry{
			op:    &Operation{Kind: OpUpcast, Target: t, CastTo: bt},
			basic: "upcast_" + bt.Caption,
			key:   Key{Scope: t.CppName, Name: "(upcast " + bt.CppName + ")"},
		})
		if ix.Polymorphic(base) {
			r.groups[bt].add(&entry{
				op:    &Operation{Kind: OpDowncast, Target: bt, CastTo: t},
				basic: "downcast_" + t.Caption,
				key:   Key{Scope: bt.CppName, Name: "(downcast " + t.CppName + ")"},
			})
		}
	}
}

// collectFree walks namespace-level functions. A free operator whose left
// operand is a generated class joins that class's overload groups, so a
// member operator and its free twin share one collision domain.
func (r *resolver) collectFree() {
	prof := r.cfg.Platform
	for _, nf := range r.cfg.Index.FuncList {
		fn := nf.Fn
		entity := nf.QualifiedName()
		if fn.Operator != "" {
			op, ok := LookupOperator(fn.Operator)
			if !ok {
				r.diags.Addf(diag.ModelError, entity, "unknown operator kind %q", fn.Operator)
				continue
			}
			if len(fn.Params) < 1 || !op.AcceptsArity(len(fn.Params)-1) {
				r.diags.Addf(diag.ModelError, entity,
					"free operator %q takes %d parameters plus the left operand", fn.Operator, op.Params)
				continue
			}
			r.collectFreeOperator(nf, op)
			continue
		}
		if fn.Name == "" {
			r.diags.Addf(diag.ModelError, qualifyPath(nf.Path), "function without a name")
			continue
		}
		basic := sanitizeCaption(fn.Name)
		if len(nf.Path) > 0 {
			basic = sanitizeCaption(strings.Join(nf.Path, "_")) + "_" + basic
		}
		r.freeGroups.add(&entry{
			op:           &Operation{Kind: OpFunction, Fn: fn, Path: nf.Path, Arity: len(fn.Params)},
			basic:        basic,
			key:          Key{Scope: qualifyPath(nf.Path), Name: fn.Name, Static: true, Sig: signature(prof, fn.Params, len(fn.Params))},
			origSig:      origSignature(fn.Params),
			from:         nf.Path,
			params:       fn.Params,
			minArity:     minArity(fn.Params),
			overloadable: true,
		})
	}
}

func (r *resolver) collectFreeOperator(nf model.NamespaceFunction, op *Operator) {
	fn := nf.Fn
	prof := r.cfg.Platform
	left := prof.Normalize(fn.Params[0].Type).Target()

	e := &entry{
		op:      &Operation{Kind: OpFunction, Fn: fn, Operator: op, Path: nf.Path, Arity: len(fn.Params)},
		origSig: origSignature(fn.Params),
		from:    nf.Path,
		// Free operators never carry defaulted parameters worth
		// splitting; C++ permits them, but a reduced-arity operator
		// call has no sensible spelling.
		overloadable: true,
	}
	if left.Kind == model.KindNamed || left.Kind == model.KindTemplate {
		if c := r.cfg.Index.LookupClass(nf.Path, left.Name); c != nil {
			if t := r.targetOf[c]; t != nil {
				e.op.Target = t
				e.basic = op.Kind
				e.key = Key{Scope: t.CppName, Name: "operator" + op.Token, Sig: signature(prof, fn.Params, len(fn.Params))}
				r.groups[t].add(e)
				return
			}
			// Left operand's class was excluded; the operator goes
			// with it.
			r.diags.Addf(diag.ProbeFactMissing, nf.QualifiedName(),
				"left operand %s is excluded; operator omitted", left.Name)
			return
		}
	}
	e.basic = r.cp.typeCaption(nf.Path, left) + "_" + op.Kind
	e.key = Key{Scope: qualifyPath(nf.Path), Name: "operator" + op.Token, Static: true, Sig: signature(prof, fn.Params, len(fn.Params))}
	r.freeGroups.add(e)
}

func qualifyPath(path []string) string {
	return strings.Join(path, "::")
}

// describe renders one overload for an ambiguity report, in its declared
// spelling.
func describe(e *entry) string {
	name := e.key.Name
	s := name + "(" + strings.Join(e.origSig, ", ") + ")"
	if e.key.Const {
		s += " const"
	}
	if e.key.Static {
		s = "static " + s
	}
	return s
}

// allocate assigns flat symbols to every group in the list. Groups whose
// members cannot be separated are excluded whole and reported as
// ambiguous; the rest of the plan is unaffected.
func (r *resolver) allocate(prefix string, gl *groupList) []*Operation {
	if gl == nil {
		return nil
	}
	var out []*Operation
	for _, g := range gl.order {
		out = append(out, r.allocateGroup(prefix, g)...)
	}
	return out
}

func (r *resolver) allocateGroup(prefix string, g *group) []*Operation {
	// Identical resolution keys cannot be told apart by any naming; the
	// whole set is excluded. This is where two overloads merged by the
	// platform's alias table surface.
	byKey := make(map[string]*entry, len(g.entries))
	for _, e := range g.entries {
		ks := e.key.String()
		if prev, ok := byKey[ks]; ok {
			r.diags.Addf(diag.AmbiguousOverload, e.key.Scope,
				"%s and %s share resolution key %s on %s; overload set excluded",
				describe(prev), describe(e), ks, r.cfg.Platform.Name)
			return nil
		}
		byKey[ks] = e
	}

	if len(g.entries) > 1 {
		r.decorate(g)
	}

	names := make(map[string]*entry, len(g.entries))
	for _, e := range g.entries {
		e.op.Symbol = prefix + "_" + e.basic
		e.op.Key = e.key
		if prev, ok := names[e.op.Symbol]; ok {
			r.diags.Addf(diag.AmbiguousOverload, e.key.Scope,
				"%s and %s cannot be given distinct flat names; overload set excluded",
				describe(prev), describe(e))
			return nil
		}
		names[e.op.Symbol] = e
	}

	var out []*Operation
	for _, e := range g.entries {
		out = append(out, e.op)
		out = append(out, r.variants(e, byKey)...)
	}
	return out
}

// decorate applies the disambiguation ladder inside one collided group:
// const members gain "_c" when a non-const member exists, static members
// gain "_s" when an instance member exists, and parameter captions join
// whenever two members still share a constness/staticness combination.
// Non-const stays shorter than const, matching the tie-break order.
func (r *resolver) decorate(g *group) {
	var hasConst, hasNonConst, hasStatic, hasInstance bool
	combos := make(map[[2]bool]int)
	for _, e := range g.entries {
		if e.key.Const {
			hasConst = true
		} else {
			hasNonConst = true
		}
		if e.key.Static {
			hasStatic = true
		} else {
			hasInstance = true
		}
		combos[[2]bool{e.key.Const, e.key.Static}]++
	}
	mixedConst := hasConst && hasNonConst
	mixedStatic := hasStatic && hasInstance

	for _, e := range g.entries {
		name := g.basic
		if mixedConst && e.key.Const {
			name += "_c"
		}
		if mixedStatic && e.key.Static {
			name += "_s"
		}
		if combos[[2]bool{e.key.Const, e.key.Static}] > 1 && e.params != nil {
			for i := range e.params[:e.op.Arity] {
				name += "_" + r.cp.typeCaption(e.from, normalizeParam(r.cfg.Platform, e.params[i].Type))
			}
		}
		e.basic = name
	}
}

// variants allocates the reduced-arity entries of a defaulted signature.
// A reduced form whose key duplicates a real overload is dropped with a
// diagnostic; the real overload always wins.
func (r *resolver) variants(e *entry, byKey map[string]*entry) []*Operation {
	if e.params == nil || e.minArity >= len(e.params) {
		return nil
	}
	var out []*Operation
	for arity := e.minArity; arity < len(e.params); arity++ {
		vkey := e.key
		vkey.Sig = signature(r.cfg.Platform, e.params, arity)
		ks := vkey.String()
		if _, taken := byKey[ks]; taken {
			r.diags.Addf(diag.AmbiguousOverload, e.key.Scope,
				"%d-argument form of %s duplicates an existing overload; omitted", arity, describe(e))
			continue
		}
		byKey[ks] = e
		v := *e.op
		v.Arity = arity
		v.Key = vkey
		v.Symbol = e.op.Symbol + "_a" + strconv.Itoa(arity)
		out = append(out, &v)
	}
	return out
}

// checkInjective enforces global symbol uniqueness across targets and
// free operations. A cross-scope collision drops both claimants.
func (r *resolver) checkInjective() {
	seen := make(map[string]*Operation)
	record := func(ops []*Operation) {
		for _, op := range ops {
			if prev, ok := seen[op.Symbol]; ok {
				r.diags.Addf(diag.AmbiguousOverload, op.Key.Scope,
					"flat symbol %q allocated twice: %s and %s; both dropped",
					op.Symbol, prev.Key.String(), op.Key.String())
				prev.dropped = true
				op.dropped = true
				continue
			}
			seen[op.Symbol] = op
		}
	}
	for _, t := range r.plan.Targets {
		record(t.Ops)
	}
	record(r.plan.Free)

	for _, t := range r.plan.Targets {
		t.Ops = keep(t.Ops)
	}
	r.plan.Free = keep(r.plan.Free)
	for _, op := range r.plan.Operations() {
		r.plan.Symbols[op.Symbol] = op
	}
}

func keep(ops []*Operation) []*Operation {
	out := ops[:0]
	for _, op := range ops {
		if !op.dropped {
			out = append(out, op)
		}
	}
	return out
}
