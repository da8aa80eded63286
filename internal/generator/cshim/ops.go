package cshim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/binderylabs/bindery/internal/generator/common"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/resolve"
)

// cFunc is one emitted entry point: the C declaration pieces plus the
// statements of its extern "C" definition.
type cFunc struct {
	Name   string
	Ret    string
	Params []cParam
	Body   []string
}

// Decl renders the header prototype without the export macro.
func (f cFunc) Decl() string {
	return f.Ret + " " + f.Name + "(" + f.paramList() + ");"
}

// Def renders the definition head for the source file.
func (f cFunc) Def() string {
	return f.Ret + " " + f.Name + "(" + f.paramList() + ")"
}

func (f cFunc) paramList() string {
	if len(f.Params) == 0 {
		return "void"
	}
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = p.Type + " " + p.Name
	}
	return strings.Join(parts, ", ")
}

// names hands out auxiliary C identifiers: connection-table statics and
// offsetof aliases. Plan symbols and shared artifact names are seeded as
// taken, so an auxiliary name can never shadow an entry point or a
// typedef. Allocation order is plan order, keeping output deterministic.
type names struct {
	taken map[string]bool
}

func newNames(plan *resolve.Plan, arts *common.Artifacts) *names {
	taken := make(map[string]bool, len(plan.Symbols))
	for s := range plan.Symbols {
		taken[s] = true
	}
	for _, n := range arts.CType {
		taken[n] = true
	}
	for _, n := range arts.Storage {
		taken[n] = true
	}
	for _, n := range arts.Enum {
		taken[n] = true
	}
	for _, sa := range arts.Signal {
		taken[sa.FnType] = true
	}
	return &names{taken: taken}
}

func (n *names) alloc(base string) string {
	name := base
	for i := 2; n.taken[name]; i++ {
		name = base + "_" + strconv.Itoa(i)
	}
	n.taken[name] = true
	return name
}

// builder turns plan operations into emitted functions.
type builder struct {
	m       *mapper
	names   *names
	signals map[*model.Signal]*signalInfo
	// order preserves first-encounter order of signals for emission.
	order []*signalInfo
}

func newBuilder(m *mapper, ns *names) *builder {
	return &builder{m: m, names: ns, signals: make(map[*model.Signal]*signalInfo)}
}

// declScope is the namespace unqualified signature types resolve
// against: the declaring namespace for free functions, the target's
// declaration scope for everything else.
func declScope(op *resolve.Operation) []string {
	if op.Kind == resolve.OpFunction {
		return op.Path
	}
	return op.Target.DeclPath()
}

// recv builds the typed receiver: the self parameter and the cast
// expression yielding the C++ object pointer.
func (b *builder) recv(op *resolve.Operation) (cParam, string) {
	t := op.Target
	if op.IsConst() {
		return cParam{Type: "const " + b.m.ctype(t) + "*", Name: "self"},
			fmt.Sprintf("reinterpret_cast<const %s*>(self)", b.m.cppName(t))
	}
	return cParam{Type: b.m.ctype(t) + "*", Name: "self"},
		fmt.Sprintf("reinterpret_cast<%s*>(self)", b.m.cppName(t))
}

// args maps the operation's declared parameters to C declarations and
// the C++ forwarding expressions, named positionally.
func (b *builder) args(op *resolve.Operation) ([]cParam, []string, error) {
	from := declScope(op)
	params := op.Params()
	cps := make([]cParam, 0, len(params))
	exprs := make([]string, 0, len(params))
	for i, p := range params {
		cp, expr, err := b.m.param(from, p.Type, "a"+strconv.Itoa(i))
		if err != nil {
			return nil, nil, fmt.Errorf("%s: parameter %d: %w", op.Symbol, i, err)
		}
		cps = append(cps, cp)
		exprs = append(exprs, expr)
	}
	return cps, exprs, nil
}

func (b *builder) buildOp(op *resolve.Operation) (cFunc, error) {
	switch op.Kind {
	case resolve.OpConstruct:
		return b.construct(op)
	case resolve.OpDestruct:
		self, recv := b.recv(op)
		return cFunc{Name: op.Symbol, Ret: "void", Params: []cParam{self},
			Body: []string{fmt.Sprintf("std::destroy_at(%s);", recv)}}, nil
	case resolve.OpDelete:
		self, recv := b.recv(op)
		return cFunc{Name: op.Symbol, Ret: "void", Params: []cParam{self},
			Body: []string{fmt.Sprintf("delete %s;", recv)}}, nil
	case resolve.OpMethod, resolve.OpStaticMethod:
		return b.method(op)
	case resolve.OpFunction:
		return b.function(op)
	case resolve.OpFieldGet:
		return b.fieldGet(op)
	case resolve.OpFieldRef:
		return b.fieldRef(op, false)
	case resolve.OpFieldMut:
		return b.fieldRef(op, true)
	case resolve.OpFieldSet:
		return b.fieldSet(op)
	case resolve.OpUpcast, resolve.OpDowncast:
		return b.cast(op), nil
	case resolve.OpConnect:
		return b.connect(op)
	case resolve.OpDisconnect:
		return b.disconnect(op)
	case resolve.OpRaise:
		return b.raise(op)
	}
	return cFunc{}, fmt.Errorf("%s: unhandled operation kind %q", op.Symbol, op.Kind)
}

// construct places a new object into caller storage for movable classes
// and heap-allocates an owned pointer otherwise.
func (b *builder) construct(op *resolve.Operation) (cFunc, error) {
	t := op.Target
	cps, exprs, err := b.args(op)
	if err != nil {
		return cFunc{}, err
	}
	argList := strings.Join(exprs, ", ")
	if t.Class.Movable {
		f := cFunc{Name: op.Symbol, Ret: "void"}
		f.Params = append(f.Params, cParam{Type: b.m.storageType(t) + "*", Name: "out"})
		f.Params = append(f.Params, cps...)
		f.Body = []string{fmt.Sprintf("new (out) %s(%s);", b.m.cppName(t), argList)}
		return f, nil
	}
	ctype := b.m.ctype(t)
	f := cFunc{Name: op.Symbol, Ret: ctype + "*", Params: cps}
	f.Body = []string{fmt.Sprintf("return reinterpret_cast<%s*>(new %s(%s));", ctype, b.m.cppName(t), argList)}
	return f, nil
}

func (b *builder) method(op *resolve.Operation) (cFunc, error) {
	from := declScope(op)
	cps, exprs, err := b.args(op)
	if err != nil {
		return cFunc{}, err
	}
	shape, finish, err := b.m.ret(from, op.Returns())
	if err != nil {
		return cFunc{}, fmt.Errorf("%s: %w", op.Symbol, err)
	}
	var params []cParam
	var call string
	if op.Kind == resolve.OpStaticMethod {
		call = b.staticCall(op, exprs)
	} else {
		self, recv := b.recv(op)
		params = append(params, self)
		call = b.memberCall(op, recv, exprs)
	}
	params = append(params, cps...)
	if shape.Out != nil {
		params = append([]cParam{*shape.Out}, params...)
	}
	return cFunc{Name: op.Symbol, Ret: shape.Ret, Params: params, Body: finish(call)}, nil
}

func (b *builder) memberCall(op *resolve.Operation, recv string, args []string) string {
	if op.Operator == nil {
		return fmt.Sprintf("%s->%s(%s)", recv, op.Method.Name, strings.Join(args, ", "))
	}
	return memberOperatorExpr(recv, op.Operator, args)
}

func (b *builder) staticCall(op *resolve.Operation, args []string) string {
	name := op.Method.Name
	if op.Operator != nil {
		name = "operator" + op.Operator.Token
	}
	return fmt.Sprintf("%s::%s(%s)", b.m.cppName(op.Target), name, strings.Join(args, ", "))
}

// memberOperatorExpr spells the operator applied to a dereferenced
// receiver. Nullary operator kinds forward the prefix form.
func memberOperatorExpr(recv string, o *resolve.Operator, args []string) string {
	deref := "(*" + recv + ")"
	switch o.Token {
	case "[]":
		return deref + "[" + args[0] + "]"
	case "()":
		return deref + "(" + strings.Join(args, ", ") + ")"
	}
	if len(args) == 0 {
		return o.Token + deref
	}
	return deref + " " + o.Token + " " + args[0]
}

func (b *builder) function(op *resolve.Operation) (cFunc, error) {
	cps, exprs, err := b.args(op)
	if err != nil {
		return cFunc{}, err
	}
	shape, finish, err := b.m.ret(op.Path, op.Fn.Returns)
	if err != nil {
		return cFunc{}, fmt.Errorf("%s: %w", op.Symbol, err)
	}
	var call string
	if op.Operator != nil {
		call = freeOperatorExpr(op.Operator, exprs)
	} else {
		call = fmt.Sprintf("%s(%s)", qualifyFn(op.Path, op.Fn.Name), strings.Join(exprs, ", "))
	}
	params := cps
	if shape.Out != nil {
		params = append([]cParam{*shape.Out}, params...)
	}
	return cFunc{Name: op.Symbol, Ret: shape.Ret, Params: params, Body: finish(call)}, nil
}

func qualifyFn(path []string, name string) string {
	if len(path) == 0 {
		return "::" + name
	}
	return "::" + strings.Join(path, "::") + "::" + name
}

// freeOperatorExpr spells a namespace-level operator application; the
// first argument is the left operand.
func freeOperatorExpr(o *resolve.Operator, args []string) string {
	if len(args) == 1 {
		return o.Token + args[0]
	}
	return args[0] + " " + o.Token + " " + args[1]
}

// fieldExpr yields the receiver parameters (empty for statics) and the
// C++ lvalue naming the field.
func (b *builder) fieldExpr(op *resolve.Operation) ([]cParam, string) {
	if op.Field.Static {
		return nil, b.m.cppName(op.Target) + "::" + op.Field.Name
	}
	self, recv := b.recv(op)
	return []cParam{self}, recv + "->" + op.Field.Name
}

func (b *builder) fieldGet(op *resolve.Operation) (cFunc, error) {
	from := declScope(op)
	shape, finish, err := b.m.ret(from, op.Field.Type)
	if err != nil {
		return cFunc{}, fmt.Errorf("%s: %w", op.Symbol, err)
	}
	params, expr := b.fieldExpr(op)
	return cFunc{Name: op.Symbol, Ret: shape.Ret, Params: params, Body: finish(expr)}, nil
}

// fieldRef hands out a pointer to a class-typed field, const unless
// mutable access was allocated.
func (b *builder) fieldRef(op *resolve.Operation, mutable bool) (cFunc, error) {
	from := declScope(op)
	tg := b.m.targetFor(from, b.m.prof.Normalize(op.Field.Type))
	if tg == nil {
		return cFunc{}, fmt.Errorf("%s: field %s type %q has no generated form",
			op.Symbol, op.Field.Name, op.Field.Type.String())
	}
	params, expr := b.fieldExpr(op)
	ctype := b.m.ctype(tg)
	if mutable {
		return cFunc{Name: op.Symbol, Ret: ctype + "*", Params: params,
			Body: []string{fmt.Sprintf("return reinterpret_cast<%s*>(&%s);", ctype, expr)}}, nil
	}
	return cFunc{Name: op.Symbol, Ret: "const " + ctype + "*", Params: params,
		Body: []string{fmt.Sprintf("return reinterpret_cast<const %s*>(&%s);", ctype, expr)}}, nil
}

func (b *builder) fieldSet(op *resolve.Operation) (cFunc, error) {
	from := declScope(op)
	cp, expr, err := b.m.param(from, op.Field.Type, "value")
	if err != nil {
		return cFunc{}, fmt.Errorf("%s: %w", op.Symbol, err)
	}
	params, lvalue := b.fieldExpr(op)
	return cFunc{Name: op.Symbol, Ret: "void", Params: append(params, cp),
		Body: []string{fmt.Sprintf("%s = %s;", lvalue, expr)}}, nil
}

// cast emits pointer-adjusting base/derived conversions: static_cast for
// the upward edge, dynamic_cast (null on mismatch) for the checked
// downward one.
func (b *builder) cast(op *resolve.Operation) cFunc {
	src, dst := op.Target, op.CastTo
	kw := "static_cast"
	if op.Kind == resolve.OpDowncast {
		kw = "dynamic_cast"
	}
	dstC := b.m.ctype(dst)
	return cFunc{
		Name:   op.Symbol,
		Ret:    dstC + "*",
		Params: []cParam{{Type: b.m.ctype(src) + "*", Name: "self"}},
		Body: []string{fmt.Sprintf("return reinterpret_cast<%s*>(%s<%s*>(reinterpret_cast<%s*>(self)));",
			dstC, kw, b.m.cppName(dst), b.m.cppName(src))},
	}
}
