package gowrap

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dave/jennifer/jen"

	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/resolve"
)

// handlePkg is the runtime support package every generated wrapper
// imports for ownership modes and signal connections.
const handlePkg = "github.com/binderylabs/bindery/handle"

// emitter renders the pure-Go wrapper file. Everything that needs cgo
// syntax lives in the bridge file; the wrapper only ever calls the
// bridge functions by their flat symbol names.
type emitter struct {
	f  *jen.File
	m  *goMapper
	wp *wrapPlan
	n  *names

	shapes map[*resolve.Operation]*opShape
	fwds   map[*classInfo][]forwarded
	surf   map[*classInfo]map[string]string
	order  map[*classInfo][]surfEntry
}

// opShape caches one operation's wrapper-facing parameter and return
// classification. params keeps the full declared list; specs covers the
// suffix after any receiver extraction.
type opShape struct {
	params []model.Param
	specs  []goSpec
	ret    goSpec
}

// forwarded is one inherited operation a class re-exposes as a
// one-line delegation through its base converter.
type forwarded struct {
	al *ancestorLink
	op *resolve.Operation
}

// surfEntry is one callable method of a class's emitted surface, used
// to decide which methods are signature-stable across every derived
// wrapper and so may appear in the capability interface.
type surfEntry struct {
	name string
	sig  string
	op   *resolve.Operation
}

func emitBindings(banner string, plan *resolve.Plan, m *goMapper, wp *wrapPlan, n *names) ([]byte, error) {
	f := jen.NewFile(plan.Library)
	f.HeaderComment(banner)
	f.ImportName(handlePkg, "handle")
	e := &emitter{
		f: f, m: m, wp: wp, n: n,
		shapes: make(map[*resolve.Operation]*opShape),
		fwds:   make(map[*classInfo][]forwarded),
		surf:   make(map[*classInfo]map[string]string),
		order:  make(map[*classInfo][]surfEntry),
	}
	e.resolveForwarders()
	if err := e.resolveSurfaces(); err != nil {
		return nil, err
	}
	for _, ei := range plan.Enums {
		e.enumDecl(ei)
	}
	for _, ci := range wp.classes {
		if err := e.classDecls(ci); err != nil {
			return nil, err
		}
	}
	for _, op := range plan.Free {
		if err := e.callable(nil, op, e.n.freeName[op], false); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("render bindings: %w", err)
	}
	return buf.Bytes(), nil
}

// resolveForwarders decides, class by class, which inherited operations
// get a delegating method. An inherited name already claimed by the
// class itself is shadowed and gets no forwarder, matching C++ name
// hiding. Earlier bases win ties between ancestors.
func (e *emitter) resolveForwarders() {
	for _, ci := range e.wp.classes {
		used := e.n.perClass[ci]
		claim := func(al *ancestorLink, op *resolve.Operation) {
			name := e.n.methodName[op]
			if used[name] {
				return
			}
			used[name] = true
			e.fwds[ci] = append(e.fwds[ci], forwarded{al: al, op: op})
		}
		for _, al := range ci.ancestors {
			for _, op := range al.ci.ops {
				claim(al, op)
			}
			for _, so := range al.ci.signals {
				claim(al, so.connect)
				if so.disconnect != nil {
					claim(al, so.disconnect)
				}
				if so.raise != nil {
					claim(al, so.raise)
				}
			}
		}
	}
}

// resolveSurfaces records every class's callable method surface as
// name/signature pairs: its own operations, its signal methods and the
// forwarders just resolved.
func (e *emitter) resolveSurfaces() error {
	for _, ci := range e.wp.classes {
		byName := make(map[string]string)
		add := func(op *resolve.Operation) error {
			sig, err := e.opSigStr(op)
			if err != nil {
				return err
			}
			name := e.n.methodName[op]
			byName[name] = sig
			e.order[ci] = append(e.order[ci], surfEntry{name: name, sig: sig, op: op})
			return nil
		}
		for _, op := range ci.ops {
			if err := add(op); err != nil {
				return err
			}
		}
		for _, so := range ci.signals {
			if err := add(so.connect); err != nil {
				return err
			}
			if so.disconnect != nil {
				if err := add(so.disconnect); err != nil {
					return err
				}
			}
			if so.raise != nil {
				if err := add(so.raise); err != nil {
					return err
				}
			}
		}
		for _, fw := range e.fwds[ci] {
			if err := add(fw.op); err != nil {
				return err
			}
		}
		e.surf[ci] = byName
	}
	return nil
}

func opSkip(op *resolve.Operation) int {
	if op.Kind == resolve.OpFunction && op.Target != nil {
		return 1
	}
	return 0
}

// shape classifies an operation once and caches the result. Field
// setters synthesize their single value parameter; field views rewrite
// the void return into a pointer to the field's class.
func (e *emitter) shape(op *resolve.Operation) (*opShape, error) {
	if sh, ok := e.shapes[op]; ok {
		return sh, nil
	}
	from := declScope(op)
	sh := &opShape{params: op.Params()}
	if op.Kind == resolve.OpFieldSet {
		sh.params = []model.Param{{Name: "value", Type: op.Field.Type}}
	}
	for i := opSkip(op); i < len(sh.params); i++ {
		s, err := e.m.spec(from, sh.params[i].Type)
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %d: %w", op.Symbol, i, err)
		}
		sh.specs = append(sh.specs, s)
	}
	switch op.Kind {
	case resolve.OpFieldRef, resolve.OpFieldMut:
		ft := op.Field.Type
		s, err := e.m.spec(from, model.TypeRef{Kind: model.KindPointer, Elem: &ft})
		if err != nil || s.kind != goClass {
			return nil, fmt.Errorf("%s: field %s type %q has no generated form",
				op.Symbol, op.Field.Name, op.Field.Type.String())
		}
		sh.ret = s
	default:
		s, err := e.m.spec(from, op.Returns())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op.Symbol, err)
		}
		sh.ret = s
	}
	e.shapes[op] = sh
	return sh, nil
}

func (e *emitter) recvName(ci *classInfo) string {
	return strings.ToLower(e.n.typeName[ci.t][:1])
}

// goType renders a crossing as wrapper source, with class crossings
// spelled by the supplied namer: the capability interface in parameter
// position, the concrete wrapper everywhere else.
func (e *emitter) goType(s goSpec, class func(*resolve.Target) string) *jen.Statement {
	switch s.kind {
	case goScalar:
		return jen.Id(s.scalar)
	case goEnum:
		return jen.Id(e.n.enumName[s.enum])
	case goClass:
		return jen.Id(class(s.target))
	case goPrimPtr:
		return jen.Op("*").Id(s.scalar)
	case goRawPtr:
		return jen.Qual("unsafe", "Pointer")
	}
	return nil
}

func (e *emitter) paramType(s goSpec) *jen.Statement {
	return e.goType(s, func(t *resolve.Target) string { return e.n.anyName[t] })
}

func (e *emitter) concreteType(s goSpec) *jen.Statement {
	return e.goType(s, func(t *resolve.Target) string { return e.n.typeName[t] })
}

func (e *emitter) returnType(s goSpec) *jen.Statement {
	if s.kind == goVoid {
		return nil
	}
	return e.concreteType(s)
}

// typeStr is the textual twin of goType, used for signature-stability
// comparison across derived classes.
func (e *emitter) typeStr(s goSpec, class func(*resolve.Target) string) string {
	switch s.kind {
	case goScalar:
		return s.scalar
	case goEnum:
		return e.n.enumName[s.enum]
	case goClass:
		return class(s.target)
	case goPrimPtr:
		return "*" + s.scalar
	case goRawPtr:
		return "unsafe.Pointer"
	}
	return ""
}

func (e *emitter) paramStr(s goSpec) string {
	return e.typeStr(s, func(t *resolve.Target) string { return e.n.anyName[t] })
}

func (e *emitter) concreteStr(s goSpec) string {
	return e.typeStr(s, func(t *resolve.Target) string { return e.n.typeName[t] })
}

// opSigStr renders an operation's wrapper signature as a comparison
// string, parameter types then return types.
func (e *emitter) opSigStr(op *resolve.Operation) (string, error) {
	switch op.Kind {
	case resolve.OpConnect:
		parts, err := e.payloadStrs(declScope(op), op.Signal)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op.Symbol, err)
		}
		return "(func(" + strings.Join(parts, ",") + "))handle.Conn", nil
	case resolve.OpDisconnect:
		return "(handle.Conn)bool", nil
	}
	sh, err := e.shape(op)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(sh.specs))
	for i, s := range sh.specs {
		parts[i] = e.paramStr(s)
	}
	return "(" + strings.Join(parts, ",") + ")" + e.concreteStr(sh.ret), nil
}

func (e *emitter) payloadStrs(from []string, sig *model.Signal) ([]string, error) {
	parts := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		s, err := e.m.spec(from, p.Type)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		parts[i] = e.concreteStr(s)
	}
	return parts, nil
}

// enumDecl emits the typed constant surface of one enum, plus the
// combine helper for flag enums.
func (e *emitter) enumDecl(ei resolve.EnumInfo) {
	en := ei.Enum
	name := e.n.enumName[en]
	e.f.Commentf("%s represents the C++ enum %s.", name, en.QualifiedName())
	e.f.Type().Id(name).Int32()
	vals := en.ResolvedValues()
	defs := make([]jen.Code, len(en.Members))
	for i := range en.Members {
		defs[i] = jen.Id(e.n.enumMembers[en][i]).Id(name).Op("=").Lit(int(vals[i]))
	}
	e.f.Const().Defs(defs...)
	if en.Flags {
		cn := e.n.combineName[en]
		e.f.Commentf("%s ors flag values together into one %s mask.", cn, name)
		e.f.Func().Id(cn).Params(jen.Id("flags").Op("...").Id(name)).Id(name).Block(
			jen.Var().Id("out").Id(name),
			jen.For(jen.List(jen.Id("_"), jen.Id("f")).Op(":=").Range().Id("flags")).Block(
				jen.Id("out").Op("|=").Id("f"),
			),
			jen.Return(jen.Id("out")),
		)
	}
}

func (e *emitter) classDecls(ci *classInfo) error {
	e.structDecl(ci)
	if err := e.ifaceDecl(ci); err != nil {
		return err
	}
	for _, op := range ci.ctors {
		if err := e.ctor(ci, op); err != nil {
			return err
		}
	}
	e.selfConverter(ci)
	for _, al := range ci.ancestors {
		e.upConverter(ci, al)
	}
	for _, op := range ci.downs {
		e.downConverter(ci, op)
	}
	e.ptrMethod(ci)
	if ci.tracksInstances() {
		e.liveMethod(ci)
	}
	e.closeMethod(ci)
	for _, op := range ci.ops {
		if err := e.callable(ci, op, e.n.methodName[op], true); err != nil {
			return err
		}
	}
	for _, so := range ci.signals {
		if err := e.signalMethods(ci, so); err != nil {
			return err
		}
	}
	for _, fw := range e.fwds[ci] {
		if err := e.forwarder(ci, fw); err != nil {
			return err
		}
	}
	for _, op := range ci.statics {
		if err := e.callable(ci, op, e.n.staticName[op], false); err != nil {
			return err
		}
	}
	return nil
}

func (e *emitter) structDecl(ci *classInfo) {
	tn := e.n.typeName[ci.t]
	e.f.Commentf("%s wraps the C++ class %s.", tn, ci.t.CppName)
	fields := []jen.Code{jen.Id("ref").Op("*").Qual(handlePkg, "Ref")}
	if ci.tracksInstances() {
		fields = append(fields, jen.Id("live").Op("*").Qual(handlePkg, "LiveCounter"))
	}
	e.f.Type().Id(tn).Struct(fields...)
}

// ifaceDecl emits the capability interface: the identity converter plus
// every surface method whose signature survives unchanged in all
// transitively derived wrappers. Divergent shadowed methods stay off
// the interface so derived wrappers keep satisfying it.
func (e *emitter) ifaceDecl(ci *classInfo) error {
	anyn := e.n.anyName[ci.t]
	tn := e.n.typeName[ci.t]
	e.f.Commentf("%s is satisfied by %s and by every wrapper that derives from it.", anyn, tn)
	methods := []jen.Code{jen.Id(e.n.asName(ci.t)).Params().Id(tn)}
	for _, ent := range e.order[ci] {
		stable := true
		for _, d := range ci.derived {
			if e.surf[d][ent.name] != ent.sig {
				stable = false
				break
			}
		}
		if !stable {
			continue
		}
		sig, err := e.ifaceMethod(ent.op)
		if err != nil {
			return err
		}
		methods = append(methods, sig)
	}
	e.f.Type().Id(anyn).Interface(methods...)
	return nil
}

func (e *emitter) ifaceMethod(op *resolve.Operation) (jen.Code, error) {
	name := e.n.methodName[op]
	switch op.Kind {
	case resolve.OpConnect:
		cb, err := e.callbackType(declScope(op), op.Signal)
		if err != nil {
			return nil, err
		}
		return jen.Id(name).Params(cb).Qual(handlePkg, "Conn"), nil
	case resolve.OpDisconnect:
		return jen.Id(name).Params(jen.Qual(handlePkg, "Conn")).Bool(), nil
	}
	sh, err := e.shape(op)
	if err != nil {
		return nil, err
	}
	params := make([]jen.Code, len(sh.specs))
	for i, s := range sh.specs {
		params[i] = e.paramType(s)
	}
	sig := jen.Id(name).Params(params...)
	if rt := e.returnType(sh.ret); rt != nil {
		sig.Add(rt)
	}
	return sig, nil
}

// callbackType is the Go function type a signal connection accepts.
// Class-typed payload values arrive as concrete borrowed wrappers.
func (e *emitter) callbackType(from []string, sig *model.Signal) (*jen.Statement, error) {
	params := make([]jen.Code, len(sig.Params))
	for i, p := range sig.Params {
		s, err := e.m.spec(from, p.Type)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		params[i] = jen.Id(e.n.payloadNames[sig][i]).Add(e.concreteType(s))
	}
	return jen.Func().Params(params...), nil
}

// wrapValue builds the composite literal for a wrapper value. Tracking
// classes always carry a counter: srcLive when the originating wrapper
// already tracks, a fresh one otherwise.
func (e *emitter) wrapValue(dst *classInfo, ref jen.Code, srcLive jen.Code) jen.Code {
	d := jen.Dict{jen.Id("ref"): ref}
	if dst.tracksInstances() {
		if srcLive == nil {
			srcLive = jen.New(jen.Qual(handlePkg, "LiveCounter"))
		}
		d[jen.Id("live")] = srcLive
	}
	return jen.Id(e.n.typeName[dst.t]).Values(d)
}

func (e *emitter) ctor(ci *classInfo, op *resolve.Operation) error {
	sh, err := e.shape(op)
	if err != nil {
		return err
	}
	name := e.n.ctorName[op]
	pnames := e.n.paramNames(sh.params, 0, "out", "ptr")
	params := make([]jen.Code, len(sh.specs))
	args := make([]jen.Code, len(sh.specs))
	for i, s := range sh.specs {
		params[i] = jen.Id(pnames[i]).Add(e.paramType(s))
		args[i] = e.bridgeArg(s, pnames[i])
	}
	e.f.Commentf("%s constructs a new %s.", name, ci.t.CppName)
	e.f.Func().Id(name).Params(params...).Id(e.n.typeName[ci.t]).
		Block(e.ownedReturn(ci, op.Symbol, args, true)...)
	return nil
}

// ownedReturn renders the statements producing an owned wrapper from a
// constructing or copying entry point. Movable classes go through
// caller-allocated storage; everything else owns the returned heap
// pointer. A class with no usable delete entry point still wraps, with
// a Close that releases only the handle.
func (e *emitter) ownedReturn(dst *classInfo, sym string, args []jen.Code, byValue bool) []jen.Code {
	if byValue && dst.t.Class.Movable {
		callArgs := append([]jen.Code{jen.Id("out")}, args...)
		return []jen.Code{
			jen.Id("out").Op(":=").Id(e.n.allocName[dst]).Call(),
			jen.Id(sym).Call(callArgs...),
			jen.Return(e.wrapValue(dst, jen.Qual(handlePkg, "Own").Call(jen.Id("out"), jen.Id(e.n.destroyName[dst])), nil)),
		}
	}
	dtor := jen.Code(jen.Nil())
	if dn, ok := e.n.deleteName[dst]; ok && dn != "" {
		dtor = jen.Id(dn)
	}
	return []jen.Code{
		jen.Return(e.wrapValue(dst, jen.Qual(handlePkg, "Own").Call(jen.Id(sym).Call(args...), dtor), nil)),
	}
}

func (e *emitter) selfConverter(ci *classInfo) {
	tn := e.n.typeName[ci.t]
	recv := e.recvName(ci)
	e.f.Commentf("%s returns the wrapper itself.", e.n.asName(ci.t))
	e.f.Func().Params(jen.Id(recv).Id(tn)).Id(e.n.asName(ci.t)).Params().Id(tn).
		Block(jen.Return(jen.Id(recv)))
}

// upConverter emits the pointer-adjusting view onto one base class.
// Direct bases cross through the shim upcast; transitive ones chain
// converters so every hop adjusts correctly.
func (e *emitter) upConverter(ci *classInfo, al *ancestorLink) {
	tn := e.n.typeName[ci.t]
	recv := e.recvName(ci)
	asn := e.n.asName(al.ci.t)
	e.f.Commentf("%s upcasts the wrapper to its base class %s.", asn, al.ci.t.CppName)
	fn := e.f.Func().Params(jen.Id(recv).Id(tn)).Id(asn).Params().Id(e.n.typeName[al.ci.t])
	if al.via != nil {
		fn.Block(jen.Return(jen.Id(recv).Dot(e.n.asName(al.via.t)).Call().Dot(asn).Call()))
		return
	}
	ref := jen.Qual(handlePkg, "Borrow").Call(jen.Id(al.up.Symbol).Call(jen.Id(recv).Dot("ref").Dot("Ptr").Call()))
	fn.Block(jen.Return(e.wrapValue(al.ci, ref, e.liveOf(ci, recv))))
}

// liveOf is the counter a converted view inherits: the receiver's
// counter when the source tracks instances, nil otherwise.
func (e *emitter) liveOf(ci *classInfo, recv string) jen.Code {
	if ci.tracksInstances() {
		return jen.Id(recv).Dot("live")
	}
	return nil
}

func (e *emitter) downConverter(ci *classInfo, op *resolve.Operation) {
	dst := e.wp.byT[op.CastTo]
	tn := e.n.typeName[ci.t]
	recv := e.recvName(ci)
	asn := e.n.asName(op.CastTo)
	e.f.Commentf("%s attempts a checked downcast to %s; the boolean reports whether the underlying object really is one.", asn, op.CastTo.CppName)
	e.f.Func().Params(jen.Id(recv).Id(tn)).Id(asn).Params().
		Params(jen.Id(e.n.typeName[op.CastTo]), jen.Bool()).
		Block(
			jen.Id("ptr").Op(":=").Id(op.Symbol).Call(jen.Id(recv).Dot("ref").Dot("Ptr").Call()),
			jen.If(jen.Id("ptr").Op("==").Nil()).Block(
				jen.Return(jen.Id(e.n.typeName[op.CastTo]).Values(), jen.False()),
			),
			jen.Return(e.wrapValue(dst, jen.Qual(handlePkg, "Borrow").Call(jen.Id("ptr")), e.liveOf(ci, recv)), jen.True()),
		)
}

func (e *emitter) ptrMethod(ci *classInfo) {
	tn := e.n.typeName[ci.t]
	recv := e.recvName(ci)
	e.f.Commentf("Ptr returns the raw pointer to the underlying C++ object.")
	e.f.Func().Params(jen.Id(recv).Id(tn)).Id("Ptr").Params().Qual("unsafe", "Pointer").
		Block(jen.Return(jen.Id(recv).Dot("ref").Dot("Ptr").Call()))
}

func (e *emitter) liveMethod(ci *classInfo) {
	tn := e.n.typeName[ci.t]
	recv := e.recvName(ci)
	e.f.Commentf("Live reports how many instance handles this wrapper's counter currently tracks.")
	e.f.Func().Params(jen.Id(recv).Id(tn)).Id("Live").Params().Int64().
		Block(jen.Return(jen.Id(recv).Dot("live").Dot("Live").Call()))
}

// closeMethod releases the handle. Owned handles of signal-bearing
// classes additionally drop their native hooks and registry entries
// first, so a later allocation at the same address cannot inherit
// callbacks.
func (e *emitter) closeMethod(ci *classInfo) {
	tn := e.n.typeName[ci.t]
	recv := e.recvName(ci)
	bearers := ci.signalBearers()
	if len(bearers) == 0 {
		e.f.Commentf("Close releases the handle; owned handles destroy the underlying C++ object. Close is idempotent.")
		e.f.Func().Params(jen.Id(recv).Id(tn)).Id("Close").Params().
			Block(jen.Id(recv).Dot("ref").Dot("Close").Call())
		return
	}
	var teardown []jen.Code
	for _, al := range bearers {
		ptrVar := "p"
		src := jen.Id(recv)
		if al.ci != ci {
			ptrVar = "p" + e.n.typeName[al.ci.t]
			src = jen.Id(recv).Dot(e.n.asName(al.ci.t)).Call()
		}
		teardown = append(teardown, jen.Id(ptrVar).Op(":=").Add(src).Dot("ref").Dot("Ptr").Call())
		for _, so := range al.ci.signals {
			if un, ok := e.n.untapName[so.sig]; ok {
				teardown = append(teardown, jen.Id(un).Call(jen.Id(ptrVar)))
			}
		}
		teardown = append(teardown, jen.Id("signals").Dot("DisconnectSource").Call(jen.Id(ptrVar)))
	}
	e.f.Commentf("Close releases the handle. An owned handle first drops every signal connection registered on the object, then destroys it.")
	e.f.Func().Params(jen.Id(recv).Id(tn)).Id("Close").Params().Block(
		jen.If(jen.Id(recv).Dot("ref").Dot("Mode").Call().Op("==").Qual(handlePkg, "ModeOwned").
			Op("&&").Op("!").Id(recv).Dot("ref").Dot("Closed").Call()).Block(teardown...),
		jen.Id(recv).Dot("ref").Dot("Close").Call(),
	)
}

// ownershipOf reads the model's explicit return-ownership override.
func ownershipOf(op *resolve.Operation) model.Ownership {
	switch {
	case op.Method != nil:
		return op.Method.ReturnOwnership
	case op.Fn != nil:
		return op.Fn.ReturnOwnership
	}
	return ""
}

// resolveOwnership decides how a class-typed result is held. Value
// results are fresh copies and always owned. Field views are borrows
// into the receiver. Otherwise the explicit override wins, and the
// remaining default is borrowed, except that instance methods of a
// tracking class hand out factory-counted shared handles.
func (e *emitter) resolveOwnership(ci *classInfo, op *resolve.Operation, hasRecv bool, ret goSpec) (model.Ownership, error) {
	own := ownershipOf(op)
	if ret.byValue {
		if own == model.Borrowed || own == model.Shared {
			return "", fmt.Errorf("%s: %s ownership cannot apply to a value return", op.Symbol, own)
		}
		return model.Owned, nil
	}
	switch op.Kind {
	case resolve.OpFieldRef, resolve.OpFieldMut:
		return model.Borrowed, nil
	}
	if own == model.Shared {
		if !hasRecv || !ci.tracksInstances() {
			return "", fmt.Errorf("%s: shared ownership requires an instance-tracking receiver", op.Symbol)
		}
		return model.Shared, nil
	}
	if own != "" {
		return own, nil
	}
	if hasRecv && op.Kind == resolve.OpMethod && ci.tracksInstances() {
		return model.Shared, nil
	}
	return model.Borrowed, nil
}

// bridgeArg converts one wrapper parameter into the bridge function's
// argument: enums flatten to int32, class handles pass their raw
// pointer through the identity converter.
func (e *emitter) bridgeArg(s goSpec, name string) jen.Code {
	switch s.kind {
	case goEnum:
		return jen.Id("int32").Call(jen.Id(name))
	case goClass:
		return jen.Id(name).Dot(e.n.asName(s.target)).Call().Dot("ref").Dot("Ptr").Call()
	}
	return jen.Id(name)
}

// callable emits one method, static function or free function: the
// bridge call plus whatever result handling its return shape needs.
func (e *emitter) callable(ci *classInfo, op *resolve.Operation, name string, hasRecv bool) error {
	sh, err := e.shape(op)
	if err != nil {
		return err
	}
	recv := ""
	if hasRecv {
		recv = e.recvName(ci)
	}
	pnames := e.n.paramNames(sh.params, opSkip(op), recv, "out", "ptr")
	params := make([]jen.Code, len(sh.specs))
	var args []jen.Code
	if hasRecv {
		args = append(args, jen.Id(recv).Dot("ref").Dot("Ptr").Call())
	}
	for i, s := range sh.specs {
		params[i] = jen.Id(pnames[i]).Add(e.paramType(s))
		args = append(args, e.bridgeArg(s, pnames[i]))
	}

	var body []jen.Code
	switch sh.ret.kind {
	case goVoid:
		body = []jen.Code{jen.Id(op.Symbol).Call(args...)}
	case goScalar, goPrimPtr, goRawPtr:
		body = []jen.Code{jen.Return(jen.Id(op.Symbol).Call(args...))}
	case goEnum:
		body = []jen.Code{jen.Return(jen.Id(e.n.enumName[sh.ret.enum]).Call(jen.Id(op.Symbol).Call(args...)))}
	case goClass:
		own, err := e.resolveOwnership(ci, op, hasRecv, sh.ret)
		if err != nil {
			return err
		}
		body = e.classReturn(sh.ret, own, op.Symbol, args, recv)
	}

	e.f.Comment(e.opDoc(name, op))
	fn := e.f.Func()
	if hasRecv {
		fn.Params(jen.Id(recv).Id(e.n.typeName[ci.t]))
	}
	fn.Id(name).Params(params...)
	if rt := e.returnType(sh.ret); rt != nil {
		fn.Add(rt)
	}
	fn.Block(body...)
	return nil
}

func (e *emitter) classReturn(ret goSpec, own model.Ownership, sym string, args []jen.Code, recv string) []jen.Code {
	dst := e.wp.byT[ret.target]
	switch own {
	case model.Owned:
		return e.ownedReturn(dst, sym, args, ret.byValue)
	case model.Shared:
		return []jen.Code{
			jen.Id("ptr").Op(":=").Id(sym).Call(args...),
			jen.Id(recv).Dot("live").Dot("Acquire").Call(jen.Lit(1)),
			jen.Return(e.wrapValue(dst, jen.Qual(handlePkg, "Share").Call(jen.Id("ptr"), jen.Id(recv).Dot("live"), jen.Lit(1)), nil)),
		}
	}
	ref := jen.Qual(handlePkg, "Borrow").Call(jen.Id(sym).Call(args...))
	return []jen.Code{jen.Return(e.wrapValue(dst, ref, nil))}
}

func (e *emitter) opDoc(name string, op *resolve.Operation) string {
	scope := ""
	if op.Target != nil {
		scope = op.Target.CppName
	}
	switch op.Kind {
	case resolve.OpFieldGet:
		return fmt.Sprintf("%s returns the field %s::%s.", name, scope, op.Field.Name)
	case resolve.OpFieldSet:
		return fmt.Sprintf("%s sets the field %s::%s.", name, scope, op.Field.Name)
	case resolve.OpFieldRef:
		return fmt.Sprintf("%s returns a borrowed view of the field %s::%s.", name, scope, op.Field.Name)
	case resolve.OpFieldMut:
		return fmt.Sprintf("%s returns a mutable borrowed view of the field %s::%s.", name, scope, op.Field.Name)
	case resolve.OpFunction:
		spell := op.Fn.Name
		if op.Operator != nil {
			spell = "operator" + op.Operator.Token
		}
		if len(op.Path) > 0 {
			spell = strings.Join(op.Path, "::") + "::" + spell
		}
		return fmt.Sprintf("%s wraps %s.", name, spell)
	}
	if op.Operator != nil {
		return fmt.Sprintf("%s wraps operator%s on %s.", name, op.Operator.Token, scope)
	}
	return fmt.Sprintf("%s wraps %s::%s.", name, scope, op.Method.Name)
}

func (e *emitter) signalMethods(ci *classInfo, so *signalOps) error {
	if err := e.connectMethod(ci, so); err != nil {
		return err
	}
	if so.disconnect != nil {
		e.disconnectMethod(ci, so)
	}
	if so.raise != nil {
		if err := e.raiseMethod(ci, so); err != nil {
			return err
		}
	}
	return nil
}

func (e *emitter) connectMethod(ci *classInfo, so *signalOps) error {
	tn := e.n.typeName[ci.t]
	recv := e.recvName(ci)
	name := e.n.methodName[so.connect]
	from := ci.t.DeclPath()
	cb, err := e.callbackType(from, so.sig)
	if err != nil {
		return fmt.Errorf("%s: %w", so.connect.Symbol, err)
	}
	conv := make([]jen.Code, len(so.sig.Params))
	classPayload := false
	for i, p := range so.sig.Params {
		s, err := e.m.spec(from, p.Type)
		if err != nil {
			return fmt.Errorf("%s: payload %d: %w", so.connect.Symbol, i, err)
		}
		sel := jen.Id("a").Dot(e.n.payloadNames[so.sig][i])
		switch s.kind {
		case goEnum:
			conv[i] = jen.Id(e.n.enumName[s.enum]).Call(sel)
		case goClass:
			classPayload = true
			conv[i] = e.wrapValue(e.wp.byT[s.target], jen.Qual(handlePkg, "Borrow").Call(sel), nil)
		default:
			conv[i] = sel
		}
	}
	doc := fmt.Sprintf("%s registers fn to run when the %s signal is raised and returns the connection handle.", name, so.sig.Name)
	if classPayload {
		doc += " Class-typed payload values are borrowed views, valid only for the duration of the callback."
	}
	e.f.Comment(doc)
	e.f.Func().Params(jen.Id(recv).Id(tn)).Id(name).Params(jen.Id("fn").Add(cb)).Qual(handlePkg, "Conn").Block(
		jen.Id("ptr").Op(":=").Id(recv).Dot("ref").Dot("Ptr").Call(),
		jen.Id(e.n.tapName[so.sig]).Call(jen.Id("ptr")),
		jen.Return(jen.Id("signals").Dot("Connect").Call(
			jen.Id("ptr"), jen.Id(e.n.eventName[so.sig]), jen.Nil(),
			jen.Func().Params(jen.Id("raw").Qual("unsafe", "Pointer")).Block(
				jen.Id("a").Op(":=").Parens(jen.Op("*").Id(e.n.argsName[so.sig])).Call(jen.Id("raw")),
				jen.Id("fn").Call(conv...),
			),
		)),
	)
	return nil
}

func (e *emitter) disconnectMethod(ci *classInfo, so *signalOps) {
	tn := e.n.typeName[ci.t]
	recv := e.recvName(ci)
	name := e.n.methodName[so.disconnect]
	e.f.Commentf("%s removes a connection made with %s and reports whether it was still registered. The native hook is released when the last connection goes away.",
		name, e.n.methodName[so.connect])
	e.f.Func().Params(jen.Id(recv).Id(tn)).Id(name).Params(jen.Id("conn").Qual(handlePkg, "Conn")).Bool().Block(
		jen.Id("ptr").Op(":=").Id(recv).Dot("ref").Dot("Ptr").Call(),
		jen.Id("ok").Op(":=").Id("signals").Dot("Disconnect").Call(jen.Id("conn")),
		jen.If(jen.Id("ok").Op("&&").Id("signals").Dot("Count").Call(jen.Id("ptr"), jen.Id(e.n.eventName[so.sig])).Op("==").Lit(0)).Block(
			jen.Id(e.n.untapName[so.sig]).Call(jen.Id("ptr")),
		),
		jen.Return(jen.Id("ok")),
	)
}

func (e *emitter) raiseMethod(ci *classInfo, so *signalOps) error {
	sh, err := e.shape(so.raise)
	if err != nil {
		return err
	}
	tn := e.n.typeName[ci.t]
	recv := e.recvName(ci)
	name := e.n.methodName[so.raise]
	pnames := e.n.paramNames(sh.params, 0, recv, "out", "ptr")
	params := make([]jen.Code, len(sh.specs))
	args := []jen.Code{jen.Id(recv).Dot("ref").Dot("Ptr").Call()}
	for i, s := range sh.specs {
		params[i] = jen.Id(pnames[i]).Add(e.paramType(s))
		args = append(args, e.bridgeArg(s, pnames[i]))
	}
	e.f.Commentf("%s raises the %s signal through the native object, invoking every connected callback.", name, so.sig.Name)
	e.f.Func().Params(jen.Id(recv).Id(tn)).Id(name).Params(params...).
		Block(jen.Id(so.raise.Symbol).Call(args...))
	return nil
}

// forwarder emits a one-line delegation of an inherited operation
// through the ancestor converter, which performs the pointer
// adjustment.
func (e *emitter) forwarder(ci *classInfo, fw forwarded) error {
	op := fw.op
	name := e.n.methodName[op]
	tn := e.n.typeName[ci.t]
	recv := e.recvName(ci)
	target := jen.Id(recv).Dot(e.n.asName(fw.al.ci.t)).Call()

	switch op.Kind {
	case resolve.OpConnect:
		cb, err := e.callbackType(declScope(op), op.Signal)
		if err != nil {
			return fmt.Errorf("%s: %w", op.Symbol, err)
		}
		e.f.Comment(e.fwdDoc(name, fw))
		e.f.Func().Params(jen.Id(recv).Id(tn)).Id(name).Params(jen.Id("fn").Add(cb)).Qual(handlePkg, "Conn").
			Block(jen.Return(target.Clone().Dot(name).Call(jen.Id("fn"))))
		return nil
	case resolve.OpDisconnect:
		e.f.Comment(e.fwdDoc(name, fw))
		e.f.Func().Params(jen.Id(recv).Id(tn)).Id(name).Params(jen.Id("conn").Qual(handlePkg, "Conn")).Bool().
			Block(jen.Return(target.Clone().Dot(name).Call(jen.Id("conn"))))
		return nil
	}

	sh, err := e.shape(op)
	if err != nil {
		return err
	}
	pnames := e.n.paramNames(sh.params, opSkip(op), recv, "out", "ptr")
	params := make([]jen.Code, len(sh.specs))
	args := make([]jen.Code, len(sh.specs))
	for i, s := range sh.specs {
		params[i] = jen.Id(pnames[i]).Add(e.paramType(s))
		args[i] = jen.Id(pnames[i])
	}
	call := target.Clone().Dot(name).Call(args...)
	body := jen.Code(jen.Return(call))
	if sh.ret.kind == goVoid {
		body = call
	}
	e.f.Comment(e.fwdDoc(name, fw))
	fn := e.f.Func().Params(jen.Id(recv).Id(tn)).Id(name).Params(params...)
	if rt := e.returnType(sh.ret); rt != nil {
		fn.Add(rt)
	}
	fn.Block(body)
	return nil
}

func (e *emitter) fwdDoc(name string, fw forwarded) string {
	switch fw.op.Kind {
	case resolve.OpConnect, resolve.OpDisconnect, resolve.OpRaise:
		return fmt.Sprintf("%s forwards to the %s signal declared on %s.", name, fw.op.Signal.Name, fw.al.ci.t.CppName)
	}
	return e.opDoc(name, fw.op)
}
