package gowrap

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/resolve"
)

// The bridge file is the only generated Go code that speaks cgo. It
// defines one package-level function per shim entry point, named by the
// flat symbol, trafficking in plain Go types; the bindings file calls
// these and never touches a C type. Signal trampolines carry //export
// and therefore live in a third file whose preamble holds nothing but
// the shim header include, since an exporting file's preamble must not
// define anything. The hook functions registering those trampolines are
// definitions, so they stay in the bridge preamble.
const bridgeTmpl = `// {{.Banner}}

package {{.Package}}

/*
#cgo CXXFLAGS: -std=c++17
#cgo LDFLAGS: -lstdc++
#include <stdlib.h>
#include "{{.HeaderFile}}"
{{if .Externs}}
{{range .Externs -}}
{{.}}
{{end -}}
{{range .Hooks}}
{{.}}
{{end -}}
{{end -}}
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/binderylabs/bindery/handle"
)
{{if .HasSignals}}
// signals holds every wrapper-side connection, keyed by source object
// and event identity.
var signals handle.Registry

// taps is the shim-side registration kept alive per source and event
// while any wrapper-side connection exists.
type tapKey struct {
	src   unsafe.Pointer
	event handle.Event
}

var (
	tapMu sync.Mutex
	taps  = make(map[tapKey]C.ulonglong)
)

const (
{{range .Events}}	{{.Name}} handle.Event = {{.Value}}
{{end -}}
)

{{range .Args -}}
type {{.Name}} struct {
{{- range .Fields}}
	{{.Name}} {{.Type}}
{{- end}}
}

{{end -}}
{{end -}}
{{range .Funcs}}
func {{.Name}}({{.Params}}){{with .Ret}} {{.}}{{end}} {
{{- range .Body}}
	{{.}}
{{- end}}
}
{{end -}}
`

const exportsTmpl = `// {{.Banner}}

package {{.Package}}

/*
#include "{{.HeaderFile}}"
*/
import "C"

import "unsafe"
{{range .Trampolines}}
//export {{.Name}}
func {{.Name}}({{.Params}}) {
{{- range .Body}}
	{{.}}
{{- end}}
}
{{end -}}
`

var (
	bridgeTemplate  = template.Must(template.New("bridge.go").Parse(bridgeTmpl))
	exportsTemplate = template.Must(template.New("exports.go").Parse(exportsTmpl))
)

type bridgeFn struct {
	Name   string
	Params string
	Ret    string
	Body   []string
}

type argsField struct {
	Name string
	Type string
}

type argsDecl struct {
	Name   string
	Fields []argsField
}

type eventDecl struct {
	Name  string
	Value uint32
}

type bridgeData struct {
	Banner     string
	Package    string
	HeaderFile string
	Externs    []string
	Hooks      []string
	HasSignals bool
	Events     []eventDecl
	Args       []argsDecl
	Funcs      []bridgeFn
}

type exportsData struct {
	Banner      string
	Package     string
	HeaderFile  string
	Trampolines []bridgeFn
}

// bridger renders the cgo side of the wrapper. It classifies types with
// the same mapper as the bindings emitter, so the two files always agree
// on a symbol's Go signature.
type bridger struct {
	m  *goMapper
	wp *wrapPlan
	n  *names
}

// emitBridge renders the bridge file and, when the plan carries signals,
// the exported-trampoline file. The exports slice is nil otherwise.
func emitBridge(banner string, plan *resolve.Plan, m *goMapper, wp *wrapPlan, n *names) ([]byte, []byte, error) {
	b := &bridger{m: m, wp: wp, n: n}
	bd := bridgeData{
		Banner:     banner,
		Package:    plan.Library,
		HeaderFile: plan.Library + "_shim.h",
	}
	ed := exportsData{
		Banner:     banner,
		Package:    plan.Library,
		HeaderFile: plan.Library + "_shim.h",
	}

	for _, ci := range wp.classes {
		b.helpers(&bd, ci)
	}
	for _, ci := range wp.classes {
		for _, so := range ci.signals {
			if err := b.signal(&bd, &ed, ci, so); err != nil {
				return nil, nil, err
			}
		}
	}
	bd.HasSignals = len(bd.Events) > 0

	for _, t := range plan.Targets {
		for _, op := range t.Ops {
			fn, ok, err := b.buildOp(op)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				bd.Funcs = append(bd.Funcs, fn)
			}
		}
	}
	for _, op := range plan.Free {
		fn, ok, err := b.buildOp(op)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			bd.Funcs = append(bd.Funcs, fn)
		}
	}

	var buf bytes.Buffer
	if err := bridgeTemplate.Execute(&buf, bd); err != nil {
		return nil, nil, fmt.Errorf("render bridge: %w", err)
	}
	bridge := append([]byte(nil), buf.Bytes()...)
	if !bd.HasSignals {
		return bridge, nil, nil
	}
	buf.Reset()
	if err := exportsTemplate.Execute(&buf, ed); err != nil {
		return nil, nil, fmt.Errorf("render exports: %w", err)
	}
	return bridge, append([]byte(nil), buf.Bytes()...), nil
}

// helpers emits the per-class allocation and teardown functions the
// bindings file hands to handle.Own.
func (b *bridger) helpers(bd *bridgeData, ci *classInfo) {
	ct := b.m.arts.CType[ci.t]
	if an, ok := b.n.allocName[ci]; ok {
		bd.Funcs = append(bd.Funcs, bridgeFn{
			Name: an,
			Ret:  "unsafe.Pointer",
			Body: []string{"return C.malloc(C.sizeof_" + b.m.arts.Storage[ci.t] + ")"},
		})
		var body []string
		if ci.destruct != nil {
			body = append(body, "C."+ci.destruct.Symbol+"((*C."+ct+")(p))")
		}
		body = append(body, "C.free(p)")
		bd.Funcs = append(bd.Funcs, bridgeFn{
			Name:   b.n.destroyName[ci],
			Params: "p unsafe.Pointer",
			Body:   body,
		})
	}
	if ci.del != nil {
		bd.Funcs = append(bd.Funcs, bridgeFn{
			Name:   b.n.deleteName[ci],
			Params: "p unsafe.Pointer",
			Body:   []string{"C." + ci.del.Symbol + "((*C." + ct + ")(p))"},
		})
	}
}

// signal emits one signal's event identity, argument pack, tap pair,
// preamble hook and exported trampoline.
func (b *bridger) signal(bd *bridgeData, ed *exportsData, ci *classInfo, so *signalOps) error {
	sig := so.sig
	ct := b.m.arts.CType[ci.t]
	from := ci.t.DeclPath()
	event := b.n.eventName[sig]

	specs := make([]goSpec, len(sig.Params))
	for i, p := range sig.Params {
		s, err := b.m.spec(from, p.Type)
		if err != nil {
			return fmt.Errorf("%s: payload %d: %w", so.connect.Symbol, i, err)
		}
		specs[i] = s
	}

	bd.Events = append(bd.Events, eventDecl{Name: event, Value: so.art.Event})

	args := argsDecl{Name: b.n.argsName[sig]}
	for i, s := range specs {
		args.Fields = append(args.Fields, argsField{Name: b.n.payloadNames[sig][i], Type: s.bridgeType()})
	}
	bd.Args = append(bd.Args, args)

	tramp := b.n.trampName[sig]
	hook := b.n.hookName[sig]

	extern := []string{"void* receiver", ct + "* source"}
	for i, s := range specs {
		extern = append(extern, s.cdecl+" "+b.n.payloadNames[sig][i])
	}
	bd.Externs = append(bd.Externs,
		"extern void "+tramp+"("+strings.Join(extern, ", ")+");")
	bd.Hooks = append(bd.Hooks, strings.Join([]string{
		"static unsigned long long " + hook + "(" + ct + "* self) {",
		"    return " + so.connect.Symbol + "(self, 0, (" + so.art.FnType + ")" + tramp + ");",
		"}",
	}, "\n"))

	bd.Funcs = append(bd.Funcs, bridgeFn{
		Name:   b.n.tapName[sig],
		Params: "src unsafe.Pointer",
		Body: []string{
			"tapMu.Lock()",
			"defer tapMu.Unlock()",
			"key := tapKey{src: src, event: " + event + "}",
			"if _, ok := taps[key]; ok {",
			"\treturn",
			"}",
			"taps[key] = C." + hook + "((*C." + ct + ")(src))",
		},
	})
	if so.disconnect != nil {
		bd.Funcs = append(bd.Funcs, bridgeFn{
			Name:   b.n.untapName[sig],
			Params: "src unsafe.Pointer",
			Body: []string{
				"tapMu.Lock()",
				"defer tapMu.Unlock()",
				"key := tapKey{src: src, event: " + event + "}",
				"id, ok := taps[key]",
				"if !ok {",
				"\treturn",
				"}",
				"delete(taps, key)",
				"C." + so.disconnect.Symbol + "((*C." + ct + ")(src), id)",
			},
		})
	}

	tp := []string{"receiver unsafe.Pointer", "source *C." + ct}
	fields := make([]string, len(specs))
	for i, s := range specs {
		name := b.n.payloadNames[sig][i]
		tp = append(tp, name+" "+s.cgoParam())
		fields[i] = name + ": " + s.fromC(name)
	}
	ed.Trampolines = append(ed.Trampolines, bridgeFn{
		Name:   tramp,
		Params: strings.Join(tp, ", "),
		Body: []string{
			"a := " + b.n.argsName[sig] + "{" + strings.Join(fields, ", ") + "}",
			"signals.Raise(unsafe.Pointer(source), " + event + ", unsafe.Pointer(&a))",
		},
	})
	return nil
}

// bridgeRecv reports whether the symbol's first C parameter is the
// object pointer.
func bridgeRecv(op *resolve.Operation) bool {
	switch op.Kind {
	case resolve.OpMethod, resolve.OpRaise, resolve.OpUpcast, resolve.OpDowncast:
		return true
	case resolve.OpFieldGet, resolve.OpFieldRef, resolve.OpFieldMut, resolve.OpFieldSet:
		return !op.Field.Static
	}
	return false
}

// buildOp renders one symbol's bridge function. Connect and disconnect
// entry points cross through the tap pair instead, and teardown entry
// points through the class helpers, so those report ok=false; so do the
// surviving entry points of a signal whose connect symbol was dropped.
func (b *bridger) buildOp(op *resolve.Operation) (bridgeFn, bool, error) {
	switch op.Kind {
	case resolve.OpConnect, resolve.OpDisconnect, resolve.OpDestruct, resolve.OpDelete:
		return bridgeFn{}, false, nil
	case resolve.OpRaise:
		if _, ok := b.m.arts.Signal[op.Signal]; !ok {
			return bridgeFn{}, false, nil
		}
	case resolve.OpUpcast, resolve.OpDowncast:
		return b.castFn(op), true, nil
	}

	from := declScope(op)
	params := op.Params()
	if op.Kind == resolve.OpFieldSet {
		params = []model.Param{{Name: "value", Type: op.Field.Type}}
	}

	var decl, cargs []string
	if bridgeRecv(op) {
		decl = append(decl, "self unsafe.Pointer")
		cargs = append(cargs, "(*C."+b.m.arts.CType[op.Target]+")(self)")
	}
	for i, p := range params {
		s, err := b.m.spec(from, p.Type)
		if err != nil {
			return bridgeFn{}, false, fmt.Errorf("%s: parameter %d: %w", op.Symbol, i, err)
		}
		name := "a" + strconv.Itoa(i)
		decl = append(decl, name+" "+s.bridgeType())
		cargs = append(cargs, s.cArg(name))
	}

	ret, err := b.retSpec(op, from)
	if err != nil {
		return bridgeFn{}, false, err
	}

	fn := bridgeFn{Name: op.Symbol}
	if ret.kind == goClass && ret.byValue && ret.target.Class.Movable {
		decl = append([]string{"out unsafe.Pointer"}, decl...)
		cargs = append([]string{"(*C." + b.m.arts.Storage[ret.target] + ")(out)"}, cargs...)
		ret = goSpec{kind: goVoid}
	}
	fn.Params = strings.Join(decl, ", ")

	call := "C." + op.Symbol + "(" + strings.Join(cargs, ", ") + ")"
	if ret.kind == goVoid {
		fn.Body = []string{call}
	} else {
		fn.Ret = ret.bridgeType()
		fn.Body = []string{"return " + ret.fromC(call)}
	}
	return fn, true, nil
}

// retSpec classifies the symbol's C return the way the bindings file
// expects it: field views cross as pointers to the field's class, and
// raise entry points return nothing.
func (b *bridger) retSpec(op *resolve.Operation, from []string) (goSpec, error) {
	switch op.Kind {
	case resolve.OpFieldRef, resolve.OpFieldMut:
		ft := op.Field.Type
		s, err := b.m.spec(from, model.TypeRef{Kind: model.KindPointer, Elem: &ft})
		if err != nil || s.kind != goClass {
			return goSpec{}, fmt.Errorf("%s: field %s type %q has no generated form",
				op.Symbol, op.Field.Name, op.Field.Type.String())
		}
		return s, nil
	case resolve.OpConstruct:
		if op.Target.Class.Movable {
			return goSpec{kind: goClass, target: op.Target, byValue: true}, nil
		}
		return goSpec{kind: goRawPtr}, nil
	case resolve.OpRaise, resolve.OpFieldSet:
		return goSpec{kind: goVoid}, nil
	}
	s, err := b.m.spec(from, op.Returns())
	if err != nil {
		return goSpec{}, fmt.Errorf("%s: %w", op.Symbol, err)
	}
	return s, nil
}

// castFn crosses a pointer adjustment; the wrapper re-wraps the result.
func (b *bridger) castFn(op *resolve.Operation) bridgeFn {
	src := b.m.arts.CType[op.Target]
	return bridgeFn{
		Name:   op.Symbol,
		Params: "self unsafe.Pointer",
		Ret:    "unsafe.Pointer",
		Body:   []string{"return unsafe.Pointer(C." + op.Symbol + "((*C." + src + ")(self)))"},
	}
}
