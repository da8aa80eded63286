package gowrap

import (
	"strconv"
	"strings"

	"github.com/binderylabs/bindery/internal/generator/common"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/resolve"
)

// names allocates every Go identifier the two generated files share.
// Package-scope names live in one namespace regardless of case, so
// exported wrapper names, unexported helpers and the symbol-named
// bridge functions all claim from the same table. Method names are
// per-class; structural members claim before plan operations so a
// model method can never displace Close or a cast converter.
type names struct {
	lib string
	pkg map[string]bool

	typeName    map[*resolve.Target]string
	anyName     map[*resolve.Target]string
	enumName    map[*model.Enum]string
	enumMembers map[*model.Enum][]string
	combineName map[*model.Enum]string

	ctorName   map[*resolve.Operation]string
	staticName map[*resolve.Operation]string
	freeName   map[*resolve.Operation]string
	methodName map[*resolve.Operation]string
	perClass   map[*classInfo]map[string]bool

	allocName   map[*classInfo]string
	destroyName map[*classInfo]string
	deleteName  map[*classInfo]string

	sigPascal    map[*model.Signal]string
	eventName    map[*model.Signal]string
	argsName     map[*model.Signal]string
	tapName      map[*model.Signal]string
	untapName    map[*model.Signal]string
	trampName    map[*model.Signal]string
	hookName     map[*model.Signal]string
	payloadNames map[*model.Signal][]string
}

func newNames(plan *resolve.Plan, wp *wrapPlan) *names {
	n := &names{
		lib: plan.Library,
		pkg: map[string]bool{
			"C": true, "handle": true, "signals": true, "sync": true,
			"tapKey": true, "tapMu": true, "taps": true, "unsafe": true,
		},
		typeName:    make(map[*resolve.Target]string),
		anyName:     make(map[*resolve.Target]string),
		enumName:    make(map[*model.Enum]string),
		enumMembers: make(map[*model.Enum][]string),
		combineName: make(map[*model.Enum]string),
		ctorName:    make(map[*resolve.Operation]string),
		staticName:  make(map[*resolve.Operation]string),
		freeName:    make(map[*resolve.Operation]string),
		methodName:  make(map[*resolve.Operation]string),
		perClass:    make(map[*classInfo]map[string]bool),
		allocName:   make(map[*classInfo]string),
		destroyName: make(map[*classInfo]string),
		deleteName:  make(map[*classInfo]string),
		sigPascal:    make(map[*model.Signal]string),
		eventName:    make(map[*model.Signal]string),
		argsName:     make(map[*model.Signal]string),
		tapName:      make(map[*model.Signal]string),
		untapName:    make(map[*model.Signal]string),
		trampName:    make(map[*model.Signal]string),
		hookName:     make(map[*model.Signal]string),
		payloadNames: make(map[*model.Signal][]string),
	}
	for s := range plan.Symbols {
		n.pkg[s] = true
	}
	for _, ci := range wp.classes {
		n.typeName[ci.t] = n.alloc(exportedTypeName(ci.t))
	}
	for _, ci := range wp.classes {
		n.anyName[ci.t] = n.alloc("Any" + n.typeName[ci.t])
	}
	for _, ei := range plan.Enums {
		name := n.alloc(common.ExportName(snakeQualified(ei.Enum.QualifiedName())))
		n.enumName[ei.Enum] = name
		for _, mem := range ei.Enum.Members {
			n.enumMembers[ei.Enum] = append(n.enumMembers[ei.Enum],
				n.alloc(name+common.ExportName(common.ToSnakeCase(mem.Name))))
		}
		if ei.Enum.Flags {
			n.combineName[ei.Enum] = n.alloc("Combine" + name)
		}
	}
	for _, ci := range wp.classes {
		n.classNames(ci)
	}
	for _, op := range plan.Free {
		n.freeName[op] = n.alloc(common.ExportName(strings.TrimPrefix(op.Symbol, n.lib+"_")))
	}
	return n
}

// classNames claims one class's package-level and method-level names in
// a fixed order: constructors and statics at package scope, then the
// structural method set, then plan operations.
func (n *names) classNames(ci *classInfo) {
	tn := n.typeName[ci.t]
	prefix := n.lib + "_" + ci.t.Caption + "_"

	for _, op := range ci.ctors {
		name := "New" + tn
		if rest := strings.TrimPrefix(strings.TrimPrefix(op.Symbol, prefix), "construct"); rest != "" {
			name += common.ExportName(rest)
		}
		n.ctorName[op] = n.alloc(name)
	}
	for _, op := range ci.statics {
		n.staticName[op] = n.alloc(tn + common.ExportName(strings.TrimPrefix(op.Symbol, prefix)))
	}

	if ci.t.Class.Movable {
		n.allocName[ci] = n.alloc("alloc" + tn)
		n.destroyName[ci] = n.alloc("destroy" + tn)
	}
	if ci.del != nil {
		n.deleteName[ci] = n.alloc("delete" + tn)
	}

	used := map[string]bool{"Close": true, "Ptr": true}
	if ci.tracksInstances() {
		used["Live"] = true
	}
	used[n.asName(ci.t)] = true
	for _, al := range ci.ancestors {
		used[n.asName(al.ci.t)] = true
	}
	for _, op := range ci.downs {
		used[n.asName(op.CastTo)] = true
	}
	n.perClass[ci] = used

	for _, op := range ci.ops {
		n.methodName[op] = n.allocIn(used, common.ExportName(strings.TrimPrefix(op.Symbol, prefix)))
	}
	for _, so := range ci.signals {
		n.signalNames(ci, so, prefix)
	}
}

func (n *names) signalNames(ci *classInfo, so *signalOps, prefix string) {
	used := n.perClass[ci]
	n.methodName[so.connect] = n.allocIn(used, common.ExportName(strings.TrimPrefix(so.connect.Symbol, prefix)))
	if so.disconnect != nil {
		n.methodName[so.disconnect] = n.allocIn(used, common.ExportName(strings.TrimPrefix(so.disconnect.Symbol, prefix)))
	}
	if so.raise != nil {
		n.methodName[so.raise] = n.allocIn(used, common.ExportName(strings.TrimPrefix(so.raise.Symbol, prefix)))
	}

	pas := common.ExportName(common.ToSnakeCase(so.sig.Name))
	n.sigPascal[so.sig] = pas
	tn := n.typeName[ci.t]
	n.eventName[so.sig] = n.alloc("event" + tn + pas)
	n.argsName[so.sig] = n.alloc("args" + tn + pas)
	n.tapName[so.sig] = n.alloc("tap" + tn + pas)
	if so.disconnect != nil {
		n.untapName[so.sig] = n.alloc("untap" + tn + pas)
	}
	// Payload spellings are shared by the args struct, the trampoline
	// parameters and the exported callback type, so the trampoline's own
	// receiver and source parameters are reserved up front.
	n.payloadNames[so.sig] = n.paramNames(so.sig.Params, 0, "receiver", "source")

	// The exported trampoline and its registration hook live in the C
	// namespace; both derive from the connect symbol, which the
	// resolver already made unique.
	base := n.lib + "_" + ci.t.Caption + "_" + strings.TrimPrefix(so.connect.Symbol, prefix+"connect_")
	n.trampName[so.sig] = n.alloc("bindery_on_" + base)
	n.hookName[so.sig] = "bindery_hook_" + base
}

// asName is the cast-converter method name for a destination type.
func (n *names) asName(t *resolve.Target) string {
	return "As" + n.typeName[t]
}

func (n *names) alloc(base string) string {
	return n.allocIn(n.pkg, base)
}

func (n *names) allocIn(used map[string]bool, base string) string {
	name := base
	for i := 2; used[name]; i++ {
		name = base + strconv.Itoa(i)
	}
	used[name] = true
	return name
}

// paramNames resolves the Go spellings of one operation's parameters,
// stepping around reserved surrounding identifiers, package identifiers
// and earlier parameters. skip drops leading declared parameters, for
// free operators whose left operand became the receiver.
func (n *names) paramNames(params []model.Param, skip int, reserved ...string) []string {
	used := make(map[string]bool, len(params)+len(reserved))
	for _, r := range reserved {
		used[r] = true
	}
	out := make([]string, 0, len(params)-skip)
	for i := skip; i < len(params); i++ {
		name := common.ParamName(params[i].Name, i)
		for used[name] || n.pkg[name] {
			name += "_"
		}
		used[name] = true
		out = append(out, name)
	}
	return out
}

// exportedTypeName renders a target's Go type name: template instances
// reuse their structured caption, plain classes re-case each namespace
// segment of the qualified C++ name.
func exportedTypeName(t *resolve.Target) string {
	if t.Instance != nil {
		return common.ExportName(t.Caption)
	}
	return common.ExportName(snakeQualified(t.CppName))
}

func snakeQualified(qualified string) string {
	segs := strings.Split(qualified, "::")
	for i, s := range segs {
		segs[i] = common.ToSnakeCase(s)
	}
	return strings.Join(segs, "_")
}
