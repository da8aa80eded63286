package gowrap

import (
	"github.com/binderylabs/bindery/internal/generator/common"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/resolve"
)

// classInfo buckets one target's operations the way the wrapper file
// consumes them: constructors and teardown apart from receiver-bound
// methods, static entry points apart from instance ones, and signals
// folded back into per-signal triples.
type classInfo struct {
	t        *resolve.Target
	ctors    []*resolve.Operation
	destruct *resolve.Operation
	del      *resolve.Operation
	// upcasts holds the direct base edges in plan order; downs the
	// checked downcasts declared on this class as a base.
	upcasts []*resolve.Operation
	downs   []*resolve.Operation
	// ops are the receiver-bound operations: methods, operators, free
	// operators adopted through their left operand, and field access.
	ops []*resolve.Operation
	// statics take no receiver and surface as package functions.
	statics []*resolve.Operation
	signals []*signalOps

	ancestors []*ancestorLink
	derived   []*classInfo
}

// signalOps is one signal's surviving entry-point triple plus its
// shared artifact. Signals whose connect symbol was dropped never get
// an entry here and disappear from the wrapper entirely.
type signalOps struct {
	sig        *model.Signal
	connect    *resolve.Operation
	disconnect *resolve.Operation
	raise      *resolve.Operation
	art        common.SignalArtifact
}

// ancestorLink is one reachable base class. Direct edges carry their
// upcast operation; transitive ones name the direct base the generated
// converter chains through.
type ancestorLink struct {
	ci  *classInfo
	up  *resolve.Operation
	via *classInfo
}

// wrapPlan is the assembled wrapper-side view of a resolve plan.
type wrapPlan struct {
	classes []*classInfo
	byT     map[*resolve.Target]*classInfo
}

func buildWrapPlan(plan *resolve.Plan, arts *common.Artifacts) *wrapPlan {
	p := &wrapPlan{byT: make(map[*resolve.Target]*classInfo, len(plan.Targets))}
	for _, t := range plan.Targets {
		ci := &classInfo{t: t}
		p.byT[t] = ci
		p.classes = append(p.classes, ci)
		bucketOps(ci, arts)
	}
	p.linkAncestors()
	return p
}

func bucketOps(ci *classInfo, arts *common.Artifacts) {
	bySignal := make(map[*model.Signal]*signalOps)
	for _, op := range ci.t.Ops {
		switch op.Kind {
		case resolve.OpConstruct:
			ci.ctors = append(ci.ctors, op)
		case resolve.OpDestruct:
			ci.destruct = op
		case resolve.OpDelete:
			ci.del = op
		case resolve.OpUpcast:
			ci.upcasts = append(ci.upcasts, op)
		case resolve.OpDowncast:
			ci.downs = append(ci.downs, op)
		case resolve.OpStaticMethod:
			ci.statics = append(ci.statics, op)
		case resolve.OpFieldGet, resolve.OpFieldRef, resolve.OpFieldMut, resolve.OpFieldSet:
			if op.Field.Static {
				ci.statics = append(ci.statics, op)
			} else {
				ci.ops = append(ci.ops, op)
			}
		case resolve.OpMethod, resolve.OpFunction:
			ci.ops = append(ci.ops, op)
		case resolve.OpConnect:
			art, ok := arts.Signal[op.Signal]
			if !ok {
				continue
			}
			so := &signalOps{sig: op.Signal, connect: op, art: art}
			bySignal[op.Signal] = so
			ci.signals = append(ci.signals, so)
		case resolve.OpDisconnect:
			if so := bySignal[op.Signal]; so != nil {
				so.disconnect = op
			}
		case resolve.OpRaise:
			if so := bySignal[op.Signal]; so != nil {
				so.raise = op
			}
		}
	}
}

// linkAncestors resolves every class's reachable bases and the reverse
// derived index. Diamond shapes keep the first discovered path; a
// malformed base cycle terminates instead of recursing.
func (p *wrapPlan) linkAncestors() {
	state := make(map[*classInfo]int, len(p.classes))
	var resolveClass func(ci *classInfo)
	resolveClass = func(ci *classInfo) {
		if state[ci] != 0 {
			return
		}
		state[ci] = 1
		for _, up := range ci.upcasts {
			base := p.byT[up.CastTo]
			if base == nil || hasAncestor(ci.ancestors, base) {
				continue
			}
			ci.ancestors = append(ci.ancestors, &ancestorLink{ci: base, up: up})
			if state[base] == 1 {
				continue
			}
			resolveClass(base)
			for _, al := range base.ancestors {
				if al.ci == ci || hasAncestor(ci.ancestors, al.ci) {
					continue
				}
				ci.ancestors = append(ci.ancestors, &ancestorLink{ci: al.ci, via: base})
			}
		}
		state[ci] = 2
	}
	for _, ci := range p.classes {
		resolveClass(ci)
	}
	for _, ci := range p.classes {
		for _, al := range ci.ancestors {
			al.ci.derived = append(al.ci.derived, ci)
		}
	}
}

func hasAncestor(links []*ancestorLink, ci *classInfo) bool {
	for _, al := range links {
		if al.ci == ci {
			return true
		}
	}
	return false
}

// tracksInstances reports whether instance methods of this class hand
// out factory-counted handles by default.
func (ci *classInfo) tracksInstances() bool {
	return ci.t.Class.TracksInstances
}

// signalBearers lists this class and every ancestor that declares
// surviving signals, paired with the ancestor link needed to adjust the
// object pointer. The receiver itself appears with a nil link.
func (ci *classInfo) signalBearers() []*ancestorLink {
	var out []*ancestorLink
	if len(ci.signals) > 0 {
		out = append(out, &ancestorLink{ci: ci})
	}
	for _, al := range ci.ancestors {
		if len(al.ci.signals) > 0 {
			out = append(out, al)
		}
	}
	return out
}
