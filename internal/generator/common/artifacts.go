package common

import (
	"strconv"

	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/resolve"
)

// SignalArtifact names the per-signal pieces both emitters must agree
// on: the C callback typedef the shim declares and the wrapper's cgo
// bridge references, and the event identity the wrapper-side connection
// registry keys on.
type SignalArtifact struct {
	FnType string
	Event  uint32
}

// Artifacts holds every C identifier derived from the plan outside the
// symbol table itself: opaque typedefs, by-value storage typedefs, enum
// typedefs and signal callback types. The resolver guarantees symbols
// are injective among themselves; derived names are allocated here
// against that table so a typedef can never shadow an entry point.
// Both emitters compute this from the same plan and get the same names.
type Artifacts struct {
	CType   map[*resolve.Target]string
	Storage map[*resolve.Target]string
	Enum    map[*model.Enum]string
	Signal  map[*model.Signal]SignalArtifact
}

// ComputeArtifacts derives the shared identifier set in plan order:
// class typedefs, storage typedefs for movable classes, enum typedefs,
// then signal callback types walking each target's operations. Signals
// whose connect entry point did not survive allocation get no artifact
// and are skipped by both emitters.
func ComputeArtifacts(plan *resolve.Plan) *Artifacts {
	taken := make(map[string]bool, len(plan.Symbols))
	for s := range plan.Symbols {
		taken[s] = true
	}
	alloc := func(base string) string {
		name := base
		for n := 2; taken[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		taken[name] = true
		return name
	}

	a := &Artifacts{
		CType:   make(map[*resolve.Target]string, len(plan.Targets)),
		Storage: make(map[*resolve.Target]string),
		Enum:    make(map[*model.Enum]string, len(plan.Enums)),
		Signal:  make(map[*model.Signal]SignalArtifact),
	}
	for _, t := range plan.Targets {
		a.CType[t] = alloc(plan.Library + "_" + t.Caption)
	}
	for _, t := range plan.Targets {
		if t.Class.Movable {
			a.Storage[t] = alloc(a.CType[t] + "_storage")
		}
	}
	for _, e := range plan.Enums {
		a.Enum[e.Enum] = alloc(plan.Library + "_" + e.Caption)
	}
	event := uint32(1)
	for _, t := range plan.Targets {
		for _, op := range t.Ops {
			if op.Kind != resolve.OpConnect {
				continue
			}
			a.Signal[op.Signal] = SignalArtifact{
				FnType: alloc(op.Symbol + "_fn"),
				Event:  event,
			}
			event++
		}
	}
	return a
}
