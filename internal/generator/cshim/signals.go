package cshim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/binderylabs/bindery/internal/generator/common"
	"github.com/binderylabs/bindery/internal/resolve"
)

// signalInfo is the per-signal connection table: the callback typedef
// exposed in the header and the statics backing it in the source. One
// table per signal, keyed by source object, guarded by its own mutex.
type signalInfo struct {
	FnType  string
	Typedef string
	Entry   string
	Mu      string
	Conns   string
	Next    string
	Params  []cParam
}

// signalFor builds the table names on first encounter of any of the
// signal's entry points. Derived identifiers go through the allocator so
// they can never shadow a symbol or typedef.
func (b *builder) signalFor(op *resolve.Operation) (*signalInfo, error) {
	if si, ok := b.signals[op.Signal]; ok {
		return si, nil
	}
	art := b.m.arts.Signal[op.Signal]
	from := op.Target.DeclPath()
	si := &signalInfo{FnType: art.FnType}
	for i, p := range op.Signal.Params {
		cp, _, err := b.m.param(from, p.Type, "a"+strconv.Itoa(i))
		if err != nil {
			return nil, fmt.Errorf("%s: signal parameter %d: %w", op.Symbol, i, err)
		}
		si.Params = append(si.Params, cp)
	}

	source := b.m.ctype(op.Target)
	parts := []string{"void* receiver", source + "* source"}
	for _, p := range si.Params {
		parts = append(parts, p.Type+" "+p.Name)
	}
	si.Typedef = fmt.Sprintf("typedef void (*%s)(%s);", si.FnType, strings.Join(parts, ", "))

	base := source + "_" + common.ToSnakeCase(op.Signal.Name)
	si.Entry = b.names.alloc(base + "_entry")
	si.Mu = b.names.alloc(base + "_mu")
	si.Conns = b.names.alloc(base + "_conns")
	si.Next = b.names.alloc(base + "_next")

	b.signals[op.Signal] = si
	b.order = append(b.order, si)
	return si, nil
}

// statics renders the anonymous-namespace block backing one signal.
func (si *signalInfo) statics() []string {
	return []string{
		fmt.Sprintf("struct %s {", si.Entry),
		"    unsigned long long id;",
		"    void* source;",
		"    void* receiver;",
		fmt.Sprintf("    %s fn;", si.FnType),
		"};",
		fmt.Sprintf("std::mutex %s;", si.Mu),
		fmt.Sprintf("std::vector<%s> %s;", si.Entry, si.Conns),
		fmt.Sprintf("unsigned long long %s = 1;", si.Next),
	}
}

func (b *builder) connect(op *resolve.Operation) (cFunc, error) {
	si, err := b.signalFor(op)
	if err != nil {
		return cFunc{}, err
	}
	self, _ := b.recv(op)
	return cFunc{
		Name: op.Symbol,
		Ret:  "unsigned long long",
		Params: []cParam{self,
			{Type: "void*", Name: "receiver"},
			{Type: si.FnType, Name: "fn"}},
		Body: []string{
			fmt.Sprintf("std::lock_guard<std::mutex> lock(%s);", si.Mu),
			fmt.Sprintf("unsigned long long id = %s++;", si.Next),
			fmt.Sprintf("%s.push_back({id, self, receiver, fn});", si.Conns),
			"return id;",
		},
	}, nil
}

func (b *builder) disconnect(op *resolve.Operation) (cFunc, error) {
	si, err := b.signalFor(op)
	if err != nil {
		return cFunc{}, err
	}
	self, _ := b.recv(op)
	return cFunc{
		Name:   op.Symbol,
		Ret:    "bool",
		Params: []cParam{self, {Type: "unsigned long long", Name: "id"}},
		Body: []string{
			fmt.Sprintf("std::lock_guard<std::mutex> lock(%s);", si.Mu),
			fmt.Sprintf("for (auto it = %s.begin(); it != %s.end(); ++it) {", si.Conns, si.Conns),
			"    if (it->id == id && it->source == self) {",
			fmt.Sprintf("        %s.erase(it);", si.Conns),
			"        return true;",
			"    }",
			"}",
			"return false;",
		},
	}, nil
}

// raise invokes a snapshot of the registrations matching the source, so
// callbacks may connect or disconnect without deadlocking the table.
func (b *builder) raise(op *resolve.Operation) (cFunc, error) {
	si, err := b.signalFor(op)
	if err != nil {
		return cFunc{}, err
	}
	self, _ := b.recv(op)
	params := append([]cParam{self}, si.Params...)
	callArgs := make([]string, 0, 2+len(si.Params))
	callArgs = append(callArgs, "e.receiver", "self")
	for _, p := range si.Params {
		callArgs = append(callArgs, p.Name)
	}
	return cFunc{
		Name:   op.Symbol,
		Ret:    "void",
		Params: params,
		Body: []string{
			fmt.Sprintf("std::vector<%s> snapshot;", si.Entry),
			"{",
			fmt.Sprintf("    std::lock_guard<std::mutex> lock(%s);", si.Mu),
			fmt.Sprintf("    for (const auto& e : %s) {", si.Conns),
			"        if (e.source == self) {",
			"            snapshot.push_back(e);",
			"        }",
			"    }",
			"}",
			"for (const auto& e : snapshot) {",
			fmt.Sprintf("    e.fn(%s);", strings.Join(callArgs, ", ")),
			"}",
		},
	}, nil
}
