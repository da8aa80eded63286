// Package cshim emits the flat C boundary for one resolved plan: a
// header declaring opaque types, storage typedefs, enum constants and
// every entry point, and a C++ source defining the forwarding bodies.
// All text derives from the plan, the fact table and the platform
// profile, so two runs over the same inputs emit identical bytes.
package cshim

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/binderylabs/bindery/internal/generator/common"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/platform"
	"github.com/binderylabs/bindery/internal/probe"
	"github.com/binderylabs/bindery/internal/resolve"
)

// Config carries everything the emitter reads. Facts must cover every
// movable class; the pipeline excludes classes whose probe failed before
// resolving the plan.
type Config struct {
	Plan     *resolve.Plan
	Index    *model.Index
	Platform *platform.Profile
	Facts    map[string]probe.Fact
	Version  string
}

const headerTmpl = `#ifndef {{.Guard}}
#define {{.Guard}}

/* {{.Banner}} */

#include <stdbool.h>
#include <stddef.h>

#if defined(_WIN32)
#define {{.Export}} __declspec(dllexport)
#else
#define {{.Export}} __attribute__((visibility("default")))
#endif

#if defined(__cplusplus)
#define {{.Alignas}}(n) alignas(n)
#else
#define {{.Alignas}}(n) _Alignas(n)
#endif

#ifdef __cplusplus
extern "C" {
#endif

/* ========================================================================
 * Opaque class types
 * ======================================================================== */
{{range .Opaques -}}
typedef struct {{.CType}} {{.CType}}; /* {{.CppName}} */
{{end -}}
{{if .Storages}}
/* By-value storage; byte sizes pinned by the layout fact table. */
{{range .Storages -}}
typedef struct { {{$.Alignas}}({{.Align}}) unsigned char data[{{.Size}}]; } {{.Name}};
{{end -}}
{{end -}}
{{if .Enums}}
/* ========================================================================
 * Enums
 * ======================================================================== */
{{range .Enums -}}
typedef int {{.CType}}; /* {{.CppName}} */
{{range .Members -}}
#define {{.Macro}} {{.Value}}
{{end -}}
{{end -}}
{{end -}}
{{range .Classes}}
/* ========================================================================
 * {{.CppName}}
 * ======================================================================== */
{{range .Typedefs -}}
{{.}}
{{end -}}
{{range .Decls -}}
{{$.Export}} {{.}}
{{end -}}
{{end -}}
{{if .Free}}
/* ========================================================================
 * Free functions
 * ======================================================================== */
{{range .Free -}}
{{$.Export}} {{.}}
{{end -}}
{{end}}
#ifdef __cplusplus
} /* extern "C" */
#endif

#endif /* {{.Guard}} */
`

const sourceTmpl = `/* {{.Banner}} */

#include "{{.HeaderFile}}"

{{range .Includes -}}
#include "{{.}}"
{{end -}}
#include <cstddef>
#include <memory>
#include <new>
{{- if .HasSignals}}
#include <mutex>
#include <vector>
{{- end}}
{{if .Aliases}}
namespace {
{{range .Aliases -}}
{{.}}
{{end -}}
} /* namespace */
{{end -}}
{{if .Asserts}}
/* Layout guards: a failure here means the fact table is stale. */
{{range .Asserts -}}
{{.}}
{{end -}}
{{end -}}
{{if .Statics}}
namespace {

{{range .Statics -}}
{{.}}
{{end -}}
} /* namespace */
{{end}}
extern "C" {

{{range .Funcs -}}
{{.Head}} {
{{range .Body}}    {{.}}
{{end -}}
}

{{end -}}
} /* extern "C" */
`

var (
	headerTemplate = template.Must(template.New("shim.h").Parse(headerTmpl))
	sourceTemplate = template.Must(template.New("shim.cpp").Parse(sourceTmpl))
)

type opaqueDecl struct {
	CType   string
	CppName string
}

type storageDecl struct {
	Name  string
	Size  int
	Align int
}

type enumMember struct {
	Macro string
	Value int64
}

type enumDecl struct {
	CType   string
	CppName string
	Members []enumMember
}

type classSection struct {
	CppName  string
	Typedefs []string
	Decls    []string
}

type funcDef struct {
	Head string
	Body []string
}

type headerData struct {
	Guard    string
	Banner   string
	Export   string
	Alignas  string
	Opaques  []opaqueDecl
	Storages []storageDecl
	Enums    []enumDecl
	Classes  []classSection
	Free     []string
}

type sourceData struct {
	Banner     string
	HeaderFile string
	Includes   []string
	HasSignals bool
	Aliases    []string
	Asserts    []string
	Statics    []string
	Funcs      []funcDef
}

// orphanSignal reports a signal entry point whose connect symbol did not
// survive allocation; the remaining entry points are skipped with it.
func orphanSignal(arts *common.Artifacts, op *resolve.Operation) bool {
	switch op.Kind {
	case resolve.OpConnect, resolve.OpDisconnect, resolve.OpRaise:
		_, ok := arts.Signal[op.Signal]
		return !ok
	}
	return false
}

// Generate writes <library>_shim.h and <library>_shim.cpp under
// outputDir.
func Generate(logger *slog.Logger, outputDir string, cfg Config) error {
	lib := cfg.Plan.Library
	logger.Debug("Generating C shim", "library", lib)

	arts := common.ComputeArtifacts(cfg.Plan)
	m := newMapper(cfg.Plan, cfg.Index, cfg.Platform, arts)
	b := newBuilder(m, newNames(cfg.Plan, arts))

	upper := strings.ToUpper(lib)
	banner := fmt.Sprintf("Generated by bindery %s for library %q, platform %s. Do not edit.",
		cfg.Version, lib, cfg.Platform.Name)
	hd := headerData{
		Guard:   "BINDERY_" + upper + "_SHIM_H",
		Banner:  banner,
		Export:  upper + "_EXPORT",
		Alignas: upper + "_ALIGNAS",
	}
	sd := sourceData{
		Banner:     banner,
		HeaderFile: lib + "_shim.h",
		Includes:   cfg.Index.Model.Headers,
	}

	for _, t := range cfg.Plan.Targets {
		hd.Opaques = append(hd.Opaques, opaqueDecl{CType: m.ctype(t), CppName: t.CppName})
		if !t.Class.Movable {
			continue
		}
		fact, ok := cfg.Facts[t.CppName]
		if !ok {
			return fmt.Errorf("emit shim: no layout fact for movable class %s", t.CppName)
		}
		hd.Storages = append(hd.Storages, storageDecl{Name: m.storageType(t), Size: fact.Size, Align: fact.Align})
	}

	for _, ei := range cfg.Plan.Enums {
		hd.Enums = append(hd.Enums, buildEnum(arts, ei))
	}

	var funcs []cFunc
	for _, t := range cfg.Plan.Targets {
		sec := classSection{CppName: t.CppName}
		before := len(b.order)
		for _, op := range t.Ops {
			if orphanSignal(arts, op) {
				continue
			}
			f, err := b.buildOp(op)
			if err != nil {
				return fmt.Errorf("emit shim: %w", err)
			}
			sec.Decls = append(sec.Decls, f.Decl())
			funcs = append(funcs, f)
		}
		for _, si := range b.order[before:] {
			sec.Typedefs = append(sec.Typedefs, si.Typedef)
		}
		hd.Classes = append(hd.Classes, sec)
	}
	for _, op := range cfg.Plan.Free {
		f, err := b.buildOp(op)
		if err != nil {
			return fmt.Errorf("emit shim: %w", err)
		}
		hd.Free = append(hd.Free, f.Decl())
		funcs = append(funcs, f)
	}

	sd.Aliases, sd.Asserts = buildAsserts(m, b, cfg.Plan, cfg.Facts)
	sd.HasSignals = len(b.order) > 0
	for i, si := range b.order {
		if i > 0 {
			sd.Statics = append(sd.Statics, "")
		}
		sd.Statics = append(sd.Statics, si.statics()...)
	}
	for _, f := range funcs {
		sd.Funcs = append(sd.Funcs, funcDef{Head: f.Def(), Body: f.Body})
	}

	var buf bytes.Buffer
	if err := headerTemplate.Execute(&buf, hd); err != nil {
		return fmt.Errorf("render shim header: %w", err)
	}
	hPath := filepath.Join(outputDir, lib+"_shim.h")
	if err := os.WriteFile(hPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write shim header: %w", err)
	}

	buf.Reset()
	if err := sourceTemplate.Execute(&buf, sd); err != nil {
		return fmt.Errorf("render shim source: %w", err)
	}
	cppPath := filepath.Join(outputDir, lib+"_shim.cpp")
	if err := os.WriteFile(cppPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write shim source: %w", err)
	}

	logger.Info("Generated C shim", "header", hPath, "source", cppPath)
	return nil
}

// buildEnum renders one enum's typedef and member macros, bumping a
// macro when two member names flatten to the same upper-snake word.
func buildEnum(arts *common.Artifacts, ei resolve.EnumInfo) enumDecl {
	e := ei.Enum
	d := enumDecl{CType: arts.Enum[e], CppName: e.QualifiedName()}
	prefix := strings.ToUpper(arts.Enum[e])
	vals := e.ResolvedValues()
	used := make(map[string]bool, len(e.Members))
	for i, mem := range e.Members {
		base := prefix + "_" + strings.ToUpper(common.ToSnakeCase(mem.Name))
		mac := base
		for n := 2; used[mac]; n++ {
			mac = base + "_" + strconv.Itoa(n)
		}
		used[mac] = true
		d.Members = append(d.Members, enumMember{Macro: mac, Value: vals[i]})
	}
	return d
}

// buildAsserts pins every probed layout against the fact table. offsetof
// is a macro, so template instances assert offsets through a using-alias
// to keep argument-list commas out of its invocation.
func buildAsserts(m *mapper, b *builder, plan *resolve.Plan, facts map[string]probe.Fact) (aliases, asserts []string) {
	for _, t := range plan.Targets {
		fact, ok := facts[t.CppName]
		if !ok {
			continue
		}
		typ := m.cppName(t)
		msg := fmt.Sprintf("%s layout differs from the fact table; re-probe", t.CppName)
		asserts = append(asserts,
			fmt.Sprintf("static_assert(sizeof(%s) == %d, %q);", typ, fact.Size, msg),
			fmt.Sprintf("static_assert(alignof(%s) == %d, %q);", typ, fact.Align, msg))
		if len(fact.Offsets) == 0 {
			continue
		}
		offTyp := typ
		if t.Instance != nil {
			alias := b.names.alloc(m.ctype(t) + "_cxx")
			aliases = append(aliases, fmt.Sprintf("using %s = %s;", alias, typ))
			offTyp = alias
		}
		for _, f := range t.Class.Fields {
			off, ok := fact.Offsets[f.Name]
			if !ok {
				continue
			}
			asserts = append(asserts,
				fmt.Sprintf("static_assert(offsetof(%s, %s) == %d, %q);", offTyp, f.Name, off, msg))
		}
	}
	return aliases, asserts
}
