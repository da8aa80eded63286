// Package generator drives the pipeline for one generation run: parse
// and validate the model, discover template instantiations, obtain
// layout facts, resolve flat symbols, then emit the C shim and the
// requested wrapper language into one output directory.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/binderylabs/bindery/internal/diag"
	"github.com/binderylabs/bindery/internal/generator/cshim"
	"github.com/binderylabs/bindery/internal/generator/gowrap"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/platform"
	"github.com/binderylabs/bindery/internal/probe"
	"github.com/binderylabs/bindery/internal/registry"
	"github.com/binderylabs/bindery/internal/resolve"
)

// EmitConfig is what a wrapper-language emitter consumes: the resolved
// plan and the context it was produced under.
type EmitConfig struct {
	Plan     *resolve.Plan
	Index    *model.Index
	Platform *platform.Profile
	Version  string
}

// LanguageEmitter emits one wrapper language into outputDir.
type LanguageEmitter func(logger *slog.Logger, outputDir string, cfg EmitConfig) error

var emitters = map[string]LanguageEmitter{
	"go": func(logger *slog.Logger, outputDir string, cfg EmitConfig) error {
		return gowrap.Generate(logger, outputDir, gowrap.Config{
			Plan:     cfg.Plan,
			Index:    cfg.Index,
			Platform: cfg.Platform,
			Version:  cfg.Version,
		})
	},
}

// Languages returns the supported wrapper languages, sorted.
func Languages() []string {
	out := make([]string, 0, len(emitters))
	for k := range emitters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Generator runs the pipeline into one output directory.
type Generator struct {
	outputDir string
	logger    *slog.Logger
}

func New(outputDir string, logger *slog.Logger) *Generator {
	return &Generator{
		outputDir: outputDir,
		logger:    logger,
	}
}

// Request carries one run's inputs. Exactly one source of layout facts
// applies: a preloaded table, a prober, or neither (SkipProbe), in which
// case classes that need facts are excluded with a warning.
type Request struct {
	// ModelSource is the raw model YAML; it feeds both the parser and
	// the fact-cache key.
	ModelSource []byte
	Platform    *platform.Profile
	Lang        string
	Version     string

	// Facts, when non-nil, replaces probing entirely.
	Facts *probe.Table
	// SkipProbe generates without running the toolchain.
	SkipProbe bool
	// Prober runs layout probes when no table was supplied.
	Prober *probe.Prober
	// Cache, when its Dir is set, memoizes probe results across runs.
	Cache probe.Cache
}

// Result is what a successful (or recoverably degraded) run produced.
type Result struct {
	Plan  *resolve.Plan
	Table *probe.Table
	Diags *diag.List
}

// Run executes the full pipeline. The returned Result carries the
// diagnostic list even when err is non-nil, so callers can report
// fatal diagnostics alongside the error.
func (g *Generator) Run(ctx context.Context, req Request) (*Result, error) {
	emit, ok := emitters[req.Lang]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q (supported: %v)", req.Lang, Languages())
	}

	diags := &diag.List{}
	res := &Result{Diags: diags}

	ix, reg, err := g.front(req, diags)
	if err != nil {
		return res, err
	}

	table, err := g.facts(ctx, req, ix, reg, diags)
	if err != nil {
		return res, err
	}
	res.Table = table

	skip := excludeUnprobed(ix, reg, req.Platform, table, req.Prober != nil, diags)
	plan := resolve.Resolve(resolve.Config{
		Index:     ix,
		Platform:  req.Platform,
		Instances: reg.Instances(),
		Skip:      skip,
	}, diags)
	res.Plan = plan
	if diags.HasFatal() {
		return res, fmt.Errorf("resolve: %d fatal diagnostic(s)", len(diags.Fatals()))
	}

	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return res, fmt.Errorf("create output directory: %w", err)
	}
	if err := cshim.Generate(g.logger, g.outputDir, cshim.Config{
		Plan:     plan,
		Index:    ix,
		Platform: req.Platform,
		Facts:    table.Facts,
		Version:  req.Version,
	}); err != nil {
		return res, err
	}
	if err := emit(g.logger, g.outputDir, EmitConfig{
		Plan:     plan,
		Index:    ix,
		Platform: req.Platform,
		Version:  req.Version,
	}); err != nil {
		return res, err
	}

	g.logger.Info("Generation complete",
		"library", plan.Library, "language", req.Lang, "output", g.outputDir,
		"targets", len(plan.Targets), "warnings", len(diags.Warnings()))
	return res, nil
}

// Probe runs the front half only and returns the measured fact table,
// for runs that want the artifact without emitting code.
func (g *Generator) Probe(ctx context.Context, req Request) (*Result, error) {
	diags := &diag.List{}
	res := &Result{Diags: diags}

	ix, reg, err := g.front(req, diags)
	if err != nil {
		return res, err
	}
	table, err := g.facts(ctx, req, ix, reg, diags)
	if err != nil {
		return res, err
	}
	res.Table = table
	return res, nil
}

// front parses, validates and indexes the model, then discovers
// template instantiations.
func (g *Generator) front(req Request, diags *diag.List) (*model.Index, *registry.Registry, error) {
	m, err := model.Parse(req.ModelSource)
	if err != nil {
		diags.Addf(diag.ModelError, "", "%v", err)
		return nil, nil, fmt.Errorf("parse model: %w", err)
	}
	g.logger.Debug("Loaded model", "library", m.Library, "headers", len(m.Headers))

	ix, vdiags := model.Validate(m, req.Platform.HasAlias)
	diags.Merge(vdiags)
	if diags.HasFatal() {
		return nil, nil, fmt.Errorf("model validation: %d fatal diagnostic(s)", len(diags.Fatals()))
	}

	reg := registry.New(req.Platform)
	registry.Discover(ix, reg, diags)
	if diags.HasFatal() {
		return nil, nil, fmt.Errorf("template discovery: %d fatal diagnostic(s)", len(diags.Fatals()))
	}
	g.logger.Debug("Discovered template instances", "count", reg.Len())
	return ix, reg, nil
}

// facts returns the layout-fact table for this run: the supplied one, a
// cache hit, a fresh probe, or an empty table when probing is skipped.
func (g *Generator) facts(ctx context.Context, req Request, ix *model.Index, reg *registry.Registry, diags *diag.List) (*probe.Table, error) {
	if req.Facts != nil {
		g.logger.Debug("Using supplied fact table", "facts", len(req.Facts.Facts))
		return req.Facts, nil
	}
	if req.SkipProbe || req.Prober == nil {
		g.logger.Debug("Probing skipped")
		return probe.NewTable(req.Platform.Name, "", ""), nil
	}

	key := probe.CacheKey(req.ModelSource, req.Platform, req.Prober.Toolchain, req.Version)
	if req.Cache.Dir != "" {
		cached, err := req.Cache.Load(key)
		if err != nil {
			return nil, fmt.Errorf("fact cache: %w", err)
		}
		if cached != nil {
			g.logger.Debug("Fact cache hit", "facts", len(cached.Facts))
			return cached, nil
		}
	}

	reqs := probe.Requests(ix, reg.Instances())
	g.logger.Debug("Probing layouts", "types", len(reqs))
	facts, err := req.Prober.Run(ctx, ix.Model.Headers, reqs, diags)
	if err != nil {
		return nil, err
	}
	table := probe.NewTable(req.Platform.Name, req.Prober.Toolchain.ID(), key)
	table.Facts = facts
	if req.Cache.Dir != "" {
		if err := req.Cache.Store(table); err != nil {
			return nil, fmt.Errorf("fact cache: %w", err)
		}
	}
	return table, nil
}

// excludeUnprobed marks the classes the resolver must skip: those whose
// layout fact is absent though generation needs it, then transitively
// every class whose surface references an excluded one. When the table
// came from a probe run, the prober already reported the direct misses;
// reusing a partial table reports them here instead.
func excludeUnprobed(ix *model.Index, reg *registry.Registry, prof *platform.Profile, table *probe.Table, probed bool, diags *diag.List) map[*model.Class]bool {
	type candidate struct {
		c    *model.Class
		name string
		from []string
	}
	var cands []candidate
	for _, c := range ix.ClassList {
		if c.IsGeneric() {
			continue
		}
		cands = append(cands, candidate{c: c, name: c.QualifiedName(), from: c.Path()})
	}
	for _, in := range reg.Instances() {
		cands = append(cands, candidate{c: in.Concrete, name: in.CppName(), from: in.Generic.Path()})
	}

	byKey := make(map[string]*model.Class, reg.Len())
	for _, in := range reg.Instances() {
		byKey[in.CppName()] = in.Concrete
	}

	skip := make(map[*model.Class]bool)
	for _, cand := range cands {
		if _, ok := table.Lookup(cand.name); ok {
			continue
		}
		// Only movable classes strictly need a fact; a probe run that
		// failed to measure any class already excluded it at the source.
		if !probed && !cand.c.Movable {
			continue
		}
		skip[cand.c] = true
		if !probed {
			diags.Addf(diag.ProbeFactMissing, cand.name, "fact table has no layout fact")
		}
	}
	if len(skip) == 0 {
		return skip
	}

	refersSkipped := func(from []string, t model.TypeRef) bool {
		for cur := &t; cur != nil; cur = cur.Elem {
			switch cur.Kind {
			case model.KindNamed:
				if c := ix.LookupClass(from, cur.Name); c != nil && skip[c] {
					return true
				}
			case model.KindTemplate:
				if key := registry.InstanceKey(ix, prof, from, *cur); key != "" && skip[byKey[key]] {
					return true
				}
			}
		}
		return false
	}
	depends := func(cand candidate) bool {
		for _, b := range cand.c.Bases {
			if c := ix.LookupClass(cand.from, b.Name); c != nil && skip[c] {
				return true
			}
		}
		for _, f := range cand.c.Fields {
			if refersSkipped(cand.from, f.Type) {
				return true
			}
		}
		for _, ct := range cand.c.Constructors {
			for _, p := range ct.Params {
				if refersSkipped(cand.from, p.Type) {
					return true
				}
			}
		}
		for _, mth := range cand.c.Methods {
			if refersSkipped(cand.from, mth.Returns) {
				return true
			}
			for _, p := range mth.Params {
				if refersSkipped(cand.from, p.Type) {
					return true
				}
			}
		}
		for _, s := range cand.c.Signals {
			for _, p := range s.Params {
				if refersSkipped(cand.from, p.Type) {
					return true
				}
			}
		}
		return false
	}

	for changed := true; changed; {
		changed = false
		for _, cand := range cands {
			if skip[cand.c] || !depends(cand) {
				continue
			}
			skip[cand.c] = true
			changed = true
			diags.Addf(diag.ProbeFactMissing, cand.name, "excluded: depends on an unprobed class")
		}
	}
	return skip
}
