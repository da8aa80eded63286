package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/binderylabs/bindery/internal/generator"
	"github.com/binderylabs/bindery/internal/generator/common"
	"github.com/binderylabs/bindery/internal/log"
	"github.com/binderylabs/bindery/internal/platform"
	"github.com/binderylabs/bindery/internal/probe"
)

// PipelineOpts are the inputs shared by every command that runs the
// pipeline front: the model, the target platform and the probe toolchain.
type PipelineOpts struct {
	Model    string   `help:"Path to the API model YAML" required:"" type:"existingfile" env:"BINDERY_MODEL"`
	Platform string   `help:"Target platform: a built-in name or a TOML profile path" default:"linux-amd64" env:"BINDERY_PLATFORM"`
	Compiler string   `help:"C++ compiler used for layout probes" default:"g++" env:"BINDERY_COMPILER"`
	Flags    []string `help:"Extra compiler flags for probes (language standard, include paths)" env:"BINDERY_CXXFLAGS"`
	CacheDir string   `help:"Directory for the probe fact cache; empty disables caching" env:"BINDERY_CACHE_DIR"`
}

// profile resolves the platform argument: a path to a TOML file wins,
// otherwise the name must be a built-in.
func (p *PipelineOpts) profile() (*platform.Profile, error) {
	if filepath.Ext(p.Platform) == ".toml" {
		return platform.Load(p.Platform)
	}
	if _, err := os.Stat(p.Platform); err == nil {
		return platform.Load(p.Platform)
	}
	return platform.Builtin(p.Platform)
}

// request assembles the pipeline request common to generate and probe.
// The prober's scratch directory is the caller's to remove.
func (p *PipelineOpts) request(raw log.RawLogger, logger *slog.Logger, workDir string) (generator.Request, error) {
	version, err := common.GetVersion()
	if err != nil {
		return generator.Request{}, err
	}
	prof, err := p.profile()
	if err != nil {
		return generator.Request{}, err
	}
	src, err := os.ReadFile(p.Model)
	if err != nil {
		return generator.Request{}, fmt.Errorf("read model: %w", err)
	}
	return generator.Request{
		ModelSource: src,
		Platform:    prof,
		Version:     version,
		Prober: &probe.Prober{
			Toolchain: probe.Toolchain{Compiler: p.Compiler, Flags: p.Flags},
			Runner:    probe.ExecRunner{Raw: raw},
			WorkDir:   workDir,
			Logger:    logger,
		},
		Cache: probe.Cache{Dir: p.CacheDir},
	}, nil
}

// Generate runs the full pipeline: probe (or reuse) layout facts, resolve
// flat symbols and write the C shim plus the wrapper for one language.
type Generate struct {
	PipelineOpts `embed:""`

	Output    string `help:"Output directory for generated sources" default:"./bindings" env:"BINDERY_OUTPUT"`
	Lang      string `help:"Wrapper language to emit" default:"go" env:"BINDERY_LANG"`
	Facts     string `help:"Reuse a saved fact table instead of probing" type:"existingfile" env:"BINDERY_FACTS"`
	SkipProbe bool   `help:"Generate without a toolchain; classes that need layout facts are skipped" env:"BINDERY_SKIP_PROBE"`
}

// Run is called by Kong when the generate command is executed.
func (g *Generate) Run(logger *slog.Logger, raw log.RawLogger) error {
	workDir, err := os.MkdirTemp("", "bindery-probe-")
	if err != nil {
		return fmt.Errorf("probe scratch directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	req, err := g.request(raw, logger, workDir)
	if err != nil {
		return err
	}
	req.Lang = g.Lang
	req.SkipProbe = g.SkipProbe
	if g.Facts != "" {
		table, err := probe.LoadTable(g.Facts)
		if err != nil {
			return err
		}
		if table.Platform != req.Platform.Name {
			return fmt.Errorf("fact table %s was measured for platform %s, not %s",
				g.Facts, table.Platform, req.Platform.Name)
		}
		req.Facts = table
	}

	res, err := generator.New(g.Output, logger).Run(context.Background(), req)
	if res != nil {
		report(logger, res)
	}
	return err
}

// report surfaces a run's diagnostics through the logger, warnings first
// so fatal entries land last on stderr.
func report(logger *slog.Logger, res *generator.Result) {
	for _, d := range res.Diags.Warnings() {
		logger.Warn("Diagnostic", "kind", d.Kind, "entity", d.Entity, "detail", d.Detail)
	}
	for _, d := range res.Diags.Fatals() {
		logger.Error("Diagnostic", "kind", d.Kind, "entity", d.Entity, "detail", d.Detail)
	}
}
