// Package gowrap emits the Go surface for one resolved plan: a pure-Go
// bindings file holding the wrapper types and methods, a cgo bridge file
// owning every C crossing, and, when the plan carries signals, a file of
// exported callback trampolines. All text derives from the plan and the
// platform profile, so two runs over the same inputs emit identical
// bytes.
package gowrap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/tools/imports"

	"github.com/binderylabs/bindery/internal/generator/common"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/platform"
	"github.com/binderylabs/bindery/internal/resolve"
)

// Config carries everything the emitter reads.
type Config struct {
	Plan     *resolve.Plan
	Index    *model.Index
	Platform *platform.Profile
	Version  string
}

// Generate writes the wrapper package files under outputDir: the
// bindings file named after the library, the bridge file and, for
// signal-bearing plans, the exports file.
func Generate(logger *slog.Logger, outputDir string, cfg Config) error {
	lib := cfg.Plan.Library
	logger.Debug("Generating Go wrapper", "library", lib)

	arts := common.ComputeArtifacts(cfg.Plan)
	m := newGoMapper(cfg.Plan, cfg.Index, cfg.Platform, arts)
	wp := buildWrapPlan(cfg.Plan, arts)
	n := newNames(cfg.Plan, wp)

	banner := fmt.Sprintf("Code generated by bindery %s for library %q, platform %s. DO NOT EDIT.",
		cfg.Version, lib, cfg.Platform.Name)

	bindings, err := emitBindings(banner, cfg.Plan, m, wp, n)
	if err != nil {
		return fmt.Errorf("emit wrapper: %w", err)
	}
	bridge, exports, err := emitBridge(banner, cfg.Plan, m, wp, n)
	if err != nil {
		return fmt.Errorf("emit wrapper: %w", err)
	}

	written := []string{}
	write := func(name string, src []byte, tidy bool) error {
		path := filepath.Join(outputDir, name)
		if tidy {
			// The templates over-import so conditional sections can come
			// and go; normalization settles the final import block.
			src, err = imports.Process(path, src, nil)
			if err != nil {
				return fmt.Errorf("format %s: %w", name, err)
			}
		}
		if err := os.WriteFile(path, src, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	if err := write(lib+".go", bindings, false); err != nil {
		return err
	}
	if err := write(lib+"_bridge.go", bridge, true); err != nil {
		return err
	}
	if exports != nil {
		if err := write(lib+"_exports.go", exports, true); err != nil {
			return err
		}
	}

	logger.Info("Generated Go wrapper", "files", written)
	return nil
}
