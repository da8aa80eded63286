package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/binderylabs/bindery/internal/configpaths"
	"github.com/binderylabs/bindery/internal/generator"
	"github.com/binderylabs/bindery/internal/log"
)

// Probe measures type layouts only and writes the fact table, so a later
// generate run (possibly on a machine without the library headers) can
// reuse it via --facts.
type Probe struct {
	PipelineOpts `embed:""`

	FactsOut string `help:"Destination path for the fact table (TOML)" default:"./facts.toml" env:"BINDERY_FACTS_OUT"`
}

// Run is called by Kong when the probe command is executed.
func (p *Probe) Run(logger *slog.Logger, raw log.RawLogger) error {
	workDir, err := os.MkdirTemp("", "bindery-probe-")
	if err != nil {
		return fmt.Errorf("probe scratch directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	req, err := p.request(raw, logger, workDir)
	if err != nil {
		return err
	}
	res, err := generator.New(".", logger).Probe(context.Background(), req)
	if res != nil {
		report(logger, res)
	}
	if err != nil {
		return err
	}

	if err := configpaths.EnsureDir(p.FactsOut); err != nil {
		return err
	}
	if err := res.Table.Save(p.FactsOut); err != nil {
		return err
	}
	logger.Info("Wrote fact table", "path", p.FactsOut, "types", len(res.Table.Facts))
	return nil
}
