// Package cmd declares the CLI command surface. Commands receive their
// logger and the raw toolchain transcript through Kong's binding, so the
// structs stay testable without a real terminal.
package cmd

import (
	"fmt"

	"github.com/binderylabs/bindery/internal/generator/common"
)

// LogOpts are the logging flags shared by every command.
type LogOpts struct {
	Level   string `help:"Log level: trace, debug, info, warn, error" default:"info" env:"BINDERY_LOG_LEVEL"`
	File    string `help:"Also write the log to this file" env:"BINDERY_LOG_FILE"`
	RawFile string `help:"Write the raw probe toolchain transcript to this file" env:"BINDERY_LOG_RAW_FILE"`
}

// CLI is the root command tree.
type CLI struct {
	Config string  `help:"Load configuration from this file" env:"BINDERY_CONFIG"`
	Log    LogOpts `embed:"" prefix:"log."`

	Generate  Generate      `cmd:"" help:"Generate the C shim and language wrapper for an API model"`
	Probe     Probe         `cmd:"" help:"Measure type layouts and write the fact table"`
	ConfigCmd ConfigCommand `cmd:"" name:"config" help:"Configuration file helpers"`
	Version   Version       `cmd:"" help:"Print the version"`
}

// Version prints the build version.
type Version struct{}

func (v *Version) Run() error {
	version, err := common.GetVersion()
	if err != nil {
		return err
	}
	fmt.Println(version)
	return nil
}
