package probe

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/binderylabs/bindery/internal/log"
)

// Toolchain identifies the C++ compiler probes are built with.
type Toolchain struct {
	// Compiler is the binary name or path, e.g. "g++" or "clang++".
	Compiler string
	// Flags carry the language standard and include paths the library
	// headers need, e.g. "-std=c++17", "-I/usr/include/qt".
	Flags []string
}

// ID renders the toolchain identity for cache keys and the fact table
// header.
func (tc Toolchain) ID() string {
	return strings.Join(append([]string{tc.Compiler}, tc.Flags...), " ")
}

// Runner compiles and executes probe programs. Production runs shell out;
// tests substitute a scripted runner.
type Runner interface {
	// Compile builds srcPath into binPath and returns the compiler's
	// combined output.
	Compile(ctx context.Context, tc Toolchain, srcPath, binPath string) ([]byte, error)
	// Execute runs binPath and returns its stdout.
	Execute(ctx context.Context, binPath string) ([]byte, error)
}

// ExecRunner invokes the real toolchain. Raw, when set, receives a
// transcript of every invocation and its unedited output.
type ExecRunner struct {
	Raw log.RawLogger
}

func (r ExecRunner) Compile(ctx context.Context, tc Toolchain, srcPath, binPath string) ([]byte, error) {
	args := append([]string{tc.Compiler}, tc.Flags...)
	args = append(args, "-o", binPath, srcPath)
	r.transcript().Command(args)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	r.transcript().Output(out)
	return out, err
}

func (r ExecRunner) Execute(ctx context.Context, binPath string) ([]byte, error) {
	r.transcript().Command([]string{binPath})
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	r.transcript().Output(stdout.Bytes())
	r.transcript().Output(stderr.Bytes())
	return stdout.Bytes(), err
}

func (r ExecRunner) transcript() log.RawLogger {
	if r.Raw != nil {
		return r.Raw
	}
	return log.NewRaw(nil)
}
