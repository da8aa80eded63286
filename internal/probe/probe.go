// Package probe measures type layouts by compiling and running generated
// C++ programs against the real library headers.
//
// Header analysis alone cannot see padding, private members or
// platform-dependent widths; the compiler that will later build the shim
// is the only authority. Probes are batched to amortize toolchain startup,
// and a failing batch is bisected so the fatal report names the offending
// types instead of a sixty-type soup.
package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/binderylabs/bindery/internal/diag"
)

// DefaultBatchSize bounds how many types share one probe binary.
const DefaultBatchSize = 64

// Prober compiles and runs layout probes through an injected Runner.
type Prober struct {
	Toolchain Toolchain
	Runner    Runner
	// WorkDir receives generated sources and binaries; the caller owns
	// cleanup.
	WorkDir   string
	BatchSize int
	Logger    *slog.Logger

	seq int
}

func (p *Prober) batchSize() int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return DefaultBatchSize
}

func (p *Prober) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Run measures every requested type. Compile failures are fatal and
// reported through diags with the culprit types named; a type whose facts
// are absent from a successful probe run is excluded with a
// ProbeFactMissing diagnostic.
func (p *Prober) Run(ctx context.Context, headers []string, reqs []Request, diags *diag.List) (map[string]Fact, error) {
	if err := p.selfCheck(ctx); err != nil {
		diags.Addf(diag.ProbeCompileError, "", "toolchain self-check failed: %v", err)
		return nil, fmt.Errorf("toolchain self-check: %w", err)
	}
	// Baseline: the headers alone must compile, or bisection would blame
	// every type for a broken include.
	if _, out, err := p.build(ctx, headers, nil); err != nil {
		diags.Addf(diag.ProbeCompileError, "", "library headers do not compile: %v\n%s", err, out)
		return nil, fmt.Errorf("probe headers: %w", err)
	}

	facts := make(map[string]Fact, len(reqs))
	for start := 0; start < len(reqs); start += p.batchSize() {
		end := min(start+p.batchSize(), len(reqs))
		if err := p.probeBatch(ctx, headers, reqs[start:end], facts, diags); err != nil {
			return nil, err
		}
	}
	p.logger().Info("Probed layouts", "requested", len(reqs), "measured", len(facts))
	return facts, nil
}

func (p *Prober) probeBatch(ctx context.Context, headers []string, batch []Request, facts map[string]Fact, diags *diag.List) error {
	bin, _, err := p.build(ctx, headers, batch)
	if err != nil {
		culprits := p.bisect(ctx, headers, batch)
		names := strings.Join(culprits, ", ")
		diags.Addf(diag.ProbeCompileError, names, "layout probe does not compile for: %s", names)
		return fmt.Errorf("probe compile (%s): %w", names, err)
	}
	output, err := p.Runner.Execute(ctx, bin)
	if err != nil {
		diags.Addf(diag.ProbeCompileError, "", "layout probe failed to run: %v", err)
		return fmt.Errorf("probe run: %w", err)
	}
	parseFacts(output, batch, facts, diags)
	return nil
}

// build renders, writes and compiles one probe program, returning the
// binary path and the compiler output.
func (p *Prober) build(ctx context.Context, headers []string, reqs []Request) (string, []byte, error) {
	src, err := Program(headers, reqs)
	if err != nil {
		return "", nil, fmt.Errorf("render probe: %w", err)
	}
	p.seq++
	base := filepath.Join(p.WorkDir, "probe_"+strconv.Itoa(p.seq))
	srcPath := base + ".cpp"
	if err := os.WriteFile(srcPath, []byte(src), 0o644); err != nil {
		return "", nil, fmt.Errorf("write probe source: %w", err)
	}
	p.logger().Debug("Compiling layout probe", "source", srcPath, "types", len(reqs))
	out, err := p.Runner.Compile(ctx, p.Toolchain, srcPath, base)
	if err != nil {
		return "", out, err
	}
	return base, out, nil
}

// bisect halves a failing batch until the non-compiling types are
// isolated, at logarithmic compile cost per culprit.
func (p *Prober) bisect(ctx context.Context, headers []string, reqs []Request) []string {
	if len(reqs) == 1 {
		return []string{reqs[0].Name}
	}
	var out []string
	mid := len(reqs) / 2
	for _, half := range [][]Request{reqs[:mid], reqs[mid:]} {
		if len(half) == 0 {
			continue
		}
		if _, _, err := p.build(ctx, headers, half); err != nil {
			out = append(out, p.bisect(ctx, headers, half)...)
		}
	}
	return out
}

// parseFacts reads the probe's fact lines into the map. Requests with
// incomplete facts are excluded and reported; a half-measured type is
// worse than an absent one.
func parseFacts(output []byte, reqs []Request, facts map[string]Fact, diags *diag.List) {
	type partial struct {
		size, align int
		offsets     map[string]int
	}
	got := make(map[string]*partial)
	at := func(name string) *partial {
		pt := got[name]
		if pt == nil {
			pt = &partial{offsets: make(map[string]int)}
			got[name] = pt
		}
		return pt
	}
	for _, line := range strings.Split(string(output), "\n") {
		parts := strings.Split(line, "\t")
		switch {
		case len(parts) == 3 && parts[0] == "size":
			if v, err := strconv.Atoi(parts[2]); err == nil {
				at(parts[1]).size = v
			}
		case len(parts) == 3 && parts[0] == "align":
			if v, err := strconv.Atoi(parts[2]); err == nil {
				at(parts[1]).align = v
			}
		case len(parts) == 4 && parts[0] == "offset":
			if v, err := strconv.Atoi(parts[3]); err == nil {
				at(parts[1]).offsets[parts[2]] = v
			}
		}
		// Anything else is header chatter; the real lines are ours.
	}

	for _, r := range reqs {
		pt := got[r.Name]
		if pt == nil || pt.size <= 0 || pt.align <= 0 {
			diags.Addf(diag.ProbeFactMissing, r.Name, "probe produced no layout fact")
			continue
		}
		f := Fact{Size: pt.size, Align: pt.align}
		complete := true
		for _, name := range r.Fields {
			off, ok := pt.offsets[name]
			if !ok {
				diags.Addf(diag.ProbeFactMissing, r.Name, "probe produced no offset for field %s", name)
				complete = false
				break
			}
			if f.Offsets == nil {
				f.Offsets = make(map[string]int)
			}
			f.Offsets[name] = off
		}
		if complete {
			facts[r.Name] = f
		}
	}
}
