package probe_test

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binderylabs/bindery/internal/diag"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/platform"
	"github.com/binderylabs/bindery/internal/probe"
	"github.com/binderylabs/bindery/internal/registry"
)

var (
	aliasRe  = regexp.MustCompile(`using probe_t(\d+) = (.+);`)
	offsetRe = regexp.MustCompile(`offsetof\(probe_t(\d+), ([A-Za-z0-9_]+)\)`)
)

// fakeRunner behaves like a small, honest compiler: it fails the sources a
// compiler would fail, and its "binaries" print facts for exactly the
// types named in their source.
type fakeRunner struct {
	// poisoned types make any source mentioning them fail to compile.
	poisoned map[string]bool
	// muted types compile but print nothing, as if the header hid them.
	muted    map[string]bool
	compiles int
}

func (r *fakeRunner) Compile(_ context.Context, _ probe.Toolchain, srcPath, binPath string) ([]byte, error) {
	r.compiles++
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, err
	}
	src := string(data)
	if strings.Contains(src, "not a program") {
		return []byte("error: expected ';'"), errors.New("exit status 1")
	}
	if strings.Contains(src, "2 + 2 == 5") {
		return []byte("error: static assertion failed"), errors.New("exit status 1")
	}
	for name := range r.poisoned {
		if strings.Contains(src, "= "+name+";") {
			return []byte("error: incomplete type " + name), errors.New("exit status 1")
		}
	}
	if err := os.WriteFile(binPath+".src", data, 0o644); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *fakeRunner) Execute(_ context.Context, binPath string) ([]byte, error) {
	data, err := os.ReadFile(binPath + ".src")
	if err != nil {
		return nil, err
	}
	src := string(data)
	if strings.Contains(src, "return 3;") {
		return nil, errors.New("exit status 3")
	}

	names := make(map[string]string)
	for _, m := range aliasRe.FindAllStringSubmatch(src, -1) {
		names[m[1]] = m[2]
	}
	fieldCount := make(map[string]int)
	var out strings.Builder
	for _, m := range aliasRe.FindAllStringSubmatch(src, -1) {
		if r.muted[m[2]] {
			continue
		}
		out.WriteString("size\t" + m[2] + "\t16\n")
		out.WriteString("align\t" + m[2] + "\t8\n")
	}
	for _, m := range offsetRe.FindAllStringSubmatch(src, -1) {
		name := names[m[1]]
		if r.muted[name] {
			continue
		}
		out.WriteString("offset\t" + name + "\t" + m[2] + "\t" + strconv.Itoa(4*fieldCount[name]) + "\n")
		fieldCount[name]++
	}
	return []byte(out.String()), nil
}

func newProber(t *testing.T, r probe.Runner) *probe.Prober {
	t.Helper()
	return &probe.Prober{
		Toolchain: probe.Toolchain{Compiler: "g++", Flags: []string{"-std=c++17"}},
		Runner:    r,
		WorkDir:   t.TempDir(),
	}
}

func TestProgramRendersFactLines(t *testing.T) {
	src, err := probe.Program([]string{"geom.h"}, []probe.Request{
		{Name: "geom::QRect", Fields: []string{"x", "y"}},
		{Name: "QHash<int, QString>"},
	})
	require.NoError(t, err)

	assert.Contains(t, src, `#include "geom.h"`)
	assert.Contains(t, src, "using probe_t0 = geom::QRect;")
	assert.Contains(t, src, "using probe_t1 = QHash<int, QString>;")
	assert.Contains(t, src, `std::printf("size\t%s\t%zu\n", "geom::QRect", sizeof(probe_t0));`)
	assert.Contains(t, src, `offsetof(probe_t0, x)`)
	assert.Contains(t, src, `offsetof(probe_t0, y)`)
	assert.NotContains(t, src, "offsetof(probe_t1", "no offsets were requested for the template instance")
}

func TestProberMeasuresBatch(t *testing.T) {
	r := &fakeRunner{}
	p := newProber(t, r)
	diags := &diag.List{}

	facts, err := p.Run(context.Background(), []string{"geom.h"}, []probe.Request{
		{Name: "QRect", Fields: []string{"x", "y"}},
		{Name: "util::Point"},
	}, diags)
	require.NoError(t, err)
	require.False(t, diags.HasFatal())

	assert.Equal(t, probe.Fact{Size: 16, Align: 8, Offsets: map[string]int{"x": 0, "y": 4}}, facts["QRect"])
	assert.Equal(t, probe.Fact{Size: 16, Align: 8}, facts["util::Point"])
}

func TestProbeCompileFailureBisectsToCulprits(t *testing.T) {
	r := &fakeRunner{poisoned: map[string]bool{"Bad1": true, "Bad2": true}}
	p := newProber(t, r)
	p.BatchSize = 8
	diags := &diag.List{}

	reqs := []probe.Request{
		{Name: "Good1"}, {Name: "Bad1"}, {Name: "Good2"},
		{Name: "Good3"}, {Name: "Bad2"}, {Name: "Good4"},
	}
	_, err := p.Run(context.Background(), []string{"lib.h"}, reqs, diags)
	require.Error(t, err)
	require.True(t, diags.HasFatal())

	fatal := diags.Fatals()[0]
	assert.Equal(t, diag.ProbeCompileError, fatal.Kind)
	assert.Contains(t, fatal.Error(), "Bad1")
	assert.Contains(t, fatal.Error(), "Bad2")
	assert.NotContains(t, fatal.Error(), "Good1", "bisection must exonerate compiling types")
}

func TestProbeFactMissingIsRecoverable(t *testing.T) {
	r := &fakeRunner{muted: map[string]bool{"Hidden": true}}
	p := newProber(t, r)
	diags := &diag.List{}

	facts, err := p.Run(context.Background(), []string{"lib.h"}, []probe.Request{
		{Name: "Visible"},
		{Name: "Hidden"},
	}, diags)
	require.NoError(t, err, "a missing fact must not abort the run")
	require.False(t, diags.HasFatal())

	assert.Contains(t, facts, "Visible")
	assert.NotContains(t, facts, "Hidden")
	warnings := diags.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, diag.ProbeFactMissing, warnings[0].Kind)
	assert.Equal(t, "Hidden", warnings[0].Entity)
}

// liarRunner accepts every source, including the ones that must fail.
type liarRunner struct{ fakeRunner }

func (r *liarRunner) Compile(ctx context.Context, tc probe.Toolchain, srcPath, binPath string) ([]byte, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(binPath+".src", data, 0o644); err != nil {
		return nil, err
	}
	return nil, nil
}

func TestSelfCheckRejectsLiarToolchain(t *testing.T) {
	p := newProber(t, &liarRunner{})
	diags := &diag.List{}

	_, err := p.Run(context.Background(), []string{"lib.h"}, []probe.Request{{Name: "T"}}, diags)
	require.Error(t, err)
	require.True(t, diags.HasFatal())
	assert.Contains(t, diags.Fatals()[0].Error(), "self-check")
}

func TestBrokenHeadersFailBeforeBisection(t *testing.T) {
	// A broken include makes even the empty baseline probe fail; no type
	// may be blamed for that.
	p := newProber(t, &headerBreaker{inner: &fakeRunner{}})
	diags := &diag.List{}

	_, err := p.Run(context.Background(), []string{"missing.h"}, []probe.Request{{Name: "T"}}, diags)
	require.Error(t, err)
	require.True(t, diags.HasFatal())
	assert.Contains(t, diags.Fatals()[0].Error(), "headers")
}

// headerBreaker passes the self-check sources through but fails anything
// that includes a header.
type headerBreaker struct{ inner *fakeRunner }

func (h *headerBreaker) Compile(ctx context.Context, tc probe.Toolchain, srcPath, binPath string) ([]byte, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(data), `#include "missing.h"`) {
		return []byte("fatal error: missing.h: No such file"), errors.New("exit status 1")
	}
	return h.inner.Compile(ctx, tc, srcPath, binPath)
}

func (h *headerBreaker) Execute(ctx context.Context, binPath string) ([]byte, error) {
	return h.inner.Execute(ctx, binPath)
}

func TestRequestsWalkOrderAndOffsetEligibility(t *testing.T) {
	src := `
library: geom
headers: [geom.h]
root:
  classes:
    - name: Vector
      template_params: [T]
      methods:
        - name: push
          params: [{name: v, type: const T &}]
    - name: Point
      movable: true
      fields:
        - {name: x, type: int}
        - {name: y, type: int}
        - {name: count, type: int, static: true}
        - {name: secret, type: int, visibility: private}
    - name: Shape
      methods:
        - {name: area, returns: double, virtual: true, const: true}
      fields:
        - {name: id, type: int}
    - name: Holder
      fields:
        - {name: items, type: 'Vector<int>'}
`
	m, err := model.Parse([]byte(src))
	require.NoError(t, err)
	ix, diags := model.Validate(m, nil)
	require.False(t, diags.HasFatal(), "%v", diags.All())

	prof, err := platform.Builtin(platform.DefaultName)
	require.NoError(t, err)
	reg := registry.New(prof)
	registry.Discover(ix, reg, diags)

	reqs := probe.Requests(ix, reg.Instances())
	require.Len(t, reqs, 4)

	assert.Equal(t, "Point", reqs[0].Name)
	assert.Equal(t, []string{"x", "y"}, reqs[0].Fields, "static and private fields have no offsets")
	assert.Equal(t, "Shape", reqs[1].Name)
	assert.Empty(t, reqs[1].Fields, "polymorphic types get no offsetof")
	assert.Equal(t, "Holder", reqs[2].Name)
	assert.Equal(t, "Vector<int>", reqs[3].Name)
}
