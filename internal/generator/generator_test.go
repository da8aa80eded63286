package generator_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binderylabs/bindery/internal/diag"
	"github.com/binderylabs/bindery/internal/generator"
	"github.com/binderylabs/bindery/internal/platform"
	"github.com/binderylabs/bindery/internal/probe"
)

var aliasRe = regexp.MustCompile(`using probe_t(\d+) = (.+);`)

var offsetRe = regexp.MustCompile(`offsetof\(probe_t(\d+), ([A-Za-z0-9_]+)\)`)

// fakeRunner compiles nothing and answers every probe with fixed facts,
// enough to drive the pipeline end to end without a toolchain.
type fakeRunner struct {
	compiles int
}

func (r *fakeRunner) Compile(_ context.Context, _ probe.Toolchain, srcPath, binPath string) ([]byte, error) {
	r.compiles++
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, err
	}
	src := string(data)
	if strings.Contains(src, "not a program") || strings.Contains(src, "2 + 2 == 5") {
		return []byte("error"), errors.New("exit status 1")
	}
	return nil, os.WriteFile(binPath+".src", data, 0o644)
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
	var out strings.Builder
	for _, m := range aliasRe.FindAllStringSubmatch(src, -1) {
		names[m[1]] = m[2]
		out.WriteString("size\t" + m[2] + "\t16\n")
		out.WriteString("align\t" + m[2] + "\t8\n")
	}
	fieldCount := make(map[string]int)
	for _, m := range offsetRe.FindAllStringSubmatch(src, -1) {
		name := names[m[1]]
		out.WriteString("offset\t" + name + "\t" + m[2] + "\t" + strconv.Itoa(4*fieldCount[name]) + "\n")
		fieldCount[name]++
	}
	return []byte(out.String()), nil
}

const rectSrc = `
library: geom
headers: [geom/rect.h]
root:
  classes:
    - name: QRect
      movable: true
      fields:
        - {name: x, type: int}
        - {name: y, type: int}
      constructors:
        - params:
            - {name: x, type: int}
            - {name: y, type: int}
            - {name: width, type: int}
            - {name: height, type: int}
      methods:
        - {name: height, returns: int, const: true}
`

func runRequest(t *testing.T, runner probe.Runner, cacheDir string) generator.Request {
	t.Helper()
	prof, err := platform.Builtin(platform.DefaultName)
	require.NoError(t, err)
	return generator.Request{
		ModelSource: []byte(rectSrc),
		Platform:    prof,
		Lang:        "go",
		Version:     "test",
		Prober: &probe.Prober{
			Toolchain: probe.Toolchain{Compiler: "g++", Flags: []string{"-std=c++17"}},
			Runner:    runner,
			WorkDir:   t.TempDir(),
		},
		Cache: probe.Cache{Dir: cacheDir},
	}
}

func TestRunEmitsShimAndWrapper(t *testing.T) {
	dir := t.TempDir()
	g := generator.New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := g.Run(context.Background(), runRequest(t, &fakeRunner{}, ""))
	require.NoError(t, err)
	require.False(t, res.Diags.HasFatal())

	header, err := os.ReadFile(filepath.Join(dir, "geom_shim.h"))
	require.NoError(t, err)
	assert.Contains(t, string(header), "geom_qrect_construct")

	source, err := os.ReadFile(filepath.Join(dir, "geom_shim.cpp"))
	require.NoError(t, err)
	assert.Contains(t, string(source), "static_assert(sizeof(::QRect) == 16,")

	bindings, err := os.ReadFile(filepath.Join(dir, "geom.go"))
	require.NoError(t, err)
	assert.Contains(t, string(bindings), "func NewQRect(")

	_, err = os.Stat(filepath.Join(dir, "geom_bridge.go"))
	require.NoError(t, err)

	require.NotNil(t, res.Table)
	assert.Equal(t, probe.Fact{Size: 16, Align: 8, Offsets: map[string]int{"x": 0, "y": 4}}, res.Table.Facts["QRect"])
}

func TestRunReusesTheFactCache(t *testing.T) {
	cacheDir := t.TempDir()
	first := &fakeRunner{}
	g := generator.New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := g.Run(context.Background(), runRequest(t, first, cacheDir))
	require.NoError(t, err)
	require.Positive(t, first.compiles)

	second := &fakeRunner{}
	g2 := generator.New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err = g2.Run(context.Background(), runRequest(t, second, cacheDir))
	require.NoError(t, err)
	assert.Zero(t, second.compiles, "a cache hit must not touch the toolchain")
}

func TestUnsupportedLanguageIsRejected(t *testing.T) {
	g := generator.New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := runRequest(t, &fakeRunner{}, "")
	req.Lang = "fortran"
	_, err := g.Run(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
	assert.Contains(t, err.Error(), "go")
}

func TestPartialFactTableExcludesDependents(t *testing.T) {
	src := `
library: geom
headers: [geom/rect.h]
root:
  classes:
    - name: QPoint
      movable: true
    - name: QRect
      movable: true
      methods:
        - name: contains
          returns: bool
          const: true
          params:
            - {name: p, type: QPoint}
    - name: Painter
      methods:
        - {name: flush, returns: void}
`
	prof, err := platform.Builtin(platform.DefaultName)
	require.NoError(t, err)

	// QPoint was never probed; QRect mentions it and falls with it.
	table := probe.NewTable(prof.Name, "", "")
	table.Facts["QRect"] = probe.Fact{Size: 16, Align: 4}

	dir := t.TempDir()
	g := generator.New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	res, err := g.Run(context.Background(), generator.Request{
		ModelSource: []byte(src),
		Platform:    prof,
		Lang:        "go",
		Version:     "test",
		Facts:       table,
	})
	require.NoError(t, err)
	require.False(t, res.Diags.HasFatal())

	require.Len(t, res.Plan.Targets, 1)
	assert.Equal(t, "Painter", res.Plan.Targets[0].CppName)

	entities := make([]string, 0, 2)
	for _, d := range res.Diags.Warnings() {
		require.Equal(t, diag.ProbeFactMissing, d.Kind)
		entities = append(entities, d.Entity)
	}
	assert.ElementsMatch(t, []string{"QPoint", "QRect"}, entities)
}

func TestProbeProducesTheTableOnly(t *testing.T) {
	g := generator.New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	res, err := g.Probe(context.Background(), runRequest(t, &fakeRunner{}, ""))
	require.NoError(t, err)
	require.NotNil(t, res.Table)
	assert.Contains(t, res.Table.Facts, "QRect")
	assert.Equal(t, platform.DefaultName, res.Table.Platform)
}
