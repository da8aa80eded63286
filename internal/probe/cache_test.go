package probe_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binderylabs/bindery/internal/platform"
	"github.com/binderylabs/bindery/internal/probe"
)

func TestTableRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.toml")

	table := probe.NewTable("linux-amd64", "g++ -std=c++17", "deadbeef")
	table.Facts["QRect"] = probe.Fact{Size: 16, Align: 4, Offsets: map[string]int{"x": 0, "y": 4}}
	table.Facts["Vector<int>"] = probe.Fact{Size: 24, Align: 8}
	require.NoError(t, table.Save(path))

	loaded, err := probe.LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, table.Platform, loaded.Platform)
	assert.Equal(t, table.Toolchain, loaded.Toolchain)
	assert.Equal(t, table.Key, loaded.Key)
	assert.Equal(t, table.Facts, loaded.Facts)

	f, ok := loaded.Lookup("Vector<int>")
	require.True(t, ok, "template spellings must survive the round trip")
	assert.Equal(t, 24, f.Size)
	assert.Equal(t, []string{"QRect", "Vector<int>"}, loaded.Names())
}

func TestCacheKeySensitivity(t *testing.T) {
	modelSrc := []byte("library: geom\n")
	linux := &platform.Profile{Name: "linux-amd64", PointerWidth: 8, Aliases: map[string]string{"int32_t": "int"}}
	windows := &platform.Profile{Name: "windows-amd64", PointerWidth: 8, Aliases: map[string]string{"int32_t": "int"}}
	tc := probe.Toolchain{Compiler: "g++", Flags: []string{"-std=c++17"}}

	base := probe.CacheKey(modelSrc, linux, tc, "1.0.0")
	assert.Len(t, base, 64)
	assert.Equal(t, base, probe.CacheKey(modelSrc, linux, tc, "1.0.0"), "key must be stable")

	assert.NotEqual(t, base, probe.CacheKey([]byte("library: other\n"), linux, tc, "1.0.0"))
	assert.NotEqual(t, base, probe.CacheKey(modelSrc, windows, tc, "1.0.0"))
	assert.NotEqual(t, base, probe.CacheKey(modelSrc, linux, probe.Toolchain{Compiler: "clang++"}, "1.0.0"))
	assert.NotEqual(t, base, probe.CacheKey(modelSrc, linux, tc, "1.0.1"))

	aliased := &platform.Profile{Name: "linux-amd64", PointerWidth: 8, Aliases: map[string]string{"int32_t": "long"}}
	assert.NotEqual(t, base, probe.CacheKey(modelSrc, aliased, tc, "1.0.0"),
		"alias table changes must invalidate cached facts")
}

func TestCacheStoreAndLoad(t *testing.T) {
	c := probe.Cache{Dir: filepath.Join(t.TempDir(), "facts")}
	key := probe.CacheKey([]byte("m"), &platform.Profile{Name: "p", PointerWidth: 8}, probe.Toolchain{Compiler: "g++"}, "1")

	missing, err := c.Load(key)
	require.NoError(t, err)
	assert.Nil(t, missing, "an empty cache is a miss, not an error")

	table := probe.NewTable("p", "g++", key)
	table.Facts["T"] = probe.Fact{Size: 8, Align: 8}
	require.NoError(t, c.Store(table))

	loaded, err := c.Load(key)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, table.Facts, loaded.Facts)

	other := probe.CacheKey([]byte("m2"), &platform.Profile{Name: "p", PointerWidth: 8}, probe.Toolchain{Compiler: "g++"}, "1")
	miss, err := c.Load(other)
	require.NoError(t, err)
	assert.Nil(t, miss)
}
