package probe

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/binderylabs/bindery/internal/platform"
)

// CacheKey derives the content key tying a fact table to the inputs that
// produced it: model source, platform profile, toolchain identity and
// generator version. Any change to any of them must miss the cache; a
// stale layout fact corrupts memory at runtime instead of failing a build.
func CacheKey(modelSource []byte, prof *platform.Profile, tc Toolchain, version string) string {
	h, _ := blake2b.New256(nil)
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	h.Write(modelSource)
	h.Write([]byte{0})
	write(prof.Name)
	write(strconv.Itoa(prof.PointerWidth))
	names := make([]string, 0, len(prof.Aliases))
	for a := range prof.Aliases {
		names = append(names, a)
	}
	sort.Strings(names)
	for _, a := range names {
		write(a + "=" + prof.Aliases[a])
	}
	write(tc.ID())
	write(version)
	return hex.EncodeToString(h.Sum(nil))
}

// Cache stores fact tables under content keys. Concurrent runs sharing a
// directory serialize through an advisory lock, so one run never reads a
// table another is halfway through writing.
type Cache struct {
	Dir string
}

func (c Cache) tablePath(key string) string {
	short := key
	if len(short) > 16 {
		short = short[:16]
	}
	return filepath.Join(c.Dir, "facts-"+short+".toml")
}

func (c Cache) withLock(fn func() error) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("create fact cache dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, ".lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open fact cache lock: %w", err)
	}
	defer f.Close()
	if err := lockFile(f); err != nil {
		return fmt.Errorf("lock fact cache: %w", err)
	}
	defer unlockFile(f)
	return fn()
}

// Load returns the cached table for key, or nil on a miss. A table whose
// recorded key disagrees with its file name is treated as a miss.
func (c Cache) Load(key string) (*Table, error) {
	var t *Table
	err := c.withLock(func() error {
		loaded, err := LoadTable(c.tablePath(key))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if loaded.Key != key {
			return nil
		}
		t = loaded
		return nil
	})
	return t, err
}

// Store writes the table under its key.
func (c Cache) Store(t *Table) error {
	if t.Key == "" {
		return fmt.Errorf("fact table has no cache key")
	}
	return c.withLock(func() error {
		return t.Save(c.tablePath(t.Key))
	})
}
