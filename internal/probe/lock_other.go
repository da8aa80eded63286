//go:build !unix

package probe

import "os"

// Advisory locking is unix-only. Elsewhere concurrent cache writers race
// benignly: identical keys produce identical content.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
