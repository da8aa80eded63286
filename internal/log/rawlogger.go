package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// RawLogger records the probe's raw toolchain traffic: every compiler
// invocation and the unedited output it produced. The transcript is what a
// bug report needs when a probe fails on headers the maintainers cannot
// see.
type RawLogger interface {
	// Command records one toolchain invocation, argv style.
	Command(args []string)
	// Output records the combined output of the last invocation.
	Output(data []byte)
}

// rawLogger implements RawLogger over a shared writer. Probe batches may
// run concurrently; the mutex keeps each record on its own lines.
type rawLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewRaw creates a RawLogger writing to w. A nil writer yields a no-op
// logger, so call sites never branch on whether the transcript is wanted.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

func (r *rawLogger) Command(args []string) {
	if r.w == nil || len(args) == 0 {
		return
	}
	r.write("$ " + strings.Join(args, " "))
}

func (r *rawLogger) Output(data []byte) {
	if r.w == nil || len(data) == 0 {
		return
	}
	r.write(strings.TrimRight(string(data), "\n"))
}

func (r *rawLogger) write(body string) {
	stamp := time.Now().Format("2006/01/02 15:04:05")
	r.mu.Lock()
	_, _ = fmt.Fprintf(r.w, "%s %s\n", stamp, body)
	r.mu.Unlock()
}
