// Package logger provides opt-in diagnostic logging for apidb.
// With --verbose set, the sync pipeline narrates each phase (fetch,
// build, publish) to stderr so slow or failing sources are easy to
// spot. Without it, nothing is written.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput redirects verbose logs away from os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// emit writes a prefixed line when verbose mode is on.
func emit(prefix, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, prefix+format+"\n", args...)
	}
}

// Debug logs low-level detail: cache hits, blob hashes, row counts.
func Debug(format string, args ...any) {
	emit("[DEBUG] ", format, args...)
}

// Info logs progress a user watching a sync would care about.
func Info(format string, args ...any) {
	emit("[INFO] ", format, args...)
}

// Warn logs recoverable problems, such as a source failing in partial mode.
func Warn(format string, args ...any) {
	emit("[WARN] ", format, args...)
}

// Section marks the start of a sync phase in the verbose stream.
func Section(name string) {
	emit("", "\n--- %s ---", name)
}
