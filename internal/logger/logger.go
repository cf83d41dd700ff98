// Package logger provides the process-wide leveled logger.
// Messages go to stderr through charmbracelet/log; debug output only appears in verbose mode.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	mu      sync.RWMutex
	verbose bool
	base    = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Formatter:       log.TextFormatter,
		Level:           log.InfoLevel,
	})
}

// SetVerbose enables or disables verbose logging
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		base.SetLevel(log.DebugLevel)
	} else {
		base.SetLevel(log.InfoLevel)
	}
}

// IsVerbose returns true if verbose logging is enabled
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput redirects all log output. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// With returns a child logger carrying a prefix, e.g. an extension id
func With(prefix string) *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithPrefix(prefix)
}

// Debug prints debug messages only when verbose mode is enabled
func Debug(format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	base.Debugf(format, args...)
}

// Info prints informational messages
func Info(format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	base.Infof(format, args...)
}

// Success prints success messages with checkmark
func Success(format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	base.Infof("✓ "+format, args...)
}

// Error prints error messages
func Error(format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	base.Errorf(format, args...)
}

// Warn prints warning messages
func Warn(format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	base.Warnf(format, args...)
}
