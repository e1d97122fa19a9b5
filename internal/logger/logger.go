// Package logger provides the process-wide structured logger.
//
// Debug and Info messages are only written in verbose mode (--verbose);
// warnings and errors are always written so operators see degraded
// states such as a failed index persist. Output goes to stderr through
// log/slog, as text by default or as JSON.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	asJSON  bool
	output  io.Writer = os.Stderr
	base              = build()
)

// build creates the slog logger for the current settings (caller must hold mu).
func build() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if asJSON {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	base = build()
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetJSON switches between JSON and text output.
func SetJSON(v bool) {
	mu.Lock()
	defer mu.Unlock()
	asJSON = v
	base = build()
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = build()
}

// L returns the underlying structured logger for key-value logging.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debug logs a formatted message in verbose mode.
func Debug(format string, args ...any) {
	L().Debug(fmt.Sprintf(format, args...))
}

// Section logs a pipeline stage header in verbose mode.
func Section(name string) {
	L().Info("=== " + name + " ===")
}

// Info logs a formatted informational message in verbose mode.
func Info(format string, args ...any) {
	L().Info(fmt.Sprintf(format, args...))
}

// Warn logs a formatted warning. Warnings are always written.
func Warn(format string, args ...any) {
	L().Warn(fmt.Sprintf(format, args...))
}

// Error logs a formatted error. Errors are always written.
func Error(format string, args ...any) {
	L().Error(fmt.Sprintf(format, args...))
}
