// Package logger owns the process-wide root logger. Components derive named
// sub-loggers from it so every line carries its origin.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu   sync.RWMutex
	root hclog.Logger
)

// Setup configures the root logger. level accepts the usual hclog names
// (trace, debug, info, warn, error); anything unrecognized falls back to info.
func Setup(level string) {
	mu.Lock()
	defer mu.Unlock()

	root = hclog.New(&hclog.LoggerOptions{
		Name:   "castbot",
		Level:  hclog.LevelFromString(level),
		Output: os.Stderr,
	})
}

// Root returns the root logger, initializing it at info level if Setup has
// not run yet.
func Root() hclog.Logger {
	mu.RLock()
	l := root
	mu.RUnlock()
	if l != nil {
		return l
	}

	Setup("info")
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Named returns a sub-logger for a component.
func Named(name string) hclog.Logger {
	return Root().Named(name)
}
