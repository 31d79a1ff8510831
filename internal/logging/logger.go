// Package logging provides categorized structured logging for snapmatch.
// Each subsystem logs through a named zap logger; the level and encoding
// are set once at startup from configuration.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategorySnapshot  Category = "snapshot"  // Snapshot file load/save
	CategoryTransform Category = "transform" // Placeholder normalization
	CategoryVerify    Category = "verify"    // Comparison results
	CategoryReplay    Category = "replay"    // Suite execution
	CategoryStore     Category = "store"     // Run history persistence
	CategoryWatch     Category = "watch"     // Snapshot directory watcher
	CategoryCLI       Category = "cli"       // Command dispatch
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	sugared = make(map[Category]*zap.SugaredLogger)
)

// Init configures the root logger. level is one of debug/info/warn/error;
// unknown values fall back to info. When json is false a console encoder
// is used, which is what the CLI wants on a terminal.
func Init(level string, json bool) error {
	cfg := zap.NewProductionConfig()
	if !json {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

	logger, err := cfg.Build(zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	sugared = make(map[Category]*zap.SugaredLogger)
	return nil
}

// InitNop installs a no-op logger. Used by tests and library consumers
// that do not want harness output.
func InitNop() {
	mu.Lock()
	defer mu.Unlock()
	root = zap.NewNop()
	sugared = make(map[Category]*zap.SugaredLogger)
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Get returns the sugared logger for a category, creating it on first use.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := sugared[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := sugared[category]; ok {
		return l
	}
	if root == nil {
		root = zap.NewNop()
	}
	l := root.Named(string(category)).Sugar()
	sugared[category] = l
	return l
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}
