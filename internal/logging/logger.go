// Package logging provides config-driven categorized logging built on
// zap. Each subsystem logs through a named child logger so operators can
// silence categories individually.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"meetscribe/internal/config"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // startup and shutdown
	CategorySession  Category = "session"  // registry and lifecycle transitions
	CategoryBrowser  Category = "browser"  // browser process and page driving
	CategoryCapture  Category = "capture"  // caption capture loop, aggregation
	CategoryRelay    Category = "relay"    // backend push and batched delivery
	CategoryAPI      Category = "api"      // operator HTTP surface
	CategoryArchive  Category = "archive"  // local transcript archive
	CategoryAudio    Category = "audio"    // audio chunk side-channel
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	cfg     config.LoggingConfig
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Initialize builds the root logger from config. Call once at startup;
// Get falls back to a no-op logger before that.
func Initialize(c config.LoggingConfig) error {
	zc := zap.NewProductionConfig()
	if c.Format == "console" || c.Format == "" {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		if c.Level != "" {
			return fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
		level = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	zc.OutputPaths = []string{"stderr"}
	if c.File != "" {
		zc.OutputPaths = append(zc.OutputPaths, c.File)
	}

	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	cfg = c
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Get returns (or creates) the logger for a category. Disabled categories
// and the pre-Initialize window get a no-op logger.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	var l *zap.SugaredLogger
	if root == nil || !cfg.IsCategoryEnabled(string(category)) {
		l = zap.NewNop().Sugar()
	} else {
		l = root.Named(string(category)).Sugar()
	}
	loggers[category] = l
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

// SetRoot swaps the root logger. Tests use it with zaptest observers.
func SetRoot(logger *zap.Logger, c config.LoggingConfig) {
	mu.Lock()
	defer mu.Unlock()
	root = logger
	cfg = c
	loggers = make(map[Category]*zap.SugaredLogger)
}
