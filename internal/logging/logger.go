// Package logging provides categorised structured logging for hypcert on top
// of zap. Loggers are silent until Initialize (or SetLogger) installs a base
// logger, so library code can log unconditionally.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, configuration
	CategoryPipeline Category = "pipeline" // Certification runs
	CategoryCriteria Category = "criteria" // Internal criteria
	CategoryTools    Category = "tools"    // External tool adapters and subprocesses
	CategoryStore    Category = "store"    // Result cache
	CategoryAPI      Category = "api"      // HTTP API
)

var (
	baseMu sync.RWMutex
	base   = zap.NewNop()
)

// Initialize builds the base logger. level is a zap level name ("debug",
// "info", "warn", "error"); jsonFormat selects the production JSON encoder,
// otherwise a console encoder is used. Output goes to stderr.
func Initialize(level string, jsonFormat bool) error {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if jsonFormat {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	SetLogger(logger)
	return nil
}

// SetLogger installs l as the base logger. A nil l silences logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	baseMu.Lock()
	base = l
	baseMu.Unlock()
}

// Base returns the current base logger.
func Base() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// Sync flushes the base logger.
func Sync() error {
	err := Base().Sync()
	// stderr cannot be fsynced on most platforms.
	if err != nil && strings.Contains(err.Error(), "invalid argument") {
		return nil
	}
	return err
}

// Logger is a category logger with printf-style methods.
type Logger struct {
	category Category
	fields   []interface{}
}

// Get returns the logger for a category. It resolves the base logger on
// every call, so loggers obtained before Initialize start logging after it.
func Get(category Category) *Logger {
	return &Logger{category: category}
}

// With returns a logger that attaches the given key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)
	return &Logger{category: l.category, fields: fields}
}

// Sugar returns the underlying zap logger for this category.
func (l *Logger) Sugar() *zap.SugaredLogger {
	s := Base().Named(string(l.category)).Sugar()
	if len(l.fields) > 0 {
		s = s.With(l.fields...)
	}
	return s
}

func (l *Logger) Debug(format string, args ...interface{}) { l.Sugar().Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.Sugar().Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.Sugar().Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.Sugar().Errorf(format, args...) }

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Pipeline(format string, args ...interface{})      { Get(CategoryPipeline).Info(format, args...) }
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debug(format, args...) }
func PipelineWarn(format string, args ...interface{})  { Get(CategoryPipeline).Warn(format, args...) }

func CriteriaDebug(format string, args ...interface{}) { Get(CategoryCriteria).Debug(format, args...) }

func Tools(format string, args ...interface{})      { Get(CategoryTools).Info(format, args...) }
func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }
func ToolsWarn(format string, args ...interface{})  { Get(CategoryTools).Warn(format, args...) }
func ToolsError(format string, args ...interface{}) { Get(CategoryTools).Error(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIWarn(format string, args ...interface{})  { Get(CategoryAPI).Warn(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
