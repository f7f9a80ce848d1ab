// Package logging builds the logr.Logger used by the binaries: zap underneath,
// logr verbosity levels on top.
package logging

import (
	"context"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logger.V(n).
const (
	DEFAULT = 0
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// Options configures New.
type Options struct {
	// Verbosity is the highest V level that is emitted.
	Verbosity int
	// Development switches to the human-readable console encoder.
	Development bool
}

// New returns a zap-backed logger. logr V(n) maps to zap level -n, so
// Verbosity n enables every V level up to n.
func New(opts Options) (logr.Logger, error) {
	var cfg uberzap.Config
	if opts.Development {
		cfg = uberzap.NewDevelopmentConfig()
	} else {
		cfg = uberzap.NewProductionConfig()
		cfg.Sampling = nil
	}
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(int8(-1 * opts.Verbosity)))
	z, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(z), nil
}

// NewTestLogger creates a development logger with every level enabled.
func NewTestLogger() logr.Logger {
	logger, err := New(Options{Verbosity: TRACE, Development: true})
	if err != nil {
		return logr.Discard()
	}
	return logger
}

// NewTestLoggerIntoContext creates a test logger and inserts it into ctx.
func NewTestLoggerIntoContext(ctx context.Context) context.Context {
	return logr.NewContext(ctx, NewTestLogger())
}

// Fatal calls logger.Error followed by os.Exit(1).
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...interface{}) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}
