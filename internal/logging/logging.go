// Package logging provides the structured-logging setup shared by
// tracecore's library code and command entry points, in the style of the
// zap-based logging in the antimetal/agent example.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger writing human-readable console output at
// the given level ("debug", "info", "warn", "error"). Unknown levels
// default to "info".
func New(level string) *zap.SugaredLogger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		// Development config construction only fails on invalid sink
		// URLs, which this constructor never supplies.
		panic(err)
	}
	return logger.Sugar()
}

// Nop returns a logger that discards everything, used as the default when
// a caller does not supply one.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
