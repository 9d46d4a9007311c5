// Package log is a thin encapsulation of go.uber.org/zap used across
// kvring for startup, shutdown, and per-connection diagnostics.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style logger that writes ISO8601-stamped,
// console-encoded lines to stderr. Unlike a file-backed logger, it
// takes no rotation/retention configuration: log file management is an
// external-collaborator concern, not part of the core.
func New() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		zapcore.InfoLevel,
	)
	return zap.New(core, zap.AddCaller())
}

// Nop returns a logger that discards everything, for use in tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}
