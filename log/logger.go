// Package warplog is the tick engine's thin logging adapter, modeled on the
// teacher's luxfi/log facade and its log/nolog.go no-op implementation:
// production code logs through the Logger interface using structured
// fields, never Printf, and tests swap in NewNoOp or NewRecorder.
package warplog

import (
	"go.uber.org/zap"
)

// Logger is the interface engine/scheduler/boaw code logs through. It is
// deliberately narrow compared to the teacher's luxfi/log.Logger (which also
// carries geth-era Trace/Crit/Verbo/Write/slog-Handler methods for backward
// compatibility with several other consumers this module does not have) —
// here there is exactly one production implementation and one test
// implementation, so the surface only needs what both can satisfy.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)

	// With returns a logger that prepends fields to every subsequent call,
	// matching the teacher's With/WithFields chaining pattern.
	With(fields ...zap.Field) Logger
}

// zapLogger is the production Logger, backed directly by *zap.Logger.
type zapLogger struct {
	l *zap.Logger
}

// New builds a production Logger. development selects zap's human-readable
// console encoder (for local runs) over the default JSON encoder (for
// ingestion by log pipelines).
func New(development bool) (Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l: zl}, nil
}

// Wrap adapts an already-constructed *zap.Logger, for callers embedding this
// engine in a host process that owns its own zap configuration.
func Wrap(zl *zap.Logger) Logger {
	return &zapLogger{l: zl}
}

func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) Fatal(msg string, fields ...zap.Field) { z.l.Fatal(msg, fields...) }

func (z *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}
