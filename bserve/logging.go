package bserve

import (
	"github.com/advdv/bssr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger configured from the environment.
// Uses JSON encoding, BSSR_LOG_LEVEL controls the level (debug, info, warn, error).
func NewLogger(env Environment) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(env.logLevel())
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

type zapLogger struct{ *zap.Logger }

func (l zapLogger) LogUnhandledServeError(err error) {
	l.Logger.Error("unhandled server error", zap.Error(err))
}

func (l zapLogger) LogImplicitFlushError(err error) {
	l.Logger.Error("error while flushing implicitly", zap.Error(err))
}

func (l zapLogger) LogTransportError(err error) {
	l.Logger.Warn("error while writing response", zap.Error(err))
}

func (l zapLogger) LogRenderError(err error) {
	l.Logger.Error("fallback render failed", zap.Error(err))
}

func (l zapLogger) LogStackReloaded(entry string, generation uint64) {
	l.Logger.Info("stack built", zap.String("entry", entry), zap.Uint64("generation", generation))
}

// NewBSSRLogger adapts a zap logger to the logger interface of the bridge and the stacks.
func NewBSSRLogger(l *zap.Logger) bssr.Logger {
	return zapLogger{l.Named("bssr")}
}
