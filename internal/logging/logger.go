package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitializeLogger builds a JSON production logger tagged with the service name.
// The returned cleanup flushes buffered entries and should be deferred by main.
func InitializeLogger(name, level string) (*zap.SugaredLogger, func()) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	base, err := cfg.Build()
	if err != nil {
		base = zap.NewExample()
	}

	logger := base.Sugar().With("service", name)
	return logger, func() { _ = base.Sync() }
}
