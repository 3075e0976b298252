package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. LOG_LEVEL=debug switches to the
// human-readable development encoder.
func NewLogger(c Config) (*zap.Logger, error) {
	if c.LogLevel == "debug" {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err == nil {
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}
