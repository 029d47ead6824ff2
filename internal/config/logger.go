package config

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. "debug" selects zap's development
// config; any other level uses the production JSON encoder.
func (c LoggingConfig) NewLogger() (*zap.Logger, error) {
	level := strings.ToLower(strings.TrimSpace(c.Level))
	if level == "debug" {
		return zap.NewDevelopment()
	}

	zc := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
