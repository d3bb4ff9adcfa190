package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Debug bool
}

// NewLogger builds a JSON zap logger, at debug level when cfg.Debug is set.
func NewLogger(cfg *LoggerConfig, options ...zap.Option) (*zap.Logger, error) {
	mergedOptions := append([]zap.Option{zap.WithCaller(true)}, options...)

	c := zap.NewProductionConfig()
	if cfg != nil && cfg.Debug {
		c.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return c.Build(mergedOptions...)
}
