package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tropicaldog17/pricestore/internal/config"
)

// New creates a zap logger from the logging config.
// env "production" yields JSON output; anything else a console logger.
// level overrides the environment's default level when set.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Env == "production" {
		zc := zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.Level = zap.NewAtomicLevelAt(level(cfg.Level, zapcore.InfoLevel))
		return zc.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zc := zap.NewDevelopmentConfig()
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	zc.Level = zap.NewAtomicLevelAt(level(cfg.Level, zapcore.DebugLevel))
	return zc.Build(zap.AddCaller())
}

func level(s string, def zapcore.Level) zapcore.Level {
	if s == "" {
		return def
	}
	l, err := zapcore.ParseLevel(s)
	if err != nil {
		return def
	}
	return l
}
