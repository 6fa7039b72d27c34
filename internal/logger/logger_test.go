package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/tropicaldog17/pricestore/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
		want zapcore.Level
	}{
		{"development default", config.LoggingConfig{}, zapcore.DebugLevel},
		{"production default", config.LoggingConfig{Env: "production"}, zapcore.InfoLevel},
		{"explicit level", config.LoggingConfig{Env: "production", Level: "warn"}, zapcore.WarnLevel},
		{"bad level falls back", config.LoggingConfig{Level: "loud"}, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.want))
			assert.False(t, l.Core().Enabled(tt.want-1))
		})
	}
}
