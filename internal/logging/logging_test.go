package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		raw      string
		expected zapcore.Level
	}{
		{raw: "debug", expected: zapcore.DebugLevel},
		{raw: " WARN ", expected: zapcore.WarnLevel},
		{raw: "error", expected: zapcore.ErrorLevel},
		{raw: "loud", expected: zapcore.InfoLevel},
		{raw: "", expected: zapcore.InfoLevel},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			logger, err := New(tc.raw)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tc.expected))
			if tc.expected > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tc.expected-1))
			}
		})
	}
}
