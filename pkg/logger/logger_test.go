package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitSetsLevel(t *testing.T) {
	require.NoError(t, Init("debug"))
	require.True(t, Logger().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Init("warn"))
	require.False(t, Logger().Core().Enabled(zapcore.InfoLevel))
}

func TestInitFallsBackToInfoOnUnknownLevel(t *testing.T) {
	require.NoError(t, Init("chatty"))
	require.True(t, Logger().Core().Enabled(zapcore.InfoLevel))
	require.False(t, Logger().Core().Enabled(zapcore.DebugLevel))
}

func TestWithModuleReturnsChildLogger(t *testing.T) {
	require.NoError(t, Init("info"))
	child := WithModule("sessions")
	require.NotNil(t, child)
	require.NotSame(t, Logger(), child)
}
