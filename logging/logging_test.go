package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	l, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, NewDefaultConfig().Validate())
	assert.Error(t, (&Config{Level: "info", Format: "xml"}).Validate())
	assert.Error(t, (&Config{Level: "loud", Format: "json"}).Validate())
}

func TestNewLogger_Defaults(t *testing.T) {
	l, err := NewLogger(&Config{})
	require.NoError(t, err)
	assert.True(t, l.Enabled(zapcore.InfoLevel))
	assert.False(t, l.Enabled(zapcore.DebugLevel))
}

func TestContextFields_RunID(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithRunID(context.Background(), "run-1")
	tl.Info(ctx, "pixel done", zap.Int("row", 2))

	entries := tl.FilterMessage("pixel done").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.EqualValues(t, 2, fields["row"])
	tl.AssertLogged(t, zapcore.InfoLevel, "pixel")
}

func TestTraceLevel(t *testing.T) {
	tl := NewTestLogger()
	tl.Trace(context.Background(), "residual")
	tl.AssertLogged(t, TraceLevel, "residual")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "residual")
}
