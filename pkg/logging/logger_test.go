package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestZapLogger_Fields(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerWithCore(obs)

	child := logger.WithField("component", "command_channel").
		WithFields(map[string]interface{}{"link_id": "abc"})
	child.Info("call completed", "command", "getVersion", "seq", 3, "dangling")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "command_channel", fields["component"])
	assert.Equal(t, "abc", fields["link_id"])
	assert.Equal(t, "getVersion", fields["command"])
	assert.EqualValues(t, 3, fields["seq"])
	assert.NotContains(t, fields, "dangling")
}

func TestOrGlobal(t *testing.T) {
	assert.Equal(t, GetGlobalLogger(), OrGlobal(nil))

	obs, _ := observer.New(zapcore.InfoLevel)
	l := NewZapLoggerWithCore(obs)
	assert.Same(t, l, OrGlobal(l))
}
