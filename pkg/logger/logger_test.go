package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestProductionWritesJSONWithScope(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: InfoLevel, Environment: "production", Output: &buf})
	require.NoError(t, err)

	l.WithComponent("guide-runner").WithSessionID("s1").WithRouteID("r1").WithUserID("u1").Info("Card shown")
	require.NoError(t, l.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Card shown", line["msg"])
	assert.Equal(t, "guide-runner", line["component"])
	assert.Equal(t, "s1", line["session_id"])
	assert.Equal(t, "r1", line["route_id"])
	assert.Equal(t, "u1", line["user_id"])
	assert.Contains(t, line, "timestamp")
}

func TestSetLevelAppliesToDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: InfoLevel, Encoding: "console", Output: &buf})
	require.NoError(t, err)
	child := l.WithComponent("playback")

	child.Debug("hidden")
	assert.Empty(t, buf.String())

	l.SetLevel(DebugLevel)
	child.Debug("visible")
	assert.True(t, strings.Contains(buf.String(), "visible"))
}

func TestGlobalLogger(t *testing.T) {
	prev := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(prev) })

	l := NewDefault()
	SetGlobalLogger(l)
	assert.Same(t, l, GetGlobalLogger())
}

func TestWatermillAdapter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: DebugLevel, Environment: "production", Output: &buf})
	require.NoError(t, err)

	child := NewWatermillAdapter(l).With(watermill.LogFields{"topic": "guide-events"})
	child.Info("published", watermill.LogFields{"uuid": "x"})
	child.Error("failed", assert.AnError, nil)
	require.NoError(t, l.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"topic":"guide-events"`)
	assert.Contains(t, lines[1], assert.AnError.Error())
}
