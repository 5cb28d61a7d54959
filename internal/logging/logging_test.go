package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuild_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := build(zapcore.AddSync(&buf), true, "debug")
	require.NoError(t, err)

	log.Named("repository").Debug("findMany", zap.String("table", "users"))
	require.NoError(t, log.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "repository", line["logger"])
	assert.Equal(t, "findMany", line["msg"])
	assert.Equal(t, "users", line["table"])
}

func TestBuild_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := build(zapcore.AddSync(&buf), false, "warn")
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestBuild_DefaultAndInvalidLevel(t *testing.T) {
	log, err := build(zapcore.AddSync(&bytes.Buffer{}), false, "")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))

	_, err = New(false, "loud")
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}
