package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	cases := []struct {
		level, format string
		enabled       slog.Level
		disabled      slog.Level
		json          bool
	}{
		{"debug", "text", slog.LevelDebug, slog.LevelDebug - 1, false},
		{"info", "json", slog.LevelInfo, slog.LevelDebug, true},
		{"warn", "text", slog.LevelWarn, slog.LevelInfo, false},
		{"error", "json", slog.LevelError, slog.LevelWarn, true},
	}
	for _, c := range cases {
		logger, err := newLogger(c.level, c.format)
		require.NoError(t, err, c.level)
		assert.True(t, logger.Enabled(context.Background(), c.enabled), c.level)
		assert.False(t, logger.Enabled(context.Background(), c.disabled), c.level)

		_, isJSON := logger.Handler().(*slog.JSONHandler)
		assert.Equal(t, c.json, isJSON, c.format)
	}

	_, err := newLogger("loud", "text")
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}

func TestCLIValidate(t *testing.T) {
	c := cli{DisplayWidth: 500}
	assert.NoError(t, c.Validate())

	c = cli{DisplayWidth: 0}
	assert.ErrorContains(t, c.Validate(), "invalid display width")

	c = cli{DisplayWidth: 500, Workers: -1}
	assert.ErrorContains(t, c.Validate(), "invalid number of workers")
}

func TestParseCommandLine(t *testing.T) {
	dir := t.TempDir()

	var c cli
	parser, err := kong.New(&c, kong.Name("imgxform"))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, 500, c.DisplayWidth)
	assert.Equal(t, "bilinear", c.Filter)
	assert.Equal(t, "127.0.0.1:8080", c.Serve.Listen)
	assert.Equal(t, int64(64<<20), c.Serve.MaxPixels)
	assert.Empty(t, c.Serve.AllowOrigin)

	_, err = parser.Parse([]string{"--filter=nearest", "serve"})
	assert.Error(t, err)

	_, err = parser.Parse([]string{"inspect", dir})
	assert.ErrorContains(t, err, "is a directory")

	_, err = parser.Parse([]string{"serve", "--open", filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}
