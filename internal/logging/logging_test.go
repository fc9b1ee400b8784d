package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

func TestFromConfigKeepsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.log")
	cfg := FromConfig(config.LoggingConfig{Level: "debug", File: true, FilePath: path, MaxSize: 5})
	assert.Equal(t, path, cfg.FilePath)
	assert.Equal(t, 5, cfg.MaxSize)

	cfg = FromConfig(config.LoggingConfig{})
	assert.NotEmpty(t, cfg.FilePath)
}

func TestFieldHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(zerolog.New(&buf), "sync")
	tagged := WithTradeID(WithUser(logger, "u1"), "t1")
	tagged.Info().Msg("hi")
	assert.Contains(t, buf.String(), `"user_id":"u1"`)
	assert.Contains(t, buf.String(), `"trade_id":"t1"`)
	assert.Contains(t, buf.String(), `"component":"sync"`)
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "journal.log")
	logger := NewLoggerWithConfig(LogConfig{Level: "info", File: true, FilePath: path, MaxSize: 1})
	logger.Info().Msg("written")
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written")
}

func TestFormatLevel(t *testing.T) {
	assert.Contains(t, formatLevel("warn"), "WRN")
	assert.Equal(t, "TRACE", formatLevel("trace"))
	assert.Equal(t, "???", formatLevel(3))
}

func TestLogMutation(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogMutation(logger, "delete", 1, nil)
	assert.Contains(t, buf.String(), "Mutation fulfilled")

	buf.Reset()
	LogMutation(logger, "delete", 1, errors.New("boom"))
	assert.Contains(t, buf.String(), "Mutation rejected")
	assert.Contains(t, buf.String(), "boom")
}
