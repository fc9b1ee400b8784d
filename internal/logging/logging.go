// Package logging builds the zerolog loggers used across the journal.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"trade-journal/internal/config"
)

// LogConfig controls where log lines go and how the file rotates.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig logs info and above to stderr and to a rotating file in
// the config directory.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(config.DefaultConfigDir(), "logs", "journal.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// FromConfig converts the [logging] section of the config file.
func FromConfig(c config.LoggingConfig) LogConfig {
	lc := LogConfig(c)
	if lc.FilePath == "" {
		lc.FilePath = DefaultLogConfig().FilePath
	}
	return lc
}

var levelTags = map[string]string{
	"debug": "\033[36mDBG\033[0m",
	"info":  "\033[32mINF\033[0m",
	"warn":  "\033[33mWRN\033[0m",
	"error": "\033[31mERR\033[0m",
	"fatal": "\033[35mFTL\033[0m",
}

func formatLevel(i interface{}) string {
	s, ok := i.(string)
	if !ok {
		return "???"
	}
	if tag, ok := levelTags[s]; ok {
		return tag
	}
	return strings.ToUpper(s)
}

// NewLoggerWithConfig builds a logger writing to every enabled sink. With no
// usable sink it falls back to stderr. The level is applied globally.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{
			Out:         os.Stderr,
			TimeFormat:  time.RFC3339,
			FormatLevel: formatLevel,
		})
	}
	if cfg.File {
		if w, err := rotatingFile(cfg); err == nil {
			sinks = append(sinks, w)
		} else {
			fmt.Fprintf(os.Stderr, "log file disabled: %v\n", err)
		}
	}

	var out io.Writer = os.Stderr
	switch len(sinks) {
	case 0:
	case 1:
		out = sinks[0]
	default:
		out = zerolog.MultiLevelWriter(sinks...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	return zerolog.New(out).With().Timestamp().Caller().Logger()
}

func rotatingFile(cfg LogConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}, nil
}

// parseLevel maps a config level name to zerolog. Unknown names mean info.
func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// SetDebugLevel lowers the global level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}
