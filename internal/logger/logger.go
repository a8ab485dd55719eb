// Package logger builds the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for the optional log file.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes where and how to log. File is optional; when set, every
// record is also written to a lumberjack-rotated file.
type Config struct {
	Level      string
	Format     string // text or json
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New creates a logger writing to stderr (and File if configured). The
// returned closer releases the file and must be called on exit.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg Config, base io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = base
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		fw := &lj.Logger{
			Filename:   cfg.File,
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
		}
		out = io.MultiWriter(base, fw)
		closer = fw
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(h), closer, nil
}

// ParseLevel accepts debug, info, warn and error. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
