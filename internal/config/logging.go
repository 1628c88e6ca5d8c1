package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	hlog "github.com/homehub-sim/homehub/pkg/log"
)

// Log configures operational and protocol logging.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// File, when set, receives logs instead of the console and is rotated.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`

	// Protocol, when set, is the path of a CBOR protocol log (.hlog).
	Protocol string `yaml:"protocol"`
}

// DefaultLog returns the logging defaults.
func DefaultLog() Log {
	return Log{
		Level:      "info",
		Format:     "text",
		MaxSizeMB:  10,
		MaxAgeDays: 7,
		MaxBackups: 3,
	}
}

// Validate checks the level and format.
func (l *Log) Validate() error {
	if _, err := ParseLevel(l.Level); err != nil {
		return err
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q (use text or json)", l.Format)
	}
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (use debug, info, warn, error)", s)
	}
}

// NewLogger builds the operational logger. Without a file it writes to
// console. The returned closer releases the log file and is never nil.
func (l *Log) NewLogger(console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = console
	var closer io.Closer = io.NopCloser(nil)
	if l.File != "" {
		lj := &lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    l.MaxSizeMB,
			MaxAge:     l.MaxAgeDays,
			MaxBackups: l.MaxBackups,
			Compress:   l.Compress,
		}
		w, closer = lj, lj
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(l.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer, nil
}

// NewProtocolLogger opens the protocol log if one is configured. Debug
// level also mirrors protocol events to logger. It returns a nil Logger
// when neither applies.
func (l *Log) NewProtocolLogger(logger *slog.Logger) (hlog.Logger, io.Closer, error) {
	var sinks []hlog.Logger
	var closer io.Closer = io.NopCloser(nil)

	if l.Protocol != "" {
		fl, err := hlog.NewFileLogger(l.Protocol)
		if err != nil {
			return nil, nil, fmt.Errorf("opening protocol log: %w", err)
		}
		sinks = append(sinks, fl)
		closer = fl
	}
	if level, _ := ParseLevel(l.Level); level <= slog.LevelDebug && logger != nil {
		sinks = append(sinks, hlog.NewSlogAdapter(logger))
	}

	switch len(sinks) {
	case 0:
		return nil, closer, nil
	case 1:
		return sinks[0], closer, nil
	default:
		return hlog.NewMultiLogger(sinks...), closer, nil
	}
}
