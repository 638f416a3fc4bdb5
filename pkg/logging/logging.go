// Package logging builds the process logger from the environment.
package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "CANRECON_LOG_LEVEL"
	EnvLogTimestamp = "CANRECON_LOG_TIMESTAMP"
	EnvLogNoColor   = "CANRECON_LOG_NOCOLOR"
)

type Options struct {
	App       string
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	// Console receives human readable records, usually stderr.
	Console io.Writer
	// DebugFile, when set, receives every record as JSON regardless of Level.
	DebugFile string
}

func DefaultOptions() Options {
	return Options{
		App:       "canrecon",
		Level:     zerolog.InfoLevel,
		Timestamp: true,
		Console:   os.Stderr,
	}
}

// FromEnv applies the CANRECON_LOG_* overrides to o.
func FromEnv(o Options) Options {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		o.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		o.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		o.NoColor = v
	}
	return o
}

// New returns the logger and a close func for the debug file, if any.
func New(o Options) (zerolog.Logger, func() error, error) {
	console := zerolog.ConsoleWriter{
		Out:        o.Console,
		NoColor:    o.NoColor,
		TimeFormat: time.TimeOnly,
	}
	if !o.Timestamp {
		console.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	if console.Out == nil {
		console.Out = os.Stderr
	}

	closer := func() error { return nil }
	var out io.Writer = &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: console},
		Level:  o.Level,
	}
	level := o.Level
	if o.DebugFile != "" {
		fh, err := os.OpenFile(o.DebugFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("open debug log: %w", err)
		}
		closer = func() error {
			if err := fh.Sync(); err != nil {
				fh.Close()
				return err
			}
			return fh.Close()
		}
		out = zerolog.MultiLevelWriter(out, fh)
		level = zerolog.TraceLevel
	}

	if level < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(level)
	}
	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if o.App != "" {
		ctx = ctx.Str("app", o.App)
	}
	return ctx.Logger(), closer, nil
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
