package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages can accept one without
// importing zerolog themselves.
type Logger = zerolog.Logger

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	// Env selects the console writer and debug level when "development".
	Env string
	// Level overrides the env default (debug, info, warn, error).
	Level string
	// Out defaults to stdout. CLIs pass stderr to keep stdout for results.
	Out       io.Writer
	Component string
}

// NewLogger builds the service logger.
func NewLogger(opts LoggerOptions) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	level := zerolog.InfoLevel
	if opts.Env == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level))); err == nil && opts.Level != "" {
		level = parsed
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.Component != "" {
		ctx = ctx.Str("component", opts.Component)
	}
	return ctx.Logger()
}

// NopLogger drops everything. Components fall back to it when no logger is injected.
func NopLogger() *Logger {
	l := zerolog.Nop()
	return &l
}
