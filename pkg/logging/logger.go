// Package logging configures the zerolog logger shared by duoload's packages.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel names a minimum severity. LevelWarn is the default because
// duplicate records are reported at that level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// levels maps accepted spellings to zerolog levels. "warning" is accepted as
// an alias because it is what most people type.
var levels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr. Stdout is reserved for program output.
	Output io.Writer
}

// DefaultConfig logs warnings to stderr, pretty when stderr is a terminal.
func DefaultConfig() Config {
	return Config{
		Level:  LevelWarn,
		Pretty: IsTerminal(os.Stderr),
		Output: os.Stderr,
	}
}

// Setup installs the global logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, NoColor: !IsTerminal(out)}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// parseLevel falls back to info for unknown names; Validate in
// internal/config rejects those before they get here.
func parseLevel(level LogLevel) zerolog.Level {
	if l, ok := levels[strings.ToLower(string(level))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level LogLevel) bool {
	_, ok := levels[strings.ToLower(string(level))]
	return ok
}

// NewLogger derives a logger tagged with component from the global logger.
// Call it after Setup; loggers created earlier keep the old writer.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Log Level Guidelines:
//
// Debug: request flow (page cursors, attempts, pacing waits), sink bookkeeping
//
// Info: run start/finish, per-page summaries, finalize results
//
// Warn: duplicate records (one per occurrence), retry attempts, pacer fallbacks
//
// Error: fatal fetch or sink failures
//
// Context Fields:
//   - component: client, transfer, output, ratelimit
//   - page: 1-based page number
//   - attempt: fetch attempt number
//   - error_class: transient error class (server, rate_limit, network)
//   - word: identity of a skipped duplicate
