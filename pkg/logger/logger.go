// Package logger configures structured logging for the attendance engine.
// Every component takes a *slog.Logger; this package builds the one the
// binaries hand out, plus attribute helpers for the recurring field names.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options configures the logger.
type Options struct {
	// Level: debug, info, warn, error. Unknown values mean info.
	Level string

	// Format: json or text. Production aggregators want json; text
	// reads better in a terminal.
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer

	// AddSource attaches file:line to every record.
	AddSource bool
}

// DefaultOptions returns sensible defaults for the logger.
func DefaultOptions() Options {
	return Options{
		Level:  "info",
		Format: "json",
		Output: os.Stdout,
	}
}

// New creates a logger from the given options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "text") {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	}

	return slog.New(handler)
}

// ParseLevel parses a config string into a slog level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Meant for tests and
// for components that must not log.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Attribute helpers for the field names that recur across the engine.

func StudentID(id string) slog.Attr      { return slog.String("student_id", id) }
func SubjectID(id string) slog.Attr      { return slog.String("subject_id", id) }
func SessionID(id string) slog.Attr      { return slog.String("session_id", id) }
func ActionID(id string) slog.Attr       { return slog.String("action_id", id) }
func RiskLevel(level string) slog.Attr   { return slog.String("risk_level", level) }
func Component(name string) slog.Attr    { return slog.String("component", name) }
func Operation(name string) slog.Attr    { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr  { return slog.Duration("latency", d) }

// Err returns an error attribute, tolerating nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Any("error", nil)
	}
	return slog.String("error", err.Error())
}
