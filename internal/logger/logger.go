// Package logger provides structured logging for dynaport on top of log/slog.
//
// Pretty output uses github.com/lmittmann/tint; JSON output uses the slog
// JSON handler. Logs always go to stderr by default because stdout carries
// the command result (a port number or JSON document).
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Level represents log levels
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// ParseLevel converts a string to a Level. An empty string yields LevelWarn,
// which keeps the CLI quiet unless something is off.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LevelWarn, nil
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, nil
	default:
		return "", fmt.Errorf("invalid log level: %q (valid: debug, info, warn, error)", s)
	}
}

// ParseFormat converts a string to a Format. An empty string yields FormatPretty.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPretty, nil
	case FormatJSON, FormatPretty:
		return f, nil
	default:
		return "", fmt.Errorf("invalid log format: %q (valid: json, pretty)", s)
	}
}

// Config holds logging configuration
type Config struct {
	Level      Level  // Log level (debug, info, warn, error)
	Format     Format // Output format (json, pretty)
	Output     io.Writer
	ShowCaller bool // Include file:line in logs
	TimeFormat string
}

// DefaultConfig returns the CLI logging configuration: warnings and above,
// pretty-printed to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      LevelWarn,
		Format:     FormatPretty,
		Output:     os.Stderr,
		TimeFormat: time.TimeOnly,
	}
}

// Logger wraps slog.Logger with port-probing specific helpers.
type Logger struct {
	logger *slog.Logger
}

// New creates a new structured logger
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(output, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.ShowCaller,
		})
	} else {
		timeFormat := cfg.TimeFormat
		if timeFormat == "" {
			timeFormat = time.TimeOnly
		}
		handler = tint.NewHandler(output, &tint.Options{
			Level:      level,
			TimeFormat: timeFormat,
			AddSource:  cfg.ShowCaller,
		})
	}

	return &Logger{
		logger: slog.New(handler).With("service", "dynaport"),
	}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{logger: slog.New(slog.DiscardHandler)}
}

// WithComponent creates a child logger with component context
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		logger: l.logger.With("component", component),
	}
}

// Debug logs debug level message with optional key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.logWithFields(slog.LevelDebug, msg, keysAndValues...)
}

// Info logs info level message with optional key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.logWithFields(slog.LevelInfo, msg, keysAndValues...)
}

// Warn logs warning level message with optional key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.logWithFields(slog.LevelWarn, msg, keysAndValues...)
}

// Error logs error level message with error and optional key-value pairs
func (l *Logger) Error(msg string, err error, keysAndValues ...any) {
	if err != nil {
		keysAndValues = append([]any{"error", err.Error(), "error_type", fmt.Sprintf("%T", err)}, keysAndValues...)
	}
	l.logWithFields(slog.LevelError, msg, keysAndValues...)
}

// Probe logs the outcome of a single bind probe at debug level.
func (l *Logger) Probe(attempt, port int, protocol string, err error) {
	args := []any{"attempt", attempt, "port", port, "protocol", protocol}
	if err != nil {
		l.logger.Debug("port unavailable", append(args, "error", err.Error())...)
		return
	}
	l.logger.Debug("port available", args...)
}

// SearchFinished logs the end of a port search with its duration.
func (l *Logger) SearchFinished(strategy string, attempts int, duration time.Duration, err error) {
	args := []any{"strategy", strategy, "attempts", attempts, "duration", duration}
	if err != nil {
		l.logger.Warn("port search failed", append(args, "error", err.Error())...)
		return
	}
	l.logger.Info("port search succeeded", args...)
}

// logWithFields is a helper to add key-value pairs to log events
func (l *Logger) logWithFields(level slog.Level, msg string, keysAndValues ...any) {
	if len(keysAndValues)%2 != 0 {
		l.logger.Warn("odd number of key-value pairs provided to logger", "args_count", len(keysAndValues))
		keysAndValues = append(keysAndValues, "<missing_value>")
	}

	l.logger.Log(context.Background(), level, msg, keysAndValues...)
}

// Slog returns the underlying slog.Logger
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// parseLevel converts string level to slog.Level
func parseLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
