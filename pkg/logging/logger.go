// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	// Ignored when FilePath is set.
	Output io.Writer

	// FilePath writes logs to a size-rotated file instead of Output.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Async buffers log writes so that logging never blocks the caller.
	// Messages are dropped (and counted on stderr) when the buffer overflows.
	Async bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Pretty:     false,
		Output:     os.Stderr,
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 14,
	}
}

// Setup configures the global zerolog logger. The returned Closer flushes
// and releases the configured output and must be closed on shutdown.
func Setup(cfg Config) (zerolog.Logger, io.Closer) {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var closer io.Closer = nopCloser{}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.FilePath != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		}
		output = file
		closer = file
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, NoColor: cfg.FilePath != ""}
	}

	if cfg.Async {
		async := diode.NewWriter(output, 10000, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "logging: dropped %d messages\n", missed)
		})
		output = async
		closer = async
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	return logger, closer
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request/response bodies (verbose mode, truncated to 500 chars)
//   - Individual page fetches and pagination rounds
//   - Connection pool overflow and evictions
//
// Info: Normal operation events
//   - Search job created, status polls, search complete
//   - Requests that succeeded after a retry
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and exhausted retries
//   - Rate limit waits
//   - Cache and Redis errors (search continues uncached)
//
// Error: Error conditions requiring attention
//   - Failed HTTP requests
//   - Failed search job deletion (job left on the server)
//
// Context Fields:
//   - component: emitting component (sumo-client, poller, paginator, ...)
//   - search_id: correlation id of one Execute/Stream call
//   - job_id: Sumo Logic search job id
//   - endpoint: API path with the job id replaced by {id}
//   - error_class: Error classification (client, auth, server, rate_limit, network)
