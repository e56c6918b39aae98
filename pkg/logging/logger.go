// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelTrace logs every intercepted request and store access.
	LevelTrace LogLevel = "trace"

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
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Str("service", "offline-shell").Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
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

// Log Level Guidelines:
//
// Trace: Per-request detail
//   - Classification result of every intercepted request
//   - Raw store reads and writes
//
// Debug: Detailed information for debugging
//   - Cache hit/miss with store name and key
//   - Strategy decisions and fallbacks taken while online
//   - Connectivity failure counters
//
// Info: Normal operation events
//   - Lifecycle transitions (installing, installed, activated)
//   - Evicted stores
//   - Queue entries replayed
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Network failure answered from cache or a synthesized fallback
//   - Store errors ignored on the request path
//   - Eviction of a single store failed
//   - Retry attempts
//
// Error: Error conditions requiring attention
//   - Install failed (generation marked redundant)
//   - Replay of a queued submission failed
//   - Configuration errors
//
// Context Fields:
//   - store: Named store (e.g. safealert-v1.0.0)
//   - key: Request key ("GET <url>")
//   - class: Resource class (navigation, api, static)
//   - status_code: HTTP status code
//   - duration: Request duration
//   - error_class: Error classification (client, server, network)
//   - event: Worker event kind
//   - state: Worker lifecycle state
