// Package logger holds the process-wide structured logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Logger is shared by every package; replace it through Configure.
var Logger *log.Logger

func init() {
	Logger = log.New(os.Stderr)
	Logger.SetLevel(log.InfoLevel)
}

// Configure applies the log level and optional log file.
// An empty level falls back to CHAT_LOG_LEVEL, then to info.
func Configure(level string, file string) error {
	if level == "" {
		level = strings.TrimSpace(os.Getenv("CHAT_LOG_LEVEL"))
	}

	var output io.Writer = os.Stderr
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		output = f
	}

	Logger = log.NewWithOptions(output, log.Options{
		ReportTimestamp: true,
		Level:           parseLevel(level),
	})
	return nil
}

// SetOutput redirects the logger, mostly for tests.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}

// Fatal logs and exits.
func Fatal(msg interface{}, keyvals ...interface{}) {
	Logger.Fatal(msg, keyvals...)
}
