// Package logger provides leveled structured logging.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// callerSkip accounts for the package-level helpers wrapping zerolog.
var callerSkip = zerolog.CallerSkipFrameCount + 1

var defaultLogger = zerolog.Nop()

// Init initializes the default logger with the specified level and format.
// Format "json" writes one JSON object per line; "text" writes a
// human-readable console line with caller information.
func Init(level string, format string) {
	InitWithWriter(os.Stderr, level, format)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(w io.Writer, level string, format string) {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	var zl zerolog.Logger
	if strings.ToLower(format) == "text" {
		cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: true}
		zl = zerolog.New(cw).With().Timestamp().CallerWithSkipFrameCount(callerSkip).Logger()
	} else {
		zl = zerolog.New(w).With().Timestamp().Logger()
	}
	defaultLogger = zl.Level(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Debug().Msgf(format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.Info().Msgf(format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Warn().Msgf(format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.Error().Msgf(format, args...)
}

// CronLogger adapts the default logger to the cron.Logger interface
// (Info and Error with alternating key/value pairs).
func CronLogger() cronLogger {
	return cronLogger{}
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	e := defaultLogger.Debug()
	appendPairs(e, keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	e := defaultLogger.Error().Err(err)
	appendPairs(e, keysAndValues).Msg("cron: " + msg)
}

func appendPairs(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}
