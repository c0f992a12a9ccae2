package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog logger carrying component fields
type Logger struct {
	logger zerolog.Logger
}

// Fields represents log fields
type Fields map[string]interface{}

var (
	// Default is the process-wide logger, built by Init
	Default *Logger
)

// Init builds Default from LOG_LEVEL and FEEDSCANNER_ENVIRONMENT
func Init() {
	level := getLogLevel()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	// stderr keeps posts printed on stdout clean
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	Default = New(zerolog.New(output).With().Timestamp().Str("app", "feedscanner").Logger())
	Default.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

func getLogLevel() zerolog.Level {
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		if os.Getenv("FEEDSCANNER_ENVIRONMENT") == "production" {
			return zerolog.InfoLevel
		}
		return zerolog.DebugLevel
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// New wraps a zerolog logger
func New(l zerolog.Logger) *Logger {
	return &Logger{logger: l}
}

func defaultLogger() *Logger {
	if Default == nil {
		Init()
	}
	return Default
}

// WithFields creates a new logger with fields
func (l *Logger) WithFields(fields Fields) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return New(ctx.Logger())
}

// WithField creates a new logger with a single field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return New(l.logger.With().Interface(key, value).Logger())
}

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Info logs a printf-style message on Default
func Info(format string, v ...interface{}) {
	defaultLogger().Info().Msgf(format, v...)
}

// Warn logs a printf-style warning on Default
func Warn(format string, v ...interface{}) {
	defaultLogger().Warn().Msgf(format, v...)
}

// IsDebugEnabled reports whether debug events are emitted
func IsDebugEnabled() bool {
	return defaultLogger().logger.GetLevel() <= zerolog.DebugLevel &&
		zerolog.GlobalLevel() <= zerolog.DebugLevel
}

func component(name string) *Logger {
	return defaultLogger().WithField("component", name)
}

// ForBackend creates a logger for a browsing backend
func ForBackend(backendName string) *Logger {
	return component("backend").WithField("backend", backendName)
}

// ForScanner creates a logger for feed navigation and scanning
func ForScanner() *Logger { return component("scanner") }

// ForWorker creates a logger for scan rounds
func ForWorker() *Logger { return component("worker") }

// ForPublisher creates a logger for the stream publisher
func ForPublisher() *Logger { return component("publisher") }

// ForCache creates a logger for the cache
func ForCache() *Logger { return component("cache") }

// ForStore creates a logger for the post archive
func ForStore() *Logger { return component("store") }

// LogError logs err for component with a printf-style message
func LogError(component string, err error, format string, v ...interface{}) {
	defaultLogger().Error().
		Str("component", component).
		Err(err).
		Msg(fmt.Sprintf(format, v...))
}

// LogInfo logs an info message for component
func LogInfo(component string, format string, v ...interface{}) {
	defaultLogger().Info().
		Str("component", component).
		Msg(fmt.Sprintf(format, v...))
}
