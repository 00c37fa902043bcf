package logger

import (
	"io"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/sensorsim/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the global logger with a console writer
func Init(level LogLevel, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(level)
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// ParseLevel maps a configured level name to a LogLevel
func ParseLevel(name string) (LogLevel, bool) {
	switch name {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warning", "warn":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	default:
		return InfoLevel, false
	}
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(e *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// zlogger is a Logger backed by a zerolog.Logger. The global logger is used
// when base is nil so that Init affects loggers handed out before it ran.
type zlogger struct {
	base *zerolog.Logger
}

// Default returns a Logger that writes through the global logger
func Default() Logger {
	return &zlogger{}
}

// New returns a Logger writing JSON lines to w at the given level
func New(w io.Writer, level LogLevel) Logger {
	l := zerolog.New(w).Level(zerolog.Level(level)).With().Timestamp().Logger()
	return &zlogger{base: &l}
}

// Nop returns a Logger that discards everything
func Nop() Logger {
	l := zerolog.Nop()
	return &zlogger{base: &l}
}

func (z *zlogger) logger() *zerolog.Logger {
	if z.base == nil {
		return &log
	}
	return z.base
}

func (z *zlogger) Debug() *LogEvent { return &LogEvent{z.logger().Debug()} }
func (z *zlogger) Info() *LogEvent  { return &LogEvent{z.logger().Info()} }
func (z *zlogger) Warn() *LogEvent  { return &LogEvent{z.logger().Warn()} }
func (z *zlogger) Error() *LogEvent { return &LogEvent{z.logger().Error()} }

func (z *zlogger) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(z.logger().Error(), err)
}

func (z *zlogger) With(key, value string) Logger {
	l := z.logger().With().Str(key, value).Logger()
	return &zlogger{base: &l}
}
