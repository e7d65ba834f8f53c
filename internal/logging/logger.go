// Package logging provides structured JSON logging for FieldSync.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents a log level.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// ParseLevel maps a config string to a LogLevel, defaulting to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch LogLevel(s) {
	case LevelDebug, "debug":
		return LevelDebug
	case LevelWarn, "warn":
		return LevelWarn
	case LevelError, "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides structured JSON logging.
type Logger struct {
	entry    *logrus.Logger
	out      io.Writer
	minLevel LogLevel
}

var (
	// global logger instance
	global *Logger
	once   sync.Once
	mu     sync.Mutex
)

// New creates a standalone logger writing JSON lines to out.
func New(out io.Writer, minLevel LogLevel) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(toLogrus(minLevel))
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})
	return &Logger{entry: l, out: out, minLevel: minLevel}
}

// Init initializes the global logger. Only the first call takes effect.
func Init(out io.Writer, minLevel LogLevel) {
	once.Do(func() {
		mu.Lock()
		global = New(out, minLevel)
		mu.Unlock()
	})
}

// Get returns the global logger instance.
func Get() *Logger {
	Init(os.Stdout, LevelInfo)
	mu.Lock()
	defer mu.Unlock()
	return global
}

func toLogrus(level LogLevel) logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *Logger) fields(err error, code string, context map[string]interface{}) *logrus.Entry {
	e := logrus.NewEntry(l.entry)
	if len(context) > 0 {
		e = e.WithField("context", context)
	}
	if err != nil {
		e = e.WithField("error", err.Error())
	}
	if code != "" {
		e = e.WithField("code", code)
	}
	return e
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, context ...map[string]interface{}) {
	l.fields(nil, "", merge(context...)).Debug(message)
}

// Info logs an info message.
func (l *Logger) Info(message string, context ...map[string]interface{}) {
	l.fields(nil, "", merge(context...)).Info(message)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, context ...map[string]interface{}) {
	l.fields(nil, "", merge(context...)).Warn(message)
}

// Error logs an error message.
func (l *Logger) Error(message string, err error, context ...map[string]interface{}) {
	l.fields(err, "", merge(context...)).Error(message)
}

// ErrorWithCode logs an error message tagged with a bridge error code.
func (l *Logger) ErrorWithCode(message, code string, err error, context ...map[string]interface{}) {
	l.fields(err, code, merge(context...)).Error(message)
}

// merge merges multiple context maps.
func merge(context ...map[string]interface{}) map[string]interface{} {
	if len(context) == 0 {
		return nil
	}
	if len(context) == 1 {
		return context[0]
	}
	merged := make(map[string]interface{})
	for _, c := range context {
		for k, v := range c {
			merged[k] = v
		}
	}
	return merged
}

// Convenience functions using global logger

func Debug(message string, context ...map[string]interface{}) {
	Get().Debug(message, context...)
}

func Info(message string, context ...map[string]interface{}) {
	Get().Info(message, context...)
}

func Warn(message string, context ...map[string]interface{}) {
	Get().Warn(message, context...)
}

func Error(message string, err error, context ...map[string]interface{}) {
	Get().Error(message, err, context...)
}

func ErrorWithCode(message, code string, err error, context ...map[string]interface{}) {
	Get().ErrorWithCode(message, code, err, context...)
}
