// Package logging builds the process-wide structured logger.
// Services receive a component-scoped *Entry from the composition root instead of using a global.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/ndewijer/networth-tracker/internal/config"
)

// Fields type alias for logrus.Fields to maintain compatibility
type Fields map[string]interface{}

// Logger wraps logrus.Logger
type Logger struct {
	*logrus.Logger
}

// Entry wraps logrus.Entry
type Entry struct {
	*logrus.Entry
}

// New creates a JSON logger writing to stdout, or to a rotated file when cfg.File is set.
func New(cfg config.LogConfig) (*Logger, error) {
	logger := logrus.New()
	logger.SetReportCaller(true)

	lvl, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	callerPrettyfier := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: callerPrettyfier,
	})

	out, err := output(cfg)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)

	return &Logger{Logger: logger}, nil
}

func output(cfg config.LogConfig) (io.Writer, error) {
	switch cfg.File {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if cfg.MaxAgeDays > 0 {
		return &lumberjack.Logger{
			Filename: cfg.File,
			MaxAge:   cfg.MaxAgeDays,
			MaxSize:  cfg.MaxSizeMB,
			Compress: true,
		}, nil
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //#nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to open log file '%s': %w", cfg.File, err)
	}
	return file, nil
}

// Discard returns a logger that drops everything. Used by tests and as a nil-safe default.
func Discard() *Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Logger{Logger: logger}
}

func (l *Logger) WithComponent(component string) *Entry {
	return &Entry{Entry: l.Logger.WithField("component", component)}
}

func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{Entry: l.Logger.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithComponent(component string) *Entry {
	return &Entry{Entry: e.Entry.WithField("component", component)}
}

func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{Entry: e.Entry.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: e.Entry.WithError(err)}
}

// Component returns a component-scoped entry from l, or a discarding one when l is nil.
func Component(l *Logger, name string) *Entry {
	if l == nil {
		l = Discard()
	}
	return l.WithComponent(name)
}
