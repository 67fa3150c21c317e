// Package logging adapts logrus to the gateway Logger interface.
package logging

import (
	"io"
	"os"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/sirupsen/logrus"
)

type Logger struct {
	entry *logrus.Entry
}

func NewLogger(entry *logrus.Entry) *Logger {
	return &Logger{entry: entry}
}

// New builds a logger writing to stdout. Production uses JSON, anything else
// uses text with full timestamps.
func New(level, appEnv string) *Logger {
	return NewWithWriter(os.Stdout, level, appEnv)
}

func NewWithWriter(w io.Writer, level, appEnv string) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(ParseLevel(level))

	if appEnv == "production" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			DisableColors:    true,
			QuoteEmptyFields: true,
		})
	}
	return NewLogger(logrus.NewEntry(l))
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func (l *Logger) Debug(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

// ErrorErr logs err at error level with its rich error fields attached.
func (l *Logger) ErrorErr(msg string, err error) {
	l.entry.WithFields(ErrorFields(err)).WithError(err).Error(msg)
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keyvals ...any) *Logger {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields[key] = keyvals[i+1]
	}
	return &Logger{entry: l.entry.WithFields(fields)}
}

// Entry exposes the underlying logrus entry.
func (l *Logger) Entry() *logrus.Entry {
	return l.entry
}

// ErrorFields flattens the category, codes and metadata of a rich error.
func ErrorFields(err error) logrus.Fields {
	fields := logrus.Fields{}
	for _, attr := range goerrors.ToSlogAttributes(err) {
		fields[attr.Key] = attr.Value.Any()
	}
	return fields
}
