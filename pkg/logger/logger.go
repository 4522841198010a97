// Package logger wraps logrus with the component-scoped conventions used
// across the portal: every component owns a *Logger tagged with its name.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config configures a root logger.
type Config struct {
	Level  string
	Format string // "json" or "text"
	Output io.Writer
}

// Logger is a component-scoped logrus entry.
type Logger struct {
	*logrus.Entry
}

// New builds a root logger from cfg.
func New(cfg Config) *Logger {
	base := logrus.New()
	if cfg.Output != nil {
		base.SetOutput(cfg.Output)
	} else {
		base.SetOutput(os.Stderr)
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &Logger{Entry: logrus.NewEntry(base)}
}

// NewDefault returns an info-level text logger for the named component.
func NewDefault(component string) *Logger {
	return New(Config{Level: "info"}).Named(component)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return New(Config{Level: "panic", Output: io.Discard})
}

// Named returns a child logger tagged with the component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", component)}
}

// SetLevel adjusts the level of the underlying logger.
func (l *Logger) SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	l.Entry.Logger.SetLevel(parsed)
}

// With returns a child logger carrying an extra field.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}
