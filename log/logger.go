// Package log provides the category aware logger used across browserbench.
package log

import (
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger logs messages under a category, such as "cdp:send" or "spaceport".
type Logger struct {
	Log            *logrus.Logger
	mu             sync.Mutex
	lastLogCall    int64
	categoryFilter *regexp.Regexp
}

// NewNullLogger will create a logger where log lines will
// be discarded and not logged anywhere.
func NewNullLogger() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return New(log, nil)
}

// New creates a new logger.
func New(logger *logrus.Logger, categoryFilter *regexp.Regexp) *Logger {
	return &Logger{
		Log:            logger,
		categoryFilter: categoryFilter,
	}
}

func (l *Logger) Tracef(category string, msg string, args ...any) {
	l.Logf(logrus.TraceLevel, category, msg, args...)
}

func (l *Logger) Debugf(category string, msg string, args ...any) {
	l.Logf(logrus.DebugLevel, category, msg, args...)
}

func (l *Logger) Errorf(category string, msg string, args ...any) {
	l.Logf(logrus.ErrorLevel, category, msg, args...)
}

func (l *Logger) Infof(category string, msg string, args ...any) {
	l.Logf(logrus.InfoLevel, category, msg, args...)
}

func (l *Logger) Warnf(category string, msg string, args ...any) {
	l.Logf(logrus.WarnLevel, category, msg, args...)
}

// Logf logs msg at the given level if the level is enabled and the category
// passes the category filter.
func (l *Logger) Logf(level logrus.Level, category string, msg string, args ...any) {
	if l == nil {
		return
	}
	if l.Log != nil && l.Log.GetLevel() < level {
		return
	}
	if l.categoryFilter != nil && !l.categoryFilter.MatchString(category) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UnixNano() / int64(time.Millisecond)
	elapsed := now - l.lastLogCall
	if l.lastLogCall == 0 {
		elapsed = 0
	}
	l.lastLogCall = now

	if l.Log == nil {
		magenta := color.New(color.FgMagenta).SprintFunc()
		fmt.Printf("%s: %s - %s ms\n", magenta(category), fmt.Sprintf(msg, args...), magenta(elapsed))
		return
	}
	l.Log.WithFields(logrus.Fields{
		"category": category,
		"elapsed":  fmt.Sprintf("%d ms", elapsed),
	}).Logf(level, msg, args...)
}

// SetLevel sets the logger level from a level string.
// Accepted values are the logrus level names, e.g. "debug" or "warning".
func (l *Logger) SetLevel(level string) error {
	pl, err := logrus.ParseLevel(level)
	if err != nil {
		return err //nolint:wrapcheck
	}
	if l == nil || l.Log == nil {
		return nil
	}
	l.Log.SetLevel(pl)
	return nil
}

// SetCategoryFilter only lets through the categories matching the filter.
// An empty filter disables filtering.
func (l *Logger) SetCategoryFilter(filter string) error {
	var re *regexp.Regexp
	if filter != "" {
		var err error
		if re, err = regexp.Compile(filter); err != nil {
			return fmt.Errorf("compiling category filter %q: %w", filter, err)
		}
	}
	if l == nil {
		return nil
	}
	l.categoryFilter = re
	return nil
}

// DebugMode returns true if the logger level is set to Debug or higher.
func (l *Logger) DebugMode() bool {
	if l == nil || l.Log == nil {
		return false
	}
	return l.Log.GetLevel() >= logrus.DebugLevel
}
