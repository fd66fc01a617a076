package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Entry is a logger carrying fixed fields, typically a component name.
type Entry = logrus.Entry

// Fields is a set of structured log fields.
type Fields = logrus.Fields

var rootLogger = newRoot(os.Stderr)

func newRoot(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(PlainFormatter{})
	l.SetLevel(logrus.WarnLevel)
	return l
}

// Options controls where and how much the process logs.
type Options struct {
	Level string // logrus level name; empty keeps the current level
	File  string // rotated log file; empty logs to stderr
}

// Configure applies opts to the root logger. The returned closer releases the
// log file, if any.
func Configure(opts Options) (io.Closer, error) {
	if opts.Level != "" {
		lvl, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		rootLogger.SetLevel(lvl)
	}
	if opts.File == "" {
		return io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	rootLogger.SetOutput(lj)
	return lj, nil
}

// SetOutput redirects the root logger, mainly for tests.
func SetOutput(w io.Writer) {
	rootLogger.SetOutput(w)
}

// SetLevel changes the root level.
func SetLevel(lvl logrus.Level) {
	rootLogger.SetLevel(lvl)
}

// Named returns an entry tagged with the given component.
func Named(component string) *Entry {
	entry := logrus.NewEntry(rootLogger)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return entry
}

// PlainFormatter renders: [timestamp] [LEVEL] [component] message k=v ...
type PlainFormatter struct{}

// Format implements logrus.Formatter.
func (PlainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if entry == nil {
		return []byte{}, nil
	}
	parts := make([]string, 0, 5)
	parts = append(parts, fmt.Sprintf("[%s]", entry.Time.UTC().Format(time.RFC3339Nano)))
	parts = append(parts, fmt.Sprintf("[%s]", strings.ToUpper(entry.Level.String())))
	if c, ok := entry.Data["component"].(string); ok && c != "" {
		parts = append(parts, fmt.Sprintf("[%s]", c))
	}
	parts = append(parts, entry.Message)
	if f := formatFields(entry.Data); f != "" {
		parts = append(parts, f)
	}
	return []byte(strings.Join(parts, " ") + "\n"), nil
}

func formatFields(fields logrus.Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "component" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
