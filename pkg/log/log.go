package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Emojis for different log types
const (
	infoEmoji      = "ℹ️ "
	successEmoji   = "✅ "
	errorEmoji     = "❌ "
	warnEmoji      = "⚠️ "
	stepEmoji      = "👉 "
	debugEmoji     = "🔍 "
	loadingEmoji   = "⏳ "
	commitEmoji    = "📦 "
	changelogEmoji = "📝 "
)

var (
	infoColor      = color.New(color.FgBlue)
	successColor   = color.New(color.FgGreen, color.Bold)
	errorColor     = color.New(color.FgRed, color.Bold)
	warnColor      = color.New(color.FgYellow, color.Bold)
	stepColor      = color.New(color.FgCyan)
	debugColor     = color.New(color.Faint)
	loadingColor   = color.New(color.FgMagenta)
	commitColor    = color.New(color.FgWhite)
	changelogColor = color.New(color.FgHiGreen)
)

// wrapWidth is the column at which long single-line messages are folded.
const wrapWidth = 100

// Logger struct with debug flag
type Logger struct {
	debug bool
	mu    sync.Mutex
	out   io.Writer
}

// New creates a new logger instance writing to stdout
func New(debug bool) *Logger {
	return NewWithWriter(os.Stdout, debug)
}

// NewWithWriter creates a logger that writes to w. Used by tests and by the
// gorm adapter.
func NewWithWriter(w io.Writer, debug bool) *Logger {
	return &Logger{debug: debug, out: w}
}

// formatMessage adds padding and wraps long lines
func formatMessage(msg string) string {
	lines := strings.Split(msg, "\n")
	var formatted []string

	for _, line := range lines {
		if len(line) <= wrapWidth {
			formatted = append(formatted, line)
			continue
		}

		words := strings.Fields(line)
		current := ""
		for _, word := range words {
			if len(current)+len(word)+1 > wrapWidth && current != "" {
				formatted = append(formatted, current)
				current = word
				continue
			}
			if current == "" {
				current = word
			} else {
				current += " " + word
			}
		}
		if current != "" {
			formatted = append(formatted, current)
		}
	}

	return strings.Join(formatted, "\n   ")
}

func (l *Logger) print(c *color.Color, emoji, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	c.Fprintln(l.out, emoji+formatMessage(msg))
}

// Info prints an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.print(infoColor, infoEmoji, format, args...)
}

// Success prints a success message
func (l *Logger) Success(format string, args ...interface{}) {
	l.print(successColor, successEmoji, format, args...)
}

// Error prints an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.print(errorColor, errorEmoji, format, args...)
}

// Warning prints a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.print(warnColor, warnEmoji, format, args...)
}

// Step prints a step message
func (l *Logger) Step(format string, args ...interface{}) {
	l.print(stepColor, stepEmoji, format, args...)
}

// Loading prints a message for a long-running operation that just started
func (l *Logger) Loading(format string, args ...interface{}) {
	l.print(loadingColor, loadingEmoji, format, args...)
}

// Debug prints a debug message if debug is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.print(debugColor, debugEmoji, format, args...)
}

// Commit prints a commit-ingestion message
func (l *Logger) Commit(format string, args ...interface{}) {
	l.print(commitColor, commitEmoji, format, args...)
}

// Changelog prints a changelog-related message
func (l *Logger) Changelog(format string, args ...interface{}) {
	l.print(changelogColor, changelogEmoji, format, args...)
}

// IsDebug returns whether debug logging is enabled
func (l *Logger) IsDebug() bool {
	return l.debug
}

// GormWriter adapts the logger to gorm's logger.Writer. SQL traces are only
// shown in debug mode.
type GormWriter struct {
	Logger *Logger
}

// Printf implements gorm.io/gorm/logger.Writer.
func (w GormWriter) Printf(format string, args ...interface{}) {
	w.Logger.Debug(format, args...)
}
