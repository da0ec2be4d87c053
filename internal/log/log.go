// Package log defines tagship's leveled logger. The default implementation
// writes to stderr through the standard library logger; the CLI swaps in one
// that writes through the secret-masking writer.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
)

// Logger is the logging interface used across tagship.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
}

var logger Logger = New(os.Stderr, false)

// SetLogger replaces the package-level logger.
func SetLogger(l Logger) { logger = l }

// Default returns the package-level logger.
func Default() Logger { return logger }

// Errorf logs at error level.
func Errorf(format string, args ...any) { logger.Errorf(format, args...) }

// Warnf logs at warning level.
func Warnf(format string, args ...any) { logger.Warnf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...any) { logger.Infof(format, args...) }

// Debugf logs at debug level.
func Debugf(format string, args ...any) { logger.Debugf(format, args...) }

// WriterLogger prefixes each line with its level and writes it to an
// io.Writer. Debug lines are dropped unless Verbose is set.
type WriterLogger struct {
	Verbose bool
	l       *stdlog.Logger
}

// New returns a WriterLogger writing to w.
func New(w io.Writer, verbose bool) *WriterLogger {
	return &WriterLogger{Verbose: verbose, l: stdlog.New(w, "", 0)}
}

func (w *WriterLogger) Errorf(format string, args ...any) { w.out("error", format, args...) }
func (w *WriterLogger) Warnf(format string, args ...any)  { w.out("warn", format, args...) }
func (w *WriterLogger) Infof(format string, args ...any)  { w.out("", format, args...) }

func (w *WriterLogger) Debugf(format string, args ...any) {
	if w.Verbose {
		w.out("debug", format, args...)
	}
}

func (w *WriterLogger) out(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if level != "" {
		msg = level + ": " + msg
	}
	w.l.Println(msg)
}

// Discard is a Logger that drops everything.
type Discard struct{}

func (Discard) Errorf(string, ...any) {}
func (Discard) Warnf(string, ...any)  {}
func (Discard) Infof(string, ...any)  {}
func (Discard) Debugf(string, ...any) {}
