// Package logging builds the application's loggers.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a prefixed logger writing to w.
func New(w io.Writer, prefix string) *log.Logger {
	return log.New(w, "["+prefix+"] ", log.LstdFlags)
}

// NewStderr returns a prefixed logger writing to stderr.
func NewStderr(prefix string) *log.Logger {
	return New(os.Stderr, prefix)
}

// NewRotating returns a prefixed logger writing to path with size-based
// rotation, for long-running daemon processes. The returned closer
// flushes and releases the underlying file.
func NewRotating(path, prefix string) (*log.Logger, io.Closer) {
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return New(out, prefix), out
}
