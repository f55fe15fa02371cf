// Package crash persists a marker when the process dies in a panic so
// the next run can tell the user what happened.
package crash

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"
)

// Marker describes a crash from a previous run.
type Marker struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	At      int64  `json:"at"` // Unix milliseconds
}

// Time returns the crash timestamp.
func (m *Marker) Time() time.Time {
	return time.UnixMilli(m.At)
}

// Store reads and writes the crash marker file.
type Store struct {
	path   string
	logger *log.Logger
}

// NewStore creates a marker store at path.
//
// If logger is nil, a default logger writing to stderr is used.
func NewStore(path string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[crash] ", log.LstdFlags)
	}
	return &Store{path: path, logger: logger}
}

// Capture is meant to run deferred at the top of main. On a panic it
// logs the failure, persists the marker, and exits nonzero; without a
// panic it does nothing.
func (s *Store) Capture() {
	r := recover()
	if r == nil {
		return
	}
	s.logger.Printf("PANIC: %v", r)
	s.Record(r, debug.Stack())
	os.Exit(2)
}

// Record persists a marker for the given panic value. Persistence
// failures are logged and swallowed; a crash report must never mask the
// crash itself.
func (s *Store) Record(v any, stack []byte) {
	m := Marker{
		Message: fmt.Sprint(v),
		Stack:   string(stack),
		At:      time.Now().UnixMilli(),
	}
	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		s.logger.Printf("Failed to encode crash marker: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.logger.Printf("Failed to create crash marker directory: %v", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.logger.Printf("Failed to write crash marker: %v", err)
	}
}

// CheckPrevious returns the marker left by a previous run, clearing it
// so it is reported once. Returns nil when there is no marker; an
// unreadable or corrupt marker is discarded with a logged warning.
func (s *Store) CheckPrevious() *Marker {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Printf("WARNING: failed to read crash marker: %v", err)
		}
		return nil
	}
	if err := os.Remove(s.path); err != nil {
		s.logger.Printf("WARNING: failed to clear crash marker: %v", err)
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Printf("WARNING: discarding corrupt crash marker: %v", err)
		return nil
	}
	return &m
}
