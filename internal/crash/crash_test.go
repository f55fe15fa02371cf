package crash

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crash.json")
	return NewStore(path, log.New(os.Stderr, "[test] ", 0))
}

func TestRecordAndCheckPrevious(t *testing.T) {
	s := testStore(t)

	before := time.Now().UnixMilli()
	s.Record("index out of range", []byte("goroutine 1 [running]:\nmain.main()"))

	m := s.CheckPrevious()
	if m == nil {
		t.Fatal("expected a marker from the previous run")
	}
	if m.Message != "index out of range" {
		t.Errorf("message = %q", m.Message)
	}
	if !strings.Contains(m.Stack, "main.main") {
		t.Errorf("stack not preserved: %q", m.Stack)
	}
	if m.At < before || m.At > time.Now().UnixMilli() {
		t.Errorf("timestamp %d out of range", m.At)
	}
}

func TestCheckPreviousClearsMarker(t *testing.T) {
	s := testStore(t)
	s.Record("boom", nil)

	if s.CheckPrevious() == nil {
		t.Fatal("first check should return the marker")
	}
	if s.CheckPrevious() != nil {
		t.Error("marker must be reported exactly once")
	}
}

func TestCheckPreviousWithoutMarker(t *testing.T) {
	s := testStore(t)
	if m := s.CheckPrevious(); m != nil {
		t.Errorf("expected nil without a marker, got %+v", m)
	}
}

func TestCorruptMarkerIsDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, log.New(os.Stderr, "[test] ", 0))
	if m := s.CheckPrevious(); m != nil {
		t.Errorf("corrupt marker should be discarded, got %+v", m)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt marker file should be removed")
	}
}
