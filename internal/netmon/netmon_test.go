package netmon

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// flipProbe is a probe whose result tests can switch at will.
type flipProbe struct {
	up atomic.Bool
}

func (p *flipProbe) probe(context.Context) bool {
	return p.up.Load()
}

// recordingListener counts transition callbacks.
type recordingListener struct {
	mu        sync.Mutex
	available int
	lost      int
	onChange  chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{onChange: make(chan struct{}, 16)}
}

func (l *recordingListener) OnAvailable() {
	l.mu.Lock()
	l.available++
	l.mu.Unlock()
	l.onChange <- struct{}{}
}

func (l *recordingListener) OnLost() {
	l.mu.Lock()
	l.lost++
	l.mu.Unlock()
	l.onChange <- struct{}{}
}

func (l *recordingListener) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available, l.lost
}

func waitForEvent(t *testing.T, l *recordingListener) {
	t.Helper()
	select {
	case <-l.onChange:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transition callback")
	}
}

func testMonitor(p Probe) *Monitor {
	return New(p, 10*time.Millisecond, log.New(os.Stderr, "[test] ", 0))
}

func TestAvailableReflectsProbe(t *testing.T) {
	p := &flipProbe{}
	m := testMonitor(p.probe)

	if m.Available() {
		t.Error("expected offline")
	}
	p.up.Store(true)
	if !m.Available() {
		t.Error("expected online")
	}
}

func TestTransitionsAreEdgeTriggered(t *testing.T) {
	p := &flipProbe{}
	m := testMonitor(p.probe)
	l := newRecordingListener()
	m.Subscribe(l)

	m.Start(context.Background())
	defer m.Stop()

	p.up.Store(true)
	waitForEvent(t, l)

	// Keep the state identical across several poll cycles: no new events.
	time.Sleep(100 * time.Millisecond)
	avail, lost := l.counts()
	if avail != 1 {
		t.Errorf("expected exactly 1 OnAvailable, got %d", avail)
	}
	if lost != 0 {
		t.Errorf("expected no OnLost yet, got %d", lost)
	}

	p.up.Store(false)
	waitForEvent(t, l)
	avail, lost = l.counts()
	if lost != 1 {
		t.Errorf("expected exactly 1 OnLost, got %d", lost)
	}
	if avail != 1 {
		t.Errorf("OnAvailable count changed unexpectedly: %d", avail)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	p := &flipProbe{}
	m := testMonitor(p.probe)
	l := newRecordingListener()

	m.Subscribe(l)
	m.Subscribe(l) // double subscribe is a no-op

	p.up.Store(true)
	m.Available() // drives the transition

	waitForEvent(t, l)
	select {
	case <-l.onChange:
		t.Error("listener notified twice for one transition")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	p := &flipProbe{}
	m := testMonitor(p.probe)
	l := newRecordingListener()

	m.Unsubscribe(l) // absent: no-op, no panic
	m.Subscribe(l)
	m.Unsubscribe(l)
	m.Unsubscribe(l)

	p.up.Store(true)
	m.Available()

	select {
	case <-l.onChange:
		t.Error("unsubscribed listener was notified")
	case <-time.After(50 * time.Millisecond):
	}
}

// selfRemover unsubscribes itself from inside its own callback, the
// pattern the initialization sequencer relies on.
type selfRemover struct {
	m     *Monitor
	fired atomic.Int32
}

func (s *selfRemover) OnAvailable() {
	s.fired.Add(1)
	s.m.Unsubscribe(s)
}

func (s *selfRemover) OnLost() {}

func TestListenerMayUnsubscribeItself(t *testing.T) {
	p := &flipProbe{}
	m := testMonitor(p.probe)
	s := &selfRemover{m: m}
	m.Subscribe(s)

	// Several up/down cycles; the listener must only see the first edge.
	for i := 0; i < 3; i++ {
		p.up.Store(true)
		m.Available()
		p.up.Store(false)
		m.Available()
	}

	if got := s.fired.Load(); got != 1 {
		t.Errorf("self-removing listener fired %d times, want 1", got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	p := &flipProbe{}
	m := testMonitor(p.probe)

	m.Start(context.Background())
	m.Start(context.Background()) // no-op
	m.Stop()
	m.Stop() // no-op
}
