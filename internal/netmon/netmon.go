// Package netmon reports network connectivity and edge-triggered
// transitions between the online and offline states.
//
// Availability is a hint, not a lease: a true result from Available says
// nothing about whether the very next network operation will still
// succeed. Consumers that care about failures must handle them at the
// call site regardless.
package netmon

import (
	"context"
	"log"
	"net"
	"os"
	"sync"
	"time"
)

// Listener receives connectivity transition callbacks. A listener is
// invoked only when the state actually changes; repeated identical
// observations are deduplicated.
type Listener interface {
	OnAvailable()
	OnLost()
}

// Probe reports whether the network currently looks reachable.
type Probe func(ctx context.Context) bool

// DialProbe returns a Probe that attempts a TCP connection to addr.
func DialProbe(addr string, timeout time.Duration) Probe {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// Monitor polls a connectivity probe and dispatches transition events.
type Monitor struct {
	probe    Probe
	interval time.Duration
	logger   *log.Logger

	mu        sync.Mutex
	listeners map[Listener]struct{}
	available bool
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a monitor around the given probe. The initial state is
// offline until the first probe runs.
//
// If logger is nil, a default logger writing to stderr is used.
func New(probe Probe, interval time.Duration, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}
	return &Monitor{
		probe:     probe,
		interval:  interval,
		logger:    logger,
		listeners: make(map[Listener]struct{}),
	}
}

// Start begins the poll loop. Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.poll(ctx)
}

// Stop halts the poll loop and waits for it to exit. Stopping a stopped
// monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
}

// Available probes right now and returns the result. The observation is
// routed through the same transition path as the poll loop, so listeners
// still see every edge exactly once.
func (m *Monitor) Available() bool {
	ok := m.probe(context.Background())
	m.setAvailable(ok)
	return ok
}

// Subscribe registers a listener for transition events. Subscribing an
// already subscribed listener is a no-op.
func (m *Monitor) Subscribe(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[l] = struct{}{}
}

// Unsubscribe removes a listener. Removing an absent listener is a no-op.
func (m *Monitor) Unsubscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, l)
}

func (m *Monitor) poll(ctx context.Context) {
	defer close(m.done)

	// Establish the initial state before the first tick.
	m.setAvailable(m.probe(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.setAvailable(m.probe(ctx))
		}
	}
}

// setAvailable records an observation and notifies listeners on change.
// Callbacks run outside the lock so a listener may unsubscribe itself
// from within its own invocation.
func (m *Monitor) setAvailable(available bool) {
	m.mu.Lock()
	if m.available == available {
		m.mu.Unlock()
		return
	}
	m.available = available

	snapshot := make([]Listener, 0, len(m.listeners))
	for l := range m.listeners {
		snapshot = append(snapshot, l)
	}
	m.mu.Unlock()

	if available {
		m.logger.Printf("Network available")
	} else {
		m.logger.Printf("Network lost")
	}

	for _, l := range snapshot {
		if available {
			l.OnAvailable()
		} else {
			l.OnLost()
		}
	}
}
