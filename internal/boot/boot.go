// Package boot sequences application startup: wait for the network,
// initialize the cloud store once, restore the saved session, and only
// then declare the process ready.
package boot

import (
	"context"
	"log"
	"os"
	"sync/atomic"

	"github.com/tasknest/tasknest/internal/netmon"
)

// State is a phase of the startup sequence.
type State int32

const (
	// Idle means Start has not been called.
	Idle State = iota
	// NetworkPending means startup is parked waiting for connectivity.
	NetworkPending
	// RemoteInitializing means the cloud store is being brought up.
	RemoteInitializing
	// SessionRestoring means the saved session is being re-established.
	SessionRestoring
	// Ready means startup finished; the app is usable, signed in or not.
	Ready
)

// String returns a human-readable phase name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case NetworkPending:
		return "network-pending"
	case RemoteInitializing:
		return "remote-initializing"
	case SessionRestoring:
		return "session-restoring"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Connectivity is the slice of the network monitor the sequencer uses.
type Connectivity interface {
	Available() bool
	Subscribe(l netmon.Listener)
	Unsubscribe(l netmon.Listener)
}

// RemoteInitializer brings up the cloud store connection.
type RemoteInitializer interface {
	Init(ctx context.Context) error
	Initialized() bool
}

// SessionRestorer re-establishes a persisted session.
type SessionRestorer interface {
	RestoreFromToken(ctx context.Context) bool
	AutoLogin(ctx context.Context) (bool, error)
}

// Sequencer drives the startup sequence. It is safe to share across
// goroutines; the advance path is guarded so that however many
// availability edges arrive, the cloud store is initialized exactly once.
type Sequencer struct {
	net     Connectivity
	remote  RemoteInitializer
	session SessionRestorer
	logger  *log.Logger

	state     atomic.Int32
	advancing atomic.Bool
	ready     chan struct{}
}

// New creates a sequencer in the Idle state.
//
// If logger is nil, a default logger writing to stderr is used.
func New(net Connectivity, remote RemoteInitializer, session SessionRestorer, logger *log.Logger) *Sequencer {
	if logger == nil {
		logger = log.New(os.Stderr, "[boot] ", log.LstdFlags)
	}
	return &Sequencer{
		net:     net,
		remote:  remote,
		session: session,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// State reports the current phase.
func (s *Sequencer) State() State {
	return State(s.state.Load())
}

// Ready returns a channel closed when the sequence reaches Ready.
func (s *Sequencer) Ready() <-chan struct{} {
	return s.ready
}

// Start kicks off the sequence. If the network is already up the
// sequence advances immediately on a background goroutine; otherwise it
// parks until the next availability edge. Start is a no-op after the
// first call.
func (s *Sequencer) Start(ctx context.Context) {
	if !s.state.CompareAndSwap(int32(Idle), int32(NetworkPending)) {
		return
	}

	s.net.Subscribe(s)
	if s.net.Available() {
		go s.advance(ctx)
	} else {
		s.logger.Printf("Startup waiting for network")
	}
}

// OnAvailable advances the sequence on a connectivity edge. The
// sequencer subscribes itself and removes itself on the first edge it
// acts on, so late edges land on nothing.
func (s *Sequencer) OnAvailable() {
	go s.advance(context.Background())
}

// OnLost is ignored; once startup is past the network wait it finishes
// regardless of later connectivity changes.
func (s *Sequencer) OnLost() {}

// advance runs the remainder of the sequence. The atomic guard admits
// exactly one caller; concurrent availability edges and the Start fast
// path all collapse into a single pass.
func (s *Sequencer) advance(ctx context.Context) {
	if !s.advancing.CompareAndSwap(false, true) {
		return
	}

	s.net.Unsubscribe(s)

	s.state.Store(int32(RemoteInitializing))
	if err := s.remote.Init(ctx); err != nil {
		// One attempt per process; syncs against an uninitialized store
		// report Retry and the next daemon start tries again.
		s.logger.Printf("Cloud store init failed, continuing degraded: %v", err)
	}

	s.state.Store(int32(SessionRestoring))
	if !s.session.RestoreFromToken(ctx) {
		ok, err := s.session.AutoLogin(ctx)
		switch {
		case err != nil:
			s.logger.Printf("Automatic login failed: %v", err)
		case ok:
			s.logger.Printf("Session restored via saved credentials")
		default:
			s.logger.Printf("No saved session; continuing signed out")
		}
	} else {
		s.logger.Printf("Session restored from saved token")
	}

	s.state.Store(int32(Ready))
	close(s.ready)
	s.logger.Printf("Startup complete")
}
