// Package sched runs background jobs gated on network connectivity.
//
// Two shapes of work are supported: named periodic units that fire on an
// interval whenever the network is up, and one-shot runs that execute
// immediately when online or park until the next availability edge when
// offline. The scheduler owns the retry cadence; jobs themselves never
// loop or back off internally.
package sched

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tasknest/tasknest/internal/netmon"
)

// Job is a unit of schedulable work. The context is cancelled when the
// unit is cancelled or the scheduler stops; a job that is already
// running when that happens is allowed to finish.
type Job func(ctx context.Context)

// Connectivity is the slice of the network monitor the scheduler uses.
type Connectivity interface {
	Available() bool
	Subscribe(l netmon.Listener)
	Unsubscribe(l netmon.Listener)
}

// Scheduler dispatches connectivity-gated jobs by name.
type Scheduler struct {
	net    Connectivity
	logger *log.Logger

	mu    sync.Mutex
	units map[string]*unit
	wg    sync.WaitGroup
}

type unit struct {
	cancel context.CancelFunc
}

// New creates a scheduler bound to the given connectivity source.
//
// If logger is nil, a default logger writing to stderr is used.
func New(net Connectivity, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stderr, "[sched] ", log.LstdFlags)
	}
	return &Scheduler{
		net:    net,
		logger: logger,
		units:  make(map[string]*unit),
	}
}

// RegisterPeriodic installs a named unit that runs job every interval
// while the network is available. Ticks that land while offline are
// skipped, not queued. Registering a name that already exists replaces
// the previous unit; its in-flight run, if any, completes.
func (s *Scheduler) RegisterPeriodic(ctx context.Context, name string, interval time.Duration, job Job) {
	ctx, cancel := context.WithCancel(ctx)
	s.install(name, &unit{cancel: cancel})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !s.net.Available() {
					s.logger.Printf("Skipping %q: offline", name)
					continue
				}
				job(ctx)
			}
		}
	}()
}

// RunOnce executes job under the given name. When the network is up the
// job starts immediately on its own goroutine. When it is down, the run
// parks until the next availability edge and then fires exactly once.
// A parked run is discarded by Cancel or a later registration of the
// same name.
func (s *Scheduler) RunOnce(ctx context.Context, name string, job Job) {
	ctx, cancel := context.WithCancel(ctx)
	s.install(name, &unit{cancel: cancel})

	if s.net.Available() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			job(ctx)
		}()
		return
	}

	s.logger.Printf("Deferring %q until the network returns", name)
	w := &waiter{sched: s, ctx: ctx, job: job}
	s.net.Subscribe(w)

	// The edge may never come; tear the waiter down on cancellation.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		s.net.Unsubscribe(w)
	}()
}

// Cancel removes the named unit. An in-flight run completes; future
// runs, including a parked one-shot, do not happen. Cancelling an
// unknown name is a no-op.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	u, ok := s.units[name]
	delete(s.units, name)
	s.mu.Unlock()
	if ok {
		u.cancel()
	}
}

// Stop cancels every unit and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	units := s.units
	s.units = make(map[string]*unit)
	s.mu.Unlock()

	for _, u := range units {
		u.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) install(name string, u *unit) {
	s.mu.Lock()
	prev, ok := s.units[name]
	s.units[name] = u
	s.mu.Unlock()
	if ok {
		prev.cancel()
	}
}

// waiter is a one-shot connectivity listener that removes itself on the
// first availability edge. The atomic guard keeps a racing edge and
// cancellation from double-firing the job.
type waiter struct {
	sched *Scheduler
	ctx   context.Context
	job   Job
	fired atomic.Bool
}

func (w *waiter) OnAvailable() {
	if !w.fired.CompareAndSwap(false, true) {
		return
	}
	w.sched.net.Unsubscribe(w)
	if w.ctx.Err() != nil {
		return
	}
	w.sched.wg.Add(1)
	go func() {
		defer w.sched.wg.Done()
		w.job(w.ctx)
	}()
}

func (w *waiter) OnLost() {}
