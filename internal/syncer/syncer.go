// Package syncer debounces dataset writes. Repeated triggers inside the
// window collapse into one save of the latest snapshot, and saves never
// overlap.
package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/db"
)

// Debounce windows per storage mode.
const (
	LocalDebounce  = 600 * time.Millisecond
	RemoteDebounce = 800 * time.Millisecond
)

// Saver persists a dataset.
type Saver interface {
	Save(ctx context.Context, ds db.Dataset) error
}

// Result reports one completed save.
type Result struct {
	At  time.Time
	Err error
}

// Syncer owns the debounce timer and the save guard.
type Syncer struct {
	saver    Saver
	sched    Scheduler
	debounce time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending *db.Dataset
	task    Task
	gen     uint64 // bumped whenever task is replaced or cancelled
	saving  bool
	closed  bool
	done    chan struct{} // closed when the running save finishes

	results chan Result
}

// New creates a Syncer. A nil scheduler uses RealScheduler.
func New(saver Saver, sched Scheduler, debounce time.Duration, log *zap.Logger) *Syncer {
	if sched == nil {
		sched = RealScheduler{}
	}
	return &Syncer{
		saver:    saver,
		sched:    sched,
		debounce: debounce,
		log:      log,
		now:      time.Now,
		results:  make(chan Result, 16),
	}
}

// Results delivers save outcomes. If nobody reads, outcomes are dropped.
func (s *Syncer) Results() <-chan Result {
	return s.results
}

// Trigger records ds as the state to persist and restarts the debounce
// window. ds is copied.
func (s *Syncer) Trigger(ds db.Dataset) {
	snap := ds.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = &snap
	if s.task != nil {
		s.task.Stop()
	}
	s.gen++
	gen := s.gen
	s.task = s.sched.After(s.debounce, func() { s.fire(gen) })
}

// Pending reports whether a snapshot is waiting to be saved.
func (s *Syncer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// fire runs when the debounce window of generation gen expires. A callback
// that lost the race with a newer Trigger, Flush or Close does nothing.
func (s *Syncer) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.task = nil
	if s.saving || s.pending == nil || s.closed {
		// A running save picks the snapshot up when it completes.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.drain(context.Background())
}

// drain saves pending snapshots until none is left. Only one drain runs at
// a time.
func (s *Syncer) drain(ctx context.Context) {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return
	}
	s.saving = true
	s.done = make(chan struct{})
	done := s.done

	for s.pending != nil && !s.closed {
		snap := *s.pending
		s.pending = nil
		s.mu.Unlock()

		err := s.saver.Save(ctx, snap)
		if err != nil {
			s.log.Error("sync failed", zap.Error(err))
		} else {
			s.log.Debug("sync done", zap.Int("taxpayers", len(snap.Taxpayers)))
		}
		s.publish(Result{At: s.now(), Err: err})

		s.mu.Lock()
		if s.task != nil {
			// A newer trigger is waiting for its own window.
			break
		}
	}
	s.saving = false
	s.mu.Unlock()
	close(done)
}

func (s *Syncer) publish(r Result) {
	select {
	case s.results <- r:
	default:
		s.log.Warn("sync result dropped", zap.Error(r.Err))
	}
}

// Flush cancels the debounce window and saves the pending snapshot now,
// waiting for any save already running.
func (s *Syncer) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.task != nil {
		s.task.Stop()
		s.task = nil
	}
	s.gen++
	s.mu.Unlock()

	for {
		s.drain(ctx)

		s.mu.Lock()
		if !s.saving && (s.pending == nil || s.closed) {
			s.mu.Unlock()
			return
		}
		saving, done := s.saving, s.done
		s.mu.Unlock()

		if saving {
			select {
			case <-done:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close stops the timer and drops any pending snapshot. Call Flush first to
// keep it. The results channel stays open.
func (s *Syncer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pending = nil
	s.gen++
	if s.task != nil {
		s.task.Stop()
		s.task = nil
	}
}
