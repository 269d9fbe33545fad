package syncer

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/kv"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
	"github.com/lndambition2025-ops/fiscops/internal/store"
)

// fakeScheduler records scheduled calls and runs the latest one on Fire.
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled int
	stopped   int
	last      *fakeTask
}

type fakeTask struct {
	s       *fakeScheduler
	f       func()
	stopped bool
	fired   bool
}

func (s *fakeScheduler) After(_ time.Duration, f func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled++
	s.last = &fakeTask{s: s, f: f}
	return s.last
}

func (t *fakeTask) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.s.stopped++
	return true
}

// Fire runs the most recent task if it is still pending.
func (s *fakeScheduler) Fire() bool {
	s.mu.Lock()
	t := s.last
	if t == nil || t.stopped || t.fired {
		s.mu.Unlock()
		return false
	}
	t.fired = true
	s.mu.Unlock()
	t.f()
	return true
}

// recordingSaver remembers the first taxpayer name of every saved dataset.
type recordingSaver struct {
	mu      sync.Mutex
	saved   []string
	err     error
	block   chan struct{}
	started chan struct{}
	active  int
	maxSeen int
}

func (r *recordingSaver) Save(_ context.Context, ds db.Dataset) error {
	r.mu.Lock()
	r.active++
	if r.active > r.maxSeen {
		r.maxSeen = r.active
	}
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active--
	r.saved = append(r.saved, ds.Taxpayers[0].Name)
	return r.err
}

func (r *recordingSaver) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.saved...)
}

func named(name string) db.Dataset {
	return db.Dataset{Taxpayers: []db.Taxpayer{{ID: "T1", Name: name}}, WeekPlan: json.RawMessage(`{}`)}
}

func TestBurstCollapsesToOneSave(t *testing.T) {
	sched := &fakeScheduler{}
	saver := &recordingSaver{}
	s := New(saver, sched, LocalDebounce, zap.NewNop())

	for _, name := range []string{"v1", "v2", "v3", "v4", "v5"} {
		s.Trigger(named(name))
	}
	if sched.scheduled != 5 || sched.stopped != 4 {
		t.Errorf("scheduled %d stopped %d, want 5 and 4", sched.scheduled, sched.stopped)
	}
	if len(saver.names()) != 0 {
		t.Fatal("saved before the window expired")
	}

	sched.Fire()

	got := saver.names()
	if len(got) != 1 || got[0] != "v5" {
		t.Errorf("saved %v, want [v5]", got)
	}
	select {
	case r := <-s.Results():
		if r.Err != nil {
			t.Errorf("result err = %v", r.Err)
		}
	default:
		t.Error("no result published")
	}
	if s.Pending() {
		t.Error("snapshot still pending after save")
	}
}

func TestBurstWritesLocalStoreOnce(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	local := store.NewLocal(mem, settings.Defaults(), rand.New(rand.NewSource(1)), zap.NewNop())
	sched := &fakeScheduler{}
	s := New(local, sched, LocalDebounce, zap.NewNop())

	for _, name := range []string{"a", "b", "c", "d", "final"} {
		s.Trigger(named(name))
	}
	sched.Fire()

	if mem.WriteCount() != 1 {
		t.Fatalf("writes = %d, want 1", mem.WriteCount())
	}
	ds, err := local.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Taxpayers[0].Name != "final" {
		t.Errorf("persisted %q, want final", ds.Taxpayers[0].Name)
	}
}

func TestStaleTimerCallbackIsIgnored(t *testing.T) {
	sched := &fakeScheduler{}
	saver := &recordingSaver{}
	s := New(saver, sched, LocalDebounce, zap.NewNop())

	s.Trigger(named("v1"))
	first := sched.last
	// The first timer has already fired and is waiting for the lock while
	// a second trigger replaces it.
	first.fired = true
	s.Trigger(named("v2"))
	first.f()

	if got := saver.names(); len(got) != 0 {
		t.Fatalf("stale callback saved %v before the new window expired", got)
	}
	if !s.Pending() {
		t.Fatal("pending snapshot lost")
	}

	if !sched.Fire() {
		t.Fatal("current timer was cleared by the stale callback")
	}
	if got := saver.names(); len(got) != 1 || got[0] != "v2" {
		t.Errorf("saved %v, want [v2]", got)
	}
}

func TestTriggerCopiesDataset(t *testing.T) {
	sched := &fakeScheduler{}
	saver := &recordingSaver{}
	s := New(saver, sched, LocalDebounce, zap.NewNop())

	ds := named("before")
	s.Trigger(ds)
	ds.Taxpayers[0].Name = "after"
	sched.Fire()

	if got := saver.names(); got[0] != "before" {
		t.Errorf("saved %q, want snapshot taken at trigger", got[0])
	}
}

func TestSavesNeverOverlap(t *testing.T) {
	sched := &fakeScheduler{}
	saver := &recordingSaver{block: make(chan struct{}), started: make(chan struct{}, 4)}
	s := New(saver, sched, RemoteDebounce, zap.NewNop())

	s.Trigger(named("first"))
	go sched.Fire()
	<-saver.started

	// Window expires while the first save is still running.
	s.Trigger(named("second"))
	sched.Fire()

	saver.block <- struct{}{}
	<-saver.started
	saver.block <- struct{}{}

	for i := 0; i < 2; i++ {
		select {
		case <-s.Results():
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for result %d", i+1)
		}
	}
	got := saver.names()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("saved %v, want [first second]", got)
	}
	if saver.maxSeen != 1 {
		t.Errorf("max concurrent saves = %d, want 1", saver.maxSeen)
	}
}

func TestFlushSavesImmediately(t *testing.T) {
	sched := &fakeScheduler{}
	saver := &recordingSaver{}
	s := New(saver, sched, LocalDebounce, zap.NewNop())

	s.Trigger(named("pending"))
	s.Flush(context.Background())

	if got := saver.names(); len(got) != 1 || got[0] != "pending" {
		t.Errorf("saved %v, want [pending]", got)
	}
	if sched.Fire() {
		t.Error("timer still armed after Flush")
	}

	// Nothing pending: Flush is a no-op.
	s.Flush(context.Background())
	if len(saver.names()) != 1 {
		t.Error("Flush without pending snapshot saved again")
	}
}

func TestSaveErrorIsReported(t *testing.T) {
	sched := &fakeScheduler{}
	saver := &recordingSaver{err: errors.New("network down")}
	s := New(saver, sched, RemoteDebounce, zap.NewNop())

	s.Trigger(named("x"))
	sched.Fire()

	r := <-s.Results()
	if r.Err == nil || r.Err.Error() != "network down" {
		t.Errorf("result err = %v, want network down", r.Err)
	}
}

func TestCloseDropsPending(t *testing.T) {
	sched := &fakeScheduler{}
	saver := &recordingSaver{}
	s := New(saver, sched, LocalDebounce, zap.NewNop())

	s.Trigger(named("x"))
	s.Close()
	sched.Fire()
	s.Trigger(named("y"))

	if len(saver.names()) != 0 {
		t.Errorf("saved %v after Close", saver.names())
	}
	if s.Pending() {
		t.Error("pending after Close")
	}
}

func TestRealSchedulerLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	saver := &recordingSaver{}
	s := New(saver, nil, 10*time.Millisecond, zap.NewNop())
	s.Trigger(named("a"))
	s.Trigger(named("b"))

	select {
	case <-s.Results():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced save")
	}
	s.Close()

	if got := saver.names(); len(got) != 1 || got[0] != "b" {
		t.Errorf("saved %v, want [b]", got)
	}
}
