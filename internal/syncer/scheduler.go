package syncer

import "time"

// Task is a pending delayed call.
type Task interface {
	// Stop cancels the call. It reports whether the call was still pending.
	Stop() bool
}

// Scheduler runs a function once after a delay.
type Scheduler interface {
	After(d time.Duration, f func()) Task
}

// RealScheduler schedules on the runtime timer.
type RealScheduler struct{}

func (RealScheduler) After(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}
