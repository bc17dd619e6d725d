package memory

import "time"

// Observer receives collector events. Implementations must be fast and must
// not call back into the collector: OnProcessEvents and OnViolation run with
// the collector lock held.
type Observer interface {
	// OnProcessEvents records a batch of applied events.
	OnProcessEvents(applied int, duration time.Duration)

	// OnCollect records a finished pass, after finalizers ran.
	OnCollect(res *Result)

	// OnViolation records the protocol violation that poisoned the collector.
	OnViolation(err error)
}

// NoopObserver is a no-op implementation of Observer.
type NoopObserver struct{}

func (NoopObserver) OnProcessEvents(int, time.Duration) {}
func (NoopObserver) OnCollect(*Result)                  {}
func (NoopObserver) OnViolation(error)                  {}
