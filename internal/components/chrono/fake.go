package chrono

import (
	"sync"
	"time"
)

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// FakeTime is a manually advanced TimeAPI for tests.
type FakeTime struct {
	mutex   sync.Mutex
	now     time.Time
	waits   []time.Duration
	waiters []fakeWaiter
	waited  chan time.Duration
}

func NewFakeTime(start time.Time) *FakeTime {
	return &FakeTime{
		now:    start,
		waited: make(chan time.Duration, 256),
	}
}

func (f *FakeTime) Now() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.now
}

func (f *FakeTime) After(d time.Duration) <-chan time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	ch := make(chan time.Time, 1)
	f.waits = append(f.waits, d)
	if d <= 0 {
		ch <- f.now
	} else {
		f.waiters = append(f.waiters, fakeWaiter{deadline: f.now.Add(d), ch: ch})
	}

	select {
	case f.waited <- d:
	default:
	}
	return ch
}

// Advance moves the clock forward, firing every wait whose deadline has passed.
func (f *FakeTime) Advance(d time.Duration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.now = f.now.Add(d)
	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.deadline.After(f.now) {
			w.ch <- f.now
			continue
		}
		remaining = append(remaining, w)
	}
	f.waiters = remaining
}

// Waits returns every duration passed to After so far.
func (f *FakeTime) Waits() []time.Duration {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]time.Duration(nil), f.waits...)
}

// Waited receives the duration of every After call as it happens.
func (f *FakeTime) Waited() <-chan time.Duration {
	return f.waited
}
