package timer

import "time"

// FakeService is a deterministic Service double for tests: nothing fires
// until the test explicitly calls Advance, so a whole adjacency or
// aging scenario can be driven step by step without real wall-clock waits.
type FakeService struct {
	entries []*fakeEntry
}

type fakeEntry struct {
	fn       func()
	interval time.Duration
	elapsed  time.Duration
	repeat   bool
	stopped  bool
}

func (e *fakeEntry) Stop() { e.stopped = true }

// NewFakeService returns an empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{}
}

func (f *FakeService) After(interval time.Duration, fn func()) Timer {
	e := &fakeEntry{fn: fn, interval: interval}
	f.entries = append(f.entries, e)
	return e
}

func (f *FakeService) Every(interval time.Duration, fn func()) Timer {
	e := &fakeEntry{fn: fn, interval: interval, repeat: true}
	f.entries = append(f.entries, e)
	return e
}

// Advance moves the fake clock forward by d, firing (in order of the
// moment they become due) every entry whose remaining time elapses,
// rescheduling repeating entries, and dropping fired one-shot entries.
func (f *FakeService) Advance(d time.Duration) {
	remaining := d

	for remaining > 0 {
		next, step := f.nextDue(remaining)
		if next == nil {
			for _, e := range f.entries {
				if !e.stopped {
					e.elapsed += remaining
				}
			}
			remaining = 0
			break
		}

		remaining -= step
		for _, e := range f.entries {
			if e.stopped {
				continue
			}
			e.elapsed += step
		}

		if next.stopped {
			continue
		}

		next.fn()
		if next.repeat {
			next.elapsed = 0
		} else {
			next.stopped = true
		}
	}

	f.compact()
}

// nextDue finds the entry closest to firing within the next `within`
// duration, and how far the clock must move to reach it.
func (f *FakeService) nextDue(within time.Duration) (*fakeEntry, time.Duration) {
	var best *fakeEntry
	var bestRemaining time.Duration

	for _, e := range f.entries {
		if e.stopped {
			continue
		}
		remaining := e.interval - e.elapsed
		if remaining > within {
			continue
		}
		if best == nil || remaining < bestRemaining {
			best = e
			bestRemaining = remaining
		}
	}

	return best, bestRemaining
}

func (f *FakeService) compact() {
	live := f.entries[:0]
	for _, e := range f.entries {
		if !e.stopped {
			live = append(live, e)
		}
	}
	f.entries = live
}

// Pending reports how many scheduled (not-yet-stopped) entries remain.
func (f *FakeService) Pending() int {
	n := 0
	for _, e := range f.entries {
		if !e.stopped {
			n++
		}
	}
	return n
}
