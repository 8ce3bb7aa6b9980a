// Package timer is the external timer collaborator the routing engine
// depends on (§6 Timer contract): periodic and one-shot callbacks, with a
// guarantee that Stop prevents any subsequent invocation and is idempotent.
package timer

import (
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback. Stop cancels it; calling Stop
// more than once, or after the callback has already fired, is a no-op.
type Timer interface {
	Stop()
}

// Service schedules callbacks. Production code uses RealService, wrapping
// time.AfterFunc/time.Ticker; tests drive the engine synchronously with
// FakeService instead (§5 — "tests may drive the engine synchronously").
type Service interface {
	// After schedules fn to run once, interval from now.
	After(interval time.Duration, fn func()) Timer
	// Every schedules fn to run repeatedly, every interval, until stopped.
	Every(interval time.Duration, fn func()) Timer
}

// RealService schedules callbacks on the Go runtime's timer wheel.
type RealService struct{}

func (RealService) After(interval time.Duration, fn func()) Timer {
	return &realTimer{t: time.AfterFunc(interval, fn)}
}

func (RealService) Every(interval time.Duration, fn func()) Timer {
	ticker := time.NewTicker(interval)
	stop := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()

	return &tickerTimer{stop: stop}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) Stop() { r.t.Stop() }

type tickerTimer struct {
	once sync.Once
	stop chan struct{}
}

func (t *tickerTimer) Stop() {
	t.once.Do(func() { close(t.stop) })
}
