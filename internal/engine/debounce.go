package engine

import (
	"sync"
	"time"
)

// Debouncer runs fn once after Trigger calls stop arriving for delay.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	stopped bool
	running sync.WaitGroup
}

// NewDebouncer creates a Debouncer. A non-positive delay means 500ms.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger restarts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	d.fn()
}

// Stop cancels a pending run and waits for one already in progress. Later
// triggers are ignored. Stop must not be called from fn.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	d.running.Wait()
}
