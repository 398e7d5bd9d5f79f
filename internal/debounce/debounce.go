// Package debounce delays a call until its input has been quiet for a while.
package debounce

import (
	"sync"
	"time"
)

// Debouncer calls fn with the latest triggered value once no new value has
// arrived for delay.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	value   T
	seq     uint64
	stopped bool
}

// New returns a Debouncer. fn runs on its own goroutine.
func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Trigger records v and restarts the quiet window.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.value, d.pending = v, true
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	// A newer Trigger or a Flush already owns this value.
	if d.seq != seq || !d.pending || d.stopped {
		d.mu.Unlock()
		return
	}
	v := d.value
	d.pending = false
	d.mu.Unlock()
	d.fn(v)
}

// Flush runs fn now with the pending value, if any, on the caller's
// goroutine. It reports whether a value was pending.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.pending || d.stopped {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	v := d.value
	d.pending = false
	d.seq++
	d.mu.Unlock()
	d.fn(v)
	return true
}

// Pending reports whether a value is waiting for the quiet window to end.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop drops any pending value. Later Triggers are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
}
