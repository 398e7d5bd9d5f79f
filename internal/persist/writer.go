// Package persist writes cart snapshots to durable storage in the background.
package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/storefront/internal/model"
	"github.com/fairyhunter13/storefront/internal/obs"
)

// Saver is the durable side of the writer.
type Saver interface {
	Save(ctx context.Context, s model.CartSnapshot) error
}

// Writer coalesces submitted snapshots and saves the latest one from a
// background loop. Submit never blocks and never fails; storage errors are
// logged and counted.
type Writer struct {
	st      Saver
	timeout time.Duration

	mu      sync.Mutex
	pending *model.CartSnapshot
	notify  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	// stopped makes Submit save on its own goroutine, so snapshots from
	// mutations that settle after Stop are still written.
	stopped bool

	submitted atomic.Uint64
	written   atomic.Uint64
	failed    atomic.Uint64
	// settled counts submissions that were either written, failed or
	// superseded by a newer snapshot before being written.
	settled atomic.Uint64
}

// New creates a Writer. timeout bounds each Save call; zero means 5s.
func New(st Saver, timeout time.Duration) *Writer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Writer{st: st, timeout: timeout, notify: make(chan struct{}, 1)}
}

// Start runs the write loop until ctx is done or Stop is called.
func (w *Writer) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.mu.Lock()
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()
	go w.loop(ctx, done)
}

// Stop flushes whatever is pending and stops the loop.
func (w *Writer) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	if cancel != nil {
		w.stopped = true
	}
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.flushOnce(context.Background())
}

func (w *Writer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		w.flushOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-w.notify:
		case <-ticker.C:
		}
	}
}

// flushOnce saves the pending snapshot, if any.
func (w *Writer) flushOnce(ctx context.Context) {
	w.mu.Lock()
	snap := w.pending
	w.pending = nil
	w.mu.Unlock()
	if snap == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()
	if err := w.st.Save(sctx, *snap); err != nil {
		w.failed.Add(1)
		obs.PersistWrites.WithLabelValues("error").Inc()
		obs.Logger.Warn("persist_write_failed", "revision", snap.Revision, "error", err)
	} else {
		w.written.Add(1)
		obs.PersistWrites.WithLabelValues("ok").Inc()
	}
	w.settled.Add(1)
}

// Submit replaces the pending snapshot and wakes the loop. After Stop the
// snapshot is saved from a new goroutine instead.
func (w *Writer) Submit(s model.CartSnapshot) {
	w.submitted.Add(1)
	w.mu.Lock()
	if w.pending != nil {
		if s.Revision < w.pending.Revision {
			w.mu.Unlock()
			w.settled.Add(1)
			return
		}
		w.settled.Add(1)
	}
	w.pending = &s
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		obs.Logger.Warn("persist_submit_after_stop", "revision", s.Revision)
		go w.flushOnce(context.Background())
		return
	}
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Pending reports whether a snapshot is waiting to be written.
func (w *Writer) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil
}

// Metrics returns submission and write counters.
func (w *Writer) Metrics() (submitted, written, failed uint64) {
	return w.submitted.Load(), w.written.Load(), w.failed.Load()
}

// DrainUntil blocks until every submitted snapshot has settled or ctx is done.
func (w *Writer) DrainUntil(ctx context.Context) bool {
	for {
		if w.settled.Load() >= w.submitted.Load() && !w.Pending() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
