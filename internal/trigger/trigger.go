// Package trigger implements a cross-thread wake-up primitive: a
// self-pipe registered readable in the event loop, so a worker goroutine
// that mutates a channel's state can unblock a loop that is parked in
// epoll_wait.
package trigger

import (
	"os"
	"sync"

	"github.com/rclone/multiserve/internal/logx"
)

// Trigger is a process-wide, lazily created wake-up descriptor. Workers
// call Pull to wake the loop and optionally queue a callback to run on
// the loop's goroutine once it wakes.
type Trigger struct {
	r, w *os.File

	mu        sync.Mutex
	callbacks []func()
}

// New creates a self-pipe trigger. Callers keep one process-wide instance
// (cmd/multiserve's buildStack creates it and passes it to
// internal/server.New).
func New() (*Trigger, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &Trigger{r: r, w: w}, nil
}

// FD returns the read end's file descriptor, for registration in the
// event loop's poller readable set.
func (t *Trigger) FD() int { return int(t.r.Fd()) }

// Pull wakes the event loop. If callback is non-nil it is queued under
// the trigger's mutex and will run (on the loop's goroutine) the next
// time the loop drains the trigger. Pulling is idempotent with respect to
// wake-up: multiple pulls before the loop drains coalesce into one wake.
func (t *Trigger) Pull(callback func()) {
	t.mu.Lock()
	if callback != nil {
		t.callbacks = append(t.callbacks, callback)
	}
	t.mu.Unlock()
	// Best effort: a full pipe buffer still means "already pending".
	_, _ = t.w.Write([]byte{0})
}

// Drain is called by the event loop when the trigger's read end becomes
// readable. It empties the pipe and runs (and clears) every pending
// callback. A panicking callback is logged; the remaining callbacks still
// run.
func (t *Trigger) Drain() {
	buf := make([]byte, 4096)
	for {
		n, err := t.r.Read(buf)
		if n == 0 || err != nil {
			break
		}
		if n < len(buf) {
			break
		}
	}

	t.mu.Lock()
	pending := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, cb := range pending {
		runCallback(cb)
	}
}

func runCallback(cb func()) {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf(logx.S("trigger"), "callback panicked: %v", r)
		}
	}()
	cb()
}

// Close releases the pipe's file descriptors.
func (t *Trigger) Close() error {
	werr := t.w.Close()
	rerr := t.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
