// Package dispatcher implements a bounded worker pool with a blocking
// task queue. It is the Go-channel-native analogue of zope.server's
// ThreadedTaskDispatcher.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rclone/multiserve/internal/logx"
)

// Task is a unit of work executed by a worker on behalf of a channel. It
// runs at most once: Service or Cancel, never both, never twice.
type Task interface {
	// Defer is called synchronously by AddTask before the task is
	// enqueued, on the caller's goroutine.
	Defer()
	// Service executes the task. Called on a worker goroutine.
	Service()
	// Cancel is called instead of Service when the task is dropped
	// (dispatcher shutdown with cancelPending, or forced channel close).
	Cancel()
}

// sentinel is pushed onto the queue to ask exactly one worker to exit.
type sentinel struct{}

// Dispatcher is a bounded pool of worker goroutines pulling Tasks off an
// unbounded queue.
type Dispatcher struct {
	mu         sync.Mutex
	queue      []interface{} // Task or sentinel
	notEmpty   *sync.Cond
	running    int // workers currently alive
	target     int // desired worker count
	stopCount  int // pending sentinels not yet consumed
	wg         sync.WaitGroup
	limiter    *rate.Limiter // throttles AddTask, independent of connection_limit
}

// New returns a Dispatcher with no workers running; call SetThreadCount to
// start some. limiterRate/limiterBurst of 0 disables throttling.
func New(limiterRate float64, limiterBurst int) *Dispatcher {
	d := &Dispatcher{}
	d.notEmpty = sync.NewCond(&d.mu)
	if limiterRate > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(limiterRate), limiterBurst)
	}
	return d
}

// SetThreadCount idempotently sets the desired worker count. Growing
// spawns new workers immediately; shrinking enqueues enough sentinel
// values that stopCount tracks the outstanding shrink so that, once they
// are all consumed, running - stopCount == target.
func (d *Dispatcher) SetThreadCount(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = n
	delta := n - (d.running - d.stopCount)
	if delta > 0 {
		for i := 0; i < delta; i++ {
			d.running++
			d.wg.Add(1)
			go d.workerLoop()
		}
	} else if delta < 0 {
		for i := 0; i < -delta; i++ {
			d.stopCount++
			d.queue = append(d.queue, sentinel{})
		}
		d.notEmpty.Broadcast()
	}
}

// AddTask calls task.Defer() then enqueues it. If the dispatcher is
// throttled and the rate limiter rejects the call's context, Cancel() is
// invoked and the error is returned; this mirrors "if the queue operation
// fails the task's cancel() is called and the error propagates."
func (d *Dispatcher) AddTask(ctx context.Context, task Task) error {
	task.Defer()
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			task.Cancel()
			return err
		}
	}
	d.mu.Lock()
	d.queue = append(d.queue, task)
	d.notEmpty.Broadcast()
	d.mu.Unlock()
	return nil
}

// GetPendingTasksEstimate returns an approximate queue length (sentinels
// included).
func (d *Dispatcher) GetPendingTasksEstimate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) workerLoop() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for len(d.queue) == 0 {
			d.notEmpty.Wait()
		}
		item := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if _, stop := item.(sentinel); stop {
			d.mu.Lock()
			d.running--
			d.stopCount--
			d.mu.Unlock()
			return
		}

		task := item.(Task)
		runTask(task)
	}
}

func runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf(logx.S("dispatcher"), "task panicked: %v", r)
		}
	}()
	task.Service()
}

// Shutdown sets the target worker count to zero and waits up to timeout
// for workers to exit. If cancelPending, every task still sitting in the
// queue (not a sentinel) has Cancel() called on it.
func (d *Dispatcher) Shutdown(cancelPending bool, timeout time.Duration) {
	d.SetThreadCount(0)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logx.Errorf(logx.S("dispatcher"), "shutdown timed out after %s waiting for workers", timeout)
	}

	if cancelPending {
		d.mu.Lock()
		leftover := d.queue
		d.queue = nil
		d.mu.Unlock()
		for _, item := range leftover {
			if task, ok := item.(Task); ok {
				task.Cancel()
			}
		}
	}
}
