// Package channel implements a dual-mode channel abstraction: a
// per-connection object whose outbound side can be switched between
// "async" (event-loop-driven, non-blocking writes) and "sync"
// (worker-driven, blocking writes) at any time. It is grounded on
// original_source/dualmodechannel.py.
package channel

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/rclone/multiserve/internal/buffer"
	"github.com/rclone/multiserve/internal/logx"
	"github.com/rclone/multiserve/internal/trigger"
)

// ErrChannelClosed is returned by Write/Send after Close.
var ErrChannelClosed = errors.New("channel: closed")

// Mode selects how a channel's outbound queue is drained.
type Mode int

const (
	// ModeAsync means the event loop writes the outbound buffer when the
	// socket becomes writable (the default for newly accepted channels).
	ModeAsync Mode = iota
	// ModeSync means a worker goroutine writes directly and blockingly;
	// set for the duration of a task that owns the channel.
	ModeSync
)

// Channel wraps a net.Conn with an outbound overflowable buffer and an
// async/sync handoff. It is safe for one worker goroutine and the event
// loop to use concurrently, coordinated through mu.
type Channel struct {
	conn   net.Conn
	trig   *trigger.Trigger
	outbuf *buffer.Buffer

	mu            sync.Mutex
	mode          Mode
	closeWhenDone bool
	closed        bool

	// onWritableChange is set through SetWritableCallback so
	// Write can ask to be notified again; nil until the channel is
	// registered (tests may leave it nil and drive Flush manually).
	onWritableChange func(wantWrite bool)
}

// New wraps conn for dual-mode writing. trig is the process-wide wake-up
// trigger used to nudge the event loop when a sync writer queues bytes
// that the loop must later flush in async mode.
func New(conn net.Conn, trig *trigger.Trigger, outbufOverflow int64) *Channel {
	return &Channel{
		conn:   conn,
		trig:   trig,
		outbuf: buffer.New(outbufOverflow),
		mode:   ModeAsync,
	}
}

// Conn returns the underlying connection.
func (c *Channel) Conn() net.Conn { return c.conn }

// SetWritableCallback lets the event loop learn when it must add/remove
// this channel's fd from its writable set, mirroring asyncore's
// "writable()" poll each cycle, without polling: the channel tells the
// loop when its answer changes.
func (c *Channel) SetWritableCallback(cb func(wantWrite bool)) {
	c.mu.Lock()
	c.onWritableChange = cb
	c.mu.Unlock()
}

// SetSync switches the channel to worker-driven blocking writes. Called
// by internal/server's ChannelBase immediately before it hands a task to
// the dispatcher.
func (c *Channel) SetSync() {
	c.mu.Lock()
	c.mode = ModeSync
	c.mu.Unlock()
}

// SetAsync switches the channel back to event-loop-driven writes and, if
// data is still queued, asks the loop to resume flushing it.
func (c *Channel) SetAsync() {
	c.mu.Lock()
	c.mode = ModeAsync
	pending := c.outbuf.Len() > 0
	c.mu.Unlock()
	if pending {
		c.wantWrite(true)
	}
}

// wantWrite notifies whoever is driving this channel's writes that its
// writable-interest has changed. If the channel has been registered
// directly with an event loop (SetWritableCallback), that callback is
// used; otherwise the process-wide trigger is pulled so a loop merely
// waiting on the trigger's wake-up (rather than on this channel's own
// fd) still gets a chance to notice pending output.
func (c *Channel) wantWrite(want bool) {
	c.mu.Lock()
	cb := c.onWritableChange
	c.mu.Unlock()
	if cb != nil {
		cb(want)
		return
	}
	if want && c.trig != nil {
		c.trig.Pull(nil)
	}
}

// Write queues data for output and, in either mode, flushes the outbound
// buffer blockingly via HandleWrite before returning, so a caller's
// write has made progress by the time it returns.
func (c *Channel) Write(data []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrChannelClosed
	}
	if err := c.outbuf.Append(data); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	c.mu.Unlock()

	// Every ChannelBase runs its own goroutine (see internal/server), so
	// there is no shared loop for a blocking drain to stall; both modes
	// drain immediately via the same HandleWrite primitive the event
	// loop would otherwise call on a writable-fd notification. The
	// mode/CloseWhenDone bookkeeping above still governs dispatcher
	// handoff and connection lifecycle.
	for {
		more, err := c.HandleWrite()
		if err != nil {
			return 0, err
		}
		if !more {
			break
		}
	}
	return len(data), nil
}

// CloseWhenDone marks the channel to be closed once its outbound buffer
// has been fully flushed, instead of closed immediately.
func (c *Channel) CloseWhenDone() {
	c.mu.Lock()
	c.closeWhenDone = true
	empty := c.outbuf.Len() == 0
	c.mu.Unlock()
	if empty {
		c.Close()
	} else {
		c.wantWrite(true)
	}
}

// HandleWrite writes the next chunk (up to 64 KiB) of the outbound buffer
// with one blocking conn.Write, returning whether more remains to be
// written. Write calls it in a loop until the buffer is empty.
func (c *Channel) HandleWrite() (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, nil
	}
	chunk, err := c.outbuf.Get(65536, false)
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	if len(chunk) == 0 {
		return c.finishIfDone(), nil
	}

	n, werr := c.conn.Write(chunk)
	c.mu.Lock()
	_ = c.outbuf.Skip(int64(n))
	remaining := c.outbuf.Len() > 0
	c.mu.Unlock()
	if werr != nil {
		return false, werr
	}
	if !remaining {
		return c.finishIfDone(), nil
	}
	return true, nil
}

func (c *Channel) finishIfDone() bool {
	c.mu.Lock()
	done := c.closeWhenDone
	c.mu.Unlock()
	if done {
		c.Close()
	}
	return false
}


// Close closes the underlying connection and releases the outbound
// buffer's spill file. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	berr := c.outbuf.Close()
	cerr := c.conn.Close()
	if cerr != nil {
		return cerr
	}
	return berr
}

// PendingOutput reports whether bytes remain queued for output.
func (c *Channel) PendingOutput() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outbuf.Len() > 0
}

// ConcurrentChannel supplements the dual-mode handoff with a variant that
// never blocks an event-loop goroutine on a slow peer: every write is
// handed to a dedicated per-channel writer goroutine fed by a queue of up
// to 256 pending writes, so a worker task's Write call returns without
// waiting on socket I/O until that queue is full (zope.server's experimental SimultaneousModeChannel, never
// finished upstream, is the closest original analogue).
type ConcurrentChannel struct {
	*Channel

	writeCh chan []byte
	errOnce sync.Once
	errCh   chan error
	done    chan struct{}
}

// NewConcurrent wraps conn the same way New does, but spawns a writer
// goroutine immediately; Write blocks the caller only while 256 writes
// are already queued.
func NewConcurrent(conn net.Conn, trig *trigger.Trigger, outbufOverflow int64) *ConcurrentChannel {
	cc := &ConcurrentChannel{
		Channel: New(conn, trig, outbufOverflow),
		writeCh: make(chan []byte, 256),
		errCh:   make(chan error, 1),
		done:    make(chan struct{}),
	}
	go cc.writerLoop()
	return cc
}

func (cc *ConcurrentChannel) writerLoop() {
	defer close(cc.done)
	for data := range cc.writeCh {
		if _, err := cc.Channel.conn.Write(data); err != nil {
			cc.errOnce.Do(func() {
				cc.errCh <- err
				logx.Errorf(logx.S("channel"), "concurrent write failed: %v", err)
			})
			return
		}
	}
}

// Write overrides Channel.Write: it hands data straight to the writer
// goroutine instead of the shared outbound buffer.
func (cc *ConcurrentChannel) Write(data []byte) (int, error) {
	select {
	case err := <-cc.errCh:
		cc.errCh <- err
		return 0, err
	default:
	}
	select {
	case cc.writeCh <- append([]byte(nil), data...):
		return len(data), nil
	case <-cc.done:
		return 0, io.ErrClosedPipe
	}
}

// Close stops the writer goroutine once its queue drains, then closes
// the underlying connection.
func (cc *ConcurrentChannel) Close() error {
	close(cc.writeCh)
	<-cc.done
	return cc.Channel.Close()
}
