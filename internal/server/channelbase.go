package server

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/rclone/multiserve/internal/adjust"
	"github.com/rclone/multiserve/internal/channel"
	"github.com/rclone/multiserve/internal/dispatcher"
	"github.com/rclone/multiserve/internal/logx"
	"github.com/rclone/multiserve/internal/trigger"
)

// Request is one fully-received protocol message, handed from the
// parser to ProcessRequest. Protocol packages (internal/httpserver,
// internal/ftpserver) define their own concrete type satisfying this
// through type assertion on the other side of ProcessRequest.
type Request interface{}

// Parser incrementally consumes bytes off the wire and reports when a
// full request has been assembled, the Go analogue of zope.server's
// IStreamConsumer (received/completed/empty).
type Parser interface {
	// Received feeds data to the parser and returns how many bytes it
	// consumed; the caller passes any leftover bytes to a new Parser.
	Received(data []byte) (consumed int)
	// Completed reports whether a full request is now available.
	Completed() bool
	// Empty reports whether the completed request carries no content
	// worth dispatching (e.g. a parser reset by a bare newline).
	Empty() bool
	// Request returns the completed request. Only valid once Completed
	// is true.
	Request() Request
}

// ChannelBase is the per-connection object shared by every protocol: it
// owns the dual-mode channel, the read loop, and the
// running_tasks/ready_requests handoff into the dispatcher. It is
// grounded field-for-field on
// original_source/serverchannelbase.py's ServerChannelBase.
type ChannelBase struct {
	*channel.Channel

	srv  *Server
	conn net.Conn
	adj  *adjust.Adjustments

	newParser     func() Parser
	processRequest func(req Request) dispatcher.Task

	mu            sync.Mutex
	parser        Parser
	lastActivity  time.Time
	creationTime  time.Time
	runningTasks  bool
	readyRequests []Request
}

// NewChannelBase wires conn into a dual-mode channel and the
// reader-goroutine loop described above. newParser constructs a fresh
// protocol parser for each pipelined request; processRequest decides
// whether a completed request runs inline (return nil from the task, or
// rather: process it synchronously and return nil) or on a worker
// (return a non-nil Task).
func NewChannelBase(srv *Server, conn net.Conn, adj *adjust.Adjustments, trig *trigger.Trigger, newParser func() Parser, processRequest func(req Request) dispatcher.Task) *ChannelBase {
	now := time.Now()
	cb := &ChannelBase{
		Channel:        channel.New(conn, trig, adj.OutbufOverflow),
		srv:            srv,
		conn:           conn,
		adj:            adj,
		newParser:      newParser,
		processRequest: processRequest,
		lastActivity:   now,
		creationTime:   now,
	}
	return cb
}

// start launches the dedicated reader goroutine. Each ChannelBase gets
// its own goroutine doing a blocking Read loop; this is the idiomatic-Go
// stand-in for asyncore calling handle_read() whenever the loop's poll
// reports the fd readable, without registering every connection's fd in
// the shared reactor (only the listening socket and the process trigger
// are epoll members — see Server.Serve).
func (c *ChannelBase) start() {
	go c.readLoop()
}

func (c *ChannelBase) readLoop() {
	buf := make([]byte, c.adj.RecvBytes)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.touch()
			c.received(buf[:n])
		}
		if err != nil {
			if err != io.EOF && c.adj.LogSocketErrors {
				logx.Errorf(logx.S("channel"), "read: %v", err)
			}
			break
		}
	}
	c.srv.removeChannel(c)
	c.Channel.Close()
}

func (c *ChannelBase) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity reports when this channel last saw read traffic, used by
// Server.killZombies.
func (c *ChannelBase) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// CreationTime reports when this channel was accepted, the Go analogue
// of ServerChannelBase's creation_time attribute (exposed to protocol
// tasks as CHANNEL_CREATION_TIME).
func (c *ChannelBase) CreationTime() time.Time { return c.creationTime }

// RemoteAddr returns the underlying connection's remote address.
func (c *ChannelBase) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// RemoteIP returns just the IP portion of RemoteAddr, falling back to
// the full address string if it cannot be split.
func (c *ChannelBase) RemoteIP() string {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return c.conn.RemoteAddr().String()
	}
	return host
}

// RunningTasks reports whether a worker task currently owns this
// channel, which exempts it from zombie reaping (kill_zombies skipped
// channels with running_tasks set).
func (c *ChannelBase) RunningTasks() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningTasks
}

// received feeds incoming bytes to the current parser, looping over
// pipelined requests the same way ServerChannelBase.received did.
func (c *ChannelBase) received(data []byte) {
	for len(data) > 0 {
		c.mu.Lock()
		if c.parser == nil {
			c.parser = c.newParser()
		}
		p := c.parser
		c.mu.Unlock()

		n := p.Received(data)
		if n <= 0 {
			n = len(data)
		}
		if p.Completed() {
			c.mu.Lock()
			c.parser = nil
			c.mu.Unlock()
			if !p.Empty() {
				c.receivedCompleteRequest(p.Request())
			}
		}
		if n >= len(data) {
			break
		}
		data = data[n:]
	}
}

// receivedCompleteRequest queues req if a task is already running on
// this channel, otherwise processes it immediately, matching
// ServerChannelBase.receivedCompleteRequest's running_lock dance
// (reproduced here with ChannelBase's own mutex since Go channels are
// single-owner per goroutine anyway).
func (c *ChannelBase) receivedCompleteRequest(req Request) {
	c.mu.Lock()
	if c.runningTasks {
		c.readyRequests = append(c.readyRequests, req)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	task := c.processRequest(req)
	if task != nil {
		c.startTask(task)
	}
}

// startTask marks the channel synchronous and hands task to the
// server's dispatcher, matching ServerChannelBase.start_task.
func (c *ChannelBase) startTask(task dispatcher.Task) {
	c.mu.Lock()
	c.runningTasks = true
	c.mu.Unlock()
	c.Channel.SetSync()
	c.srv.AddTask(task)
}

// EndTask is called by a protocol's Task.Service (or Cancel) once it is
// done with the channel: close tells the channel to shut down once its
// output drains; otherwise the next queued pipelined request (if any)
// starts a new task, or the channel goes back to async mode to await
// more input — matching ServerChannelBase.end_task.
func (c *ChannelBase) EndTask(closeAfter bool) {
	if closeAfter {
		c.mu.Lock()
		c.runningTasks = true // stays on, per the original's comment
		c.mu.Unlock()
		c.Channel.CloseWhenDone()
		return
	}
	for {
		c.mu.Lock()
		var req Request
		if len(c.readyRequests) > 0 {
			req = c.readyRequests[0]
			c.readyRequests = c.readyRequests[1:]
		} else {
			c.runningTasks = false
		}
		c.mu.Unlock()

		if req != nil {
			task := c.processRequest(req)
			if task != nil {
				c.srv.AddTask(task)
				return
			}
			continue
		}
		c.Channel.SetAsync()
		return
	}
}
