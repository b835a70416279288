package server

import (
	"context"
	"net"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/rclone/multiserve/internal/accesslog"
	"github.com/rclone/multiserve/internal/adjust"
	"github.com/rclone/multiserve/internal/dispatcher"
	"github.com/rclone/multiserve/internal/logx"
	"github.com/rclone/multiserve/internal/metrics"
	"github.com/rclone/multiserve/internal/trigger"
)

// ChannelFactory creates a protocol-specific channel for a freshly
// accepted connection, the Go equivalent of ServerBase.channel_class.
type ChannelFactory func(srv *Server, conn net.Conn, addr net.Addr) *ChannelBase

// Server owns one listening socket, its reactor, its worker dispatcher,
// and the registry of channels it has accepted — grounded on
// original_source/serverbase.py's ServerBase and
// serverchannelbase.py's class-level active_channels/next_channel_cleanup.
type Server struct {
	Name       string
	adj        *adjust.Adjustments
	reactor    *Reactor
	dispatcher *dispatcher.Dispatcher
	trig       *trigger.Trigger
	metrics    *metrics.Registry
	hitLog     *accesslog.Log

	fd       int
	port     int
	acceptor *acceptor

	mu          sync.Mutex
	channels    map[*ChannelBase]struct{}
	nextCleanup time.Time
	serverName  string
}

// New binds a listening socket at ip:port and wires it into a fresh
// reactor alongside the given dispatcher and trigger. Call Serve to
// start accepting.
func New(name, ip string, port int, adj *adjust.Adjustments, d *dispatcher.Dispatcher, trig *trigger.Trigger, m *metrics.Registry, hitLog *accesslog.Log) (*Server, error) {
	fd, boundPort, err := listen(ip, port, adj)
	if err != nil {
		return nil, err
	}
	reactor, err := NewReactor()
	if err != nil {
		return nil, err
	}
	srv := &Server{
		Name:       name,
		adj:        adj,
		reactor:    reactor,
		dispatcher: d,
		trig:       trig,
		metrics:    m,
		hitLog:     hitLog,
		fd:         fd,
		port:       boundPort,
		channels:   make(map[*ChannelBase]struct{}),
		serverName: computeServerName(ip),
	}
	if m != nil {
		m.ConnectionsLimit.Set(float64(adj.ConnectionLimit))
	}
	return srv, nil
}

func computeServerName(ip string) string {
	if ip != "" {
		return ip
	}
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return host
}

// Serve registers the listening socket and the process trigger with the
// reactor and runs the event loop until Close is called. Accepted
// connections are handed to factory. Serve blocks; run it in its own
// goroutine.
func (s *Server) Serve(factory ChannelFactory) error {
	s.acceptor = &acceptor{
		fd:  s.fd,
		srv: s,
		onAccept: func(conn net.Conn, addr net.Addr) {
			ch := factory(s, conn, addr)
			s.addChannel(ch)
		},
	}
	if err := s.reactor.Register(s.acceptor); err != nil {
		return err
	}
	if err := s.reactor.Register(&triggerPollable{s.trig}); err != nil {
		return err
	}

	logx.Infof(logx.S(s.Name), "listening on %s:%d", s.serverName, s.port)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	s.reactor.Run(s.onIdle)
	return nil
}

// triggerPollable adapts *trigger.Trigger to the Pollable interface: it
// is always readable (edge cases where nothing is pending just make
// Drain a no-op) and never writable.
type triggerPollable struct{ t *trigger.Trigger }

func (p *triggerPollable) FD() int          { return p.t.FD() }
func (p *triggerPollable) Readable() bool   { return true }
func (p *triggerPollable) Writable() bool   { return false }
func (p *triggerPollable) HandleRead()      { p.t.Drain() }
func (p *triggerPollable) HandleWrite()     {}
func (p *triggerPollable) HandleError(error) {}

func (s *Server) addChannel(ch *ChannelBase) {
	s.mu.Lock()
	s.channels[ch] = struct{}{}
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveChannels.Inc()
		s.metrics.ConnectionsTotal.Inc()
	}
	ch.start()
}

func (s *Server) removeChannel(ch *ChannelBase) {
	s.mu.Lock()
	_, existed := s.channels[ch]
	delete(s.channels, ch)
	s.mu.Unlock()
	if existed && s.metrics != nil {
		s.metrics.ActiveChannels.Dec()
	}
}

// Port reports the bound listening port.
func (s *Server) Port() int { return s.port }

// ActiveChannelCount reports how many channels are currently open,
// gating acceptance the way ServerBase.readable() compared
// len(asyncore.socket_map) to adj.connection_limit.
func (s *Server) ActiveChannelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

// AddTask hands a task to the server's dispatcher, or runs it inline if
// none is configured, matching ServerBase.addTask.
func (s *Server) AddTask(task dispatcher.Task) {
	if s.dispatcher == nil {
		task.Service()
		return
	}
	_ = s.dispatcher.AddTask(context.Background(), task)
}

// onIdle runs after every reactor wake (so at least once per second,
// given the epoll_wait timeout in Reactor.Run), performing the
// check_maintenance/kill_zombies housekeeping ServerChannelBase tied to
// every channel's own activity instead of a central ticker.
func (s *Server) onIdle() {
	now := time.Now()
	s.mu.Lock()
	due := now.After(s.nextCleanup)
	if due {
		s.nextCleanup = now.Add(s.adj.CleanupInterval)
	}
	s.mu.Unlock()
	if due {
		s.killZombies(now)
	}
}

func (s *Server) killZombies(now time.Time) {
	cutoff := now.Add(-s.adj.ChannelTimeout)
	s.mu.Lock()
	victims := make([]*ChannelBase, 0)
	for ch := range s.channels {
		if !ch.RunningTasks() && ch.LastActivity().Before(cutoff) {
			victims = append(victims, ch)
		}
	}
	s.mu.Unlock()
	for _, ch := range victims {
		logx.Infof(logx.S(s.Name), "closing idle channel %s", ch.conn.RemoteAddr())
		ch.Close()
	}
}

// Close shuts down the reactor and listening socket. Open channels are
// left to close on their own (a forced-close sweep is the caller's
// responsibility via Shutdown).
func (s *Server) Close() error {
	return s.reactor.Close()
}

// Shutdown closes every currently registered channel and then the
// reactor, for a clean process exit.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	victims := make([]*ChannelBase, 0, len(s.channels))
	for ch := range s.channels {
		victims = append(victims, ch)
	}
	s.mu.Unlock()
	for _, ch := range victims {
		ch.Close()
	}
	return s.Close()
}

