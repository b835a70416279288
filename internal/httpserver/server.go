package httpserver

import (
	"net"

	"github.com/rclone/multiserve/internal/adjust"
	"github.com/rclone/multiserve/internal/dispatcher"
	"github.com/rclone/multiserve/internal/resolver"
	"github.com/rclone/multiserve/internal/server"
	"github.com/rclone/multiserve/internal/trigger"
)

// Server holds the pieces an HTTP Task needs that have nothing to do
// with any one connection: the identifying strings that go into every
// response's Server header and every request's CGI environment, the
// application being served, and the optional reverse-DNS resolver for
// REMOTE_HOST, grounded on HTTPServer/WSGIHTTPServer's class attributes.
type Server struct {
	Ident       string
	Name        string
	Port        int
	Application Application
	Resolver    *resolver.Resolver

	adj  *adjust.Adjustments
	trig *trigger.Trigger
}

// NewServer builds the HTTP-protocol server state for one listening
// port. ident is the Server/SERVER_SOFTWARE string (e.g.
// "multiserve/1.0"); resolve may be nil to skip REMOTE_HOST lookups.
func NewServer(ident, name string, port int, app Application, resolve *resolver.Resolver, adj *adjust.Adjustments, trig *trigger.Trigger) *Server {
	return &Server{
		Ident:       ident,
		Name:        name,
		Port:        port,
		Application: app,
		Resolver:    resolve,
		adj:         adj,
		trig:        trig,
	}
}

// ChannelFactory returns the internal/server.ChannelFactory that turns
// a freshly accepted connection into a ChannelBase driven by
// RequestParser and Task, the Go shape of HTTPServer.channel_class.
func (s *Server) ChannelFactory() server.ChannelFactory {
	return func(srv *server.Server, conn net.Conn, addr net.Addr) *server.ChannelBase {
		var cb *server.ChannelBase
		cb = server.NewChannelBase(srv, conn, s.adj, s.trig,
			func() server.Parser { return NewRequestParser(s.adj) },
			func(req server.Request) dispatcher.Task {
				rp := req.(*RequestParser)
				return NewTask(cb, rp, s)
			},
		)
		return cb
	}
}
