package ftpserver

import (
	"context"
	"net"

	"github.com/rclone/multiserve/internal/adjust"
	"github.com/rclone/multiserve/internal/dispatcher"
	"github.com/rclone/multiserve/internal/linereceiver"
	"github.com/rclone/multiserve/internal/server"
	"github.com/rclone/multiserve/internal/trigger"
	"github.com/rclone/multiserve/internal/vfs"
)

// Server holds the FTP-protocol state shared by every control channel:
// the filesystem backend and the port clients were told to report in
// PORT/PASV math, grounded on FTPServer's class attributes.
type Server struct {
	Ident  string
	Port   int
	Access vfs.Access
	Adj    *adjust.Adjustments

	trig *trigger.Trigger
}

// NewServer builds the FTP-protocol server state for one listening port.
func NewServer(ident string, port int, access vfs.Access, adj *adjust.Adjustments, trig *trigger.Trigger) *Server {
	return &Server{Ident: ident, Port: port, Access: access, Adj: adj, trig: trig}
}

// ChannelFactory returns the internal/server.ChannelFactory that turns a
// freshly accepted control connection into a ChannelBase driven by
// commandParser and Task, the Go shape of FTPServerChannel's
// channel_class wiring plus its __init__ greeting.
func (s *Server) ChannelFactory() server.ChannelFactory {
	return func(srv *server.Server, conn net.Conn, addr net.Addr) *server.ChannelBase {
		remoteIP, _, _ := net.SplitHostPort(addr.String())
		sess := newSession(s, nil, conn.LocalAddr().String(), remoteIP)

		var cb *server.ChannelBase
		cb = server.NewChannelBase(srv, conn, s.Adj, s.trig,
			func() server.Parser { return newCommandParser() },
			func(req server.Request) dispatcher.Task {
				cmd := req.(linereceiver.Command)
				if !requiresAuth(cmd.Verb) || sess.authenticated {
					if !knownCommands[cmd.Verb] && cmd.Verb != tooLongVerb {
						sess.reply(replyCmdUnknown, cmd.Verb)
						return nil
					}
					if runsInWorker(cmd.Verb) {
						return NewTask(sess, cmd.Verb, cmd.Args)
					}
					sess.dispatch(context.Background(), cmd.Verb, cmd.Args)
					return nil
				}
				sess.reply(replyLoginRequired)
				return nil
			},
		)
		sess.cb = cb
		sess.reply(replyServerReady, s.Ident)
		return cb
	}
}
