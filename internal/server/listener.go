package server

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/rclone/multiserve/internal/adjust"
	"github.com/rclone/multiserve/internal/logx"
)

// acceptor is the Pollable wrapping a non-blocking raw listening socket,
// the Go equivalent of ServerBase's own asyncore.dispatcher identity:
// readable() gates acceptance on the connection_limit, handle_accept()
// hands new connections to the server.
type acceptor struct {
	fd      int
	srv     *Server
	onAccept func(conn net.Conn, addr net.Addr)
}

// listen creates and binds a non-blocking TCP listening socket at
// ip:port, applying adj.SocketOptions and SO_REUSEADDR the way
// ServerBase.__init__ called set_reuse_addr() before bind(). It returns
// the port actually bound, which differs from the requested port when
// port is 0 (the kernel picks an ephemeral one, as tests do).
func listen(ip string, port int, adj *adjust.Adjustments) (int, int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, 0, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, 0, err
	}
	for _, opt := range adj.SocketOptions {
		if err := unix.SetsockoptInt(fd, opt.Level, opt.Name, opt.Value); err != nil {
			unix.Close(fd)
			return -1, 0, err
		}
	}

	addr := unix.SockaddrInet4{Port: port}
	if ip != "" {
		parsed := net.ParseIP(ip).To4()
		if parsed == nil {
			unix.Close(fd)
			return -1, 0, unix.EINVAL
		}
		copy(addr.Addr[:], parsed)
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return -1, 0, err
	}
	if err := unix.Listen(fd, adj.Backlog); err != nil {
		unix.Close(fd)
		return -1, 0, err
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, 0, err
	}
	boundPort := port
	if sa4, ok := bound.(*unix.SockaddrInet4); ok {
		boundPort = sa4.Port
	}
	return fd, boundPort, nil
}

func (a *acceptor) FD() int { return a.fd }

// Readable mirrors ServerBase.readable(): only accept while under the
// connection_limit.
func (a *acceptor) Readable() bool {
	return a.srv.ActiveChannelCount() < a.srv.adj.ConnectionLimit
}

func (a *acceptor) Writable() bool { return false }

// HandleRead drains every connection the kernel has queued, matching
// handle_accept() but looping since epoll is edge-unaware here (level
// triggered is used, so a single accept per wake is also correct, but
// draining avoids leaving connections queued under bursty load).
func (a *acceptor) HandleRead() {
	for {
		nfd, sa, err := unix.Accept4(a.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if a.srv.adj.LogSocketErrors {
				logx.Errorf(logx.S("server"), "accept: %v", err)
			}
			return
		}
		conn, err := net.FileConn(os.NewFile(uintptr(nfd), "conn"))
		unix.Close(nfd) // FileConn dup'd it; release our copy
		if err != nil {
			if a.srv.adj.LogSocketErrors {
				logx.Errorf(logx.S("server"), "FileConn: %v", err)
			}
			continue
		}
		a.onAccept(conn, sockaddrToAddr(sa))
	}
}

func (a *acceptor) HandleWrite() {}

func (a *acceptor) HandleError(err error) {
	logx.Errorf(logx.S("server"), "listener error: %v", err)
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	default:
		return nil
	}
}
