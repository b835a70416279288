package ftpserver

import (
	"fmt"
	"net"
	"time"

	"github.com/rclone/multiserve/internal/adjust"
)

// dataConnTimeout bounds how long we wait for a data connection (either
// a PASV accept or an active-mode dial) before giving up, matching the
// original's effective behavior of replying NO_DATA_CONN on failure.
const dataConnTimeout = 30 * time.Second

// openPassiveListener binds a listener on the same interface as the
// control connection, port 0 (OS-assigned), the Go analogue of
// PassiveAcceptor binding to (control_channel.getsockname()[0], 0).
func (s *Session) openPassiveListener() (net.Listener, error) {
	host, _, err := net.SplitHostPort(s.localAddr)
	if err != nil {
		host = s.localAddr
	}
	return net.Listen("tcp", net.JoinHostPort(host, "0"))
}

// closePassive tears down any outstanding passive listener, mirroring
// newPassiveAcceptor's "ensure only one exists at a time".
func (s *Session) closePassive() {
	if s.passiveListener != nil {
		s.passiveListener.Close()
		s.passiveListener = nil
	}
}

// openDataConn obtains the data connection for one transfer: if a PASV
// listener is pending it accepts on it, otherwise it dials the
// client-advertised PORT address, optionally binding the local end to
// server_port-1 per adj.BindLocalMinusOne (the RFC959 firewall
// accommodation from bind_local_minus_one).
func (s *Session) openDataConn(adj *adjust.Adjustments, serverPort int) (net.Conn, error) {
	if s.passiveListener != nil {
		defer s.closePassive()
		s.passiveListener.(*net.TCPListener).SetDeadline(time.Now().Add(dataConnTimeout))
		conn, err := s.passiveListener.Accept()
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	dialer := &net.Dialer{Timeout: dataConnTimeout}
	if adj != nil && adj.BindLocalMinusOne {
		localAddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf(":%d", serverPort-1))
		if err == nil {
			dialer.LocalAddr = localAddr
		}
	}
	return dialer.Dial("tcp", s.clientDataAddr)
}
