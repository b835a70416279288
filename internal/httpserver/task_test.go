package httpserver

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclone/multiserve/internal/adjust"
	"github.com/rclone/multiserve/internal/server"
)

type echoApp struct {
	seenEnv map[string]interface{}
	body    []byte
}

func (a *echoApp) Serve(env map[string]interface{}, startResponse func(status, reason string, headers [][2]string) func([]byte)) {
	a.seenEnv = env
	write := startResponse("200", "OK", [][2]string{{"Content-Type", "text/plain"}, {"Content-Length", "2"}})
	write(a.body)
}

func newTestChannelBase(t *testing.T, req *RequestParser) (*server.ChannelBase, net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close(); clientConn.Close() })
	adj := adjust.Default()
	cb := server.NewChannelBase(nil, serverConn, adj, nil,
		func() server.Parser { return NewRequestParser(adj) },
		nil,
	)
	return cb, clientConn
}

func readUntilClosed(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	var out []byte
	for {
		n, err := conn.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			break
		}
	}
	return out
}

func TestTaskServiceWritesResponseAndEndsTask(t *testing.T) {
	req := NewRequestParser(adjust.Default())
	req.Received([]byte("GET /hi HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n"))
	require.True(t, req.Completed())

	cb, client := newTestChannelBase(t, req)
	app := &echoApp{body: []byte("ok")}
	srv := NewServer("multiserve/1.0", "host", 8080, app, nil, adjust.Default(), nil)

	task := NewTask(cb, req, srv)
	task.Defer()

	done := make(chan struct{})
	go func() {
		task.Service()
		close(done)
	}()

	got := readUntilClosed(t, client)
	<-done

	s := string(got)
	assert.Contains(t, s, "HTTP/1.1 200 OK")
	assert.Contains(t, s, "Connection: close")
	assert.Contains(t, s, "Content-Type: text/plain")
	assert.Contains(t, s, "ok")
	assert.Equal(t, "GET", app.seenEnv["REQUEST_METHOD"])
	assert.Equal(t, "/hi", app.seenEnv["PATH_INFO"])
}

func TestTaskKeepsConnectionOpenOnHTTP11WithContentLength(t *testing.T) {
	req := NewRequestParser(adjust.Default())
	req.Received([]byte("GET /hi HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.True(t, req.Completed())

	cb, client := newTestChannelBase(t, req)
	app := &echoApp{body: []byte("ok")}
	srv := NewServer("multiserve/1.0", "host", 8080, app, nil, adjust.Default(), nil)

	task := NewTask(cb, req, srv)
	task.Defer()

	done := make(chan struct{})
	go func() {
		task.Service()
		close(done)
	}()

	var got []byte
	buf := make([]byte, 4096)
	for {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := client.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			break
		}
		select {
		case <-done:
			goto finished
		default:
		}
	}
finished:
	<-done

	s := string(got)
	assert.Contains(t, s, "HTTP/1.1 200 OK")
	assert.NotContains(t, s, "Connection: close")
	assert.Contains(t, s, "ok")
}
