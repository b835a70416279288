package ftpserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclone/multiserve/internal/adjust"
	"github.com/rclone/multiserve/internal/server"
	"github.com/rclone/multiserve/internal/vfs"
)

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close(); clientConn.Close() })

	adj := adjust.Default()
	cb := server.NewChannelBase(nil, serverConn, adj, nil,
		func() server.Parser { return newCommandParser() },
		nil,
	)

	root := t.TempDir()
	access, err := vfs.NewLocalAccess(root)
	require.NoError(t, err)

	srv := NewServer("multiserve-ftp/1.0", 21, access, adj, nil)
	sess := newSession(srv, cb, serverConn.LocalAddr().String(), "127.0.0.1")

	fs, err := access.Open(context.Background(), vfs.Credentials{})
	require.NoError(t, err)
	sess.fs = fs
	sess.authenticated = true
	return sess, clientConn
}

func readReply(t *testing.T, conn net.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestCmdPwdAndCwd(t *testing.T) {
	sess, client := newTestSession(t)
	go sess.dispatch(context.Background(), "PWD", "")
	assert.Contains(t, readReply(t, client), `"/" is the current directory`)

	require.NoError(t, sess.fs.Mkdir(context.Background(), "/sub"))
	go sess.dispatch(context.Background(), "CWD", "sub")
	assert.Contains(t, readReply(t, client), "CWD command successful")
	assert.Equal(t, "/sub", sess.cwd)
}

func TestCmdMkdRmd(t *testing.T) {
	sess, client := newTestSession(t)
	go sess.dispatch(context.Background(), "MKD", "docs")
	assert.Contains(t, readReply(t, client), "MKD command successful")

	go sess.dispatch(context.Background(), "RMD", "docs")
	assert.Contains(t, readReply(t, client), "RMD command successful")
}

func TestCmdUserRequiresArgs(t *testing.T) {
	sess, client := newTestSession(t)
	go sess.dispatch(context.Background(), "USER", "")
	assert.Contains(t, readReply(t, client), "Bad command arguments")
}

func TestCmdTypeSwitchesMode(t *testing.T) {
	sess, client := newTestSession(t)
	go sess.dispatch(context.Background(), "TYPE", "I")
	assert.Contains(t, readReply(t, client), "Type set to Binary")
	assert.Equal(t, "i", sess.transferMode)
}

func TestCmdSize(t *testing.T) {
	sess, client := newTestSession(t)
	w, err := sess.fs.OpenWrite(context.Background(), "/f.txt", false)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	go sess.dispatch(context.Background(), "SIZE", "f.txt")
	assert.Contains(t, readReply(t, client), "213 5 Bytes")
}

func TestCmdRnfrRntoRenamesFile(t *testing.T) {
	sess, client := newTestSession(t)
	w, err := sess.fs.OpenWrite(context.Background(), "/a.txt", false)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	go sess.dispatch(context.Background(), "RNFR", "a.txt")
	assert.Contains(t, readReply(t, client), "ready for destination")

	go sess.dispatch(context.Background(), "RNTO", "b.txt")
	assert.Contains(t, readReply(t, client), "RNTO command successful")

	kind, err := sess.fs.Type(context.Background(), "/b.txt")
	require.NoError(t, err)
	assert.Equal(t, vfs.KindFile, kind)
}

func TestCmdMode(t *testing.T) {
	sess, client := newTestSession(t)
	go sess.dispatch(context.Background(), "MODE", "S")
	assert.Contains(t, readReply(t, client), "MODE S Ok")

	go sess.dispatch(context.Background(), "MODE", "Z")
	assert.Contains(t, readReply(t, client), replyModeUnknown)
}
