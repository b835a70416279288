package channel

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	return server, client
}

func readAll(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := 0
	for got < n {
		m, err := conn.Read(buf[got:])
		require.NoError(t, err)
		got += m
	}
	return buf
}

func TestWriteDeliversBytes(t *testing.T) {
	server, client := pipe(t)
	ch := New(server, nil, 1<<20)

	done := make(chan struct{})
	go func() {
		n, err := ch.Write([]byte("hello"))
		assert.NoError(t, err)
		assert.Equal(t, 5, n)
		close(done)
	}()

	got := readAll(t, client, 5)
	assert.Equal(t, "hello", string(got))
	<-done
}

func TestCloseWhenDoneClosesAfterFlush(t *testing.T) {
	server, client := pipe(t)
	ch := New(server, nil, 1<<20)

	done := make(chan struct{})
	go func() {
		ch.Write([]byte("bye"))
		ch.CloseWhenDone()
		close(done)
	}()

	got := readAll(t, client, 3)
	assert.Equal(t, "bye", string(got))
	<-done

	_, err := ch.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestSetSyncSetAsyncToggleMode(t *testing.T) {
	server, _ := pipe(t)
	ch := New(server, nil, 1<<20)
	assert.Equal(t, ModeAsync, ch.mode)
	ch.SetSync()
	assert.Equal(t, ModeSync, ch.mode)
	ch.SetAsync()
	assert.Equal(t, ModeAsync, ch.mode)
}

func TestConcurrentChannelWriteDoesNotBlockCaller(t *testing.T) {
	server, client := pipe(t)
	cc := NewConcurrent(server, nil, 1<<20)
	defer cc.Close()

	n, err := cc.Write([]byte("async"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got := readAll(t, client, 5)
	assert.Equal(t, "async", string(got))
}
