package httpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclone/multiserve/internal/buffer"
)

func drain(t *testing.T, buf *buffer.Buffer) string {
	t.Helper()
	got, err := buf.Get(buf.Len(), false)
	require.NoError(t, err)
	return string(got)
}

func TestChunkedReceiverSingleChunk(t *testing.T) {
	buf := buffer.New(1 << 20)
	c := newChunkedReceiver(buf)
	data := []byte("5\r\nhello\r\n0\r\n\r\n")
	n := c.Received(data)
	assert.Equal(t, len(data), n)
	assert.True(t, c.Completed())
	assert.Equal(t, "hello", drain(t, buf))
}

func TestChunkedReceiverMultipleChunksAndExtension(t *testing.T) {
	buf := buffer.New(1 << 20)
	c := newChunkedReceiver(buf)
	data := []byte("4;ext=1\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")
	n := c.Received(data)
	assert.Equal(t, len(data), n)
	assert.True(t, c.Completed())
	assert.Equal(t, "Wikipedia", drain(t, buf))
}

func TestChunkedReceiverAcrossFeeds(t *testing.T) {
	buf := buffer.New(1 << 20)
	c := newChunkedReceiver(buf)
	c.Received([]byte("5\r\nhel"))
	assert.False(t, c.Completed())
	c.Received([]byte("lo\r\n0\r\n"))
	assert.False(t, c.Completed())
	c.Received([]byte("\r\n"))
	assert.True(t, c.Completed())
	assert.Equal(t, "hello", drain(t, buf))
}

func TestChunkedReceiverIgnoresTrailingDataAfterCompletion(t *testing.T) {
	buf := buffer.New(1 << 20)
	c := newChunkedReceiver(buf)
	data := []byte("3\r\nfoo\r\n0\r\n\r\n")
	n := c.Received(data)
	require.True(t, c.Completed())
	assert.Equal(t, len(data), n)
	extra := c.Received([]byte("garbage"))
	assert.Equal(t, 0, extra)
}
