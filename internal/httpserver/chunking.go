package httpserver

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/rclone/multiserve/internal/buffer"
)

// chunkedReceiver decodes an HTTP/1.1 chunked transfer-encoded body,
// grounded field-for-field on
// original_source/src/zope/server/http/chunking.py's ChunkedReceiver.
type chunkedReceiver struct {
	buf *buffer.Buffer

	chunkRemainder   int
	controlLine      []byte
	allChunksReceived bool
	trailer          []byte
	completed        bool
}

func newChunkedReceiver(buf *buffer.Buffer) *chunkedReceiver {
	return &chunkedReceiver{buf: buf}
}

func (c *chunkedReceiver) Buffer() *buffer.Buffer { return c.buf }
func (c *chunkedReceiver) Completed() bool         { return c.completed }

// Received decodes as much of s as forms complete chunks, writing
// decoded payload to buf, and returns the number of input bytes
// consumed.
func (c *chunkedReceiver) Received(s []byte) int {
	if c.completed {
		return 0
	}
	origSize := len(s)
	for len(s) > 0 {
		switch {
		case c.chunkRemainder > 0:
			n := c.chunkRemainder
			if n > len(s) {
				n = len(s)
			}
			c.buf.Append(s[:n])
			s = s[n:]
			c.chunkRemainder -= n

		case !c.allChunksReceived:
			combined := append(c.controlLine, s...)
			pos := bytes.IndexByte(combined, '\n')
			if pos < 0 {
				c.controlLine = combined
				s = nil
				break
			}
			line := bytes.TrimSpace(combined[:pos])
			consumedFromCombined := pos + 1
			s = combined[consumedFromCombined:]
			c.controlLine = nil
			if len(line) > 0 {
				if semi := bytes.IndexByte(line, ';'); semi >= 0 {
					line = line[:semi]
				}
				sz, err := strconv.ParseInt(strings.TrimSpace(string(line)), 16, 64)
				if err != nil {
					sz = 0
				}
				if sz > 0 {
					c.chunkRemainder = int(sz)
				} else {
					c.allChunksReceived = true
				}
			}

		default:
			trailer := append(c.trailer, s...)
			if bytes.HasPrefix(trailer, []byte("\r\n")) {
				c.completed = true
				return origSize - (len(trailer) - 2)
			}
			if bytes.HasPrefix(trailer, []byte("\n")) {
				c.completed = true
				return origSize - (len(trailer) - 1)
			}
			pos := findDoubleNewline(trailer)
			if pos < 0 {
				c.trailer = trailer
				s = nil
			} else {
				c.completed = true
				c.trailer = trailer[:pos]
				return origSize - (len(trailer) - pos)
			}
		}
	}
	return origSize
}
