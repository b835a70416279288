package httpserver

import "github.com/rclone/multiserve/internal/buffer"

// fixedStreamReceiver receives exactly length bytes of body, grounded on
// FixedStreamReceiver (zope.server.fixedstreamreceiver).
type fixedStreamReceiver struct {
	buf       *buffer.Buffer
	remaining int
}

func newFixedStreamReceiver(length int, buf *buffer.Buffer) *fixedStreamReceiver {
	return &fixedStreamReceiver{buf: buf, remaining: length}
}

func (f *fixedStreamReceiver) Buffer() *buffer.Buffer { return f.buf }
func (f *fixedStreamReceiver) Completed() bool         { return f.remaining <= 0 }

func (f *fixedStreamReceiver) Received(data []byte) int {
	n := len(data)
	if n > f.remaining {
		n = f.remaining
	}
	if n > 0 {
		f.buf.Append(data[:n])
		f.remaining -= n
	}
	return n
}
