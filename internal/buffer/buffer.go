// Package buffer implements an overflowable byte buffer: bytes are held
// in memory up to a configured threshold, then further appends spill to a
// temporary file transparently. It is the Go analogue of zope.server's
// buffers.OverflowableBuffer (see original_source/buffers.py), expressed
// with os.CreateTemp instead of a SpooledTemporaryFile.
package buffer

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// ErrClosed is returned by any operation on a buffer after Close.
var ErrClosed = errors.New("buffer: use of closed buffer")

// ErrInvalidState is returned by Skip when asked to skip past the end of
// the buffered data.
var ErrInvalidState = errors.New("buffer: invalid state")

// Buffer is an overflowable, FIFO byte buffer: append at the tail, get/skip
// at the head. Reads and writes may interleave freely.
type Buffer struct {
	overflow int64 // threshold past which new data spills to file

	mem    bytes.Buffer // in-memory prefix, already-consumed bytes dropped
	file   *os.File     // nil until the first spill
	length int64        // total unconsumed bytes (mem + file)

	// fileReadPos/fileWritePos track the spill file's read/write cursors
	// independently, since mem and file share one logical stream: mem
	// holds the head, file holds the tail.
	fileReadPos  int64
	fileWritePos int64

	closed bool
}

// New returns an empty Buffer that spills to a temp file once more than
// overflow bytes are outstanding.
func New(overflow int64) *Buffer {
	return &Buffer{overflow: overflow}
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int64 { return b.length }

// Append adds data to the tail of the buffer. Once the buffer's
// outstanding length exceeds the overflow threshold, data is written to a
// backing temp file instead of held in memory.
func (b *Buffer) Append(data []byte) error {
	if b.closed {
		return ErrClosed
	}
	if len(data) == 0 {
		return nil
	}
	if b.file == nil && b.length+int64(len(data)) <= b.overflow {
		b.mem.Write(data)
		b.length += int64(len(data))
		return nil
	}
	if err := b.ensureFile(); err != nil {
		return err
	}
	if _, err := b.file.Seek(b.fileWritePos, io.SeekStart); err != nil {
		return err
	}
	n, err := b.file.Write(data)
	b.fileWritePos += int64(n)
	b.length += int64(n)
	if err != nil {
		return err
	}
	return nil
}

func (b *Buffer) ensureFile() error {
	if b.file != nil {
		return nil
	}
	f, err := os.CreateTemp("", "multiserve-buffer-*.tmp")
	if err != nil {
		return err
	}
	// Move whatever is currently in memory into the file so there is a
	// single tail to append to from now on.
	if b.mem.Len() > 0 {
		if _, err := f.Write(b.mem.Bytes()); err != nil {
			f.Close()
			return err
		}
		b.fileWritePos = int64(b.mem.Len())
		b.mem.Reset()
	}
	b.file = f
	return nil
}

// Get returns up to n bytes from the head of the buffer without advancing
// the read position, unless skip is true in which case it also consumes
// them. n < 0 means "all remaining bytes".
func (b *Buffer) Get(n int64, skip bool) ([]byte, error) {
	if b.closed {
		return nil, ErrClosed
	}
	if n < 0 || n > b.length {
		n = b.length
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]byte, 0, n)
	remaining := n

	// Head bytes living in mem.
	if b.mem.Len() > 0 {
		memBytes := b.mem.Bytes()
		take := int64(len(memBytes))
		if take > remaining {
			take = remaining
		}
		out = append(out, memBytes[:take]...)
		remaining -= take
		if skip {
			b.mem.Next(int(take))
		}
	}

	// Remaining head bytes living in the spill file.
	if remaining > 0 && b.file != nil {
		if _, err := b.file.Seek(b.fileReadPos, io.SeekStart); err != nil {
			return nil, err
		}
		chunk := make([]byte, remaining)
		got, err := io.ReadFull(b.file, chunk)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, err
		}
		out = append(out, chunk[:got]...)
		if skip {
			b.fileReadPos += int64(got)
		}
	}

	if skip {
		b.length -= int64(len(out))
	}
	return out, nil
}

// Skip advances the read cursor by n bytes without returning them.
func (b *Buffer) Skip(n int64) error {
	if b.closed {
		return ErrClosed
	}
	if n > b.length {
		return ErrInvalidState
	}
	remaining := n
	if b.mem.Len() > 0 {
		take := int64(b.mem.Len())
		if take > remaining {
			take = remaining
		}
		b.mem.Next(int(take))
		remaining -= take
	}
	if remaining > 0 {
		b.fileReadPos += remaining
	}
	b.length -= n
	return nil
}

// File returns the backing spill file, or nil if nothing has overflowed
// yet. Callers that need a single io.Reader over everything buffered so
// far (e.g. to hand a completed body to an application) should use
// Reader instead.
func (b *Buffer) File() *os.File { return b.file }

// Reader returns an io.Reader over the unconsumed bytes, without
// disturbing the buffer's own read cursor (it reads a private copy of the
// cursor state).
func (b *Buffer) Reader() (io.Reader, error) {
	data, err := b.Get(-1, false)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// Close releases the spill file, if any.
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.file != nil {
		name := b.file.Name()
		err := b.file.Close()
		os.Remove(name)
		return err
	}
	return nil
}
