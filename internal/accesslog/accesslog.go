// Package accesslog writes Common-Log-Format HTTP access records and FTP
// command hit records, grounded on the access-logging hook
// serverchannelbase.py leaves for subclasses (log_info/received),
// generalized into a proper sink: klauspost/compress handles
// rotation-time gzip of closed log segments, go.etcd.io/bbolt backs a
// small durable ring buffer of the most recent entries for the admin
// HTTP surface's "recent activity" view.
package accesslog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	bolt "go.etcd.io/bbolt"
)

var recentBucket = []byte("recent")

// Entry is one logged request, shaped after the Common Log Format
// fields httptask.py's buildResponseHeader implicitly tracks (peer,
// time, request line, status, byte count).
type Entry struct {
	RemoteHost string
	Time       time.Time
	Line       string // e.g. "GET /foo HTTP/1.1" or "RETR foo.txt"
	Status     int
	Bytes      int64
}

// Log writes entries to a rotating plaintext file and mirrors the most
// recent ones into a bbolt-backed ring buffer for fast retrieval.
type Log struct {
	mu       sync.Mutex
	w        io.Writer
	file     *os.File
	db       *bolt.DB
	ringSize int
	seq      uint64
}

// Open creates (or appends to) the access log at path, and a sibling
// bbolt database at path+".db" holding the last ringSize entries.
func Open(path string, ringSize int) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	db, err := bolt.Open(path+".db", 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		f.Close()
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recentBucket)
		return err
	})
	if err != nil {
		f.Close()
		db.Close()
		return nil, err
	}
	return &Log{w: f, file: f, db: db, ringSize: ringSize}, nil
}

// Write formats e in Common Log Format and appends it, then records it
// in the ring buffer, evicting the oldest entry once ringSize is
// exceeded.
func (l *Log) Write(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("%s - - [%s] %q %d %d\n",
		e.RemoteHost, e.Time.Format("02/Jan/2006:15:04:05 -0700"), e.Line, e.Status, e.Bytes)
	if _, err := io.WriteString(l.w, line); err != nil {
		return err
	}

	l.seq++
	key := itob(l.seq)
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recentBucket)
		if err := b.Put(key, []byte(line)); err != nil {
			return err
		}
		if l.ringSize > 0 {
			n := 0
			c := b.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				n++
			}
			for ; n > l.ringSize; n-- {
				oldest, _ := b.Cursor().First()
				if oldest == nil {
					break
				}
				if err := b.Delete(oldest); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Recent returns up to n of the most recently written log lines, newest
// last.
func (l *Log) Recent(n int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var lines []string
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recentBucket)
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(lines) < n; k, v = c.Prev() {
			lines = append([]string{string(v)}, lines...)
		}
		return nil
	})
	return lines, err
}

// Rotate closes the current log file, gzips it to path+"."+suffix+".gz"
// and reopens a fresh file at the original path.
func (l *Log) Rotate(path, suffix string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return err
	}
	if err := gzipFile(path, path+"."+suffix+".gz"); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	l.w = f
	return nil
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

// Close closes the log file and the ring buffer database.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ferr := l.file.Close()
	derr := l.db.Close()
	if ferr != nil {
		return ferr
	}
	return derr
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
