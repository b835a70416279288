package accesslog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRecent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	log, err := Open(path, 2)
	require.NoError(t, err)
	defer log.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, log.Write(Entry{RemoteHost: "1.1.1.1", Time: base, Line: "GET /a HTTP/1.1", Status: 200, Bytes: 10}))
	require.NoError(t, log.Write(Entry{RemoteHost: "1.1.1.1", Time: base, Line: "GET /b HTTP/1.1", Status: 200, Bytes: 20}))
	require.NoError(t, log.Write(Entry{RemoteHost: "1.1.1.1", Time: base, Line: "GET /c HTTP/1.1", Status: 404, Bytes: 0}))

	recent, err := log.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2, "ring buffer must evict past its configured size")
	assert.Contains(t, recent[1], "/c")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "GET /a HTTP/1.1")
	assert.Contains(t, string(data), "GET /c HTTP/1.1")
}

func TestRotateGzipsAndTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	log, err := Open(path, 10)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Write(Entry{RemoteHost: "2.2.2.2", Time: time.Now(), Line: "RETR f.txt", Status: 226, Bytes: 100}))
	require.NoError(t, log.Rotate(path, "2026-01-01"))

	_, err = os.Stat(path + ".2026-01-01.gz")
	assert.NoError(t, err)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, fi.Size(), "rotate must leave a fresh empty log")
}
