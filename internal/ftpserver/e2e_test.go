package ftpserver

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/require"

	"github.com/rclone/multiserve/internal/adjust"
	"github.com/rclone/multiserve/internal/dispatcher"
	"github.com/rclone/multiserve/internal/server"
	"github.com/rclone/multiserve/internal/trigger"
	"github.com/rclone/multiserve/internal/vfs"
)

// liveServer starts a real FTP server on an OS-assigned loopback port and
// returns a dialed, logged-in client plus the backing root directory.
// This exercises the full stack (reactor, dispatcher, commandParser,
// Session) the way a real FTP client would, rather than through
// net.Pipe as session_test.go does.
func liveServer(t *testing.T) (*ftp.ServerConn, string) {
	t.Helper()

	root := t.TempDir()
	access, err := vfs.NewLocalAccess(root)
	require.NoError(t, err)

	adj := adjust.Default()
	trig, err := trigger.New()
	require.NoError(t, err)
	disp := dispatcher.New(0, 0)
	disp.SetThreadCount(2)

	srv, err := server.New("ftp-e2e", "127.0.0.1", 0, adj, disp, trig, nil, nil)
	require.NoError(t, err)

	ftpSrv := NewServer("multiserve-ftp-test/1.0", srv.Port(), access, adj, trig)

	go srv.Serve(ftpSrv.ChannelFactory())

	t.Cleanup(func() {
		srv.Shutdown()
		disp.Shutdown(true, time.Second)
		trig.Close()
	})

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.Port()))
	var conn *ftp.ServerConn
	// The listening socket is already bound by server.New before Serve
	// registers it with the reactor; dial retries absorb the brief
	// window before the reactor's goroutine starts accepting.
	require.Eventually(t, func() bool {
		c, dialErr := ftp.Dial(addr, ftp.DialWithTimeout(time.Second))
		if dialErr != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	require.NotNil(t, conn)

	require.NoError(t, conn.Login("alice", "whatever"))
	return conn, root
}

func TestE2EStorThenRetrRoundTrips(t *testing.T) {
	conn, _ := liveServer(t)
	defer conn.Quit()

	payload := []byte("round trip payload")
	require.NoError(t, conn.Stor("greeting.txt", bytes.NewReader(payload)))

	resp, err := conn.Retr("greeting.txt")
	require.NoError(t, err)
	defer resp.Close()

	got := make([]byte, len(payload))
	n, err := resp.Read(got)
	require.NoError(t, err)
	require.Equal(t, payload, got[:n])
}

func TestE2EListSeesStoredFile(t *testing.T) {
	conn, root := liveServer(t)
	defer conn.Quit()

	require.NoError(t, os.WriteFile(filepath.Join(root, "existing.txt"), []byte("x"), 0o644))

	entries, err := conn.List("/")
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name] = true
	}
	require.True(t, names["existing.txt"])
}

func TestE2EDeleteRemovesFile(t *testing.T) {
	conn, root := liveServer(t)
	defer conn.Quit()

	path := filepath.Join(root, "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, conn.Delete("doomed.txt"))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestE2EMakeDirThenChangeDir(t *testing.T) {
	conn, _ := liveServer(t)
	defer conn.Quit()

	require.NoError(t, conn.MakeDir("subdir"))
	require.NoError(t, conn.ChangeDir("subdir"))
	dir, err := conn.CurrentDir()
	require.NoError(t, err)
	require.Equal(t, "/subdir", dir)
}
