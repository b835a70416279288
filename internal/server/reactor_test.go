package server

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipePollable adapts an os.Pipe's read end to the Pollable interface,
// counting reads instead of doing anything with the bytes.
type pipePollable struct {
	r     *os.File
	reads int32
}

func (p *pipePollable) FD() int        { return int(p.r.Fd()) }
func (p *pipePollable) Readable() bool { return true }
func (p *pipePollable) Writable() bool { return false }
func (p *pipePollable) HandleWrite()   {}
func (p *pipePollable) HandleError(error) {}
func (p *pipePollable) HandleRead() {
	buf := make([]byte, 64)
	p.r.Read(buf)
	atomic.AddInt32(&p.reads, 1)
}

func TestReactorDeliversReadableEvents(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	reactor, err := NewReactor()
	require.NoError(t, err)

	pollable := &pipePollable{r: r}
	require.NoError(t, reactor.Register(pollable))

	go reactor.Run(nil)
	defer reactor.Close()

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&pollable.reads) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestReactorRunsOnIdleEveryCycle(t *testing.T) {
	reactor, err := NewReactor()
	require.NoError(t, err)

	var ticks int32
	go reactor.Run(func() { atomic.AddInt32(&ticks, 1) })
	defer reactor.Close()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ticks) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReactorCloseStopsRun(t *testing.T) {
	reactor, err := NewReactor()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		reactor.Run(nil)
		close(done)
	}()

	require.NoError(t, reactor.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
