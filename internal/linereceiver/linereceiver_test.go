package linereceiver

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextParsesVerbAndArgs(t *testing.T) {
	r := NewReader(bufio.NewReader(strings.NewReader("USER anonymous\r\nQUIT\r\n")))

	cmd, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "USER", cmd.Verb)
	assert.Equal(t, "anonymous", cmd.Args)

	cmd, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "QUIT", cmd.Verb)
	assert.Empty(t, cmd.Args)
}

func TestNextRejectsOverlongLine(t *testing.T) {
	long := strings.Repeat("a", MaxLineLength+10) + "\r\n"
	r := NewReader(bufio.NewReader(strings.NewReader(long)))
	_, err := r.Next()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

type fakeHandler struct {
	auth        bool
	dispatched  []string
	unauthCount int
	unknownVerb string
}

func (f *fakeHandler) RequiresAuth(verb string) bool { return verb != "USER" && verb != "PASS" }
func (f *fakeHandler) RunsInWorker(verb string) bool { return verb == "RETR" }
func (f *fakeHandler) Authenticated() bool           { return f.auth }
func (f *fakeHandler) Dispatch(ctx context.Context, cmd Command) {
	f.dispatched = append(f.dispatched, cmd.Verb)
}
func (f *fakeHandler) ReplyNotAuthenticated()     { f.unauthCount++ }
func (f *fakeHandler) ReplyUnknownCommand(v string) { f.unknownVerb = v }
func (f *fakeHandler) Known(verb string) bool {
	switch verb {
	case "USER", "PASS", "RETR", "PWD":
		return true
	default:
		return false
	}
}

func TestSubmitRejectsUnauthenticated(t *testing.T) {
	h := &fakeHandler{}
	Submit(context.Background(), h, Command{Verb: "PWD"}, func(func()) { t.Fatal("must not dispatch to worker") })
	assert.Equal(t, 1, h.unauthCount)
	assert.Empty(t, h.dispatched)
}

func TestSubmitRunsAuthExemptCommandInline(t *testing.T) {
	h := &fakeHandler{}
	Submit(context.Background(), h, Command{Verb: "USER", Args: "anon"}, func(func()) { t.Fatal("must not dispatch to worker") })
	assert.Equal(t, []string{"USER"}, h.dispatched)
}

func TestSubmitRoutesWorkerCommandsThroughSubmitWork(t *testing.T) {
	h := &fakeHandler{auth: true}
	var ran bool
	Submit(context.Background(), h, Command{Verb: "RETR", Args: "f.txt"}, func(work func()) {
		ran = true
		work()
	})
	assert.True(t, ran)
	assert.Equal(t, []string{"RETR"}, h.dispatched)
}

func TestSubmitRejectsUnknownCommand(t *testing.T) {
	h := &fakeHandler{auth: true}
	Submit(context.Background(), h, Command{Verb: "BOGUS"}, func(func()) { t.Fatal("must not dispatch") })
	assert.Equal(t, "BOGUS", h.unknownVerb)
}
