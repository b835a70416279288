// Package linereceiver implements the line-oriented command parser and
// dispatch loop shared by protocols that speak CRLF-terminated commands
// over a control connection (here, internal/ftpserver). It is grounded
// on original_source/linereceiver/lineserverchannel.go's
// LineServerChannel and linecommandparser.py's LineCommandParser.
package linereceiver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rclone/multiserve/internal/logx"
)

// MaxLineLength bounds a single command line the same way
// LineCommandParser.max_line_length did: Next rejects a line longer than
// this many bytes (terminator included) with ErrLineTooLong; it does not
// close the connection.
const MaxLineLength = 1024

// ErrLineTooLong is returned by Next when a complete line, terminator
// included, is longer than MaxLineLength.
var ErrLineTooLong = errors.New("linereceiver: line exceeds maximum length")

// Command is one parsed input line, split the way parseLine did: on the
// first space, into a verb and the rest of the line as a single
// argument string (FTP commands parse their own argument syntax from
// Args).
type Command struct {
	Verb string
	Args string
}

// Reader incrementally parses CRLF- or LF-terminated command lines off a
// bufio.Reader.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r for line-oriented command parsing.
func NewReader(br *bufio.Reader) *Reader {
	return &Reader{br: br}
}

// Next blocks until a full line is available, parses it, and returns the
// Command. It mirrors LineCommandParser.received+parseLine: strip
// trailing CR/LF, split on the first space.
func (r *Reader) Next() (Command, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		return Command{}, err
	}
	if len(line) > MaxLineLength {
		return Command{}, ErrLineTooLong
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 2)
	cmd := Command{Verb: strings.ToUpper(parts[0])}
	if len(parts) == 2 {
		cmd.Args = parts[1]
	}
	return cmd, nil
}

// Handler executes one parsed Command against channel-specific state.
// RunsInWorker reports whether process_request should hand the command
// to the dispatcher (thread_commands in the original) instead of running
// it inline on the reader's goroutine.
type Handler interface {
	// RequiresAuth reports whether cmd may only run after authentication
	// (special_commands in the original list the verbs for which it is
	// false).
	RequiresAuth(verb string) bool
	// RunsInWorker reports whether cmd must be dispatched to a worker
	// (thread_commands in the original).
	RunsInWorker(verb string) bool
	// Authenticated reports the channel's current login state.
	Authenticated() bool
	// Dispatch executes cmd inline. Used both for commands that always
	// run inline and, by the caller, for commands run on a worker.
	Dispatch(ctx context.Context, cmd Command)
	// ReplyNotAuthenticated is sent in place of Dispatch when
	// RequiresAuth is true and Authenticated is false.
	ReplyNotAuthenticated()
	// ReplyUnknownCommand is sent when no verb matches at all.
	ReplyUnknownCommand(verb string)
	// Known reports whether verb names a real command at all,
	// independent of auth/threading.
	Known(verb string) bool
}

// Submit is called once per parsed Command by the owning control
// channel's read loop (see internal/ftpserver). When the handler says
// the command runs in a worker, submit is invoked with a thunk the
// caller should hand to its dispatcher instead of running inline,
// reproducing process_request's "return self.task_class(...)" branch
// without this package depending on internal/dispatcher directly.
func Submit(ctx context.Context, h Handler, cmd Command, submitWork func(func())) {
	if !h.Known(cmd.Verb) {
		h.ReplyUnknownCommand(cmd.Verb)
		return
	}
	if h.RequiresAuth(cmd.Verb) && !h.Authenticated() {
		h.ReplyNotAuthenticated()
		return
	}
	if h.RunsInWorker(cmd.Verb) {
		submitWork(func() {
			defer recoverInto(cmd.Verb)
			h.Dispatch(ctx, cmd)
		})
		return
	}
	defer recoverInto(cmd.Verb)
	h.Dispatch(ctx, cmd)
}

func recoverInto(verb string) {
	if r := recover(); r != nil {
		logx.Errorf(logx.S("linereceiver"), "command %s panicked: %v", verb, r)
	}
}

// FormatReply renders a status line, appending CRLF, matching
// LineServerChannel.reply's "%s\r\n" % msg framing.
func FormatReply(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...) + "\r\n"
}
