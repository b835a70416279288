package ftpserver

import (
	"strings"

	"github.com/rclone/multiserve/internal/linereceiver"
	"github.com/rclone/multiserve/internal/server"
)

// maxLineLength bounds one control-channel command line, mirroring
// internal/linereceiver.MaxLineLength for the same reason: a client that
// never sends a newline must not grow the buffer unbounded.
const maxLineLength = linereceiver.MaxLineLength

// commandParser accumulates one CRLF-terminated control line and reports
// it as a linereceiver.Command, implementing internal/server.Parser. The
// framing logic mirrors internal/linereceiver.Reader.Next, adapted to
// the byte-slice-accumulation shape server.ChannelBase.Parser requires
// instead of a bufio.Reader pull model.
type commandParser struct {
	buf       []byte
	completed bool
	empty     bool
	cmd       linereceiver.Command
}

func newCommandParser() *commandParser { return &commandParser{} }

func (p *commandParser) Received(data []byte) int {
	if p.completed {
		return 0
	}
	for i, b := range data {
		if b == '\n' {
			line := append(p.buf, data[:i]...)
			p.buf = nil
			line = []byte(strings.TrimRight(string(line), "\r"))
			if len(line) == 0 {
				p.empty = true
			} else {
				verb, args, _ := strings.Cut(string(line), " ")
				p.cmd = linereceiver.Command{Verb: strings.ToUpper(verb), Args: args}
			}
			p.completed = true
			return i + 1
		}
	}
	p.buf = append(p.buf, data...)
	if len(p.buf) > maxLineLength {
		p.cmd = linereceiver.Command{Verb: tooLongVerb}
		p.completed = true
	}
	return len(data)
}

// tooLongVerb is a sentinel Session.dispatch replies to with ERR_ARGS
// instead of treating it as an unknown command.
const tooLongVerb = "__LINE_TOO_LONG__"

func (p *commandParser) Completed() bool { return p.completed }
func (p *commandParser) Empty() bool     { return p.empty }
func (p *commandParser) Request() server.Request {
	return p.cmd
}
