// Package httpserver implements incremental HTTP/1.x request parsing and
// WSGI-shaped task execution, grounded on
// original_source/src/zope/server/http/httprequestparser.py,
// chunking.py, and httptask.py.
package httpserver

import (
	"bytes"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rclone/multiserve/internal/adjust"
	"github.com/rclone/multiserve/internal/buffer"
	"github.com/rclone/multiserve/internal/server"
)

// bodyReceiver is satisfied by both chunkedReceiver and
// fixedStreamReceiver: the two ways a request body can be delimited.
type bodyReceiver interface {
	Received(data []byte) (consumed int)
	Completed() bool
	Buffer() *buffer.Buffer
}

// RequestParser incrementally parses one HTTP request off the wire. It
// implements internal/server.Parser. Grounded field-for-field on
// HTTPRequestParser.
type RequestParser struct {
	adj *adjust.Adjustments

	completed bool
	empty     bool

	headerPlus []byte
	bodyRcv    bodyReceiver
	chunked    bool

	FirstLine string
	Command   string
	URI       string
	Version   string
	Path      string
	Query     string
	Headers   map[string]string
}

// NewRequestParser returns a fresh parser, called once per request the
// way HTTPRequestParser.__init__ did.
func NewRequestParser(adj *adjust.Adjustments) *RequestParser {
	return &RequestParser{adj: adj, Headers: map[string]string{}}
}

// Received feeds bytes to the parser, returning how many it consumed.
// Matches HTTPRequestParser.received: accumulate header_plus until a
// blank line, then hand remaining bytes to a body receiver.
func (p *RequestParser) Received(data []byte) int {
	if p.completed {
		return 0
	}
	if p.bodyRcv == nil {
		s := append(append([]byte(nil), p.headerPlus...), data...)
		idx := findDoubleNewline(s)
		if idx < 0 {
			if len(bytes.TrimLeft(s, " \t\r\n")) == 0 && bytes.HasSuffix(s, []byte("\n")) {
				p.empty = true
				p.completed = true
				return len(data)
			}
			p.headerPlus = s
			return len(data)
		}
		consumed := len(data) - (len(s) - idx)
		headerPlus := bytes.TrimLeft(s[:idx], " \t\r\n")
		if len(headerPlus) == 0 {
			p.empty = true
			p.completed = true
			return consumed
		}
		p.parseHeader(headerPlus)
		if p.bodyRcv == nil {
			p.completed = true
			return consumed
		}
		return consumed + p.Received(data[consumed:])
	}
	consumed := p.bodyRcv.Received(data)
	if p.bodyRcv.Completed() {
		p.completed = true
	}
	return consumed
}

// Completed reports whether a full request (headers and, if any, body)
// has been received.
func (p *RequestParser) Completed() bool { return p.completed }

// Empty reports whether the parser consumed only blank lines and never
// saw a real request (matching the original's keep-alive ping handling).
func (p *RequestParser) Empty() bool { return p.empty }

// Request returns itself boxed as server.Request, since RequestParser
// carries everything a Task needs once Completed is true.
func (p *RequestParser) Request() server.Request { return p }

// Body returns a reader over the received request body, or nil if the
// request carried none. Mirrors the original's get_body_stream, exposed
// to an Application through cgiEnvironment's "wsgi.input" key.
func (p *RequestParser) Body() (io.Reader, error) {
	if p.bodyRcv == nil {
		return nil, nil
	}
	return p.bodyRcv.Buffer().Reader()
}

func (p *RequestParser) parseHeader(headerPlus []byte) {
	idx := bytes.IndexByte(headerPlus, '\n')
	var firstLine, header []byte
	if idx >= 0 {
		firstLine = bytes.TrimRight(headerPlus[:idx], "\r")
		header = headerPlus[idx+1:]
	} else {
		firstLine = bytes.TrimRight(headerPlus, "\r")
	}
	p.FirstLine = string(firstLine)

	for _, line := range foldHeaderLines(string(header)) {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToUpper(strings.ReplaceAll(line[:colon], "-", "_"))
		value := strings.TrimSpace(line[colon+1:])
		if existing, ok := p.Headers[key]; ok {
			p.Headers[key] = existing + ", " + value
		} else {
			p.Headers[key] = value
		}
	}

	method, uri, version := crackFirstLine(p.FirstLine)
	p.Command = strings.ToUpper(method)
	p.URI = uri
	p.Version = version
	p.Path, p.Query = splitURI(uri)

	if version == "1.1" && strings.EqualFold(p.Headers["TRANSFER_ENCODING"], "chunked") {
		p.chunked = true
		p.bodyRcv = newChunkedReceiver(buffer.New(p.adj.InbufOverflow))
		return
	}
	cl, _ := strconv.Atoi(p.Headers["CONTENT_LENGTH"])
	if cl > 0 {
		p.bodyRcv = newFixedStreamReceiver(cl, buffer.New(p.adj.InbufOverflow))
	}
}

// foldHeaderLines joins continuation lines (leading space/tab) onto the
// previous header, matching get_header_lines.
func foldHeaderLines(header string) []string {
	var out []string
	for _, line := range strings.Split(header, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') && len(out) > 0 {
			out[len(out)-1] += line[1:]
		} else {
			out = append(out, line)
		}
	}
	return out
}

var firstLineRE = regexp.MustCompile(`^(\S+) (\S+)( HTTP/([0-9.]+))?$`)

// crackFirstLine parses "METHOD URI HTTP/x.y", matching
// HTTPRequestParser.crack_first_line; a line with no trailing version
// (an HTTP/0.9 simple request) still returns method and uri.
func crackFirstLine(line string) (method, uri, version string) {
	m := firstLineRE.FindStringSubmatch(line)
	if m == nil {
		return "", "", ""
	}
	return m[1], m[2], m[4]
}

// splitURI mirrors split_uri: percent-decode only the path component.
func splitURI(uri string) (path, query string) {
	p := uri
	if idx := strings.IndexByte(p, '#'); idx >= 0 {
		p = p[:idx]
	}
	if idx := strings.IndexByte(p, '?'); idx >= 0 {
		query = p[idx+1:]
		p = p[:idx]
	}
	if strings.ContainsRune(p, '%') {
		if decoded, err := url.PathUnescape(p); err == nil {
			p = decoded
		}
	}
	return p, query
}

// findDoubleNewline reports the index just past the first blank line
// ("\n\n" or "\r\n\r\n") in s, or -1, matching
// zope.server.utilities.find_double_newline.
func findDoubleNewline(s []byte) int {
	if idx := bytes.Index(s, []byte("\r\n\r\n")); idx >= 0 {
		return idx + 4
	}
	if idx := bytes.Index(s, []byte("\n\n")); idx >= 0 {
		return idx + 2
	}
	return -1
}
