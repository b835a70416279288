package httpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rclone/multiserve/internal/logx"
	"github.com/rclone/multiserve/internal/server"
)

// httpDateFormat is the RFC 1123 wire format used for the Date header,
// matching build_http_date.
const httpDateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Application is the WSGI-shaped entry point a protocol host implements,
// grounded on wsgihttpserver.py's WSGIHTTPServer.executeRequest: the
// server calls Serve with a CGI-like environment and a startResponse
// callback; the returned writer receives body bytes.
type Application interface {
	Serve(env map[string]interface{}, startResponse func(status, reason string, headers [][2]string) func([]byte))
}

var renameHeaders = map[string]string{
	"CONTENT_LENGTH": "CONTENT_LENGTH",
	"CONTENT_TYPE":   "CONTENT_TYPE",
	"CONNECTION":     "CONNECTION_TYPE",
}

// Task executes one HTTP request against an Application and writes the
// response back through the owning channel. Grounded field-for-field on
// httptask.py's HTTPTask.
type Task struct {
	channel *server.ChannelBase
	req     *RequestParser
	srv     *Server

	version   string
	startTime time.Time

	status string
	reason string

	responseHeaders    map[string]string
	accumulatedHeaders []string
	wroteHeader        bool
	bytesWritten       int64
	closeOnFinish      bool

	correlationID string
}

// NewTask builds a Task for req on channel, served by srv.
func NewTask(channel *server.ChannelBase, req *RequestParser, srv *Server) *Task {
	version := req.Version
	if version != "1.0" && version != "1.1" {
		version = "1.0"
	}
	return &Task{
		channel:         channel,
		req:             req,
		srv:             srv,
		version:         version,
		status:          "200",
		reason:          "OK",
		responseHeaders: map[string]string{},
		correlationID:   uuid.NewString(),
	}
}

// Defer records the task's creation time, the instant it was handed to
// the dispatcher, the same point AbstractTask.__init__ effectively
// captures start_time.
func (t *Task) Defer() { t.startTime = time.Now() }

// Service runs the application and finishes the response, then tells
// the channel whether to keep reading more pipelined requests.
func (t *Task) Service() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf(logx.S("httpserver"), "%s: application panicked: %v", t.correlationID, r)
			t.status, t.reason = "500", "Internal Server Error"
		}
		t.finish()
		t.channel.EndTask(t.closeOnFinish)
	}()

	env := t.cgiEnvironment()
	t.srv.Application.Serve(env, t.startResponse)
}

// Cancel runs when the dispatcher drops the task without servicing it
// (shutdown with pending tasks canceled); the channel is told to close,
// matching end_task(1)'s close_when_done effect.
func (t *Task) Cancel() {
	t.channel.EndTask(true)
}

func (t *Task) startResponse(status, reason string, headers [][2]string) func([]byte) {
	t.status, t.reason = status, reason
	for _, hv := range headers {
		t.accumulatedHeaders = append(t.accumulatedHeaders, hv[0]+": "+hv[1])
	}
	return t.Write
}

// Write sends response bytes, building and sending the header block the
// first time it is called (even with empty data, matching finish()'s
// "if not wrote_header: write(b'')").
func (t *Task) Write(data []byte) int {
	if !t.wroteHeader {
		header := t.buildResponseHeader()
		t.channel.Write([]byte(header))
		t.bytesWritten += int64(len(header))
		t.wroteHeader = true
	}
	if len(data) > 0 {
		n, _ := t.channel.Write(data)
		t.bytesWritten += int64(n)
	}
	return len(data)
}

func (t *Task) finish() {
	if !t.wroteHeader {
		t.Write(nil)
	}
}

// prepareResponseHeaders decides whether the connection closes after
// this response, matching HTTPTask.prepareResponseHeaders.
func (t *Task) prepareResponseHeaders() {
	connection := strings.ToLower(t.req.Headers["CONNECTION"])
	closeIt := false

	lowerAccum := make([]string, len(t.accumulatedHeaders))
	for i, h := range t.accumulatedHeaders {
		lowerAccum[i] = strings.ToLower(h)
	}

	hasPrefix := func(prefix string) bool {
		for _, h := range lowerAccum {
			if strings.HasPrefix(h, prefix) {
				return true
			}
		}
		return false
	}

	switch t.version {
	case "1.0":
		if connection == "keep-alive" {
			if !hasPrefix("content-length") {
				closeIt = true
			} else {
				t.responseHeaders["Connection"] = "Keep-Alive"
			}
		} else {
			closeIt = true
		}
	case "1.1":
		if hasPrefix("connection: close") {
			closeIt = true
		}
		if connection == "close" {
			closeIt = true
		} else if hasPrefix("transfer-encoding: chunked") {
			// chunked response, connection may stay open
		} else if hasPrefix("transfer-encoding") {
			closeIt = true
		} else if t.status == "304" {
			// headers only
		} else if !hasPrefix("content-length") {
			closeIt = true
		}
	default:
		closeIt = true
	}

	t.closeOnFinish = closeIt
	if closeIt {
		t.responseHeaders["Connection"] = "close"
	}

	if !hasPrefix("server") {
		t.responseHeaders["Server"] = t.srv.Ident
	} else {
		t.responseHeaders["Via"] = t.srv.Ident
	}
	if !hasPrefix("date") {
		t.responseHeaders["Date"] = t.startTime.UTC().Format(httpDateFormat)
	}
}

func (t *Task) buildResponseHeader() string {
	t.prepareResponseHeaders()
	lines := []string{fmt.Sprintf("HTTP/%s %s %s", t.version, t.status, t.reason)}
	for k, v := range t.responseHeaders {
		lines = append(lines, k+": "+v)
	}
	lines = append(lines, t.accumulatedHeaders...)
	return strings.Join(lines, "\r\n") + "\r\n\r\n"
}

// cgiEnvironment builds the request environment passed to Application,
// grounded on HTTPTask.getCGIEnvironment.
func (t *Task) cgiEnvironment() map[string]interface{} {
	path := strings.TrimLeft(t.req.Path, "/")
	env := map[string]interface{}{
		"REQUEST_METHOD":        strings.ToUpper(t.req.Command),
		"SERVER_PORT":           fmt.Sprintf("%d", t.srv.Port),
		"SERVER_NAME":           t.srv.Name,
		"SERVER_SOFTWARE":       t.srv.Ident,
		"SERVER_PROTOCOL":       "HTTP/" + t.version,
		"CHANNEL_CREATION_TIME": float64(t.channel.CreationTime().UnixNano()) / 1e9,
		"SCRIPT_NAME":           "",
		"PATH_INFO":             "/" + path,
		"QUERY_STRING":          t.req.Query,
		"GATEWAY_INTERFACE":     "CGI/1.1",
		"REMOTE_ADDR":           t.channel.RemoteIP(),
		"X_CORRELATION_ID":      t.correlationID,
	}
	if t.srv.Resolver != nil {
		env["REMOTE_HOST"] = t.srv.Resolver.Resolve(context.Background(), t.channel.RemoteIP())
	}
	if body, err := t.req.Body(); err == nil && body != nil {
		env["wsgi.input"] = body
	}
	for key, value := range t.req.Headers {
		mykey, ok := renameHeaders[key]
		if !ok {
			mykey = "HTTP_" + key
		}
		if _, exists := env[mykey]; !exists {
			env[mykey] = strings.TrimSpace(value)
		}
	}
	return env
}
