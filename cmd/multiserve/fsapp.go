package main

import (
	"context"
	"html/template"
	"io"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/rclone/multiserve/internal/httpserver"
	"github.com/rclone/multiserve/internal/vfs"
)

// fsApp is the httpserver.Application wired into "serve http": GET lists
// directories and streams files, PUT and DELETE mutate. It generalizes
// wsgihttpserver.py's trivial echo demo app to a real backing store
// instead of an environ dump, using the same vfs.Filesystem contract
// internal/ftpserver serves over FTP.
type fsApp struct {
	fs vfs.Filesystem
}

var _ httpserver.Application = (*fsApp)(nil)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html><head><title>Index of {{.Path}}</title></head>
<body>
<h1>Index of {{.Path}}</h1>
<ul>
{{range .Entries}}<li><a href="{{.Href}}">{{.Name}}</a></li>
{{end}}</ul>
</body></html>
`))

type listingEntry struct {
	Name string
	Href string
}

type listingPage struct {
	Path    string
	Entries []listingEntry
}

func (a *fsApp) Serve(env map[string]interface{}, startResponse func(status, reason string, headers [][2]string) func([]byte)) {
	method, _ := env["REQUEST_METHOD"].(string)
	reqPath, _ := env["PATH_INFO"].(string)
	if reqPath == "" {
		reqPath = "/"
	}
	reqPath = path.Clean(reqPath)
	ctx := context.Background()

	switch method {
	case "GET":
		a.serveGet(ctx, reqPath, false, startResponse)
	case "HEAD":
		a.serveGet(ctx, reqPath, true, startResponse)
	case "PUT":
		a.servePut(ctx, reqPath, env, startResponse)
	case "DELETE":
		a.serveDelete(ctx, reqPath, startResponse)
	default:
		write := startResponse("405", "Method Not Allowed", [][2]string{{"Allow", "GET, HEAD, PUT, DELETE"}})
		write(nil)
	}
}

func (a *fsApp) serveGet(ctx context.Context, reqPath string, headOnly bool, startResponse func(status, reason string, headers [][2]string) func([]byte)) {
	kind, err := a.fs.Type(ctx, reqPath)
	if err != nil {
		a.serveError(err, startResponse)
		return
	}
	if kind == vfs.KindMissing {
		write := startResponse("404", "Not Found", [][2]string{{"Content-Type", "text/plain"}})
		if !headOnly {
			write([]byte("not found\n"))
		}
		write(nil)
		return
	}
	if kind == vfs.KindDir {
		a.serveListing(ctx, reqPath, headOnly, startResponse)
		return
	}

	info, err := a.fs.Info(ctx, reqPath)
	if err != nil {
		a.serveError(err, startResponse)
		return
	}
	if headOnly {
		write := startResponse("200", "OK", [][2]string{
			{"Content-Type", "application/octet-stream"},
			{"Content-Length", strconv.FormatInt(info.Size, 10)},
		})
		write(nil)
		return
	}
	rc, err := a.fs.OpenRead(ctx, reqPath, 0)
	if err != nil {
		a.serveError(err, startResponse)
		return
	}
	defer rc.Close()
	write := startResponse("200", "OK", [][2]string{
		{"Content-Type", "application/octet-stream"},
		{"Content-Length", strconv.FormatInt(info.Size, 10)},
	})
	buf := make([]byte, 64*1024)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}
	write(nil)
}

func (a *fsApp) serveListing(ctx context.Context, reqPath string, headOnly bool, startResponse func(status, reason string, headers [][2]string) func([]byte)) {
	entries, err := a.fs.List(ctx, reqPath)
	if err != nil {
		a.serveError(err, startResponse)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	page := listingPage{Path: reqPath}
	for _, e := range entries {
		href := url.PathEscape(e.Name)
		if e.Kind == vfs.KindDir {
			href += "/"
		}
		page.Entries = append(page.Entries, listingEntry{Name: e.Name, Href: href})
	}
	var buf strings.Builder
	if err := listingTemplate.Execute(&buf, page); err != nil {
		a.serveError(err, startResponse)
		return
	}
	write := startResponse("200", "OK", [][2]string{
		{"Content-Type", "text/html; charset=utf-8"},
		{"Content-Length", strconv.Itoa(buf.Len())},
	})
	if !headOnly {
		write([]byte(buf.String()))
	}
	write(nil)
}

func (a *fsApp) servePut(ctx context.Context, reqPath string, env map[string]interface{}, startResponse func(status, reason string, headers [][2]string) func([]byte)) {
	w, err := a.fs.OpenWrite(ctx, reqPath, false)
	if err != nil {
		a.serveError(err, startResponse)
		return
	}
	if body, _ := env["wsgi.input"].(io.Reader); body != nil {
		if _, err := io.Copy(w, body); err != nil {
			w.Close()
			a.serveError(err, startResponse)
			return
		}
	}
	if err := w.Close(); err != nil {
		a.serveError(err, startResponse)
		return
	}
	write := startResponse("201", "Created", nil)
	write(nil)
}

func (a *fsApp) serveDelete(ctx context.Context, reqPath string, startResponse func(status, reason string, headers [][2]string) func([]byte)) {
	kind, err := a.fs.Type(ctx, reqPath)
	if err != nil {
		a.serveError(err, startResponse)
		return
	}
	if kind == vfs.KindMissing {
		write := startResponse("404", "Not Found", nil)
		write(nil)
		return
	}
	if kind == vfs.KindDir {
		err = a.fs.Rmdir(ctx, reqPath)
	} else {
		err = a.fs.Remove(ctx, reqPath)
	}
	if err != nil {
		a.serveError(err, startResponse)
		return
	}
	write := startResponse("204", "No Content", nil)
	write(nil)
}

func (a *fsApp) serveError(err error, startResponse func(status, reason string, headers [][2]string) func([]byte)) {
	write := startResponse("500", "Internal Server Error", [][2]string{{"Content-Type", "text/plain"}})
	write([]byte(err.Error() + "\n"))
	write(nil)
}
