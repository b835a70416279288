// Package vfs defines the filesystem contract consumed by internal/ftpserver
// (and, for static file serving, cmd/multiserve's HTTP application). It
// is grounded on
// the fs_access.open(credentials) / IFileSystemAccess contract implied by
// original_source/ftp/server.py's _getFileSystem, ls, lsinfo, names, and
// backend/local/local.go's Fs interface shape (stat-like Info objects,
// error-returning mutators, io.ReadCloser/WriteCloser for data transfer).
package vfs

import (
	"context"
	"errors"
	"io"
	"time"
)

// EntryKind mirrors the single-character type codes ('f', 'd', '' for
// missing) returned by the original filesystem's type() method.
type EntryKind int

const (
	// KindMissing means the path does not exist.
	KindMissing EntryKind = iota
	KindFile
	KindDir
)

// Info describes one filesystem entry, enough to format both a short
// NLST line and a long ls -l style line (see internal/ftpserver/list.go).
type Info struct {
	Name    string
	Kind    EntryKind
	Size    int64
	Mode    uint32 // unix-style permission bits, low 9 bits meaningful
	ModTime time.Time
	// NLinks, Owner and Group fill the ls -l columns the original's
	// os.lstat-backed lsinfo() exposed; a backend that cannot supply them
	// (e.g. non-unix) should report NLinks=1, Owner/Group="ftp".
	NLinks int
	Owner  string
	Group  string
}

// ErrNotExist is returned by operations on a path with no corresponding
// entry. ErrNotDir / ErrIsDir distinguish the two common FTP error
// replies that hinge on directory-ness (status_messages ERR_NO_DIR,
// ERR_IS_NOT_FILE).
var (
	ErrNotExist = errors.New("vfs: no such file or directory")
	ErrNotDir   = errors.New("vfs: not a directory")
	ErrIsDir    = errors.New("vfs: is a directory")
)

// Credentials identifies the authenticated principal a Filesystem was
// opened for; a backend may use it for per-user chrooting or permission
// checks. The zero value means "anonymous".
type Credentials struct {
	User string
}

// Filesystem is the per-session view of a storage backend, opened once
// per authenticated control channel (see Access.Open). Paths are always
// absolute, slash-separated, already resolved by the caller (the FTP
// control channel resolves CWD-relative paths before calling in, the way
// _generatePath did in the original).
type Filesystem interface {
	// Type reports whether path is a file, a directory, or missing.
	Type(ctx context.Context, path string) (EntryKind, error)

	// Info stats a single path. Returns ErrNotExist if it is missing.
	Info(ctx context.Context, path string) (Info, error)

	// List returns the entries of a directory, unsorted order is fine;
	// callers sort if needed. Returns ErrNotDir if path is a file.
	List(ctx context.Context, path string) ([]Info, error)

	// Mkdir creates a directory. The parent must already exist.
	Mkdir(ctx context.Context, path string) error

	// Rmdir removes an empty directory.
	Rmdir(ctx context.Context, path string) error

	// Remove deletes a file.
	Remove(ctx context.Context, path string) error

	// Rename moves oldPath to newPath, implementing RNFR/RNTO.
	Rename(ctx context.Context, oldPath, newPath string) error

	// OpenRead opens a file for reading, optionally starting at offset
	// (REST support). The caller must Close the returned ReadCloser.
	OpenRead(ctx context.Context, path string, offset int64) (io.ReadCloser, error)

	// OpenWrite opens a file for writing. append selects APPE semantics
	// over STOR's truncate-and-create. The caller must Close the
	// returned WriteCloser to flush and release any lock.
	OpenWrite(ctx context.Context, path string, append bool) (io.WriteCloser, error)

	// Close releases any resources (e.g. a chroot handle) held for the
	// session. internal/ftpserver calls it when the client sends QUIT; a
	// control connection that ends without QUIT does not call it.
	Close() error
}

// Access opens a Filesystem for a set of credentials, the Go analogue of
// the original's fs_access.open(credentials). A concrete Access
// implementation is also responsible for authenticating those
// credentials; Open returning an error means authentication failed or
// the principal has no filesystem to serve.
type Access interface {
	Open(ctx context.Context, creds Credentials) (Filesystem, error)
}
