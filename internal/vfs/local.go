package vfs

import (
	"context"
	"errors"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/rclone/multiserve/internal/logx"
)

// LocalAccess serves a chroot-style view of one directory on local disk
// to every credential, the simplest Access implementation. It is
// adapted from backend/local/local.go's NewFs/Fs shape: a rooted path,
// resolved with filepath.Join+Clean the way that backend joins its root
// with request-relative paths, rather than accepting any absolute path a
// client might ask for.
type LocalAccess struct {
	root string
}

// NewLocalAccess returns an Access rooted at root. root must already
// exist and be a directory.
func NewLocalAccess(root string) (*LocalAccess, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, ErrNotDir
	}
	return &LocalAccess{root: abs}, nil
}

// Open returns a Filesystem rooted at the same directory for every
// credential; LocalAccess performs no authentication, so every set of
// credentials it is given is accepted.
func (a *LocalAccess) Open(ctx context.Context, creds Credentials) (Filesystem, error) {
	return &localFilesystem{root: a.root}, nil
}

type localFilesystem struct {
	mu   sync.Mutex
	root string
}

// resolve maps a virtual absolute path onto a real disk path, refusing
// to escape root even via "..", mirroring the containment a chrooted
// Python process got from the OS for free.
func (f *localFilesystem) resolve(virtual string) (string, error) {
	cleaned := filepath.Clean("/" + virtual)
	real := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(real, f.root) {
		return "", ErrNotExist
	}
	return real, nil
}

func (f *localFilesystem) Type(ctx context.Context, path string) (EntryKind, error) {
	real, err := f.resolve(path)
	if err != nil {
		return KindMissing, nil
	}
	fi, err := os.Stat(real)
	if err != nil {
		if os.IsNotExist(err) {
			return KindMissing, nil
		}
		return KindMissing, err
	}
	if fi.IsDir() {
		return KindDir, nil
	}
	return KindFile, nil
}

func (f *localFilesystem) Info(ctx context.Context, path string) (Info, error) {
	real, err := f.resolve(path)
	if err != nil {
		return Info{}, err
	}
	fi, err := os.Lstat(real)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, ErrNotExist
		}
		return Info{}, err
	}
	return infoFromFileInfo(filepath.Base(real), fi), nil
}

func (f *localFilesystem) List(ctx context.Context, path string) ([]Info, error) {
	real, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(real)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		if errors.Is(err, syscall.ENOTDIR) {
			return nil, ErrNotDir
		}
		return nil, err
	}
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			logx.Errorf(logx.S("vfs"), "stat %s/%s: %v", real, e.Name(), err)
			continue
		}
		out = append(out, infoFromFileInfo(e.Name(), fi))
	}
	return out, nil
}

func (f *localFilesystem) Mkdir(ctx context.Context, path string) error {
	real, err := f.resolve(path)
	if err != nil {
		return err
	}
	return os.Mkdir(real, 0o755)
}

func (f *localFilesystem) Rmdir(ctx context.Context, path string) error {
	real, err := f.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(real)
}

func (f *localFilesystem) Remove(ctx context.Context, path string) error {
	real, err := f.resolve(path)
	if err != nil {
		return err
	}
	fi, err := os.Stat(real)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExist
		}
		return err
	}
	if fi.IsDir() {
		return ErrIsDir
	}
	return os.Remove(real)
}

func (f *localFilesystem) Rename(ctx context.Context, oldPath, newPath string) error {
	oldReal, err := f.resolve(oldPath)
	if err != nil {
		return err
	}
	newReal, err := f.resolve(newPath)
	if err != nil {
		return err
	}
	return os.Rename(oldReal, newReal)
}

func (f *localFilesystem) OpenRead(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	real, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(real)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	if offset > 0 {
		if _, err := fh.Seek(offset, io.SeekStart); err != nil {
			fh.Close()
			return nil, err
		}
	}
	return fh, nil
}

func (f *localFilesystem) OpenWrite(ctx context.Context, path string, append bool) (io.WriteCloser, error) {
	real, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	return os.OpenFile(real, flags, 0o644)
}

func (f *localFilesystem) Close() error { return nil }

func infoFromFileInfo(name string, fi os.FileInfo) Info {
	info := Info{
		Name:    name,
		Size:    fi.Size(),
		Mode:    uint32(fi.Mode().Perm()),
		ModTime: fi.ModTime(),
		NLinks:  1,
		Owner:   "ftp",
		Group:   "ftp",
	}
	if fi.IsDir() {
		info.Kind = KindDir
	} else {
		info.Kind = KindFile
	}
	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		info.NLinks = int(stat.Nlink)
		if u, err := user.LookupId(strconv.Itoa(int(stat.Uid))); err == nil {
			info.Owner = u.Username
		}
		if g, err := user.LookupGroupId(strconv.Itoa(int(stat.Gid))); err == nil {
			info.Group = g.Name
		}
	}
	return info
}
