package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccess(t *testing.T) (*LocalAccess, string) {
	t.Helper()
	dir := t.TempDir()
	access, err := NewLocalAccess(dir)
	require.NoError(t, err)
	return access, dir
}

func TestLocalAccessRejectsNonDirRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notadir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err := NewLocalAccess(file)
	assert.Error(t, err)
}

func TestMkdirListTypeInfo(t *testing.T) {
	access, _ := newTestAccess(t)
	fsys, err := access.Open(context.Background(), Credentials{})
	require.NoError(t, err)
	defer fsys.Close()

	ctx := context.Background()
	require.NoError(t, fsys.Mkdir(ctx, "/sub"))

	kind, err := fsys.Type(ctx, "/sub")
	require.NoError(t, err)
	assert.Equal(t, KindDir, kind)

	kind, err = fsys.Type(ctx, "/missing")
	require.NoError(t, err)
	assert.Equal(t, KindMissing, kind)

	entries, err := fsys.List(ctx, "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sub", entries[0].Name)
	assert.Equal(t, KindDir, entries[0].Kind)
}

func TestWriteReadRemove(t *testing.T) {
	access, _ := newTestAccess(t)
	fsys, err := access.Open(context.Background(), Credentials{})
	require.NoError(t, err)
	defer fsys.Close()
	ctx := context.Background()

	w, err := fsys.OpenWrite(ctx, "/file.txt", false)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := fsys.OpenRead(ctx, "/file.txt", 0)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
	require.NoError(t, r.Close())

	w2, err := fsys.OpenWrite(ctx, "/file.txt", true)
	require.NoError(t, err)
	_, err = w2.Write([]byte(" world"))
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	info, err := fsys.Info(ctx, "/file.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 11, info.Size)

	require.NoError(t, fsys.Remove(ctx, "/file.txt"))
	_, err = fsys.Info(ctx, "/file.txt")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestRenameAndRmdir(t *testing.T) {
	access, _ := newTestAccess(t)
	fsys, err := access.Open(context.Background(), Credentials{})
	require.NoError(t, err)
	defer fsys.Close()
	ctx := context.Background()

	require.NoError(t, fsys.Mkdir(ctx, "/dir1"))
	require.NoError(t, fsys.Rename(ctx, "/dir1", "/dir2"))
	kind, err := fsys.Type(ctx, "/dir2")
	require.NoError(t, err)
	assert.Equal(t, KindDir, kind)
	require.NoError(t, fsys.Rmdir(ctx, "/dir2"))
	kind, err = fsys.Type(ctx, "/dir2")
	require.NoError(t, err)
	assert.Equal(t, KindMissing, kind)
}

func TestResolveRefusesEscape(t *testing.T) {
	access, _ := newTestAccess(t)
	fsys, err := access.Open(context.Background(), Credentials{})
	require.NoError(t, err)
	defer fsys.Close()

	_, err = fsys.Info(context.Background(), "/../../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotExist)
}
