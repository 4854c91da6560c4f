//go:build linux

package local

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/handlefs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRealFS exports a fresh temporary directory. Reopening handles needs
// CAP_DAC_READ_SEARCH and a filesystem that issues handles, so the test is
// skipped where either is missing.
func newRealFS(t *testing.T) (*FS, string) {
	t.Helper()
	dir := t.TempDir()

	fs, err := New(Options{Root: dir, DataCacheSize: 8, TraversalCacheSize: 8})
	if vfs.IsCode(err, vfs.ErrCodePermissionDenied) || vfs.IsCode(err, vfs.ErrCodeNotSupported) {
		t.Skipf("file handles unavailable on %s: %v", dir, err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })
	return fs, dir
}

func currentOwner() vfs.Owner {
	return vfs.Owner{UID: uint32(os.Getuid()), GID: uint32(os.Getgid())}
}

func TestLocal_CreateWriteRead(t *testing.T) {
	fs, dir := newRealFS(t)
	ctx := context.Background()
	root := fs.RootHandle()

	h, err := fs.Create(ctx, root, vfs.TypeRegular, "f", currentOwner(), 0o644)
	require.NoError(t, err)

	_, err = fs.Create(ctx, root, vfs.TypeRegular, "f", currentOwner(), 0o644)
	assert.Equal(t, vfs.ErrCodeAlreadyExists, vfs.CodeOf(err))

	res, err := fs.Write(ctx, h, []byte("hello world"), 0, vfs.FileSync)
	require.NoError(t, err)
	assert.Equal(t, 11, res.Count)
	assert.Equal(t, vfs.FileSync, res.Committed)

	onDisk, err := os.ReadFile(filepath.Join(dir, "f"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(onDisk))

	tests := []struct {
		name string
		off  int64
		size int
		want string
	}{
		{"start", 0, 5, "hello"},
		{"middle", 6, 5, "world"},
		{"across end", 9, 10, "ld"},
		{"at end", 11, 4, ""},
		{"past end", 100, 4, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			n, err := fs.Read(ctx, h, buf, tt.off)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(buf[:n]))
		})
	}

	_, err = fs.Read(ctx, h, make([]byte, 1), -1)
	assert.Equal(t, vfs.ErrCodeInvalidArgument, vfs.CodeOf(err))

	require.NoError(t, fs.Commit(ctx, h, 0, 0))

	attr, err := fs.GetAttr(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, vfs.TypeRegular, attr.Type)
	assert.Equal(t, uint64(11), attr.Size)
	assert.Equal(t, uint32(1), attr.Nlink)
	assert.Equal(t, max(attr.Mtime, attr.Ctime), attr.Generation)

	looked, err := fs.Lookup(ctx, root, "f")
	require.NoError(t, err)
	assert.True(t, looked.Equal(h), "lookup returned a different handle for the same file")
}

func TestLocal_DirectoriesAndParents(t *testing.T) {
	fs, _ := newRealFS(t)
	ctx := context.Background()
	root := fs.RootHandle()

	d, err := fs.Mkdir(ctx, root, "d", currentOwner(), 0o755)
	require.NoError(t, err)

	attr, err := fs.GetAttr(ctx, d)
	require.NoError(t, err)
	assert.True(t, attr.IsDir())

	sub, err := fs.Mkdir(ctx, d, "sub", currentOwner(), 0o755)
	require.NoError(t, err)

	parent, err := fs.ParentOf(ctx, sub)
	require.NoError(t, err)
	assert.True(t, parent.Equal(d))

	parent, err = fs.Lookup(ctx, d, "..")
	require.NoError(t, err)
	assert.True(t, parent.Equal(root))

	_, err = fs.ParentOf(ctx, root)
	assert.ErrorIs(t, err, vfs.ErrNoParent)

	_, err = fs.Mkdir(ctx, root, "d", currentOwner(), 0o755)
	assert.Equal(t, vfs.ErrCodeAlreadyExists, vfs.CodeOf(err))

	_, err = fs.Lookup(ctx, d, "nope")
	assert.Equal(t, vfs.ErrCodeNotFound, vfs.CodeOf(err))
}

func TestLocal_SymlinkAndLink(t *testing.T) {
	fs, dir := newRealFS(t)
	ctx := context.Background()
	root := fs.RootHandle()

	f, err := fs.Create(ctx, root, vfs.TypeRegular, "target", currentOwner(), 0o644)
	require.NoError(t, err)

	l, err := fs.Symlink(ctx, root, "l", "target", currentOwner())
	require.NoError(t, err)

	target, err := fs.Readlink(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, "target", target)

	attr, err := fs.GetAttr(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, vfs.TypeSymlink, attr.Type)

	// mode changes are ignored for symlinks rather than following them
	mode := uint32(0o600)
	require.NoError(t, fs.SetAttr(ctx, l, &vfs.SetAttr{Mode: &mode}))
	fattr, err := fs.GetAttr(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, uint32(0o644), fattr.Mode&0o777)

	_, err = fs.Readlink(ctx, f)
	assert.Error(t, err)

	linked, err := fs.Link(ctx, root, "hard", f)
	require.NoError(t, err)
	assert.True(t, linked.Equal(f))

	attr, err = fs.GetAttr(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), attr.Nlink)

	_, err = os.Stat(filepath.Join(dir, "hard"))
	assert.NoError(t, err)
}

func TestLocal_SpecialFiles(t *testing.T) {
	fs, _ := newRealFS(t)
	ctx := context.Background()

	fifo, err := fs.Create(ctx, fs.RootHandle(), vfs.TypeFIFO, "pipe", currentOwner(), 0o644)
	require.NoError(t, err)

	attr, err := fs.GetAttr(ctx, fifo)
	require.NoError(t, err)
	assert.Equal(t, vfs.TypeFIFO, attr.Type)

	// chmod on a FIFO must not open it for I/O, which would block
	mode := uint32(0o600)
	require.NoError(t, fs.SetAttr(ctx, fifo, &vfs.SetAttr{Mode: &mode}))
	attr, err = fs.GetAttr(ctx, fifo)
	require.NoError(t, err)
	assert.Equal(t, uint32(0o600), attr.Mode)

	size := uint64(0)
	err = fs.SetAttr(ctx, fifo, &vfs.SetAttr{Size: &size})
	assert.Equal(t, vfs.ErrCodeInvalidArgument, vfs.CodeOf(err))
}

func TestLocal_SetAttr(t *testing.T) {
	fs, _ := newRealFS(t)
	ctx := context.Background()

	h, err := fs.Create(ctx, fs.RootHandle(), vfs.TypeRegular, "f", currentOwner(), 0o644)
	require.NoError(t, err)
	_, err = fs.Write(ctx, h, []byte("0123456789"), 0, vfs.Unstable)
	require.NoError(t, err)

	size := uint64(3)
	mode := uint32(0o600)
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, fs.SetAttr(ctx, h, &vfs.SetAttr{Size: &size, Mode: &mode, Mtime: &mtime}))

	attr, err := fs.GetAttr(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), attr.Size)
	assert.Equal(t, uint32(0o600), attr.Mode)
	assert.Equal(t, mtime.UnixMilli(), attr.Mtime)
	assert.True(t, attr.ModTime().Equal(mtime))

	buf := make([]byte, 10)
	n, err := fs.Read(ctx, h, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "012", string(buf[:n]))

	d, err := fs.Mkdir(ctx, fs.RootHandle(), "d", currentOwner(), 0o755)
	require.NoError(t, err)
	err = fs.SetAttr(ctx, d, &vfs.SetAttr{Size: &size})
	assert.Equal(t, vfs.ErrCodeIsDirectory, vfs.CodeOf(err))

	assert.NoError(t, fs.SetAttr(ctx, h, &vfs.SetAttr{}))
}

func TestLocal_ReadDir(t *testing.T) {
	fs, _ := newRealFS(t)
	ctx := context.Background()

	d, err := fs.Mkdir(ctx, fs.RootHandle(), "d", currentOwner(), 0o755)
	require.NoError(t, err)

	var want []string
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("entry-%02d", i)
		_, err := fs.Create(ctx, d, vfs.TypeRegular, name, currentOwner(), 0o644)
		require.NoError(t, err)
		want = append(want, name)
	}

	for _, pageSize := range []int{0, 1, 7, 50, 64} {
		t.Run(fmt.Sprintf("page=%d", pageSize), func(t *testing.T) {
			var got []string
			var cookie uint64
			for {
				page, err := fs.ReadDir(ctx, d, cookie, pageSize, pageSize == 7)
				require.NoError(t, err)
				for _, e := range page.Entries {
					got = append(got, e.Name)
					assert.NotEmpty(t, e.Handle)
					if pageSize == 7 {
						require.NotNil(t, e.Attr)
						assert.Equal(t, vfs.TypeRegular, e.Attr.Type)
					}
				}
				if page.EOF {
					break
				}
				cookie = page.Cookie
			}
			assert.ElementsMatch(t, want, got)
		})
	}
}

func TestLocal_RemoveInvalidatesHandle(t *testing.T) {
	fs, _ := newRealFS(t)
	ctx := context.Background()
	root := fs.RootHandle()

	h, err := fs.Create(ctx, root, vfs.TypeRegular, "f", currentOwner(), 0o644)
	require.NoError(t, err)
	_, err = fs.Write(ctx, h, []byte("x"), 0, vfs.Unstable)
	require.NoError(t, err)

	require.NoError(t, fs.Remove(ctx, root, "f"))

	_, err = fs.GetAttr(ctx, h)
	require.Error(t, err)
	code := vfs.CodeOf(err)
	assert.True(t, code == vfs.ErrCodeNotFound || code == vfs.ErrCodeStaleHandle, "got %v", err)

	d, err := fs.Mkdir(ctx, root, "d", currentOwner(), 0o755)
	require.NoError(t, err)
	_, err = fs.Create(ctx, d, vfs.TypeRegular, "inner", currentOwner(), 0o644)
	require.NoError(t, err)

	err = fs.Remove(ctx, root, "d")
	assert.Equal(t, vfs.ErrCodeNotEmpty, vfs.CodeOf(err))

	require.NoError(t, fs.Remove(ctx, d, "inner"))
	require.NoError(t, fs.Remove(ctx, root, "d"))

	err = fs.Remove(ctx, root, "d")
	assert.Equal(t, vfs.ErrCodeNotFound, vfs.CodeOf(err))
}

func TestLocal_Rename(t *testing.T) {
	fs, _ := newRealFS(t)
	ctx := context.Background()
	root := fs.RootHandle()

	a, err := fs.Create(ctx, root, vfs.TypeRegular, "a", currentOwner(), 0o644)
	require.NoError(t, err)
	b, err := fs.Create(ctx, root, vfs.TypeRegular, "b", currentOwner(), 0o644)
	require.NoError(t, err)
	d, err := fs.Mkdir(ctx, root, "d", currentOwner(), 0o755)
	require.NoError(t, err)

	// replace b with a
	require.NoError(t, fs.Rename(ctx, root, "a", root, "b"))
	got, err := fs.Lookup(ctx, root, "b")
	require.NoError(t, err)
	assert.True(t, got.Equal(a))

	_, err = fs.GetAttr(ctx, b)
	assert.Error(t, err)

	require.NoError(t, fs.Rename(ctx, root, "b", d, "moved"))
	got, err = fs.Lookup(ctx, d, "moved")
	require.NoError(t, err)
	assert.True(t, got.Equal(a), "handle changed across rename")

	err = fs.Rename(ctx, root, "gone", root, "x")
	assert.Equal(t, vfs.ErrCodeNotFound, vfs.CodeOf(err))
}

func TestLocal_Xattrs(t *testing.T) {
	fs, _ := newRealFS(t)
	ctx := context.Background()

	h, err := fs.Create(ctx, fs.RootHandle(), vfs.TypeRegular, "f", currentOwner(), 0o644)
	require.NoError(t, err)

	err = fs.SetXattr(ctx, h, "color", []byte("blue"), vfs.XattrCreate)
	if vfs.IsCode(err, vfs.ErrCodeNotSupported) {
		t.Skip("user xattrs not supported here")
	}
	require.NoError(t, err)

	err = fs.SetXattr(ctx, h, "color", []byte("red"), vfs.XattrCreate)
	assert.Equal(t, vfs.ErrCodeAlreadyExists, vfs.CodeOf(err))

	err = fs.SetXattr(ctx, h, "shape", []byte("round"), vfs.XattrReplace)
	assert.Equal(t, vfs.ErrCodeNoAttribute, vfs.CodeOf(err))

	require.NoError(t, fs.SetXattr(ctx, h, "color", []byte("green"), vfs.XattrEither))

	value, err := fs.GetXattr(ctx, h, "color")
	require.NoError(t, err)
	assert.Equal(t, "green", string(value))

	names, err := fs.ListXattrs(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []string{"color"}, names)

	require.NoError(t, fs.RemoveXattr(ctx, h, "color"))
	_, err = fs.GetXattr(ctx, h, "color")
	assert.Equal(t, vfs.ErrCodeNoAttribute, vfs.CodeOf(err))

	names, err = fs.ListXattrs(ctx, h)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocal_CopyRange(t *testing.T) {
	fs, _ := newRealFS(t)
	ctx := context.Background()
	root := fs.RootHandle()

	payload := bytes.Repeat([]byte("0123456789abcdef"), 64<<10) // 1 MiB
	src, err := fs.Create(ctx, root, vfs.TypeRegular, "src", currentOwner(), 0o644)
	require.NoError(t, err)
	_, err = fs.Write(ctx, src, payload, 0, vfs.Unstable)
	require.NoError(t, err)

	dst, err := fs.Create(ctx, root, vfs.TypeRegular, "dst", currentOwner(), 0o644)
	require.NoError(t, err)

	select {
	case res := <-fs.CopyRange(ctx, src, 0, dst, 0, 0):
		require.NoError(t, res.Err)
		assert.Equal(t, int64(len(payload)), res.Copied)
	case <-time.After(10 * time.Second):
		t.Fatal("copy did not complete")
	}

	got := make([]byte, len(payload))
	n, err := fs.Read(ctx, dst, got, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.True(t, bytes.Equal(payload, got))

	res := <-fs.CopyRange(ctx, src, 16, dst, 0, 10)
	require.NoError(t, res.Err)
	assert.Equal(t, int64(10), res.Copied)

	n, err = fs.Read(ctx, dst, got[:10], 0)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got[:n]))
}

func TestLocal_StatFS(t *testing.T) {
	fs, _ := newRealFS(t)

	st, err := fs.StatFS(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, st.TotalBytes)
	assert.LessOrEqual(t, st.AvailBytes, st.FreeBytes)
	assert.LessOrEqual(t, st.FreeBytes, st.TotalBytes)
}

func TestLocal_CloseIsIdempotent(t *testing.T) {
	fs, _ := newRealFS(t)
	ctx := context.Background()

	_, err := fs.Create(ctx, fs.RootHandle(), vfs.TypeRegular, "f", currentOwner(), 0o644)
	require.NoError(t, err)

	require.NoError(t, fs.Close())
	assert.NoError(t, fs.Close())
	assert.Zero(t, fs.data.openDescriptors())
	assert.Zero(t, fs.traversal.openDescriptors())
}
