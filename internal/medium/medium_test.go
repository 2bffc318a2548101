package medium

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFork(t *testing.T, w io.WriteCloser, b []byte) {
	t.Helper()
	_, err := w.Write(b)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readFork(t *testing.T, r io.ReadCloser, err error) []byte {
	t.Helper()
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return b
}

func TestAttributesLocked(t *testing.T) {
	assert.False(t, Attributes{}.Locked(), "zero access byte reads as unlocked")
	assert.False(t, Attributes{Access: AccessUnlocked}.Locked())
	assert.True(t, Attributes{Access: AccessLocked}.Locked())
}

func TestMemArchiveCaseRule(t *testing.T) {
	arc := NewMemArchive(Characteristics{})
	_, err := arc.CreateRecord(Attributes{Name: "Hello"})
	require.NoError(t, err)

	_, ok := arc.FindEntry("HELLO")
	assert.True(t, ok, "default archive folds case")

	cs := NewMemArchive(Characteristics{CaseSensitive: true})
	_, err = cs.CreateRecord(Attributes{Name: "Hello"})
	require.NoError(t, err)
	_, ok = cs.FindEntry("HELLO")
	assert.False(t, ok)
}

func TestMemArchiveForkRoundTrip(t *testing.T) {
	arc := NewMemArchive(Characteristics{HasRsrcForks: true})
	rec, err := arc.CreateRecord(Attributes{Name: "f"})
	require.NoError(t, err)

	w, err := arc.CreateFork(rec, DataFork, CompressNone)
	require.NoError(t, err)
	writeFork(t, w, []byte("plain"))

	w, err = arc.CreateFork(rec, RsrcFork, CompressLZ4)
	require.NoError(t, err)
	writeFork(t, w, []byte("squeezed resource payload"))

	rc, err := arc.OpenFork(rec, DataFork)
	assert.Equal(t, []byte("plain"), readFork(t, rc, err))
	rc, err = arc.OpenFork(rec, RsrcFork)
	assert.Equal(t, []byte("squeezed resource payload"), readFork(t, rc, err),
		"LZ4 forks read back transparently")
	assert.Equal(t, int64(25), rec.ForkLen(RsrcFork), "fork length reports raw bytes")
}

func TestMemArchiveRejectsRsrcWithoutSupport(t *testing.T) {
	arc := NewMemArchive(Characteristics{})
	rec, err := arc.CreateRecord(Attributes{Name: "f"})
	require.NoError(t, err)
	_, err = arc.CreateFork(rec, RsrcFork, CompressNone)
	require.Error(t, err)
}

func TestMemArchiveNameLimit(t *testing.T) {
	arc := NewMemArchive(Characteristics{MaxNameLen: 4})
	_, err := arc.CreateRecord(Attributes{Name: "toolong"})
	require.Error(t, err)
	_, err = arc.CreateRecord(Attributes{Name: "ok"})
	require.NoError(t, err)
}

func TestMemArchiveReadOnly(t *testing.T) {
	arc := NewMemArchive(Characteristics{ReadOnly: true})
	_, err := arc.CreateRecord(Attributes{Name: "f"})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestMemArchiveDelete(t *testing.T) {
	arc := NewMemArchive(Characteristics{})
	rec, err := arc.CreateRecord(Attributes{Name: "f"})
	require.NoError(t, err)
	require.NoError(t, arc.DeleteRecord(rec))
	assert.Empty(t, arc.Entries())
	_, ok := arc.FindEntry("f")
	assert.False(t, ok)
}

func TestMemFSHierarchy(t *testing.T) {
	fs := NewMemFS(Characteristics{})
	a, err := fs.CreateDir(fs.RootDir(), Attributes{Name: "a", IsDir: true})
	require.NoError(t, err)
	f, err := fs.CreateFile(a, Attributes{Name: "f", ProType: 0x06})
	require.NoError(t, err)

	assert.Equal(t, "a/f", f.Pathname())

	p, ok := fs.Parent(f)
	require.True(t, ok)
	assert.True(t, SameEntry(p, a))

	got, ok := fs.FindChild(a, "F")
	require.True(t, ok, "default filesystem folds case")
	assert.True(t, SameEntry(got, f))
}

func TestMemFSDeleteRequiresEmptyDir(t *testing.T) {
	fs := NewMemFS(Characteristics{})
	a, err := fs.CreateDir(fs.RootDir(), Attributes{Name: "a", IsDir: true})
	require.NoError(t, err)
	f, err := fs.CreateFile(a, Attributes{Name: "f"})
	require.NoError(t, err)

	require.Error(t, fs.Delete(a), "non-empty directory refuses deletion")
	require.NoError(t, fs.Delete(f))
	require.NoError(t, fs.Delete(a))
}

func TestMemFSForks(t *testing.T) {
	fs := NewMemFS(Characteristics{HasRsrcForks: true})
	f, err := fs.CreateFile(fs.RootDir(), Attributes{Name: "f"})
	require.NoError(t, err)

	w, err := fs.CreateFork(f, RsrcFork)
	require.NoError(t, err)
	writeFork(t, w, []byte("rsrc"))

	assert.True(t, f.HasFork(RsrcFork))
	rc, err := fs.OpenFork(f, RsrcFork)
	assert.Equal(t, []byte("rsrc"), readFork(t, rc, err))
}

func TestLocalFSRoundTrip(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "", fs.RootDir().Name(), "root has no name of its own")

	dir, err := fs.CreateDir(fs.RootDir(), Attributes{Name: "sub", IsDir: true})
	require.NoError(t, err)
	f, err := fs.CreateFile(dir, Attributes{Name: "doc"})
	require.NoError(t, err)

	w, err := fs.CreateFork(f, DataFork)
	require.NoError(t, err)
	writeFork(t, w, []byte("contents"))

	got, ok := fs.FindChild(dir, "doc")
	require.True(t, ok)
	rc, err := fs.OpenFork(got, DataFork)
	assert.Equal(t, []byte("contents"), readFork(t, rc, err))
	assert.True(t, SameEntry(f, got), "handles to the same path compare equal")
}

func TestLocalFSLockedAttribute(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	f, err := fs.CreateFile(fs.RootDir(), Attributes{Name: "doc", Access: AccessLocked})
	require.NoError(t, err)

	mod := time.Date(2010, 7, 8, 9, 10, 11, 0, time.UTC)
	require.NoError(t, fs.SetAttributes(f, Attributes{Name: "doc", Access: AccessLocked, ModWhen: mod}))

	got, ok := fs.FindChild(fs.RootDir(), "doc")
	require.True(t, ok)
	assert.True(t, got.Attributes().Locked())
}

func TestFoldAndEqualNames(t *testing.T) {
	assert.Equal(t, FoldName("MiXeD"), FoldName("mixed"))
	assert.True(t, EqualNames(Characteristics{}, "ABC", "abc"))
	assert.False(t, EqualNames(Characteristics{CaseSensitive: true}, "ABC", "abc"))
}
