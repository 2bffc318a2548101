package part

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appleport/internal/applesingle"
	"appleport/internal/medium"
)

func readAll(t *testing.T, s Source) string {
	t.Helper()
	b, err := io.ReadAll(io.Reader(sourceReader{s}))
	require.NoError(t, err)
	return string(b)
}

type sourceReader struct{ s Source }

func (r sourceReader) Read(p []byte) (int, error) { return r.s.Read(p) }

func TestFileSourceOpenReadRewind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	s := NewFileSource(path)
	require.NoError(t, s.Open())
	defer s.Close()

	assert.ErrorIs(t, s.Open(), ErrAlreadyOpen)
	assert.Equal(t, "hello", readAll(t, s))

	require.NoError(t, s.Rewind())
	assert.Equal(t, "hello", readAll(t, s))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent
	_, err := s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestStreamSourceUnowned(t *testing.T) {
	r := strings.NewReader("abc")
	s := NewStreamSource(r, false)
	require.NoError(t, s.Open())
	assert.Equal(t, "abc", readAll(t, s))
	require.NoError(t, s.Rewind()) // strings.Reader seeks
	assert.Equal(t, "abc", readAll(t, s))
	require.NoError(t, s.Close())
}

func TestEntrySourceReopensOnRewind(t *testing.T) {
	arc := medium.NewMemArchive(medium.Characteristics{HasRsrcForks: true})
	e, err := arc.CreateRecord(medium.Attributes{Name: "rec"})
	require.NoError(t, err)
	w, err := arc.CreateFork(e, medium.DataFork, medium.CompressLZ4)
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	s := NewEntrySource(medium.ArchiveEndpoint(arc), e, medium.DataFork)
	require.NoError(t, s.Open())
	defer s.Close()

	assert.Equal(t, "payload", readAll(t, s))
	require.NoError(t, s.Rewind())
	assert.Equal(t, "payload", readAll(t, s))
}

func TestContainerSourceSpillsAndReads(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, applesingle.WriteSingle(&buf,
		applesingle.FileInfo{ProType: 0x06}, []byte("DATA"), []byte("RSRC")))

	path := filepath.Join(t.TempDir(), "file.as")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	s := NewContainerSource(NewFileSource(path), medium.RsrcFork)
	require.NoError(t, s.Open())
	defer s.Close()

	assert.Equal(t, "RSRC", readAll(t, s))
	require.NoError(t, s.Rewind())
	assert.Equal(t, "RSRC", readAll(t, s))
}

func TestContainerSourceMissingFork(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, applesingle.WriteDouble(&buf, applesingle.FileInfo{ProType: 0x06}, nil))

	path := filepath.Join(t.TempDir(), "._file")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	s := NewContainerSource(NewFileSource(path), medium.RsrcFork)
	assert.Error(t, s.Open())
	// A failed Open leaves the source closed and reopenable.
	assert.Error(t, s.Open())
}

func TestLeakCheckReportsOpenSource(t *testing.T) {
	LeakCheck = true
	defer func() { LeakCheck = false }()

	reported := make(chan string, 1)
	old := leakReport
	leakReport = func(desc string) {
		select {
		case reported <- desc:
		default:
		}
	}
	defer func() { leakReport = old }()

	s := NewStreamSource(strings.NewReader("x"), false)
	require.NoError(t, s.Open())
	s = nil
	_ = s

	for i := 0; i < 100; i++ {
		runtime.GC()
		select {
		case desc := <-reported:
			assert.Contains(t, desc, "stream")
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatal("open source was collected without a leak report")
}

func TestLeakCheckSilentAfterClose(t *testing.T) {
	LeakCheck = true
	defer func() { LeakCheck = false }()

	reported := make(chan string, 1)
	old := leakReport
	leakReport = func(desc string) {
		select {
		case reported <- desc:
		default:
		}
	}
	defer func() { leakReport = old }()

	s := NewStreamSource(strings.NewReader("x"), false)
	require.NoError(t, s.Open())
	require.NoError(t, s.Close())
	s = nil
	_ = s

	runtime.GC()
	runtime.GC()
	select {
	case desc := <-reported:
		t.Fatalf("closed source reported as leaked: %s", desc)
	case <-time.After(50 * time.Millisecond):
	}
}

type upperConverter struct{}

func (upperConverter) Name() string { return "upper" }

func (upperConverter) Convert(dst io.Writer, src io.Reader) error {
	b, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	_, err = dst.Write(bytes.ToUpper(b))
	return err
}

func TestImportSourceMaterializesAtOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("quiet"), 0o644))

	s := NewImportSource(NewFileSource(path), upperConverter{})
	require.NoError(t, s.Open())
	defer s.Close()

	// Mutating the origin after Open must not change what we read.
	require.NoError(t, os.WriteFile(path, []byte("LOUD!"), 0o644))

	assert.Equal(t, "QUIET", readAll(t, s))
	require.NoError(t, s.Rewind())
	assert.Equal(t, "QUIET", readAll(t, s))
}
