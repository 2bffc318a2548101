// Package part provides uniform, reopenable byte-stream sources for the
// transfer executor. A Source bridges whatever a fork's bytes live in (a
// host file, an already-open stream, an archive entry, an AppleSingle/
// AppleDouble container, an import conversion) to one read contract.
package part

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"

	"appleport/internal/applesingle"
	"appleport/internal/medium"
)

// Source is one reopenable fork byte stream.
//
// Open may be called once per open/close cycle and fails if the source is
// already open. Read returns io.EOF at end. Rewind repositions to the start,
// re-deriving the stream from its origin when the transport cannot seek.
// Close is idempotent.
type Source interface {
	Open() error
	Read(p []byte) (int, error)
	Rewind() error
	Close() error
}

// ErrAlreadyOpen is returned by Open on a source that is open.
var ErrAlreadyOpen = errors.New("part source already open")

// ErrNotOpen is returned by Read/Rewind on a source that is not open.
var ErrNotOpen = errors.New("part source not open")

// LeakCheck arms a debug-only check that reports sources collected while
// still open. Such a leak is a bug in the caller, not a runtime condition.
var LeakCheck = false

var leakReport = func(desc string) {
	slog.Error("BUG: part source leaked without Close", "source", desc)
}

type state struct {
	desc string
	open bool
}

func newState(desc string) *state {
	st := &state{desc: desc}
	if LeakCheck {
		runtime.SetFinalizer(st, func(s *state) {
			if s.open {
				leakReport(s.desc)
			}
		})
	}
	return st
}

func (s *state) markOpen() error {
	if s.open {
		return fmt.Errorf("%s: %w", s.desc, ErrAlreadyOpen)
	}
	s.open = true
	return nil
}

func (s *state) requireOpen() error {
	if !s.open {
		return fmt.Errorf("%s: %w", s.desc, ErrNotOpen)
	}
	return nil
}

// FileSource reads a host file's contents.
type FileSource struct {
	st   *state
	path string
	f    *os.File
}

// NewFileSource creates a source over the host file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{st: newState("file " + path), path: path}
}

func (s *FileSource) Open() error {
	if err := s.st.markOpen(); err != nil {
		return err
	}
	f, err := os.Open(s.path)
	if err != nil {
		s.st.open = false
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	s.f = f
	return nil
}

func (s *FileSource) Read(p []byte) (int, error) {
	if err := s.st.requireOpen(); err != nil {
		return 0, err
	}
	return s.f.Read(p)
}

func (s *FileSource) Rewind() error {
	if err := s.st.requireOpen(); err != nil {
		return err
	}
	_, err := s.f.Seek(0, io.SeekStart)
	return err
}

func (s *FileSource) Close() error {
	if !s.st.open {
		return nil
	}
	s.st.open = false
	err := s.f.Close()
	s.f = nil
	return err
}

// StreamSource wraps an already-open stream. When owned is false, Close
// leaves the underlying stream to its real owner.
type StreamSource struct {
	st    *state
	r     io.Reader
	owned bool
}

// NewStreamSource wraps r. owned controls whether Close closes r.
func NewStreamSource(r io.Reader, owned bool) *StreamSource {
	return &StreamSource{st: newState("stream"), r: r, owned: owned}
}

func (s *StreamSource) Open() error { return s.st.markOpen() }

func (s *StreamSource) Read(p []byte) (int, error) {
	if err := s.st.requireOpen(); err != nil {
		return 0, err
	}
	return s.r.Read(p)
}

func (s *StreamSource) Rewind() error {
	if err := s.st.requireOpen(); err != nil {
		return err
	}
	if sk, ok := s.r.(io.Seeker); ok {
		_, err := sk.Seek(0, io.SeekStart)
		return err
	}
	return errors.New("stream has no origin to reopen from")
}

func (s *StreamSource) Close() error {
	if !s.st.open {
		return nil
	}
	s.st.open = false
	if s.owned {
		if c, ok := s.r.(io.Closer); ok {
			return c.Close()
		}
	}
	return nil
}

// EntrySource reads one fork of an archive or filesystem entry. Rewind
// closes and reopens the fork, since entry streams may not seek.
type EntrySource struct {
	st    *state
	src   medium.Endpoint
	entry medium.Entry
	fork  medium.Fork
	rc    io.ReadCloser
}

// NewEntrySource creates a source over entry's fork within src.
func NewEntrySource(src medium.Endpoint, entry medium.Entry, fork medium.Fork) *EntrySource {
	return &EntrySource{
		st:    newState(fmt.Sprintf("entry %s (%s)", entry.Pathname(), fork)),
		src:   src,
		entry: entry,
		fork:  fork,
	}
}

func (s *EntrySource) Open() error {
	if err := s.st.markOpen(); err != nil {
		return err
	}
	rc, err := s.src.OpenFork(s.entry, s.fork)
	if err != nil {
		s.st.open = false
		return err
	}
	s.rc = rc
	return nil
}

func (s *EntrySource) Read(p []byte) (int, error) {
	if err := s.st.requireOpen(); err != nil {
		return 0, err
	}
	return s.rc.Read(p)
}

func (s *EntrySource) Rewind() error {
	if err := s.st.requireOpen(); err != nil {
		return err
	}
	if sk, ok := s.rc.(io.Seeker); ok {
		_, err := sk.Seek(0, io.SeekStart)
		return err
	}
	// Non-seekable transport: re-derive the stream from its origin.
	if err := s.rc.Close(); err != nil {
		return err
	}
	rc, err := s.src.OpenFork(s.entry, s.fork)
	if err != nil {
		return err
	}
	s.rc = rc
	return nil
}

func (s *EntrySource) Close() error {
	if !s.st.open {
		return nil
	}
	s.st.open = false
	err := s.rc.Close()
	s.rc = nil
	return err
}

// ContainerSource opens one fork held inside an AppleSingle/AppleDouble
// container. The container may arrive over a non-seekable transport, so
// Open first copies it to a seekable temp file, then parses it and
// positions on the requested fork.
type ContainerSource struct {
	st    *state
	inner Source
	fork  medium.Fork

	tmp     *os.File
	tmpPath string
	sect    *io.SectionReader
}

// NewContainerSource wraps inner, which must yield container bytes.
func NewContainerSource(inner Source, fork medium.Fork) *ContainerSource {
	return &ContainerSource{
		st:    newState(fmt.Sprintf("container fork (%s)", fork)),
		inner: inner,
		fork:  fork,
	}
}

func (s *ContainerSource) Open() error {
	if err := s.st.markOpen(); err != nil {
		return err
	}
	if err := s.materialize(); err != nil {
		s.cleanup()
		s.st.open = false
		return err
	}
	return nil
}

func (s *ContainerSource) materialize() error {
	if err := s.inner.Open(); err != nil {
		return err
	}
	defer s.inner.Close()

	tmpPath := filepath.Join(os.TempDir(), "appleport-"+uuid.NewString())
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("create temp container: %w", err)
	}
	s.tmp, s.tmpPath = tmp, tmpPath

	size, err := io.Copy(tmp, s.inner)
	if err != nil {
		return fmt.Errorf("spill container: %w", err)
	}

	c, err := applesingle.Parse(tmp, size)
	if err != nil {
		return err
	}
	switch s.fork {
	case medium.DataFork:
		if !c.HasData {
			return errors.New("container has no data fork")
		}
		s.sect = io.NewSectionReader(tmp, c.DataOff, c.DataLen)
	case medium.RsrcFork:
		if !c.HasRsrc {
			return errors.New("container has no resource fork")
		}
		s.sect = io.NewSectionReader(tmp, c.RsrcOff, c.RsrcLen)
	}
	return nil
}

func (s *ContainerSource) Read(p []byte) (int, error) {
	if err := s.st.requireOpen(); err != nil {
		return 0, err
	}
	return s.sect.Read(p)
}

func (s *ContainerSource) Rewind() error {
	if err := s.st.requireOpen(); err != nil {
		return err
	}
	_, err := s.sect.Seek(0, io.SeekStart)
	return err
}

func (s *ContainerSource) Close() error {
	if !s.st.open {
		return nil
	}
	s.st.open = false
	s.cleanup()
	return nil
}

func (s *ContainerSource) cleanup() {
	if s.tmp != nil {
		s.tmp.Close()
		os.Remove(s.tmpPath)
		s.tmp = nil
		s.sect = nil
	}
}

// Converter rewrites raw imported bytes into their transfer form.
type Converter interface {
	Name() string
	Convert(dst io.Writer, src io.Reader) error
}

// ImportSource runs inner through a converter. The converted output is
// fully materialized at Open time, so reads only ever see converted bytes.
// Spilling conversions above a size threshold to a temp file is a future
// option; today the buffer lives in memory.
type ImportSource struct {
	st    *state
	inner Source
	conv  Converter
	buf   *bytes.Reader
}

// NewImportSource wraps inner with conv.
func NewImportSource(inner Source, conv Converter) *ImportSource {
	return &ImportSource{st: newState("import " + conv.Name()), inner: inner, conv: conv}
}

func (s *ImportSource) Open() error {
	if err := s.st.markOpen(); err != nil {
		return err
	}
	if err := s.inner.Open(); err != nil {
		s.st.open = false
		return err
	}
	defer s.inner.Close()

	var out bytes.Buffer
	if err := s.conv.Convert(&out, s.inner); err != nil {
		s.st.open = false
		return fmt.Errorf("convert (%s): %w", s.conv.Name(), err)
	}
	s.buf = bytes.NewReader(out.Bytes())
	return nil
}

func (s *ImportSource) Read(p []byte) (int, error) {
	if err := s.st.requireOpen(); err != nil {
		return 0, err
	}
	return s.buf.Read(p)
}

func (s *ImportSource) Rewind() error {
	if err := s.st.requireOpen(); err != nil {
		return err
	}
	_, err := s.buf.Seek(0, io.SeekStart)
	return err
}

func (s *ImportSource) Close() error {
	if !s.st.open {
		return nil
	}
	s.st.open = false
	s.buf = nil
	return nil
}
