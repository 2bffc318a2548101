package medium

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// Compile-time interface check.
var _ Archive = (*MemArchive)(nil)

// ErrReadOnly is returned for mutations on a read-only medium.
var ErrReadOnly = errors.New("medium is read-only")

// MemArchive is an in-memory archive. It backs the test suites and any
// caller that stages records before committing them elsewhere; fork
// payloads are optionally LZ4-compressed so the compression plumbing is
// exercised end to end.
type MemArchive struct {
	chars   Characteristics
	records []*memRecord
}

type memRecord struct {
	arc      *MemArchive
	attrs    Attributes
	fork     [2][]byte
	hasFork  [2]bool
	packed   [2]bool // fork payload is LZ4
	rawLen   [2]int64
	deleted  bool
}

// NewMemArchive creates an empty archive with the given characteristics.
// A zero DirSep defaults to '/'.
func NewMemArchive(chars Characteristics) *MemArchive {
	if chars.DirSep == 0 {
		chars.DirSep = '/'
	}
	if chars.Name == "" {
		chars.Name = "memarc"
	}
	return &MemArchive{chars: chars}
}

func (a *MemArchive) Characteristics() Characteristics { return a.chars }

func (a *MemArchive) Entries() []Entry {
	out := make([]Entry, 0, len(a.records))
	for _, r := range a.records {
		if !r.deleted {
			out = append(out, r)
		}
	}
	return out
}

func (a *MemArchive) FindEntry(pathname string) (Entry, bool) {
	for _, r := range a.records {
		if r.deleted {
			continue
		}
		if EqualNames(a.chars, r.attrs.Name, pathname) {
			return r, true
		}
	}
	return nil, false
}

func (a *MemArchive) CreateRecord(attrs Attributes) (Entry, error) {
	if a.chars.ReadOnly {
		return nil, ErrReadOnly
	}
	if attrs.Name == "" {
		return nil, errors.New("record name must not be empty")
	}
	if a.chars.MaxNameLen > 0 && len(attrs.Name) > a.chars.MaxNameLen {
		return nil, fmt.Errorf("record name too long: %d > %d", len(attrs.Name), a.chars.MaxNameLen)
	}
	r := &memRecord{arc: a, attrs: attrs}
	a.records = append(a.records, r)
	return r, nil
}

func (a *MemArchive) DeleteRecord(e Entry) error {
	r, err := a.own(e)
	if err != nil {
		return err
	}
	r.deleted = true
	for i := range a.records {
		if a.records[i] == r {
			a.records = append(a.records[:i], a.records[i+1:]...)
			break
		}
	}
	return nil
}

func (a *MemArchive) OpenFork(e Entry, f Fork) (io.ReadCloser, error) {
	r, err := a.own(e)
	if err != nil {
		return nil, err
	}
	if !r.hasFork[f] {
		return nil, fmt.Errorf("%s: no %s fork", r.attrs.Name, f)
	}
	if r.packed[f] {
		return io.NopCloser(lz4.NewReader(bytes.NewReader(r.fork[f]))), nil
	}
	return io.NopCloser(bytes.NewReader(r.fork[f])), nil
}

func (a *MemArchive) CreateFork(e Entry, f Fork, c Compression) (io.WriteCloser, error) {
	if a.chars.ReadOnly {
		return nil, ErrReadOnly
	}
	r, err := a.own(e)
	if err != nil {
		return nil, err
	}
	if f == RsrcFork && !a.chars.HasRsrcForks {
		return nil, fmt.Errorf("%s: archive cannot store resource forks", a.chars.Name)
	}
	return &memForkWriter{rec: r, fork: f, pack: c == CompressLZ4}, nil
}

func (a *MemArchive) SetAttributes(e Entry, attrs Attributes) error {
	r, err := a.own(e)
	if err != nil {
		return err
	}
	// The pathname is fixed at create time; attribute updates keep it.
	attrs.Name = r.attrs.Name
	r.attrs = attrs
	return nil
}

func (a *MemArchive) own(e Entry) (*memRecord, error) {
	r, ok := e.(*memRecord)
	if !ok || r.arc != a {
		return nil, errors.New("entry does not belong to this archive")
	}
	if r.deleted {
		return nil, fmt.Errorf("%s: record was deleted", r.attrs.Name)
	}
	return r, nil
}

func (r *memRecord) Name() string {
	name := r.attrs.Name
	if i := strings.LastIndexByte(name, r.arc.chars.DirSep); i >= 0 {
		return name[i+1:]
	}
	return name
}

func (r *memRecord) Pathname() string      { return r.attrs.Name }
func (r *memRecord) IsDir() bool           { return r.attrs.IsDir }
func (r *memRecord) Attributes() Attributes { return r.attrs }
func (r *memRecord) HasFork(f Fork) bool   { return r.hasFork[f] }
func (r *memRecord) ForkLen(f Fork) int64  { return r.rawLen[f] }

// memForkWriter buffers fork content and commits it on Close.
type memForkWriter struct {
	rec    *memRecord
	fork   Fork
	pack   bool
	buf    bytes.Buffer
	lzw    *lz4.Writer
	rawLen int64
	closed bool
}

func (w *memForkWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write after close")
	}
	w.rawLen += int64(len(p))
	if w.pack {
		if w.lzw == nil {
			w.lzw = lz4.NewWriter(&w.buf)
		}
		return w.lzw.Write(p)
	}
	return w.buf.Write(p)
}

func (w *memForkWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.lzw != nil {
		if err := w.lzw.Close(); err != nil {
			return fmt.Errorf("flush lz4: %w", err)
		}
	}
	w.rec.fork[w.fork] = append([]byte(nil), w.buf.Bytes()...)
	w.rec.hasFork[w.fork] = true
	w.rec.packed[w.fork] = w.pack && w.lzw != nil
	w.rec.rawLen[w.fork] = w.rawLen
	return nil
}
