// Package pak reads and writes the bundled container format: a flat
// archive of records with typed attributes and up to two forks. It exists
// so transfers have a portable archive target without depending on any
// foreign container layout; the format is loaded fully into a
// medium.MemArchive and saved back in one pass.
package pak

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pierrec/lz4/v4"

	"appleport/internal/medium"
)

// Magic identifies a pak stream.
const Magic uint32 = 0x6150616B // "aPak"

const version uint16 = 1

// Flavor selects what the container can represent.
type Flavor byte

const (
	// Forked paks store resource forks natively.
	Forked Flavor = 0
	// Flat paks store a single payload per record and rely on dual-entry
	// metadata siblings, the way ZIP-family containers do.
	Flat Flavor = 1
)

// Method selects per-fork payload encoding in the file.
type Method byte

const (
	MethodStore Method = 0
	MethodLZ4   Method = 1
)

// ErrNotPak is returned when the stream does not start with the magic.
var ErrNotPak = errors.New("not a pak container")

// Chars returns the characteristics a pak of the given flavor presents.
func Chars(f Flavor) medium.Characteristics {
	c := medium.Characteristics{
		Name:            "pak",
		DirSep:          '/',
		RsrcForkTracked: true,
	}
	if f == Flat {
		c.DualMeta = true
	} else {
		c.HasRsrcForks = true
	}
	return c
}

// New creates an empty in-memory pak of the given flavor.
func New(f Flavor) *medium.MemArchive {
	return medium.NewMemArchive(Chars(f))
}

// Load parses a pak stream into a memory archive.
func Load(r io.Reader) (*medium.MemArchive, error) {
	var hdr [11]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if binary.BigEndian.Uint32(hdr[0:4]) != Magic {
		return nil, ErrNotPak
	}
	if v := binary.BigEndian.Uint16(hdr[4:6]); v != version {
		return nil, fmt.Errorf("unsupported pak version %d", v)
	}
	flavor := Flavor(hdr[6])
	if flavor != Forked && flavor != Flat {
		return nil, fmt.Errorf("unknown pak flavor %d", hdr[6])
	}
	count := binary.BigEndian.Uint32(hdr[7:11])

	arc := New(flavor)
	for i := uint32(0); i < count; i++ {
		if err := loadRecord(r, arc); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return arc, nil
}

func loadRecord(r io.Reader, arc *medium.MemArchive) error {
	attrs, err := readAttrs(r)
	if err != nil {
		return err
	}
	rec, err := arc.CreateRecord(attrs)
	if err != nil {
		return err
	}
	for _, fork := range []medium.Fork{medium.DataFork, medium.RsrcFork} {
		payload, present, err := readFork(r)
		if err != nil {
			return fmt.Errorf("%s fork: %w", fork, err)
		}
		if !present {
			continue
		}
		w, err := arc.CreateFork(rec, fork, medium.CompressNone)
		if err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Save writes every record of an archive as a pak stream. method applies
// to all fork payloads.
func Save(w io.Writer, arc medium.Archive, method Method) error {
	chars := arc.Characteristics()
	flavor := Forked
	if !chars.HasRsrcForks {
		flavor = Flat
	}

	entries := arc.Entries()
	var hdr [11]byte
	binary.BigEndian.PutUint32(hdr[0:4], Magic)
	binary.BigEndian.PutUint16(hdr[4:6], version)
	hdr[6] = byte(flavor)
	binary.BigEndian.PutUint32(hdr[7:11], uint32(len(entries)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, e := range entries {
		if err := saveRecord(w, arc, e, method); err != nil {
			return fmt.Errorf("record %s: %w", e.Pathname(), err)
		}
	}
	return nil
}

func saveRecord(w io.Writer, arc medium.Archive, e medium.Entry, method Method) error {
	if err := writeAttrs(w, e.Attributes()); err != nil {
		return err
	}
	for _, fork := range []medium.Fork{medium.DataFork, medium.RsrcFork} {
		if !e.HasFork(fork) {
			if _, err := w.Write([]byte{0}); err != nil {
				return err
			}
			continue
		}
		rc, err := arc.OpenFork(e, fork)
		if err != nil {
			return err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("read %s fork: %w", fork, err)
		}
		if err := writeFork(w, raw, method); err != nil {
			return fmt.Errorf("write %s fork: %w", fork, err)
		}
	}
	return nil
}

func readAttrs(r io.Reader) (medium.Attributes, error) {
	var a medium.Attributes

	var nameLen uint16
	if err := binary.Read(r, binary.BigEndian, &nameLen); err != nil {
		return a, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return a, err
	}
	a.Name = string(name)

	var fixed struct {
		ProType    byte
		Access     byte
		ProAux     uint16
		HFSType    uint32
		HFSCreator uint32
		CreateWhen int64
		ModWhen    int64
		IsDir      byte
	}
	if err := binary.Read(r, binary.BigEndian, &fixed); err != nil {
		return a, err
	}
	a.ProType = fixed.ProType
	a.Access = fixed.Access
	a.ProAux = fixed.ProAux
	a.HFSType = fixed.HFSType
	a.HFSCreator = fixed.HFSCreator
	a.CreateWhen = fromUnix(fixed.CreateWhen)
	a.ModWhen = fromUnix(fixed.ModWhen)
	a.IsDir = fixed.IsDir != 0
	return a, nil
}

func writeAttrs(w io.Writer, a medium.Attributes) error {
	if len(a.Name) > 0xFFFF {
		return fmt.Errorf("record name too long: %d", len(a.Name))
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(a.Name))); err != nil {
		return err
	}
	if _, err := w.Write([]byte(a.Name)); err != nil {
		return err
	}
	fixed := struct {
		ProType    byte
		Access     byte
		ProAux     uint16
		HFSType    uint32
		HFSCreator uint32
		CreateWhen int64
		ModWhen    int64
		IsDir      byte
	}{
		ProType:    a.ProType,
		Access:     a.Access,
		ProAux:     a.ProAux,
		HFSType:    a.HFSType,
		HFSCreator: a.HFSCreator,
		CreateWhen: toUnix(a.CreateWhen),
		ModWhen:    toUnix(a.ModWhen),
	}
	if a.IsDir {
		fixed.IsDir = 1
	}
	return binary.Write(w, binary.BigEndian, fixed)
}

// readFork returns the decoded payload, or present=false for an absent
// fork marker.
func readFork(r io.Reader) (payload []byte, present bool, err error) {
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return nil, false, err
	}
	if flag[0] == 0 {
		return nil, false, nil
	}

	var meta struct {
		Method    Method
		RawLen    int64
		StoredLen int64
	}
	if err := binary.Read(r, binary.BigEndian, &meta); err != nil {
		return nil, false, err
	}
	if meta.RawLen < 0 || meta.StoredLen < 0 {
		return nil, false, errors.New("negative fork length")
	}
	stored := make([]byte, meta.StoredLen)
	if _, err := io.ReadFull(r, stored); err != nil {
		return nil, false, err
	}

	switch meta.Method {
	case MethodStore:
		return stored, true, nil
	case MethodLZ4:
		raw := make([]byte, 0, meta.RawLen)
		buf := bytes.NewBuffer(raw)
		if _, err := io.Copy(buf, lz4.NewReader(bytes.NewReader(stored))); err != nil {
			return nil, false, fmt.Errorf("decompress: %w", err)
		}
		if int64(buf.Len()) != meta.RawLen {
			return nil, false, fmt.Errorf("fork length mismatch: stored %d, want %d", buf.Len(), meta.RawLen)
		}
		return buf.Bytes(), true, nil
	default:
		return nil, false, fmt.Errorf("unknown fork method %d", meta.Method)
	}
}

func writeFork(w io.Writer, raw []byte, method Method) error {
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}

	stored := raw
	if method == MethodLZ4 {
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return fmt.Errorf("compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compress: %w", err)
		}
		// Incompressible payloads stay stored.
		if buf.Len() < len(raw) {
			stored = buf.Bytes()
		} else {
			method = MethodStore
		}
	}

	meta := struct {
		Method    Method
		RawLen    int64
		StoredLen int64
	}{method, int64(len(raw)), int64(len(stored))}
	if err := binary.Write(w, binary.BigEndian, meta); err != nil {
		return err
	}
	_, err := w.Write(stored)
	return err
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
