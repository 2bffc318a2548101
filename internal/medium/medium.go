// Package medium defines the capability surface the transfer engine consumes:
// archives and filesystems as enumerable collections of entries with typed
// attributes and up to two forks. Concrete format codecs live behind these
// interfaces; the engine never sees a byte of container layout.
package medium

import (
	"io"
	"time"
)

// Fork selects one of the two byte streams a file can carry.
type Fork int

const (
	DataFork Fork = iota
	RsrcFork
)

func (f Fork) String() string {
	if f == RsrcFork {
		return "rsrc"
	}
	return "data"
}

// ProDOS access byte values. Locked means the write bit is clear.
const (
	AccessUnlocked byte = 0xC3
	AccessLocked   byte = 0x01

	accessWrite byte = 0x02
)

// Attributes is the typed metadata carried by an entry. Name is the full
// pathname for archive records and the leaf name for filesystem entries.
type Attributes struct {
	Name       string
	ProType    byte
	ProAux     uint16
	HFSType    uint32
	HFSCreator uint32
	Access     byte
	CreateWhen time.Time
	ModWhen    time.Time
	IsDir      bool
}

// Locked reports whether the access byte denies writing. A zero access byte
// means "never set" and reads as unlocked.
func (a Attributes) Locked() bool {
	return a.Access != 0 && a.Access&accessWrite == 0
}

// HasTypeInfo reports whether any ProDOS or HFS type field is nonzero.
func (a Attributes) HasTypeInfo() bool {
	return a.ProType != 0 || a.ProAux != 0 || a.HFSType != 0 || a.HFSCreator != 0
}

// Characteristics describes what a medium can represent.
type Characteristics struct {
	Name            string
	CaseSensitive   bool
	DirSep          byte // path separator for stored pathnames
	HasRsrcForks    bool
	RsrcForkTracked bool // extendedness tracked independently of fork length
	Hierarchical    bool
	ReadOnly        bool
	MaxNameLen      int // longest pathname accepted; 0 = unbounded
	DOSText         bool
	DualMeta        bool // MacZip-style sibling metadata convention
}

// Entry is a handle on one record or file. Synthesized items that have no
// source entry use a nil Entry.
type Entry interface {
	Name() string
	Pathname() string
	IsDir() bool
	Attributes() Attributes
	HasFork(Fork) bool
	ForkLen(Fork) int64
}

// sameAser is implemented by entries whose handles are re-created per lookup
// and therefore cannot rely on interface equality.
type sameAser interface {
	SameAs(Entry) bool
}

// SameEntry reports whether two handles refer to the same live entry.
func SameEntry(a, b Entry) bool {
	if a == nil || b == nil {
		return false
	}
	if s, ok := a.(sameAser); ok {
		return s.SameAs(b)
	}
	return a == b
}

// Compression selects how an archive stores a fork it is given.
type Compression int

const (
	CompressNone Compression = iota
	CompressLZ4
)

// Archive is a flat collection of records addressed by full pathname.
type Archive interface {
	Characteristics() Characteristics

	// Entries returns all records in stored order.
	Entries() []Entry

	// FindEntry locates a record by pathname, honoring the archive's case rule.
	FindEntry(pathname string) (Entry, bool)

	// CreateRecord adds an empty record. attrs.Name is the full pathname.
	CreateRecord(attrs Attributes) (Entry, error)

	// DeleteRecord removes a record and its forks.
	DeleteRecord(e Entry) error

	// OpenFork opens a fork for reading.
	OpenFork(e Entry, f Fork) (io.ReadCloser, error)

	// CreateFork opens a fork for writing, replacing any prior content.
	// The fork is committed when the writer is closed.
	CreateFork(e Entry, f Fork, c Compression) (io.WriteCloser, error)

	SetAttributes(e Entry, attrs Attributes) error
}

// Filesystem is a hierarchical collection of files and directories.
type Filesystem interface {
	Characteristics() Characteristics

	RootDir() Entry
	Children(dir Entry) ([]Entry, error)

	// FindChild locates an immediate child by name, honoring the case rule.
	FindChild(dir Entry, name string) (Entry, bool)

	// Parent returns the containing directory, false at the root.
	Parent(e Entry) (Entry, bool)

	CreateFile(dir Entry, attrs Attributes) (Entry, error)
	CreateDir(dir Entry, attrs Attributes) (Entry, error)

	// Delete removes a file or an empty directory.
	Delete(e Entry) error

	OpenFork(e Entry, f Fork) (io.ReadCloser, error)
	CreateFork(e Entry, f Fork) (io.WriteCloser, error)

	SetAttributes(e Entry, attrs Attributes) error
}

// Endpoint is a tagged variant over the two medium kinds. Exactly one side
// is set.
type Endpoint struct {
	arc Archive
	fs  Filesystem
}

// ArchiveEndpoint wraps an archive.
func ArchiveEndpoint(a Archive) Endpoint { return Endpoint{arc: a} }

// FilesystemEndpoint wraps a filesystem.
func FilesystemEndpoint(f Filesystem) Endpoint { return Endpoint{fs: f} }

func (e Endpoint) IsArchive() bool    { return e.arc != nil }
func (e Endpoint) IsFilesystem() bool { return e.fs != nil }
func (e Endpoint) IsZero() bool       { return e.arc == nil && e.fs == nil }

// Archive returns the archive side; nil for a filesystem endpoint.
func (e Endpoint) Archive() Archive { return e.arc }

// Filesystem returns the filesystem side; nil for an archive endpoint.
func (e Endpoint) Filesystem() Filesystem { return e.fs }

func (e Endpoint) Characteristics() Characteristics {
	if e.arc != nil {
		return e.arc.Characteristics()
	}
	if e.fs != nil {
		return e.fs.Characteristics()
	}
	return Characteristics{}
}

// OpenFork opens a fork for reading on whichever side is set.
func (e Endpoint) OpenFork(entry Entry, f Fork) (io.ReadCloser, error) {
	if e.arc != nil {
		return e.arc.OpenFork(entry, f)
	}
	return e.fs.OpenFork(entry, f)
}

// EqualNames compares two names under the medium's case rule.
func EqualNames(c Characteristics, a, b string) bool {
	if c.CaseSensitive {
		return a == b
	}
	return foldEqual(a, b)
}

func foldEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// FoldName lower-cases ASCII for use as a case-insensitive map key.
func FoldName(s string) string {
	buf := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		buf[i] = c
	}
	return string(buf)
}
