// Package applesingle reads and writes AppleSingle and AppleDouble
// containers: big-endian header, entry table, then payload sections. Only
// the entries the transfer engine cares about are interpreted (forks, real
// name, file dates, ProDOS info, Finder info); anything else is skipped.
package applesingle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	MagicSingle = 0x00051600
	MagicDouble = 0x00051607

	Version1 = 0x00010000
	Version2 = 0x00020000

	headerLen = 26 // magic + version + 16 filler + count
	entryLen  = 12
)

// Entry IDs from the AppleSingle specification.
const (
	entryDataFork   = 1
	entryRsrcFork   = 2
	entryRealName   = 3
	entryFileDates  = 8
	entryFinderInfo = 9
	entryProDOSInfo = 11
)

// ErrNotContainer reports that the stream does not start with an
// AppleSingle or AppleDouble header. Classification treats it as "try the
// next rule", never as an I/O failure.
var ErrNotContainer = errors.New("not an AppleSingle/AppleDouble container")

// Container is the parsed shape of one AppleSingle/AppleDouble stream.
// Fork payloads stay in the underlying reader; only extents are recorded.
type Container struct {
	IsDouble bool
	Version  uint32

	RealName string

	HasDates   bool // a dates entry was present and held a valid mod date
	CreateWhen time.Time
	ModWhen    time.Time

	HasProDOS bool
	Access    byte
	ProType   byte
	ProAux    uint16

	HasFinder  bool
	HFSType    uint32
	HFSCreator uint32

	HasData bool
	DataOff int64
	DataLen int64

	HasRsrc bool
	RsrcOff int64
	RsrcLen int64
}

// Dates in file-dates entries count seconds from 2000-01-01 00:00 GMT as a
// signed 32-bit value; 0x80000000 means "no date".
var dateEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const noDate = -0x80000000

// Parse reads the header and entry table. size is the total container
// length, used to bounds-check extents.
func Parse(r io.ReaderAt, size int64) (*Container, error) {
	var hdr [headerLen]byte
	if size < headerLen {
		return nil, ErrNotContainer
	}
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	c := &Container{}
	switch binary.BigEndian.Uint32(hdr[0:4]) {
	case MagicSingle:
	case MagicDouble:
		c.IsDouble = true
	default:
		return nil, ErrNotContainer
	}
	c.Version = binary.BigEndian.Uint32(hdr[4:8])
	if c.Version != Version1 && c.Version != Version2 {
		return nil, ErrNotContainer
	}

	count := int(binary.BigEndian.Uint16(hdr[24:26]))
	table := make([]byte, count*entryLen)
	if _, err := r.ReadAt(table, headerLen); err != nil {
		return nil, fmt.Errorf("read entry table: %w", err)
	}

	for i := 0; i < count; i++ {
		ent := table[i*entryLen : (i+1)*entryLen]
		id := binary.BigEndian.Uint32(ent[0:4])
		off := int64(binary.BigEndian.Uint32(ent[4:8]))
		length := int64(binary.BigEndian.Uint32(ent[8:12]))
		if off < 0 || length < 0 || off+length > size {
			return nil, fmt.Errorf("entry %d extent [%d,%d) outside container", id, off, off+length)
		}
		if err := c.applyEntry(r, id, off, length); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Container) applyEntry(r io.ReaderAt, id uint32, off, length int64) error {
	switch id {
	case entryDataFork:
		c.HasData, c.DataOff, c.DataLen = true, off, length
	case entryRsrcFork:
		c.HasRsrc, c.RsrcOff, c.RsrcLen = true, off, length
	case entryRealName:
		buf := make([]byte, length)
		if _, err := r.ReadAt(buf, off); err != nil {
			return fmt.Errorf("read real name: %w", err)
		}
		c.RealName = string(buf)
	case entryFileDates:
		if length < 16 {
			return nil // truncated dates entry, ignore
		}
		var buf [16]byte
		if _, err := r.ReadAt(buf[:], off); err != nil {
			return fmt.Errorf("read dates: %w", err)
		}
		create := int32(binary.BigEndian.Uint32(buf[0:4]))
		mod := int32(binary.BigEndian.Uint32(buf[4:8]))
		if mod != noDate {
			c.HasDates = true
			c.ModWhen = dateEpoch.Add(time.Duration(mod) * time.Second)
		}
		if create != noDate {
			c.CreateWhen = dateEpoch.Add(time.Duration(create) * time.Second)
		}
	case entryFinderInfo:
		if length < 8 {
			return nil
		}
		var buf [8]byte
		if _, err := r.ReadAt(buf[:], off); err != nil {
			return fmt.Errorf("read finder info: %w", err)
		}
		c.HasFinder = true
		c.HFSType = binary.BigEndian.Uint32(buf[0:4])
		c.HFSCreator = binary.BigEndian.Uint32(buf[4:8])
	case entryProDOSInfo:
		if length < 8 {
			return nil
		}
		var buf [8]byte
		if _, err := r.ReadAt(buf[:], off); err != nil {
			return fmt.Errorf("read prodos info: %w", err)
		}
		c.HasProDOS = true
		c.Access = byte(binary.BigEndian.Uint16(buf[0:2]))
		c.ProType = byte(binary.BigEndian.Uint16(buf[2:4]))
		c.ProAux = uint16(binary.BigEndian.Uint32(buf[4:8]))
	}
	return nil
}

// DataReader returns a reader over the data fork payload.
func (c *Container) DataReader(r io.ReaderAt) io.Reader {
	return io.NewSectionReader(r, c.DataOff, c.DataLen)
}

// RsrcReader returns a reader over the resource fork payload.
func (c *Container) RsrcReader(r io.ReaderAt) io.Reader {
	return io.NewSectionReader(r, c.RsrcOff, c.RsrcLen)
}
