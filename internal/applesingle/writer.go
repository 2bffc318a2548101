package applesingle

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// FileInfo is the metadata side of a container being written.
type FileInfo struct {
	RealName   string
	ProType    byte
	ProAux     uint16
	Access     byte
	HFSType    uint32
	HFSCreator uint32
	CreateWhen time.Time
	ModWhen    time.Time
}

// WriteDouble writes an AppleDouble header stream: dates, ProDOS info,
// Finder info, and the resource fork (rsrc may be nil for a metadata-only
// header). The paired data fork lives outside the container.
func WriteDouble(w io.Writer, info FileInfo, rsrc []byte) error {
	return write(w, MagicDouble, info, false, nil, rsrc)
}

// WriteSingle writes a full AppleSingle container carrying both forks and,
// when set, the real name.
func WriteSingle(w io.Writer, info FileInfo, data, rsrc []byte) error {
	return write(w, MagicSingle, info, true, data, rsrc)
}

func write(w io.Writer, magic uint32, info FileInfo, withData bool, data, rsrc []byte) error {
	type section struct {
		id      uint32
		payload []byte
	}
	var sections []section

	if magic == MagicSingle && info.RealName != "" {
		sections = append(sections, section{entryRealName, []byte(info.RealName)})
	}
	sections = append(sections, section{entryFileDates, datesPayload(info)})
	if info.ProType != 0 || info.ProAux != 0 || info.Access != 0 {
		sections = append(sections, section{entryProDOSInfo, prodosPayload(info)})
	}
	if info.HFSType != 0 || info.HFSCreator != 0 {
		sections = append(sections, section{entryFinderInfo, finderPayload(info)})
	}
	if withData {
		sections = append(sections, section{entryDataFork, data})
	}
	if rsrc != nil {
		sections = append(sections, section{entryRsrcFork, rsrc})
	}

	var hdr [headerLen]byte
	binary.BigEndian.PutUint32(hdr[0:4], magic)
	binary.BigEndian.PutUint32(hdr[4:8], Version2)
	binary.BigEndian.PutUint16(hdr[24:26], uint16(len(sections)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	off := uint32(headerLen + entryLen*len(sections))
	table := make([]byte, entryLen*len(sections))
	for i, s := range sections {
		ent := table[i*entryLen:]
		binary.BigEndian.PutUint32(ent[0:4], s.id)
		binary.BigEndian.PutUint32(ent[4:8], off)
		binary.BigEndian.PutUint32(ent[8:12], uint32(len(s.payload)))
		off += uint32(len(s.payload))
	}
	if _, err := w.Write(table); err != nil {
		return fmt.Errorf("write entry table: %w", err)
	}
	for _, s := range sections {
		if _, err := w.Write(s.payload); err != nil {
			return fmt.Errorf("write entry %d: %w", s.id, err)
		}
	}
	return nil
}

// noDate as it appears on the wire.
const noDateField uint32 = 0x80000000

func datesPayload(info FileInfo) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], dateField(info.CreateWhen))
	binary.BigEndian.PutUint32(buf[4:8], dateField(info.ModWhen))
	binary.BigEndian.PutUint32(buf[8:12], noDateField)  // backup
	binary.BigEndian.PutUint32(buf[12:16], noDateField) // access
	return buf
}

func dateField(t time.Time) uint32 {
	if t.IsZero() {
		return noDateField
	}
	secs := t.Unix() - dateEpoch.Unix()
	if secs < -0x7fffffff || secs > 0x7fffffff {
		return noDateField
	}
	return uint32(int32(secs))
}

func prodosPayload(info FileInfo) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(info.Access))
	binary.BigEndian.PutUint16(buf[2:4], uint16(info.ProType))
	binary.BigEndian.PutUint32(buf[4:8], uint32(info.ProAux))
	return buf
}

func finderPayload(info FileInfo) []byte {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint32(buf[0:4], info.HFSType)
	binary.BigEndian.PutUint32(buf[4:8], info.HFSCreator)
	return buf
}
