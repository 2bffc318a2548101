package preserve

import (
	"strings"
)

// NAPS tag grammar: '#' + 6 hex digits (ProDOS type+auxtype) or 16 hex
// digits (HFS type+creator), optional fork letter ('d' data, 'r' resource,
// 'i' disk image), optional throwaway host extension.

// NAPSFork identifies the fork letter of a decoded tag.
type NAPSFork int

const (
	NAPSData NAPSFork = iota
	NAPSRsrc
	NAPSImage
	NAPSBad // unrecognized fork letter
)

// NAPSTag is a decoded attribute preservation string.
type NAPSTag struct {
	BaseName   string // original name, tag and escapes removed
	ProType    byte
	ProAux     uint16
	HFSType    uint32
	HFSCreator uint32
	IsHFS      bool
	Fork       NAPSFork
}

// DecodeNAPS examines a leaf name for a trailing NAPS tag. ok is false when
// the name carries no recognizable tag, which is not an error; the caller
// falls through to the next classification rule.
func DecodeNAPS(name string) (NAPSTag, bool) {
	hash := strings.LastIndexByte(name, '#')
	if hash < 0 || hash == len(name)-1 {
		return NAPSTag{}, false
	}
	rest := name[hash+1:]

	// The fork letter 'd' is a hex digit, so the digit run cannot be counted
	// greedily. Try the two fixed tag widths instead, longest first.
	for _, digits := range []int{16, 6} {
		fork, ok := napsTail(rest, digits)
		if !ok {
			continue
		}
		tag := NAPSTag{Fork: fork, BaseName: unescapeNAPS(name[:hash])}
		if digits == 6 {
			v := hexVal(rest[:6])
			tag.ProType = byte(v >> 16)
			tag.ProAux = uint16(v)
		} else {
			tag.IsHFS = true
			tag.HFSType = uint32(hexVal(rest[:8]))
			tag.HFSCreator = uint32(hexVal(rest[8:16]))
		}
		return tag, true
	}
	return NAPSTag{}, false
}

// napsTail checks whether rest parses as digits hex digits followed by an
// optional fork letter and an optional '.' extension to discard. A stray
// hex digit after the run is a width mismatch, not a fork letter; any other
// unrecognized letter decodes as NAPSBad.
func napsTail(rest string, digits int) (NAPSFork, bool) {
	if len(rest) < digits {
		return 0, false
	}
	for i := 0; i < digits; i++ {
		if !isHex(rest[i]) {
			return 0, false
		}
	}
	fork := NAPSData
	tail := rest[digits:]
	if tail != "" && tail[0] != '.' {
		switch {
		case tail[0] == 'd':
			fork = NAPSData
		case tail[0] == 'r':
			fork = NAPSRsrc
		case tail[0] == 'i':
			fork = NAPSImage
		case isHex(tail[0]):
			return 0, false
		default:
			fork = NAPSBad
		}
		tail = tail[1:]
	}
	if tail != "" && tail[0] != '.' {
		return 0, false
	}
	return fork, true
}

// EncodeNAPS builds the tag suffix (without the base name) for one fork.
// withD marks the data fork explicitly; the resource fork always gets 'r'.
func EncodeNAPS(t NAPSTag, fork NAPSFork, withD bool) string {
	var b strings.Builder
	b.WriteByte('#')
	if t.IsHFS {
		writeHex(&b, uint64(t.HFSType), 8)
		writeHex(&b, uint64(t.HFSCreator), 8)
	} else {
		writeHex(&b, uint64(t.ProType), 2)
		writeHex(&b, uint64(t.ProAux), 4)
	}
	switch {
	case fork == NAPSRsrc:
		b.WriteByte('r')
	case withD:
		b.WriteByte('d')
	}
	return b.String()
}

// ConvenienceExt returns a throwaway host extension for well-known text and
// binary types, or "" when none applies.
func ConvenienceExt(t NAPSTag) string {
	if t.IsHFS {
		if t.HFSType == 0x54455854 { // 'TEXT'
			return ".txt"
		}
		return ""
	}
	switch t.ProType {
	case 0x04: // TXT
		return ".txt"
	case 0x06: // BIN
		return ".bin"
	}
	return ""
}

// EscapeNAPS encodes characters that cannot appear in a host filename as
// %xx so the original name survives a round trip. '%' itself is escaped.
func EscapeNAPS(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if illegal(c) || c == '%' || c == '#' {
			b.WriteByte('%')
			b.WriteByte(hexDigit(c >> 4))
			b.WriteByte(hexDigit(c & 0x0f))
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func unescapeNAPS(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '%' && i+2 < len(name) && isHex(name[i+1]) && isHex(name[i+2]) {
			b.WriteByte(byte(hexVal(name[i+1 : i+3])))
			i += 2
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func hexVal(s string) uint64 {
	var v uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case '0' <= c && c <= '9':
			v = v<<4 | uint64(c-'0')
		case 'a' <= c && c <= 'f':
			v = v<<4 | uint64(c-'a'+10)
		case 'A' <= c && c <= 'F':
			v = v<<4 | uint64(c-'A'+10)
		}
	}
	return v
}

func hexDigit(v byte) byte {
	if v < 10 {
		return '0' + v
	}
	return 'a' + v - 10
}

func writeHex(b *strings.Builder, v uint64, digits int) {
	for i := digits - 1; i >= 0; i-- {
		b.WriteByte(hexDigit(byte(v >> (uint(i) * 4) & 0x0f)))
	}
}
