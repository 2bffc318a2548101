// Package preserve implements the three filename-level metadata preservation
// conventions (AppleDouble prefix naming, AppleSingle suffix naming, NAPS hex
// tags) plus the MacZip sibling-name transform. Everything here is pure
// string and hex manipulation; container bytes live in package applesingle.
package preserve

import (
	"fmt"
	"strings"
)

// Mode selects how dual forks and typed metadata are encoded when the
// destination cannot carry them natively.
type Mode int

const (
	None Mode = iota
	ADF
	AS
	Host
	NAPS
)

var modeNames = [...]string{
	None: "none",
	ADF:  "adf",
	AS:   "as",
	Host: "host",
	NAPS: "naps",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// ParseMode converts a flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return None, fmt.Errorf("unknown preserve mode %q", s)
}

// ADFPrefix is the filename marker for AppleDouble header files.
const ADFPrefix = "._"

// ASExtension is the filename suffix for AppleSingle files, matched
// case-insensitively.
const ASExtension = ".as"

// MacZipDir is the fixed directory prefix of MacZip metadata entries.
const MacZipDir = "__MACOSX"

// HasADFPrefix reports whether a leaf name carries the AppleDouble marker.
func HasADFPrefix(name string) bool {
	return strings.HasPrefix(name, ADFPrefix) && len(name) > len(ADFPrefix)
}

// StripADFPrefix removes the AppleDouble marker from a leaf name.
func StripADFPrefix(name string) string {
	return strings.TrimPrefix(name, ADFPrefix)
}

// HasASExtension reports whether a name ends in the AppleSingle suffix.
func HasASExtension(name string) bool {
	return len(name) > len(ASExtension) &&
		strings.EqualFold(name[len(name)-len(ASExtension):], ASExtension)
}

// StripASExtension removes the AppleSingle suffix from a name.
func StripASExtension(name string) string {
	if HasASExtension(name) {
		return name[: len(name)-len(ASExtension)]
	}
	return name
}

// MacZipName derives the metadata sibling pathname for an archive entry:
// the fixed directory prefix plus the AppleDouble marker on the leaf.
// "dir/file" becomes "__MACOSX/dir/._file".
func MacZipName(pathname string, sep byte) string {
	s := string(sep)
	dir, leaf := splitLast(pathname, sep)
	if dir == "" {
		return MacZipDir + s + ADFPrefix + leaf
	}
	return MacZipDir + s + dir + s + ADFPrefix + leaf
}

// FromMacZipName reverses MacZipName. ok is false when the pathname is not
// a MacZip metadata entry.
func FromMacZipName(pathname string, sep byte) (string, bool) {
	s := string(sep)
	rest, found := strings.CutPrefix(pathname, MacZipDir+s)
	if !found || rest == "" {
		return "", false
	}
	dir, leaf := splitLast(rest, sep)
	if !HasADFPrefix(leaf) {
		return "", false
	}
	leaf = StripADFPrefix(leaf)
	if dir == "" {
		return leaf, true
	}
	return dir + s + leaf, true
}

// illegal rejects characters that commonly cannot appear in a host filename.
func illegal(c byte) bool {
	if c < 0x20 || c == 0x7f {
		return true
	}
	switch c {
	case '/', '\\', ':', '<', '>', '"', '|', '?', '*':
		return true
	}
	return false
}

// SubstituteIllegal replaces illegal filename characters with '_'. Used by
// every mode except NAPS, which escapes instead so the name survives a
// round trip.
func SubstituteIllegal(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if illegal(name[i]) {
			b.WriteByte('_')
		} else {
			b.WriteByte(name[i])
		}
	}
	return b.String()
}

func splitLast(path string, sep byte) (dir, leaf string) {
	if i := strings.LastIndexByte(path, sep); i >= 0 {
		return path[:i], path[i+1:]
	}
	return "", path
}
