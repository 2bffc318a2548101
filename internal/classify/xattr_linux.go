//go:build linux

package classify

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Linux has no Finder, so tools that carried files over from a Mac store
// the attributes under the user namespace.
const finderInfoAttr = "user.com.apple.FinderInfo"

// probeHostAttrs consults user-namespace extended attributes for records
// still missing type info. Values already set are never overridden. A
// resource fork stored in an xattr has no standalone path to stream from,
// so only its type metadata is recovered here.
func (c *Classifier) probeHostAttrs(rec *Record) {
	if rec.Attrs.IsDir || rec.Data == nil || rec.Data.Kind != Plain {
		return
	}
	if rec.HasTypeInfo() {
		return
	}
	var buf [32]byte
	n, err := unix.Getxattr(rec.Data.Path, finderInfoAttr, buf[:])
	if err != nil || n < 8 {
		return
	}
	rec.Attrs.HFSType = binary.BigEndian.Uint32(buf[0:4])
	rec.Attrs.HFSCreator = binary.BigEndian.Uint32(buf[4:8])
}
