//go:build darwin

package classify

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const finderInfoAttr = "com.apple.FinderInfo"

// probeHostAttrs consults the host's native metadata channels: the Finder
// info extended attribute for type/creator, and the named-fork path for a
// resource fork. Values already set on the record are never overridden.
func (c *Classifier) probeHostAttrs(rec *Record) {
	if rec.Attrs.IsDir || rec.Data == nil || rec.Data.Kind != Plain {
		return
	}
	path := rec.Data.Path

	if !rec.HasTypeInfo() {
		var buf [32]byte
		n, err := unix.Getxattr(path, finderInfoAttr, buf[:])
		if err == nil && n >= 8 {
			rec.Attrs.HFSType = binary.BigEndian.Uint32(buf[0:4])
			rec.Attrs.HFSCreator = binary.BigEndian.Uint32(buf[4:8])
		}
	}

	if rec.Rsrc == nil {
		forkPath := filepath.Join(path, "..namedfork", "rsrc")
		if info, err := os.Stat(forkPath); err == nil && info.Size() > 0 {
			rec.Rsrc = &ForkSource{Kind: Plain, Path: forkPath, Len: info.Size()}
		}
	}
}
