// Package engine executes a transfer plan against a destination medium.
// Execution is the only phase that writes: it creates entries, streams
// forks, resolves name conflicts through the caller's callback, and rolls
// back the entry it was writing when a stream fails mid-fork.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"appleport/internal/applesingle"
	"appleport/internal/event"
	"appleport/internal/medium"
	"appleport/internal/part"
	"appleport/internal/plan"
	"appleport/internal/stats"
)

// ErrCancelled is returned when the caller cancels the batch, either
// through the context or by answering a callback with Cancel. Work
// completed before the cancellation point stays written.
var ErrCancelled = errors.New("transfer cancelled")

const copyBufLen = 32 * 1024

// Config controls one Execute call.
type Config struct {
	Dst medium.Endpoint

	// Callback answers progress, cancellation, and conflict questions.
	// Nil means proceed everywhere.
	Callback event.Callback

	// Compression applies to archive forks the destination is asked to
	// store; filesystems ignore it.
	Compression medium.Compression

	// MacZip synthesizes a "__MACOSX" AppleDouble sibling for each file
	// written to a dual-metadata archive that carries a resource fork or
	// typed metadata.
	MacZip bool

	// Verify re-reads every committed fork and compares a BLAKE3 digest
	// of what was read against what was written.
	Verify bool

	Stats *stats.Collector
	Log   *slog.Logger
}

// Execute runs the plan against cfg.Dst in order. It stops at the first
// failure or cancellation; items already executed are not undone.
func Execute(ctx context.Context, cfg Config, items []plan.Item) error {
	if cfg.Dst.IsZero() {
		return errors.New("no destination endpoint")
	}
	x := &exec{
		cfg:   cfg,
		log:   cfg.Log,
		st:    cfg.Stats,
		chars: cfg.Dst.Characteristics(),
		buf:   make([]byte, copyBufLen),
	}
	if x.log == nil {
		x.log = slog.Default()
	}
	if x.st == nil {
		x.st = stats.NewCollector()
	}
	if x.chars.ReadOnly {
		return fmt.Errorf("destination %s is read-only", x.chars.Name)
	}

	units := pairUnits(items, cfg.Dst.IsFilesystem())
	x.total = len(units)

	if cfg.Dst.IsArchive() {
		return x.runArchive(ctx, cfg.Dst.Archive(), units)
	}
	return x.runFilesystem(ctx, cfg.Dst.Filesystem(), units)
}

type exec struct {
	cfg   Config
	log   *slog.Logger
	st    *stats.Collector
	chars medium.Characteristics
	buf   []byte

	done  int
	total int
}

// unit is one destination entry's worth of plan items: a directory, a
// lone fork, or a data+resource pair.
type unit struct {
	dir  *plan.Item
	data *plan.Item
	rsrc *plan.Item
}

func (u unit) primary() *plan.Item {
	switch {
	case u.dir != nil:
		return u.dir
	case u.data != nil:
		return u.data
	default:
		return u.rsrc
	}
}

// pairUnits groups items for execution. Two adjacent fork items with the
// same source and destination path are one file's two forks, data first;
// everything else stands alone. Flat destinations drop directory items.
func pairUnits(items []plan.Item, keepDirs bool) []unit {
	var out []unit
	for i := 0; i < len(items); i++ {
		it := &items[i]
		if it.IsDir {
			if keepDirs {
				out = append(out, unit{dir: it})
			}
			continue
		}
		if it.Fork == medium.DataFork && i+1 < len(items) {
			next := &items[i+1]
			if !next.IsDir && next.Fork == medium.RsrcFork &&
				next.SrcPath == it.SrcPath && next.DstPath == it.DstPath {
				out = append(out, unit{data: it, rsrc: next})
				i++
				continue
			}
		}
		if it.Fork == medium.RsrcFork {
			out = append(out, unit{rsrc: it})
		} else {
			out = append(out, unit{data: it})
		}
	}
	return out
}

// checkpoint runs between units: it honors the context, offers the caller
// a cancellation point, and reports progress.
func (x *exec) checkpoint(ctx context.Context, it *plan.Item) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	facts := event.Facts{
		OrigPath: it.SrcPath,
		NewPath:  it.DstPath,
		DirSep:   it.DstSep,
		ModWhen:  it.Attrs.ModWhen,
		Part:     it.Fork,
	}
	facts.Reason = event.QueryCancel
	if event.Ask(x.cfg.Callback, facts) == event.Cancel {
		return ErrCancelled
	}
	facts.Reason = event.Progress
	facts.Percent = x.done * 100 / x.total
	if event.Ask(x.cfg.Callback, facts) == event.Cancel {
		return ErrCancelled
	}
	return nil
}

func (x *exec) fail(it *plan.Item, err error) error {
	x.st.AddFailed()
	event.Ask(x.cfg.Callback, event.Facts{
		Reason:   event.Failure,
		OrigPath: it.SrcPath,
		NewPath:  it.DstPath,
		DirSep:   it.DstSep,
		Message:  err.Error(),
	})
	return err
}

// resolveConflict asks about an existing destination entry.
// The error, when set, is ErrCancelled; skip is true when the unit should
// be passed over; neither means overwrite.
func (x *exec) resolveConflict(reason event.Reason, it *plan.Item) (skip bool, err error) {
	switch event.Ask(x.cfg.Callback, event.Facts{
		Reason:   reason,
		OrigPath: it.SrcPath,
		NewPath:  it.DstPath,
		DirSep:   it.DstSep,
		ModWhen:  it.Attrs.ModWhen,
	}) {
	case event.Cancel:
		return false, ErrCancelled
	case event.Overwrite:
		if reason == event.FileNameExists {
			return false, nil
		}
		// Overwrite answers nothing for a too-long name.
		return true, nil
	default:
		return true, nil
	}
}

// stream copies one fork from a part source into w, optionally rewriting
// text bytes and hashing what it writes. The source is opened and closed
// here; w is closed here so the fork commits (or not) before return.
func (x *exec) stream(w io.WriteCloser, src part.Source, transform func([]byte)) (int64, [32]byte, error) {
	var sum [32]byte
	if err := src.Open(); err != nil {
		w.Close()
		return 0, sum, err
	}
	defer src.Close()

	h := newDigest(x.cfg.Verify)
	var n int64
	for {
		r, rerr := src.Read(x.buf)
		if r > 0 {
			chunk := x.buf[:r]
			if transform != nil {
				transform(chunk)
			}
			if h != nil {
				h.Write(chunk)
			}
			if _, werr := w.Write(chunk); werr != nil {
				w.Close()
				return n, sum, werr
			}
			n += int64(r)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			w.Close()
			return n, sum, rerr
		}
	}
	if err := w.Close(); err != nil {
		return n, sum, err
	}
	if h != nil {
		copy(sum[:], h.Sum(nil))
	}
	return n, sum, nil
}

// writeBytes commits a fully-materialized payload to a fork writer.
func (x *exec) writeBytes(w io.WriteCloser, payload []byte) ([32]byte, error) {
	var sum [32]byte
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return sum, err
	}
	if err := w.Close(); err != nil {
		return sum, err
	}
	if h := newDigest(x.cfg.Verify); h != nil {
		h.Write(payload)
		copy(sum[:], h.Sum(nil))
	}
	return sum, nil
}

// readAll drains a part source into memory. A nil source yields nil.
func readAll(src part.Source) ([]byte, error) {
	if src == nil {
		return nil, nil
	}
	if err := src.Open(); err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

// containerPayload builds the AppleSingle or AppleDouble byte stream an
// encode-marked item asks the destination to store as a plain file.
func (x *exec) containerPayload(it *plan.Item) ([]byte, error) {
	info := applesingle.FileInfo{
		RealName:   realNameFor(it),
		ProType:    it.Attrs.ProType,
		ProAux:     it.Attrs.ProAux,
		Access:     it.Attrs.Access,
		HFSType:    it.Attrs.HFSType,
		HFSCreator: it.Attrs.HFSCreator,
		CreateWhen: it.Attrs.CreateWhen,
		ModWhen:    it.Attrs.ModWhen,
	}
	var buf bytes.Buffer
	switch it.Encode {
	case plan.EncodeADF:
		rsrc, err := readAll(it.Source)
		if err != nil {
			return nil, err
		}
		if err := applesingle.WriteDouble(&buf, info, rsrc); err != nil {
			return nil, err
		}
	case plan.EncodeAS:
		data, err := readAll(it.Source)
		if err != nil {
			return nil, err
		}
		rsrc, err := readAll(it.RsrcSource)
		if err != nil {
			return nil, err
		}
		if err := applesingle.WriteSingle(&buf, info, data, rsrc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("item %s has no container encoding", it.DstPath)
	}
	return buf.Bytes(), nil
}

// realNameFor recovers the undecorated leaf name for a container's
// RealName entry from the attribute snapshot.
func realNameFor(it *plan.Item) string {
	return it.Attrs.Name
}

func leafOf(path string, sep byte) string {
	if i := strings.LastIndexByte(path, sep); i >= 0 {
		return path[i+1:]
	}
	return path
}

func dirOf(path string, sep byte) string {
	if i := strings.LastIndexByte(path, sep); i >= 0 {
		return path[:i]
	}
	return ""
}

// dropRsrc reports the resource fork of a unit that the destination
// cannot store, asking the caller to acknowledge the loss.
func (x *exec) dropRsrc(it *plan.Item) error {
	x.log.Warn("resource fork not representable at destination",
		"path", it.SrcPath, "dst", x.chars.Name)
	r := event.Ask(x.cfg.Callback, event.Facts{
		Reason:   event.ResourceForkIgnored,
		OrigPath: it.SrcPath,
		NewPath:  it.DstPath,
		DirSep:   it.DstSep,
		Part:     medium.RsrcFork,
		Message:  "resource fork dropped: destination cannot store it",
	})
	if r == event.Cancel {
		return ErrCancelled
	}
	return nil
}

// wantsMacZipSibling reports whether a written file needs a "__MACOSX"
// AppleDouble companion on this destination. Encode-marked items already
// carry their metadata inside the payload and never get a sibling.
func (x *exec) wantsMacZipSibling(u unit) bool {
	if !x.cfg.MacZip || !x.chars.DualMeta || x.chars.HasRsrcForks {
		return false
	}
	p := u.primary()
	if p.Encode != plan.EncodeNone {
		return false
	}
	return u.rsrc != nil || p.Attrs.HasTypeInfo()
}
