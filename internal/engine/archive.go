package engine

import (
	"bytes"
	"context"
	"fmt"

	"appleport/internal/applesingle"
	"appleport/internal/event"
	"appleport/internal/medium"
	"appleport/internal/plan"
	"appleport/internal/preserve"
)

// runArchive writes units into a flat archive. A duplicate index is built
// once up front; record lookups during the batch go through it so name
// collisions are detected the same way regardless of archive size.
func (x *exec) runArchive(ctx context.Context, arc medium.Archive, units []unit) error {
	index := make(map[string]medium.Entry)
	for _, e := range arc.Entries() {
		index[x.key(e.Pathname())] = e
	}

	for _, u := range units {
		it := u.primary()
		if err := x.checkpoint(ctx, it); err != nil {
			return err
		}
		if err := x.archiveUnit(arc, index, u); err != nil {
			return err
		}
		x.done++
	}
	return nil
}

// key folds pathnames for the duplicate index per the archive's case rule.
func (x *exec) key(pathname string) string {
	if x.chars.CaseSensitive {
		return pathname
	}
	return medium.FoldName(pathname)
}

func (x *exec) archiveUnit(arc medium.Archive, index map[string]medium.Entry, u unit) error {
	it := u.primary()
	dst := it.DstPath

	if x.chars.MaxNameLen > 0 && len(dst) > x.chars.MaxNameLen {
		skip, err := x.resolveConflict(event.PathTooLong, it)
		if err != nil {
			return err
		}
		if skip {
			x.st.AddSkipped()
			x.log.Info("skipped: name too long", "path", dst, "max", x.chars.MaxNameLen)
			return nil
		}
	}

	if existing, ok := index[x.key(dst)]; ok {
		skip, err := x.resolveConflict(event.FileNameExists, it)
		if err != nil {
			return err
		}
		if skip {
			x.st.AddSkipped()
			return nil
		}
		if err := arc.DeleteRecord(existing); err != nil {
			return x.fail(it, fmt.Errorf("overwrite %s: %w", dst, err))
		}
		delete(index, x.key(dst))
	}

	attrs := it.Attrs
	attrs.Name = dst
	attrs.IsDir = false

	rec, err := arc.CreateRecord(attrs)
	if err != nil {
		return x.fail(it, fmt.Errorf("create %s: %w", dst, err))
	}
	rollback := func() {
		if derr := arc.DeleteRecord(rec); derr != nil {
			x.log.Warn("rollback failed", "path", dst, "error", derr)
		}
	}

	dataWritten := false
	switch it.Encode {
	case plan.EncodeADF, plan.EncodeAS:
		payload, perr := x.containerPayload(it)
		if perr != nil {
			rollback()
			return x.fail(it, fmt.Errorf("encode %s: %w", dst, perr))
		}
		if err := x.commitArchiveBytes(arc, rec, medium.DataFork, payload); err != nil {
			rollback()
			return x.fail(it, err)
		}
		dataWritten = true

	default:
		if u.data != nil && u.data.Source != nil {
			if err := x.commitArchiveFork(arc, rec, medium.DataFork, u.data); err != nil {
				rollback()
				return x.fail(it, err)
			}
			dataWritten = true
		}
		if u.rsrc != nil && u.rsrc.Source != nil {
			switch {
			case x.chars.HasRsrcForks:
				if err := x.commitArchiveFork(arc, rec, medium.RsrcFork, u.rsrc); err != nil {
					rollback()
					return x.fail(it, err)
				}
			case x.wantsMacZipSibling(u):
				// Carried by the sibling below; the primary record gets
				// only the zero-length placeholder.
			case u.data == nil:
				// A mode-named standalone resource file: its bytes are
				// the record's only payload.
				if err := x.commitArchiveFork(arc, rec, medium.DataFork, u.rsrc); err != nil {
					rollback()
					return x.fail(it, err)
				}
				dataWritten = true
			default:
				if err := x.dropRsrc(u.rsrc); err != nil {
					rollback()
					return err
				}
			}
		}
	}

	if x.wantsMacZipSibling(u) {
		if err := x.writeMacZipSibling(arc, index, u); err != nil {
			rollback()
			return x.fail(it, err)
		}
		if !dataWritten {
			// The convention pairs the header file with a real data
			// entry, so give the fork-less record a zero-length one.
			w, ferr := arc.CreateFork(rec, medium.DataFork, x.cfg.Compression)
			if ferr != nil {
				rollback()
				return x.fail(it, fmt.Errorf("placeholder %s: %w", dst, ferr))
			}
			if cerr := w.Close(); cerr != nil {
				rollback()
				return x.fail(it, fmt.Errorf("placeholder %s: %w", dst, cerr))
			}
		}
	}

	if err := arc.SetAttributes(rec, attrs); err != nil {
		rollback()
		return x.fail(it, fmt.Errorf("set attributes %s: %w", dst, err))
	}

	index[x.key(dst)] = rec
	x.st.AddFileWritten()
	return nil
}

// commitArchiveFork streams one item's source into a fork, verifying the
// committed bytes when asked.
func (x *exec) commitArchiveFork(arc medium.Archive, rec medium.Entry, fork medium.Fork, it *plan.Item) error {
	w, err := arc.CreateFork(rec, fork, x.cfg.Compression)
	if err != nil {
		return fmt.Errorf("create %s fork of %s: %w", fork, it.DstPath, err)
	}
	n, sum, err := x.stream(w, it.Source, x.textTransform(it))
	if err != nil {
		return fmt.Errorf("write %s fork of %s: %w", fork, it.DstPath, err)
	}
	if x.cfg.Verify {
		if err := x.verifyFork(medium.ArchiveEndpoint(arc), rec, fork, sum); err != nil {
			return err
		}
	}
	x.st.AddForkWritten()
	x.st.AddBytesWritten(n)
	return nil
}

// commitArchiveBytes writes a materialized payload as a record's data fork.
func (x *exec) commitArchiveBytes(arc medium.Archive, rec medium.Entry, fork medium.Fork, payload []byte) error {
	w, err := arc.CreateFork(rec, fork, x.cfg.Compression)
	if err != nil {
		return fmt.Errorf("create %s fork: %w", fork, err)
	}
	sum, err := x.writeBytes(w, payload)
	if err != nil {
		return fmt.Errorf("write %s fork: %w", fork, err)
	}
	if x.cfg.Verify {
		if err := x.verifyFork(medium.ArchiveEndpoint(arc), rec, fork, sum); err != nil {
			return err
		}
	}
	x.st.AddForkWritten()
	x.st.AddBytesWritten(int64(len(payload)))
	return nil
}

// writeMacZipSibling stores the file's typed metadata and resource fork as
// an AppleDouble header record under "__MACOSX", replacing any stale one.
func (x *exec) writeMacZipSibling(arc medium.Archive, index map[string]medium.Entry, u unit) error {
	it := u.primary()
	sibling := preserve.MacZipName(it.DstPath, it.DstSep)

	var rsrc []byte
	if u.rsrc != nil && u.rsrc.Source != nil {
		var err error
		rsrc, err = readAll(u.rsrc.Source)
		if err != nil {
			return fmt.Errorf("read resource fork of %s: %w", it.SrcPath, err)
		}
	}

	if stale, ok := index[x.key(sibling)]; ok {
		if err := arc.DeleteRecord(stale); err != nil {
			return fmt.Errorf("replace %s: %w", sibling, err)
		}
		delete(index, x.key(sibling))
	}

	attrs := medium.Attributes{Name: sibling, ModWhen: it.Attrs.ModWhen}
	rec, err := arc.CreateRecord(attrs)
	if err != nil {
		return fmt.Errorf("create %s: %w", sibling, err)
	}

	payload, err := doublePayload(it.Attrs, rsrc)
	if err != nil {
		arc.DeleteRecord(rec)
		return fmt.Errorf("encode %s: %w", sibling, err)
	}
	if err := x.commitArchiveBytes(arc, rec, medium.DataFork, payload); err != nil {
		arc.DeleteRecord(rec)
		return err
	}
	index[x.key(sibling)] = rec
	return nil
}

// doublePayload renders an AppleDouble header stream for attrs plus an
// in-memory resource fork.
func doublePayload(attrs medium.Attributes, rsrc []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := applesingle.WriteDouble(&buf, applesingle.FileInfo{
		RealName:   attrs.Name,
		ProType:    attrs.ProType,
		ProAux:     attrs.ProAux,
		Access:     attrs.Access,
		HFSType:    attrs.HFSType,
		HFSCreator: attrs.HFSCreator,
		CreateWhen: attrs.CreateWhen,
		ModWhen:    attrs.ModWhen,
	}, rsrc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
