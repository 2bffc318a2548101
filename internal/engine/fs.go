package engine

import (
	"context"
	"fmt"
	"strings"

	"appleport/internal/event"
	"appleport/internal/medium"
	"appleport/internal/plan"
)

// hostRsrcSuffix is the path tail host-fork naming appends to a file to
// address its resource fork.
const hostRsrcSuffix = "..namedfork"

// runFilesystem writes units into a hierarchical destination. Directory
// entries are memoized by destination path so each is resolved once.
func (x *exec) runFilesystem(ctx context.Context, fs medium.Filesystem, units []unit) error {
	dirs := map[string]medium.Entry{"": fs.RootDir()}

	for _, u := range units {
		it := u.primary()
		if err := x.checkpoint(ctx, it); err != nil {
			return err
		}
		var err error
		if u.dir != nil {
			err = x.fsDir(fs, dirs, u.dir)
		} else {
			err = x.fsFile(fs, dirs, u)
		}
		if err != nil {
			return err
		}
		x.done++
	}
	return nil
}

// resolveDir walks dst component by component, creating what is missing.
// A non-directory in the way is fatal: the plan and the destination
// disagree about the tree's shape and no callback answer can fix that.
func (x *exec) resolveDir(fs medium.Filesystem, dirs map[string]medium.Entry, dst string, sep byte, attrs medium.Attributes) (medium.Entry, error) {
	if e, ok := dirs[dst]; ok {
		return e, nil
	}
	cur := dirs[""]
	walked := ""
	for _, comp := range strings.Split(dst, string(sep)) {
		if comp == "" {
			continue
		}
		if walked == "" {
			walked = comp
		} else {
			walked = walked + string(sep) + comp
		}
		if e, ok := dirs[walked]; ok {
			cur = e
			continue
		}
		child, ok := fs.FindChild(cur, comp)
		if ok && !child.IsDir() {
			return nil, fmt.Errorf("%s: a file is in the way of directory %s", walked, dst)
		}
		if !ok {
			a := attrs
			a.Name = comp
			a.IsDir = true
			var err error
			child, err = fs.CreateDir(cur, a)
			if err != nil {
				return nil, fmt.Errorf("create directory %s: %w", walked, err)
			}
			x.st.AddDirCreated()
		}
		dirs[walked] = child
		cur = child
	}
	return cur, nil
}

// fsDir materializes one planned directory item.
func (x *exec) fsDir(fs medium.Filesystem, dirs map[string]medium.Entry, it *plan.Item) error {
	if _, err := x.resolveDir(fs, dirs, it.DstPath, it.DstSep, it.Attrs); err != nil {
		return x.fail(it, err)
	}
	return nil
}

func (x *exec) fsFile(fs medium.Filesystem, dirs map[string]medium.Entry, u unit) error {
	it := u.primary()
	sep := it.DstSep

	// A standalone resource item addressed through host fork naming
	// attaches to the file written just before it.
	if u.data == nil && u.rsrc != nil {
		if filePath, ok := hostForkTarget(it.DstPath, sep); ok {
			return x.fsHostFork(fs, dirs, u.rsrc, filePath)
		}
	}

	parent, err := x.resolveDir(fs, dirs, dirOf(it.DstPath, sep), sep, medium.Attributes{ModWhen: it.Attrs.ModWhen})
	if err != nil {
		return x.fail(it, err)
	}
	leaf := leafOf(it.DstPath, sep)

	if existing, ok := fs.FindChild(parent, leaf); ok {
		if existing.IsDir() {
			return x.fail(it, fmt.Errorf("%s: a directory is in the way", it.DstPath))
		}
		if u.data != nil && medium.SameEntry(existing, u.data.Entry) {
			return x.fail(it, fmt.Errorf("%s: source and destination are the same file", it.DstPath))
		}
		skip, cerr := x.resolveConflict(event.FileNameExists, it)
		if cerr != nil {
			return cerr
		}
		if skip {
			x.st.AddSkipped()
			return nil
		}
		if derr := fs.Delete(existing); derr != nil {
			return x.fail(it, fmt.Errorf("overwrite %s: %w", it.DstPath, derr))
		}
	}

	attrs := it.Attrs
	attrs.Name = leaf
	attrs.IsDir = false

	ent, err := fs.CreateFile(parent, attrs)
	if err != nil {
		return x.fail(it, fmt.Errorf("create %s: %w", it.DstPath, err))
	}
	rollback := func() {
		if derr := fs.Delete(ent); derr != nil {
			x.log.Warn("rollback failed", "path", it.DstPath, "error", derr)
		}
	}

	switch it.Encode {
	case plan.EncodeADF, plan.EncodeAS:
		payload, perr := x.containerPayload(it)
		if perr != nil {
			rollback()
			return x.fail(it, fmt.Errorf("encode %s: %w", it.DstPath, perr))
		}
		if err := x.commitFSBytes(fs, ent, medium.DataFork, payload); err != nil {
			rollback()
			return x.fail(it, err)
		}

	default:
		if u.data != nil && u.data.Source != nil {
			if err := x.commitFSFork(fs, ent, medium.DataFork, u.data); err != nil {
				rollback()
				return x.fail(it, err)
			}
		}
		if u.rsrc != nil && u.rsrc.Source != nil {
			switch {
			case u.data == nil:
				// Mode-named standalone resource file.
				if err := x.commitFSFork(fs, ent, medium.DataFork, u.rsrc); err != nil {
					rollback()
					return x.fail(it, err)
				}
			case x.chars.HasRsrcForks:
				if err := x.commitFSFork(fs, ent, medium.RsrcFork, u.rsrc); err != nil {
					rollback()
					return x.fail(it, err)
				}
			default:
				if err := x.dropRsrc(u.rsrc); err != nil {
					rollback()
					return err
				}
			}
		}
	}

	if err := fs.SetAttributes(ent, attrs); err != nil {
		rollback()
		return x.fail(it, fmt.Errorf("set attributes %s: %w", it.DstPath, err))
	}
	x.st.AddFileWritten()
	return nil
}

// fsHostFork writes a resource item to the resource fork of an existing
// file when the destination supports forks, or falls back to the literal
// special path when it does not.
func (x *exec) fsHostFork(fs medium.Filesystem, dirs map[string]medium.Entry, it *plan.Item, filePath string) error {
	sep := it.DstSep
	if x.chars.HasRsrcForks {
		parent, err := x.resolveDir(fs, dirs, dirOf(filePath, sep), sep, medium.Attributes{})
		if err != nil {
			return x.fail(it, err)
		}
		ent, ok := fs.FindChild(parent, leafOf(filePath, sep))
		if !ok {
			return x.fail(it, fmt.Errorf("%s: no file to attach resource fork to", filePath))
		}
		if err := x.commitFSFork(fs, ent, medium.RsrcFork, it); err != nil {
			return x.fail(it, err)
		}
		return nil
	}
	// No native forks: store the bytes at the literal path.
	return x.fsPlainFile(fs, dirs, it)
}

// fsPlainFile writes one item's bytes as an ordinary file, used for the
// literal host-fork fallback.
func (x *exec) fsPlainFile(fs medium.Filesystem, dirs map[string]medium.Entry, it *plan.Item) error {
	sep := it.DstSep
	parent, err := x.resolveDir(fs, dirs, dirOf(it.DstPath, sep), sep, medium.Attributes{})
	if err != nil {
		return x.fail(it, err)
	}
	attrs := it.Attrs
	attrs.Name = leafOf(it.DstPath, sep)
	attrs.IsDir = false
	ent, err := fs.CreateFile(parent, attrs)
	if err != nil {
		return x.fail(it, fmt.Errorf("create %s: %w", it.DstPath, err))
	}
	if err := x.commitFSFork(fs, ent, medium.DataFork, it); err != nil {
		if derr := fs.Delete(ent); derr != nil {
			x.log.Warn("rollback failed", "path", it.DstPath, "error", derr)
		}
		return x.fail(it, err)
	}
	x.st.AddFileWritten()
	return nil
}

// hostForkTarget recognizes "<file>/..namedfork/rsrc" and returns the file
// part.
func hostForkTarget(dst string, sep byte) (string, bool) {
	tail := string(sep) + hostRsrcSuffix + string(sep) + "rsrc"
	if strings.HasSuffix(dst, tail) {
		return dst[:len(dst)-len(tail)], true
	}
	return "", false
}

func (x *exec) commitFSFork(fs medium.Filesystem, ent medium.Entry, fork medium.Fork, it *plan.Item) error {
	w, err := fs.CreateFork(ent, fork)
	if err != nil {
		return fmt.Errorf("create %s fork of %s: %w", fork, it.DstPath, err)
	}
	n, sum, err := x.stream(w, it.Source, x.textTransform(it))
	if err != nil {
		return fmt.Errorf("write %s fork of %s: %w", fork, it.DstPath, err)
	}
	if x.cfg.Verify {
		if err := x.verifyFork(medium.FilesystemEndpoint(fs), ent, fork, sum); err != nil {
			return err
		}
	}
	x.st.AddForkWritten()
	x.st.AddBytesWritten(n)
	return nil
}

func (x *exec) commitFSBytes(fs medium.Filesystem, ent medium.Entry, fork medium.Fork, payload []byte) error {
	w, err := fs.CreateFork(ent, fork)
	if err != nil {
		return fmt.Errorf("create %s fork: %w", fork, err)
	}
	sum, err := x.writeBytes(w, payload)
	if err != nil {
		return fmt.Errorf("write %s fork: %w", fork, err)
	}
	if x.cfg.Verify {
		if err := x.verifyFork(medium.FilesystemEndpoint(fs), ent, fork, sum); err != nil {
			return err
		}
	}
	x.st.AddForkWritten()
	x.st.AddBytesWritten(int64(len(payload)))
	return nil
}
