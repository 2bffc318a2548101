package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"appleport/internal/applesingle"
	"appleport/internal/medium"
	"appleport/internal/part"
	"appleport/internal/preserve"
)

// FromArchive plans the given archive entries (all entries when nil).
// Directory entries are ignored: archives are not a place to reconstruct
// empty directories from. When the archive uses the MacZip convention, a
// metadata entry is merged into its main sibling and never emitted alone.
func FromArchive(src medium.Archive, entries []medium.Entry, cfg Config) ([]Item, error) {
	if entries == nil {
		entries = src.Entries()
	}
	chars := src.Characteristics()
	ep := medium.ArchiveEndpoint(src)
	synth := NewDirSynth()

	// Index MacZip metadata entries by the main pathname they decorate.
	metaFor := make(map[string]medium.Entry)
	if chars.DualMeta {
		for _, e := range entries {
			if main, ok := preserve.FromMacZipName(e.Pathname(), chars.DirSep); ok {
				metaFor[medium.FoldName(main)] = e
			}
		}
	}

	var items []Item
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		pathname := e.Pathname()
		if chars.DualMeta {
			if main, ok := preserve.FromMacZipName(pathname, chars.DirSep); ok {
				if _, exists := src.FindEntry(main); exists {
					continue // consumed when the main entry is planned
				}
			}
		}
		if cfg.Filter != nil && !cfg.Filter.Match(pathname, false) {
			continue
		}

		shape, err := archiveShape(ep, src, e, metaFor[medium.FoldName(pathname)], cfg)
		if err != nil {
			return nil, err
		}
		emitted := emitFile(shape, cfg)
		if len(emitted) > 0 && !cfg.StripPaths {
			items = append(items, synth.Missing(emitted[0].DstPath, cfg.DstSep, e.Attributes())...)
		}
		items = append(items, emitted...)
	}
	return items, nil
}

func archiveShape(ep medium.Endpoint, src medium.Archive, e, meta medium.Entry, cfg Config) (fileShape, error) {
	chars := src.Characteristics()
	dir, leaf := splitPath(e.Pathname(), chars.DirSep)

	shape := fileShape{
		attrs:       e.Attributes(),
		dstDir:      cond(cfg.StripPaths, "", convertDir(dir, chars.DirSep, cfg)),
		leaf:        cleanComponent(leaf, cfg.Mode, cfg.Native),
		rsrcTracked: chars.RsrcForkTracked,
		src:         ep,
		entry:       e,
		srcPath:     e.Pathname(),
		mode:        cfg.Mode,
	}
	if e.HasFork(medium.DataFork) {
		shape.hasData = true
		shape.dataLen = e.ForkLen(medium.DataFork)
		shape.data = func() part.Source { return part.NewEntrySource(ep, e, medium.DataFork) }
	}
	if e.HasFork(medium.RsrcFork) {
		shape.hasRsrc = true
		shape.rsrcLen = e.ForkLen(medium.RsrcFork)
		shape.rsrc = func() part.Source { return part.NewEntrySource(ep, e, medium.RsrcFork) }
	}

	if meta != nil {
		if err := mergeMacZip(src, meta, &shape, ep); err != nil {
			return shape, err
		}
	}
	return shape, nil
}

// mergeMacZip folds a "__MACOSX" metadata sibling into the main entry's
// shape: typed attributes and dates from the AppleDouble header, plus the
// resource fork it carries.
func mergeMacZip(src medium.Archive, meta medium.Entry, shape *fileShape, ep medium.Endpoint) error {
	rc, err := src.OpenFork(meta, medium.DataFork)
	if err != nil {
		return fmt.Errorf("open metadata entry %s: %w", meta.Pathname(), err)
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read metadata entry %s: %w", meta.Pathname(), err)
	}
	cont, err := applesingle.Parse(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		if errors.Is(err, applesingle.ErrNotContainer) {
			return nil // stray file under the prefix; main entry stands alone
		}
		return fmt.Errorf("parse metadata entry %s: %w", meta.Pathname(), err)
	}

	shape.attrs.ProType = cont.ProType
	shape.attrs.ProAux = cont.ProAux
	shape.attrs.HFSType = cont.HFSType
	shape.attrs.HFSCreator = cont.HFSCreator
	if cont.Access != 0 {
		shape.attrs.Access = cont.Access
	}
	if cont.HasDates {
		shape.attrs.ModWhen = cont.ModWhen
		shape.attrs.CreateWhen = cont.CreateWhen
	}
	if cont.HasRsrc {
		shape.hasRsrc = true
		shape.rsrcLen = cont.RsrcLen
		m := meta
		shape.rsrc = func() part.Source {
			return part.NewContainerSource(part.NewEntrySource(ep, m, medium.DataFork), medium.RsrcFork)
		}
	}
	return nil
}

// FromFilesystem plans a filesystem sub-tree. boundary is the directory
// paths re-root against; it never appears in destination paths. entries
// defaults to the boundary's children.
func FromFilesystem(src medium.Filesystem, boundary medium.Entry, entries []medium.Entry, cfg Config) ([]Item, error) {
	if boundary == nil {
		boundary = src.RootDir()
	}
	if entries == nil {
		var err error
		entries, err = src.Children(boundary)
		if err != nil {
			return nil, err
		}
	}
	w := &fsWalker{src: src, boundary: boundary, cfg: cfg, synth: NewDirSynth()}
	for _, e := range entries {
		if err := w.visit(e); err != nil {
			return nil, err
		}
	}
	return w.items, nil
}

type fsWalker struct {
	src      medium.Filesystem
	boundary medium.Entry
	cfg      Config
	synth    *DirSynth
	items    []Item
}

func (w *fsWalker) visit(e medium.Entry) error {
	chars := w.src.Characteristics()
	rel := w.relPath(e)

	if e.IsDir() {
		if !w.cfg.StripPaths {
			dst := convertDir(rel, chars.DirSep, w.cfg)
			w.items = append(w.items, w.synth.Missing(dst, w.cfg.DstSep, e.Attributes())...)
			w.synth.Mark(dst)
			a := e.Attributes()
			a.Name = leafOf(dst, w.cfg.DstSep)
			w.items = append(w.items, Item{
				Src: medium.FilesystemEndpoint(w.src), Entry: e,
				IsDir: true, Attrs: a,
				SrcPath: rel, DstPath: dst, DstSep: w.cfg.DstSep,
				Mode: w.cfg.Mode,
			})
		}
		children, err := w.src.Children(e)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := w.visit(c); err != nil {
				return err
			}
		}
		return nil
	}

	if w.cfg.Filter != nil && !w.cfg.Filter.Match(rel, false) {
		return nil
	}

	dir, leaf := splitPath(rel, chars.DirSep)
	ep := medium.FilesystemEndpoint(w.src)
	shape := fileShape{
		attrs:       e.Attributes(),
		dstDir:      cond(w.cfg.StripPaths, "", convertDir(dir, chars.DirSep, w.cfg)),
		leaf:        cleanComponent(leaf, w.cfg.Mode, w.cfg.Native),
		rsrcTracked: chars.RsrcForkTracked,
		src:         ep,
		entry:       e,
		srcPath:     rel,
		mode:        w.cfg.Mode,
	}
	if e.HasFork(medium.DataFork) {
		shape.hasData = true
		shape.dataLen = e.ForkLen(medium.DataFork)
		shape.data = func() part.Source { return part.NewEntrySource(ep, e, medium.DataFork) }
	}
	if e.HasFork(medium.RsrcFork) {
		shape.hasRsrc = true
		shape.rsrcLen = e.ForkLen(medium.RsrcFork)
		shape.rsrc = func() part.Source { return part.NewEntrySource(ep, e, medium.RsrcFork) }
	}

	emitted := emitFile(shape, w.cfg)
	if len(emitted) > 0 && !w.cfg.StripPaths {
		w.items = append(w.items, w.synth.Missing(emitted[0].DstPath, w.cfg.DstSep, e.Attributes())...)
	}
	w.items = append(w.items, emitted...)
	return nil
}

// relPath walks parent links from e up to (excluding) the boundary,
// joining names with the source separator. A partial sub-tree copy thus
// yields relative, not volume-absolute, paths.
func (w *fsWalker) relPath(e medium.Entry) string {
	sep := string(w.src.Characteristics().DirSep)
	path := e.Name()
	cur := e
	for {
		p, ok := w.src.Parent(cur)
		if !ok || medium.SameEntry(p, w.boundary) {
			return path
		}
		if p.Name() == "" {
			return path // reached the root without meeting the boundary
		}
		path = p.Name() + sep + path
		cur = p
	}
}

func splitPath(path string, sep byte) (dir, leaf string) {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == sep {
			return path[:i], path[i+1:]
		}
	}
	return "", path
}

func cond(c bool, a, b string) string {
	if c {
		return a
	}
	return b
}
