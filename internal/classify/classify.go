// Package classify reconciles host files into logical file records. Each
// host path is run through a fixed-priority chain of preservation-format
// checks (import, AppleDouble, AppleSingle, NAPS, plain); companion files
// that encode forks or metadata for a sibling coalesce into one record.
package classify

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"appleport/internal/applesingle"
	"appleport/internal/medium"
	"appleport/internal/part"
	"appleport/internal/preserve"
)

// SourceKind says how to obtain a fork's bytes from its host location.
type SourceKind int

const (
	Plain SourceKind = iota
	Import
	AppleSingle
	AppleDouble
)

var kindNames = [...]string{
	Plain:       "plain",
	Import:      "import",
	AppleSingle: "applesingle",
	AppleDouble: "appledouble",
}

func (k SourceKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ForkSource locates one fork's bytes.
type ForkSource struct {
	Kind SourceKind
	Path string // host file holding the bytes (the container for AS/ADF)
	Len  int64  // fork length as declared at classification time
}

// PartSource builds the byte stream for this fork. conv is consulted only
// for Import sources.
func (s *ForkSource) PartSource(fork medium.Fork, conv part.Converter) part.Source {
	switch s.Kind {
	case AppleSingle, AppleDouble:
		return part.NewContainerSource(part.NewFileSource(s.Path), fork)
	case Import:
		return part.NewImportSource(part.NewFileSource(s.Path), conv)
	default:
		return part.NewFileSource(s.Path)
	}
}

// Record is one pending logical file, assembled from up to several host
// files. Records are only ever coalesced after creation, never otherwise
// mutated, so a snapshot taken at plan time stays valid.
type Record struct {
	Key string // canonical host path, preservation suffixes stripped

	Data *ForkSource
	Rsrc *ForkSource

	Attrs medium.Attributes // Name holds the storage leaf name

	StorageDir string // destination-relative directory, host separator
	DirSep     byte

	// FromHeader marks attributes sourced from a preservation header;
	// a later plain-file stat must not overwrite them.
	FromHeader bool

	// Explicit marks records named directly on the command line, as
	// opposed to found during a recursive walk.
	Explicit bool
}

// HasTypeInfo reports whether any type field was established.
func (r *Record) HasTypeInfo() bool { return r.Attrs.HasTypeInfo() }

// Options controls which preservation rules are active.
type Options struct {
	UseADF  bool
	UseAS   bool
	UseNAPS bool

	// Import treats every input as raw data run through the converter,
	// overriding all other rules.
	Import part.Converter

	// ProbeCompanions enables the post-pass that looks for an unlisted
	// AppleDouble companion next to each explicitly-listed plain file.
	ProbeCompanions bool

	// ProbeHostAttrs enables the post-pass that consults host extended
	// attributes / named fork paths for records still missing metadata.
	ProbeHostAttrs bool

	Log *slog.Logger
}

// Classifier runs the classification pass. It is single-use: AddPaths one
// or more times, then Records.
type Classifier struct {
	opts    Options
	log     *slog.Logger
	contrib []contribution
	visited map[string]bool // host paths consumed by some rule
}

// contribution is one rule's partial result for one record, recorded in
// scan order. Records are resolved from contributions in a second phase so
// the outcome never depends on map iteration order.
type contribution struct {
	key        string // canonical record key (host path, suffixes stripped)
	storageDir string
	leafName   string
	explicit   bool

	fork    medium.Fork
	src     *ForkSource // nil for directories and metadata-only entries
	isDir   bool
	attrs   medium.Attributes
	hasAttr bool // attrs beyond the name are meaningful
	header  bool // attrs came from a preservation header
}

// New creates a classifier.
func New(opts Options) *Classifier {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{opts: opts, log: log, visited: make(map[string]bool)}
}

// AddPaths classifies the listed host paths, descending into directories.
// A missing explicitly-listed path aborts the whole pass.
func (c *Classifier) AddPaths(paths []string) error {
	sorted := append([]string(nil), paths...)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i]) < strings.ToLower(sorted[j])
	})
	for _, p := range sorted {
		info, err := os.Lstat(p)
		if err != nil {
			return fmt.Errorf("listed path: %w", err)
		}
		if info.IsDir() {
			// A listed directory is the boundary: its own record is not
			// emitted, and children re-root against it.
			if err := c.walkDir(p, p); err != nil {
				return err
			}
			continue
		}
		c.classifyFile(p, filepath.Dir(p), info, true)
	}
	return nil
}

func (c *Classifier) addPath(path, boundary string, info fs.FileInfo, explicit bool) error {
	if info.IsDir() {
		c.addDir(path, boundary, info, explicit)
		return c.walkDir(path, boundary)
	}
	c.classifyFile(path, boundary, info, explicit)
	return nil
}

func (c *Classifier) walkDir(dir, boundary string) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("readdir %s: %w", dir, err)
	}
	sort.Slice(ents, func(i, j int) bool {
		return strings.ToLower(ents[i].Name()) < strings.ToLower(ents[j].Name())
	})
	for _, ent := range ents {
		child := filepath.Join(dir, ent.Name())
		info, err := ent.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", child, err)
		}
		if err := c.addPath(child, boundary, info, false); err != nil {
			return err
		}
	}
	return nil
}

// addDir records a directory as a zero-fork record. Directories are walked
// but never read as content.
func (c *Classifier) addDir(path, boundary string, info fs.FileInfo, explicit bool) {
	dir, leaf := c.split(path, boundary)
	c.contrib = append(c.contrib, contribution{
		key:        path,
		storageDir: dir,
		leafName:   leaf,
		explicit:   explicit,
		isDir:      true,
		hasAttr:    true,
		attrs: medium.Attributes{
			ModWhen: info.ModTime(),
			IsDir:   true,
		},
	})
	c.visited[path] = true
}

// classifyFile applies the priority chain. Format checks that fail their
// magic test fall through to the next rule; they are not errors.
func (c *Classifier) classifyFile(path, boundary string, info fs.FileInfo, explicit bool) {
	c.visited[path] = true
	leaf := filepath.Base(path)

	if c.opts.Import != nil {
		c.addPlain(path, boundary, info, explicit, Import)
		return
	}
	if c.opts.UseADF && preserve.HasADFPrefix(leaf) {
		if c.tryAppleDouble(path, boundary, info, explicit) {
			return
		}
	}
	if c.opts.UseAS && preserve.HasASExtension(leaf) {
		if c.tryAppleSingle(path, boundary, info, explicit) {
			return
		}
	}
	if c.opts.UseNAPS {
		done, skip := c.tryNAPS(path, boundary, info, explicit)
		if skip {
			return
		}
		if done {
			return
		}
	}
	c.addPlain(path, boundary, info, explicit, Plain)
}

// tryAppleDouble verifies the container and contributes to the sibling
// record keyed by the prefix-stripped path.
func (c *Classifier) tryAppleDouble(path, boundary string, info fs.FileInfo, explicit bool) bool {
	cont, ok := c.parseContainer(path, info)
	if !ok || !cont.IsDouble {
		return false
	}

	sibling := filepath.Join(filepath.Dir(path), preserve.StripADFPrefix(filepath.Base(path)))
	dir, leaf := c.split(sibling, boundary)

	ctb := contribution{
		key:        sibling,
		storageDir: dir,
		leafName:   leaf,
		explicit:   explicit,
		hasAttr:    true,
		header:     true,
		attrs:      containerAttrs(cont, leaf),
	}
	if cont.HasRsrc {
		ctb.fork = medium.RsrcFork
		ctb.src = &ForkSource{Kind: AppleDouble, Path: path, Len: cont.RsrcLen}
	}
	c.contrib = append(c.contrib, ctb)
	return true
}

// tryAppleSingle verifies the container and contributes whichever forks it
// declares, keyed by the full host path.
func (c *Classifier) tryAppleSingle(path, boundary string, info fs.FileInfo, explicit bool) bool {
	cont, ok := c.parseContainer(path, info)
	if !ok || cont.IsDouble {
		return false
	}

	dir, hostLeaf := c.split(path, boundary)
	leaf := preserve.StripASExtension(hostLeaf)
	if cont.RealName != "" {
		// Prefer the name stored inside the container.
		leaf = cont.RealName
	}

	attrs := containerAttrs(cont, leaf)
	if cont.HasData {
		c.contrib = append(c.contrib, contribution{
			key: path, storageDir: dir, leafName: leaf, explicit: explicit,
			fork: medium.DataFork,
			src:  &ForkSource{Kind: AppleSingle, Path: path, Len: cont.DataLen},
			attrs: attrs, hasAttr: true, header: true,
		})
	}
	if cont.HasRsrc {
		c.contrib = append(c.contrib, contribution{
			key: path, storageDir: dir, leafName: leaf, explicit: explicit,
			fork: medium.RsrcFork,
			src:  &ForkSource{Kind: AppleSingle, Path: path, Len: cont.RsrcLen},
			attrs: attrs, hasAttr: true, header: true,
		})
	}
	if !cont.HasData && !cont.HasRsrc {
		c.contrib = append(c.contrib, contribution{
			key: path, storageDir: dir, leafName: leaf, explicit: explicit,
			attrs: attrs, hasAttr: true, header: true,
		})
	}
	return true
}

// tryNAPS matches the hex-tag grammar. done means the rule consumed the
// file; skip means the file was consumed and intentionally dropped.
func (c *Classifier) tryNAPS(path, boundary string, info fs.FileInfo, explicit bool) (done, skip bool) {
	tag, ok := preserve.DecodeNAPS(filepath.Base(path))
	if !ok {
		return false, false
	}
	switch tag.Fork {
	case preserve.NAPSImage:
		c.log.Warn("skipping disk image file", "path", path)
		return false, true
	case preserve.NAPSBad:
		c.log.Warn("skipping file with unrecognized fork marker", "path", path)
		return false, true
	}

	key := filepath.Join(filepath.Dir(path), tag.BaseName)
	dir, _ := c.split(key, boundary)

	fork := medium.DataFork
	if tag.Fork == preserve.NAPSRsrc {
		fork = medium.RsrcFork
	}
	attrs := medium.Attributes{
		Name:       tag.BaseName,
		ProType:    tag.ProType,
		ProAux:     tag.ProAux,
		HFSType:    tag.HFSType,
		HFSCreator: tag.HFSCreator,
		ModWhen:    info.ModTime(),
		Access:     hostAccess(info),
	}
	c.contrib = append(c.contrib, contribution{
		key: key, storageDir: dir, leafName: tag.BaseName, explicit: explicit,
		fork:  fork,
		src:   &ForkSource{Kind: Plain, Path: path, Len: info.Size()},
		attrs: attrs, hasAttr: true,
	})
	return true, false
}

// addPlain is the fallback: a plain data fork plus host metadata.
func (c *Classifier) addPlain(path, boundary string, info fs.FileInfo, explicit bool, kind SourceKind) {
	dir, leaf := c.split(path, boundary)
	c.contrib = append(c.contrib, contribution{
		key: path, storageDir: dir, leafName: leaf, explicit: explicit,
		fork: medium.DataFork,
		src:  &ForkSource{Kind: kind, Path: path, Len: info.Size()},
		attrs: medium.Attributes{
			Name:    leaf,
			ModWhen: info.ModTime(),
			Access:  hostAccess(info),
		},
		hasAttr: true,
	})
}

func (c *Classifier) parseContainer(path string, info fs.FileInfo) (*applesingle.Container, bool) {
	f, err := os.Open(path)
	if err != nil {
		c.log.Warn("cannot open candidate container", "path", path, "err", err)
		return nil, false
	}
	defer f.Close()
	cont, err := applesingle.Parse(f, info.Size())
	if err != nil {
		if !errors.Is(err, applesingle.ErrNotContainer) {
			c.log.Warn("malformed container", "path", path, "err", err)
		}
		return nil, false
	}
	return cont, true
}

// Records resolves all contributions into coalesced records, in first-seen
// order, then runs the enabled supplementary passes.
func (c *Classifier) Records() []*Record {
	byKey := make(map[string]*Record)
	var out []*Record

	for i := range c.contrib {
		ctb := &c.contrib[i]
		rec, ok := byKey[ctb.key]
		if !ok {
			rec = &Record{
				Key:        ctb.key,
				StorageDir: ctb.storageDir,
				DirSep:     byte(filepath.Separator),
				Explicit:   ctb.explicit,
			}
			rec.Attrs.Name = ctb.leafName
			byKey[ctb.key] = rec
			out = append(out, rec)
		}
		c.apply(rec, ctb)
	}

	if c.opts.ProbeCompanions {
		c.probeCompanions(out)
	}
	if c.opts.ProbeHostAttrs {
		for _, rec := range out {
			c.probeHostAttrs(rec)
		}
	}
	return out
}

func (c *Classifier) apply(rec *Record, ctb *contribution) {
	if ctb.isDir {
		rec.Attrs.IsDir = true
		rec.Attrs.ModWhen = ctb.attrs.ModWhen
		return
	}
	if ctb.explicit {
		rec.Explicit = true
	}

	if ctb.header {
		rec.Attrs = mergeHeaderAttrs(rec.Attrs, ctb.attrs, ctb.leafName)
		rec.FromHeader = true
	} else if ctb.hasAttr && !rec.FromHeader {
		// Plain host metadata never overrides header-sourced attributes.
		rec.Attrs = mergePlainAttrs(rec.Attrs, ctb.attrs)
	}

	if ctb.src == nil {
		return
	}
	slot := &rec.Data
	if ctb.fork == medium.RsrcFork {
		slot = &rec.Rsrc
	}
	if *slot != nil {
		// Anomaly, not an error: the later source wins.
		c.log.Warn("fork already attached, replacing",
			"record", rec.Key, "fork", ctb.fork, "source", ctb.src.Path)
	}
	*slot = ctb.src
}

func mergeHeaderAttrs(base, hdr medium.Attributes, leaf string) medium.Attributes {
	out := hdr
	out.Name = leaf
	out.IsDir = base.IsDir
	if hdr.ModWhen.IsZero() {
		out.ModWhen = base.ModWhen
	}
	if hdr.Access == 0 {
		out.Access = base.Access
	}
	return out
}

func mergePlainAttrs(base, plain medium.Attributes) medium.Attributes {
	out := base
	if out.ModWhen.IsZero() {
		out.ModWhen = plain.ModWhen
	}
	if out.Access == 0 {
		out.Access = plain.Access
	}
	if !out.HasTypeInfo() {
		out.ProType = plain.ProType
		out.ProAux = plain.ProAux
		out.HFSType = plain.HFSType
		out.HFSCreator = plain.HFSCreator
	}
	return out
}

// probeCompanions looks next to each explicitly-listed plain file for an
// AppleDouble companion that was not itself listed.
func (c *Classifier) probeCompanions(records []*Record) {
	for _, rec := range records {
		if !rec.Explicit || rec.Attrs.IsDir || rec.FromHeader {
			continue
		}
		if rec.Rsrc != nil && rec.HasTypeInfo() {
			continue
		}
		companion := filepath.Join(filepath.Dir(rec.Key), preserve.ADFPrefix+filepath.Base(rec.Key))
		if c.visited[companion] {
			continue
		}
		info, err := os.Lstat(companion)
		if err != nil || info.IsDir() {
			continue
		}
		cont, ok := c.parseContainer(companion, info)
		if !ok || !cont.IsDouble {
			continue
		}
		c.visited[companion] = true
		c.apply(rec, &contribution{
			key: rec.Key, leafName: rec.Attrs.Name,
			fork:   medium.RsrcFork,
			src:    forkSourceIf(cont.HasRsrc, AppleDouble, companion, cont.RsrcLen),
			attrs:  containerAttrs(cont, rec.Attrs.Name),
			hasAttr: true, header: true,
		})
	}
}

func forkSourceIf(has bool, kind SourceKind, path string, n int64) *ForkSource {
	if !has {
		return nil
	}
	return &ForkSource{Kind: kind, Path: path, Len: n}
}

func containerAttrs(cont *applesingle.Container, leaf string) medium.Attributes {
	attrs := medium.Attributes{
		Name:       leaf,
		ProType:    cont.ProType,
		ProAux:     cont.ProAux,
		HFSType:    cont.HFSType,
		HFSCreator: cont.HFSCreator,
		Access:     cont.Access,
		CreateWhen: cont.CreateWhen,
	}
	if cont.HasDates {
		attrs.ModWhen = cont.ModWhen
	}
	return attrs
}

func hostAccess(info fs.FileInfo) byte {
	if info.Mode().Perm()&0o200 == 0 {
		return medium.AccessLocked
	}
	return medium.AccessUnlocked
}

// split returns the storage directory (relative to boundary) and leaf name
// for a host path.
func (c *Classifier) split(path, boundary string) (dir, leaf string) {
	leaf = filepath.Base(path)
	rel, err := filepath.Rel(boundary, filepath.Dir(path))
	if err != nil || rel == "." {
		return "", leaf
	}
	return rel, leaf
}
