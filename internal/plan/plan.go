// Package plan turns logical file records or source-medium entries into an
// ordered sequence of per-fork transfer items. Planning is pure: it opens
// no destination handles and performs no writes, so a plan can be reviewed
// or discarded for free.
package plan

import (
	"log/slog"
	"strings"

	"appleport/internal/classify"
	"appleport/internal/filter"
	"appleport/internal/medium"
	"appleport/internal/part"
	"appleport/internal/preserve"
)

// Encode marks destination-side container synthesis an item requires.
type Encode int

const (
	EncodeNone Encode = iota
	EncodeADF         // wrap attrs + resource bytes in an AppleDouble header file
	EncodeAS          // wrap both forks in an AppleSingle file
)

// Item is one fork (or one synthesized directory) of one logical file.
// A file with two forks produces two adjacent items, data fork first, with
// identical destination path; fork pairing is inferred from that adjacency,
// never from an explicit link.
type Item struct {
	// Src and Entry identify the source for entry-backed items. Entry is
	// nil for synthesized directories and for host-record items.
	Src   medium.Endpoint
	Entry medium.Entry

	Fork  medium.Fork
	IsDir bool

	// Attrs is an immutable snapshot taken at plan time.
	Attrs medium.Attributes

	SrcPath string // source-side pathname, for callbacks and re-pairing
	DstPath string
	DstSep  byte

	Mode   preserve.Mode
	Encode Encode

	// Source yields the fork bytes; nil for directories and for
	// metadata-only EncodeADF items. RsrcSource is set only on EncodeAS
	// items, which combine both forks.
	Source     part.Source
	RsrcSource part.Source

	ForkLen int64
	RsrcLen int64
}

// Config controls planning.
type Config struct {
	// Mode selects the preservation naming applied when the destination
	// cannot carry forks and typed metadata itself. Ignored when Native.
	Mode preserve.Mode

	// Native suppresses preservation naming: the destination stores both
	// forks and attributes directly, so names pass through unchanged.
	Native bool

	// StripPaths drops directory components, and with them directory
	// synthesis.
	StripPaths bool

	DstSep byte

	// Filter optionally selects which source paths are planned.
	Filter *filter.Chain

	// Converter resolves Import fork sources from the classifier.
	Converter part.Converter

	Log *slog.Logger
}

func (cfg *Config) log() *slog.Logger {
	if cfg.Log == nil {
		return slog.Default()
	}
	return cfg.Log
}

// DirSynth emits each missing ancestor directory exactly once per
// destination. The memo is case-sensitive on purpose: a case-sensitive
// destination needs both spellings, and a case-insensitive one treats the
// repeat as a no-op.
type DirSynth struct {
	seen map[string]bool
}

// NewDirSynth creates an empty memo for one destination.
func NewDirSynth() *DirSynth {
	return &DirSynth{seen: make(map[string]bool)}
}

// Missing returns directory items, root to leaf, for every unvisited
// ancestor of dstPath's directory part. Attrs beyond the leaf name come
// from attrs with the name replaced per component.
func (d *DirSynth) Missing(dstPath string, sep byte, attrs medium.Attributes) []Item {
	i := strings.LastIndexByte(dstPath, sep)
	if i < 0 {
		return nil
	}
	dir := dstPath[:i]

	var out []Item
	for _, ancestor := range ancestors(dir, sep) {
		if d.seen[ancestor] {
			continue
		}
		d.seen[ancestor] = true
		a := attrs
		a.IsDir = true
		a.Name = leafOf(ancestor, sep)
		out = append(out, Item{
			IsDir:   true,
			Attrs:   a,
			SrcPath: ancestor,
			DstPath: ancestor,
			DstSep:  sep,
		})
	}
	return out
}

// Mark records a directory path as already present, without emitting.
func (d *DirSynth) Mark(dstPath string) { d.seen[dstPath] = true }

func ancestors(dir string, sep byte) []string {
	var out []string
	for i := 0; i < len(dir); i++ {
		if dir[i] == byte(sep) {
			out = append(out, dir[:i])
		}
	}
	return append(out, dir)
}

func leafOf(path string, sep byte) string {
	if i := strings.LastIndexByte(path, sep); i >= 0 {
		return path[i+1:]
	}
	return path
}

// fileShape is the mode table's input: one logical file regardless of
// where it came from.
type fileShape struct {
	attrs   medium.Attributes
	dstDir  string // destination directory, already separator-converted
	leaf    string // destination leaf name before mode decoration

	hasData bool
	dataLen int64
	data    func() part.Source

	hasRsrc bool
	rsrcLen int64
	rsrc    func() part.Source

	// rsrcTracked reports the source medium tracks extendedness
	// independently of fork length; a zero-length resource fork is then
	// still real.
	rsrcTracked bool

	src     medium.Endpoint
	entry   medium.Entry
	srcPath string
	mode    preserve.Mode
}

// emitFile applies the per-mode emission table and returns 1-2 items.
func emitFile(f fileShape, cfg Config) []Item {
	sep := cfg.DstSep

	join := func(leaf string) string {
		if f.dstDir == "" {
			return leaf
		}
		return f.dstDir + string(sep) + leaf
	}
	base := func(fork medium.Fork, dst string, enc Encode, src part.Source, n int64) Item {
		return Item{
			Src: f.src, Entry: f.entry,
			Fork: fork, Attrs: f.attrs,
			SrcPath: f.srcPath, DstPath: dst, DstSep: sep,
			Mode: f.mode, Encode: enc,
			Source: src, ForkLen: n,
		}
	}

	// A zero-length resource fork counts as absent for naming unless the
	// source tracks extendedness explicitly.
	rsrcReal := f.hasRsrc && (f.rsrcLen > 0 || f.rsrcTracked)

	var dataSrc, rsrcSrc part.Source
	if f.hasData {
		dataSrc = f.data()
	}
	if rsrcReal {
		rsrcSrc = f.rsrc()
	}

	if cfg.Native {
		var out []Item
		if f.hasData {
			out = append(out, base(medium.DataFork, join(f.leaf), EncodeNone, dataSrc, f.dataLen))
		}
		if rsrcReal {
			out = append(out, base(medium.RsrcFork, join(f.leaf), EncodeNone, rsrcSrc, f.rsrcLen))
		}
		if len(out) == 0 {
			// Metadata-only record: still create the entry.
			out = append(out, base(medium.DataFork, join(f.leaf), EncodeNone, nil, 0))
		}
		return out
	}

	switch f.mode {
	case preserve.None:
		if !f.hasData {
			return nil
		}
		// Resource fork silently dropped.
		return []Item{base(medium.DataFork, join(f.leaf), EncodeNone, dataSrc, f.dataLen)}

	case preserve.ADF:
		var out []Item
		if f.hasData {
			out = append(out, base(medium.DataFork, join(f.leaf), EncodeNone, dataSrc, f.dataLen))
		}
		if rsrcReal || f.attrs.HasTypeInfo() {
			it := base(medium.RsrcFork, join(preserve.ADFPrefix+f.leaf), EncodeADF, rsrcSrc, f.rsrcLen)
			out = append(out, it)
		}
		return out

	case preserve.AS:
		it := base(medium.DataFork, join(f.leaf)+preserve.ASExtension, EncodeAS, dataSrc, f.dataLen)
		it.RsrcSource = rsrcSrc
		it.RsrcLen = f.rsrcLen
		return []Item{it}

	case preserve.Host:
		var out []Item
		if f.hasData {
			out = append(out, base(medium.DataFork, join(f.leaf), EncodeNone, dataSrc, f.dataLen))
		}
		if rsrcReal {
			forkPath := join(f.leaf) + string(sep) + "..namedfork" + string(sep) + "rsrc"
			out = append(out, base(medium.RsrcFork, forkPath, EncodeNone, rsrcSrc, f.rsrcLen))
		}
		return out

	case preserve.NAPS:
		tag := preserve.NAPSTag{
			ProType: f.attrs.ProType, ProAux: f.attrs.ProAux,
			HFSType: f.attrs.HFSType, HFSCreator: f.attrs.HFSCreator,
			IsHFS: f.attrs.ProType == 0 && f.attrs.ProAux == 0 &&
				(f.attrs.HFSType != 0 || f.attrs.HFSCreator != 0),
		}
		// f.leaf is already NAPS-escaped by cleanComponent.
		ext := preserve.ConvenienceExt(tag)

		var out []Item
		if f.hasData {
			name := f.leaf + preserve.EncodeNAPS(tag, preserve.NAPSData, rsrcReal) + ext
			out = append(out, base(medium.DataFork, join(name), EncodeNone, dataSrc, f.dataLen))
		}
		if rsrcReal {
			name := f.leaf + preserve.EncodeNAPS(tag, preserve.NAPSRsrc, false) + ext
			out = append(out, base(medium.RsrcFork, join(name), EncodeNone, rsrcSrc, f.rsrcLen))
		}
		return out
	}
	return nil
}

// cleanComponent rewrites one path component for the destination: NAPS
// escapes illegal characters so names survive a round trip; every other
// mode substitutes the default replacement character.
func cleanComponent(name string, mode preserve.Mode, native bool) string {
	if !native && mode == preserve.NAPS {
		return preserve.EscapeNAPS(name)
	}
	return preserve.SubstituteIllegal(name)
}

// convertDir rebuilds a source-relative directory path with destination
// separators and per-component cleaning.
func convertDir(dir string, srcSep byte, cfg Config) string {
	if dir == "" {
		return ""
	}
	parts := strings.Split(dir, string(srcSep))
	for i, p := range parts {
		parts[i] = cleanComponent(p, cfg.Mode, cfg.Native)
	}
	return strings.Join(parts, string(cfg.DstSep))
}

// FromRecords plans host-classified records. Records must arrive in
// classification order (parents before children).
func FromRecords(records []*classify.Record, cfg Config) ([]Item, error) {
	synth := NewDirSynth()
	var items []Item

	for _, rec := range records {
		dstDir := ""
		if !cfg.StripPaths {
			dstDir = convertDir(rec.StorageDir, rec.DirSep, cfg)
		}
		leaf := cleanComponent(rec.Attrs.Name, cfg.Mode, cfg.Native)

		if rec.Attrs.IsDir {
			if cfg.StripPaths {
				continue
			}
			dst := leaf
			if dstDir != "" {
				dst = dstDir + string(cfg.DstSep) + leaf
			}
			items = append(items, synth.Missing(dst, cfg.DstSep, rec.Attrs)...)
			synth.Mark(dst)
			a := rec.Attrs
			a.Name = leaf
			items = append(items, Item{
				IsDir: true, Attrs: a,
				SrcPath: rec.Key, DstPath: dst, DstSep: cfg.DstSep,
				Mode: cfg.Mode,
			})
			continue
		}

		if cfg.Filter != nil && !cfg.Filter.Match(rec.Key, false) {
			continue
		}

		shape := fileShape{
			attrs:  rec.Attrs,
			dstDir: dstDir,
			leaf:   leaf,
			mode:   cfg.Mode,
			srcPath: rec.Key,
		}
		if rec.Data != nil {
			src := rec.Data
			shape.hasData = true
			shape.dataLen = src.Len
			shape.data = func() part.Source { return src.PartSource(medium.DataFork, cfg.Converter) }
		}
		if rec.Rsrc != nil {
			src := rec.Rsrc
			shape.hasRsrc = true
			shape.rsrcLen = src.Len
			shape.rsrc = func() part.Source { return src.PartSource(medium.RsrcFork, cfg.Converter) }
		}

		emitted := emitFile(shape, cfg)
		if len(emitted) > 0 && !cfg.StripPaths {
			items = append(items, synth.Missing(emitted[0].DstPath, cfg.DstSep, rec.Attrs)...)
		}
		items = append(items, emitted...)
	}
	return items, nil
}
