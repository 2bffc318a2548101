package medium

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var _ Filesystem = (*LocalFS)(nil)

// LocalFS exposes a host directory tree as a Filesystem. It carries data
// forks only; resource forks and typed attributes are expected to ride on
// the preservation encoding chosen by the caller, not on the host FS.
type LocalFS struct {
	root  string
	chars Characteristics
}

type localEntry struct {
	fs  *LocalFS
	rel string // relative to fs.root, "" for the root itself
	dir bool
}

// NewLocalFS creates a filesystem endpoint rooted at root, which must be an
// existing directory.
func NewLocalFS(root string) (*LocalFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}
	return &LocalFS{
		root: abs,
		chars: Characteristics{
			Name:          "host",
			CaseSensitive: true,
			DirSep:        byte(filepath.Separator),
			Hierarchical:  true,
		},
	}, nil
}

// Root returns the absolute host path of the endpoint root.
func (l *LocalFS) Root() string { return l.root }

func (l *LocalFS) Characteristics() Characteristics { return l.chars }

func (l *LocalFS) RootDir() Entry { return &localEntry{fs: l, rel: "", dir: true} }

func (l *LocalFS) Children(dir Entry) ([]Entry, error) {
	n, err := l.ownDir(dir)
	if err != nil {
		return nil, err
	}
	ents, err := os.ReadDir(l.abs(n.rel))
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", n.rel, err)
	}
	out := make([]Entry, 0, len(ents))
	for _, d := range ents {
		out = append(out, &localEntry{
			fs:  l,
			rel: filepath.Join(n.rel, d.Name()),
			dir: d.IsDir(),
		})
	}
	return out, nil
}

func (l *LocalFS) FindChild(dir Entry, name string) (Entry, bool) {
	n, err := l.ownDir(dir)
	if err != nil {
		return nil, false
	}
	rel := filepath.Join(n.rel, name)
	info, err := os.Lstat(l.abs(rel))
	if err != nil {
		return nil, false
	}
	return &localEntry{fs: l, rel: rel, dir: info.IsDir()}, true
}

func (l *LocalFS) Parent(e Entry) (Entry, bool) {
	n, err := l.own(e)
	if err != nil || n.rel == "" {
		return nil, false
	}
	parent := filepath.Dir(n.rel)
	if parent == "." {
		parent = ""
	}
	return &localEntry{fs: l, rel: parent, dir: true}, true
}

func (l *LocalFS) CreateFile(dir Entry, attrs Attributes) (Entry, error) {
	n, err := l.ownDir(dir)
	if err != nil {
		return nil, err
	}
	rel := filepath.Join(n.rel, attrs.Name)
	f, err := os.OpenFile(l.abs(rel), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", rel, err)
	}
	f.Close()
	e := &localEntry{fs: l, rel: rel}
	l.applyTimes(e, attrs)
	return e, nil
}

func (l *LocalFS) CreateDir(dir Entry, attrs Attributes) (Entry, error) {
	n, err := l.ownDir(dir)
	if err != nil {
		return nil, err
	}
	rel := filepath.Join(n.rel, attrs.Name)
	if err := os.Mkdir(l.abs(rel), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", rel, err)
	}
	return &localEntry{fs: l, rel: rel, dir: true}, nil
}

func (l *LocalFS) Delete(e Entry) error {
	n, err := l.own(e)
	if err != nil {
		return err
	}
	if n.rel == "" {
		return errors.New("cannot delete root directory")
	}
	if err := os.Remove(l.abs(n.rel)); err != nil {
		return fmt.Errorf("delete %s: %w", n.rel, err)
	}
	return nil
}

func (l *LocalFS) OpenFork(e Entry, f Fork) (io.ReadCloser, error) {
	n, err := l.own(e)
	if err != nil {
		return nil, err
	}
	if f != DataFork {
		return nil, fmt.Errorf("%s: host filesystem has no %s fork", n.rel, f)
	}
	return os.Open(l.abs(n.rel))
}

func (l *LocalFS) CreateFork(e Entry, f Fork) (io.WriteCloser, error) {
	n, err := l.own(e)
	if err != nil {
		return nil, err
	}
	if f != DataFork {
		return nil, fmt.Errorf("%s: host filesystem has no %s fork", n.rel, f)
	}
	return os.OpenFile(l.abs(n.rel), os.O_WRONLY|os.O_TRUNC, 0o644)
}

func (l *LocalFS) SetAttributes(e Entry, attrs Attributes) error {
	n, err := l.own(e)
	if err != nil {
		return err
	}
	l.applyTimes(n, attrs)
	if attrs.Locked() {
		if err := os.Chmod(l.abs(n.rel), 0o444); err != nil {
			return fmt.Errorf("chmod %s: %w", n.rel, err)
		}
	}
	return nil
}

func (l *LocalFS) applyTimes(e *localEntry, attrs Attributes) {
	if attrs.ModWhen.IsZero() {
		return
	}
	// Best effort; a filesystem that refuses times is not an error.
	_ = os.Chtimes(l.abs(e.rel), attrs.ModWhen, attrs.ModWhen)
}

func (l *LocalFS) abs(rel string) string { return filepath.Join(l.root, rel) }

func (l *LocalFS) own(e Entry) (*localEntry, error) {
	n, ok := e.(*localEntry)
	if !ok || n.fs != l {
		return nil, errors.New("entry does not belong to this filesystem")
	}
	return n, nil
}

func (l *LocalFS) ownDir(e Entry) (*localEntry, error) {
	n, err := l.own(e)
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return nil, fmt.Errorf("%s: not a directory", n.rel)
	}
	return n, nil
}

// Name is "" for the root, like the other Filesystem implementations.
func (e *localEntry) Name() string {
	if e.rel == "" {
		return ""
	}
	return filepath.Base(e.rel)
}
func (e *localEntry) Pathname() string { return e.rel }
func (e *localEntry) IsDir() bool      { return e.dir }

func (e *localEntry) Attributes() Attributes {
	attrs := Attributes{Name: e.Name(), IsDir: e.dir}
	info, err := os.Lstat(e.fs.abs(e.rel))
	if err != nil {
		return attrs
	}
	attrs.ModWhen = info.ModTime()
	if !e.dir && info.Mode().Perm()&0o200 == 0 {
		attrs.Access = AccessLocked
	} else {
		attrs.Access = AccessUnlocked
	}
	return attrs
}

// SameAs compares by resolved path, since localEntry handles are re-created
// on every lookup.
func (e *localEntry) SameAs(other Entry) bool {
	o, ok := other.(*localEntry)
	return ok && o.fs == e.fs && o.rel == e.rel
}

func (e *localEntry) HasFork(f Fork) bool {
	return f == DataFork && !e.dir
}

func (e *localEntry) ForkLen(f Fork) int64 {
	if f != DataFork || e.dir {
		return 0
	}
	info, err := os.Lstat(e.fs.abs(e.rel))
	if err != nil {
		return 0
	}
	return info.Size()
}
