package medium

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var _ Filesystem = (*MemFS)(nil)

// MemFS is an in-memory hierarchical filesystem with native fork and typed
// attribute support. Case sensitivity and the other characteristics are
// whatever the caller configures, which is what makes it useful for
// exercising destination behavior that the host filesystem cannot show.
type MemFS struct {
	chars Characteristics
	root  *memNode
}

type memNode struct {
	fs       *MemFS
	parent   *memNode
	attrs    Attributes
	children []*memNode
	fork     [2][]byte
	hasFork  [2]bool
	deleted  bool
}

// NewMemFS creates an empty filesystem. A zero DirSep defaults to '/'.
func NewMemFS(chars Characteristics) *MemFS {
	if chars.DirSep == 0 {
		chars.DirSep = '/'
	}
	if chars.Name == "" {
		chars.Name = "memfs"
	}
	chars.Hierarchical = true
	fs := &MemFS{chars: chars}
	fs.root = &memNode{fs: fs, attrs: Attributes{Name: "", IsDir: true}}
	return fs
}

func (fs *MemFS) Characteristics() Characteristics { return fs.chars }

func (fs *MemFS) RootDir() Entry { return fs.root }

func (fs *MemFS) Children(dir Entry) ([]Entry, error) {
	n, err := fs.ownDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out, nil
}

func (fs *MemFS) FindChild(dir Entry, name string) (Entry, bool) {
	n, err := fs.ownDir(dir)
	if err != nil {
		return nil, false
	}
	for _, c := range n.children {
		if EqualNames(fs.chars, c.attrs.Name, name) {
			return c, true
		}
	}
	return nil, false
}

func (fs *MemFS) Parent(e Entry) (Entry, bool) {
	n, ok := e.(*memNode)
	if !ok || n.fs != fs || n.parent == nil {
		return nil, false
	}
	return n.parent, true
}

func (fs *MemFS) CreateFile(dir Entry, attrs Attributes) (Entry, error) {
	attrs.IsDir = false
	return fs.create(dir, attrs)
}

func (fs *MemFS) CreateDir(dir Entry, attrs Attributes) (Entry, error) {
	attrs.IsDir = true
	return fs.create(dir, attrs)
}

func (fs *MemFS) create(dir Entry, attrs Attributes) (Entry, error) {
	if fs.chars.ReadOnly {
		return nil, ErrReadOnly
	}
	n, err := fs.ownDir(dir)
	if err != nil {
		return nil, err
	}
	if attrs.Name == "" {
		return nil, errors.New("entry name must not be empty")
	}
	if fs.chars.MaxNameLen > 0 && len(attrs.Name) > fs.chars.MaxNameLen {
		return nil, fmt.Errorf("name too long: %d > %d", len(attrs.Name), fs.chars.MaxNameLen)
	}
	if _, ok := fs.FindChild(n, attrs.Name); ok {
		return nil, fmt.Errorf("%s: name already exists", attrs.Name)
	}
	child := &memNode{fs: fs, parent: n, attrs: attrs}
	n.children = append(n.children, child)
	return child, nil
}

func (fs *MemFS) Delete(e Entry) error {
	n, err := fs.own(e)
	if err != nil {
		return err
	}
	if n == fs.root {
		return errors.New("cannot delete root directory")
	}
	if n.attrs.IsDir && len(n.children) > 0 {
		return fmt.Errorf("%s: directory not empty", n.attrs.Name)
	}
	n.deleted = true
	sibs := n.parent.children
	for i := range sibs {
		if sibs[i] == n {
			n.parent.children = append(sibs[:i], sibs[i+1:]...)
			break
		}
	}
	return nil
}

func (fs *MemFS) OpenFork(e Entry, f Fork) (io.ReadCloser, error) {
	n, err := fs.own(e)
	if err != nil {
		return nil, err
	}
	if n.attrs.IsDir {
		return nil, fmt.Errorf("%s: is a directory", n.attrs.Name)
	}
	if !n.hasFork[f] {
		return nil, fmt.Errorf("%s: no %s fork", n.attrs.Name, f)
	}
	return io.NopCloser(bytes.NewReader(n.fork[f])), nil
}

func (fs *MemFS) CreateFork(e Entry, f Fork) (io.WriteCloser, error) {
	if fs.chars.ReadOnly {
		return nil, ErrReadOnly
	}
	n, err := fs.own(e)
	if err != nil {
		return nil, err
	}
	if n.attrs.IsDir {
		return nil, fmt.Errorf("%s: is a directory", n.attrs.Name)
	}
	if f == RsrcFork && !fs.chars.HasRsrcForks {
		return nil, fmt.Errorf("%s: filesystem cannot store resource forks", fs.chars.Name)
	}
	return &nodeForkWriter{node: n, fork: f}, nil
}

func (fs *MemFS) SetAttributes(e Entry, attrs Attributes) error {
	n, err := fs.own(e)
	if err != nil {
		return err
	}
	attrs.Name = n.attrs.Name
	attrs.IsDir = n.attrs.IsDir
	n.attrs = attrs
	return nil
}

func (fs *MemFS) own(e Entry) (*memNode, error) {
	n, ok := e.(*memNode)
	if !ok || n.fs != fs {
		return nil, errors.New("entry does not belong to this filesystem")
	}
	if n.deleted {
		return nil, fmt.Errorf("%s: entry was deleted", n.attrs.Name)
	}
	return n, nil
}

func (fs *MemFS) ownDir(e Entry) (*memNode, error) {
	n, err := fs.own(e)
	if err != nil {
		return nil, err
	}
	if !n.attrs.IsDir {
		return nil, fmt.Errorf("%s: not a directory", n.attrs.Name)
	}
	return n, nil
}

func (n *memNode) Name() string { return n.attrs.Name }

func (n *memNode) Pathname() string {
	if n.parent == nil {
		return ""
	}
	sep := string(n.fs.chars.DirSep)
	path := n.attrs.Name
	for p := n.parent; p != nil && p.parent != nil; p = p.parent {
		path = p.attrs.Name + sep + path
	}
	return path
}

func (n *memNode) IsDir() bool            { return n.attrs.IsDir }
func (n *memNode) Attributes() Attributes { return n.attrs }
func (n *memNode) HasFork(f Fork) bool    { return n.hasFork[f] }
func (n *memNode) ForkLen(f Fork) int64   { return int64(len(n.fork[f])) }

type nodeForkWriter struct {
	node   *memNode
	fork   Fork
	buf    bytes.Buffer
	closed bool
}

func (w *nodeForkWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write after close")
	}
	return w.buf.Write(p)
}

func (w *nodeForkWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.node.fork[w.fork] = append([]byte(nil), w.buf.Bytes()...)
	w.node.hasFork[w.fork] = true
	return nil
}
