// Package vfs is the in-memory virtual filesystem the workspace sync
// layer materializes portal items into. It implements the same
// contract an editor's virtual filesystem exposes: typed errors,
// idempotent directory creation, and batched change notifications.
package vfs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrFileExists        = errors.New("file exists")
	ErrFileNotFound      = errors.New("file not found")
	ErrFileIsADirectory  = errors.New("file is a directory")
	ErrFileNotADirectory = errors.New("file is not a directory")
)

// ChangeKind classifies a change event.
type ChangeKind int

const (
	Created ChangeKind = iota
	Changed
	Deleted
)

// Event is one filesystem change notification.
type Event struct {
	Path string
	Kind ChangeKind
}

// EntryType distinguishes files from directories in listings.
type EntryType int

const (
	TypeFile EntryType = iota
	TypeDirectory
)

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Name string
	Type EntryType
}

// WriteOptions control file creation semantics.
type WriteOptions struct {
	Create    bool
	Overwrite bool
}

type node struct {
	name     string
	dir      bool
	data     []byte
	modTime  time.Time
	children map[string]*node
}

func newDir(name string) *node {
	return &node{name: name, dir: true, modTime: time.Now(), children: map[string]*node{}}
}

// FS is an in-memory tree of files and directories. Operations run to
// completion before notifying, so the observer always sees a
// consistent tree.
type FS struct {
	mu     sync.Mutex
	root   *node
	notify func([]Event)
}

// New returns an empty filesystem.
func New() *FS {
	return &FS{root: newDir("")}
}

// OnChange registers the change observer. Events for one operation are
// delivered as one batch, after the operation completed.
func (fs *FS) OnChange(fn func([]Event)) {
	fs.mu.Lock()
	fs.notify = fn
	fs.mu.Unlock()
}

// WriteFile writes data to path. With Create the file is created if
// missing; with Overwrite an existing file is replaced.
func (fs *FS) WriteFile(path string, data []byte, opts WriteOptions) error {
	fs.mu.Lock()
	parent, name, err := fs.parentOf(path)
	if err != nil {
		fs.mu.Unlock()
		return err
	}

	var events []Event
	entry := parent.children[name]
	switch {
	case entry != nil && entry.dir:
		fs.mu.Unlock()
		return pathErr(ErrFileIsADirectory, path)
	case entry == nil && !opts.Create:
		fs.mu.Unlock()
		return pathErr(ErrFileNotFound, path)
	case entry != nil && opts.Create && !opts.Overwrite:
		fs.mu.Unlock()
		return pathErr(ErrFileExists, path)
	case entry == nil:
		entry = &node{name: name}
		parent.children[name] = entry
		events = append(events, Event{Path: path, Kind: Created})
	}

	entry.data = append([]byte(nil), data...)
	entry.modTime = time.Now()
	events = append(events, Event{Path: path, Kind: Changed})
	notify := fs.notify
	fs.mu.Unlock()

	if notify != nil {
		notify(events)
	}
	return nil
}

// CreateDirectory creates the directory at path. Creating an existing
// directory is a no-op; a file in the way is an error. The parent must
// already exist.
func (fs *FS) CreateDirectory(path string) error {
	fs.mu.Lock()
	parent, name, err := fs.parentOf(path)
	if err != nil {
		fs.mu.Unlock()
		return err
	}

	if entry := parent.children[name]; entry != nil {
		fs.mu.Unlock()
		if !entry.dir {
			return pathErr(ErrFileNotADirectory, path)
		}
		return nil
	}

	parent.children[name] = newDir(name)
	parent.modTime = time.Now()
	notify := fs.notify
	fs.mu.Unlock()

	if notify != nil {
		notify([]Event{{Path: path, Kind: Created}})
	}
	return nil
}

// ReadDirectory lists the entries of the directory at path, sorted by
// name.
func (fs *FS) ReadDirectory(path string) ([]DirEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entry, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	if !entry.dir {
		return nil, pathErr(ErrFileNotADirectory, path)
	}

	entries := make([]DirEntry, 0, len(entry.children))
	for _, child := range entry.children {
		t := TypeFile
		if child.dir {
			t = TypeDirectory
		}
		entries = append(entries, DirEntry{Name: child.name, Type: t})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// ReadFile returns the content of the file at path.
func (fs *FS) ReadFile(path string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entry, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	if entry.dir {
		return nil, pathErr(ErrFileIsADirectory, path)
	}
	return append([]byte(nil), entry.data...), nil
}

// Delete removes the file or directory at path.
func (fs *FS) Delete(path string) error {
	fs.mu.Lock()
	parent, name, err := fs.parentOf(path)
	if err != nil {
		fs.mu.Unlock()
		return err
	}
	if parent.children[name] == nil {
		fs.mu.Unlock()
		return pathErr(ErrFileNotFound, path)
	}
	delete(parent.children, name)
	parent.modTime = time.Now()
	notify := fs.notify
	fs.mu.Unlock()

	if notify != nil {
		notify([]Event{{Path: path, Kind: Deleted}})
	}
	return nil
}

func (fs *FS) lookup(path string) (*node, error) {
	entry := fs.root
	for _, part := range splitPath(path) {
		if !entry.dir {
			return nil, pathErr(ErrFileNotADirectory, path)
		}
		child := entry.children[part]
		if child == nil {
			return nil, pathErr(ErrFileNotFound, path)
		}
		entry = child
	}
	return entry, nil
}

func (fs *FS) parentOf(path string) (*node, string, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, "", pathErr(ErrFileExists, path)
	}
	dir := fs.root
	for _, part := range parts[:len(parts)-1] {
		child := dir.children[part]
		if child == nil {
			return nil, "", pathErr(ErrFileNotFound, path)
		}
		if !child.dir {
			return nil, "", pathErr(ErrFileNotADirectory, path)
		}
		dir = child
	}
	return dir, parts[len(parts)-1], nil
}

func splitPath(path string) []string {
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func pathErr(kind error, path string) error {
	return fmt.Errorf("%s: %w", path, kind)
}
