// Package vfs defines the file-system collaborator used by the metadata store,
// the declaration source and module discovery, with an OS-backed and an
// in-memory implementation.
package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/phobologic/modref/internal/pathutil"
)

// ErrNotDir is returned when ListDirectory is given a regular file.
var ErrNotDir = errors.New("not a directory")

// FileSystem is the narrow view of storage the core needs. Missing paths are
// reported with errors that satisfy errors.Is(err, fs.ErrNotExist).
// Implementations must be safe for concurrent reads.
type FileSystem interface {
	Exists(path string) bool
	ReadFile(path string) ([]byte, error)
	ListDirectory(path string) ([]string, error)
}

// OS reads the real disk.
type OS struct{}

// Exists reports whether path names an existing file or directory.
func (OS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadFile returns the contents of path.
func (OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// ListDirectory returns the sorted entry names of a directory.
func (OS) ListDirectory(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotDir)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// Entry is a node of an in-memory tree: a string is a file's contents, a
// Directory holds further entries.
type Entry any

// Directory maps names to Entries.
type Directory map[string]Entry

// Memory is an in-memory file system rooted at "/". It is safe for concurrent
// use; Write may be interleaved with reads.
type Memory struct {
	mu   sync.RWMutex
	root Directory
}

// NewMemory builds a Memory from a nested Directory literal. The tree is
// copied so later changes to the literal are not observed.
func NewMemory(root Directory) *Memory {
	return &Memory{root: cloneDir(root)}
}

// Exists reports whether path names a file or directory.
func (m *Memory) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lookup(path)
	return ok
}

// ReadFile returns the contents of the file at path.
func (m *Memory) ReadFile(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.lookup(path)
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	s, ok := e.(string)
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: path, Err: errors.New("is a directory")}
	}
	return []byte(s), nil
}

// ListDirectory returns the sorted entry names of the directory at path.
func (m *Memory) ListDirectory(path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.lookup(path)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: path, Err: fs.ErrNotExist}
	}
	dir, ok := e.(Directory)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotDir)
	}
	names := make([]string, 0, len(dir))
	for name := range dir {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Write creates or replaces the file at path, creating parent directories.
func (m *Memory) Write(path, contents string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	segs := split(path)
	if len(segs) == 0 {
		return &fs.PathError{Op: "write", Path: path, Err: fs.ErrInvalid}
	}
	if m.root == nil {
		m.root = Directory{}
	}
	dir := m.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := dir[seg]
		if !ok {
			child := Directory{}
			dir[seg] = child
			dir = child
			continue
		}
		child, ok := next.(Directory)
		if !ok {
			return &fs.PathError{Op: "write", Path: path, Err: ErrNotDir}
		}
		dir = child
	}
	dir[segs[len(segs)-1]] = contents
	return nil
}

func (m *Memory) lookup(path string) (Entry, bool) {
	if !pathutil.IsAbs(path) {
		return nil, false
	}
	var cur Entry = m.root
	for _, seg := range split(path) {
		dir, ok := cur.(Directory)
		if !ok {
			return nil, false
		}
		cur, ok = dir[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func split(path string) []string {
	trimmed := strings.Trim(pathutil.Normalize(path), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func cloneDir(d Directory) Directory {
	out := make(Directory, len(d))
	for name, e := range d {
		switch v := e.(type) {
		case Directory:
			out[name] = cloneDir(v)
		case map[string]Entry:
			out[name] = cloneDir(Directory(v))
		default:
			out[name] = v
		}
	}
	return out
}
