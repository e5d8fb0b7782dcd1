// Package source loads MIDI documents for the sequencer backends
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
)

// DefaultExt is appended to resource names given without an extension
const DefaultExt = ".mid"

var (
	// ErrNotFound is returned when a named MIDI resource does not exist
	ErrNotFound = errors.New("MIDI source not found")

	// ErrMalformed is returned when the resource is not a readable Standard MIDI File
	ErrMalformed = errors.New("malformed MIDI data")

	// ErrUnsupportedTimeFormat is returned for SMPTE-timed files
	ErrUnsupportedTimeFormat = errors.New("unsupported MIDI time format")
)

// Loader resolves a resource identifier to raw MIDI bytes
type Loader interface {
	Load(name string) ([]byte, error)
}

// DirLoader reads MIDI files from a file system
type DirLoader struct {
	fsys fs.FS
}

// NewDirLoader creates a loader rooted at dir
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{fsys: os.DirFS(dir)}
}

// NewFSLoader creates a loader over an arbitrary file system (embed.FS, fstest.MapFS, ...)
func NewFSLoader(fsys fs.FS) *DirLoader {
	return &DirLoader{fsys: fsys}
}

// Load reads name, appending DefaultExt when the name has no extension
func (l *DirLoader) Load(name string) ([]byte, error) {
	resolved := ResolveName(name)
	if strings.TrimSpace(name) == "" || !fs.ValidPath(resolved) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	data, err := fs.ReadFile(l.fsys, resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read MIDI source %s: %w", name, err)
	}
	return data, nil
}

// ResolveName normalizes a resource identifier to a slash-separated relative path
func ResolveName(name string) string {
	name = strings.TrimPrefix(path.Clean(strings.ReplaceAll(name, "\\", "/")), "/")
	if path.Ext(name) == "" {
		name += DefaultExt
	}
	return name
}

// MemoryLoader serves MIDI bytes from memory, keyed by resolved name
type MemoryLoader struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryLoader creates an empty in-memory loader
func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{files: make(map[string][]byte)}
}

// Put stores data under name
func (l *MemoryLoader) Put(name string, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files[ResolveName(name)] = data
}

// Load returns the bytes stored under name
func (l *MemoryLoader) Load(name string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	data, ok := l.files[ResolveName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, nil
}
