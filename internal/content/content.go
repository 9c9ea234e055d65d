// Package content provides the raw resource access the engine reads
// templates, data files, helper modules and project configs through.
package content

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/quilt/internal/errors"
)

// Store reads resources by absolute address.
type Store interface {
	Read(ctx context.Context, address string) (string, error)
	Exists(address string) bool
}

// DirStore reads addresses straight from the local filesystem.
type DirStore struct{}

// NewDirStore returns a filesystem backed Store.
func NewDirStore() *DirStore {
	return &DirStore{}
}

// Read returns the file at address.
func (DirStore) Read(ctx context.Context, address string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.FromSlash(address))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFoundError(address, err)
		}
		return "", fmt.Errorf("reading %s: %w", address, err)
	}
	return string(b), nil
}

// Exists reports whether address names a regular file.
func (DirStore) Exists(address string) bool {
	info, err := os.Stat(filepath.FromSlash(address))
	return err == nil && info.Mode().IsRegular()
}

// MemoryStore is an in-memory Store. It counts reads so callers can assert
// on how often the backing storage was hit.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]string
	reads atomic.Int64
	hook  func(address string)
}

// NewMemoryStore returns a store preloaded with files.
func NewMemoryStore(files map[string]string) *MemoryStore {
	m := &MemoryStore{files: make(map[string]string, len(files))}
	for k, v := range files {
		m.files[k] = v
	}
	return m
}

// Set adds or replaces a file.
func (m *MemoryStore) Set(address, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[address] = text
}

// Delete removes a file.
func (m *MemoryStore) Delete(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, address)
}

// OnRead installs a hook called before every Read. Tests use it to inject
// latency or record access order.
func (m *MemoryStore) OnRead(hook func(address string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// Read returns the file at address.
func (m *MemoryStore) Read(ctx context.Context, address string) (string, error) {
	m.mu.RLock()
	hook := m.hook
	m.mu.RUnlock()
	if hook != nil {
		hook(address)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.reads.Add(1)

	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.files[address]
	if !ok {
		return "", errors.NewNotFoundError(address, fs.ErrNotExist)
	}
	return text, nil
}

// Exists reports whether address is present.
func (m *MemoryStore) Exists(address string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[address]
	return ok
}

// Reads returns how many times Read was called.
func (m *MemoryStore) Reads() int64 {
	return m.reads.Load()
}

// ResetReads zeroes the read counter.
func (m *MemoryStore) ResetReads() {
	m.reads.Store(0)
}
