package file

import (
	"bytes"
	"fmt"
	"io/fs"
	"sync"
)

// Memory is an in-memory file handle. Remove drops the backing content, after
// which every read fails the way a deleted file would.
type Memory struct {
	name string
	size int64

	mu      sync.RWMutex
	data    []byte
	removed bool
}

// NewMemory ...
func NewMemory(name string, data []byte) *Memory {
	return &Memory{
		name: name,
		size: int64(len(data)),
		data: data,
	}
}

// Name ...
func (m *Memory) Name() string {
	return m.name
}

// Size ...
func (m *Memory) Size() int64 {
	return m.size
}

// Remove drops the backing content.
func (m *Memory) Remove() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.removed = true
}

// ReadAt ...
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.removed {
		return 0, fmt.Errorf("%s: %w", m.name, fs.ErrNotExist)
	}
	return bytes.NewReader(m.data).ReadAt(p, off)
}
