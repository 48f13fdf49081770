package file

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Local is a handle to a file on the local disk.
// It remembers the size and modification time seen at selection and every read
// fails with ErrChanged once the file on disk no longer matches them.
type Local struct {
	path    string
	size    int64
	modTime time.Time
}

// Open selects the file at path.
func Open(path string) (*Local, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &Local{
		path:    path,
		size:    info.Size(),
		modTime: info.ModTime(),
	}, nil
}

// Name ...
func (l *Local) Name() string {
	return filepath.Base(l.path)
}

// Size ...
func (l *Local) Size() int64 {
	return l.size
}

// Path ...
func (l *Local) Path() string {
	return l.path
}

// ReadAt opens the file for every call, so a deleted, moved or rewritten file
// is noticed by the next read instead of being served from a stale descriptor.
// Bulk reads should go through OpenReader.
func (l *Local) ReadAt(p []byte, off int64) (int, error) {
	f, err := l.OpenReader()
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck

	return f.ReadAt(p, off)
}

// OpenReader opens the file once and checks it against the selection.
// Reads of the returned session are not checked again.
func (l *Local) OpenReader() (Reader, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	if info.Size() != l.size || !info.ModTime().Equal(l.modTime) {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("%s: %w", l.path, ErrChanged)
	}

	return f, nil
}
