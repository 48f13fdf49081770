// Package file provides handles to the files a user selected for upload.
//
// A handle is read through io.ReaderAt so that the same selection can be probed,
// hashed and transferred chunk by chunk without ever holding a whole file in memory.
package file

import (
	"errors"
	"io"
)

// ErrChanged is returned when a file was modified after it had been selected.
var ErrChanged = errors.New("file changed since selection")

// File is a handle to a selected file.
type File interface {
	io.ReaderAt

	// Name returns the base name of the file, as sent to the server.
	Name() string

	// Size returns the size recorded at selection time.
	Size() int64
}

// Reader is a read session over a selected file.
type Reader interface {
	io.ReaderAt
	io.Closer
}

// Opener is implemented by handles that verify the file once when a session
// starts and then serve every read of the session from the same descriptor.
type Opener interface {
	OpenReader() (Reader, error)
}

// OpenReader starts a read session on f.
// Handles that are not Openers are read directly and closing the session is a no-op.
func OpenReader(f File) (Reader, error) {
	if o, ok := f.(Opener); ok {
		return o.OpenReader()
	}
	return nopCloser{f}, nil
}

type nopCloser struct {
	io.ReaderAt
}

func (nopCloser) Close() error {
	return nil
}
