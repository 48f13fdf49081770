// Package checksum computes SHA-256 checksums of large blobs with bounded memory.
package checksum

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// DefaultBlockSize is the amount of data read and hashed in one step.
const DefaultBlockSize int64 = 20 * 1024 * 1024

// Blob is a sized, randomly readable byte source, such as *io.SectionReader.
type Blob interface {
	io.ReaderAt
	Size() int64
}

// ReadError is returned when a block of the blob can't be read.
// No digest is produced for partially read data.
type ReadError struct {
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read block at offset %d: %s", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Calculator hashes blobs block by block into a single running SHA-256 state.
type Calculator struct {
	blockSize int64
}

// NewCalculator creates a Calculator reading blockSize bytes at a time.
// A non-positive blockSize falls back to DefaultBlockSize.
func NewCalculator(blockSize int64) *Calculator {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Calculator{blockSize: blockSize}
}

// BlockSize ...
func (c *Calculator) BlockSize() int64 {
	return c.blockSize
}

// Sum returns the hex encoded SHA-256 digest of blob.
// Blocks are read strictly in order; the next read starts only after the previous
// block has been written into the hash. Peak memory is one block.
func (c *Calculator) Sum(ctx context.Context, blob Blob) (string, error) {
	size := blob.Size()
	bufSize := c.blockSize
	if size < bufSize {
		bufSize = size
	}
	buf := make([]byte, bufSize)
	hash := sha256.New()

	for offset := int64(0); offset < size; {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		want := int64(len(buf))
		if size-offset < want {
			want = size - offset
		}

		n, err := blob.ReadAt(buf[:want], offset)
		if int64(n) < want {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return "", &ReadError{Offset: offset + int64(n), Err: err}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", &ReadError{Offset: offset, Err: err}
		}

		hash.Write(buf[:want]) //nolint:errcheck
		offset += want
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
