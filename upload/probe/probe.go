// Package probe verifies that selected files are still readable before an upload starts.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/dataplatform-io/go-uploadutils/upload/file"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 4
	defaultBufferSize  = 1024 * 1024
)

// Prober reads selected files end to end to detect deletions and modifications.
type Prober struct {
	concurrency int
	bufferSize  int
	logger      log.Logger
}

// New ...
func New(logger log.Logger) *Prober {
	return &Prober{
		concurrency: defaultConcurrency,
		bufferSize:  defaultBufferSize,
		logger:      logger,
	}
}

// WithConcurrency sets the number of files read in parallel.
func (p *Prober) WithConcurrency(n int) *Prober {
	if n > 0 {
		p.concurrency = n
	}
	return p
}

type staleError struct {
	file file.File
	err  error
}

func (e *staleError) Error() string {
	return fmt.Sprintf("%s: %s", e.file.Name(), e.err)
}

func (e *staleError) Unwrap() error {
	return e.err
}

// FirstUnreadable reads every file and returns the first one that fails to read,
// or nil if all of them are readable.
// A file is unreadable if reading it fails or yields fewer bytes than its recorded size.
// The returned error is non-nil only if ctx was cancelled.
func (p *Prober) FirstUnreadable(ctx context.Context, files []file.File) (file.File, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := p.readAll(gctx, f); err != nil {
				return &staleError{file: f, err: err}
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		return nil, nil
	}

	var stale *staleError
	if errors.As(err, &stale) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.logger.Debugf("File %s is not readable: %s", stale.file.Name(), stale.err)
		return stale.file, nil
	}
	return nil, err
}

func (p *Prober) readAll(ctx context.Context, f file.File) error {
	r, err := file.OpenReader(f)
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck

	size := f.Size()
	if size == 0 {
		n, err := r.ReadAt(nil, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if n != 0 {
			return fmt.Errorf("read %d bytes from empty file", n)
		}
		return nil
	}

	bufSize := int64(p.bufferSize)
	if size < bufSize {
		bufSize = size
	}
	buf := make([]byte, bufSize)

	var read int64
	for read < size {
		if err := ctx.Err(); err != nil {
			return err
		}

		want := int64(len(buf))
		if size-read < want {
			want = size - read
		}

		n, err := r.ReadAt(buf[:want], read)
		read += int64(n)
		if int64(n) < want {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("read %d of %d bytes: %w", read, size, err)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}

	return nil
}
