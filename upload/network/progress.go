package network

import (
	"io"
	"sync"

	"github.com/dataplatform-io/go-uploadutils/upload"
)

// progressReader reports the number of bytes read so far.
type progressReader struct {
	r          io.Reader
	read       int64
	onProgress upload.ProgressFunc
}

func newProgressReader(r io.Reader, onProgress upload.ProgressFunc) *progressReader {
	return &progressReader{r: r, onProgress: onProgress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.read)
		}
	}
	return n, err
}

// progressReadSeeker reports the furthest position read of a section.
// Retried or re-signed requests seek back and read again, so only new maxima are reported.
type progressReadSeeker struct {
	section    *io.SectionReader
	onProgress upload.ProgressFunc

	mu  sync.Mutex
	max int64
}

func newProgressReadSeeker(section *io.SectionReader, onProgress upload.ProgressFunc) *progressReadSeeker {
	return &progressReadSeeker{section: section, onProgress: onProgress}
}

func (p *progressReadSeeker) Read(b []byte) (int, error) {
	pos, err := p.section.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	n, err := p.section.Read(b)
	p.report(pos + int64(n))
	return n, err
}

func (p *progressReadSeeker) ReadAt(b []byte, off int64) (int, error) {
	n, err := p.section.ReadAt(b, off)
	p.report(off + int64(n))
	return n, err
}

func (p *progressReadSeeker) Seek(offset int64, whence int) (int64, error) {
	return p.section.Seek(offset, whence)
}

func (p *progressReadSeeker) report(pos int64) {
	p.mu.Lock()
	if pos <= p.max {
		p.mu.Unlock()
		return
	}
	p.max = pos
	p.mu.Unlock()

	if p.onProgress != nil {
		p.onProgress(pos)
	}
}
