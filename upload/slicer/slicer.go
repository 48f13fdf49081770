// Package slicer splits files into the fixed-size chunks that are transferred one by one.
package slicer

import (
	"io"

	"github.com/dataplatform-io/go-uploadutils/upload/file"
)

// DefaultChunkSize is the size of every chunk but the last one.
const DefaultChunkSize int64 = 60 * 1024 * 1024

// Range is a contiguous byte range of a file.
type Range struct {
	Offset int64
	Length int64
}

// Split divides [0, size) into consecutive ranges of chunkSize bytes, the last one possibly shorter.
// An empty source yields no ranges. A non-positive chunkSize falls back to DefaultChunkSize.
func Split(size, chunkSize int64) []Range {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if size <= 0 {
		return nil
	}

	n := Count(size, chunkSize)
	ranges := make([]Range, 0, n)
	for i := 0; i < n; i++ {
		offset := int64(i) * chunkSize
		length := chunkSize
		if size-offset < length {
			length = size - offset
		}
		ranges = append(ranges, Range{Offset: offset, Length: length})
	}
	return ranges
}

// Count returns the number of ranges Split produces.
func Count(size, chunkSize int64) int {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if size <= 0 {
		return 0
	}
	n := size / chunkSize
	if size%chunkSize != 0 {
		n++
	}
	return int(n)
}

// Entry is a selected file together with its chunks.
// Slices are computed once and must be consumed in order.
type Entry struct {
	File   file.File
	Name   string
	Size   int64
	Slices []Range
}

// NewEntry splits f into chunks of chunkSize bytes.
func NewEntry(f file.File, chunkSize int64) Entry {
	return Entry{
		File:   f,
		Name:   f.Name(),
		Size:   f.Size(),
		Slices: Split(f.Size(), chunkSize),
	}
}

// Section returns chunk j read through r, which is usually a read session of e.File.
func (e Entry) Section(r io.ReaderAt, j int) *io.SectionReader {
	slice := e.Slices[j]
	return io.NewSectionReader(r, slice.Offset, slice.Length)
}

// NewEntries ...
func NewEntries(files []file.File, chunkSize int64) []Entry {
	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, NewEntry(f, chunkSize))
	}
	return entries
}
