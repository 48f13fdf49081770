package upload

import (
	"context"
	"io"
)

// PreUploadRequest describes the batch registered with the server before any chunk is sent.
type PreUploadRequest struct {
	TotalFileNum int    `json:"totalFileNum"`
	TotalSize    int64  `json:"totalSize"`
	DatasetID    string `json:"datasetId"`

	// FileSizes holds the size of every file in upload order.
	// Files of size 0 have no chunks.
	FileSizes []int64 `json:"-"`
}

// Chunk is the payload of a single chunk transfer.
// FileNo and ChunkNo are 1-based.
type Chunk struct {
	File          *io.SectionReader
	ReqID         int64
	FileNo        int
	ChunkNo       int
	FileName      string
	FileSize      int64
	TotalChunkNum int
	CheckSumHex   string
}

// ProgressFunc receives the number of bytes of the current chunk sent so far.
type ProgressFunc func(loaded int64)

// Server is the remote side of an upload.
type Server interface {
	// PreUpload registers a batch and returns its request id.
	PreUpload(ctx context.Context, key string, req PreUploadRequest) (int64, error)
	// UploadChunk transfers one chunk. It returns once the server acknowledged the chunk.
	UploadChunk(ctx context.Context, key string, chunk Chunk, onProgress ProgressFunc) error
}

// Canceler is implemented by servers able to discard a registered upload.
type Canceler interface {
	CancelUpload(ctx context.Context, requestID int64) error
}

// Alerter shows a message to the user.
type Alerter interface {
	Alert(msg string)
}

// AlerterFunc ...
type AlerterFunc func(msg string)

// Alert ...
func (f AlerterFunc) Alert(msg string) {
	f(msg)
}
