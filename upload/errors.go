package upload

import (
	"errors"
	"fmt"
)

// Messages shown to the user through the Alerter.
const (
	MsgStaleFile    = "File has been modified or deleted, please select the files again"
	MsgUploadFailed = "Upload failed, please retry"
)

var (
	// ErrStaleFile is returned when a selected file was modified or deleted before the upload started.
	ErrStaleFile = errors.New("file modified or deleted")
	// ErrRegistration is returned when the server refused to register the upload.
	ErrRegistration = errors.New("upload registration failed")
	// ErrChunkTransfer is returned when a chunk could not be delivered.
	ErrChunkTransfer = errors.New("chunk transfer failed")
	// ErrChecksumRead is returned when a chunk could not be read for checksumming.
	ErrChecksumRead = errors.New("checksum read failed")
	// ErrUploadInProgress is returned when an upload for the same key is still running.
	ErrUploadInProgress = errors.New("upload already in progress")
	// ErrNoFiles ...
	ErrNoFiles = errors.New("no files to upload")
)

// StaleFileError ...
type StaleFileError struct {
	Name string
}

func (e *StaleFileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, ErrStaleFile)
}

func (e *StaleFileError) Unwrap() error {
	return ErrStaleFile
}

// RegistrationError ...
type RegistrationError struct {
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRegistration, e.Err)
}

func (e *RegistrationError) Unwrap() []error {
	return []error{ErrRegistration, e.Err}
}

// ChunkTransferError ...
type ChunkTransferError struct {
	FileName string
	FileNo   int
	ChunkNo  int
	Err      error
}

func (e *ChunkTransferError) Error() string {
	return fmt.Sprintf("%s (file %d, chunk %d): %s", ErrChunkTransfer, e.FileNo, e.ChunkNo, e.Err)
}

func (e *ChunkTransferError) Unwrap() []error {
	return []error{ErrChunkTransfer, e.Err}
}

// ChecksumReadError is a chunk transfer failure caused by the chunk not being readable.
type ChecksumReadError struct {
	FileName string
	FileNo   int
	ChunkNo  int
	Err      error
}

func (e *ChecksumReadError) Error() string {
	return fmt.Sprintf("%s (file %d, chunk %d): %s", ErrChecksumRead, e.FileNo, e.ChunkNo, e.Err)
}

func (e *ChecksumReadError) Unwrap() []error {
	return []error{ErrChecksumRead, ErrChunkTransfer, e.Err}
}
