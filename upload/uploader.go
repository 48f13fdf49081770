package upload

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/dataplatform-io/go-uploadutils/upload/checksum"
	"github.com/dataplatform-io/go-uploadutils/upload/file"
	"github.com/dataplatform-io/go-uploadutils/upload/loading"
	"github.com/dataplatform-io/go-uploadutils/upload/probe"
	"github.com/dataplatform-io/go-uploadutils/upload/registry"
	"github.com/dataplatform-io/go-uploadutils/upload/slicer"
	"github.com/docker/go-units"
)

const maxRunningPercent = 99.99

// Config holds configuration for the Uploader.
type Config struct {
	// ChecksumBlockSize is the amount of chunk data hashed at once.
	// Default: 20 MiB
	ChecksumBlockSize int64

	// ProbeConcurrency is the number of files checked for changes in parallel.
	// Default: 4
	ProbeConcurrency int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ChecksumBlockSize: checksum.DefaultBlockSize,
		ProbeConcurrency:  4,
	}
}

// Request is a batch of files uploaded to the entity identified by Key.
type Request struct {
	Key         string
	Title       string
	UpdateEvent string
	Entries     []slicer.Entry
}

// Uploader runs uploads and publishes their progress into a registry.
type Uploader struct {
	server   Server
	registry *registry.Registry
	loading  *loading.Service
	alerter  Alerter
	checksum *checksum.Calculator
	prober   *probe.Prober
	logger   log.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New ...
func New(config Config, server Server, registry *registry.Registry, loading *loading.Service, alerter Alerter, logger log.Logger) *Uploader {
	if alerter == nil {
		alerter = AlerterFunc(func(string) {})
	}

	return &Uploader{
		server:   server,
		registry: registry,
		loading:  loading,
		alerter:  alerter,
		checksum: checksum.NewCalculator(config.ChecksumBlockSize),
		prober:   probe.New(logger).WithConcurrency(config.ProbeConcurrency),
		logger:   logger,
		active:   map[string]context.CancelFunc{},
	}
}

// Cancel aborts the running upload of key. It reports false if there is none.
// The aborted HandleUpload call returns with an error once the in-flight request is interrupted.
func (u *Uploader) Cancel(key string) bool {
	u.mu.Lock()
	abort, ok := u.active[key]
	u.mu.Unlock()

	if ok {
		u.logger.Warnf("Cancelling upload of %s", key)
		abort()
	}
	return ok
}

// HandleUpload uploads every chunk of every entry in order and blocks until the
// upload completed or failed. Chunks are sent one at a time.
//
// The task is only created if key is neither being uploaded nor present in the
// registry, otherwise ErrUploadInProgress is returned. A task left in the registry
// for key, for example by a caller that created it by hand, blocks new uploads of
// key until it is removed.
func (u *Uploader) HandleUpload(ctx context.Context, req Request) error {
	if len(req.Entries) == 0 {
		return ErrNoFiles
	}

	taskCtx, abort := context.WithCancel(ctx)
	defer abort()

	if err := u.acquire(req.Key, abort); err != nil {
		return err
	}
	defer u.release(req.Key)

	u.registry.Create(registry.Task{
		Key:         req.Key,
		Title:       req.Title,
		RequestID:   registry.NoRequestID,
		UpdateEvent: req.UpdateEvent,
	})

	u.loading.Show()
	loadingVisible := true
	defer func() {
		if loadingVisible {
			u.loading.Hide()
		}
	}()

	var totalSize int64
	files := make([]file.File, 0, len(req.Entries))
	fileSizes := make([]int64, 0, len(req.Entries))
	for _, entry := range req.Entries {
		totalSize += entry.Size
		files = append(files, entry.File)
		fileSizes = append(fileSizes, entry.Size)
	}

	u.logger.Println()
	u.logger.Infof("Checking %d selected file(s)...", len(files))
	stale, err := u.prober.FirstUnreadable(taskCtx, files)
	if err != nil {
		return u.fail(ctx, req.Key, fmt.Errorf("check files: %w", err))
	}
	if stale != nil {
		return u.discardStale(ctx, req.Key, stale)
	}

	u.logger.Infof("Registering upload of %d file(s), %s...", len(files), units.HumanSizeWithPrecision(float64(totalSize), 3))
	requestID, err := u.server.PreUpload(taskCtx, req.Key, PreUploadRequest{
		TotalFileNum: len(req.Entries),
		TotalSize:    totalSize,
		DatasetID:    req.Key,
		FileSizes:    fileSizes,
	})
	if err != nil {
		return u.fail(ctx, req.Key, &RegistrationError{Err: err})
	}
	u.logger.Debugf("Upload registered with request id %d", requestID)

	strategy := newCancellation(abort, u.server)
	u.registry.Mutate(req.Key, func(t *registry.Task) {
		t.RequestID = requestID
		t.Cancellation = strategy
		t.IsCancel = false
	})

	u.loading.Hide()
	loadingVisible = false
	u.registry.SetTaskCenterVisible(true)

	stats := NewStats()
	var acked int64
	for i, entry := range req.Entries {
		for j := range entry.Slices {
			if err := taskCtx.Err(); err != nil {
				return u.fail(ctx, req.Key, &ChunkTransferError{FileName: entry.Name, FileNo: i + 1, ChunkNo: j + 1, Err: err})
			}

			u.logger.Debugf("Uploading %s chunk %d/%d (file %d/%d) [finished=%d] [avg=%v]",
				entry.Name, j+1, len(entry.Slices), i+1, len(req.Entries),
				stats.FinishedCount(), stats.Average().Round(time.Millisecond))

			start := time.Now()
			sent, err := u.uploadChunk(taskCtx, req.Key, requestID, entry, i, j, acked, totalSize)
			if err != nil {
				return u.fail(ctx, req.Key, err)
			}

			acked += sent
			stats.Update(time.Since(start), sent)
		}
	}

	if t, ok := u.registry.Get(req.Key); ok {
		t.IsCancel = false
		u.registry.Remove(ctx, t)
	}

	u.logger.Donef("Uploaded %s in %d chunk(s) in %s (%s/s)",
		units.HumanSizeWithPrecision(float64(stats.Bytes()), 3),
		stats.FinishedCount(),
		stats.TotalDuration().Round(time.Millisecond),
		units.HumanSizeWithPrecision(stats.Throughput(), 3))

	return nil
}

// uploadChunk hashes and sends chunk j of entry i through a single read session of the file.
func (u *Uploader) uploadChunk(ctx context.Context, key string, requestID int64, entry slicer.Entry, i, j int, acked, totalSize int64) (int64, error) {
	chunkLen := entry.Slices[j].Length

	r, err := file.OpenReader(entry.File)
	if err != nil {
		return 0, &ChecksumReadError{FileName: entry.Name, FileNo: i + 1, ChunkNo: j + 1, Err: err}
	}
	defer r.Close() //nolint:errcheck

	sum, err := u.checksum.Sum(ctx, entry.Section(r, j))
	if err != nil {
		var readErr *checksum.ReadError
		if errors.As(err, &readErr) {
			return 0, &ChecksumReadError{FileName: entry.Name, FileNo: i + 1, ChunkNo: j + 1, Err: err}
		}
		return 0, &ChunkTransferError{FileName: entry.Name, FileNo: i + 1, ChunkNo: j + 1, Err: err}
	}

	chunk := Chunk{
		File:          entry.Section(r, j),
		ReqID:         requestID,
		FileNo:        i + 1,
		ChunkNo:       j + 1,
		FileName:      entry.Name,
		FileSize:      entry.Size,
		TotalChunkNum: len(entry.Slices),
		CheckSumHex:   sum,
	}

	err = u.server.UploadChunk(ctx, key, chunk, func(loaded int64) {
		u.reportProgress(key, acked, loaded, chunkLen, totalSize)
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return 0, &ChunkTransferError{FileName: entry.Name, FileNo: i + 1, ChunkNo: j + 1, Err: err}
	}

	u.reportProgress(key, acked, chunkLen, chunkLen, totalSize)
	return chunkLen, nil
}

func (u *Uploader) acquire(key string, abort context.CancelFunc) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.active[key]; ok {
		return fmt.Errorf("%s: %w", key, ErrUploadInProgress)
	}
	if _, ok := u.registry.Get(key); ok {
		return fmt.Errorf("%s: %w", key, ErrUploadInProgress)
	}
	u.active[key] = abort
	return nil
}

func (u *Uploader) release(key string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.active, key)
}

// reportProgress folds the progress of the current chunk into the task.
// Size and Percent never decrease.
func (u *Uploader) reportProgress(key string, acked, loaded, chunkLen, total int64) {
	if loaded < 0 {
		loaded = 0
	}
	if loaded > chunkLen {
		loaded = chunkLen
	}
	size := acked + loaded

	var percent float64
	if total > 0 {
		percent = math.Min(maxRunningPercent, float64(size)/float64(total)*100)
	}

	u.registry.Mutate(key, func(t *registry.Task) {
		if size > t.Size {
			t.Size = size
		}
		if percent > t.Percent {
			t.Percent = percent
		}
	})
}

func (u *Uploader) discardStale(ctx context.Context, key string, stale file.File) error {
	if t, ok := u.registry.Get(key); ok {
		t.IsCancel = false
		u.registry.Remove(ctx, t)
	}

	u.logger.Warnf("%s has been modified or deleted since it was selected", stale.Name())
	u.alerter.Alert(MsgStaleFile)
	return &StaleFileError{Name: stale.Name()}
}

// fail removes the task as cancelled, which aborts the transfer and notifies the
// server if the upload was already registered.
func (u *Uploader) fail(ctx context.Context, key string, err error) error {
	if t, ok := u.registry.Mutate(key, func(t *registry.Task) { t.IsCancel = true }); ok {
		u.registry.Remove(context.WithoutCancel(ctx), t)
	}

	u.logger.Errorf("Upload of %s failed: %s", key, err)
	u.alerter.Alert(MsgUploadFailed)
	return err
}
