package network

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/dataplatform-io/go-uploadutils/upload"
	"github.com/google/uuid"
)

const numS3Retries = 3

var (
	_ upload.Server   = (*S3Server)(nil)
	_ upload.Canceler = (*S3Server)(nil)
)

// S3Params ...
type S3Params struct {
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Server stores uploaded files directly in an S3 bucket under {prefix}/{key}/{file name}.
// Single-chunk files are put as one object, larger files become multipart uploads with one part per chunk.
type S3Server struct {
	client    manager.UploadAPIClient
	bucket    string
	prefix    string
	logger    log.Logger
	retryWait time.Duration

	mu      sync.Mutex
	batches map[int64]*s3Batch
}

type s3Batch struct {
	key string
	// lastFile is the number of the last file that has chunks.
	lastFile int
	open     map[int]*multipartUpload
}

type multipartUpload struct {
	objectKey string
	uploadID  string
	parts     []types.CompletedPart
}

// NewS3Server ...
func NewS3Server(ctx context.Context, params S3Params, logger log.Logger) (*S3Server, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("Bucket must not be empty")
	}

	cfg, err := loadAWSCredentials(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	return newS3Server(s3.NewFromConfig(*cfg), params.Bucket, params.Prefix, logger), nil
}

func newS3Server(client manager.UploadAPIClient, bucket, prefix string, logger log.Logger) *S3Server {
	return &S3Server{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		logger:    logger,
		retryWait: 5 * time.Second,
		batches:   map[int64]*s3Batch{},
	}
}

// PreUpload allocates a request id for the batch. Nothing is sent to S3 until the first chunk.
// The batch is tracked until the last chunk of the last non-empty file is stored.
func (s *S3Server) PreUpload(_ context.Context, key string, req upload.PreUploadRequest) (int64, error) {
	lastFile := req.TotalFileNum
	if len(req.FileSizes) > 0 {
		lastFile = 0
		for i, size := range req.FileSizes {
			if size > 0 {
				lastFile = i + 1
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	for {
		id = int64(uuid.New().ID())
		if _, exists := s.batches[id]; !exists {
			break
		}
	}

	if lastFile == 0 {
		s.logger.Debugf("Allocated request id %d for %s, no file has content", id, key)
		return id, nil
	}

	s.batches[id] = &s3Batch{
		key:      key,
		lastFile: lastFile,
		open:     map[int]*multipartUpload{},
	}
	s.logger.Debugf("Allocated request id %d for %d file(s) of %s", id, req.TotalFileNum, key)

	return id, nil
}

// UploadChunk ...
func (s *S3Server) UploadChunk(ctx context.Context, key string, chunk upload.Chunk, onProgress upload.ProgressFunc) error {
	s.mu.Lock()
	batch, ok := s.batches[chunk.ReqID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown request id %d", chunk.ReqID)
	}

	digest, err := hex.DecodeString(chunk.CheckSumHex)
	if err != nil {
		return fmt.Errorf("decode checksum: %w", err)
	}
	checksum := base64.StdEncoding.EncodeToString(digest)
	objectKey := path.Join(s.prefix, key, chunk.FileName)

	if chunk.TotalChunkNum == 1 {
		err = s.putObject(ctx, objectKey, chunk, checksum, onProgress)
	} else {
		err = s.uploadPart(ctx, batch, objectKey, chunk, checksum, onProgress)
	}
	if err != nil {
		return err
	}

	if chunk.FileNo == batch.lastFile && chunk.ChunkNo == chunk.TotalChunkNum {
		s.mu.Lock()
		delete(s.batches, chunk.ReqID)
		s.mu.Unlock()
	}
	return nil
}

// CancelUpload aborts the open multipart uploads of the batch. Unknown ids are ignored.
func (s *S3Server) CancelUpload(ctx context.Context, requestID int64) error {
	s.mu.Lock()
	var uploads []*multipartUpload
	batch, ok := s.batches[requestID]
	if ok {
		for _, mpu := range batch.open {
			uploads = append(uploads, mpu)
		}
		delete(s.batches, requestID)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Debugf("No open uploads for request id %d", requestID)
		return nil
	}

	var errs []error
	for _, mpu := range uploads {
		if err := s.abortMultipartUploadWithRetry(ctx, mpu); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *S3Server) putObject(ctx context.Context, objectKey string, chunk upload.Chunk, checksum string, onProgress upload.ProgressFunc) error {
	size := chunk.File.Size()
	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = manager.MinUploadPartSize
		if size > u.PartSize {
			u.PartSize = size
		}
	})

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Body:           newProgressReadSeeker(chunk.File, onProgress),
		Bucket:         aws.String(s.bucket),
		Key:            aws.String(objectKey),
		ContentLength:  aws.Int64(size),
		ChecksumSHA256: aws.String(checksum),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}

	s.logger.Debugf("Stored %s", objectKey)
	return nil
}

func (s *S3Server) uploadPart(ctx context.Context, batch *s3Batch, objectKey string, chunk upload.Chunk, checksum string, onProgress upload.ProgressFunc) error {
	if chunk.ChunkNo == 1 {
		uploadID, err := s.createMultipartUploadWithRetry(ctx, objectKey)
		if err != nil {
			return err
		}
		s.mu.Lock()
		batch.open[chunk.FileNo] = &multipartUpload{objectKey: objectKey, uploadID: uploadID}
		s.mu.Unlock()
	}

	s.mu.Lock()
	mpu, ok := batch.open[chunk.FileNo]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no multipart upload started for file %d", chunk.FileNo)
	}

	resp, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Body:           newProgressReadSeeker(chunk.File, onProgress),
		Bucket:         aws.String(s.bucket),
		Key:            aws.String(mpu.objectKey),
		UploadId:       aws.String(mpu.uploadID),
		PartNumber:     aws.Int32(int32(chunk.ChunkNo)),
		ContentLength:  aws.Int64(chunk.File.Size()),
		ChecksumSHA256: aws.String(checksum),
	})
	if err != nil {
		return fmt.Errorf("upload part %d of %s: %w", chunk.ChunkNo, mpu.objectKey, err)
	}

	mpu.parts = append(mpu.parts, types.CompletedPart{
		ETag:           resp.ETag,
		PartNumber:     aws.Int32(int32(chunk.ChunkNo)),
		ChecksumSHA256: aws.String(checksum),
	})

	if chunk.ChunkNo < chunk.TotalChunkNum {
		return nil
	}

	if err := s.completeMultipartUploadWithRetry(ctx, mpu); err != nil {
		return err
	}

	s.mu.Lock()
	delete(batch.open, chunk.FileNo)
	s.mu.Unlock()

	s.logger.Debugf("Stored %s in %d parts", mpu.objectKey, len(mpu.parts))
	return nil
}

func (s *S3Server) createMultipartUploadWithRetry(ctx context.Context, objectKey string) (string, error) {
	var uploadID string
	err := retry.Times(numS3Retries).Wait(s.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		resp, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket:            aws.String(s.bucket),
			Key:               aws.String(objectKey),
			ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		})
		if err != nil {
			return fmt.Errorf("create multipart upload for %s: %w", objectKey, err), ctx.Err() != nil
		}

		uploadID = aws.ToString(resp.UploadId)
		return nil, true
	})

	return uploadID, err
}

func (s *S3Server) completeMultipartUploadWithRetry(ctx context.Context, mpu *multipartUpload) error {
	return retry.Times(numS3Retries).Wait(s.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(s.bucket),
			Key:             aws.String(mpu.objectKey),
			UploadId:        aws.String(mpu.uploadID),
			MultipartUpload: &types.CompletedMultipartUpload{Parts: mpu.parts},
		})
		if err != nil {
			return fmt.Errorf("complete multipart upload of %s: %w", mpu.objectKey, err), ctx.Err() != nil
		}
		return nil, true
	})
}

func (s *S3Server) abortMultipartUploadWithRetry(ctx context.Context, mpu *multipartUpload) error {
	return retry.Times(numS3Retries).Wait(s.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(mpu.objectKey),
			UploadId: aws.String(mpu.uploadID),
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) {
				switch apiError.(type) {
				case *types.NoSuchUpload:
					// already completed or aborted
					return nil, true
				}
			}
			return fmt.Errorf("abort multipart upload of %s: %w", mpu.objectKey, err), ctx.Err() != nil
		}

		s.logger.Debugf("Aborted multipart upload of %s", mpu.objectKey)
		return nil, true
	})
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
