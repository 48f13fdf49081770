package main

import (
	"fmt"

	"github.com/dataplatform-io/go-uploadutils/stepconf"
	"github.com/docker/go-units"
)

const (
	backendAPI = "api"
	backendS3  = "s3"
)

// Inputs ...
type Inputs struct {
	DatasetID         string          `env:"UPLOAD_DATASET_ID,required"`
	Title             string          `env:"UPLOAD_TITLE"`
	Paths             []string        `env:"UPLOAD_PATHS,required"`
	Backend           string          `env:"UPLOAD_BACKEND"`
	APIURL            string          `env:"UPLOAD_API_URL"`
	AccessToken       stepconf.Secret `env:"UPLOAD_ACCESS_TOKEN"`
	ChunkSize         string          `env:"UPLOAD_CHUNK_SIZE"`
	ChecksumBlockSize string          `env:"UPLOAD_CHECKSUM_BLOCK_SIZE"`
	S3Bucket          string          `env:"UPLOAD_S3_BUCKET"`
	S3Region          string          `env:"UPLOAD_S3_REGION"`
	S3Prefix          string          `env:"UPLOAD_S3_PREFIX"`
	AWSAccessKeyID    stepconf.Secret `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey      stepconf.Secret `env:"AWS_SECRET_ACCESS_KEY"`
	Verbose           bool            `env:"UPLOAD_VERBOSE"`
}

// Config is the validated configuration of an upload run.
type Config struct {
	Inputs
	ChunkSizeBytes         int64
	ChecksumBlockSizeBytes int64
}

func parseConfig(inputParser stepconf.InputParser) (Config, error) {
	input := Inputs{
		Backend:           backendAPI,
		ChunkSize:         "60MiB",
		ChecksumBlockSize: "20MiB",
	}
	if err := inputParser.Parse(&input); err != nil {
		return Config{}, err
	}

	if input.Title == "" {
		input.Title = input.DatasetID
	}

	switch input.Backend {
	case backendAPI:
		if input.APIURL == "" {
			return Config{}, fmt.Errorf("UPLOAD_API_URL must be set for the %s backend", backendAPI)
		}
		if input.AccessToken == "" {
			return Config{}, fmt.Errorf("UPLOAD_ACCESS_TOKEN must be set for the %s backend", backendAPI)
		}
	case backendS3:
		if input.S3Bucket == "" {
			return Config{}, fmt.Errorf("UPLOAD_S3_BUCKET must be set for the %s backend", backendS3)
		}
		if input.S3Region == "" {
			return Config{}, fmt.Errorf("UPLOAD_S3_REGION must be set for the %s backend", backendS3)
		}
	default:
		return Config{}, fmt.Errorf("unknown UPLOAD_BACKEND %q, expected %s or %s", input.Backend, backendAPI, backendS3)
	}

	chunkSize, err := parseSize("UPLOAD_CHUNK_SIZE", input.ChunkSize)
	if err != nil {
		return Config{}, err
	}
	blockSize, err := parseSize("UPLOAD_CHECKSUM_BLOCK_SIZE", input.ChecksumBlockSize)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Inputs:                 input,
		ChunkSizeBytes:         chunkSize,
		ChecksumBlockSizeBytes: blockSize,
	}, nil
}

func parseSize(name, value string) (int64, error) {
	size, err := units.RAMInBytes(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, value)
	}
	return size, nil
}
