package main

import (
	"testing"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/dataplatform-io/go-uploadutils/stepconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

var _ env.Repository = fakeEnvRepo{}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	delete(repo.envVars, key)
	return nil
}

func (repo fakeEnvRepo) List() []string {
	var list []string
	for k, v := range repo.envVars {
		list = append(list, k+"="+v)
	}
	return list
}

func TestParseConfig_Defaults(t *testing.T) {
	envRepo := fakeEnvRepo{envVars: map[string]string{
		"UPLOAD_DATASET_ID":   "ds-1",
		"UPLOAD_PATHS":        "data/train.csv|data/images",
		"UPLOAD_API_URL":      "https://data.example.com/api",
		"UPLOAD_ACCESS_TOKEN": "token",
	}}

	cfg, err := parseConfig(stepconf.NewInputParser(envRepo, log.NewLogger()))
	require.NoError(t, err)

	assert.Equal(t, "ds-1", cfg.Title)
	assert.Equal(t, backendAPI, cfg.Backend)
	assert.Equal(t, []string{"data/train.csv", "data/images"}, cfg.Paths)
	assert.Equal(t, int64(60*1024*1024), cfg.ChunkSizeBytes)
	assert.Equal(t, int64(20*1024*1024), cfg.ChecksumBlockSizeBytes)
	assert.False(t, cfg.Verbose)
}

func TestParseConfig_S3(t *testing.T) {
	envRepo := fakeEnvRepo{envVars: map[string]string{
		"UPLOAD_DATASET_ID":          "ds-1",
		"UPLOAD_TITLE":               "Training data",
		"UPLOAD_PATHS":               "data/**/*.parquet",
		"UPLOAD_BACKEND":             "s3",
		"UPLOAD_S3_BUCKET":           "datasets",
		"UPLOAD_S3_REGION":           "eu-west-1",
		"UPLOAD_CHUNK_SIZE":          "8MiB",
		"UPLOAD_CHECKSUM_BLOCK_SIZE": "1m",
		"UPLOAD_VERBOSE":             "true",
	}}

	cfg, err := parseConfig(stepconf.NewInputParser(envRepo, log.NewLogger()))
	require.NoError(t, err)

	assert.Equal(t, "Training data", cfg.Title)
	assert.Equal(t, backendS3, cfg.Backend)
	assert.Equal(t, int64(8*1024*1024), cfg.ChunkSizeBytes)
	assert.Equal(t, int64(1024*1024), cfg.ChecksumBlockSizeBytes)
	assert.True(t, cfg.Verbose)
}

func TestParseConfig_Invalid(t *testing.T) {
	base := map[string]string{
		"UPLOAD_DATASET_ID":   "ds-1",
		"UPLOAD_PATHS":        "a.csv",
		"UPLOAD_API_URL":      "https://data.example.com/api",
		"UPLOAD_ACCESS_TOKEN": "token",
	}

	tests := []struct {
		name      string
		overrides map[string]string
		wantErr   string
	}{
		{name: "missing dataset", overrides: map[string]string{"UPLOAD_DATASET_ID": ""}, wantErr: "DatasetID: required variable is not present"},
		{name: "missing paths", overrides: map[string]string{"UPLOAD_PATHS": ""}, wantErr: "Paths: required variable is not present"},
		{name: "missing api url", overrides: map[string]string{"UPLOAD_API_URL": ""}, wantErr: "UPLOAD_API_URL must be set"},
		{name: "missing token", overrides: map[string]string{"UPLOAD_ACCESS_TOKEN": ""}, wantErr: "UPLOAD_ACCESS_TOKEN must be set"},
		{name: "unknown backend", overrides: map[string]string{"UPLOAD_BACKEND": "ftp"}, wantErr: "unknown UPLOAD_BACKEND"},
		{name: "s3 without bucket", overrides: map[string]string{"UPLOAD_BACKEND": "s3", "UPLOAD_S3_REGION": "eu-west-1"}, wantErr: "UPLOAD_S3_BUCKET must be set"},
		{name: "s3 without region", overrides: map[string]string{"UPLOAD_BACKEND": "s3", "UPLOAD_S3_BUCKET": "datasets"}, wantErr: "UPLOAD_S3_REGION must be set"},
		{name: "invalid chunk size", overrides: map[string]string{"UPLOAD_CHUNK_SIZE": "huge"}, wantErr: "UPLOAD_CHUNK_SIZE"},
		{name: "zero block size", overrides: map[string]string{"UPLOAD_CHECKSUM_BLOCK_SIZE": "0"}, wantErr: "UPLOAD_CHECKSUM_BLOCK_SIZE must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envVars := map[string]string{}
			for k, v := range base {
				envVars[k] = v
			}
			for k, v := range tt.overrides {
				envVars[k] = v
			}

			_, err := parseConfig(stepconf.NewInputParser(fakeEnvRepo{envVars: envVars}, log.NewLogger()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
