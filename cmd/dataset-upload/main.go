// Command dataset-upload uploads local files and directories to a dataset.
//
// It is configured through environment variables, see Inputs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/dataplatform-io/go-uploadutils/stepconf"
	"github.com/dataplatform-io/go-uploadutils/upload"
	"github.com/dataplatform-io/go-uploadutils/upload/compression"
	"github.com/dataplatform-io/go-uploadutils/upload/file"
	"github.com/dataplatform-io/go-uploadutils/upload/loading"
	"github.com/dataplatform-io/go-uploadutils/upload/network"
	"github.com/dataplatform-io/go-uploadutils/upload/registry"
	"github.com/dataplatform-io/go-uploadutils/upload/slicer"
)

const updateEvent = "dataset-upload"

func main() {
	os.Exit(run())
}

func run() int {
	logger := log.NewLogger()
	envRepo := env.NewRepository()

	inputParser := stepconf.NewInputParser(envRepo, logger)
	cfg, err := parseConfig(inputParser)
	if err != nil {
		logger.Errorf("%s", err)
		return 1
	}
	logger.EnableDebugLog(cfg.Verbose)
	inputParser.Print(cfg.Inputs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := uploadDataset(ctx, cfg, envRepo, logger); err != nil {
		logger.Errorf("%s", err)
		return 1
	}
	return 0
}

func uploadDataset(ctx context.Context, cfg Config, envRepo env.Repository, logger log.Logger) error {
	files, cleanup, err := selectFiles(cfg.Paths, envRepo, logger)
	defer cleanup()
	if err != nil {
		return err
	}

	server, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	bus := registry.NewBus()
	bus.Subscribe(func(e registry.Event) {
		logger.Debugf("Event %s: name=%s key=%s show=%t", e.Kind, e.Name, e.Key, e.Show)
	})
	tasks := registry.New(bus, logger)
	stopProgress := tasks.Watch(newProgressPrinter(cfg.DatasetID, logger).print)
	defer stopProgress()

	loadingService := loading.New()
	loadingService.Init(func(visible bool) {
		if visible {
			logger.Printf("Checking files and registering the upload...")
		}
	})
	defer loadingService.Reset()

	alerter := upload.AlerterFunc(func(msg string) {
		logger.Warnf("%s", msg)
	})

	uploader := upload.New(upload.Config{
		ChecksumBlockSize: cfg.ChecksumBlockSizeBytes,
		ProbeConcurrency:  upload.DefaultConfig().ProbeConcurrency,
	}, server, tasks, loadingService, alerter, logger)

	return uploader.HandleUpload(ctx, upload.Request{
		Key:         cfg.DatasetID,
		Title:       cfg.Title,
		UpdateEvent: updateEvent,
		Entries:     slicer.NewEntries(files, cfg.ChunkSizeBytes),
	})
}

func newServer(ctx context.Context, cfg Config, logger log.Logger) (upload.Server, error) {
	switch cfg.Backend {
	case backendS3:
		server, err := network.NewS3Server(ctx, network.S3Params{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     string(cfg.AWSAccessKeyID),
			SecretAccessKey: string(cfg.AWSSecretKey),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create s3 backend: %w", err)
		}
		return server, nil
	default:
		return network.NewAPIClient(cfg.APIURL, string(cfg.AccessToken), logger), nil
	}
}

// selectFiles resolves the path patterns and opens every matched file.
// Directories are archived into a temporary directory removed by cleanup.
func selectFiles(patterns []string, envRepo env.Repository, logger log.Logger) ([]file.File, func(), error) {
	var tmpDir string
	cleanup := func() {
		if tmpDir == "" {
			return
		}
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.Warnf("Failed to remove %s: %s", tmpDir, err)
		}
	}

	selector := file.NewSelector(pathutil.NewPathModifier(), pathutil.NewPathChecker(), logger)
	paths, err := selector.Evaluate(patterns)
	if err != nil {
		return nil, cleanup, fmt.Errorf("evaluate paths: %w", err)
	}

	archiver := compression.NewArchiver(logger, envRepo, compression.NewDependencyChecker(logger, envRepo))

	var files []file.File
	for i, path := range paths {
		if compression.IsDir(path) {
			if compression.IsEmptyDir(path) {
				logger.Warnf("Skipping empty directory: %s", path)
				continue
			}

			if tmpDir == "" {
				tmpDir, err = pathutil.NewPathProvider().CreateTempDir("dataset-upload")
				if err != nil {
					return nil, cleanup, fmt.Errorf("create temp dir: %w", err)
				}
			}

			// Directories with the same name are archived side by side.
			archiveDir := filepath.Join(tmpDir, strconv.Itoa(i))
			if err := os.MkdirAll(archiveDir, 0700); err != nil {
				return nil, cleanup, fmt.Errorf("create archive dir: %w", err)
			}
			archivePath := filepath.Join(archiveDir, compression.ArchiveName(path))
			logger.Infof("Archiving %s...", path)
			if err := archiver.Compress(archivePath, path); err != nil {
				return nil, cleanup, err
			}
			path = archivePath
		}

		f, err := file.Open(path)
		if err != nil {
			return nil, cleanup, err
		}
		files = append(files, f)
	}

	if len(files) == 0 {
		return nil, cleanup, upload.ErrNoFiles
	}
	return files, cleanup, nil
}
