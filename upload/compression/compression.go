// Package compression packs selected directories into a single tar.zst file before upload.
package compression

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/klauspost/compress/zstd"
)

// Extension of the archives created by Archiver.
const Extension = ".tar.zst"

// ArchiveDependencyChecker ...
type ArchiveDependencyChecker interface {
	CheckDependencies() bool
}

// DependencyChecker reports whether the tar and zstd binaries are installed.
type DependencyChecker struct {
	logger  log.Logger
	envRepo env.Repository
}

// NewDependencyChecker ...
func NewDependencyChecker(logger log.Logger, envRepo env.Repository) *DependencyChecker {
	return &DependencyChecker{
		logger:  logger,
		envRepo: envRepo,
	}
}

// CheckDependencies ...
func (dc *DependencyChecker) CheckDependencies() bool {
	return dc.checkDependency("tar") && dc.checkDependency("zstd")
}

func (dc *DependencyChecker) checkDependency(binaryName string) bool {
	cmdFactory := command.NewFactory(dc.envRepo)
	cmd := cmdFactory.Create("which", []string{binaryName}, nil)
	dc.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

	_, err := cmd.RunAndReturnTrimmedCombinedOutput()
	return err == nil
}

// Archiver ...
type Archiver struct {
	logger                   log.Logger
	envRepo                  env.Repository
	archiveDependencyChecker ArchiveDependencyChecker
}

// NewArchiver ...
func NewArchiver(logger log.Logger, envRepo env.Repository, archiveDependencyChecker ArchiveDependencyChecker) *Archiver {
	return &Archiver{
		logger:                   logger,
		envRepo:                  envRepo,
		archiveDependencyChecker: archiveDependencyChecker,
	}
}

// ArchiveName returns the file name of the archive created for dir.
func ArchiveName(dir string) string {
	return filepath.Base(filepath.Clean(dir)) + Extension
}

// Compress archives dir into archivePath. Entries are stored relative to the parent of dir,
// so the archive extracts into a single directory named like dir.
func (a *Archiver) Compress(archivePath string, dir string) error {
	if a.archiveDependencyChecker.CheckDependencies() {
		a.logger.Debugf("Using installed zstd binary")
		if err := a.compressWithBinary(archivePath, dir); err != nil {
			return fmt.Errorf("compress directory: %w", err)
		}
		return nil
	}

	a.logger.Debugf("Falling back to native implementation of zstd.")
	if err := a.compressWithGoLib(archivePath, dir); err != nil {
		return fmt.Errorf("compress directory: %w", err)
	}
	return nil
}

// Decompress extracts an archive created by Compress into destinationDirectory.
func (a *Archiver) Decompress(archivePath string, destinationDirectory string) error {
	if a.archiveDependencyChecker.CheckDependencies() {
		a.logger.Debugf("Using installed zstd binary")
		if err := a.decompressWithBinary(archivePath, destinationDirectory); err != nil {
			return fmt.Errorf("decompress archive: %w", err)
		}
		return nil
	}

	a.logger.Debugf("Falling back to native implementation of zstd.")
	if err := a.decompressWithGoLib(archivePath, destinationDirectory); err != nil {
		return fmt.Errorf("decompress archive: %w", err)
	}
	return nil
}

func (a *Archiver) compressWithGoLib(archivePath string, dir string) (err error) {
	root := filepath.Clean(dir)
	parent := filepath.Dir(root)

	archive, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if closeErr := archive.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close archive file: %w", closeErr)
		}
	}()

	zstdWriter, err := zstd.NewWriter(archive)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zstdWriter)

	if err := filepath.Walk(root, func(file string, fi os.FileInfo, e error) error {
		if e != nil {
			return e
		}

		var link string
		if fi.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(file)
			if err != nil {
				return fmt.Errorf("read symlink: %w", err)
			}
			link = target
		}

		header, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return fmt.Errorf("create file info header: %w", err)
		}

		name, err := filepath.Rel(parent, file)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", file, err)
		}
		header.Name = filepath.ToSlash(name)
		if fi.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write tar file header: %w", err)
		}

		// nothing more to do for non-regular files or directories
		if !fi.Mode().IsRegular() {
			return nil
		}

		data, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("open file: %w", err)
		}
		if _, err := io.Copy(tw, data); err != nil {
			data.Close() //nolint:errcheck
			return fmt.Errorf("copy to archive: %w", err)
		}
		if err := data.Close(); err != nil {
			return fmt.Errorf("close file: %w", err)
		}

		return nil
	}); err != nil {
		return fmt.Errorf("iterate on files: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}
	if err := zstdWriter.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}

	return nil
}

func (a *Archiver) compressWithBinary(archivePath string, dir string) error {
	root := filepath.Clean(dir)

	/*
		tar arguments:
		--use-compress-program: Pipe the output to zstd instead of using the built-in gzip compression
		-c: Create archive
		-f: Output file
		-C: Change to the parent directory so entries are stored relative to it
	*/
	tarArgs := []string{
		"--use-compress-program", "zstd --threads=0", // Use CPU count threads
		"-c",
		"-f", archivePath,
		"-C", filepath.Dir(root),
		filepath.Base(root),
	}

	return a.run("tar", tarArgs)
}

func (a *Archiver) decompressWithGoLib(archivePath string, destinationDirectory string) error {
	compressedFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer compressedFile.Close() //nolint:errcheck

	zr, err := zstd.NewReader(compressedFile)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	destination := filepath.Clean(destinationDirectory)
	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar file: %w", err)
		}

		target := filepath.Join(destination, filepath.FromSlash(header.Name))
		if target != destination && !strings.HasPrefix(target, destination+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %s points outside of %s", header.Name, destination)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create target directories: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("create target directories: %w", err)
			}
			fileToWrite, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("create file: %w", err)
			}
			if _, err := io.Copy(fileToWrite, tr); err != nil {
				fileToWrite.Close() //nolint:errcheck
				return fmt.Errorf("copy content to file: %w", err)
			}
			// close every file right away, deferring would keep all of them open until the end
			if err := fileToWrite.Close(); err != nil {
				return fmt.Errorf("write file: %w", err)
			}
		case tar.TypeSymlink:
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("symlink file: %w", err)
			}
		}
	}
	return nil
}

func (a *Archiver) decompressWithBinary(archivePath string, destinationDirectory string) error {
	if err := os.MkdirAll(destinationDirectory, 0755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	decompressTarArgs := []string{
		"--use-compress-program", "zstd -d",
		"-x",
		"-f", archivePath,
		"--directory", destinationDirectory,
	}

	return a.run("tar", decompressTarArgs)
}

func (a *Archiver) run(name string, args []string) error {
	cmd := command.NewFactory(a.envRepo).Create(name, args, nil)
	a.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

	out, err := cmd.RunAndReturnTrimmedCombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("command failed with exit status %d (%s):\n%w", exitErr.ExitCode(), cmd.PrintableCommandArgs(), errors.New(out))
		}
		return fmt.Errorf("executing command failed (%s): %w", cmd.PrintableCommandArgs(), err)
	}

	return nil
}

// IsEmptyDir reports whether path is a directory without any entries.
// Nonexistent paths and regular files are not empty directories.
func IsEmptyDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}

	dir, err := os.Open(path)
	if err != nil {
		return false
	}
	defer dir.Close() //nolint:errcheck

	_, err = dir.Readdirnames(1) // query only 1 child
	return errors.Is(err, io.EOF)
}

// IsDir ...
func IsDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
