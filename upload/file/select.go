package file

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

// Selector turns user provided path patterns into existing absolute paths.
// Patterns can contain "doublestar" globs such as `data/**/*.parquet`.
type Selector struct {
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
	logger       log.Logger
}

// NewSelector ...
func NewSelector(pathModifier pathutil.PathModifier, pathChecker pathutil.PathChecker, logger log.Logger) *Selector {
	return &Selector{
		pathModifier: pathModifier,
		pathChecker:  pathChecker,
		logger:       logger,
	}
}

// Evaluate expands the glob patterns and drops every path that doesn't exist.
// The order of the patterns is kept; a path matched twice is only returned once.
func (s *Selector) Evaluate(patterns []string) ([]string, error) {
	var expandedPaths []string
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !strings.Contains(pattern, "*") {
			expandedPaths = append(expandedPaths, pattern)
			continue
		}

		base, glob := doublestar.SplitPattern(pattern)
		absBase, err := s.pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), glob, doublestar.WithNoFollow())
		if err != nil {
			s.logger.Warnf("Error in path pattern '%s': %s", pattern, err)
			continue
		}
		if len(matches) == 0 {
			s.logger.Warnf("No match for path pattern: %s", pattern)
			continue
		}

		for _, match := range matches {
			expandedPaths = append(expandedPaths, filepath.Join(absBase, match))
		}
	}

	seen := map[string]bool{}
	var finalPaths []string
	for _, path := range expandedPaths {
		absPath, err := s.pathModifier.AbsPath(path)
		if err != nil {
			s.logger.Warnf("Failed to parse path %s, error: %s", path, err)
			continue
		}

		exists, err := s.pathChecker.IsPathExists(absPath)
		if err != nil {
			s.logger.Warnf("Failed to check path %s, error: %s", absPath, err)
		}
		if !exists {
			s.logger.Warnf("Upload path doesn't exist: %s", path)
			continue
		}

		if seen[absPath] {
			continue
		}
		seen[absPath] = true
		finalPaths = append(finalPaths, absPath)
	}

	return finalPaths, nil
}
