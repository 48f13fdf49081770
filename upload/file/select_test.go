package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_Evaluate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shards", "nested"), 0o755))
	first := writeFile(t, filepath.Join(dir, "shards"), "part-0.parquet", "0")
	second := writeFile(t, filepath.Join(dir, "shards", "nested"), "part-1.parquet", "1")
	readme := writeFile(t, dir, "README.md", "readme")

	selector := NewSelector(pathutil.NewPathModifier(), pathutil.NewPathChecker(), log.NewLogger())

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{
			name:     "plain path",
			patterns: []string{readme},
			want:     []string{readme},
		},
		{
			name:     "doublestar pattern",
			patterns: []string{filepath.Join(dir, "shards", "**", "*.parquet")},
			want:     []string{second, first},
		},
		{
			name:     "missing path is dropped",
			patterns: []string{filepath.Join(dir, "missing.csv"), readme},
			want:     []string{readme},
		},
		{
			name:     "duplicates and blanks",
			patterns: []string{readme, "  ", readme},
			want:     []string{readme},
		},
		{
			name:     "pattern without match",
			patterns: []string{filepath.Join(dir, "*.csv")},
			want:     nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selector.Evaluate(tt.patterns)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}
