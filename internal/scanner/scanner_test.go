package scanner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"anythingllm-sync/pkg/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func scannedPaths(files []models.DesiredFile) []string {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, filepath.Base(f.Path))
	}
	return paths
}

func TestScanIncludesSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.md", "hello")
	writeFile(t, dir, "data.csv", "a,b")
	writeFile(t, dir, filepath.Join("nested", "deep", "doc.txt"), "x")

	s := New([]string{dir}, nil, nil, zap.NewNop().Sugar())
	files, err := s.Scan()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"notes.md", "data.csv", "doc.txt"}, scannedPaths(files))
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path), "paths must be absolute: %s", f.Path)
		assert.NotZero(t, f.ModTime)
	}
}

func TestScanSkipsUnsupportedTypes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.md", "x")
	writeFile(t, dir, "photo.png", "x")
	writeFile(t, dir, "archive.zip", "x")
	writeFile(t, dir, "noext", "x")

	s := New([]string{dir}, nil, nil, zap.NewNop().Sugar())
	files, err := s.Scan()
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.md"}, scannedPaths(files))
}

func TestScanDirectoryExcludePrunesSubtree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.md", "x")
	writeFile(t, dir, filepath.Join(".git", "config.md"), "x")
	writeFile(t, dir, filepath.Join(".git", "objects", "readme.md"), "x")
	writeFile(t, dir, filepath.Join("vendor", "lib.md"), "x")

	s := New([]string{dir}, []string{".git", "vendor"}, nil, zap.NewNop().Sugar())
	files, err := s.Scan()
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.md"}, scannedPaths(files))
}

func TestScanFileExcludeMatchesName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "report.md", "x")
	writeFile(t, dir, "report-draft.md", "x")
	writeFile(t, dir, "summary.md", "x")

	s := New([]string{dir}, nil, []string{"draft"}, zap.NewNop().Sugar())
	files, err := s.Scan()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"report.md", "summary.md"}, scannedPaths(files))
}

func TestScanEmptyExcludeEntriesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.md", "x")

	// An empty pattern would otherwise match every path.
	s := New([]string{dir}, []string{""}, []string{""}, zap.NewNop().Sugar())
	files, err := s.Scan()
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.md"}, scannedPaths(files))
}

func TestScanMultipleRoots(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeFile(t, dirA, "a.md", "x")
	writeFile(t, dirB, "b.md", "x")

	s := New([]string{dirA, dirB}, nil, nil, zap.NewNop().Sugar())
	files, err := s.Scan()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.md", "b.md"}, scannedPaths(files))
}

func TestScanMissingRootFails(t *testing.T) {
	s := New([]string{filepath.Join(t.TempDir(), "does-not-exist")}, nil, nil, zap.NewNop().Sugar())
	_, err := s.Scan()
	assert.Error(t, err)
}

func TestScanModTimeReflectsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dated.md", "x")
	stamp := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, stamp, stamp))

	s := New([]string{dir}, nil, nil, zap.NewNop().Sugar())
	files, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, files, 1)

	assert.True(t, files[0].ModTime.Equal(stamp))
}
