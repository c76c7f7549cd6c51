package builtin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchGlobMatchesBaseNameAcrossSubdirectories(t *testing.T) {
	t.Parallel()
	ok, err := matchGlob("*_test.go", "pkg/sub/foo_test.go")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchGlobMatchesFullRelativePath(t *testing.T) {
	t.Parallel()
	ok, err := matchGlob("pkg/**/*.go", "pkg/sub/foo.go")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchGlobNoMatchReturnsFalse(t *testing.T) {
	t.Parallel()
	ok, err := matchGlob("*.py", "pkg/foo.go")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDoFindRejectsEmptyGlob(t *testing.T) {
	t.Parallel()
	result := doFind(t.TempDir(), FindParams{})
	assert.True(t, result.IsError)
}

func TestDoFindReturnsNoMatchesMessage(t *testing.T) {
	t.Parallel()
	result := doFind(t.TempDir(), FindParams{Glob: "*.go"})
	assert.False(t, result.IsError)
	assert.Equal(t, "No files matched.", result.Text)
}

func TestDoFindListsMatchingFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "a.go"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0644))

	result := doFind(dir, FindParams{Glob: "*.go"})
	assert.False(t, result.IsError)
	assert.Contains(t, result.Text, filepath.Join("sub", "a.go"))
	assert.NotContains(t, result.Text, "b.txt")
}

func TestDoFindRejectsPathOutsideWorkdir(t *testing.T) {
	t.Parallel()
	result := doFind(t.TempDir(), FindParams{Glob: "*.go", Path: "../escape"})
	assert.True(t, result.IsError)
}
