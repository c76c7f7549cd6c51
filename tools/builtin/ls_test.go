package builtin

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoLsReportsEmptyDirectory(t *testing.T) {
	t.Parallel()
	result := doLs(t.TempDir(), LsParams{})
	assert.False(t, result.IsError)
	assert.Equal(t, "(empty directory)", result.Text)
}

func TestDoLsSortsCaseInsensitivelyAndMarksDirectories(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Bravo"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.txt"), []byte("x"), 0644))

	result := doLs(dir, LsParams{})
	assert.False(t, result.IsError)
	assert.Equal(t, "alpha.txt\nBravo/", result.Text)
}

func TestDoLsSkipsDotGitDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	result := doLs(dir, LsParams{})
	assert.False(t, result.IsError)
	assert.Equal(t, "a.txt", result.Text)
}

func TestDoLsRejectsPathOutsideWorkdir(t *testing.T) {
	t.Parallel()
	result := doLs(t.TempDir(), LsParams{Path: "../escape"})
	assert.True(t, result.IsError)
}

func TestDoLsTruncatesAtMaxEntries(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for i := 0; i < lsMaxEntries+5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%04d.txt", i)), []byte("x"), 0644))
	}
	result := doLs(dir, LsParams{})
	assert.False(t, result.IsError)
	assert.Contains(t, result.Text, "[Truncated at")
}
