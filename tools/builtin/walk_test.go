package builtin

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkDirSkipsDotGit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "objects", "x"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	var visited []string
	err := walkDir(dir, func(path string, entry fs.DirEntry) error {
		rel, _ := filepath.Rel(dir, path)
		visited = append(visited, rel)
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, visited, "a.txt")
	for _, v := range visited {
		assert.NotContains(t, v, ".git")
	}
}

func TestWalkDirHonorsGitignore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("ignored.txt\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.txt"), []byte("x"), 0644))

	var visited []string
	err := walkDir(dir, func(path string, entry fs.DirEntry) error {
		rel, _ := filepath.Rel(dir, path)
		visited = append(visited, rel)
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, visited, "kept.txt")
	assert.NotContains(t, visited, "ignored.txt")
}

func TestIsIgnoredFalseWhenNoIgnoreSets(t *testing.T) {
	t.Parallel()
	assert.False(t, isIgnored(nil, "/tmp/whatever", false))
}
