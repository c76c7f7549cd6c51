package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestReadReturnsWholeSmallFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "line1\nline2\nline3\n")

	def := Read(dir)
	args, err := json.Marshal(ReadParams{Path: "a.txt"})
	require.NoError(t, err)

	result := def.Execute(context.Background(), "call-1", args, nil)
	require.False(t, result.IsError)
	assert.Equal(t, "line1\nline2\nline3\n", result.Text)
}

func TestReadHonorsOffsetAndLimit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "l1\nl2\nl3\nl4\nl5\n")

	result := doRead(dir, ReadParams{Path: "a.txt", Offset: 2, Limit: 2})
	require.False(t, result.IsError)
	assert.Contains(t, result.Text, "l2\nl3\n")
	assert.Contains(t, result.Text, "Showing lines 2")
}

func TestReadReportsNoLinesPastEOF(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "l1\nl2\n")

	result := doRead(dir, ReadParams{Path: "a.txt", Offset: 10})
	require.False(t, result.IsError)
	assert.Contains(t, result.Text, "No lines at or after")
}

func TestReadRejectsPathOutsideWorkdir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	def := Read(dir)
	args, err := json.Marshal(ReadParams{Path: "../outside.txt"})
	require.NoError(t, err)

	result := def.Execute(context.Background(), "call-1", args, nil)
	assert.True(t, result.IsError)
}

func TestReadReturnsErrorForMissingFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	def := Read(dir)
	args, err := json.Marshal(ReadParams{Path: "missing.txt"})
	require.NoError(t, err)

	result := def.Execute(context.Background(), "call-1", args, nil)
	assert.True(t, result.IsError)
}

func TestReadDetectsImageAndReturnsDataURL(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// minimal valid 1x1 PNG
	png := []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
		0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
		0x42, 0x60, 0x82,
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), png, 0644))

	result := doRead(dir, ReadParams{Path: "a.png"})
	require.False(t, result.IsError)
	assert.True(t, strings.HasPrefix(result.Text, "data:image/"))
}

func TestReadTruncatesLongFilesAndReportsContinuation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		b.WriteString("0123456789\n")
	}
	writeTestFile(t, dir, "big.txt", b.String())

	result := doRead(dir, ReadParams{Path: "big.txt", MaxBytes: 100})
	require.False(t, result.IsError)
	assert.Contains(t, result.Text, "Showing lines")
}
