package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestEditExactMatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTempFile(t, dir, "main.go", "package main\n\nfunc oldFunction() {\n\treturn\n}\n")

	def := Edit(dir)
	args, err := json.Marshal(EditParams{Path: "main.go", OldText: "func oldFunction() {", NewText: "func newFunction() {"})
	require.NoError(t, err)

	result := def.Execute(context.Background(), "call-1", args, nil)
	require.False(t, result.IsError, result.Text)

	out, err := os.ReadFile(filepath.Join(dir, "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "func newFunction() {")
	assert.NotContains(t, string(out), "oldFunction")
}

func TestEditFuzzyWhitespaceMatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTempFile(t, dir, "main.go", "package main\n\nfunc target()   {\n\treturn\n}\n")

	def := Edit(dir)
	args, err := json.Marshal(EditParams{Path: "main.go", OldText: "func target() {", NewText: "func renamed() {"})
	require.NoError(t, err)

	result := def.Execute(context.Background(), "call-1", args, nil)
	require.False(t, result.IsError, result.Text)

	out, err := os.ReadFile(filepath.Join(dir, "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "func renamed() {")
}

func TestEditNoMatchReturnsError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTempFile(t, dir, "main.go", "package main\n")

	def := Edit(dir)
	args, err := json.Marshal(EditParams{Path: "main.go", OldText: "this text is nowhere close to present", NewText: "x"})
	require.NoError(t, err)

	result := def.Execute(context.Background(), "call-1", args, nil)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Text, "no")
}

func TestEditAmbiguousMatchReturnsAllCandidates(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTempFile(t, dir, "main.go", "if x {\n\tdoThing()\n}\nif x {\n\tdoThing()\n}\n")

	def := Edit(dir)
	args, err := json.Marshal(EditParams{Path: "main.go", OldText: "if x {\n\tdoThing()\n}", NewText: "if y {\n\tdoThing()\n}"})
	require.NoError(t, err)

	result := def.Execute(context.Background(), "call-1", args, nil)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Text, "2 locations")
}

func TestEditPreservesCRLFLineEndings(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTempFile(t, dir, "main.go", "line one\r\nline two\r\nline three\r\n")

	def := Edit(dir)
	args, err := json.Marshal(EditParams{Path: "main.go", OldText: "line two", NewText: "line replaced"})
	require.NoError(t, err)

	result := def.Execute(context.Background(), "call-1", args, nil)
	require.False(t, result.IsError, result.Text)

	out, err := os.ReadFile(filepath.Join(dir, "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "line replaced\r\n")
	assert.Contains(t, string(out), "line one\r\n")
}
