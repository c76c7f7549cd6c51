// Package builtin implements the core tools the Agent Loop always makes
// available (§4.5): read, write, edit, bash, grep, find, ls.
//
// read is grounded on persisted_ai/read_image_tool.go: MIME-sniffing via
// stdlib http.DetectContentType, the 20MB/long-edge clamp routed through
// imaging.PrepareForLimits, and validateImagePath's workdir-confinement
// check, generalized here to cover text files too.
package builtin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"agentcore/imaging"
	"agentcore/tools"
)

const (
	defaultReadMaxBytes = 30 * 1024 // 30 KiB
	readSniffLen        = 4100
	readImageMaxBytes   = 20 * 1024 * 1024
	readImageMaxLongEdge = 1568
)

// ReadParams is the typed input for the read tool.
type ReadParams struct {
	Path     string `json:"path" jsonschema:"required,description=Path to the file to read, relative to the working directory"`
	Offset   int    `json:"offset,omitempty" jsonschema:"description=1-based line number to start reading from"`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to return"`
	MaxBytes int    `json:"maxBytes,omitempty" jsonschema:"description=Maximum bytes to read before truncating, default 30KiB"`
}

// Read builds the read tool definition rooted at workDir.
func Read(workDir string) tools.Definition {
	return tools.Definition{
		Name:        "read",
		Label:       "Read file",
		Description: "Reads a text or image file. Text is read lazily with head-truncation; images are returned as a data URL.",
		Schema:      tools.SchemaFor(&ReadParams{}),
		Execute: func(ctx context.Context, callID string, args json.RawMessage, onUpdate tools.OnUpdate) tools.Result {
			var p ReadParams
			if err := json.Unmarshal(args, &p); err != nil {
				return tools.ErrorResult(fmt.Errorf("invalid read arguments: %w", err))
			}
			return doRead(workDir, p)
		},
	}
}

func doRead(workDir string, p ReadParams) tools.Result {
	resolved, err := resolveInWorkdir(workDir, p.Path)
	if err != nil {
		return tools.ErrorResult(err)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return tools.ErrorResult(fmt.Errorf("failed to open %s: %w", p.Path, err))
	}
	defer f.Close()

	sniff := make([]byte, readSniffLen)
	n, _ := f.Read(sniff)
	sniff = sniff[:n]
	mimeType := http.DetectContentType(sniff)

	if strings.HasPrefix(mimeType, "image/") {
		raw, err := os.ReadFile(resolved)
		if err != nil {
			return tools.ErrorResult(fmt.Errorf("failed to read image %s: %w", p.Path, err))
		}
		result, err := imaging.PrepareForLimits(raw, readImageMaxBytes, readImageMaxLongEdge)
		if err != nil {
			return tools.ErrorResult(fmt.Errorf("failed to prepare image %s: %w", p.Path, err))
		}
		return tools.Result{Text: result.DataURL()}
	}

	if _, err := f.Seek(0, 0); err != nil {
		return tools.ErrorResult(fmt.Errorf("failed to seek %s: %w", p.Path, err))
	}

	maxBytes := p.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultReadMaxBytes
	}
	offset := p.Offset
	if offset < 1 {
		offset = 1
	}

	return readText(f, p.Path, offset, p.Limit, maxBytes)
}

func readText(f *os.File, path string, offset, limit, maxBytes int) tools.Result {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBytes+1024)

	var (
		out        strings.Builder
		lineNum    int
		shown      int
		totalBytes int
		truncated  bool
		lastLine   int
		totalLines int
	)

	for scanner.Scan() {
		lineNum++
		totalLines = lineNum
		if lineNum < offset {
			continue
		}
		line := scanner.Text()
		if len(line) > maxBytes {
			return tools.Result{
				Text: fmt.Sprintf(
					"[Line %d of %s is %d bytes, exceeding the %d byte limit. Use `sed -n '%dp' %s | head -c %d` to view a prefix of it.]",
					lineNum, path, len(line), maxBytes, lineNum, path, maxBytes,
				),
			}
		}
		if limit > 0 && shown >= limit {
			truncated = true
			break
		}
		if totalBytes+len(line)+1 > maxBytes {
			truncated = true
			break
		}
		out.WriteString(line)
		out.WriteByte('\n')
		totalBytes += len(line) + 1
		shown++
		lastLine = lineNum
	}
	for scanner.Scan() {
		totalLines++
	}
	if err := scanner.Err(); err != nil {
		return tools.ErrorResult(fmt.Errorf("failed to read %s: %w", path, err))
	}

	if shown == 0 && offset > 1 {
		return tools.Result{Text: fmt.Sprintf("[No lines at or after %d in %s; file has %d lines.]", offset, path, totalLines)}
	}

	text := out.String()
	if truncated {
		text += fmt.Sprintf("\n[Showing lines %d–%d of %d. Use offset=%d to continue.]", offset, lastLine, totalLines, lastLine+1)
	}
	return tools.Result{Text: text}
}

// resolveInWorkdir confines path to workDir, rejecting absolute paths and
// ".." traversal, the same guard validateImagePath applies.
func resolveInWorkdir(workDir, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", path)
	}
	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("path traversal with '..' is not allowed: %s", path)
		}
	}
	resolved := filepath.Join(workDir, cleaned)

	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	absResolved, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if absResolved != absWorkDir && !strings.HasPrefix(absResolved, absWorkDir+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path %s is not under working directory %s", absResolved, absWorkDir)
	}
	return resolved, nil
}
