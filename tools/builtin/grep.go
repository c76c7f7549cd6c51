package builtin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"agentcore/tools"
)

const (
	grepMaxMatches   = 100
	grepMaxBytes     = 50 * 1024
	grepMaxLineChars = 500
)

// GrepParams is the typed input for the grep tool.
type GrepParams struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Regular expression to search for"`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory to search, relative to the working directory; defaults to the whole tree"`
	Glob    string `json:"glob,omitempty" jsonschema:"description=Only search files matching this doublestar glob pattern"`
}

// Grep builds the grep tool definition rooted at workDir.
func Grep(workDir string) tools.Definition {
	return tools.Definition{
		Name:        "grep",
		Label:       "Search file contents",
		Description: "Searches file contents for a regular expression, skipping .gitignore'd paths, capped at 100 matches or 50KiB.",
		Schema:      tools.SchemaFor(&GrepParams{}),
		Execute: func(ctx context.Context, callID string, args json.RawMessage, onUpdate tools.OnUpdate) tools.Result {
			var p GrepParams
			if err := json.Unmarshal(args, &p); err != nil {
				return tools.ErrorResult(fmt.Errorf("invalid grep arguments: %w", err))
			}
			return doGrep(workDir, p)
		},
	}
}

func doGrep(workDir string, p GrepParams) tools.Result {
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return tools.ErrorResult(fmt.Errorf("invalid pattern: %w", err))
	}

	root := workDir
	if p.Path != "" {
		resolved, err := resolveInWorkdir(workDir, p.Path)
		if err != nil {
			return tools.ErrorResult(err)
		}
		root = resolved
	}

	var sb strings.Builder
	matches := 0
	written := 0
	truncated := false

	err = walkDir(root, func(path string, entry fs.DirEntry) error {
		if truncated || matches >= grepMaxMatches {
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if p.Glob != "" {
			rel, relErr := filepath.Rel(workDir, path)
			if relErr != nil {
				return nil
			}
			if ok, _ := matchGlob(p.Glob, rel); !ok {
				return nil
			}
		}

		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			if matches >= grepMaxMatches {
				truncated = true
				break
			}
			line := scanner.Text()
			if !re.MatchString(line) {
				continue
			}
			if len(line) > grepMaxLineChars {
				line = line[:grepMaxLineChars] + "…[truncated]"
			}
			rel, _ := filepath.Rel(workDir, path)
			entryText := fmt.Sprintf("%s:%d:%s\n", rel, lineNum, line)
			if written+len(entryText) > grepMaxBytes {
				truncated = true
				break
			}
			sb.WriteString(entryText)
			written += len(entryText)
			matches++
		}
		return nil
	})
	if err != nil {
		return tools.ErrorResult(fmt.Errorf("grep failed: %w", err))
	}

	text := sb.String()
	if matches == 0 {
		text = "No matches found."
	} else if truncated {
		text += fmt.Sprintf("\n[Truncated at %d matches or %d bytes.]", grepMaxMatches, grepMaxBytes)
	}
	return tools.Result{Text: text}
}
