// find and matchGlob are grounded on dev/search_repository.go's use of
// doublestar.PathMatch against both the full relative path and the base
// filename, so a bare "*.go"-style pattern still matches files in
// subdirectories the way a shell glob would.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"agentcore/tools"
)

const (
	findMaxEntries = 1000
	findMaxBytes   = 50 * 1024
)

// FindParams is the typed input for the find tool.
type FindParams struct {
	Glob string `json:"glob" jsonschema:"required,description=Doublestar glob pattern, e.g. **/*_test.go"`
	Path string `json:"path,omitempty" jsonschema:"description=Directory to search, relative to the working directory; defaults to the whole tree"`
}

// Find builds the find tool definition rooted at workDir.
func Find(workDir string) tools.Definition {
	return tools.Definition{
		Name:        "find",
		Label:       "Find files",
		Description: "Lists files matching a glob pattern, skipping .gitignore'd paths, capped at 1000 entries or 50KiB.",
		Schema:      tools.SchemaFor(&FindParams{}),
		Execute: func(ctx context.Context, callID string, args json.RawMessage, onUpdate tools.OnUpdate) tools.Result {
			var p FindParams
			if err := json.Unmarshal(args, &p); err != nil {
				return tools.ErrorResult(fmt.Errorf("invalid find arguments: %w", err))
			}
			return doFind(workDir, p)
		},
	}
}

func matchGlob(pattern, relPath string) (bool, error) {
	if matched, err := doublestar.PathMatch(pattern, relPath); err == nil && matched {
		return true, nil
	} else if err != nil {
		return false, err
	}
	return doublestar.PathMatch(pattern, filepath.Base(relPath))
}

func doFind(workDir string, p FindParams) tools.Result {
	if p.Glob == "" {
		return tools.ErrorResult(fmt.Errorf("glob must be provided"))
	}

	root := workDir
	if p.Path != "" {
		resolved, err := resolveInWorkdir(workDir, p.Path)
		if err != nil {
			return tools.ErrorResult(err)
		}
		root = resolved
	}

	var results []string
	written := 0
	truncated := false

	err := walkDir(root, func(path string, entry fs.DirEntry) error {
		if truncated || len(results) >= findMaxEntries {
			truncated = len(results) >= findMaxEntries
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(workDir, path)
		if relErr != nil {
			return nil
		}
		matched, matchErr := matchGlob(p.Glob, rel)
		if matchErr != nil {
			return matchErr
		}
		if !matched {
			return nil
		}
		if written+len(rel)+1 > findMaxBytes {
			truncated = true
			return nil
		}
		results = append(results, rel)
		written += len(rel) + 1
		return nil
	})
	if err != nil {
		return tools.ErrorResult(fmt.Errorf("find failed: %w", err))
	}

	if len(results) == 0 {
		return tools.Result{Text: "No files matched."}
	}
	text := strings.Join(results, "\n")
	if truncated {
		text += fmt.Sprintf("\n[Truncated at %d entries or %d bytes.]", findMaxEntries, findMaxBytes)
	}
	return tools.Result{Text: text}
}
