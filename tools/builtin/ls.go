package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"agentcore/tools"
)

const lsMaxEntries = 500

// LsParams is the typed input for the ls tool.
type LsParams struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list, relative to the working directory; defaults to the working directory itself"`
}

// Ls builds the ls tool definition rooted at workDir. Listing is
// case-insensitively sorted with a trailing slash on directories and a
// 500-entry cap, per §4.5.
func Ls(workDir string) tools.Definition {
	return tools.Definition{
		Name:        "ls",
		Label:       "List directory",
		Description: "Lists a directory's immediate entries, case-insensitively sorted, directories marked with a trailing slash.",
		Schema:      tools.SchemaFor(&LsParams{}),
		Execute: func(ctx context.Context, callID string, args json.RawMessage, onUpdate tools.OnUpdate) tools.Result {
			var p LsParams
			if err := json.Unmarshal(args, &p); err != nil {
				return tools.ErrorResult(fmt.Errorf("invalid ls arguments: %w", err))
			}
			return doLs(workDir, p)
		},
	}
}

func doLs(workDir string, p LsParams) tools.Result {
	root := workDir
	if p.Path != "" {
		resolved, err := resolveInWorkdir(workDir, p.Path)
		if err != nil {
			return tools.ErrorResult(err)
		}
		root = resolved
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return tools.ErrorResult(fmt.Errorf("failed to list %s: %w", p.Path, err))
	}

	sets := collectIgnores(root)
	var names []string
	for _, e := range entries {
		full := filepath.Join(root, e.Name())
		if e.Name() == ".git" {
			continue
		}
		if isIgnored(sets, full, e.IsDir()) {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	truncated := false
	if len(names) > lsMaxEntries {
		names = names[:lsMaxEntries]
		truncated = true
	}

	if len(names) == 0 {
		return tools.Result{Text: "(empty directory)"}
	}
	text := strings.Join(names, "\n")
	if truncated {
		text += fmt.Sprintf("\n[Truncated at %d entries.]", lsMaxEntries)
	}
	return tools.Result{Text: text}
}
