package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"agentcore/tools"
)

// WriteParams is the typed input for the write tool.
type WriteParams struct {
	Path    string `json:"path" jsonschema:"required,description=Path to write, relative to the working directory"`
	Content string `json:"content" jsonschema:"required,description=Full file content to write"`
}

// Write builds the write tool definition rooted at workDir. It creates
// parent directories as needed and writes content verbatim, per §4.5.
func Write(workDir string) tools.Definition {
	return tools.Definition{
		Name:        "write",
		Label:       "Write file",
		Description: "Creates or overwrites a file with the given content, creating parent directories as needed.",
		Schema:      tools.SchemaFor(&WriteParams{}),
		Execute: func(ctx context.Context, callID string, args json.RawMessage, onUpdate tools.OnUpdate) tools.Result {
			var p WriteParams
			if err := json.Unmarshal(args, &p); err != nil {
				return tools.ErrorResult(fmt.Errorf("invalid write arguments: %w", err))
			}
			resolved, err := resolveInWorkdir(workDir, p.Path)
			if err != nil {
				return tools.ErrorResult(err)
			}
			if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
				return tools.ErrorResult(fmt.Errorf("failed to create parent directories for %s: %w", p.Path, err))
			}
			if err := os.WriteFile(resolved, []byte(p.Content), 0644); err != nil {
				return tools.ErrorResult(fmt.Errorf("failed to write %s: %w", p.Path, err))
			}
			return tools.Result{Text: fmt.Sprintf("Wrote %d bytes to %s", len(p.Content), p.Path)}
		},
	}
}
