package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageToolCallsReturnsOnlyToolUseBlocksInOrder(t *testing.T) {
	t.Parallel()
	m := Message{Content: []ContentBlock{
		Text("hi"),
		ToolUse("c1", "echo", map[string]any{"a": 1}),
		Text("more"),
		ToolUse("c2", "ls", nil),
	}}
	calls := m.ToolCalls()
	assert.Len(t, calls, 2)
	assert.Equal(t, "c1", calls[0].Id)
	assert.Equal(t, "c2", calls[1].Id)
}

func TestMessageToolResultsReturnsOnlyToolResultBlocks(t *testing.T) {
	t.Parallel()
	m := Message{Content: []ContentBlock{
		ToolResult("c1", "ok", false),
		Text("narration"),
		ToolResult("c2", "failed", true),
	}}
	results := m.ToolResults()
	assert.Len(t, results, 2)
	assert.True(t, results[1].IsError)
}

func TestMessageTextContentConcatenatesOnlyTextBlocks(t *testing.T) {
	t.Parallel()
	m := Message{Content: []ContentBlock{
		Text("hello "),
		ToolUse("c1", "echo", nil),
		Text("world"),
	}}
	assert.Equal(t, "hello world", m.TextContent())
}
