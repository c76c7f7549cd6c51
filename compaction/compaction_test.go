package compaction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/types"
)

func textMessage(role types.Role, text string) types.Message {
	return types.Message{Role: role, Content: []types.ContentBlock{types.Text(text)}}
}

func TestTokenCounterFallsBackWhenModelUnknown(t *testing.T) {
	t.Parallel()
	tc := NewTokenCounter("some-nonexistent-model-xyz")
	n := tc.Count("hello world")
	assert.Greater(t, n, 0)
}

func TestCountMessagesGrowsWithContent(t *testing.T) {
	t.Parallel()
	tc := NewTokenCounter("gpt-4")
	short := []types.Message{textMessage(types.RoleUser, "hi")}
	long := []types.Message{textMessage(types.RoleUser, strings.Repeat("word ", 200))}
	assert.Greater(t, tc.CountMessages(long), tc.CountMessages(short))
}

func TestShouldCompactRespectsTriggerRatio(t *testing.T) {
	t.Parallel()
	model := types.Model{ID: "gpt-4", Limit: types.Limit{Context: 1000}}

	small := []types.Message{textMessage(types.RoleUser, "hi")}
	assert.False(t, ShouldCompact(small, model, Options{}))

	big := []types.Message{textMessage(types.RoleUser, strings.Repeat("word ", 2000))}
	assert.True(t, ShouldCompact(big, model, Options{}))
}

func TestShouldCompactWithoutContextLimitNeverTriggers(t *testing.T) {
	t.Parallel()
	model := types.Model{ID: "gpt-4"}
	big := []types.Message{textMessage(types.RoleUser, strings.Repeat("word ", 5000))}
	assert.False(t, ShouldCompact(big, model, Options{}))
}

func TestFindCutPointNeverSplitsToolUseToolResultPair(t *testing.T) {
	t.Parallel()
	model := types.Model{ID: "gpt-4", Limit: types.Limit{Context: 200}}

	// The tool_use message carries a large argument so that a naive
	// oldest-to-newest budget walk would land the cut right on the
	// following tool_result message; FindCutPoint must pull the cut
	// back to include the tool_use message too.
	messages := []types.Message{
		textMessage(types.RoleUser, "start"),
		{Role: types.RoleAssistant, Content: []types.ContentBlock{
			types.ToolUse("call-1", "read", map[string]any{"path": "a.go", "content": strings.Repeat("word ", 250)}),
		}},
		{Role: types.RoleUser, Content: []types.ContentBlock{types.ToolResult("call-1", "ok", false)}},
		textMessage(types.RoleAssistant, "done"),
	}

	cut := FindCutPoint(messages, model, Options{})
	require.Equal(t, 1, cut.Index)
	assert.False(t, startsWithToolResult(messages, cut.Index))
}

func TestFindCutPointKeepsEverythingWithinBudget(t *testing.T) {
	t.Parallel()
	model := types.Model{ID: "gpt-4", Limit: types.Limit{Context: 1_000_000}}
	messages := []types.Message{
		textMessage(types.RoleUser, "hello"),
		textMessage(types.RoleAssistant, "hi there"),
	}
	cut := FindCutPoint(messages, model, Options{})
	assert.Equal(t, 0, cut.Index)
}

func TestCollectFileOpsDedupesToLastWritePerPath(t *testing.T) {
	t.Parallel()
	messages := []types.Message{
		{Role: types.RoleAssistant, Content: []types.ContentBlock{types.ToolUse("c1", "read", map[string]any{"path": "a.go"})}},
		{Role: types.RoleAssistant, Content: []types.ContentBlock{types.ToolUse("c2", "write", map[string]any{"path": "a.go"})}},
		{Role: types.RoleAssistant, Content: []types.ContentBlock{types.ToolUse("c3", "edit", map[string]any{"path": "a.go"})}},
		{Role: types.RoleAssistant, Content: []types.ContentBlock{types.ToolUse("c4", "read", map[string]any{"path": "b.go"})}},
	}

	ops := CollectFileOps(messages, len(messages))
	require.Len(t, ops, 2)

	byPath := map[string]FileOp{}
	for _, op := range ops {
		byPath[op.Path] = op
	}
	assert.Equal(t, "edit", byPath["a.go"].Operation)
	assert.Equal(t, "read", byPath["b.go"].Operation)
}

func TestCollectFileOpsDropsReadsOfLaterWrittenFiles(t *testing.T) {
	t.Parallel()
	messages := []types.Message{
		{Role: types.RoleAssistant, Content: []types.ContentBlock{types.ToolUse("c1", "read", map[string]any{"path": "a.go"})}},
		{Role: types.RoleAssistant, Content: []types.ContentBlock{types.ToolUse("c2", "write", map[string]any{"path": "a.go"})}},
	}
	ops := CollectFileOps(messages, len(messages))
	require.Len(t, ops, 1)
	assert.Equal(t, "write", ops[0].Operation)
}
