package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/types"
)

func TestAccumulatorBuildsTextBlockFromDeltas(t *testing.T) {
	t.Parallel()
	a := NewAccumulator()
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockStarted, Index: 0, ContentBlock: &types.ContentBlock{Type: types.ContentBlockTypeText}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeTextDelta, Index: 0, Delta: &types.Delta{Text: "hel"}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeTextDelta, Index: 0, Delta: &types.Delta{Text: "lo"}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockDone, Index: 0}))

	msg := a.Message(types.RoleAssistant)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "hello", msg.Content[0].Text)
}

func TestAccumulatorAssemblesToolUseArgumentsFromFragments(t *testing.T) {
	t.Parallel()
	a := NewAccumulator()
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockStarted, Index: 0, ContentBlock: &types.ContentBlock{Type: types.ContentBlockTypeToolUse, ToolUse: &types.ToolUseBlock{Id: "c1", Name: "echo"}}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeTextDelta, Index: 0, Delta: &types.Delta{PartialArguments: `{"a":`}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeTextDelta, Index: 0, Delta: &types.Delta{PartialArguments: `1}`}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockDone, Index: 0}))

	msg := a.Message(types.RoleAssistant)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, map[string]any{"a": float64(1)}, msg.Content[0].ToolUse.Arguments)
}

func TestAccumulatorBlockDoneErrorsOnMalformedToolArguments(t *testing.T) {
	t.Parallel()
	a := NewAccumulator()
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockStarted, Index: 0, ContentBlock: &types.ContentBlock{Type: types.ContentBlockTypeToolUse, ToolUse: &types.ToolUseBlock{}}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeTextDelta, Index: 0, Delta: &types.Delta{PartialArguments: `not json`}}))
	err := a.Apply(types.Event{Type: types.EventTypeBlockDone, Index: 0})
	assert.Error(t, err)
}

func TestAccumulatorSignatureDeltaBufferedBeforeBlockStarted(t *testing.T) {
	t.Parallel()
	a := NewAccumulator()
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeSignatureDelta, Index: 0, Delta: &types.Delta{Signature: []byte("sig")}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockStarted, Index: 0, ContentBlock: &types.ContentBlock{Type: types.ContentBlockTypeReasoning}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockDone, Index: 0}))

	msg := a.Message(types.RoleAssistant)
	require.NotNil(t, msg.Content[0].Reasoning)
	assert.Equal(t, []byte("sig"), msg.Content[0].Reasoning.Signature)
}

func TestAccumulatorSummaryTextDeltaAccumulatesOnReasoningBlock(t *testing.T) {
	t.Parallel()
	a := NewAccumulator()
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockStarted, Index: 0, ContentBlock: &types.ContentBlock{Type: types.ContentBlockTypeReasoning}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeSummaryTextDelta, Index: 0, Delta: &types.Delta{SummaryText: "thinking "}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeSummaryTextDelta, Index: 0, Delta: &types.Delta{SummaryText: "more"}}))

	msg := a.Message(types.RoleAssistant)
	assert.Equal(t, "thinking more", msg.Content[0].Reasoning.Summary)
}

func TestAccumulatorBlockDoneMergesFinalAuthoritativeFields(t *testing.T) {
	t.Parallel()
	a := NewAccumulator()
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockStarted, Index: 0, ContentBlock: &types.ContentBlock{Type: types.ContentBlockTypeReasoning, Reasoning: &types.ReasoningBlock{}}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockDone, Index: 0, ContentBlock: &types.ContentBlock{Reasoning: &types.ReasoningBlock{Text: "full reasoning"}}}))

	msg := a.Message(types.RoleAssistant)
	assert.Equal(t, "full reasoning", msg.Content[0].Reasoning.Text)
}

func TestAccumulatorErrorsOnTextDeltaWithNoOpenBlock(t *testing.T) {
	t.Parallel()
	a := NewAccumulator()
	err := a.Apply(types.Event{Type: types.EventTypeTextDelta, Index: 0, Delta: &types.Delta{Text: "x"}})
	assert.Error(t, err)
}

func TestAccumulatorErrorsOnBlockDoneWithNoOpenBlock(t *testing.T) {
	t.Parallel()
	a := NewAccumulator()
	err := a.Apply(types.Event{Type: types.EventTypeBlockDone, Index: 0})
	assert.Error(t, err)
}

func TestAccumulatorErrorsOnUnknownEventType(t *testing.T) {
	t.Parallel()
	a := NewAccumulator()
	err := a.Apply(types.Event{Type: "bogus", Index: 0})
	assert.Error(t, err)
}

func TestAccumulatorMessagePreservesBlockOrder(t *testing.T) {
	t.Parallel()
	a := NewAccumulator()
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockStarted, Index: 1, ContentBlock: &types.ContentBlock{Type: types.ContentBlockTypeText, Text: "second"}}))
	require.NoError(t, a.Apply(types.Event{Type: types.EventTypeBlockStarted, Index: 0, ContentBlock: &types.ContentBlock{Type: types.ContentBlockTypeText, Text: "first"}}))

	msg := a.Message(types.RoleAssistant)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, "second", msg.Content[0].Text)
	assert.Equal(t, "first", msg.Content[1].Text)
}
