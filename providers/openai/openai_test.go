package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/types"
)

func TestCleanToolNameStripsKnownPrefixes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "echo", cleanToolName("tools.echo", nil))
	assert.Equal(t, "echo", cleanToolName("functions.echo", nil))
	assert.Equal(t, "echo", cleanToolName("echo", nil))
}

func TestCleanToolNamePrefersDialectPrefixes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "echo", cleanToolName("custom.echo", []string{"custom."}))
}

func TestMapFinishReason(t *testing.T) {
	t.Parallel()
	assert.Equal(t, types.StopReasonToolUse, mapFinishReason("tool_calls"))
	assert.Equal(t, types.StopReasonMaxTokens, mapFinishReason("length"))
	assert.Equal(t, types.StopReasonRefusal, mapFinishReason("content_filter"))
	assert.Equal(t, types.StopReasonEndTurn, mapFinishReason("stop"))
}

func TestFilterToolsByName(t *testing.T) {
	t.Parallel()
	tools := []types.Tool{{Name: "a"}, {Name: "b"}}
	filtered := filterToolsByName(tools, "b")
	require.Len(t, filtered, 1)
	assert.Equal(t, "b", filtered[0].Name)

	assert.Len(t, filterToolsByName(tools, "missing"), 2)
}

func TestToolsToParams(t *testing.T) {
	t.Parallel()
	tools := []types.Tool{{Name: "echo", Description: "echoes", Parameters: []byte(`{"type":"object"}`)}}
	params := toolsToParams(tools)
	require.Len(t, params, 1)
	require.NotNil(t, params[0].OfFunction)
	assert.Equal(t, "echo", params[0].OfFunction.Function.Name)
}

func TestToolChoiceToParam(t *testing.T) {
	t.Parallel()

	none := toolChoiceToParam(types.ToolChoice{Mode: types.ToolChoiceNone})
	require.True(t, none.OfAuto.Valid())
	assert.Equal(t, "none", none.OfAuto.Value)

	any := toolChoiceToParam(types.ToolChoice{Mode: types.ToolChoiceAny})
	assert.Equal(t, "required", any.OfAuto.Value)

	auto := toolChoiceToParam(types.ToolChoice{Mode: types.ToolChoiceAuto})
	assert.Equal(t, "auto", auto.OfAuto.Value)

	named := toolChoiceToParam(types.ToolChoice{Mode: types.ToolChoiceTool, Name: "echo"})
	require.NotNil(t, named.OfFunctionToolChoice)
	assert.Equal(t, "echo", named.OfFunctionToolChoice.Function.Name)
}

func TestSystemMessageParamUsesDeveloperRoleWhenSupported(t *testing.T) {
	t.Parallel()

	plain := systemMessageParam("be helpful", types.DialectFlags{})
	require.NotNil(t, plain.OfSystem)
	assert.True(t, plain.OfSystem.Content.OfString.Valid())
	assert.Equal(t, "be helpful", plain.OfSystem.Content.OfString.Value)

	dev := systemMessageParam("be helpful", types.DialectFlags{SupportsDeveloperRole: true})
	require.NotNil(t, dev.OfDeveloper)
	assert.Equal(t, "be helpful", dev.OfDeveloper.Content.OfString.Value)
}

func TestMessagesToParamsUserText(t *testing.T) {
	t.Parallel()
	messages := []types.Message{
		{Role: types.RoleUser, Content: []types.ContentBlock{types.Text("hi")}},
	}
	params, err := messagesToParams(messages, types.DialectFlags{})
	require.NoError(t, err)
	require.Len(t, params, 1)
	require.NotNil(t, params[0].OfUser)
}

func TestMessagesToParamsToolResultBecomesItsOwnMessage(t *testing.T) {
	t.Parallel()
	messages := []types.Message{
		{Role: types.RoleUser, Content: []types.ContentBlock{types.ToolResult("call-1", "ok", false)}},
	}
	params, err := messagesToParams(messages, types.DialectFlags{})
	require.NoError(t, err)
	require.Len(t, params, 1)
	require.NotNil(t, params[0].OfTool)
	assert.Equal(t, "call-1", params[0].OfTool.ToolCallID)
}

func TestMessagesToParamsAssistantTextAndToolUse(t *testing.T) {
	t.Parallel()
	messages := []types.Message{
		{Role: types.RoleAssistant, Content: []types.ContentBlock{
			types.Text("thinking out loud"),
			types.ToolUse("call-1", "echo", map[string]any{"x": 1}),
		}},
	}
	params, err := messagesToParams(messages, types.DialectFlags{})
	require.NoError(t, err)
	require.Len(t, params, 1)
	require.NotNil(t, params[0].OfAssistant)
	require.Len(t, params[0].OfAssistant.ToolCalls, 1)
}

func TestMessagesToParamsRejectsUnsupportedRole(t *testing.T) {
	t.Parallel()
	_, err := messagesToParams([]types.Message{{Role: "system"}}, types.DialectFlags{})
	assert.Error(t, err)
}
