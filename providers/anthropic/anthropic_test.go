package anthropic

import (
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/apierr"
	"agentcore/types"
)

func TestMessagesToParamsBatchesConsecutiveSameRoleMessages(t *testing.T) {
	t.Parallel()
	messages := []types.Message{
		{Role: types.RoleUser, Content: []types.ContentBlock{types.Text("hi")}},
		{Role: types.RoleAssistant, Content: []types.ContentBlock{types.Text("a")}},
		{Role: types.RoleAssistant, Content: []types.ContentBlock{types.Text("b")}},
		{Role: types.RoleUser, Content: []types.ContentBlock{types.Text("c")}},
	}

	params, err := messagesToParams(messages)
	require.NoError(t, err)
	require.Len(t, params, 3)
}

func TestMessagesToParamsDropsEmptyBatches(t *testing.T) {
	t.Parallel()
	params, err := messagesToParams(nil)
	require.NoError(t, err)
	assert.Len(t, params, 0)
}

func TestContentBlockToParamText(t *testing.T) {
	t.Parallel()
	pb, err := contentBlockToParam(types.Text("hello"))
	require.NoError(t, err)
	require.NotNil(t, pb.OfText)
	assert.Equal(t, "hello", pb.OfText.Text)
}

func TestContentBlockToParamAppliesCacheControl(t *testing.T) {
	t.Parallel()
	block := types.Text("hello")
	block.CacheControl = &types.CacheControl{Type: types.CacheControlEphemeral}
	pb, err := contentBlockToParam(block)
	require.NoError(t, err)
	require.NotNil(t, pb.OfText)
	assert.Equal(t, anthropic.CacheControlEphemeralParam{}, pb.OfText.CacheControl)
}

func TestContentBlockToParamToolUse(t *testing.T) {
	t.Parallel()
	pb, err := contentBlockToParam(types.ToolUse("call-1", "echo", map[string]any{"x": 1}))
	require.NoError(t, err)
	require.NotNil(t, pb.OfToolUse)
}

func TestContentBlockToParamToolResult(t *testing.T) {
	t.Parallel()
	pb, err := contentBlockToParam(types.ToolResult("call-1", "ok", false))
	require.NoError(t, err)
	require.NotNil(t, pb.OfToolResult)
}

func TestContentBlockToParamMissingUnionFieldErrors(t *testing.T) {
	t.Parallel()
	_, err := contentBlockToParam(types.ContentBlock{Type: types.ContentBlockTypeToolUse})
	assert.Error(t, err)

	_, err = contentBlockToParam(types.ContentBlock{Type: types.ContentBlockTypeToolResult})
	assert.Error(t, err)

	_, err = contentBlockToParam(types.ContentBlock{Type: types.ContentBlockTypeImage})
	assert.Error(t, err)
}

func TestContentBlockToParamRefusalIsDropped(t *testing.T) {
	t.Parallel()
	pb, err := contentBlockToParam(types.ContentBlock{Type: types.ContentBlockTypeRefusal})
	require.NoError(t, err)
	assert.Nil(t, pb)
}

func TestContentBlockToParamUnsupportedTypeErrors(t *testing.T) {
	t.Parallel()
	_, err := contentBlockToParam(types.ContentBlock{Type: types.ContentBlockTypeMcpCall})
	assert.Error(t, err)
}

func TestImageBlockFromRefHandlesURLs(t *testing.T) {
	t.Parallel()
	ib, err := imageBlockFromRef(types.ImageRef{URL: "https://example.com/a.png"})
	require.NoError(t, err)
	require.NotNil(t, ib.Source.OfURL)
	assert.Equal(t, "https://example.com/a.png", ib.Source.OfURL.URL)
}

func TestImageBlockFromRefRejectsMalformedDataURL(t *testing.T) {
	t.Parallel()
	_, err := imageBlockFromRef(types.ImageRef{URL: "data:not-a-valid-data-url"})
	assert.Error(t, err)
}

func TestMapStopReason(t *testing.T) {
	t.Parallel()
	cases := map[string]types.StopReason{
		"end_turn":      types.StopReasonEndTurn,
		"tool_use":      types.StopReasonToolUse,
		"max_tokens":    types.StopReasonMaxTokens,
		"stop_sequence": types.StopReasonStopSequence,
		"refusal":       types.StopReasonRefusal,
		"anything_else": types.StopReasonEndTurn,
	}
	for raw, want := range cases {
		assert.Equal(t, want, mapStopReason(raw))
	}
}

func TestClassifyHTTPErr(t *testing.T) {
	t.Parallel()
	assert.True(t, apierr.Is(classifyHTTPErr(errors.New("429 too many requests")), apierr.KindRateLimited))
	assert.True(t, apierr.Is(classifyHTTPErr(errors.New("401 unauthorized")), apierr.KindAuth))
	assert.True(t, apierr.Is(classifyHTTPErr(errors.New("403 forbidden")), apierr.KindAuth))
	assert.True(t, apierr.Is(classifyHTTPErr(errors.New("400 context length exceeded")), apierr.KindOverflow))
	assert.True(t, apierr.Is(classifyHTTPErr(errors.New("connection reset")), apierr.KindTransport))
}

func TestToolsToParams(t *testing.T) {
	t.Parallel()
	tools := []types.Tool{
		{Name: "echo", Description: "echoes", Parameters: []byte(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`)},
	}
	params := toolsToParams(tools)
	require.Len(t, params, 1)
	require.NotNil(t, params[0].OfTool)
	assert.Equal(t, "echo", params[0].OfTool.Name)
	assert.Contains(t, params[0].OfTool.InputSchema.Properties, "text")
	assert.Equal(t, []string{"text"}, params[0].OfTool.InputSchema.Required)
}

func TestRawSchemaToInputSchemaDefaultsToObjectType(t *testing.T) {
	t.Parallel()
	schema := rawSchemaToInputSchema(nil)
	assert.Nil(t, schema.Properties)
	assert.Nil(t, schema.Required)
}

func TestToolChoiceToParam(t *testing.T) {
	t.Parallel()

	any := toolChoiceToParam(types.ToolChoice{Mode: types.ToolChoiceAny}, true)
	require.NotNil(t, any.OfAny)

	tool := toolChoiceToParam(types.ToolChoice{Mode: types.ToolChoiceTool, Name: "echo"}, true)
	require.NotNil(t, tool.OfTool)
	assert.Equal(t, "echo", tool.OfTool.Name)

	none := toolChoiceToParam(types.ToolChoice{Mode: types.ToolChoiceNone}, true)
	require.NotNil(t, none.OfNone)

	auto := toolChoiceToParam(types.ToolChoice{Mode: types.ToolChoiceAuto}, false)
	require.NotNil(t, auto.OfAuto)
}
