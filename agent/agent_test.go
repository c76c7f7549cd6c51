package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/dispatch"
	"agentcore/providers"
	"agentcore/tools"
	"agentcore/types"
)

// scriptedProvider replays a fixed sequence of responses, one per Stream
// call, so a Loop run can be driven deterministically without a real
// adapter or network access.
type scriptedProvider struct {
	responses []*types.MessageResponse
	calls     int
}

func (p *scriptedProvider) Stream(ctx context.Context, req providers.StreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	resp := p.responses[p.calls]
	p.calls++
	eventChan <- types.Event{Type: types.EventTypeBlockDone}
	return resp, nil
}

func (p *scriptedProvider) StreamSimple(ctx context.Context, req providers.SimpleStreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	return p.Stream(ctx, req.AsStreamRequest(), eventChan)
}

func newTestDispatcher(provider *scriptedProvider) *dispatch.Dispatcher {
	return dispatch.New(dispatch.MapRegistry{types.ProviderAnthropic: provider}, dispatch.Options{})
}

type echoArgs struct {
	Text string `json:"text"`
}

func echoTool() tools.Definition {
	return tools.Definition{
		Name:        "echo",
		Description: "echoes its input back",
		Schema:      tools.SchemaFor(&echoArgs{}),
		Execute: func(ctx context.Context, callID string, args json.RawMessage, onUpdate tools.OnUpdate) tools.Result {
			var in echoArgs
			_ = json.Unmarshal(args, &in)
			return tools.Result{Text: "echo: " + in.Text}
		},
	}
}

func TestLoopRunsToolThenEnds(t *testing.T) {
	t.Parallel()

	toolCallMsg := types.Message{
		Role: types.RoleAssistant,
		Content: []types.ContentBlock{
			types.ToolUse("call-1", "echo", map[string]any{"text": "hi"}),
		},
	}
	finalMsg := types.Message{
		Role:    types.RoleAssistant,
		Content: []types.ContentBlock{types.Text("all done")},
	}

	provider := &scriptedProvider{responses: []*types.MessageResponse{
		{Output: toolCallMsg, StopReason: types.StopReasonToolUse},
		{Output: finalMsg, StopReason: types.StopReasonEndTurn},
	}}

	registry, err := tools.NewRegistry(echoTool())
	require.NoError(t, err)

	loop := New(newTestDispatcher(provider), nil, DefaultOptions())

	state := &State{
		Model:    types.Model{Provider: types.ProviderAnthropic, ID: "test-model"},
		Tools:    registry,
		Messages: []types.Message{{Role: types.RoleUser, Content: []types.ContentBlock{types.Text("go")}}},
	}

	events := make(chan Event, 64)
	go func() {
		loop.Run(context.Background(), state, Hooks{}, events)
		close(events)
	}()

	var sawToolStart, sawToolEnd, sawAgentEnd bool
	var finalStopReason types.StopReason
	for ev := range events {
		switch ev.Type {
		case EventToolExecutionStart:
			sawToolStart = true
			assert.Equal(t, "echo", ev.ToolName)
		case EventToolExecutionEnd:
			sawToolEnd = true
			require.NotNil(t, ev.ToolResult)
			assert.Equal(t, "echo: hi", ev.ToolResult.Text)
		case EventAgentEnd:
			sawAgentEnd = true
			finalStopReason = ev.StopReason
		}
	}

	assert.True(t, sawToolStart)
	assert.True(t, sawToolEnd)
	assert.True(t, sawAgentEnd)
	assert.Equal(t, types.StopReasonEndTurn, finalStopReason)
	assert.Equal(t, 2, provider.calls)

	lastMsg := state.Messages[len(state.Messages)-1]
	assert.Equal(t, "all done", lastMsg.TextContent())
}

func TestLoopEndsImmediatelyWithNoToolCalls(t *testing.T) {
	t.Parallel()

	finalMsg := types.Message{Role: types.RoleAssistant, Content: []types.ContentBlock{types.Text("hello")}}
	provider := &scriptedProvider{responses: []*types.MessageResponse{
		{Output: finalMsg, StopReason: types.StopReasonEndTurn},
	}}

	loop := New(newTestDispatcher(provider), nil, DefaultOptions())
	state := &State{
		Model:    types.Model{Provider: types.ProviderAnthropic, ID: "test-model"},
		Messages: []types.Message{{Role: types.RoleUser, Content: []types.ContentBlock{types.Text("hi")}}},
	}

	events := make(chan Event, 64)
	go func() {
		loop.Run(context.Background(), state, Hooks{}, events)
		close(events)
	}()

	var ended bool
	for ev := range events {
		if ev.Type == EventAgentEnd {
			ended = true
			assert.NoError(t, ev.Err)
		}
	}
	assert.True(t, ended)
	assert.Equal(t, 1, provider.calls)
}

func TestLoopFollowsUpViaHook(t *testing.T) {
	t.Parallel()

	firstMsg := types.Message{Role: types.RoleAssistant, Content: []types.ContentBlock{types.Text("first")}}
	secondMsg := types.Message{Role: types.RoleAssistant, Content: []types.ContentBlock{types.Text("second")}}
	provider := &scriptedProvider{responses: []*types.MessageResponse{
		{Output: firstMsg, StopReason: types.StopReasonEndTurn},
		{Output: secondMsg, StopReason: types.StopReasonEndTurn},
	}}

	loop := New(newTestDispatcher(provider), nil, DefaultOptions())
	state := &State{
		Model:    types.Model{Provider: types.ProviderAnthropic, ID: "test-model"},
		Messages: []types.Message{{Role: types.RoleUser, Content: []types.ContentBlock{types.Text("hi")}}},
	}

	followedUp := false
	hooks := Hooks{
		GetFollowUpMessages: func(ctx context.Context) []types.Message {
			if followedUp {
				return nil
			}
			followedUp = true
			return []types.Message{{Role: types.RoleUser, Content: []types.ContentBlock{types.Text("one more thing")}}}
		},
	}

	events := make(chan Event, 64)
	go func() {
		loop.Run(context.Background(), state, hooks, events)
		close(events)
	}()
	for range events {
	}

	assert.Equal(t, 2, provider.calls)
	lastMsg := state.Messages[len(state.Messages)-1]
	assert.Equal(t, "second", lastMsg.TextContent())
}
