// Package agent implements the turn-based Agent Loop (§4.6): it drives
// the Streaming Dispatcher and the Tool Runtime across turns, emitting
// the agent-level event taxonomy defined in events.go and handing back
// control to the caller's extension hooks once a turn produces no more
// tool calls.
//
// Grounded on dev/llm_loop.go's generic iteration shape (functional
// options for iteration limits, a per-iteration callback, a feedback/
// steering hook fired every few iterations) adapted from sidekick's
// human-in-the-loop chat workflow to the dispatcher/tool-runtime pair
// this library exposes in place of a Temporal workflow.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentcore/apierr"
	"agentcore/credential"
	"agentcore/dispatch"
	"agentcore/providers"
	"agentcore/tools"
	"agentcore/types"
)

// ErrMaxTurnsReached is returned (via State.Err) when a Loop runs past
// Options.MaxTurns without reaching a terminal stop reason.
var ErrMaxTurnsReached = errors.New("agent: max turns reached")

// State is the Agent Loop's per-run state, per §4.6's state shape.
type State struct {
	SystemPrompt  string
	Model         types.Model
	ThinkingLevel types.ReasoningEffort
	Tools         *tools.Registry
	Messages      []types.Message

	IsStreaming   bool
	StreamMessage *types.MessageResponse

	PendingToolCalls []types.ToolUseBlock

	Err error
}

// Hooks are the two extension points a turn consults once the assistant
// stops requesting tools: GetSteeringMessages lets a caller inject
// mid-flight guidance (e.g. a paused human operator), GetFollowUpMessages
// lets a caller queue the next piece of work onto the same history
// instead of ending the run. Either returning a non-empty slice continues
// the loop; both returning nothing (or being nil) ends it.
type Hooks struct {
	GetSteeringMessages func(ctx context.Context) []types.Message
	GetFollowUpMessages func(ctx context.Context) []types.Message
}

// Options configures a Loop.
type Options struct {
	// ParallelTools runs a turn's tool calls concurrently instead of in
	// call order. Providers that only ever request one tool at a time
	// are unaffected either way.
	ParallelTools bool
	// MaxTurns bounds the number of turns before the loop gives up with
	// ErrMaxTurnsReached. Zero means unbounded.
	MaxTurns int
}

// DefaultOptions mirrors dev/llm_loop.go's conservative default of not
// looping forever on a runaway tool-use chain.
func DefaultOptions() Options {
	return Options{ParallelTools: true, MaxTurns: 50}
}

// Loop drives one agent run: repeated dispatcher calls interleaved with
// tool execution, against a single Dispatcher/Registry/credential triple.
// It implements Agent, dispatching AgentAction.Data as a *RunInput.
type Loop struct {
	Dispatcher *dispatch.Dispatcher
	Credential credential.Resolver
	Options    Options
}

func New(dispatcher *dispatch.Dispatcher, cred credential.Resolver, opts Options) *Loop {
	return &Loop{Dispatcher: dispatcher, Credential: cred, Options: opts}
}

// Agent is the narrow entry point a caller (CLI, server handler) drives
// an agent run through.
type Agent interface {
	// PerformAction runs one agent action to completion, streaming every
	// Event onto events. PerformAction does not close events.
	PerformAction(ctx context.Context, action AgentAction, events chan<- Event)
}

// AgentAction is the unit of work a caller submits to an Agent. Type
// selects how Data is interpreted; the only Type this library defines is
// "run", whose Data is a *RunInput.
type AgentAction struct {
	Type    string
	TopicId string
	Data    interface{}
}

// RunInput bundles the State/Hooks pair a "run" AgentAction carries.
type RunInput struct {
	State *State
	Hooks Hooks
}

var _ Agent = (*Loop)(nil)

// PerformAction implements Agent. Unknown action types emit a single
// agent_end event carrying the error instead of panicking, since the
// action came from outside this package's control.
func (l *Loop) PerformAction(ctx context.Context, action AgentAction, events chan<- Event) {
	if action.Type != "" && action.Type != "run" {
		events <- Event{Type: EventAgentEnd, StopReason: types.StopReasonError, Err: fmt.Errorf("agent: unknown action type %q", action.Type)}
		return
	}
	input, ok := action.Data.(*RunInput)
	if !ok || input == nil || input.State == nil {
		events <- Event{Type: EventAgentEnd, StopReason: types.StopReasonError, Err: errors.New("agent: run action requires a *RunInput with a non-nil State")}
		return
	}
	l.Run(ctx, input.State, input.Hooks, events)
}

// Run drives state through turns until a terminal stop reason is
// reached, emitting every event onto events. Run does not close events;
// the caller owns its lifecycle. Cancelling ctx aborts the in-flight
// provider stream and any currently running tool; the terminal event is
// still agent_end, with StopReason set to aborted.
func (l *Loop) Run(ctx context.Context, state *State, hooks Hooks, events chan<- Event) {
	events <- Event{Type: EventAgentStart}

	var previousModel *types.Model

	for turn := 1; ; turn++ {
		if l.Options.MaxTurns > 0 && turn > l.Options.MaxTurns {
			state.Err = ErrMaxTurnsReached
			events <- Event{Type: EventAgentEnd, Messages: state.Messages, StopReason: types.StopReasonError, Err: ErrMaxTurnsReached}
			return
		}

		events <- Event{Type: EventTurnStart}

		resp, stopReason, err := l.dispatchTurn(ctx, state, previousModel, events)
		if err != nil {
			state.Err = err
			events <- Event{Type: EventTurnEnd, Messages: state.Messages}
			events <- Event{Type: EventAgentEnd, Messages: state.Messages, StopReason: stopReason, Err: err}
			return
		}

		modelCopy := state.Model
		previousModel = &modelCopy

		state.Messages = append(state.Messages, annotateAssistantMessage(resp, state.Model.API))

		if resp.StopReason == types.StopReasonError || resp.StopReason == types.StopReasonAborted {
			events <- Event{Type: EventTurnEnd, Messages: state.Messages}
			events <- Event{Type: EventAgentEnd, Messages: state.Messages, StopReason: resp.StopReason}
			return
		}

		toolCalls := resp.Output.ToolCalls()
		state.PendingToolCalls = toolCalls
		if len(toolCalls) > 0 {
			resultBlocks := l.executeTools(ctx, state, toolCalls, events)
			state.PendingToolCalls = nil
			state.Messages = append(state.Messages, types.Message{Role: types.RoleUser, Content: resultBlocks})
		}

		events <- Event{Type: EventTurnEnd, Messages: state.Messages}

		if resp.StopReason == types.StopReasonToolUse {
			continue
		}

		if hooks.GetSteeringMessages != nil {
			if msgs := hooks.GetSteeringMessages(ctx); len(msgs) > 0 {
				state.Messages = append(state.Messages, msgs...)
				continue
			}
		}
		if hooks.GetFollowUpMessages != nil {
			if msgs := hooks.GetFollowUpMessages(ctx); len(msgs) > 0 {
				state.Messages = append(state.Messages, msgs...)
				continue
			}
		}

		events <- Event{Type: EventAgentEnd, Messages: state.Messages, StopReason: resp.StopReason}
		return
	}
}

// annotateAssistantMessage stamps resp.Output with the call metadata
// (§3's Assistant message variant: api, provider, model, usage,
// stopReason, errorMessage?, timestamp) before it joins state.Messages.
// ErrorMessage is only populated when the turn ended in a refusal or
// error, pulled from the trailing refusal block OpenAI/Anthropic emit in
// that case.
func annotateAssistantMessage(resp *types.MessageResponse, api string) types.Message {
	msg := resp.Output
	msg.API = api
	msg.Provider = resp.Provider
	msg.Model = resp.Model
	msg.Usage = resp.Usage
	msg.StopReason = resp.StopReason
	msg.Timestamp = time.Now()

	if resp.StopReason == types.StopReasonRefusal || resp.StopReason == types.StopReasonError {
		for _, b := range msg.Content {
			if b.Type == types.ContentBlockTypeRefusal && b.Refusal != nil {
				msg.ErrorMessage = b.Refusal.Reason
				break
			}
		}
	}
	return msg
}

// dispatchTurn runs steps 2-4 of §4.6: transform (handled inside
// Dispatch), the dispatcher call, and forwarding every assistant event
// as message_update.
func (l *Loop) dispatchTurn(ctx context.Context, state *State, previousModel *types.Model, events chan<- Event) (*types.MessageResponse, types.StopReason, error) {
	model := state.Model
	model.ReasoningEffort = state.ThinkingLevel

	var toolDecls []types.Tool
	if state.Tools != nil {
		for _, d := range state.Tools.Defs() {
			toolDecls = append(toolDecls, types.Tool{Name: d.Name, Description: d.Description, Parameters: d.Schema})
		}
	}

	req := providers.StreamRequest{
		Params: providers.Params{
			SystemPrompt: state.SystemPrompt,
			Messages:     state.Messages,
			Tools:        toolDecls,
			Model:        model,
		},
		Credential: l.Credential,
	}

	streamChan := make(chan types.Event)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range streamChan {
			ev := ev
			events <- Event{Type: EventMessageUpdate, StreamEvent: &ev}
		}
	}()

	events <- Event{Type: EventMessageStart}
	state.IsStreaming = true
	resp, err := l.Dispatcher.Dispatch(ctx, req, previousModel, streamChan)
	close(streamChan)
	wg.Wait()
	state.IsStreaming = false

	if err != nil {
		stopReason := types.StopReasonError
		if ctx.Err() != nil || apierr.Is(err, apierr.KindAborted) {
			stopReason = types.StopReasonAborted
		}
		events <- Event{Type: EventMessageEnd, Err: err}
		return nil, stopReason, err
	}

	state.StreamMessage = resp
	events <- Event{Type: EventMessageEnd, Message: resp}
	return resp, resp.StopReason, nil
}

// executeTools runs step 5 of §4.6: one tool_execution_start/update/end
// triple per call, serial or parallel per l.Options.ParallelTools, using
// ctx as the turn's cancellation signal for every call.
func (l *Loop) executeTools(ctx context.Context, state *State, calls []types.ToolUseBlock, events chan<- Event) []types.ContentBlock {
	results := make([]types.ContentBlock, len(calls))

	run := func(i int) {
		call := calls[i]
		argsJSON, err := toolArgsJSON(call.Arguments)
		if err != nil {
			results[i] = types.ToolResult(call.Id, fmt.Sprintf("invalid tool arguments: %v", err), true)
			return
		}

		events <- Event{Type: EventToolExecutionStart, ToolCallID: call.Id, ToolName: call.Name, ToolArgs: argsJSON}

		onUpdate := func(u tools.Update) {
			update := u
			events <- Event{Type: EventToolExecutionUpdate, ToolCallID: call.Id, ToolName: call.Name, ToolUpdate: &update}
		}

		var result tools.Result
		if state.Tools == nil {
			result = tools.ErrorResult(fmt.Errorf("no tools registered, cannot execute %q", call.Name))
		} else {
			result = state.Tools.Execute(ctx, call.Name, call.Id, argsJSON, onUpdate)
		}

		events <- Event{Type: EventToolExecutionEnd, ToolCallID: call.Id, ToolName: call.Name, ToolResult: &result}
		results[i] = types.ToolResult(call.Id, result.Text, result.IsError)
	}

	if !l.Options.ParallelTools || len(calls) <= 1 {
		for i := range calls {
			run(i)
		}
		return results
	}

	var wg sync.WaitGroup
	for i := range calls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run(i)
		}(i)
	}
	wg.Wait()
	return results
}

// toolArgsJSON re-encodes a tool call's canonical argument map as the raw
// JSON the Tool Runtime validates and dispatches against.
func toolArgsJSON(args map[string]any) (json.RawMessage, error) {
	if args == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(args)
}
