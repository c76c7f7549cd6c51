package agent

import (
	"agentcore/tools"
	"agentcore/types"
)

// EventType enumerates the agent-level event taxonomy emitted to
// callers, per spec.md's "Agent events" list.
type EventType string

const (
	EventAgentStart          EventType = "agent_start"
	EventTurnStart           EventType = "turn_start"
	EventMessageStart        EventType = "message_start"
	EventMessageUpdate       EventType = "message_update"
	EventMessageEnd          EventType = "message_end"
	EventToolExecutionStart  EventType = "tool_execution_start"
	EventToolExecutionUpdate EventType = "tool_execution_update"
	EventToolExecutionEnd    EventType = "tool_execution_end"
	EventTurnEnd             EventType = "turn_end"
	EventAgentEnd            EventType = "agent_end"
)

// Event is a single agent-level event delivered to the caller's channel.
// Fields are populated according to Type; callers should switch on Type
// before reading the rest.
type Event struct {
	Type EventType

	// message_update carries the raw provider-level stream event.
	StreamEvent *types.Event

	// message_end carries the completed assistant message.
	Message *types.MessageResponse

	// tool_execution_* fields.
	ToolCallID string
	ToolName   string
	ToolArgs   []byte
	ToolUpdate *tools.Update
	ToolResult *tools.Result

	// turn_end / agent_end carry the accumulated message history.
	Messages []types.Message

	// agent_end carries the terminal stop reason and, if the turn ended
	// in error, the error itself.
	StopReason types.StopReason
	Err        error
}
