// Package types defines the canonical, provider-agnostic data model shared
// by every adapter, the transform layer, the tool runtime and the agent
// loop: messages, content blocks, model descriptors and usage/cost data.
package types

import "time"

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentBlockType discriminates the variants of ContentBlock. Providers
// each speak a different wire shape; everything downstream of an adapter
// operates on this closed set instead.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeImage      ContentBlockType = "image"
	ContentBlockTypeFile       ContentBlockType = "file"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
	ContentBlockTypeRefusal    ContentBlockType = "refusal"
	ContentBlockTypeReasoning  ContentBlockType = "reasoning"
	ContentBlockTypeMcpCall    ContentBlockType = "mcp_call"
)

// CacheControlType marks a block as a provider-side prompt-cache boundary.
type CacheControlType string

const (
	CacheControlEphemeral CacheControlType = "ephemeral"
)

// CacheControl is advisory: providers that don't support prompt caching
// simply ignore it.
type CacheControl struct {
	Type CacheControlType `json:"type"`
}

// ImageRef points at image bytes, either inline as a data URL or by
// reference (a tool-runtime key, an https URL).
type ImageRef struct {
	URL string `json:"url"`
}

// FileRef points at non-image file content (e.g. a PDF) by URL/data-URL.
type FileRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
}

// RefusalBlock records that the assistant refused to continue.
type RefusalBlock struct {
	Reason string `json:"reason,omitempty"`
}

// ReasoningBlock carries a model's chain-of-thought / extended-thinking
// output. Summary is the provider-visible short form (e.g. Anthropic's
// "thinking" field); Text is the full form when the provider exposes it.
// EncryptedContent holds an opaque provider blob (e.g. OpenAI Responses'
// encrypted reasoning item) that must be replayed verbatim to the same
// {provider,api,model} triple, never inspected or mutated.
//
// Signature is the provider's cryptographic attestation over this block
// (Anthropic's thinking signature, Google's thought signature). It is
// advisory and same-model-scoped: §4.2's thought-signature policy governs
// when it may be replayed versus stripped/converted to plain text.
type ReasoningBlock struct {
	Text             string `json:"text,omitempty"`
	Summary          string `json:"summary,omitempty"`
	EncryptedContent string `json:"encryptedContent,omitempty"`
	Signature        []byte `json:"signature,omitempty"`
}

// McpCallBlock records a Model Context Protocol tool invocation embedded
// directly in a provider's own wire format (as opposed to this library's
// own tool-dispatch loop).
type McpCallBlock struct {
	Server    string         `json:"server"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolUseBlock is a model-issued tool invocation request.
//
// Id is the tool-call id assigned when the block was first produced.
// transform.Apply rewrites it (and the matching ToolResultBlock.ToolCallId)
// to the target provider's id grammar on a copy of the history. The
// rewrite is not reversed: ids in a provider's response are the ones that
// provider returned.
//
// Signature mirrors ReasoningBlock.Signature: some providers (Anthropic
// extended thinking immediately preceding a tool call) attach a signature
// to the tool_use block itself rather than a separate reasoning block.
type ToolUseBlock struct {
	Id        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Signature []byte         `json:"signature,omitempty"`
}

// ToolResultBlock is the outcome of executing a ToolUseBlock, threaded
// back into the next user-role message.
type ToolResultBlock struct {
	ToolCallId string `json:"toolCallId"`
	Name       string `json:"name,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
	Text       string `json:"text"`
}

// ContentBlock is the tagged union every provider adapter normalizes its
// wire format into, and normalizes back out of. Exactly one of the
// type-specific fields is populated, selected by Type.
type ContentBlock struct {
	Id   string           `json:"id,omitempty"`
	Type ContentBlockType `json:"type"`

	Text string `json:"text,omitempty"`

	Image      *ImageRef        `json:"image,omitempty"`
	File       *FileRef         `json:"file,omitempty"`
	ToolUse    *ToolUseBlock    `json:"toolUse,omitempty"`
	ToolResult *ToolResultBlock `json:"toolResult,omitempty"`
	Refusal    *RefusalBlock    `json:"refusal,omitempty"`
	Reasoning  *ReasoningBlock  `json:"reasoning,omitempty"`
	McpCall    *McpCallBlock    `json:"mcpCall,omitempty"`

	CacheControl *CacheControl `json:"cacheControl,omitempty"`
}

// Text builds a plain-text content block.
func Text(s string) ContentBlock {
	return ContentBlock{Type: ContentBlockTypeText, Text: s}
}

// ToolUse builds a tool-call content block.
func ToolUse(id, name string, args map[string]any) ContentBlock {
	return ContentBlock{Type: ContentBlockTypeToolUse, ToolUse: &ToolUseBlock{Id: id, Name: name, Arguments: args}}
}

// ToolResult builds a tool-result content block.
func ToolResult(toolCallId, text string, isError bool) ContentBlock {
	return ContentBlock{
		Type:       ContentBlockTypeToolResult,
		ToolResult: &ToolResultBlock{ToolCallId: toolCallId, Text: text, IsError: isError},
	}
}

// Message is one turn in the canonical conversation history. The metadata
// fields below (API through Timestamp) are populated only on assistant
// messages, once a provider call completes: they carry the call's
// {api,provider,model} identity, its usage, and the stop reason the
// Transform Layer's replay-safety invariant inspects (§3: an assistant
// message whose StopReason is error or aborted is never replayed back to
// a provider).
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`

	API          string     `json:"api,omitempty"`
	Provider     Provider   `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	Usage        Usage      `json:"usage,omitempty"`
	StopReason   StopReason `json:"stopReason,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	Timestamp    time.Time  `json:"timestamp,omitempty"`
}

// ToolCalls returns every tool_use block in the message, in order.
func (m Message) ToolCalls() []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range m.Content {
		if b.Type == ContentBlockTypeToolUse && b.ToolUse != nil {
			out = append(out, *b.ToolUse)
		}
	}
	return out
}

// ToolResults returns every tool_result block in the message, in order.
func (m Message) ToolResults() []ToolResultBlock {
	var out []ToolResultBlock
	for _, b := range m.Content {
		if b.Type == ContentBlockTypeToolResult && b.ToolResult != nil {
			out = append(out, *b.ToolResult)
		}
	}
	return out
}

// TextContent concatenates every text block's content.
func (m Message) TextContent() string {
	s := ""
	for _, b := range m.Content {
		if b.Type == ContentBlockTypeText {
			s += b.Text
		}
	}
	return s
}
