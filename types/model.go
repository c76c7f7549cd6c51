package types

import "strings"

// Provider identifies the wire dialect an adapter speaks, independent of
// which company trained the model behind it (an OpenAI-compatible gateway
// uses ProviderCompat, served over the OpenAI wire format).
type Provider string

const (
	ProviderAnthropic       Provider = "anthropic"
	ProviderOpenAI          Provider = "openai"
	ProviderOpenAIResponses Provider = "openai_responses"
	ProviderAzureOpenAI     Provider = "azure_openai"
	ProviderGoogle          Provider = "google"
	ProviderBedrock         Provider = "bedrock"
	ProviderCompat          Provider = "compat"
)

// ReasoningMode selects how a Model's thinking/reasoning dial is
// expressed on the wire.
type ReasoningMode string

const (
	ReasoningModeNone   ReasoningMode = "none"
	ReasoningModeEffort ReasoningMode = "effort" // low/medium/high/xhigh
	ReasoningModeBudget ReasoningMode = "budget" // token count
	ReasoningModeLevel  ReasoningMode = "level"  // MINIMAL/LOW/MEDIUM/HIGH enum
)

// ReasoningEffort is the normalized effort dial. Adapters map it to
// whatever their provider actually accepts (a token budget table for
// budget-mode models, an enum for level-mode models).
type ReasoningEffort string

const (
	ReasoningEffortMinimal ReasoningEffort = "minimal"
	ReasoningEffortLow     ReasoningEffort = "low"
	ReasoningEffortMedium  ReasoningEffort = "medium"
	ReasoningEffortHigh    ReasoningEffort = "high"
	ReasoningEffortXHigh   ReasoningEffort = "xhigh"
)

// ContentModality names one side of a Model's input capability (§3's
// Model descriptor "input: subset of {text,image}").
type ContentModality string

const (
	ModalityText  ContentModality = "text"
	ModalityImage ContentModality = "image"
)

// Cost is dollars-per-million-tokens for each token class, mirroring the
// models.dev catalog shape. A caller populates this from whatever catalog
// it trusts; the core library never fetches it over the network.
type Cost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead"`
	CacheWrite float64 `json:"cacheWrite"`
}

// Limit describes a model's context and output token ceilings.
type Limit struct {
	Context int `json:"context"`
	Output  int `json:"output"`
}

// Model fully describes one callable model: which adapter handles it,
// which dialect flags apply, its thinking dial, and its cost/limit data
// for usage accounting and compaction trigger computation.
type Model struct {
	Provider Provider `json:"provider"`
	// API names the wire API within Provider. It is part of Key() and is
	// recorded on assistant messages; it does not select the adapter:
	// dispatch.MapRegistry resolves adapters by Provider alone
	// (ProviderOpenAIResponses for the Responses adapter).
	API string `json:"api,omitempty"`
	// ID is the provider-facing model identifier, e.g. "claude-opus-4-6",
	// "gpt-5", "gemini-2.5-pro".
	ID string `json:"id"`
	// BaseURL overrides the provider's default endpoint, for
	// OpenAI-compatible gateways (Cerebras, Mistral's OpenAI-compat
	// surface, local proxies).
	BaseURL string `json:"baseUrl,omitempty"`

	ReasoningMode   ReasoningMode   `json:"reasoningMode,omitempty"`
	ReasoningEffort ReasoningEffort `json:"reasoningEffort,omitempty"`
	MaxTokens       int             `json:"maxTokens,omitempty"`
	Temperature     *float32        `json:"temperature,omitempty"`

	// Headers carries gateway-routing headers a particular model routing
	// needs on every call (OpenRouter's X-Initiator, Vercel's
	// Openai-Intent, GitHub Copilot's Copilot-Vision-Request), merged
	// into the adapter's outgoing request alongside any StreamOptions
	// Headers the caller supplies per call.
	Headers map[string]string `json:"headers,omitempty"`

	// Input names the content modalities this model accepts. Empty means
	// unrestricted (adapters don't gate on it); a caller that needs to
	// pick a model capable of vision consults this field instead of
	// hard-coding a model-id allowlist.
	Input []ContentModality `json:"input,omitempty"`

	Cost  Cost  `json:"cost"`
	Limit Limit `json:"limit"`

	// Dialect holds the compat flags (§4.2F). Zero value is the native
	// dialect for Provider.
	Dialect DialectFlags `json:"dialect,omitempty"`
}

// Key returns a stable {provider,api,model} identity string, used by the
// thought-signature retention policy to decide whether a reasoning
// signature may be replayed.
func (m Model) Key() string {
	api := m.API
	if api == "" {
		api = string(m.Provider)
	}
	return strings.Join([]string{string(m.Provider), api, m.ID}, "/")
}

// SameModel reports whether two models share a {provider,api,model}
// identity, the scope within which a thinking/thought signature remains
// valid for replay.
func (m Model) SameModel(other Model) bool {
	return m.Key() == other.Key()
}

// DialectFlags captures OpenAI-compatible-gateway quirks as plain data
// (§9 design note: a flag matrix, not a subclass hierarchy).
type DialectFlags struct {
	SupportsDeveloperRole            bool          `json:"supportsDeveloperRole,omitempty"`
	SupportsReasoningEffort          bool          `json:"supportsReasoningEffort,omitempty"`
	MaxTokensField                   string        `json:"maxTokensField,omitempty"` // "max_tokens" | "max_completion_tokens"
	RequiresToolResultName            bool          `json:"requiresToolResultName,omitempty"`
	RequiresAssistantAfterToolResult bool          `json:"requiresAssistantAfterToolResult,omitempty"`
	RequiresThinkingAsText           bool          `json:"requiresThinkingAsText,omitempty"`
	ThinkingFormat                   string        `json:"thinkingFormat,omitempty"` // "tag" | "field" | "none"
	RequiresMistralToolIds           bool          `json:"requiresMistralToolIds,omitempty"`
	ToolNamePrefixesToStrip          []string      `json:"toolNamePrefixesToStrip,omitempty"`
}
