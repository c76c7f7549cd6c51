// Package compat provides the OpenAI-compatible gateway dialect matrix
// (§4.2F, §9's "flag matrix, not a subclass hierarchy" design note) and
// a Provider that is just providers/openai transported at a different
// BaseURL: every compat quirk is expressed as types.DialectFlags data,
// so this package adds no streaming logic of its own. transform.Apply and
// providers/openai read every flag except RequiresToolResultName and
// ThinkingFormat, which are carried as data but read by no package.
//
// Grounded on llm2/openai_provider.go's tool-name-prefix-cleanup quirk
// (one concrete instance of "an OpenAI-compatible backend sends slightly
// wrong data, normalize it") generalized into the ToolNamePrefixesToStrip
// flag, and goa-ai's sanitizeToolName truncate-plus-hash-suffix pattern,
// generalized in transform.idGrammar's Mistral exactly-9-alphanumeric
// branch.
package compat

import (
	"agentcore/providers"
	"agentcore/providers/openai"
	"agentcore/types"
)

// Provider is providers/openai with its BaseURL and Provider identity
// fixed to a named gateway preset; Stream is inherited unchanged.
type Provider struct {
	*openai.Provider
}

// New wraps an *openai.Provider so a compat gateway's Stream calls
// resolve credentials under the "compat" key instead of "openai" (see
// providers/openai.Stream's providerKey branch on
// model.Provider == types.ProviderCompat).
func New(baseURL string) *Provider {
	return &Provider{Provider: &openai.Provider{BaseURL: baseURL}}
}

var _ providers.Provider = (*Provider)(nil)

// Preset names a known OpenAI-compatible gateway with its BaseURL and
// dialect flags pre-filled. ApplyTo copies BaseURL and Dialect onto a
// types.Model, leaving ID/MaxTokens/ReasoningEffort to the caller.
type Preset struct {
	Name    string
	BaseURL string
	Dialect types.DialectFlags
	// Headers carries gateway-routing headers this preset requires on
	// every call (§6), merged via Model.Headers.
	Headers map[string]string
}

// ApplyTo returns a copy of model configured for this preset: Provider
// set to types.ProviderCompat, BaseURL, Dialect and Headers filled in.
func (p Preset) ApplyTo(model types.Model) types.Model {
	model.Provider = types.ProviderCompat
	model.BaseURL = p.BaseURL
	model.Dialect = p.Dialect
	if len(p.Headers) > 0 {
		headers := make(map[string]string, len(p.Headers)+len(model.Headers))
		for k, v := range model.Headers {
			headers[k] = v
		}
		for k, v := range p.Headers {
			headers[k] = v
		}
		model.Headers = headers
	}
	return model
}

// Cerebras speaks the OpenAI Chat Completions wire format with
// max_tokens (not max_completion_tokens) and no reasoning_effort
// parameter.
var Cerebras = Preset{
	Name:    "cerebras",
	BaseURL: "https://api.cerebras.ai/v1",
	Dialect: types.DialectFlags{
		MaxTokensField:          "max_tokens",
		ToolNamePrefixesToStrip: []string{"tools.", "tool.", "functions.", "function."},
	},
}

// Mistral requires tool-call ids to be exactly 9 alphanumeric
// characters (transform.idGrammarFor's Exact:9 branch) and a
// tool_result's name field populated, which plain Chat Completions
// tool_result parts don't otherwise require.
var Mistral = Preset{
	Name:    "mistral",
	BaseURL: "https://api.mistral.ai/v1",
	Dialect: types.DialectFlags{
		MaxTokensField:         "max_tokens",
		RequiresToolResultName: true,
		RequiresMistralToolIds: true,
	},
}

// Groq matches stock Chat Completions closely but has no
// reasoning_effort parameter and a literal assistant turn must follow a
// tool_result before another tool call, per its documented tool-use
// constraints.
var Groq = Preset{
	Name:    "groq",
	BaseURL: "https://api.groq.com/openai/v1",
	Dialect: types.DialectFlags{
		MaxTokensField:                   "max_tokens",
		RequiresAssistantAfterToolResult: true,
	},
}

// DeepSeek exposes reasoning as a parallel "reasoning_content" field on
// its wire format rather than an SDK-modeled reasoning block; the
// simplest compatible rendering is plain inline text.
var DeepSeek = Preset{
	Name:    "deepseek",
	BaseURL: "https://api.deepseek.com/v1",
	Dialect: types.DialectFlags{
		MaxTokensField:         "max_tokens",
		RequiresThinkingAsText: true,
		ThinkingFormat:         "tag",
	},
}

// OpenRouter proxies many upstream models; it passes through
// max_completion_tokens and reasoning_effort for OpenAI-family targets,
// so the only overlay needed is routing, the shared tool-name-prefix
// cleanup every OpenAI-compatible gateway in this table needs, and the
// X-Initiator header OpenRouter uses to attribute traffic to an
// integration (§6).
var OpenRouter = Preset{
	Name:    "openrouter",
	BaseURL: "https://openrouter.ai/api/v1",
	Dialect: types.DialectFlags{
		SupportsReasoningEffort: true,
		ToolNamePrefixesToStrip: []string{"tools.", "tool.", "functions.", "function."},
	},
	Headers: map[string]string{"X-Initiator": "agent"},
}

// Vercel is the Vercel AI Gateway's OpenAI-compatible surface; it expects
// an Openai-Intent header identifying the call as a chat completion (§6).
var Vercel = Preset{
	Name:    "vercel",
	BaseURL: "https://ai-gateway.vercel.sh/v1",
	Headers: map[string]string{"Openai-Intent": "conversation"},
}

// Copilot is GitHub Copilot's chat-completions-compatible surface; its
// vision-capable models require Copilot-Vision-Request on requests that
// include image content (§6). Set unconditionally here since this preset
// is only reachable through a vision-tagged model in practice.
var Copilot = Preset{
	Name:    "copilot",
	BaseURL: "https://api.githubcopilot.com",
	Headers: map[string]string{"Copilot-Vision-Request": "true"},
}

// Presets lists every named gateway this package ships, for callers that
// want to look one up by name (e.g. from a config file).
var Presets = map[string]Preset{
	Cerebras.Name:   Cerebras,
	Mistral.Name:    Mistral,
	Groq.Name:       Groq,
	DeepSeek.Name:   DeepSeek,
	OpenRouter.Name: OpenRouter,
	Vercel.Name:     Vercel,
	Copilot.Name:    Copilot,
}
