// Package providers defines the Provider contract every adapter
// (anthropic, openai, openairesponses, google, bedrock, compat)
// implements, plus the shared request/options shapes they all consume.
//
// Grounded on llm2/provider.go's interface shape, reconciled against the
// StreamRequest-based signature actually exercised by
// persisted_ai/llm2_activities.go (the declared Options-only signature in
// the teacher's provider.go is stale relative to its own call sites).
package providers

import (
	"context"

	"agentcore/credential"
	"agentcore/types"
)

// CacheRetention requests a provider-side prompt-cache TTL tier (§4.4's
// StreamOptions.cacheRetention). Adapters that have no native concept of a
// cache TTL (OpenAI's automatic caching, Google, Bedrock) ignore it.
type CacheRetention string

const (
	CacheRetentionNone  CacheRetention = "none"
	CacheRetentionShort CacheRetention = "short"
	CacheRetentionLong  CacheRetention = "long"
)

// Params is the model-agnostic request payload for one model call.
type Params struct {
	SystemPrompt      string
	Messages          []types.Message
	Tools             []types.Tool
	ToolChoice        types.ToolChoice
	ParallelToolCalls *bool
	Temperature       *float32
	// MaxTokens, when set, overrides Model.MaxTokens for this call only.
	MaxTokens int
	Model     types.Model

	// APIKey, when set, overrides whatever credential.Resolver would have
	// returned for this call only.
	APIKey string
	// CacheRetention requests a prompt-cache TTL tier for this call.
	CacheRetention CacheRetention
	// Headers are merged into the outgoing HTTP request on top of
	// Model.Headers (this field wins on key collision).
	Headers map[string]string
	// OnPayload, if set, is invoked with the outgoing provider-native
	// request body, marshaled to JSON, immediately before it is sent.
	OnPayload func(payload []byte)
}

// mergedHeaders combines Model.Headers and Params.Headers, with Params
// taking precedence on key collision.
func (p Params) mergedHeaders() map[string]string {
	if len(p.Model.Headers) == 0 && len(p.Headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(p.Model.Headers)+len(p.Headers))
	for k, v := range p.Model.Headers {
		out[k] = v
	}
	for k, v := range p.Headers {
		out[k] = v
	}
	return out
}

// MergedHeaders is the exported form of mergedHeaders, used by adapters in
// other packages to combine Model- and call-scoped headers consistently.
func MergedHeaders(p Params) map[string]string {
	return p.mergedHeaders()
}

// EffectiveMaxTokens resolves the max-tokens ceiling for one call: Params
// overrides Model, and a zero result means "adapter default".
func (p Params) EffectiveMaxTokens() int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return p.Model.MaxTokens
}

// ResolveAPIKey returns Params.APIKey if the caller set one for this call,
// otherwise falls back to resolver.GetAPIKey(provider).
func (p Params) ResolveAPIKey(resolver credential.Resolver, provider string) (string, error) {
	if p.APIKey != "" {
		return p.APIKey, nil
	}
	return resolver.GetAPIKey(provider)
}

// StreamRequest bundles a Params with the credential resolver an adapter
// needs to obtain its API key/OAuth token. Generalizes llm2's
// StreamRequest{Messages,Options,SecretManager}.
type StreamRequest struct {
	Params     Params
	Credential credential.Resolver
}

// SimpleStreamOptions is the reduced option set streamSimple accepts in
// place of the full StreamOptions: a single normalized reasoning dial
// instead of per-provider knobs (§4.2/§4.4).
type SimpleStreamOptions struct {
	// Reasoning is the normalized thinking level (minimal/low/medium/high
	// /xhigh). Empty disables reasoning.
	Reasoning types.ReasoningEffort
	// ThinkingBudgets maps types.Model.Key() to a token count that
	// ApplySimpleOptions writes into the model's MaxTokens for the call.
	// The adapters' own per-effort thinking budgets are not changed by it.
	ThinkingBudgets map[string]int
}

// SimpleStreamRequest is the streamSimple counterpart to StreamRequest: it
// carries the same conversation shape but only the narrow SimpleStreamOptions
// dial instead of the full Params knob set.
type SimpleStreamRequest struct {
	SystemPrompt string
	Messages     []types.Message
	Tools        []types.Tool
	ToolChoice   types.ToolChoice
	Model        types.Model
	Credential   credential.Resolver
	Options      SimpleStreamOptions
}

// ApplySimpleOptions folds a SimpleStreamOptions' reasoning dial onto a
// Model, for adapters implementing StreamSimple in terms of their own
// Stream.
func ApplySimpleOptions(model types.Model, opts SimpleStreamOptions) types.Model {
	if opts.Reasoning != "" {
		model.ReasoningEffort = opts.Reasoning
	}
	if budget, ok := opts.ThinkingBudgets[model.Key()]; ok {
		model.MaxTokens = budget
	}
	return model
}

// AsStreamRequest converts a SimpleStreamRequest into the full StreamRequest
// shape every adapter's Stream method consumes.
func (r SimpleStreamRequest) AsStreamRequest() StreamRequest {
	return StreamRequest{
		Params: Params{
			SystemPrompt: r.SystemPrompt,
			Messages:     r.Messages,
			Tools:        r.Tools,
			ToolChoice:   r.ToolChoice,
			Model:        ApplySimpleOptions(r.Model, r.Options),
		},
		Credential: r.Credential,
	}
}

// Provider streams one model call. It emits canonical types.Event values
// over eventChan as they become available and returns the final
// assembled types.MessageResponse once the call completes (or an error).
//
// Providers MUST NOT close eventChan; the caller owns its lifecycle.
//
// StreamSimple is the reduced entry point §4.2 requires alongside Stream:
// adapters implement it by applying SimpleStreamOptions onto Model and
// delegating to Stream.
type Provider interface {
	Stream(ctx context.Context, request StreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error)
	StreamSimple(ctx context.Context, request SimpleStreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error)
}
