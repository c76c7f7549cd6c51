// Package transform implements the pre-flight normalization pass (§4.3)
// that runs on the canonical message history immediately before it is
// handed to a provider adapter: dropping unreplayable messages, managing
// thought-signature retention, rewriting tool-call ids to the target
// provider's grammar, inserting synthetic tool results for orphaned tool
// calls, and applying dialect-specific injections.
//
// Grounded on llm2/anthropic_provider.go's messagesToAnthropicParams
// role-flushing (the placement of a single normalization pass ahead of
// provider-param construction) and the same-model-scoped signature
// retention policy observed across anthropic_provider.go and
// google_provider.go.
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"agentcore/types"
)

// Options configures one run of Apply.
type Options struct {
	// Target is the model the transformed history is about to be sent
	// to. Signature retention and dialect injection are both scoped to
	// this model.
	Target types.Model
	// Previous is the model the history was generated against, if
	// known. Signatures are retained only when Previous.SameModel(Target).
	Previous *types.Model
}

// Apply runs the five normalization steps in order and returns a new
// slice; the input is never mutated in place.
func Apply(history []types.Message, opts Options) []types.Message {
	out := dropUnreplayable(history)
	out = normalizeSignatures(out, opts)
	out = rewriteToolCallIDs(out, opts.Target)
	out = insertSyntheticResults(out)
	out = applyDialectInjections(out, opts.Target)
	return out
}

// step 1: drop assistant messages that represent an error or an aborted
// turn — they were never a valid model output and would confuse a
// provider replaying the conversation.
func dropUnreplayable(history []types.Message) []types.Message {
	out := make([]types.Message, 0, len(history))
	for _, m := range history {
		if m.Role == types.RoleAssistant && isUnreplayable(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func isUnreplayable(m types.Message) bool {
	if m.StopReason == types.StopReasonError || m.StopReason == types.StopReasonAborted {
		return true
	}
	return len(m.Content) == 0
}

// step 2: same-model-scoped signature retention. When replaying to a
// different {provider,api,model} triple, a reasoning block's signature
// cannot be trusted by the new model: strip it, and if the dialect
// requires thinking surfaced as plain text (the DeepSeek compat preset),
// convert rather than drop.
func normalizeSignatures(history []types.Message, opts Options) []types.Message {
	sameModel := opts.Previous != nil && opts.Previous.SameModel(opts.Target)
	out := make([]types.Message, len(history))
	for i, m := range history {
		nm := m
		nm.Content = make([]types.ContentBlock, len(m.Content))
		for j, b := range m.Content {
			nb := b
			switch b.Type {
			case types.ContentBlockTypeReasoning:
				if b.Reasoning != nil {
					r := *b.Reasoning
					if !sameModel {
						r.Signature = nil
					}
					if opts.Target.Dialect.RequiresThinkingAsText {
						nb = thinkingAsText(r)
					} else {
						nb.Reasoning = &r
					}
				}
			case types.ContentBlockTypeToolUse:
				if b.ToolUse != nil && !sameModel {
					tu := *b.ToolUse
					tu.Signature = nil
					nb.ToolUse = &tu
				}
			}
			nm.Content[j] = nb
		}
		out[i] = nm
	}
	return out
}

// thinkingAsTextPrefix marks a reasoning block converted to plain text so
// it can be identified and round-tripped back into a reasoning block if
// the history is later replayed against a model that does support native
// reasoning blocks.
const thinkingAsTextPrefix = "<thinking>\n"
const thinkingAsTextSuffix = "\n</thinking>"

func thinkingAsText(r types.ReasoningBlock) types.ContentBlock {
	text := r.Text
	if text == "" {
		text = r.Summary
	}
	return types.Text(thinkingAsTextPrefix + text + thinkingAsTextSuffix)
}

// step 3: rewrite tool-call ids (both the tool_use.Id and matching
// tool_result.ToolCallId) into the target provider's id grammar. The id
// mapping lives only for this call, so every occurrence of one id gets
// the same rewrite; it is not returned, and ids in a provider's response
// are not translated back. Mirrors goa-ai's bedrock
// sanitizeToolName hash-suffix-truncation pattern, generalized from tool
// *names* to tool-call *ids*.
func rewriteToolCallIDs(history []types.Message, model types.Model) []types.Message {
	grammar := idGrammarFor(model)
	if grammar == nil {
		return history
	}

	mapping := map[string]string{}
	rewrite := func(id string) string {
		if id == "" {
			return id
		}
		if mapped, ok := mapping[id]; ok {
			return mapped
		}
		mapped := grammar.Sanitize(id, len(mapping))
		mapping[id] = mapped
		return mapped
	}

	out := make([]types.Message, len(history))
	for i, m := range history {
		nm := m
		nm.Content = make([]types.ContentBlock, len(m.Content))
		for j, b := range m.Content {
			nb := b
			if b.Type == types.ContentBlockTypeToolUse && b.ToolUse != nil {
				tu := *b.ToolUse
				tu.Id = rewrite(tu.Id)
				nb.ToolUse = &tu
			}
			if b.Type == types.ContentBlockTypeToolResult && b.ToolResult != nil {
				tr := *b.ToolResult
				tr.ToolCallId = rewrite(tr.ToolCallId)
				nb.ToolResult = &tr
			}
			nm.Content[j] = nb
		}
		out[i] = nm
	}
	return out
}

// idGrammar describes one provider's tool-call-id constraints.
type idGrammar struct {
	MaxLen int
	Valid  *regexp.Regexp
	// Exact, if > 0, requires exactly this many characters (Mistral).
	Exact int
}

func idGrammarFor(model types.Model) *idGrammar {
	switch model.Provider {
	case types.ProviderOpenAI, types.ProviderOpenAIResponses, types.ProviderAzureOpenAI:
		return &idGrammar{MaxLen: 40, Valid: alnumDashUnderscore}
	case types.ProviderAnthropic:
		return &idGrammar{MaxLen: 64, Valid: alnumDashUnderscore}
	case types.ProviderCompat:
		if model.Dialect.RequiresMistralToolIds {
			return &idGrammar{Exact: 9, Valid: alnum}
		}
		return &idGrammar{MaxLen: 40, Valid: alnumDashUnderscore}
	default:
		return nil
	}
}

var alnumDashUnderscore = regexp.MustCompile(`[^A-Za-z0-9_-]`)
var alnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// Sanitize rewrites id to satisfy the grammar, appending a short
// sha256-derived suffix when truncation would otherwise risk collisions,
// per goa-ai's sanitizeToolName.
func (g *idGrammar) Sanitize(id string, ordinal int) string {
	cleaned := g.Valid.ReplaceAllString(id, "_")

	if g.Exact > 0 {
		sum := sha256.Sum256([]byte(id))
		hex := hex.EncodeToString(sum[:])
		if len(hex) >= g.Exact {
			return hex[:g.Exact]
		}
		return (hex + strings.Repeat("0", g.Exact))[:g.Exact]
	}

	if g.MaxLen > 0 && len(cleaned) > g.MaxLen {
		sum := sha256.Sum256([]byte(id))
		suffix := "_" + hex.EncodeToString(sum[:])[:8]
		keep := g.MaxLen - len(suffix)
		if keep < 1 {
			keep = 1
		}
		cleaned = cleaned[:keep] + suffix
	}
	return cleaned
}

// step 4: every tool_use block must be answered by a tool_result in the
// immediately following user-role message, or providers reject the
// request outright. If the caller's history was truncated (e.g. by
// compaction, or because a turn was interrupted mid-tool-call) synthesize
// a placeholder result so the request stays valid.
func insertSyntheticResults(history []types.Message) []types.Message {
	out := make([]types.Message, 0, len(history)+1)
	for i, m := range history {
		out = append(out, m)
		if m.Role != types.RoleAssistant {
			continue
		}
		calls := m.ToolCalls()
		if len(calls) == 0 {
			continue
		}

		answered := map[string]bool{}
		if i+1 < len(history) && history[i+1].Role == types.RoleUser {
			for _, r := range history[i+1].ToolResults() {
				answered[r.ToolCallId] = true
			}
		}

		var missing []types.ContentBlock
		for _, c := range calls {
			if !answered[c.Id] {
				missing = append(missing, types.ToolResult(c.Id, "(no result recorded; the turn was interrupted before this tool call completed)", true))
			}
		}
		if len(missing) == 0 {
			continue
		}

		if i+1 < len(history) && history[i+1].Role == types.RoleUser {
			// merged into the following iteration naturally since we
			// appended m already; prepend synthetic results immediately
			// after m so they precede the real next message.
		}
		out = append(out, types.Message{Role: types.RoleUser, Content: missing})
	}
	return out
}

// step 5: dialect-specific injections — inserting a filler assistant
// message where a dialect requires one to immediately follow a tool
// result. The developer-vs-system role choice for the system prompt is
// made in providers/openai, not here.
func applyDialectInjections(history []types.Message, model types.Model) []types.Message {
	if !model.Dialect.RequiresAssistantAfterToolResult {
		return history
	}
	out := make([]types.Message, 0, len(history)+1)
	for i, m := range history {
		out = append(out, m)
		if m.Role == types.RoleUser && len(m.ToolResults()) > 0 {
			isLast := i == len(history)-1
			nextIsAssistant := !isLast && history[i+1].Role == types.RoleAssistant
			if isLast || !nextIsAssistant {
				out = append(out, types.Message{Role: types.RoleAssistant, Content: []types.ContentBlock{types.Text("Continuing.")}})
			}
		}
	}
	return out
}
