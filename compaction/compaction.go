// Package compaction implements the Compaction Engine (§4.7): deciding
// when a session's accumulated history would overflow a model's context
// window, finding a safe cut point, collecting the file operations that
// precede it, and summarizing the discarded prefix into a single
// BranchSummary entry via a dedicated-prompt model call.
//
// Grounded on pkg/utils/tokens.go's tiktoken-backed TokenCounter (per-
// model cached encodings, per-message overhead estimate, char/4
// fallback) from the hector example, adapted to the canonical
// types.Message shape this library uses in place of hector's own
// message struct.
package compaction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"agentcore/credential"
	"agentcore/dispatch"
	"agentcore/providers"
	"agentcore/types"
)

// DefaultTriggerRatio is the fraction of a model's context window that,
// once projected history would exceed, triggers compaction.
const DefaultTriggerRatio = 0.8

// perMessageOverhead and perReplyPadding mirror the OpenAI-cookbook
// token-counting formula hector's TokenCounter implements: each message
// costs a handful of tokens beyond its text for role/name framing, and
// the reply itself is primed with a few more.
const (
	perMessageOverhead = 4
	perReplyPadding    = 2
)

var (
	encodingCache   = map[string]*tiktoken.Tiktoken{}
	encodingCacheMu sync.RWMutex
)

// TokenCounter estimates token counts for a specific model's encoding,
// falling back to cl100k_base and then a char/4 heuristic when tiktoken
// has no encoding data for the model.
type TokenCounter struct {
	model    string
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter resolves (and caches) the tiktoken encoding for model.
func NewTokenCounter(model string) *TokenCounter {
	encodingCacheMu.RLock()
	enc, ok := encodingCache[model]
	encodingCacheMu.RUnlock()
	if ok {
		return &TokenCounter{model: model, encoding: enc}
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err == nil {
		encodingCacheMu.Lock()
		encodingCache[model] = enc
		encodingCacheMu.Unlock()
	}
	return &TokenCounter{model: model, encoding: enc}
}

// Count estimates the token count of a single string.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if tc.encoding == nil {
		return fallbackEstimate(text)
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessage estimates one message's token cost including its
// per-message role/structure overhead.
func (tc *TokenCounter) CountMessage(m types.Message) int {
	total := perMessageOverhead
	for _, block := range m.Content {
		switch block.Type {
		case types.ContentBlockTypeText:
			total += tc.Count(block.Text)
		case types.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				total += tc.Count(block.ToolUse.Name)
				for k, v := range block.ToolUse.Arguments {
					total += tc.Count(k) + tc.Count(fmt.Sprintf("%v", v))
				}
			}
		case types.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				total += tc.Count(block.ToolResult.Text)
			}
		case types.ContentBlockTypeReasoning:
			if block.Reasoning != nil {
				total += tc.Count(block.Reasoning.Text) + tc.Count(block.Reasoning.Summary)
			}
		default:
			total += tc.Count(block.Text)
		}
	}
	return total
}

// CountMessages estimates a full history's token cost.
func (tc *TokenCounter) CountMessages(messages []types.Message) int {
	total := perReplyPadding
	for _, m := range messages {
		total += tc.CountMessage(m)
	}
	return total
}

// fallbackEstimate is the char/4 heuristic used when no tiktoken
// encoding could be resolved at all.
func fallbackEstimate(text string) int {
	return (len(text) + 3) / 4
}

// Options configures the compaction engine.
type Options struct {
	// TriggerRatio is the fraction of Limit.Context that projected usage
	// must exceed before ShouldCompact reports true. Zero means
	// DefaultTriggerRatio.
	TriggerRatio float64
	// ReserveTokens is held back from the context window for the next
	// turn's reply and tool-call overhead: FindCutPoint keeps a suffix
	// that fits within Limit.Context minus ReserveTokens. ShouldCompact
	// does not use it.
	ReserveTokens int
}

func (o Options) triggerRatio() float64 {
	if o.TriggerRatio <= 0 {
		return DefaultTriggerRatio
	}
	return o.TriggerRatio
}

// ShouldCompact reports whether messages' estimated token load for model
// exceeds the trigger threshold.
func ShouldCompact(messages []types.Message, model types.Model, opts Options) bool {
	if model.Limit.Context <= 0 {
		return false
	}
	tc := NewTokenCounter(model.ID)
	projected := tc.CountMessages(messages)
	threshold := int(float64(model.Limit.Context) * opts.triggerRatio())
	return projected > threshold
}

// FileOp is one observed file read/write/edit extracted from a tool-call
// history, used to build the file-operation ledger handed to the
// summarization prompt.
type FileOp struct {
	Path      string
	Operation string // "read" | "write" | "edit"
	MessageIx int
}

// CutPoint is the result of FindCutPoint: the index (into the original
// messages slice) at which the kept suffix begins, and the token load of
// the entries before it.
type CutPoint struct {
	Index           int
	DiscardedTokens int
}

// FindCutPoint walks messages oldest-to-newest, accumulating token
// estimates, and returns the earliest index whose suffix fits within
// contextWindow-reserveTokens. It never splits an assistant tool_use
// message from the following user tool_result message: if the chosen cut
// index would fall strictly between such a pair, it is pushed back to
// include the assistant message too.
func FindCutPoint(messages []types.Message, model types.Model, opts Options) CutPoint {
	tc := NewTokenCounter(model.ID)
	budget := model.Limit.Context - opts.ReserveTokens
	if budget <= 0 {
		budget = model.Limit.Context
	}

	suffixTokens := make([]int, len(messages)+1)
	for i := len(messages) - 1; i >= 0; i-- {
		suffixTokens[i] = suffixTokens[i+1] + tc.CountMessage(messages[i])
	}

	cut := len(messages)
	for i := 0; i <= len(messages); i++ {
		if suffixTokens[i] <= budget {
			cut = i
			break
		}
	}

	for cut > 0 && startsWithToolResult(messages, cut) {
		cut--
	}

	return CutPoint{Index: cut, DiscardedTokens: suffixTokens[0] - suffixTokens[cut]}
}

// startsWithToolResult reports whether messages[cut] is a user message
// whose content is (at least partly) tool results answering a tool_use
// in messages[cut-1], the pairing FindCutPoint must never split.
func startsWithToolResult(messages []types.Message, cut int) bool {
	if cut <= 0 || cut >= len(messages) {
		return false
	}
	cur := messages[cut]
	prev := messages[cut-1]
	if cur.Role != types.RoleUser || prev.Role != types.RoleAssistant {
		return false
	}
	return len(cur.ToolResults()) > 0 && len(prev.ToolCalls()) > 0
}

// CollectFileOps scans messages[:cut] for tool calls that read or
// mutated files (matched by tool name convention: "read"/"edit"/"write"
// substrings, per the builtin tool set's own naming), deduping to the
// last write/edit per path and dropping reads whose file was later
// written.
func CollectFileOps(messages []types.Message, cut int) []FileOp {
	var ops []FileOp
	for i := 0; i < cut && i < len(messages); i++ {
		for _, call := range messages[i].ToolCalls() {
			op, path, ok := classifyFileCall(call)
			if !ok {
				continue
			}
			ops = append(ops, FileOp{Path: path, Operation: op, MessageIx: i})
		}
	}
	return dedupeFileOps(ops)
}

func classifyFileCall(call types.ToolUseBlock) (op, path string, ok bool) {
	name := strings.ToLower(call.Name)
	path, _ = call.Arguments["path"].(string)
	if path == "" {
		path, _ = call.Arguments["file_path"].(string)
	}
	if path == "" {
		return "", "", false
	}
	switch {
	case strings.Contains(name, "edit"):
		return "edit", path, true
	case strings.Contains(name, "write"):
		return "write", path, true
	case strings.Contains(name, "read") || strings.Contains(name, "cat"):
		return "read", path, true
	default:
		return "", "", false
	}
}

// dedupeFileOps keeps the last write/edit per path, plus reads whose
// path has no later write/edit (§4.7 step 2).
func dedupeFileOps(ops []FileOp) []FileOp {
	lastWrite := map[string]int{}
	for i, op := range ops {
		if op.Operation == "write" || op.Operation == "edit" {
			lastWrite[op.Path] = i
		}
	}

	keep := map[int]bool{}
	for _, idx := range lastWrite {
		keep[idx] = true
	}
	for i, op := range ops {
		if op.Operation != "read" {
			continue
		}
		if last, written := lastWrite[op.Path]; !written || last < i {
			keep[i] = true
		}
	}

	var out []FileOp
	for i, op := range ops {
		if keep[i] {
			out = append(out, op)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].MessageIx < out[b].MessageIx })
	return out
}

const summarizePrompt = `You are compacting a coding agent's conversation history to free up context.
Summarize the conversation below into a concise but complete briefing for
continuing the work: what the user asked for, what has been done, what
decisions were made and why, and the exact state of any files touched.
End with a "Files touched" list naming each path and its last known
operation. Do not omit information needed to resume the work correctly.`

// Summarize dispatches a dedicated-prompt call against model (normally
// the same model driving the session) to produce the BranchSummary text
// for the discarded prefix, folding in the deduped file-operation ledger
// so file state survives the cut even though the raw tool calls don't.
func Summarize(ctx context.Context, dispatcher *dispatch.Dispatcher, cred credential.Resolver, model types.Model, discarded []types.Message, fileOps []FileOp) (string, error) {
	var ledger strings.Builder
	ledger.WriteString("Known file operations preceding this point:\n")
	for _, op := range fileOps {
		fmt.Fprintf(&ledger, "- %s: %s\n", op.Operation, op.Path)
	}

	req := providers.StreamRequest{
		Params: providers.Params{
			SystemPrompt: summarizePrompt,
			Messages:     append(append([]types.Message{}, discarded...), types.Message{Role: types.RoleUser, Content: []types.ContentBlock{types.Text(ledger.String())}}),
			Model:        model,
		},
		Credential: cred,
	}

	events := make(chan types.Event)
	go func() {
		for range events {
		}
	}()
	resp, err := dispatcher.Dispatch(ctx, req, nil, events)
	close(events)
	if err != nil {
		return "", fmt.Errorf("compaction: summarize call failed: %w", err)
	}
	return resp.Output.TextContent(), nil
}

// Result is the outcome of a full Compact run: the new suffix that
// becomes the live context, plus the summary text recorded as a
// BranchSummary entry.
type Result struct {
	Summary         string
	Suffix          []types.Message
	DiscardedCount  int
	DiscardedTokens int
	FileOps         []FileOp
}

// Compact runs all four steps of §4.7's algorithm against messages,
// returning the new suffix and summary a caller should splice into the
// session (append a BranchSummary entry, then carry Suffix forward as
// the live context while the discarded entries remain in the log
// un-retransmitted).
func Compact(ctx context.Context, dispatcher *dispatch.Dispatcher, cred credential.Resolver, model types.Model, messages []types.Message, opts Options) (Result, error) {
	cut := FindCutPoint(messages, model, opts)
	fileOps := CollectFileOps(messages, cut.Index)
	discarded := messages[:cut.Index]
	suffix := messages[cut.Index:]

	summary, err := Summarize(ctx, dispatcher, cred, model, discarded, fileOps)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Summary:         summary,
		Suffix:          suffix,
		DiscardedCount:  cut.Index,
		DiscardedTokens: cut.DiscardedTokens,
		FileOps:         fileOps,
	}, nil
}
