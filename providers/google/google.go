// Package google implements the Google Generative AI (Gemini) provider
// adapter (§4.2D).
//
// Grounded on llm2/google_provider.go: tool calls arrive complete (no
// incremental delta), so each is emitted as a block_started carrying
// the full ContentBlock, immediately followed by its block_done;
// text/reasoning parts coalesce into
// one block per contiguous run sharing a thought-signature state,
// because Google's docs say not to concatenate a signed part with an
// unsigned one or with a differently-signed one; a thinking model's
// function calls get a synthetic thought_signature placeholder when
// the provider didn't supply one, working around a validator that
// otherwise rejects the call. The heartbeat goroutine that works
// around Temporal's activity heartbeat timeout during long silent
// gaps is dropped entirely here — dispatch.Dispatcher's stall-timeout
// mechanism in this library serves the same purpose without a
// workflow-engine dependency.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"agentcore/apierr"
	"agentcore/providers"
	"agentcore/stream"
	"agentcore/types"
)

const defaultModel = "gemini-3-pro-preview"

// legacyThinkingBudgets applies to the 2.x generation of models, which
// take a numeric thinking-token budget rather than a named level.
var legacyThinkingBudgets = map[types.ReasoningEffort]int32{
	types.ReasoningEffortLow:    1024,
	types.ReasoningEffortMedium: 8192,
	types.ReasoningEffortHigh:   24576,
	types.ReasoningEffortXHigh:  32768,
}

type Provider struct {
	DefaultModel string
	HTTPTimeout  time.Duration
}

func New() *Provider { return &Provider{HTTPTimeout: 10 * time.Minute} }

func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	model := req.Params.Model
	modelID := model.ID
	if modelID == "" {
		if p.DefaultModel != "" {
			modelID = p.DefaultModel
		} else {
			modelID = defaultModel
		}
	}

	apiKey, err := req.Params.ResolveAPIKey(req.Credential, "google")
	if err != nil {
		return nil, apierr.New(apierr.KindAuth, "google", err)
	}

	timeout := p.HTTPTimeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	httpClient := &http.Client{Timeout: timeout}
	if headers := providers.MergedHeaders(req.Params); len(headers) > 0 {
		httpClient.Transport = &headerInjectingTransport{headers: headers, base: http.DefaultTransport}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, apierr.New(apierr.KindTransport, "google", fmt.Errorf("create client: %w", err))
	}

	isReasoningModel := model.ReasoningMode != types.ReasoningModeNone

	contents := messagesToContents(req.Params.Messages, isReasoningModel)
	config := &genai.GenerateContentConfig{}

	if req.Params.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.Params.SystemPrompt}},
			Role:  "user",
		}
	}

	if len(req.Params.Tools) > 0 {
		toolConfig, err := toolChoiceToConfig(req.Params.ToolChoice)
		if err != nil {
			return nil, apierr.New(apierr.KindInvalidRequest, "google", err)
		}
		config.ToolConfig = toolConfig
		config.Tools = toolsToGenai(req.Params.Tools)
		// Google has no parallel-tool-calls toggle; the model decides on
		// its own whether to emit multiple calls.
	}

	if isReasoningModel {
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
		if model.ReasoningEffort != "" {
			if strings.Contains(modelID, "2.5") {
				if budget, ok := legacyThinkingBudgets[model.ReasoningEffort]; ok {
					config.ThinkingConfig.ThinkingBudget = &budget
				}
			} else {
				config.ThinkingConfig.ThinkingLevel = genai.ThinkingLevel(strings.ToUpper(string(model.ReasoningEffort)))
			}
		}
	}

	if req.Params.Temperature != nil {
		t := float32(*req.Params.Temperature)
		config.Temperature = &t
	}
	if maxTokens := req.Params.EffectiveMaxTokens(); maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}

	if req.Params.OnPayload != nil {
		if payload, err := json.Marshal(config); err == nil {
			req.Params.OnPayload(payload)
		}
	}

	respStream := client.Models.GenerateContentStream(ctx, modelID, contents, config)

	acc := stream.NewAccumulator()
	state := &streamState{nextIndex: 0}
	var lastResult *genai.GenerateContentResponse

	emit := func(ev types.Event) error {
		if err := acc.Apply(ev); err != nil {
			return err
		}
		eventChan <- ev
		return nil
	}

	for result, err := range respStream {
		if err != nil {
			return nil, apierr.New(apierr.KindTransport, "google", fmt.Errorf("stream iteration: %w", err))
		}
		lastResult = result
		for _, ev := range resultToEvents(result, state) {
			if err := emit(ev); err != nil {
				return nil, err
			}
		}
	}
	for _, ev := range finalizeStream(state) {
		if err := emit(ev); err != nil {
			return nil, err
		}
	}

	var usage types.Usage
	var stopReason string
	if lastResult != nil && lastResult.UsageMetadata != nil {
		u := lastResult.UsageMetadata
		usage.InputTokens = int(u.PromptTokenCount)
		usage.OutputTokens = int(u.CandidatesTokenCount) + int(u.ThoughtsTokenCount)
		usage.CacheReadTokens = int(u.CachedContentTokenCount)
	}
	if lastResult != nil && len(lastResult.Candidates) > 0 {
		stopReason = string(lastResult.Candidates[0].FinishReason)
	}

	return &types.MessageResponse{
		Model:      modelID,
		Provider:   model.Provider,
		Output:     acc.Message(types.RoleAssistant),
		StopReason: mapFinishReason(stopReason),
		Usage:      usage,
	}, nil
}

// StreamSimple implements the reduced streamSimple entry point (§4.2) by
// folding SimpleStreamOptions onto the model and delegating to Stream.
func (p *Provider) StreamSimple(ctx context.Context, req providers.SimpleStreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	return p.Stream(ctx, req.AsStreamRequest(), eventChan)
}

// headerInjectingTransport merges fixed headers onto every outgoing
// request, working around genai's client not exposing a per-request
// header option the way openai-go/anthropic-sdk-go do.
type headerInjectingTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

func mapFinishReason(r string) types.StopReason {
	switch strings.ToUpper(r) {
	case "STOP":
		return types.StopReasonEndTurn
	case "MAX_TOKENS":
		return types.StopReasonMaxTokens
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return types.StopReasonRefusal
	default:
		return types.StopReasonEndTurn
	}
}

// streamState tracks the currently-open block across GenerateContentResponse
// chunks so contiguous text/reasoning parts coalesce into one canonical
// content block instead of one per chunk.
type streamState struct {
	nextIndex    int
	open         bool
	blockIdx     int
	blockType    types.ContentBlockType
	hasSignature bool
	pendingSig   []byte
}

func resultToEvents(result *genai.GenerateContentResponse, state *streamState) []types.Event {
	if result == nil || len(result.Candidates) == 0 {
		return nil
	}
	candidate := result.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil
	}

	var events []types.Event

	for _, part := range candidate.Content.Parts {
		if part.FunctionCall != nil {
			if state.open && (state.blockType == types.ContentBlockTypeText || state.blockType == types.ContentBlockTypeReasoning) {
				events = append(events, types.Event{Type: types.EventTypeBlockDone, Index: state.blockIdx})
				state.open = false
			}

			idx := state.nextIndex
			state.nextIndex++

			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}

			cb := types.ContentBlock{
				Type: types.ContentBlockTypeToolUse,
				ToolUse: &types.ToolUseBlock{
					Id:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: args,
					Signature: part.ThoughtSignature,
				},
			}
			events = append(events, types.Event{Type: types.EventTypeBlockStarted, Index: idx, ContentBlock: &cb})
			events = append(events, types.Event{Type: types.EventTypeBlockDone, Index: idx})
			continue
		}

		if part.Text == "" && len(part.ThoughtSignature) == 0 {
			continue
		}
		if part.Text == "" && len(part.ThoughtSignature) > 0 {
			state.pendingSig = part.ThoughtSignature
			continue
		}

		var blockType types.ContentBlockType
		if part.Thought {
			blockType = types.ContentBlockTypeReasoning
		} else {
			blockType = types.ContentBlockTypeText
		}
		partHasSig := len(part.ThoughtSignature) > 0

		needNewBlock := !state.open || state.blockType != blockType || state.hasSignature || partHasSig
		if needNewBlock {
			if state.open {
				events = append(events, types.Event{Type: types.EventTypeBlockDone, Index: state.blockIdx})
			}
			idx := state.nextIndex
			state.nextIndex++
			state.blockIdx = idx
			state.blockType = blockType
			state.open = true
			state.hasSignature = partHasSig

			var cb types.ContentBlock
			if blockType == types.ContentBlockTypeReasoning {
				cb = types.ContentBlock{Type: types.ContentBlockTypeReasoning, Reasoning: &types.ReasoningBlock{Signature: part.ThoughtSignature}}
			} else {
				cb = types.ContentBlock{Type: types.ContentBlockTypeText}
			}
			events = append(events, types.Event{Type: types.EventTypeBlockStarted, Index: idx, ContentBlock: &cb})
		}

		if blockType == types.ContentBlockTypeReasoning {
			events = append(events, types.Event{Type: types.EventTypeSummaryTextDelta, Index: state.blockIdx, Delta: &types.Delta{SummaryText: part.Text}})
		} else {
			events = append(events, types.Event{Type: types.EventTypeTextDelta, Index: state.blockIdx, Delta: &types.Delta{Text: part.Text}})
		}
	}

	return events
}

func finalizeStream(state *streamState) []types.Event {
	if !state.open {
		return nil
	}
	var events []types.Event
	if len(state.pendingSig) > 0 {
		events = append(events, types.Event{
			Type: types.EventTypeSignatureDelta, Index: state.blockIdx,
			Delta: &types.Delta{Signature: state.pendingSig},
		})
	}
	events = append(events, types.Event{Type: types.EventTypeBlockDone, Index: state.blockIdx})
	return events
}

func toolChoiceToConfig(choice types.ToolChoice) (*genai.ToolConfig, error) {
	var mode genai.FunctionCallingConfigMode
	var allowed []string
	switch choice.Mode {
	case types.ToolChoiceAuto:
		mode = genai.FunctionCallingConfigModeAuto
	case types.ToolChoiceAny:
		mode = genai.FunctionCallingConfigModeAny
	case types.ToolChoiceTool:
		mode = genai.FunctionCallingConfigModeAny
		allowed = append(allowed, choice.Name)
	case types.ToolChoiceNone:
		mode = genai.FunctionCallingConfigModeNone
	default:
		return nil, fmt.Errorf("google adapter: unknown tool choice mode %q", choice.Mode)
	}
	return &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode, AllowedFunctionNames: allowed},
	}, nil
}

// thoughtSignaturePlaceholder works around a server-side validator that
// rejects function calls from a thinking model when no thought signature
// is attached, even though the model legitimately produced none for this
// call.
var thoughtSignaturePlaceholder = []byte("skip_thought_signature_validator")

func messagesToContents(messages []types.Message, isReasoningModel bool) []*genai.Content {
	var contents []*genai.Content
	var currentRole string
	var currentParts []*genai.Part

	flush := func() {
		if len(currentParts) > 0 {
			contents = append(contents, &genai.Content{Parts: currentParts, Role: currentRole})
		}
	}

	for _, m := range messages {
		role := "user"
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		if role != currentRole && currentRole != "" {
			flush()
			currentParts = nil
		}
		currentRole = role

		for _, block := range m.Content {
			switch block.Type {
			case types.ContentBlockTypeText:
				if block.Text == "" {
					continue
				}
				currentParts = append(currentParts, &genai.Part{Text: block.Text})

			case types.ContentBlockTypeReasoning:
				if block.Reasoning != nil && block.Reasoning.Text != "" {
					currentParts = append(currentParts, &genai.Part{
						Text: block.Reasoning.Text, Thought: true, ThoughtSignature: block.Reasoning.Signature,
					})
				}

			case types.ContentBlockTypeToolUse:
				if block.ToolUse == nil {
					continue
				}
				sig := block.ToolUse.Signature
				if isReasoningModel && len(sig) == 0 {
					sig = thoughtSignaturePlaceholder
				}
				currentParts = append(currentParts, &genai.Part{
					FunctionCall:     &genai.FunctionCall{ID: block.ToolUse.Id, Name: block.ToolUse.Name, Args: block.ToolUse.Arguments},
					ThoughtSignature: sig,
				})

			case types.ContentBlockTypeToolResult:
				if block.ToolResult == nil {
					continue
				}
				if currentRole != "user" {
					flush()
					currentParts = nil
					currentRole = "user"
				}
				resp := genai.FunctionResponse{ID: block.ToolResult.ToolCallId, Name: block.ToolResult.Name}
				if block.ToolResult.IsError {
					resp.Response = map[string]any{"error": block.ToolResult.Text}
				} else {
					resp.Response = map[string]any{"output": block.ToolResult.Text}
				}
				currentParts = append(currentParts, &genai.Part{FunctionResponse: &resp})

			case types.ContentBlockTypeImage, types.ContentBlockTypeFile:
				// unsupported on this adapter; dropped rather than erroring
				// so a mixed-content history can still be replayed.
			}
		}
	}
	flush()
	return contents
}

func toolsToGenai(tools []types.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  mapToGenaiSchema(schema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// mapToGenaiSchema converts a decoded JSON Schema map into genai.Schema.
// Grounded on googleFromLlm2Schema, generalized from the invopop
// jsonschema.Schema type (which the tool runtime here doesn't use) to a
// plain map[string]any decode of the tool's raw JSON Schema.
func mapToGenaiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = genai.Type(t)
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			s.Enum = append(s.Enum, fmt.Sprintf("%v", e))
		}
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if vm, ok := v.(map[string]any); ok {
				s.Properties[k] = mapToGenaiSchema(vm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = mapToGenaiSchema(items)
	}
	return s
}
