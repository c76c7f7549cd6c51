// Package anthropic implements the Anthropic Messages provider adapter
// (§4.2A): request construction (role batching, cache-control markers,
// extended-thinking budgets, tool_result image handling) and streaming
// response assembly.
//
// Grounded on llm2/anthropic_provider.go in full: messagesToAnthropicParams's
// role-flushing batcher, contentBlockToAnthropicParam's full content-type
// switch, the extended-thinking budget table (low=5000/medium=10000/
// high=20000), and the ContentBlockStart/Delta/Stop streaming loop with
// its per-index blockIndexMap.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"agentcore/apierr"
	"agentcore/imaging"
	"agentcore/providers"
	"agentcore/stream"
	"agentcore/types"
)

const (
	defaultModel     = "claude-opus-4-6"
	defaultMaxTokens = 16000

	maxImageBytes      = 30 * 1024 * 1024
	maxImageLongEdgePx = 1568
)

// thinkingBudgets maps the normalized effort dial to Anthropic's
// thinking.budget_tokens, per llm2/anthropic_provider.go.
var thinkingBudgets = map[types.ReasoningEffort]int64{
	types.ReasoningEffortLow:    5000,
	types.ReasoningEffortMedium: 10000,
	types.ReasoningEffortHigh:   20000,
	types.ReasoningEffortXHigh:  40000,
}

// Provider implements providers.Provider for the Anthropic Messages API.
type Provider struct {
	// HTTPTimeout bounds one streaming call; long-running agentic turns
	// can run for many minutes.
	HTTPTimeout time.Duration
}

func New() *Provider {
	return &Provider{HTTPTimeout: 45 * time.Minute}
}

func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	model := req.Params.Model
	modelID := model.ID
	if modelID == "" {
		modelID = defaultModel
	}

	apiKey, err := req.Params.ResolveAPIKey(req.Credential, "anthropic")
	if err != nil {
		return nil, apierr.New(apierr.KindAuth, "anthropic", err)
	}

	timeout := p.HTTPTimeout
	if timeout == 0 {
		timeout = 45 * time.Minute
	}
	clientOpts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithAPIKey(apiKey),
	}
	for k, v := range providers.MergedHeaders(req.Params) {
		clientOpts = append(clientOpts, option.WithHeader(k, v))
	}
	client := anthropic.NewClient(clientOpts...)

	maxTokens := req.Params.EffectiveMaxTokens()
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if model.Limit.Output > 0 && maxTokens > model.Limit.Output {
		maxTokens = model.Limit.Output
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: int64(maxTokens),
	}

	if req.Params.Temperature != nil {
		params.Temperature = anthropic.Opt(float64(*req.Params.Temperature))
	}

	if req.Params.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Params.SystemPrompt}}
	}

	msgParams, err := messagesToParams(req.Params.Messages)
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidRequest, "anthropic", err)
	}
	params.Messages = msgParams

	if len(req.Params.Tools) > 0 {
		params.Tools = toolsToParams(req.Params.Tools)
		parallel := req.Params.ParallelToolCalls == nil || *req.Params.ParallelToolCalls
		params.ToolChoice = toolChoiceToParam(req.Params.ToolChoice, parallel)
	}

	if model.ReasoningEffort != "" {
		budget, ok := thinkingBudgets[model.ReasoningEffort]
		if !ok {
			budget = thinkingBudgets[types.ReasoningEffortMedium]
		}
		if int64(maxTokens) <= budget {
			maxTokens = int(budget) + 1000
			params.MaxTokens = int64(maxTokens)
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	if req.Params.CacheRetention != providers.CacheRetentionNone && len(params.System) > 0 {
		params.System[len(params.System)-1].CacheControl = anthropic.CacheControlEphemeralParam{}
	}

	if req.Params.OnPayload != nil {
		if payload, err := json.Marshal(params); err == nil {
			req.Params.OnPayload(payload)
		}
	}

	respStream := client.Messages.NewStreaming(ctx, params)

	var finalMessage anthropic.Message
	acc := stream.NewAccumulator()
	nextIndex := 0
	blockIndexMap := make(map[int64]int)
	started, stopped := 0, 0

	for respStream.Next() {
		event := respStream.Current()
		if err := finalMessage.Accumulate(event); err != nil {
			return nil, apierr.New(apierr.KindTransport, "anthropic", fmt.Errorf("accumulate: %w", err))
		}

		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			blockIndexMap[evt.Index] = nextIndex
			var cb types.ContentBlock
			switch evt.ContentBlock.Type {
			case "text":
				cb = types.ContentBlock{Type: types.ContentBlockTypeText}
			case "tool_use":
				cb = types.ContentBlock{Type: types.ContentBlockTypeToolUse, ToolUse: &types.ToolUseBlock{
					Id: evt.ContentBlock.ID, Name: evt.ContentBlock.Name, Arguments: map[string]any{},
				}}
			case "thinking":
				cb = types.ContentBlock{Type: types.ContentBlockTypeReasoning, Reasoning: &types.ReasoningBlock{}}
			default:
				return nil, apierr.New(apierr.KindTransport, "anthropic", fmt.Errorf("unsupported content block type %q", evt.ContentBlock.Type))
			}
			ev := types.Event{Type: types.EventTypeBlockStarted, Index: nextIndex, ContentBlock: &cb}
			if err := acc.Apply(ev); err != nil {
				return nil, err
			}
			eventChan <- ev
			nextIndex++
			started++

		case anthropic.ContentBlockDeltaEvent:
			idx, ok := blockIndexMap[evt.Index]
			if !ok {
				return nil, apierr.New(apierr.KindTransport, "anthropic", fmt.Errorf("delta for unknown block index %d", evt.Index))
			}
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				ev := types.Event{Type: types.EventTypeTextDelta, Index: idx, Delta: &types.Delta{Text: delta.Text}}
				_ = acc.Apply(ev)
				eventChan <- ev
			case anthropic.InputJSONDelta:
				ev := types.Event{Type: types.EventTypeTextDelta, Index: idx, Delta: &types.Delta{PartialArguments: delta.PartialJSON}}
				_ = acc.Apply(ev)
				eventChan <- ev
			case anthropic.ThinkingDelta:
				ev := types.Event{Type: types.EventTypeTextDelta, Index: idx, Delta: &types.Delta{Text: delta.Thinking}}
				_ = acc.Apply(ev)
				eventChan <- ev
			case anthropic.SignatureDelta:
				ev := types.Event{Type: types.EventTypeSignatureDelta, Index: idx, Delta: &types.Delta{Signature: []byte(delta.Signature)}}
				_ = acc.Apply(ev)
				eventChan <- ev
			}

		case anthropic.ContentBlockStopEvent:
			idx, ok := blockIndexMap[evt.Index]
			if !ok {
				return nil, apierr.New(apierr.KindTransport, "anthropic", fmt.Errorf("stop for unknown block index %d", evt.Index))
			}
			ev := types.Event{Type: types.EventTypeBlockDone, Index: idx}
			_ = acc.Apply(ev)
			eventChan <- ev
			stopped++
		}
	}

	if err := respStream.Err(); err != nil {
		return nil, classifyHTTPErr(err)
	}
	if started != stopped {
		return nil, apierr.New(apierr.KindTransport, "anthropic", fmt.Errorf("stream truncated: started %d blocks, stopped %d", started, stopped))
	}

	output := acc.Message(types.RoleAssistant)

	responseModel := string(finalMessage.Model)
	if responseModel == "" {
		responseModel = modelID
	}

	usage := types.Usage{
		InputTokens:      int(finalMessage.Usage.InputTokens) + int(finalMessage.Usage.CacheReadInputTokens) + int(finalMessage.Usage.CacheCreationInputTokens),
		OutputTokens:     int(finalMessage.Usage.OutputTokens),
		CacheReadTokens:  int(finalMessage.Usage.CacheReadInputTokens),
		CacheWriteTokens: int(finalMessage.Usage.CacheCreationInputTokens),
	}

	return &types.MessageResponse{
		Id:           finalMessage.ID,
		Model:        responseModel,
		Provider:     types.ProviderAnthropic,
		Output:       output,
		StopReason:   mapStopReason(string(finalMessage.StopReason)),
		StopSequence: finalMessage.StopSequence,
		Usage:        usage,
	}, nil
}

// StreamSimple implements the reduced streamSimple entry point (§4.2) by
// folding SimpleStreamOptions onto the model and delegating to Stream.
func (p *Provider) StreamSimple(ctx context.Context, req providers.SimpleStreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	return p.Stream(ctx, req.AsStreamRequest(), eventChan)
}

func mapStopReason(r string) types.StopReason {
	switch r {
	case "end_turn":
		return types.StopReasonEndTurn
	case "tool_use":
		return types.StopReasonToolUse
	case "max_tokens":
		return types.StopReasonMaxTokens
	case "stop_sequence":
		return types.StopReasonStopSequence
	case "refusal":
		return types.StopReasonRefusal
	default:
		return types.StopReasonEndTurn
	}
}

func classifyHTTPErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return apierr.New(apierr.KindRateLimited, "anthropic", err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return apierr.New(apierr.KindAuth, "anthropic", err)
	case strings.Contains(msg, "400") && strings.Contains(strings.ToLower(msg), "context"):
		return apierr.New(apierr.KindOverflow, "anthropic", err)
	default:
		return apierr.New(apierr.KindTransport, "anthropic", err)
	}
}

func roleToParam(role types.Role) anthropic.MessageParamRole {
	if role == types.RoleAssistant {
		return anthropic.MessageParamRoleAssistant
	}
	return anthropic.MessageParamRoleUser
}

// messagesToParams batches consecutive same-role canonical messages into
// single Anthropic user/assistant turns, per messagesToAnthropicParams.
func messagesToParams(messages []types.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	var currentRole anthropic.MessageParamRole
	var currentBlocks []anthropic.ContentBlockParamUnion
	haveCurrent := false

	flush := func() {
		if len(currentBlocks) == 0 {
			return
		}
		if currentRole == anthropic.MessageParamRoleUser {
			result = append(result, anthropic.NewUserMessage(currentBlocks...))
		} else {
			result = append(result, anthropic.NewAssistantMessage(currentBlocks...))
		}
		currentBlocks = nil
	}

	for _, msg := range messages {
		role := roleToParam(msg.Role)
		if haveCurrent && role != currentRole {
			flush()
		}
		currentRole = role
		haveCurrent = true

		for _, block := range msg.Content {
			pb, err := contentBlockToParam(block)
			if err != nil {
				return nil, err
			}
			if pb != nil {
				currentBlocks = append(currentBlocks, *pb)
			}
		}
	}
	flush()
	return result, nil
}

func contentBlockToParam(block types.ContentBlock) (*anthropic.ContentBlockParamUnion, error) {
	switch block.Type {
	case types.ContentBlockTypeText:
		tb := anthropic.NewTextBlock(block.Text)
		applyCacheControl(&tb, block.CacheControl)
		return &tb, nil

	case types.ContentBlockTypeToolUse:
		if block.ToolUse == nil {
			return nil, fmt.Errorf("tool_use block missing ToolUse")
		}
		tb := anthropic.NewToolUseBlock(block.ToolUse.Id, block.ToolUse.Arguments, block.ToolUse.Name)
		return &tb, nil

	case types.ContentBlockTypeToolResult:
		if block.ToolResult == nil {
			return nil, fmt.Errorf("tool_result block missing ToolResult")
		}
		tr := block.ToolResult
		if strings.HasPrefix(tr.Text, "data:image/") {
			img, err := toolResultImageParam(tr.Text)
			if err != nil {
				return nil, err
			}
			tb := anthropic.NewToolResultBlock(tr.ToolCallId, "", tr.IsError)
			tb.OfToolResult.Content = []anthropic.ToolResultBlockParamContentUnion{{OfImage: img}}
			return &tb, nil
		}
		tb := anthropic.NewToolResultBlock(tr.ToolCallId, tr.Text, tr.IsError)
		return &tb, nil

	case types.ContentBlockTypeImage:
		if block.Image == nil {
			return nil, fmt.Errorf("image block missing Image")
		}
		ib, err := imageBlockFromRef(*block.Image)
		if err != nil {
			return nil, err
		}
		pb := anthropic.ContentBlockParamUnion{OfImage: ib}
		return &pb, nil

	case types.ContentBlockTypeReasoning:
		// Reasoning blocks are not replayed verbatim into a fresh
		// request unless the caller explicitly kept them via the
		// transform layer's signature-retention policy; by the time a
		// message reaches this adapter, transform has already decided
		// whether to strip, keep, or convert it to text.
		if block.Reasoning == nil {
			return nil, nil
		}
		tb := anthropic.ContentBlockParamUnion{
			OfThinking: &anthropic.ThinkingBlockParam{
				Thinking:  block.Reasoning.Text,
				Signature: string(block.Reasoning.Signature),
			},
		}
		return &tb, nil

	case types.ContentBlockTypeRefusal:
		return nil, nil

	default:
		return nil, fmt.Errorf("anthropic adapter: unsupported content block type %q", block.Type)
	}
}

func applyCacheControl(tb *anthropic.ContentBlockParamUnion, cc *types.CacheControl) {
	if cc == nil || tb.OfText == nil {
		return
	}
	tb.OfText.CacheControl = anthropic.CacheControlEphemeralParam{}
}

func imageBlockFromRef(ref types.ImageRef) (*anthropic.ImageBlockParam, error) {
	if strings.HasPrefix(ref.URL, "http://") || strings.HasPrefix(ref.URL, "https://") {
		return &anthropic.ImageBlockParam{
			Source: anthropic.ImageBlockParamSourceUnion{OfURL: &anthropic.URLImageSourceParam{URL: ref.URL, Type: "url"}},
		}, nil
	}
	mime, raw, err := imaging.ParseDataURL(ref.URL)
	if err != nil {
		return nil, fmt.Errorf("anthropic adapter: %w", err)
	}
	if len(raw) > maxImageBytes {
		result, err := imaging.PrepareForLimits(raw, maxImageBytes, maxImageLongEdgePx)
		if err != nil && result.Data == nil {
			return nil, fmt.Errorf("anthropic adapter: preparing image: %w", err)
		}
		mime, raw = result.MimeType, result.Data
	}
	return &anthropic.ImageBlockParam{
		Source: anthropic.ImageBlockParamSourceUnion{
			OfBase64: &anthropic.Base64ImageSourceParam{
				MediaType: anthropic.Base64ImageSourceMediaType(mime),
				Data:      base64.StdEncoding.EncodeToString(raw),
				Type:      "base64",
			},
		},
	}, nil
}

// toolResultImageParam handles a tool_result whose Text is itself an
// image data URL (e.g. the read tool routing an image file back to the
// model), resizing it to Anthropic's tool_result image limits.
func toolResultImageParam(dataURL string) (*anthropic.Base64ImageSourceParam, error) {
	mime, raw, err := imaging.ParseDataURL(dataURL)
	if err != nil {
		return nil, fmt.Errorf("anthropic adapter: tool_result image: %w", err)
	}
	if result, err := imaging.PrepareForLimits(raw, maxImageBytes, maxImageLongEdgePx); result.Data != nil {
		_ = err // PrepareForLimits returns its best-effort result even when it couldn't fit the budget
		mime, raw = result.MimeType, result.Data
	}
	return &anthropic.Base64ImageSourceParam{
		MediaType: anthropic.Base64ImageSourceMediaType(mime),
		Data:      base64.StdEncoding.EncodeToString(raw),
		Type:      "base64",
	}, nil
}

func toolsToParams(tools []types.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: rawSchemaToInputSchema(t.Parameters),
			},
		})
	}
	return out
}

// rawSchemaToInputSchema decodes a types.Tool's JSON Schema into the
// loosely-typed shape the Anthropic SDK's ToolInputSchemaParam expects
// (Type plus arbitrary Properties/Required extras).
func rawSchemaToInputSchema(raw json.RawMessage) anthropic.ToolInputSchemaParam {
	var decoded struct {
		Type       string                    `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	if decoded.Type == "" {
		decoded.Type = "object"
	}
	return anthropic.ToolInputSchemaParam{
		Properties: decoded.Properties,
		Required:   decoded.Required,
	}
}

func toolChoiceToParam(choice types.ToolChoice, parallel bool) anthropic.ToolChoiceUnionParam {
	disableParallel := !parallel
	switch choice.Mode {
	case types.ToolChoiceAny:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{DisableParallelToolUse: anthropic.Bool(disableParallel)}}
	case types.ToolChoiceTool:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name, DisableParallelToolUse: anthropic.Bool(disableParallel)}}
	case types.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{DisableParallelToolUse: anthropic.Bool(disableParallel)}}
	}
}
