// Package openairesponses implements the OpenAI Responses API provider
// adapter (§4.2C): encrypted-reasoning-item replay, response.output_item
// /content_part event translation, and the Responses-specific input-item
// encoding (function_call/function_call_output/reasoning items instead
// of Chat Completions' flat message array).
//
// Grounded on llm2/openai_responses_provider.go in full: messageToResponsesInput's
// per-content-block-type item construction (assistant text becomes an
// output_message item, not an input message), the
// response.content_part.added / response.output_item.added event split
// (a message's content type is only known once content_part.added
// arrives, so block_started for text/refusal waits for that event while
// tool_use/reasoning blocks start at output_item.added),
// accumulateOpenaiEventsToMessage's encrypted-content-as-full-replacement
// handling of signature_delta, and openaiResponsesFromToolChoice's
// required-mode handling for ToolChoiceTool (the Responses API has no
// choose-this-exact-function option; Required plus a single filtered
// tool achieves the same effect).
package openairesponses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"agentcore/apierr"
	"agentcore/providers"
	"agentcore/stream"
	"agentcore/types"
)

const defaultModel = "gpt-5.2-codex"

// Provider implements providers.Provider for the OpenAI Responses API.
type Provider struct {
	BaseURL      string
	DefaultModel string
	HTTPTimeout  time.Duration
}

func New() *Provider { return &Provider{HTTPTimeout: 45 * time.Minute} }

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

	apiKey, err := req.Params.ResolveAPIKey(req.Credential, "openai")
	if err != nil {
		return nil, apierr.New(apierr.KindAuth, "openai_responses", err)
	}

	timeout := p.HTTPTimeout
	if timeout == 0 {
		timeout = 45 * time.Minute
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	baseURL := p.BaseURL
	if model.BaseURL != "" {
		baseURL = model.BaseURL
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	for k, v := range providers.MergedHeaders(req.Params) {
		opts = append(opts, option.WithHeader(k, v))
	}
	client := openai.NewClient(opts...)

	inputItems, err := messagesToResponsesInput(req.Params.Messages)
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidRequest, "openai_responses", err)
	}

	params := responses.ResponseNewParams{
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: inputItems},
		Model: shared.ResponsesModel(modelID),
		Store: openai.Bool(false),
	}

	if req.Params.Temperature != nil {
		params.Temperature = openai.Float(float64(*req.Params.Temperature))
	}

	if maxTokens := req.Params.EffectiveMaxTokens(); maxTokens > 0 {
		params.MaxOutputTokens = param.NewOpt(int64(maxTokens))
	}

	if req.Params.SystemPrompt != "" {
		params.Instructions = param.NewOpt(req.Params.SystemPrompt)
	}

	if len(req.Params.Tools) > 0 {
		toolsToUse := req.Params.Tools
		if req.Params.ToolChoice.Mode == types.ToolChoiceTool {
			toolsToUse = filterToolsByName(toolsToUse, req.Params.ToolChoice.Name)
		}
		params.Tools = toolsToParams(toolsToUse)
		if tc := toolChoiceToParam(req.Params.ToolChoice, toolsToUse); tc != nil {
			params.ToolChoice = *tc
		}
	}

	if model.ReasoningEffort != "" {
		params.Include = []responses.ResponseIncludable{responses.ResponseIncludableReasoningEncryptedContent}
		params.Reasoning.Effort = shared.ReasoningEffort(model.ReasoningEffort)
		params.Reasoning.Summary = shared.ReasoningSummaryAuto
	}

	if req.Params.OnPayload != nil {
		if payload, err := json.Marshal(params); err == nil {
			req.Params.OnPayload(payload)
		}
	}

	respStream := client.Responses.NewStreaming(ctx, params)

	acc := stream.NewAccumulator()
	reasoningIndexByID := make(map[string]int)
	var stopReason types.StopReason = types.StopReasonEndTurn
	var usage types.Usage
	var responseID string

	for respStream.Next() {
		data := respStream.Current()

		switch data.AsAny().(type) {
		case responses.ResponseCompletedEvent:
			resp := data.Response
			responseID = resp.ID
			stopReason = mapResponseStatus(resp)
			if resp.Usage.InputTokens > 0 {
				usage.InputTokens = int(resp.Usage.InputTokens)
			}
			if resp.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(resp.Usage.OutputTokens)
			}
			if resp.Usage.InputTokensDetails.CachedTokens > 0 {
				usage.CacheReadTokens = int(resp.Usage.InputTokensDetails.CachedTokens)
			}
			for _, output := range resp.Output {
				if item, ok := output.AsAny().(responses.ResponseReasoningItem); ok {
					idx, ok := reasoningIndexByID[item.ID]
					if !ok {
						continue
					}
					cb := types.ContentBlock{
						Type: types.ContentBlockTypeReasoning,
						Reasoning: &types.ReasoningBlock{
							Text:             reasoningTextFrom(item.Content),
							Summary:          reasoningSummaryFrom(item.Summary),
							EncryptedContent: item.EncryptedContent,
						},
					}
					ev := types.Event{Type: types.EventTypeBlockDone, Index: idx, ContentBlock: &cb}
					if err := acc.Apply(ev); err != nil {
						return nil, err
					}
					eventChan <- ev
				}
			}

		case responses.ResponseContentPartAddedEvent:
			evt := data.AsResponseContentPartAdded()
			idx := int(evt.OutputIndex)
			var cb *types.ContentBlock
			switch evt.Part.AsAny().(type) {
			case responses.ResponseOutputText:
				part := evt.Part.AsOutputText()
				cb = &types.ContentBlock{Id: evt.ItemID, Type: types.ContentBlockTypeText, Text: part.Text}
			case responses.ResponseOutputRefusal:
				part := evt.Part.AsRefusal()
				cb = &types.ContentBlock{Id: evt.ItemID, Type: types.ContentBlockTypeRefusal, Refusal: &types.RefusalBlock{Reason: part.Refusal}}
			case responses.ResponseContentPartAddedEventPartReasoningText:
				part := evt.Part.AsReasoningText()
				cb = &types.ContentBlock{Id: evt.ItemID, Type: types.ContentBlockTypeReasoning, Reasoning: &types.ReasoningBlock{Text: part.Text}}
			default:
				continue
			}
			ev := types.Event{Type: types.EventTypeBlockStarted, Index: idx, ContentBlock: cb}
			if err := acc.Apply(ev); err != nil {
				return nil, err
			}
			eventChan <- ev

		case responses.ResponseOutputItemAddedEvent:
			evt := data.AsResponseOutputItemAdded()
			idx := int(evt.OutputIndex)
			switch item := evt.Item.AsAny().(type) {
			case responses.ResponseOutputMessage:
				// Waits for response.content_part.added, which carries
				// the concrete output_text/refusal variant.

			case responses.ResponseFunctionToolCall:
				var args map[string]any
				_ = json.Unmarshal([]byte(item.Arguments), &args)
				cb := types.ContentBlock{
					Id:   item.ID,
					Type: types.ContentBlockTypeToolUse,
					ToolUse: &types.ToolUseBlock{
						Id:        item.CallID,
						Name:      item.Name,
						Arguments: args,
					},
				}
				ev := types.Event{Type: types.EventTypeBlockStarted, Index: idx, ContentBlock: &cb}
				if err := acc.Apply(ev); err != nil {
					return nil, err
				}
				eventChan <- ev

			case responses.ResponseReasoningItem:
				reasoningIndexByID[item.ID] = idx
				cb := types.ContentBlock{
					Id:   item.ID,
					Type: types.ContentBlockTypeReasoning,
					Reasoning: &types.ReasoningBlock{
						Text:    reasoningTextFrom(item.Content),
						Summary: reasoningSummaryFrom(item.Summary),
					},
				}
				ev := types.Event{Type: types.EventTypeBlockStarted, Index: idx, ContentBlock: &cb}
				if err := acc.Apply(ev); err != nil {
					return nil, err
				}
				eventChan <- ev
			}

		case responses.ResponseFunctionCallArgumentsDeltaEvent:
			evt := data.AsResponseFunctionCallArgumentsDelta()
			ev := types.Event{Type: types.EventTypeTextDelta, Index: int(evt.OutputIndex), Delta: &types.Delta{PartialArguments: evt.Delta}}
			_ = acc.Apply(ev)
			eventChan <- ev

		case responses.ResponseTextDeltaEvent:
			evt := data.AsResponseOutputTextDelta()
			ev := types.Event{Type: types.EventTypeTextDelta, Index: int(evt.OutputIndex), Delta: &types.Delta{Text: evt.Delta}}
			_ = acc.Apply(ev)
			eventChan <- ev

		case responses.ResponseReasoningTextDeltaEvent:
			evt := data.AsResponseReasoningTextDelta()
			ev := types.Event{Type: types.EventTypeTextDelta, Index: int(evt.OutputIndex), Delta: &types.Delta{Text: evt.Delta}}
			_ = acc.Apply(ev)
			eventChan <- ev

		case responses.ResponseReasoningSummaryTextDeltaEvent:
			evt := data.AsResponseReasoningSummaryTextDelta()
			ev := types.Event{Type: types.EventTypeSummaryTextDelta, Index: int(evt.OutputIndex), Delta: &types.Delta{SummaryText: evt.Delta}}
			_ = acc.Apply(ev)
			eventChan <- ev
		}
	}

	if err := respStream.Err(); err != nil {
		return nil, wrapProviderError("openai_responses", err)
	}

	return &types.MessageResponse{
		Id:         responseID,
		Model:      modelID,
		Provider:   types.ProviderOpenAIResponses,
		Output:     acc.Message(types.RoleAssistant),
		StopReason: stopReason,
		Usage:      usage,
	}, nil
}

// StreamSimple implements the reduced streamSimple entry point (§4.2) by
// folding SimpleStreamOptions onto the model and delegating to Stream.
func (p *Provider) StreamSimple(ctx context.Context, req providers.SimpleStreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	return p.Stream(ctx, req.AsStreamRequest(), eventChan)
}

func mapResponseStatus(resp responses.Response) types.StopReason {
	if resp.IncompleteDetails.Reason == "max_output_tokens" {
		return types.StopReasonMaxTokens
	}
	if resp.IncompleteDetails.Reason != "" {
		return types.StopReasonEndTurn
	}
	switch resp.Status {
	case responses.ResponseStatusCompleted:
		return types.StopReasonEndTurn
	case responses.ResponseStatusFailed, responses.ResponseStatusCancelled:
		return types.StopReasonError
	default:
		return types.StopReasonEndTurn
	}
}

func reasoningSummaryFrom(items []responses.ResponseReasoningItemSummary) string {
	var s string
	for _, it := range items {
		s += it.Text
	}
	return s
}

func reasoningTextFrom(items []responses.ResponseReasoningItemContent) string {
	var s string
	for _, it := range items {
		s += it.Text
	}
	return s
}

// messagesToResponsesInput builds Responses API input items, per
// messageToResponsesInput. Assistant text becomes an output_message item
// (the model's own prior turn); user text becomes a plain input message.
func messagesToResponsesInput(messages []types.Message) ([]responses.ResponseInputItemUnionParam, error) {
	var items []responses.ResponseInputItemUnionParam

	for _, msg := range messages {
		for _, block := range msg.Content {
			switch block.Type {
			case types.ContentBlockTypeText:
				if msg.Role == types.RoleAssistant {
					content := []responses.ResponseOutputMessageContentUnionParam{
						{OfOutputText: &responses.ResponseOutputTextParam{Text: block.Text}},
					}
					items = append(items, responses.ResponseInputItemParamOfOutputMessage(
						content, block.Id, responses.ResponseOutputMessageStatusCompleted,
					))
					continue
				}
				items = append(items, responses.ResponseInputItemParamOfMessage(block.Text, responses.EasyInputMessageRoleUser))

			case types.ContentBlockTypeToolUse:
				if msg.Role != types.RoleAssistant {
					return nil, fmt.Errorf("openai_responses: tool_use blocks must be in assistant messages, got role %s", msg.Role)
				}
				if block.ToolUse == nil || block.ToolUse.Id == "" || block.ToolUse.Name == "" {
					return nil, fmt.Errorf("openai_responses: tool_use block missing id or name")
				}
				argsJSON, err := json.Marshal(block.ToolUse.Arguments)
				if err != nil {
					return nil, fmt.Errorf("openai_responses: marshaling tool_use arguments: %w", err)
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(string(argsJSON), block.ToolUse.Id, block.ToolUse.Name))

			case types.ContentBlockTypeToolResult:
				if block.ToolResult == nil || block.ToolResult.ToolCallId == "" {
					return nil, fmt.Errorf("openai_responses: tool_result block missing ToolCallId")
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(block.ToolResult.ToolCallId, block.ToolResult.Text))

			case types.ContentBlockTypeReasoning:
				if msg.Role != types.RoleAssistant {
					return nil, fmt.Errorf("openai_responses: reasoning blocks must be in assistant messages, got role %s", msg.Role)
				}
				if block.Reasoning == nil {
					return nil, fmt.Errorf("openai_responses: reasoning block missing Reasoning data")
				}
				reasoning := responses.ResponseReasoningItemParam{ID: block.Id}
				if block.Reasoning.Text != "" {
					reasoning.Content = append(reasoning.Content, responses.ResponseReasoningItemContentParam{Text: block.Reasoning.Text})
				}
				if block.Reasoning.Summary != "" {
					reasoning.Summary = append(reasoning.Summary, responses.ResponseReasoningItemSummaryParam{Text: block.Reasoning.Summary})
				}
				if block.Reasoning.EncryptedContent != "" {
					reasoning.EncryptedContent = param.NewOpt(block.Reasoning.EncryptedContent)
				}
				items = append(items, responses.ResponseInputItemUnionParam{OfReasoning: &reasoning})

			case types.ContentBlockTypeRefusal:
				// The Responses input schema has no refusal item; replay
				// it as assistant text so the conversation can continue.
				if msg.Role != types.RoleAssistant {
					return nil, fmt.Errorf("openai_responses: refusal blocks must be in assistant messages, got role %s", msg.Role)
				}
				text := ""
				if block.Refusal != nil {
					text = block.Refusal.Reason
				}
				items = append(items, responses.ResponseInputItemParamOfMessage(text, responses.EasyInputMessageRoleAssistant))

			default:
				return nil, fmt.Errorf("openai_responses: unsupported content block type %q", block.Type)
			}
		}
	}
	return items, nil
}

func toolsToParams(tools []types.Tool) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &params)
		}
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  params,
			},
		})
	}
	return out
}

func toolChoiceToParam(choice types.ToolChoice, tools []types.Tool) *responses.ResponseNewParamsToolChoiceUnion {
	if len(tools) == 0 {
		return nil
	}
	var mode responses.ToolChoiceOptions
	switch choice.Mode {
	case "", types.ToolChoiceAuto:
		mode = responses.ToolChoiceOptionsAuto
	case types.ToolChoiceAny, types.ToolChoiceTool:
		mode = responses.ToolChoiceOptionsRequired
	case types.ToolChoiceNone:
		return nil
	default:
		mode = responses.ToolChoiceOptionsAuto
	}
	return &responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: param.NewOpt(mode)}
}

func filterToolsByName(tools []types.Tool, name string) []types.Tool {
	for _, t := range tools {
		if t.Name == name {
			return []types.Tool{t}
		}
	}
	return tools
}

// wrapProviderError classifies an OpenAI SDK error the same way
// providers/openai's wrapProviderError does; duplicated rather than
// imported since the two adapters are deliberately separate packages.
func wrapProviderError(provider string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return apierr.New(apierr.KindTransport, provider, err)
	}

	var detailed error
	if apiErr.Message != "" {
		detailed = fmt.Errorf("%s %q: %d %s (message: %s, code: %s)",
			apiErr.Request.Method, apiErr.Request.URL,
			apiErr.StatusCode, apiErr.Type, apiErr.Message, apiErr.Code)
	} else if dump := apiErr.DumpResponse(true); len(dump) > 0 {
		body := dump
		for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n")} {
			if parts := bytes.SplitN(dump, sep, 2); len(parts) == 2 {
				body = bytes.TrimSpace(parts[1])
				break
			}
		}
		detailed = fmt.Errorf("%s %q: %d - response body: %s",
			apiErr.Request.Method, apiErr.Request.URL, apiErr.StatusCode, string(body))
	} else {
		detailed = err
	}

	switch {
	case apiErr.StatusCode == 429:
		return apierr.New(apierr.KindRateLimited, provider, detailed)
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
		return apierr.New(apierr.KindAuth, provider, detailed)
	case apiErr.StatusCode == 400 || apiErr.StatusCode == 413:
		msg := strings.ToLower(detailed.Error())
		if strings.Contains(msg, "context") || strings.Contains(msg, "too long") || strings.Contains(msg, "maximum") {
			return apierr.New(apierr.KindOverflow, provider, detailed)
		}
		return apierr.New(apierr.KindInvalidRequest, provider, detailed)
	default:
		return apierr.New(apierr.KindTransport, provider, detailed)
	}
}
