// Package openai implements the OpenAI Chat Completions provider adapter
// (§4.2B) and doubles as the transport for OpenAI-compatible gateways
// (§4.2F) via option.WithBaseURL.
//
// Grounded on llm2/openai_provider.go: usage extraction from any chunk
// (not just the final one), the litellm-proxied-Anthropic
// cache_creation_input_tokens quirk read out of ExtraFields, tool-call
// delta accumulation keyed by the delta's own index, and the
// tools./tool./functions./function. tool-name prefix cleanup for a known
// OpenAI bug.
package openai

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
	"github.com/openai/openai-go/v3/shared"

	"agentcore/apierr"
	"agentcore/imaging"
	"agentcore/providers"
	"agentcore/stream"
	"agentcore/types"
)

const defaultModel = "gpt-5.2"

// toolNamePrefixesToStrip are stray prefixes some OpenAI-compatible
// backends emit on tool-call names.
var toolNamePrefixesToStrip = []string{"tools.", "tool.", "functions.", "function."}

// Provider implements providers.Provider for OpenAI Chat Completions and
// any OpenAI-compatible gateway reachable via BaseURL.
type Provider struct {
	BaseURL      string
	DefaultModel string
	HTTPTimeout  time.Duration
}

func New() *Provider { return &Provider{HTTPTimeout: 45 * time.Minute} }

func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	model := req.Params.Model

	providerKey := "openai"
	if model.Provider == types.ProviderCompat {
		providerKey = "compat"
	}
	apiKey, err := req.Params.ResolveAPIKey(req.Credential, providerKey)
	if err != nil {
		return nil, apierr.New(apierr.KindAuth, providerKey, err)
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

	modelID := model.ID
	if modelID == "" {
		if p.DefaultModel != "" {
			modelID = p.DefaultModel
		} else {
			modelID = defaultModel
		}
	}

	return StreamWithClient(ctx, client, req, providerKey, modelID, eventChan)
}

// StreamSimple implements the reduced streamSimple entry point (§4.2) by
// folding SimpleStreamOptions onto the model and delegating to Stream.
func (p *Provider) StreamSimple(ctx context.Context, req providers.SimpleStreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	return p.Stream(ctx, req.AsStreamRequest(), eventChan)
}

// StreamWithClient runs one Chat Completions streaming call against an
// already-constructed client, translating the canonical request into the
// Chat Completions wire format and back. Factored out of Stream so the
// Azure OpenAI adapter (which needs its own deployment-scoped client
// construction) can reuse the wire-format translation without duplicating
// it.
func StreamWithClient(ctx context.Context, client openai.Client, req providers.StreamRequest, providerKey, modelID string, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	model := req.Params.Model

	chatMessages, err := messagesToParams(req.Params.Messages, model.Dialect)
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidRequest, providerKey, err)
	}
	if req.Params.SystemPrompt != "" {
		chatMessages = append([]openai.ChatCompletionMessageParamUnion{
			systemMessageParam(req.Params.SystemPrompt, model.Dialect),
		}, chatMessages...)
	}

	params := openai.ChatCompletionNewParams{
		Messages: chatMessages,
		Model:    shared.ChatModel(modelID),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	if req.Params.Temperature != nil {
		params.Temperature = openai.Float(float64(*req.Params.Temperature))
	}

	maxTokensField := model.Dialect.MaxTokensField
	if maxTokensField == "" {
		maxTokensField = "max_completion_tokens"
	}
	if maxTokens := req.Params.EffectiveMaxTokens(); maxTokens > 0 {
		if maxTokensField == "max_tokens" {
			params.MaxTokens = param.NewOpt(int64(maxTokens))
		} else {
			params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
		}
	}

	if req.Params.ParallelToolCalls != nil {
		params.ParallelToolCalls = param.NewOpt(*req.Params.ParallelToolCalls)
	}

	if model.ReasoningEffort != "" && (model.Provider == types.ProviderOpenAI || model.Dialect.SupportsReasoningEffort) {
		params.ReasoningEffort = shared.ReasoningEffort(model.ReasoningEffort)
	}

	if len(req.Params.Tools) > 0 {
		tools := req.Params.Tools
		if req.Params.ToolChoice.Mode == types.ToolChoiceTool {
			tools = filterToolsByName(tools, req.Params.ToolChoice.Name)
		}
		params.Tools = toolsToParams(tools)
		params.ToolChoice = toolChoiceToParam(req.Params.ToolChoice)
	}

	if req.Params.OnPayload != nil {
		if payload, err := json.Marshal(params); err == nil {
			req.Params.OnPayload(payload)
		}
	}

	respStream := client.Chat.Completions.NewStreaming(ctx, params)

	acc := stream.NewAccumulator()
	var usage types.Usage
	var responseModel, finishReason string
	toolCallBlockIndex := make(map[int]int)
	var hasOpenTextBlock bool
	textBlockIndex := -1
	nextIndex := 0

	emit := func(ev types.Event) error {
		if err := acc.Apply(ev); err != nil {
			return err
		}
		eventChan <- ev
		return nil
	}

	for respStream.Next() {
		chunk := respStream.Current()
		if chunk.Model != "" {
			responseModel = chunk.Model
		}

		if chunk.Usage.JSON.PromptTokens.Valid() {
			usage.InputTokens = int(chunk.Usage.PromptTokens)
			usage.OutputTokens = int(chunk.Usage.CompletionTokens)
			if chunk.Usage.PromptTokensDetails.CachedTokens > 0 {
				usage.CacheReadTokens = int(chunk.Usage.PromptTokensDetails.CachedTokens)
			}
			if f, ok := chunk.Usage.JSON.ExtraFields["cache_creation_input_tokens"]; ok {
				var cacheWrite int
				if json.Unmarshal([]byte(f.Raw()), &cacheWrite) == nil {
					usage.CacheWriteTokens = cacheWrite
				}
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		delta := choice.Delta

		if delta.Content != "" {
			if !hasOpenTextBlock {
				cb := types.ContentBlock{Type: types.ContentBlockTypeText}
				if err := emit(types.Event{Type: types.EventTypeBlockStarted, Index: nextIndex, ContentBlock: &cb}); err != nil {
					return nil, err
				}
				textBlockIndex = nextIndex
				nextIndex++
				hasOpenTextBlock = true
			}
			if err := emit(types.Event{Type: types.EventTypeTextDelta, Index: textBlockIndex, Delta: &types.Delta{Text: delta.Content}}); err != nil {
				return nil, err
			}
		}

		for _, tc := range delta.ToolCalls {
			tcIdx := int(tc.Index)
			idx, exists := toolCallBlockIndex[tcIdx]
			if !exists {
				idx = nextIndex
				toolCallBlockIndex[tcIdx] = idx
				nextIndex++
				name := cleanToolName(tc.Function.Name, model.Dialect.ToolNamePrefixesToStrip)
				cb := types.ContentBlock{Type: types.ContentBlockTypeToolUse, ToolUse: &types.ToolUseBlock{Id: tc.ID, Name: name, Arguments: map[string]any{}}}
				if err := emit(types.Event{Type: types.EventTypeBlockStarted, Index: idx, ContentBlock: &cb}); err != nil {
					return nil, err
				}
			}
			if tc.Function.Arguments != "" {
				if err := emit(types.Event{Type: types.EventTypeTextDelta, Index: idx, Delta: &types.Delta{PartialArguments: tc.Function.Arguments}}); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := respStream.Err(); err != nil {
		return nil, wrapProviderError(providerKey, err)
	}

	if hasOpenTextBlock {
		if err := emit(types.Event{Type: types.EventTypeBlockDone, Index: textBlockIndex}); err != nil {
			return nil, err
		}
	}
	for _, idx := range toolCallBlockIndex {
		if err := emit(types.Event{Type: types.EventTypeBlockDone, Index: idx}); err != nil {
			return nil, err
		}
	}

	if responseModel == "" {
		responseModel = modelID
	}

	return &types.MessageResponse{
		Model:      responseModel,
		Provider:   model.Provider,
		Output:     acc.Message(types.RoleAssistant),
		StopReason: mapFinishReason(finishReason),
		Usage:      usage,
	}, nil
}

func cleanToolName(name string, dialectPrefixes []string) string {
	prefixes := toolNamePrefixesToStrip
	if len(dialectPrefixes) > 0 {
		prefixes = dialectPrefixes
	}
	for _, prefix := range prefixes {
		name = strings.TrimPrefix(name, prefix)
	}
	return name
}

func mapFinishReason(r string) types.StopReason {
	switch r {
	case "tool_calls":
		return types.StopReasonToolUse
	case "length":
		return types.StopReasonMaxTokens
	case "content_filter":
		return types.StopReasonRefusal
	default:
		return types.StopReasonEndTurn
	}
}

// wrapProviderError extracts detailed error information from openai-go's
// Error type, which only populates its parsed fields when the response body
// matches OpenAI's own {"error": {...}} shape; OpenAI-compatible gateways
// (Cerebras, local proxies) often don't, leaving an unhelpful "404 Not
// Found" with no body. Falls back to dumping the raw response so the
// gateway's actual error surfaces, then classifies by status code.
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

func filterToolsByName(tools []types.Tool, name string) []types.Tool {
	for _, t := range tools {
		if t.Name == name {
			return []types.Tool{t}
		}
	}
	return tools
}

func toolsToParams(tools []types.Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		out = append(out, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        t.Name,
					Description: param.NewOpt(t.Description),
					Parameters:  schema,
				},
			},
		})
	}
	return out
}

func toolChoiceToParam(choice types.ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice.Mode {
	case types.ToolChoiceNone:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("none")}
	case types.ToolChoiceAny:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("required")}
	case types.ToolChoiceTool:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
			},
		}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("auto")}
	}
}

// maxImageBytes/maxImageLongEdgePx mirror the 20MB/2048px limits
// llm2/openai_provider.go applies before inlining a data-URL image.
const maxImageBytes = 20 * 1024 * 1024
const maxImageLongEdgePx = 2048

// systemMessageParam builds the leading instruction message carrying the
// agent's system prompt. Dialects that route reasoning-model instructions
// through the developer role (model.Dialect.SupportsDeveloperRole) get a
// developer message; every other dialect gets a plain system message.
func systemMessageParam(text string, dialect types.DialectFlags) openai.ChatCompletionMessageParamUnion {
	if dialect.SupportsDeveloperRole {
		return openai.ChatCompletionMessageParamUnion{
			OfDeveloper: &openai.ChatCompletionDeveloperMessageParam{
				Content: openai.ChatCompletionDeveloperMessageParamContentUnion{
					OfString: param.NewOpt(text),
				},
			},
		}
	}
	return openai.ChatCompletionMessageParamUnion{
		OfSystem: &openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{
				OfString: param.NewOpt(text),
			},
		},
	}
}

func messagesToParams(messages []types.Message, dialect types.DialectFlags) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case types.RoleUser:
			var userParts []openai.ChatCompletionContentPartUnionParam
			for _, block := range m.Content {
				switch block.Type {
				case types.ContentBlockTypeText:
					userParts = append(userParts, openai.ChatCompletionContentPartUnionParam{
						OfText: &openai.ChatCompletionContentPartTextParam{Text: block.Text},
					})
				case types.ContentBlockTypeImage:
					if block.Image == nil {
						return nil, fmt.Errorf("image block missing Image data")
					}
					url := block.Image.URL
					if strings.HasPrefix(url, "data:") {
						if _, raw, err := imaging.ParseDataURL(url); err == nil {
							if resized, err := imaging.PrepareForLimits(raw, maxImageBytes, maxImageLongEdgePx); err == nil {
								url = resized.DataURL()
							}
						}
					}
					userParts = append(userParts, openai.ChatCompletionContentPartUnionParam{
						OfImageURL: &openai.ChatCompletionContentPartImageParam{
							ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: url, Detail: "high"},
						},
					})
				case types.ContentBlockTypeToolResult:
					if block.ToolResult == nil {
						return nil, fmt.Errorf("tool_result block missing ToolResult data")
					}
					out = append(out, openai.ChatCompletionMessageParamUnion{
						OfTool: &openai.ChatCompletionToolMessageParam{
							ToolCallID: block.ToolResult.ToolCallId,
							Content: openai.ChatCompletionToolMessageParamContentUnion{
								OfString: param.NewOpt(block.ToolResult.Text),
							},
						},
					})
				default:
					return nil, fmt.Errorf("unsupported content block type %s for user role", block.Type)
				}
			}
			if len(userParts) > 0 {
				out = append(out, openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: userParts},
					},
				})
			}

		case types.RoleAssistant:
			assistantMsg := &openai.ChatCompletionAssistantMessageParam{}
			var contentParts []openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion
			var hasContent bool

			for _, block := range m.Content {
				switch block.Type {
				case types.ContentBlockTypeText:
					contentParts = append(contentParts, openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion{
						OfText: &openai.ChatCompletionContentPartTextParam{Text: block.Text},
					})
					hasContent = true
				case types.ContentBlockTypeToolUse:
					if block.ToolUse == nil {
						return nil, fmt.Errorf("tool_use block missing ToolUse data")
					}
					args, _ := json.Marshal(block.ToolUse.Arguments)
					assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: block.ToolUse.Id,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      block.ToolUse.Name,
								Arguments: string(args),
							},
						},
					})
					hasContent = true
				case types.ContentBlockTypeReasoning:
					continue
				case types.ContentBlockTypeRefusal:
					if block.Refusal != nil {
						contentParts = append(contentParts, openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion{
							OfRefusal: &openai.ChatCompletionContentPartRefusalParam{Refusal: block.Refusal.Reason},
						})
					}
					hasContent = true
				default:
					return nil, fmt.Errorf("unsupported content block type %s for assistant role", block.Type)
				}
			}

			if hasContent {
				if len(contentParts) == 1 && contentParts[0].OfText != nil {
					assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: param.NewOpt(contentParts[0].OfText.Text),
					}
				} else if len(contentParts) > 0 {
					assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
						OfArrayOfContentParts: contentParts,
					}
				}
				out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistantMsg})
			}

		default:
			return nil, fmt.Errorf("unsupported role: %s", m.Role)
		}
	}
	return out, nil
}
