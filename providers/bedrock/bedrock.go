// Package bedrock implements the AWS Bedrock Converse provider adapter
// (§4.2E): tool-name sanitization to Bedrock's [a-zA-Z0-9_-]{1,64} id
// grammar, Nova-model cache-checkpoint restriction, and
// ConverseStream event translation into canonical stream.Event values.
//
// Grounded on goadesign-goa-ai/features/model/bedrock/client.go and its
// sibling stream.go in full: encodeMessages/encodeTools's canonical-to
// -sanitized tool name maps, sanitizeToolName's truncate-plus-hash-suffix
// scheme, isNovaModel's cache-checkpoint restriction,
// isProviderSafeToolUseID's toolUseId grammar check, resolveThinking's
// budget/interleaved-header policy, isRateLimited's smithy.APIError/
// ResponseError classification, and chunkProcessor.Handle's per-index
// tool/reasoning buffering translated here into block_started/
// text_delta/signature_delta/block_done events.
package bedrock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"agentcore/apierr"
	"agentcore/providers"
	"agentcore/stream"
	"agentcore/types"
)

const (
	defaultRegion         = "us-east-1"
	defaultThinkingBudget = 16384
)

// thinkingBudgets maps the normalized effort dial onto Bedrock's
// reasoning budget_tokens, anchored on client.go's defaultThinkingBudget
// of 16384 for Medium.
var thinkingBudgets = map[types.ReasoningEffort]int{
	types.ReasoningEffortLow:    5000,
	types.ReasoningEffortMedium: defaultThinkingBudget,
	types.ReasoningEffortHigh:   24576,
	types.ReasoningEffortXHigh:  40000,
}

// Provider implements providers.Provider for the AWS Bedrock Converse
// API. Unlike the API-key providers, authentication goes through the AWS
// SDK's own default credential chain (environment, shared config,
// container/instance role) rather than credential.Resolver.GetAPIKey;
// the resolver is only consulted for an optional region override, via
// ResolveConfigValue("bedrock.region"), mirroring how goa-ai's
// bedrock.Options takes a pre-built *bedrockruntime.Client instead of a
// bare key.
type Provider struct {
	// Client, when set, is used instead of constructing one from the AWS
	// SDK's default config resolution. Tests inject a fake here.
	Client *bedrockruntime.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	model := req.Params.Model
	modelID := model.ID
	if modelID == "" {
		return nil, apierr.New(apierr.KindInvalidRequest, "bedrock", errors.New("model id is required"))
	}

	client := p.Client
	if client == nil {
		region := defaultRegion
		if r, err := req.Credential.ResolveConfigValue("bedrock.region"); err == nil && r != "" {
			region = r
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, apierr.New(apierr.KindAuth, "bedrock", fmt.Errorf("loading AWS config: %w", err))
		}
		client = bedrockruntime.NewFromConfig(cfg)
	}

	nova := isNovaModel(modelID)

	toolConfig, canonToSan, sanToCanon, err := encodeTools(req.Params.Tools, req.Params.ToolChoice)
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidRequest, "bedrock", err)
	}
	if toolConfig == nil && messagesHaveToolBlocks(req.Params.Messages) {
		return nil, apierr.New(apierr.KindInvalidRequest, "bedrock", errors.New("messages contain tool_use/tool_result but no tools were supplied"))
	}

	messages, err := encodeMessages(req.Params.Messages, canonToSan, nova)
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidRequest, "bedrock", err)
	}
	if len(messages) == 0 {
		return nil, apierr.New(apierr.KindInvalidRequest, "bedrock", errors.New("at least one user/assistant message is required"))
	}

	thinking := resolveThinking(model, toolConfig)

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
	}
	if toolConfig != nil {
		input.ToolConfig = toolConfig
	}
	if req.Params.SystemPrompt != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: req.Params.SystemPrompt},
		}
	}
	if cfg := inferenceConfig(model, req.Params.Temperature, req.Params.EffectiveMaxTokens()); cfg != nil {
		input.InferenceConfig = cfg
	}
	if thinking.enable {
		input.AdditionalModelRequestFields = thinkingDocument(thinking)
	}

	if req.Params.OnPayload != nil {
		if payload, err := json.Marshal(input); err == nil {
			req.Params.OnPayload(payload)
		}
	}

	out, err := client.ConverseStream(ctx, input, streamOptions(thinking)...)
	if err != nil {
		return nil, wrapBedrockError(err)
	}
	evStream := out.GetStream()
	if evStream == nil {
		return nil, apierr.New(apierr.KindTransport, "bedrock", errors.New("stream output missing event stream"))
	}
	defer evStream.Close()

	acc := stream.NewAccumulator()
	proc := newStreamTranslator(sanToCanon)
	var usage types.Usage
	var stopReason types.StopReason = types.StopReasonEndTurn

	for event := range evStream.Events() {
		evs, u, sr, err := proc.handle(event)
		if err != nil {
			return nil, apierr.New(apierr.KindTransport, "bedrock", err)
		}
		for _, ev := range evs {
			if err := acc.Apply(ev); err != nil {
				return nil, err
			}
			eventChan <- ev
		}
		if u != nil {
			usage = *u
		}
		if sr != "" {
			stopReason = sr
		}
	}
	if err := evStream.Err(); err != nil {
		return nil, wrapBedrockError(err)
	}

	return &types.MessageResponse{
		Model:      modelID,
		Provider:   types.ProviderBedrock,
		Output:     acc.Message(types.RoleAssistant),
		StopReason: stopReason,
		Usage:      usage,
	}, nil
}

// StreamSimple implements the reduced streamSimple entry point (§4.2) by
// folding SimpleStreamOptions onto the model and delegating to Stream.
//
// Params.APIKey and Params.Headers have no effect on this adapter: Bedrock
// authenticates through the AWS SDK's own default credential chain, not a
// bearer key, and the SDK doesn't expose a per-call custom-header hook the
// way the HTTP-based adapters do.
func (p *Provider) StreamSimple(ctx context.Context, req providers.SimpleStreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	return p.Stream(ctx, req.AsStreamRequest(), eventChan)
}

func thinkingDocument(t thinkingConfig) document.Interface {
	fields := map[string]any{
		"reasoning_config": map[string]any{
			"type":          "enabled",
			"budget_tokens": t.budget,
		},
	}
	return document.NewLazyDocument(&fields)
}

type thinkingConfig struct {
	enable      bool
	interleaved bool
	budget      int
}

// resolveThinking mirrors client.go's resolveThinking: thinking applies
// when the model has a reasoning mode and an effort set; it is marked
// interleaved (sent with the interleaved-thinking beta header) only when
// tools are configured.
func resolveThinking(model types.Model, toolConfig *brtypes.ToolConfiguration) thinkingConfig {
	if model.ReasoningMode == types.ReasoningModeNone || model.ReasoningEffort == "" {
		return thinkingConfig{}
	}
	budget, ok := thinkingBudgets[model.ReasoningEffort]
	if !ok {
		budget = defaultThinkingBudget
	}
	return thinkingConfig{enable: true, interleaved: toolConfig != nil, budget: budget}
}

func streamOptions(t thinkingConfig) []func(*bedrockruntime.Options) {
	if !t.enable || !t.interleaved {
		return nil
	}
	return []func(*bedrockruntime.Options){
		bedrockruntime.WithAPIOptions(
			smithyhttp.AddHeaderValue("x-amzn-bedrock-beta", "interleaved-thinking-2025-05-14"),
		),
	}
}

func inferenceConfig(model types.Model, temperature *float32, effectiveMaxTokens int) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	maxTokens := effectiveMaxTokens
	if maxTokens <= 0 {
		maxTokens = model.MaxTokens
	}
	if model.Limit.Output > 0 && (maxTokens <= 0 || maxTokens > model.Limit.Output) {
		maxTokens = model.Limit.Output
	}
	if maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(maxTokens))
	}
	if temperature != nil {
		cfg.Temperature = aws.Float32(*temperature)
	} else if model.Temperature != nil {
		cfg.Temperature = aws.Float32(*model.Temperature)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

// isNovaModel reports whether modelID names an Amazon Nova family model,
// which does not support tool-level cache checkpoints.
func isNovaModel(modelID string) bool {
	return strings.HasPrefix(modelID, "amazon.nova-")
}

func messagesHaveToolBlocks(msgs []types.Message) bool {
	for _, m := range msgs {
		for _, b := range m.Content {
			if b.Type == types.ContentBlockTypeToolUse || b.Type == types.ContentBlockTypeToolResult {
				return true
			}
		}
	}
	return false
}

// encodeTools builds a Bedrock ToolConfiguration plus the canonical<->
// sanitized name maps, per client.go's encodeTools.
func encodeTools(tools []types.Tool, choice types.ToolChoice) (*brtypes.ToolConfiguration, map[string]string, map[string]string, error) {
	if len(tools) == 0 {
		if choice.Mode == "" || choice.Mode == types.ToolChoiceNone {
			return nil, nil, nil, nil
		}
		return nil, nil, nil, fmt.Errorf("bedrock: tool choice is set but no tools are defined")
	}

	canonToSan := make(map[string]string, len(tools))
	sanToCanon := make(map[string]string, len(tools))
	toolList := make([]brtypes.Tool, 0, len(tools))

	for _, t := range tools {
		if t.Name == "" {
			continue
		}
		sanitized := sanitizeToolName(t.Name)
		if prev, ok := sanToCanon[sanitized]; ok && prev != t.Name {
			return nil, nil, nil, fmt.Errorf("bedrock: tool name %q sanitizes to %q which collides with %q", t.Name, sanitized, prev)
		}
		sanToCanon[sanitized] = t.Name
		canonToSan[t.Name] = sanitized

		toolList = append(toolList, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(sanitized),
				Description: aws.String(t.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(t.Parameters)},
			},
		})
	}
	if len(toolList) == 0 {
		return nil, nil, nil, nil
	}

	cfg := &brtypes.ToolConfiguration{Tools: toolList}
	switch choice.Mode {
	case "", types.ToolChoiceAuto, types.ToolChoiceNone:
	case types.ToolChoiceAny:
		cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{Value: brtypes.AnyToolChoice{}}
	case types.ToolChoiceTool:
		sanitized, ok := canonToSan[choice.Name]
		if !ok {
			return nil, nil, nil, fmt.Errorf("bedrock: tool choice name %q does not match any tool", choice.Name)
		}
		cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: aws.String(sanitized)}}
	default:
		return nil, nil, nil, fmt.Errorf("bedrock: unsupported tool choice mode %q", choice.Mode)
	}
	return cfg, canonToSan, sanToCanon, nil
}

// sanitizeToolName maps a canonical tool name to Bedrock's
// [a-zA-Z0-9_-]{1,64} id grammar, truncating and appending a stable hash
// suffix when the mapped name would exceed the limit, per client.go.
func sanitizeToolName(in string) string {
	if in == "" {
		return ""
	}
	const maxLen = 64
	const hashLen = 8

	out := make([]rune, 0, len(in))
	for _, r := range in {
		if r == '.' {
			r = '_'
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	sanitized := string(out)
	if len(sanitized) <= maxLen {
		return sanitized
	}
	sum := sha256.Sum256([]byte(in))
	suffix := hex.EncodeToString(sum[:])[:hashLen]
	prefixLen := maxLen - (1 + hashLen)
	if prefixLen < 1 {
		prefixLen = 1
	}
	return sanitized[:prefixLen] + "_" + suffix
}

// isProviderSafeToolUseID reports whether id already conforms to
// Bedrock's toolUseId grammar, so a canonical tool-call id (itself
// already provider-safe, since transform.idGrammar runs before this
// adapter) almost always passes through unchanged.
func isProviderSafeToolUseID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func toDocument(raw json.RawMessage) document.Interface {
	if len(raw) == 0 {
		m := map[string]any{"type": "object"}
		return document.NewLazyDocument(&m)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		m := map[string]any{"type": "object"}
		return document.NewLazyDocument(&m)
	}
	return document.NewLazyDocument(&decoded)
}

// encodeMessages translates canonical messages into Bedrock Converse
// messages, sanitizing tool names via nameMap and tool-call ids via
// isProviderSafeToolUseID, per client.go's encodeMessages. A CacheControl
// marker on a block becomes a trailing cache checkpoint content block,
// except on Nova models, which reject cache checkpoints placed alongside
// tool configurations (client.go's isNovaModel restriction, applied here
// at block granularity since the canonical Tool type carries no
// cache-control signal of its own).
func encodeMessages(msgs []types.Message, nameMap map[string]string, nova bool) ([]brtypes.Message, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]brtypes.ContentBlock, 0, len(m.Content))
		for _, part := range m.Content {
			wantCache := part.CacheControl != nil && !nova
			switch part.Type {
			case types.ContentBlockTypeReasoning:
				if part.Reasoning == nil {
					continue
				}
				if len(part.Reasoning.Signature) > 0 && part.Reasoning.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberReasoningContent{
						Value: &brtypes.ReasoningContentBlockMemberReasoningText{
							Value: brtypes.ReasoningTextBlock{
								Text:      aws.String(part.Reasoning.Text),
								Signature: aws.String(string(part.Reasoning.Signature)),
							},
						},
					})
				}

			case types.ContentBlockTypeText:
				if part.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: part.Text})
					if wantCache {
						blocks = append(blocks, &brtypes.ContentBlockMemberCachePoint{
							Value: brtypes.CachePointBlock{Type: brtypes.CachePointTypeDefault},
						})
					}
				}

			case types.ContentBlockTypeToolUse:
				if part.ToolUse == nil {
					continue
				}
				tb := brtypes.ToolUseBlock{Input: toDocument(mustMarshal(part.ToolUse.Arguments))}
				sanitized, ok := nameMap[part.ToolUse.Name]
				if !ok {
					return nil, fmt.Errorf("bedrock: tool_use references %q which is not in the current tool configuration", part.ToolUse.Name)
				}
				tb.Name = aws.String(sanitized)
				tb.ToolUseId = aws.String(safeToolUseID(part.ToolUse.Id))
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: tb})

			case types.ContentBlockTypeToolResult:
				if part.ToolResult == nil {
					continue
				}
				tr := brtypes.ToolResultBlock{
					ToolUseId: aws.String(safeToolUseID(part.ToolResult.ToolCallId)),
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: part.ToolResult.Text},
					},
				}
				if part.ToolResult.IsError {
					tr.Status = brtypes.ToolResultStatusError
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: tr})

			default:
				// Image/file/refusal/mcp_call blocks are not replayed to
				// Bedrock by this adapter; callers that need vision
				// support on Bedrock-hosted Claude models should route
				// through the anthropic adapter's native API instead.
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == types.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	return conversation, nil
}

// safeToolUseID runs a canonical tool-call id through the Bedrock id
// grammar check; transform.idGrammar has already rewritten it for
// Bedrock before this adapter sees it, so this is a defensive fallback,
// not the primary sanitization path.
func safeToolUseID(id string) string {
	if isProviderSafeToolUseID(id) {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return "t" + hex.EncodeToString(sum[:])[:16]
}

func mustMarshal(args map[string]any) json.RawMessage {
	if args == nil {
		return json.RawMessage(`{}`)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// streamTranslator converts Bedrock ConverseStream events into canonical
// stream events per content index, after stream.go's chunkProcessor.
// Tool-call JSON fragments and reasoning text are forwarded as deltas as
// they arrive; only a tool block's id and name are kept until the block
// closes.
type streamTranslator struct {
	nameMap   map[string]string
	nextIndex int
	idxMap    map[int32]int
	toolBuf   map[int]*toolBuffer
	open      map[int]bool
}

type toolBuffer struct {
	id, name string
}

func newStreamTranslator(nameMap map[string]string) *streamTranslator {
	return &streamTranslator{
		nameMap: nameMap,
		idxMap:  make(map[int32]int),
		toolBuf: make(map[int]*toolBuffer),
		open:    make(map[int]bool),
	}
}

func (t *streamTranslator) canonIndex(raw *int32) int {
	if raw == nil {
		return 0
	}
	idx, ok := t.idxMap[*raw]
	if !ok {
		idx = t.nextIndex
		t.idxMap[*raw] = idx
		t.nextIndex++
	}
	return idx
}

func (t *streamTranslator) handle(event any) ([]types.Event, *types.Usage, types.StopReason, error) {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockStart:
		idx := t.canonIndex(ev.Value.ContentBlockIndex)
		if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
			if start.Value.ToolUseId == nil || start.Value.Name == nil {
				return nil, nil, "", fmt.Errorf("tool_use block missing id or name")
			}
			raw := *start.Value.Name
			canonical, ok := t.nameMap[raw]
			if !ok {
				return nil, nil, "", fmt.Errorf("tool name %q not in reverse map", raw)
			}
			t.toolBuf[idx] = &toolBuffer{id: *start.Value.ToolUseId, name: canonical}
			t.open[idx] = true
			cb := types.ContentBlock{Type: types.ContentBlockTypeToolUse, ToolUse: &types.ToolUseBlock{Id: *start.Value.ToolUseId, Name: canonical, Arguments: map[string]any{}}}
			return []types.Event{{Type: types.EventTypeBlockStarted, Index: idx, ContentBlock: &cb}}, nil, "", nil
		}
		return nil, nil, "", nil

	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := t.canonIndex(ev.Value.ContentBlockIndex)
		switch delta := ev.Value.Delta.(type) {
		case *brtypes.ContentBlockDeltaMemberText:
			if !t.open[idx] {
				t.open[idx] = true
				cb := types.ContentBlock{Type: types.ContentBlockTypeText}
				return []types.Event{
					{Type: types.EventTypeBlockStarted, Index: idx, ContentBlock: &cb},
					{Type: types.EventTypeTextDelta, Index: idx, Delta: &types.Delta{Text: delta.Value}},
				}, nil, "", nil
			}
			return []types.Event{{Type: types.EventTypeTextDelta, Index: idx, Delta: &types.Delta{Text: delta.Value}}}, nil, "", nil

		case *brtypes.ContentBlockDeltaMemberReasoningContent:
			switch v := delta.Value.(type) {
			case *brtypes.ReasoningContentBlockDeltaMemberText:
				var evs []types.Event
				if !t.open[idx] {
					t.open[idx] = true
					cb := types.ContentBlock{Type: types.ContentBlockTypeReasoning, Reasoning: &types.ReasoningBlock{}}
					evs = append(evs, types.Event{Type: types.EventTypeBlockStarted, Index: idx, ContentBlock: &cb})
				}
				evs = append(evs, types.Event{Type: types.EventTypeTextDelta, Index: idx, Delta: &types.Delta{Text: v.Value}})
				return evs, nil, "", nil
			case *brtypes.ReasoningContentBlockDeltaMemberSignature:
				return []types.Event{{Type: types.EventTypeSignatureDelta, Index: idx, Delta: &types.Delta{Signature: []byte(v.Value)}}}, nil, "", nil
			default:
				return nil, nil, "", nil
			}

		case *brtypes.ContentBlockDeltaMemberToolUse:
			if delta.Value.Input == nil {
				return nil, nil, "", nil
			}
			return []types.Event{{Type: types.EventTypeTextDelta, Index: idx, Delta: &types.Delta{PartialArguments: *delta.Value.Input}}}, nil, "", nil
		}
		return nil, nil, "", nil

	case *brtypes.ConverseStreamOutputMemberContentBlockStop:
		idx := t.canonIndex(ev.Value.ContentBlockIndex)
		delete(t.toolBuf, idx)
		delete(t.open, idx)
		return []types.Event{{Type: types.EventTypeBlockDone, Index: idx}}, nil, "", nil

	case *brtypes.ConverseStreamOutputMemberMessageStop:
		return nil, nil, mapStopReason(string(ev.Value.StopReason)), nil

	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage == nil {
			return nil, nil, "", nil
		}
		u := &types.Usage{
			InputTokens:      int32Value(ev.Value.Usage.InputTokens),
			OutputTokens:     int32Value(ev.Value.Usage.OutputTokens),
			CacheReadTokens:  int32Value(ev.Value.Usage.CacheReadInputTokens),
			CacheWriteTokens: int32Value(ev.Value.Usage.CacheWriteInputTokens),
		}
		return nil, u, "", nil
	}
	return nil, nil, "", nil
}

func int32Value(ptr *int32) int {
	if ptr == nil {
		return 0
	}
	return int(*ptr)
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
	case "content_filtered", "guardrail_intervened":
		return types.StopReasonRefusal
	default:
		return types.StopReasonEndTurn
	}
}

// wrapBedrockError classifies a Bedrock SDK error into an apierr.Error,
// per client.go's isRateLimited (smithy.APIError ErrorCode plus HTTP 429
// response classification).
func wrapBedrockError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return apierr.New(apierr.KindRateLimited, "bedrock", err)
		case "ValidationException":
			return apierr.New(apierr.KindInvalidRequest, "bedrock", err)
		case "AccessDeniedException", "UnrecognizedClientException":
			return apierr.New(apierr.KindAuth, "bedrock", err)
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case 429:
			return apierr.New(apierr.KindRateLimited, "bedrock", err)
		case 401, 403:
			return apierr.New(apierr.KindAuth, "bedrock", err)
		}
	}
	return apierr.New(apierr.KindTransport, "bedrock", err)
}
