// Package stream implements the canonical Event Stream contract shared by
// every provider adapter (spec §4.1): a channel-based producer/consumer
// protocol, plus an accumulator that folds the event sequence for one
// content-block index back into a finished types.ContentBlock.
//
// Providers MUST NOT close the event channel passed to them; the caller
// that creates the channel owns its lifecycle and closes it once the
// adapter's Stream call returns (grounded on llm2/provider.go's doc
// comment and confirmed by persisted_ai/llm2_activities.go's call site,
// which closes the channel itself after Stream returns).
package stream

import (
	"encoding/json"
	"fmt"

	"agentcore/types"
)

// Sink is the channel shape every adapter writes canonical events to.
type Sink = chan<- types.Event

// Accumulator folds an ordered sequence of per-index events into
// finished content blocks, mirroring
// llm2/anthropic_provider.go's accumulateAnthropicEventsToMessage and
// llm2/google_provider.go's googleStreamState coalescing logic, but
// generalized across all adapters instead of being Anthropic/Google
// specific.
type Accumulator struct {
	blocks        map[int]*types.ContentBlock
	order         []int
	argFragments  map[int]string
	pendingSig    map[int][]byte // signature-only deltas not yet attached to a block
}

// NewAccumulator returns an empty Accumulator ready to consume one
// Stream call's worth of events.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		blocks:       make(map[int]*types.ContentBlock),
		argFragments: make(map[int]string),
		pendingSig:   make(map[int][]byte),
	}
}

// Apply folds one Event into the accumulator's state.
func (a *Accumulator) Apply(ev types.Event) error {
	switch ev.Type {
	case types.EventTypeBlockStarted:
		if ev.ContentBlock == nil {
			return fmt.Errorf("stream: block_started at index %d missing ContentBlock", ev.Index)
		}
		cp := *ev.ContentBlock
		if _, seen := a.blocks[ev.Index]; !seen {
			a.order = append(a.order, ev.Index)
		}
		a.blocks[ev.Index] = &cp
		if sig, ok := a.pendingSig[ev.Index]; ok {
			a.attachSignature(ev.Index, sig)
			delete(a.pendingSig, ev.Index)
		}

	case types.EventTypeTextDelta:
		b, ok := a.blocks[ev.Index]
		if !ok || ev.Delta == nil {
			return fmt.Errorf("stream: text_delta at index %d with no open block", ev.Index)
		}
		switch b.Type {
		case types.ContentBlockTypeToolUse:
			a.argFragments[ev.Index] += ev.Delta.PartialArguments
			if ev.Delta.Text != "" {
				a.argFragments[ev.Index] += ev.Delta.Text
			}
		default:
			b.Text += ev.Delta.Text
		}

	case types.EventTypeSummaryTextDelta:
		b, ok := a.blocks[ev.Index]
		if !ok || ev.Delta == nil {
			return fmt.Errorf("stream: summary_text_delta at index %d with no open block", ev.Index)
		}
		if b.Reasoning == nil {
			b.Reasoning = &types.ReasoningBlock{}
		}
		b.Reasoning.Summary += ev.Delta.SummaryText

	case types.EventTypeSignatureDelta:
		if ev.Delta == nil {
			return fmt.Errorf("stream: signature_delta at index %d missing delta", ev.Index)
		}
		if b, ok := a.blocks[ev.Index]; ok {
			a.attachSignatureToBlock(b, ev.Delta.Signature)
		} else {
			// Signature arrived before block_started (providers may emit
			// a signature-only part with no preceding text, per Google's
			// "don't concatenate signed parts" rule). Buffer it.
			a.pendingSig[ev.Index] = append(a.pendingSig[ev.Index], ev.Delta.Signature...)
		}

	case types.EventTypeBlockDone:
		b, ok := a.blocks[ev.Index]
		if !ok {
			return fmt.Errorf("stream: block_done at index %d with no open block", ev.Index)
		}
		if b.Type == types.ContentBlockTypeToolUse && b.ToolUse != nil {
			if frag := a.argFragments[ev.Index]; frag != "" {
				var args map[string]any
				if err := json.Unmarshal([]byte(frag), &args); err != nil {
					return fmt.Errorf("stream: tool_use arguments at index %d did not parse as JSON: %w", ev.Index, err)
				}
				b.ToolUse.Arguments = args
			}
		}
		if ev.ContentBlock != nil {
			// block_done may carry final authoritative fields (e.g. a
			// provider that only reveals the full reasoning Text at the
			// end, not incrementally).
			mergeFinal(b, ev.ContentBlock)
		}

	default:
		return fmt.Errorf("stream: unknown event type %q", ev.Type)
	}
	return nil
}

func (a *Accumulator) attachSignature(index int, sig []byte) {
	if b, ok := a.blocks[index]; ok {
		a.attachSignatureToBlock(b, sig)
	}
}

func (a *Accumulator) attachSignatureToBlock(b *types.ContentBlock, sig []byte) {
	switch b.Type {
	case types.ContentBlockTypeReasoning:
		if b.Reasoning == nil {
			b.Reasoning = &types.ReasoningBlock{}
		}
		b.Reasoning.Signature = append(b.Reasoning.Signature, sig...)
	case types.ContentBlockTypeToolUse:
		if b.ToolUse == nil {
			b.ToolUse = &types.ToolUseBlock{}
		}
		b.ToolUse.Signature = append(b.ToolUse.Signature, sig...)
	}
}

func mergeFinal(dst *types.ContentBlock, final *types.ContentBlock) {
	if final.Text != "" {
		dst.Text = final.Text
	}
	if final.Reasoning != nil {
		if dst.Reasoning == nil {
			dst.Reasoning = &types.ReasoningBlock{}
		}
		if final.Reasoning.Text != "" {
			dst.Reasoning.Text = final.Reasoning.Text
		}
		if final.Reasoning.EncryptedContent != "" {
			dst.Reasoning.EncryptedContent = final.Reasoning.EncryptedContent
		}
	}
	if final.ToolUse != nil && dst.ToolUse != nil && final.ToolUse.Arguments != nil {
		dst.ToolUse.Arguments = final.ToolUse.Arguments
	}
}

// Message returns the finished Message built from every block applied so
// far, in the order each index's first block_started arrived.
func (a *Accumulator) Message(role types.Role) types.Message {
	msg := types.Message{Role: role}
	for _, idx := range a.order {
		msg.Content = append(msg.Content, *a.blocks[idx])
	}
	return msg
}
