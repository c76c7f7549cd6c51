package types

// Usage records token accounting for a single model call. CacheRead and
// CacheWrite are additive breakdowns of InputTokens attributable to
// provider-side prompt caching, not separate totals.
type Usage struct {
	InputTokens      int `json:"inputTokens"`
	OutputTokens     int `json:"outputTokens"`
	CacheReadTokens  int `json:"cacheReadTokens,omitempty"`
	CacheWriteTokens int `json:"cacheWriteTokens,omitempty"`
}

// Add accumulates usage across turns.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + o.InputTokens,
		OutputTokens:     u.OutputTokens + o.OutputTokens,
		CacheReadTokens:  u.CacheReadTokens + o.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens + o.CacheWriteTokens,
	}
}

// Cost computes a dollar cost for this usage against a model's per-million
// -token pricing. Regular (non-cached) input tokens are billed at
// cost.Input; CacheReadTokens/CacheWriteTokens at their own rates.
func (u Usage) Cost(c Cost) float64 {
	regularInput := u.InputTokens - u.CacheReadTokens - u.CacheWriteTokens
	if regularInput < 0 {
		regularInput = 0
	}
	const perMillion = 1.0 / 1_000_000.0
	return float64(regularInput)*c.Input*perMillion +
		float64(u.OutputTokens)*c.Output*perMillion +
		float64(u.CacheReadTokens)*c.CacheRead*perMillion +
		float64(u.CacheWriteTokens)*c.CacheWrite*perMillion
}

// StopReason is the canonical reason a provider stopped generating.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonRefusal      StopReason = "refusal"
	StopReasonAborted      StopReason = "aborted"
	StopReasonError        StopReason = "error"
)

// MessageResponse is the final, fully-assembled result of one provider
// call: the accumulated assistant Message, plus metadata that doesn't fit
// into the content-block model.
type MessageResponse struct {
	Id           string     `json:"id"`
	Model        string     `json:"model"`
	Provider     Provider   `json:"provider"`
	Output       Message    `json:"output"`
	StopReason   StopReason `json:"stopReason"`
	StopSequence string     `json:"stopSequence,omitempty"`
	Usage        Usage      `json:"usage"`
}
