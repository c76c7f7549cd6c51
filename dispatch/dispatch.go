// Package dispatch implements the Streaming Dispatcher (§4.4): selecting
// the right adapter for a Model, retrying transient failures with
// backoff, propagating cancellation, computing usage cost, classifying
// overflow errors, and detecting a stalled stream.
//
// Grounded on persisted_ai/chat_stream.go's hydrate-then-stream dispatch
// shape (with Temporal-specific versioning/retry-via-workflow stripped,
// per DESIGN.md's decision to drop Temporal) and
// llm2/google_provider.go's heartbeat-ticker shape, repurposed here as
// stall detection instead of a Temporal activity heartbeat.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"agentcore/apierr"
	"agentcore/providers"
	"agentcore/transform"
	"agentcore/types"
)

// Registry resolves a types.Model to the Provider adapter that can serve
// it.
type Registry interface {
	Resolve(model types.Model) (providers.Provider, error)
}

// MapRegistry is the simplest Registry: one adapter per types.Provider
// value.
type MapRegistry map[types.Provider]providers.Provider

func (m MapRegistry) Resolve(model types.Model) (providers.Provider, error) {
	p, ok := m[model.Provider]
	if !ok {
		return nil, fmt.Errorf("dispatch: no adapter registered for provider %q", model.Provider)
	}
	return p, nil
}

// Options configures a Dispatcher.
type Options struct {
	// MaxRetries bounds retry attempts for retryable errors (rate-limit,
	// transport). Zero means no retries.
	MaxRetries int
	// BaseBackoff is the initial exponential-backoff delay.
	BaseBackoff time.Duration
	// StallTimeout is the maximum time allowed between successive stream
	// events before the dispatcher gives up on the call as stalled. Zero
	// disables stall detection.
	StallTimeout time.Duration
	// MaxRetryDelay caps the computed exponential-backoff delay (§4.4's
	// StreamOptions.maxRetryDelayMs). Zero means uncapped.
	MaxRetryDelay time.Duration
}

// DefaultOptions matches a conservative default: 3 retries, 500ms base
// backoff, 60s stall timeout, 30s retry-delay ceiling.
func DefaultOptions() Options {
	return Options{MaxRetries: 3, BaseBackoff: 500 * time.Millisecond, StallTimeout: 60 * time.Second, MaxRetryDelay: 30 * time.Second}
}

// Dispatcher is the entry point the Agent Loop calls once per turn.
type Dispatcher struct {
	Registry Registry
	Options  Options
}

func New(registry Registry, opts Options) *Dispatcher {
	return &Dispatcher{Registry: registry, Options: opts}
}

// Dispatch normalizes history via transform.Apply, resolves an adapter,
// and streams one model call, retrying retryable failures with
// exponential backoff. eventChan receives canonical events exactly as
// the underlying adapter emits them; Dispatch does not close it — the
// original caller (the agent loop) owns that, matching the Provider
// contract's channel-ownership rule.
func (d *Dispatcher) Dispatch(ctx context.Context, req providers.StreamRequest, previous *types.Model, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	req.Params.Messages = transform.Apply(req.Params.Messages, transform.Options{Target: req.Params.Model, Previous: previous})

	adapter, err := d.Registry.Resolve(req.Params.Model)
	if err != nil {
		return nil, err
	}

	var lastErr error
	attempts := d.Options.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := d.streamOnce(ctx, adapter, req, eventChan)
		if err == nil {
			return resp, nil
		}
		lastErr = classify(err)

		if apierr.Is(lastErr, apierr.KindAborted) {
			return nil, lastErr
		}
		if !apierr.Retryable(lastErr) || attempt == attempts-1 {
			return nil, lastErr
		}

		delay := backoffDelay(d.Options.BaseBackoff, attempt, d.Options.MaxRetryDelay)
		if ae := asAPIErr(lastErr); ae != nil && ae.RetryAfterSeconds > 0 {
			delay = time.Duration(ae.RetryAfterSeconds) * time.Second
			if d.Options.MaxRetryDelay > 0 && delay > d.Options.MaxRetryDelay {
				delay = d.Options.MaxRetryDelay
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (d *Dispatcher) streamOnce(ctx context.Context, adapter providers.Provider, req providers.StreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	if d.Options.StallTimeout <= 0 {
		return adapter.Stream(ctx, req, eventChan)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	monitored := make(chan types.Event)
	stalled := make(chan struct{})
	go func() {
		timer := time.NewTimer(d.Options.StallTimeout)
		defer timer.Stop()
		for {
			select {
			case ev, ok := <-monitored:
				if !ok {
					return
				}
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(d.Options.StallTimeout)
				select {
				case eventChan <- ev:
				case <-ctx.Done():
					return
				}
			case <-timer.C:
				close(stalled)
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	resp, err := adapter.Stream(ctx, req, monitored)
	close(monitored)
	select {
	case <-stalled:
		return nil, apierr.New(apierr.KindTransport, string(req.Params.Model.Provider), fmt.Errorf("stream stalled: no events for %s", d.Options.StallTimeout))
	default:
	}
	return resp, err
}

func backoffDelay(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

func asAPIErr(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// classify ensures every error returned from an adapter is an
// *apierr.Error, falling back to overflow-regex/context-cancellation
// heuristics for adapters (or raw HTTP clients) that didn't classify
// their own error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if asAPIErr(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return apierr.New(apierr.KindAborted, "", err)
	}
	if overflowPattern.MatchString(err.Error()) {
		return apierr.New(apierr.KindOverflow, "", err)
	}
	return apierr.New(apierr.KindTransport, "", err)
}

// overflowPattern recognizes common provider phrasing for
// context-window-exceeded errors (Cerebras/Mistral 400/413 bodies don't
// carry a dedicated status code, so a regex table over the message is
// the only portable signal).
var overflowPattern = regexp.MustCompile(`(?i)(context.?length|context.?window|maximum context|too many tokens|prompt is too long|input.*too long)`)

// Cost computes the dollar cost of a response's usage against its
// model's pricing.
func Cost(resp *types.MessageResponse, model types.Model) float64 {
	if resp == nil {
		return 0
	}
	return resp.Usage.Cost(model.Cost)
}
