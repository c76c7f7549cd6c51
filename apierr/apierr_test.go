package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorStringIncludesProviderWhenSet(t *testing.T) {
	t.Parallel()
	err := New(KindAuth, "anthropic", errors.New("bad key"))
	assert.Equal(t, "auth (anthropic): bad key", err.Error())
}

func TestErrorStringOmitsProviderWhenEmpty(t *testing.T) {
	t.Parallel()
	err := New(KindTransport, "", errors.New("connection reset"))
	assert.Equal(t, "transport: connection reset", err.Error())
}

func TestErrorUnwrapReturnsUnderlyingErr(t *testing.T) {
	t.Parallel()
	underlying := errors.New("boom")
	err := New(KindInvalidRequest, "openai", underlying)
	assert.Equal(t, underlying, errors.Unwrap(err))
}

func TestIsMatchesWrappedKind(t *testing.T) {
	t.Parallel()
	err := New(KindRateLimited, "google", errors.New("429"))
	wrapped := fmt.Errorf("context: %w", err)
	flattened := errors.New("context: " + err.Error())
	assert.True(t, Is(err, KindRateLimited))
	assert.False(t, Is(err, KindAuth))
	assert.True(t, Is(wrapped, KindRateLimited))
	assert.False(t, Is(flattened, KindRateLimited))
}

func TestRetryableTrueForRateLimitedAndTransport(t *testing.T) {
	t.Parallel()
	assert.True(t, Retryable(New(KindRateLimited, "", errors.New("x"))))
	assert.True(t, Retryable(New(KindTransport, "", errors.New("x"))))
}

func TestRetryableFalseForOtherKinds(t *testing.T) {
	t.Parallel()
	assert.False(t, Retryable(New(KindAuth, "", errors.New("x"))))
	assert.False(t, Retryable(New(KindOverflow, "", errors.New("x"))))
	assert.False(t, Retryable(New(KindInvalidRequest, "", errors.New("x"))))
	assert.False(t, Retryable(New(KindAborted, "", errors.New("x"))))
	assert.False(t, Retryable(errors.New("plain error")))
}
