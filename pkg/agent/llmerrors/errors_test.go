package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "rate_limit", ErrorTypeRateLimit.String())
	assert.Equal(t, "refusal", ErrorTypeRefusal.String())
	assert.Equal(t, "service_unavailable", ErrorTypeServiceUnavailable.String())
	assert.Equal(t, "invalid", ErrorType(99).String())
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("dial tcp")
	assert.Equal(t, "LLM error (transient): upstream: dial tcp", NewErrorWithCause(ErrorTypeTransient, cause, "upstream").Error())
	assert.Equal(t, "LLM error (auth): bad key", NewError(ErrorTypeAuth, "bad key").Error())
	assert.Equal(t, "LLM error (bad_prompt): status 400", (&Error{Type: ErrorTypeBadPrompt, StatusCode: 400}).Error())
}

func TestIsAndTypeOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(ErrorTypeRateLimit, "slow down"))

	assert.True(t, Is(err, ErrorTypeRateLimit))
	assert.False(t, Is(err, ErrorTypeAuth))
	assert.Equal(t, ErrorTypeRateLimit, TypeOf(err))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestRetryability(t *testing.T) {
	retryable := []ErrorType{ErrorTypeRateLimit, ErrorTypeTransient}
	final := []ErrorType{ErrorTypeEmptyResponse, ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeRefusal, ErrorTypeUnknown, ErrorTypeServiceUnavailable}

	for _, et := range retryable {
		assert.True(t, NewError(et, "x").IsRetryable(), et.String())
	}
	for _, et := range final {
		assert.False(t, NewError(et, "x").IsRetryable(), et.String())
	}
}

func TestTypeForStatus(t *testing.T) {
	cases := map[int]ErrorType{
		429: ErrorTypeRateLimit,
		401: ErrorTypeAuth,
		403: ErrorTypeAuth,
		408: ErrorTypeTransient,
		500: ErrorTypeTransient,
		503: ErrorTypeTransient,
		400: ErrorTypeBadPrompt,
		422: ErrorTypeBadPrompt,
		200: ErrorTypeUnknown,
	}
	for status, want := range cases {
		assert.Equal(t, want, TypeForStatus(status), "status %d", status)
	}
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil, 500))

	classified := NewError(ErrorTypeAuth, "nope")
	assert.Same(t, classified, Classify(classified, 500))

	assert.Equal(t, ErrorTypeRateLimit, TypeOf(Classify(errors.New("too many"), 429)))
	assert.Equal(t, ErrorTypeTransient, TypeOf(Classify(fmt.Errorf("call: %w", context.DeadlineExceeded), 0)))
	assert.Equal(t, ErrorTypeTransient, TypeOf(Classify(errors.New("read: connection reset by peer"), 0)))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(Classify(errors.New("weird"), 0)))

	err := Classify(errors.New("boom"), 502)
	var llmErr *Error
	assert.True(t, errors.As(err, &llmErr))
	assert.Equal(t, 502, llmErr.StatusCode)
}

func TestServiceUnavailable(t *testing.T) {
	cause := NewError(ErrorTypeTransient, "502")
	err := NewServiceUnavailableError(cause, 3)

	assert.Equal(t, ErrorTypeServiceUnavailable, err.Type)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.True(t, errors.Is(err, cause))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...[6 chars]", Truncate("abcdef", 3))
}
