package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindRepository, "activities.Insert", "failed to insert row", cause)

	assert.True(t, errors.Is(err, cause))
}

func TestIs_MatchesKind(t *testing.T) {
	err := New(KindValidation, "activities.Validate", "account_id required")

	assert.True(t, Is(err, KindValidation))
	assert.False(t, Is(err, KindNotFound))
}

func TestIs_NonAppError(t *testing.T) {
	assert.False(t, Is(errors.New("plain error"), KindValidation))
}

func TestRetryClassOf_MarketDataError(t *testing.T) {
	err := MarketDataError(SubKindRateLimited, RetryFailoverWithPenalty, "marketdata.FetchQuote", "provider rate limited", nil)

	assert.Equal(t, RetryFailoverWithPenalty, RetryClassOf(err))
}

func TestRetryClassOf_DefaultsToNever(t *testing.T) {
	assert.Equal(t, RetryNever, RetryClassOf(errors.New("unrelated failure")))
	assert.Equal(t, RetryNever, RetryClassOf(New(KindValidation, "op", "msg")))
}

func TestWithIdentifier(t *testing.T) {
	err := New(KindNotFound, "assets.Get", "asset not found").WithIdentifier("SEC:AAPL:XNAS")

	assert.Equal(t, "SEC:AAPL:XNAS", err.Identifier)
	assert.Contains(t, err.Error(), "SEC:AAPL:XNAS")
}
