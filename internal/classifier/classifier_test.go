package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/gateway-fallback/internal/classifier"
	"github.com/yourorg/gateway-fallback/internal/gateway"
)

func TestRetryableTerminalCodes(t *testing.T) {
	terminal := []gateway.ErrorCode{
		gateway.ErrInsufficientFunds,
		gateway.ErrCardDeclined,
		gateway.ErrInvalidCard,
		gateway.ErrExpiredCard,
		gateway.ErrSuspectedFraud,
		gateway.ErrInvalidDocument,
		gateway.ErrInvalidRequest,
		gateway.ErrUnsupportedMethod,
		gateway.ErrNoGateway,
	}
	for _, code := range terminal {
		assert.False(t, classifier.Retryable(code), "%s must be terminal", code)
	}
}

func TestRetryableTechnicalCodes(t *testing.T) {
	technical := []gateway.ErrorCode{
		gateway.ErrGateway,
		gateway.ErrTimeout,
		gateway.ErrConnection,
		gateway.ErrRateLimited,
		gateway.ErrServiceUnavailable,
		gateway.ErrException,
	}
	for _, code := range technical {
		assert.True(t, classifier.Retryable(code), "%s must be retryable", code)
	}
}

func TestRetryableUnknownCodeFailsOpen(t *testing.T) {
	assert.True(t, classifier.Retryable("BRAND_NEW_PROVIDER_CODE"))
	assert.True(t, classifier.Retryable(""))
}

func TestRetryableIsStable(t *testing.T) {
	// Classification is a pure lookup; repeated calls must agree.
	for i := 0; i < 3; i++ {
		assert.False(t, classifier.Retryable(gateway.ErrCardDeclined))
		assert.True(t, classifier.Retryable(gateway.ErrTimeout))
	}
}
