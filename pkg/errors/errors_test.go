package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorChain(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := fmt.Errorf("listing page 3: %w", Wrap(ErrorTypeNetwork, cause, "request failed"))

	assert.True(t, IsType(err, ErrorTypeNetwork))
	assert.False(t, IsRateLimited(err))
	assert.Equal(t, ErrorTypeNetwork, TypeOf(err))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsNotFound(New(ErrorTypeNotFound, 0, "account %q", "x")))
	assert.True(t, IsRateLimited(New(ErrorTypeRateLimit, 200013, "freq control")))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))

	assert.True(t, IsRetryable(ErrorTypeServerError))
	assert.False(t, IsRetryable(ErrorTypeRender))

	assert.True(t, IsRetryableStatusCode(503))
	assert.False(t, IsRetryableStatusCode(404))
}
