package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithCauseKeepsIdentity(t *testing.T) {
	err := WithCause(ErrTokenExpired, fmt.Errorf("exp 12:00"))

	assert.True(t, Is(err, ErrTokenExpired))
	assert.False(t, Is(err, ErrTokenInvalid))
	assert.Equal(t, 401, GetCode(err))
	assert.Equal(t, ErrTokenExpired.Message, GetMessage(err))
	assert.Contains(t, err.Error(), "exp 12:00")
}

func TestGetCodeWalksChain(t *testing.T) {
	wrapped := fmt.Errorf("middleware: %w", Forbidden(""))

	assert.Equal(t, 403, GetCode(wrapped))
	assert.True(t, IsPermission(wrapped))
	assert.False(t, IsAuth(wrapped))
	assert.Equal(t, 500, GetCode(fmt.Errorf("plain")))
}
