package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRevocation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed sentinel", ErrDeviceRevoked, true},
		{"wrapped sentinel", fmt.Errorf("poll failed: %w", ErrDeviceRevoked), true},
		{"revoked wording", stderrors.New("403: device was REVOKED by owner"), true},
		{"signed out wording", stderrors.New("you have been signed out"), true},
		{"transient network error", stderrors.New("connection refused"), false},
		{"unrelated auth error", ErrInvalidCredential, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRevocation(tt.err))
		})
	}
}

func TestAuthErrorBody(t *testing.T) {
	err := NewInvalidToken("Invalid or expired credential")
	assert.Equal(t, InvalidToken, err.Code)
	assert.Contains(t, err.Error(), "invalid_token")
	assert.Contains(t, err.Error(), "Invalid or expired credential")
}
