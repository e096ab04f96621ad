package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)

	assert.NoError(t, h.Compare(hash, "secret123"))
	assert.ErrorIs(t, h.Compare(hash, "wrong"), ErrPasswordMismatch)
	assert.Error(t, h.Compare("not-a-hash", "secret123"))
}

func TestNewHasher_ClampsCost(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, bcrypt.DefaultCost},
		{-3, bcrypt.DefaultCost},
		{2, bcrypt.MinCost},
		{12, 12},
		{99, bcrypt.MaxCost},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewHasher(tt.in).Cost, "cost %d", tt.in)
	}
}

func TestHashSecret(t *testing.T) {
	a := HashSecret("token-1")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashRefreshToken("token-1"))
	assert.NotEqual(t, a, HashSecret("token-2"))

	assert.True(t, SecretHashEqual("token-1", a))
	assert.False(t, SecretHashEqual("token-2", a))
	assert.False(t, SecretHashEqual("token-1", "a"+a))
	assert.False(t, SecretHashEqual("", HashSecret("")))
}
