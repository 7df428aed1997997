package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

func TestCryptoError(t *testing.T) {
	cause := errors.New("short read")

	tests := []struct {
		name string
		err  *models.CryptoError
		want string
	}{
		{
			name: "reason and cause",
			err:  models.NewCryptoError(models.ErrCodeRandom, "generate salt", "entropy source failed", cause),
			want: "generate salt: random generation failed: entropy source failed: short read",
		},
		{
			name: "reason only",
			err:  models.NewCryptoError(models.ErrCodeInvalidNonce, "decrypt", "nonce must be 12 bytes", nil),
			want: "decrypt: invalid nonce: nonce must be 12 bytes",
		},
		{
			name: "cause only",
			err:  models.NewCryptoError(models.ErrCodeEncryption, "seal", "", cause),
			want: "seal: encryption failed: short read",
		},
		{
			name: "bare",
			err:  &models.CryptoError{Code: models.ErrCodeAuthentication},
			want: "crypto: authentication failed: wrong password or tampered data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCryptoErrorMatching(t *testing.T) {
	cause := errors.New("disk gone")
	err := fmt.Errorf("store secret: %w",
		models.NewCryptoError(models.ErrCodeSerialization, "decode", "bad", cause))

	assert.True(t, errors.Is(err, models.ErrSerialization))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, models.ErrDecryption))
	assert.Equal(t, models.ErrCodeSerialization, models.ErrorCode(err))
	assert.Empty(t, models.ErrorCode(cause))

	var ce *models.CryptoError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, "decode", ce.Op)
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, models.IsAuthFailure(
		models.NewCryptoError(models.ErrCodeAuthentication, "decrypt", "", nil)))
	assert.False(t, models.IsAuthFailure(
		models.NewCryptoError(models.ErrCodeDecryption, "decrypt", "", nil)))
	assert.False(t, models.IsAuthFailure(nil))
}

func TestAuthFailureIsDecryptionFailure(t *testing.T) {
	auth := fmt.Errorf("open: %w", models.NewCryptoError(models.ErrCodeAuthentication, "decrypt", "", nil))
	assert.True(t, errors.Is(auth, models.ErrAuthenticationFailed))
	assert.True(t, errors.Is(auth, models.ErrDecryption))
	assert.False(t, errors.Is(auth, models.ErrSerialization))

	dec := models.NewCryptoError(models.ErrCodeDecryption, "decrypt", "", nil)
	assert.False(t, errors.Is(dec, models.ErrAuthenticationFailed))
}
