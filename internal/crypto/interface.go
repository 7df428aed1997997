package crypto

import (
	"context"
	"time"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

// Engine is the password-based secret sealing API consumed by services.
type Engine interface {
	// Encrypt seals plaintext under a key derived from password.
	Encrypt(ctx context.Context, plaintext, password []byte, opts *EncryptionOptions) (*models.EncryptedSecret, error)

	// Decrypt opens an envelope sealed by Encrypt.
	Decrypt(ctx context.Context, secret *models.EncryptedSecret, password []byte) (*models.PlaintextSecret, error)

	// VerifyPassword checks a password without producing plaintext.
	VerifyPassword(ctx context.Context, secret *models.EncryptedSecret, candidate []byte) (bool, error)

	// VerifyPasswordSecure is VerifyPassword padded to at least minDuration.
	VerifyPasswordSecure(ctx context.Context, secret *models.EncryptedSecret, candidate []byte, minDuration time.Duration) (bool, error)

	// ChangePassword re-seals an envelope under a new password.
	ChangePassword(ctx context.Context, secret *models.EncryptedSecret, oldPassword, newPassword []byte) (*models.EncryptedSecret, error)

	// EncryptBatch seals many items under one derived key.
	EncryptBatch(ctx context.Context, items []BatchItem, password []byte, opts *EncryptionOptions) (*BatchResult, error)
}

var _ Engine = (*CryptoEngine)(nil)
