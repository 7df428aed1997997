package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/TheMichaelB/vaultseal/internal/events"
	"github.com/TheMichaelB/vaultseal/internal/models"
)

// SecretStore persists encrypted secrets by name.
type SecretStore interface {
	// Store saves a secret, replacing any previous value for key.
	Store(ctx context.Context, key string, secret *models.EncryptedSecret) error

	// Retrieve returns the secret for key. A missing key is reported with
	// ok=false and a nil error.
	Retrieve(ctx context.Context, key string) (secret *models.EncryptedSecret, ok bool, err error)

	// Delete removes a secret. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error

	// List returns a sorted snapshot of the stored keys.
	List(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close() error
}

// MaxKeyLength bounds secret names in bytes. The file store names files by the
// unpadded base64 of the key plus ".json.bak", which must fit in 255 bytes.
const MaxKeyLength = 184

// Errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrInvalidKey     = errors.New("invalid secret name")
	ErrNilSecret      = errors.New("secret is nil")
)

// ValidateKey checks that a secret name is usable by every backend.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidKey, MaxKeyLength)
	}
	if strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: leading or trailing whitespace", ErrInvalidKey)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character", ErrInvalidKey)
		}
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: bad path segment in %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func checkStore(ctx context.Context, key string, secret *models.EncryptedSecret) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if secret == nil {
		return ErrNilSecret
	}
	return nil
}

func checkKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ValidateKey(key)
}

// Copy transfers every secret from src to dst and returns the number copied.
// Keys removed from src while copying are skipped.
func Copy(ctx context.Context, src, dst SecretStore) (int, error) {
	logger := events.FromContext(ctx).WithField("component", "store_copy")

	keys, err := src.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list source: %w", err)
	}

	logger.WithField("count", len(keys)).Info("Copying secrets")

	copied := 0
	for _, key := range keys {
		secret, ok, err := src.Retrieve(ctx, key)
		if err != nil {
			return copied, fmt.Errorf("retrieve %s: %w", key, err)
		}
		if !ok {
			logger.WithField("key", key).Warn("Secret disappeared during copy")
			continue
		}

		if err := dst.Store(ctx, key, secret); err != nil {
			return copied, fmt.Errorf("store %s: %w", key, err)
		}
		copied++

		logger.WithField("key", key).Debug("Copied secret")
	}

	return copied, nil
}
