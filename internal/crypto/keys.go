package crypto

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

// DerivedKey is an Argon2id key plus the salt and cost that produced it.
// Destroy zeroes the key; use WithKey to tie that to a scope. A DerivedKey
// is not safe for concurrent use.
type DerivedKey struct {
	key       [KeySize]byte
	salt      [SaltSize]byte
	cost      KDFCost
	destroyed bool
}

// DeriveKey runs Argon2id v0x13 over password with params. Invalid costs fail
// with ErrKeyDerivation wrapping ErrInvalidParams.
func DeriveKey(password []byte, params KeyDerivationParams) (*DerivedKey, error) {
	if err := params.Validate(); err != nil {
		return nil, models.NewCryptoError(models.ErrCodeKeyDerivation, "derive key", "", err)
	}

	raw := argon2.IDKey(password, params.Salt[:],
		params.Cost.Iterations, params.Cost.MemoryKiB, uint8(params.Cost.Parallelism), KeySize)
	defer Wipe(raw)

	if len(raw) != KeySize {
		return nil, models.NewCryptoError(models.ErrCodeKeyDerivation, "derive key",
			fmt.Sprintf("argon2 returned %d bytes", len(raw)), nil)
	}

	k := &DerivedKey{salt: params.Salt, cost: params.Cost}
	copy(k.key[:], raw)
	return k, nil
}

// DeriveKeyWithRandomSalt derives with a fresh salt from DefaultEntropy.
func DeriveKeyWithRandomSalt(password []byte, cost KDFCost) (*DerivedKey, error) {
	params, err := RandomKeyDerivationParams(cost, DefaultEntropy)
	if err != nil {
		return nil, err
	}
	return DeriveKey(password, params)
}

// DeriveKeyWithSalt derives with an existing salt, which must be exactly
// SaltSize bytes.
func DeriveKeyWithSalt(password, salt []byte, cost KDFCost) (*DerivedKey, error) {
	params, err := NewKeyDerivationParams(cost, salt)
	if err != nil {
		if models.ErrorCode(err) == models.ErrCodeConfig {
			return nil, models.NewCryptoError(models.ErrCodeKeyDerivation, "derive key", "", err)
		}
		return nil, err
	}
	return DeriveKey(password, params)
}

// WithKey derives a key, passes it to fn and destroys it when fn returns,
// including on error or panic.
func WithKey(password []byte, params KeyDerivationParams, fn func(*DerivedKey) error) error {
	k, err := DeriveKey(password, params)
	if err != nil {
		return err
	}
	defer k.Destroy()
	return fn(k)
}

// deriveKeyContext runs DeriveKey on its own goroutine so the caller can give
// up on ctx. A key that finishes after the caller left is destroyed.
func deriveKeyContext(ctx context.Context, password []byte, params KeyDerivationParams) (*DerivedKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	type result struct {
		key *DerivedKey
		err error
	}

	pw := append([]byte(nil), password...)
	done := make(chan result, 1)
	go func() {
		defer Wipe(pw)
		k, err := DeriveKey(pw, params)
		done <- result{key: k, err: err}
	}()

	select {
	case r := <-done:
		return r.key, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.key != nil {
				r.key.Destroy()
			}
		}()
		return nil, fmt.Errorf("derive key: %w", ctx.Err())
	}
}

// Bytes returns the key. The slice aliases internal storage that Destroy
// zeroes; callers must not retain it.
func (k *DerivedKey) Bytes() []byte { return k.key[:] }

// Salt returns the salt the key was derived with.
func (k *DerivedKey) Salt() [SaltSize]byte { return k.salt }

// Cost returns the Argon2id cost the key was derived with.
func (k *DerivedKey) Cost() KDFCost { return k.cost }

// Params returns cost and salt together.
func (k *DerivedKey) Params() KeyDerivationParams {
	return KeyDerivationParams{Cost: k.cost, Salt: k.salt}
}

// Destroyed reports whether Destroy has run.
func (k *DerivedKey) Destroyed() bool { return k.destroyed }

// Destroy zeroes the key. It is safe to call more than once.
func (k *DerivedKey) Destroy() {
	if k == nil {
		return
	}
	Wipe(k.key[:])
	k.destroyed = true
}

// VerifyPassword re-derives from candidate with the same salt and cost and
// compares keys in constant time.
func (k *DerivedKey) VerifyPassword(candidate []byte) (bool, error) {
	if k.destroyed {
		return false, models.NewCryptoError(models.ErrCodeInvalidKey, "verify password", "key destroyed", nil)
	}
	other, err := DeriveKey(candidate, k.Params())
	if err != nil {
		return false, err
	}
	defer other.Destroy()
	return ConstantTimeCompare(k.key[:], other.key[:]), nil
}

// VerifyPasswordSecure is VerifyPassword padded to take at least minDuration.
// The wait suspends only the calling goroutine. If ctx ends first the result
// is discarded and ctx.Err() is returned.
func (k *DerivedKey) VerifyPasswordSecure(ctx context.Context, candidate []byte, minDuration time.Duration) (bool, error) {
	start := time.Now()

	if k.destroyed {
		if padErr := padUntil(ctx, start, minDuration); padErr != nil {
			return false, padErr
		}
		return false, models.NewCryptoError(models.ErrCodeInvalidKey, "verify password", "key destroyed", nil)
	}

	var ok bool
	other, err := deriveKeyContext(ctx, candidate, k.Params())
	if err == nil {
		ok = ConstantTimeCompare(k.key[:], other.key[:])
		other.Destroy()
	}

	if padErr := padUntil(ctx, start, minDuration); padErr != nil {
		return false, padErr
	}
	return ok, err
}

// Hex encodes key||salt as hex. The intermediate buffer is wiped; the
// returned string cannot be.
func (k *DerivedKey) Hex() string {
	buf := make([]byte, 0, KeySize+SaltSize)
	buf = append(buf, k.key[:]...)
	buf = append(buf, k.salt[:]...)
	defer Wipe(buf)
	return hex.EncodeToString(buf)
}

// DerivedKeyFromHex decodes the form written by Hex. cost is recorded on the
// key for later verification.
func DerivedKeyFromHex(s string, cost KDFCost) (*DerivedKey, error) {
	const op = "decode derived key"

	raw, err := hex.DecodeString(s)
	defer Wipe(raw)
	if err != nil {
		return nil, models.SerializationError(op, "invalid hex", err)
	}
	if len(raw) != KeySize+SaltSize {
		return nil, models.SerializationError(op,
			fmt.Sprintf("expected %d bytes, got %d", KeySize+SaltSize, len(raw)), nil)
	}

	k := &DerivedKey{cost: cost}
	copy(k.key[:], raw[:KeySize])
	copy(k.salt[:], raw[KeySize:])
	return k, nil
}

func (k *DerivedKey) String() string {
	return fmt.Sprintf("DerivedKey{key: [REDACTED], salt: %x, cost: %s}", k.salt[:], k.cost)
}

// GoString keeps %#v redacted.
func (k *DerivedKey) GoString() string { return k.String() }

// Format keeps every fmt verb redacted.
func (k *DerivedKey) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, k.String())
}
