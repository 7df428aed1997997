package crypto

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

// CryptoEngine turns passwords into Argon2id keys and seals secrets with
// ChaCha20-Poly1305. It holds only immutable configuration and is safe for
// concurrent use; every call derives and destroys its own key.
type CryptoEngine struct {
	profile    Profile
	custom     bool
	cost       KDFCost
	entropy    *EntropySource
	batchLimit int
	now        func() time.Time
}

// NewEngine returns an engine using the given profile's cost.
func NewEngine(profile Profile) *CryptoEngine {
	if !profile.Valid() {
		profile = DefaultProfile
	}
	return &CryptoEngine{
		profile:    profile,
		cost:       profile.Params(),
		entropy:    DefaultEntropy,
		batchLimit: runtime.GOMAXPROCS(0),
		now:        time.Now,
	}
}

// NewEngineWithParams returns an engine with a custom cost. The cost is
// validated here so a bad configuration fails before first use.
func NewEngineWithParams(cost KDFCost) (*CryptoEngine, error) {
	if err := ValidateCost(cost); err != nil {
		return nil, err
	}
	e := NewEngine(DefaultProfile)
	e.custom = true
	e.cost = cost
	return e, nil
}

// WithProfile returns a copy of e using profile.
func (e *CryptoEngine) WithProfile(profile Profile) *CryptoEngine {
	c := NewEngine(profile)
	c.entropy = e.entropy
	c.batchLimit = e.batchLimit
	c.now = e.now
	return c
}

// WithEntropy returns a copy of e drawing salts and nonces from src.
func (e *CryptoEngine) WithEntropy(src *EntropySource) *CryptoEngine {
	c := *e
	c.entropy = src
	return &c
}

// WithBatchConcurrency returns a copy of e that seals at most n batch items
// at once.
func (e *CryptoEngine) WithBatchConcurrency(n int) *CryptoEngine {
	c := *e
	c.batchLimit = max(n, 1)
	return &c
}

// Profile returns the configured profile. custom is true when the engine was
// built from explicit parameters.
func (e *CryptoEngine) Profile() (profile Profile, custom bool) {
	return e.profile, e.custom
}

// Params returns the Argon2id cost used for new envelopes.
func (e *CryptoEngine) Params() KDFCost { return e.cost }

// Encrypt derives a key from password with a fresh (or pinned) salt, seals
// plaintext under a fresh nonce and returns the envelope.
func (e *CryptoEngine) Encrypt(ctx context.Context, plaintext, password []byte, opts *EncryptionOptions) (*models.EncryptedSecret, error) {
	const op = "encrypt"

	if len(plaintext) > opts.maxPlaintext() {
		return nil, models.NewCryptoError(models.ErrCodeEncryption, op,
			fmt.Sprintf("plaintext is %d bytes, limit %d", len(plaintext), opts.maxPlaintext()), nil)
	}

	params, err := e.encryptionParams(opts)
	if err != nil {
		return nil, err
	}

	key, err := deriveKeyContext(ctx, password, params)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	return e.sealWithKey(op, key, plaintext, opts.metadata(e.now()))
}

// EncryptString is Encrypt for string inputs.
func (e *CryptoEngine) EncryptString(ctx context.Context, plaintext, password string, opts *EncryptionOptions) (*models.EncryptedSecret, error) {
	return e.Encrypt(ctx, []byte(plaintext), []byte(password), opts)
}

// EncryptBytes is Encrypt with a string password.
func (e *CryptoEngine) EncryptBytes(ctx context.Context, plaintext []byte, password string, opts *EncryptionOptions) (*models.EncryptedSecret, error) {
	return e.Encrypt(ctx, plaintext, []byte(password), opts)
}

// Decrypt re-derives the key from the envelope's salt and cost and opens the
// ciphertext. A wrong password and a tampered envelope both yield
// ErrAuthenticationFailed.
func (e *CryptoEngine) Decrypt(ctx context.Context, secret *models.EncryptedSecret, password []byte) (*models.PlaintextSecret, error) {
	const op = "decrypt"

	params, err := e.envelopeParams(op, secret)
	if err != nil {
		return nil, err
	}

	key, err := deriveKeyContext(ctx, password, params)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	nonce := secret.Nonce()
	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return nil, models.NewCryptoError(models.ErrCodeDecryption, op, "create cipher", err)
	}

	plaintext, err := aead.Open(nil, nonce[:], secret.Ciphertext(), nil)
	if err != nil {
		return nil, models.NewCryptoError(models.ErrCodeAuthentication, op, "", nil)
	}
	return models.NewPlaintextSecret(plaintext), nil
}

// DecryptString decrypts and returns the plaintext as UTF-8 text.
func (e *CryptoEngine) DecryptString(ctx context.Context, secret *models.EncryptedSecret, password string) (string, error) {
	pt, err := e.Decrypt(ctx, secret, []byte(password))
	if err != nil {
		return "", err
	}
	defer pt.Wipe()
	return pt.Text()
}

// VerifyPassword reports whether candidate is the envelope's password by
// recomputing the authentication tag. The ciphertext is never decrypted.
func (e *CryptoEngine) VerifyPassword(ctx context.Context, secret *models.EncryptedSecret, candidate []byte) (bool, error) {
	const op = "verify password"

	params, err := e.envelopeParams(op, secret)
	if err != nil {
		return false, err
	}

	key, err := deriveKeyContext(ctx, candidate, params)
	if err != nil {
		return false, err
	}
	defer key.Destroy()

	nonce := secret.Nonce()
	return checkTag(secret.Ciphertext(), key.Bytes(), nonce[:])
}

// VerifyPasswordSecure is VerifyPassword padded to take at least minDuration
// whatever the outcome.
func (e *CryptoEngine) VerifyPasswordSecure(ctx context.Context, secret *models.EncryptedSecret, candidate []byte, minDuration time.Duration) (bool, error) {
	start := time.Now()
	ok, err := e.VerifyPassword(ctx, secret, candidate)
	if padErr := padUntil(ctx, start, minDuration); padErr != nil {
		return false, padErr
	}
	return ok, err
}

// ChangePassword opens secret with oldPassword and seals the plaintext again
// under newPassword with a fresh salt and nonce, at the engine's current
// cost. Metadata is carried over. The input envelope is never modified.
func (e *CryptoEngine) ChangePassword(ctx context.Context, secret *models.EncryptedSecret, oldPassword, newPassword []byte) (*models.EncryptedSecret, error) {
	pt, err := e.Decrypt(ctx, secret, oldPassword)
	if err != nil {
		return nil, err
	}
	defer pt.Wipe()

	opts := NewEncryptionOptions().WithMaxPlaintextSize(max(pt.Len(), DefaultMaxPlaintextSize))
	if meta := secret.Metadata(); meta != nil {
		opts.WithMetadata(meta)
	}
	return e.Encrypt(ctx, pt.Bytes(), newPassword, opts)
}

// EncryptDirect seals data under key and nonce without key derivation.
// See the package-level EncryptDirect for the nonce precondition.
func (e *CryptoEngine) EncryptDirect(data, key, nonce []byte) ([]byte, error) {
	return EncryptDirect(data, key, nonce)
}

// DecryptDirect opens data sealed by EncryptDirect.
func (e *CryptoEngine) DecryptDirect(ciphertext, key, nonce []byte) ([]byte, error) {
	return DecryptDirect(ciphertext, key, nonce)
}

// GenerateKey returns a random key for the direct cipher path.
func (e *CryptoEngine) GenerateKey() ([]byte, error) { return e.entropy.Key() }

// GenerateNonce returns a random nonce.
func (e *CryptoEngine) GenerateNonce() ([NonceSize]byte, error) { return e.entropy.Nonce() }

// GenerateSalt returns a random salt.
func (e *CryptoEngine) GenerateSalt() ([SaltSize]byte, error) { return e.entropy.Salt() }

// GeneratePassword returns a random password of length n.
func (e *CryptoEngine) GeneratePassword(n int) (string, error) { return e.entropy.Password(n) }

func (e *CryptoEngine) sealWithKey(op string, key *DerivedKey, plaintext []byte, meta *models.SecretMetadata) (*models.EncryptedSecret, error) {
	nonce, err := e.entropy.Nonce()
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return nil, models.NewCryptoError(models.ErrCodeEncryption, op, "create cipher", err)
	}
	ct := aead.Seal(nil, nonce[:], plaintext, nil)

	salt := key.Salt()
	return models.NewEncryptedSecret(models.DefaultAlgorithm, key.Cost(), nonce[:], salt[:], ct, meta)
}

// encryptionParams resolves cost and salt for a new envelope. Options that
// could not produce a valid envelope fail here, before any key is derived.
func (e *CryptoEngine) encryptionParams(opts *EncryptionOptions) (KeyDerivationParams, error) {
	cost := e.cost
	if opts != nil && opts.Profile != nil {
		if !opts.Profile.Valid() {
			return KeyDerivationParams{}, models.NewCryptoError(models.ErrCodeConfig, "encrypt",
				fmt.Sprintf("unknown security profile %d", int(*opts.Profile)), nil)
		}
		cost = opts.Profile.Params()
	}
	if err := opts.metadata(e.now()).Validate(); err != nil {
		return KeyDerivationParams{}, models.NewCryptoError(models.ErrCodeInvalidInput, "encrypt", "invalid metadata", err)
	}

	if opts != nil && opts.Salt != nil {
		params, err := NewKeyDerivationParams(cost, opts.Salt)
		if err != nil && models.ErrorCode(err) == models.ErrCodeConfig {
			return params, models.NewCryptoError(models.ErrCodeKeyDerivation, "encrypt", "", err)
		}
		return params, err
	}

	params, err := RandomKeyDerivationParams(cost, e.entropy)
	if err != nil && models.ErrorCode(err) == models.ErrCodeConfig {
		return params, models.NewCryptoError(models.ErrCodeKeyDerivation, "encrypt", "", err)
	}
	return params, err
}

// envelopeParams checks an envelope can be opened and returns the derivation
// parameters recorded in it. Envelopes without a recorded cost use the
// engine's.
func (e *CryptoEngine) envelopeParams(op string, secret *models.EncryptedSecret) (KeyDerivationParams, error) {
	if secret == nil {
		return KeyDerivationParams{}, models.NewCryptoError(models.ErrCodeInvalidInput, op, "nil secret", nil)
	}
	if !secret.Algorithm().Supported() {
		return KeyDerivationParams{}, models.NewCryptoError(models.ErrCodeDecryption, op,
			fmt.Sprintf("unsupported algorithm %s", secret.Algorithm()), nil)
	}
	if secret.CiphertextLen() < TagSize {
		return KeyDerivationParams{}, models.NewCryptoError(models.ErrCodeDecryption, op,
			fmt.Sprintf("ciphertext shorter than %d-byte tag", TagSize), nil)
	}

	cost := secret.KDF()
	if cost.IsZero() {
		cost = e.cost
	}
	if err := ValidateCost(cost); err != nil {
		return KeyDerivationParams{}, models.NewCryptoError(models.ErrCodeKeyDerivation, op, "envelope cost rejected", err)
	}

	return KeyDerivationParams{Cost: cost, Salt: secret.Salt()}, nil
}
