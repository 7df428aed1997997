package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheMichaelB/vaultseal/internal/crypto"
	"github.com/TheMichaelB/vaultseal/internal/events"
	"github.com/TheMichaelB/vaultseal/internal/models"
	"github.com/TheMichaelB/vaultseal/internal/store"
	"github.com/TheMichaelB/vaultseal/internal/validation"
)

// ErrExists is returned by Seal when the name is taken and overwrite is off.
var ErrExists = errors.New("secret already exists")

// SealOptions controls Seal and SealBatch.
type SealOptions struct {
	// Encryption is passed to the engine unchanged. Nil means defaults.
	Encryption *crypto.EncryptionOptions

	// Overwrite replaces an existing secret of the same name.
	Overwrite bool
}

// Service manages named secrets: it seals with the engine and persists the
// envelopes through a SecretStore.
type Service struct {
	engine    crypto.Engine
	store     store.SecretStore
	policy    validation.Policy
	verifyMin time.Duration
	metrics   *Metrics
	logger    *events.Logger
}

// NewService creates a secrets service.
func NewService(engine crypto.Engine, st store.SecretStore, policy validation.Policy, logger *events.Logger) *Service {
	return &Service{
		engine: engine,
		store:  st,
		policy:  policy,
		metrics: NewMetrics(),
		logger:  logger.WithField("service", "secrets"),
	}
}

// Metrics returns the per-operation counters of this service.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// SetVerifyMinDuration sets the floor applied to Verify's running time.
func (s *Service) SetVerifyMinDuration(d time.Duration) {
	s.verifyMin = d
}

// Policy returns the password policy applied to new passwords.
func (s *Service) Policy() validation.Policy {
	return s.policy
}

// begin tags ctx with an operation id and the secret name.
func (s *Service) begin(ctx context.Context, op, name string) (context.Context, *events.Logger) {
	ctx = events.WithLogger(ctx, s.logger.WithField("op", op))
	ctx = events.WithOperationID(ctx)
	if name != "" {
		ctx = events.WithSecretName(ctx, name)
	}
	return ctx, events.FromContext(ctx)
}

// observe records a finished operation. Authentication failures are also
// logged as security events.
func (s *Service) observe(logger *events.Logger, op string, start time.Time, err error) {
	s.metrics.Record(op, time.Since(start), err)
	if models.IsAuthFailure(err) {
		securityEvent(logger, "auth_failure")
	}
}

func securityEvent(logger *events.Logger, kind string) {
	logger.WithField("security_event", kind).Warn("Security event: password rejected")
}

// checkPassword applies the policy to a new password. Failures are logged as
// warnings unless the policy is enforced.
func (s *Service) checkPassword(logger *events.Logger, password []byte, hints ...string) error {
	result := s.policy.Check(string(password), hints...)
	if err := s.policy.Gate(result); err != nil {
		return err
	}
	for _, msg := range result.Messages() {
		logger.WithField("score", result.Score).Warn(msg)
	}
	return nil
}

// Seal encrypts plaintext under password and stores it as name.
func (s *Service) Seal(ctx context.Context, name string, plaintext, password []byte, opts *SealOptions) (_ *models.EncryptedSecret, err error) {
	ctx, logger := s.begin(ctx, "seal", name)
	defer func(start time.Time) { s.observe(logger, "seal", start, err) }(time.Now())
	if opts == nil {
		opts = &SealOptions{}
	}

	if err := store.ValidateKey(name); err != nil {
		return nil, err
	}

	if !opts.Overwrite {
		if _, ok, err := s.store.Retrieve(ctx, name); err != nil {
			return nil, fmt.Errorf("check existing: %w", err)
		} else if ok {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
	}

	if err := s.checkPassword(logger, password, name); err != nil {
		return nil, err
	}

	start := time.Now()
	secret, err := s.engine.Encrypt(ctx, plaintext, password, opts.Encryption)
	if err != nil {
		logger.WithError(err).Error("Seal failed")
		return nil, err
	}

	if err := s.store.Store(ctx, name, secret); err != nil {
		return nil, fmt.Errorf("store secret: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"size":        len(plaintext),
		"kdf":         secret.KDF().String(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Sealed secret")

	return secret, nil
}

// Get returns the stored envelope without decrypting it.
func (s *Service) Get(ctx context.Context, name string) (*models.EncryptedSecret, error) {
	secret, ok, err := s.store.Retrieve(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("retrieve secret: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrSecretNotFound, name)
	}
	return secret, nil
}

// Open decrypts the secret stored as name. The caller owns the plaintext and
// should Wipe it when done.
func (s *Service) Open(ctx context.Context, name string, password []byte) (_ *models.PlaintextSecret, err error) {
	ctx, logger := s.begin(ctx, "open", name)
	defer func(start time.Time) { s.observe(logger, "open", start, err) }(time.Now())

	secret, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	pt, err := s.engine.Decrypt(ctx, secret, password)
	if err != nil {
		if !models.IsAuthFailure(err) {
			logger.WithError(err).Error("Open failed")
		}
		return nil, err
	}

	logger.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Opened secret")
	return pt, nil
}

// Verify reports whether password opens name, without decrypting. The call
// takes at least the configured minimum duration either way.
func (s *Service) Verify(ctx context.Context, name string, password []byte) (_ bool, err error) {
	ctx, logger := s.begin(ctx, "verify", name)
	defer func(start time.Time) { s.observe(logger, "verify", start, err) }(time.Now())

	secret, err := s.Get(ctx, name)
	if err != nil {
		return false, err
	}

	ok, err := s.engine.VerifyPasswordSecure(ctx, secret, password, s.verifyMin)
	if err != nil {
		return false, err
	}

	if !ok {
		s.metrics.RecordRejected("verify")
		securityEvent(logger, "verify_mismatch")
	}
	logger.WithField("match", ok).Debug("Verified password")
	return ok, nil
}

// Rekey re-seals name under newPassword. The stored envelope is replaced only
// after the new one is complete.
func (s *Service) Rekey(ctx context.Context, name string, oldPassword, newPassword []byte) (_ *models.EncryptedSecret, err error) {
	ctx, logger := s.begin(ctx, "rekey", name)
	defer func(start time.Time) { s.observe(logger, "rekey", start, err) }(time.Now())

	secret, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := s.checkPassword(logger, newPassword, name); err != nil {
		return nil, err
	}

	rekeyed, err := s.engine.ChangePassword(ctx, secret, oldPassword, newPassword)
	if err != nil {
		logger.WithError(err).Warn("Rekey failed")
		return nil, err
	}

	if err := s.store.Store(ctx, name, rekeyed); err != nil {
		return nil, fmt.Errorf("store secret: %w", err)
	}

	logger.WithField("kdf", rekeyed.KDF().String()).Info("Rekeyed secret")
	return rekeyed, nil
}

// Import stores an envelope sealed elsewhere as name. The envelope is not
// decrypted, so no password is needed.
func (s *Service) Import(ctx context.Context, name string, secret *models.EncryptedSecret, overwrite bool) (err error) {
	ctx, logger := s.begin(ctx, "import", name)
	defer func(start time.Time) { s.observe(logger, "import", start, err) }(time.Now())

	if err := store.ValidateKey(name); err != nil {
		return err
	}
	if secret == nil {
		return store.ErrNilSecret
	}
	if !secret.Algorithm().Supported() {
		return models.NewCryptoError(models.ErrCodeInvalidInput, "import",
			fmt.Sprintf("unsupported algorithm %s", secret.Algorithm()), nil)
	}

	if !overwrite {
		if _, ok, err := s.store.Retrieve(ctx, name); err != nil {
			return fmt.Errorf("check existing: %w", err)
		} else if ok {
			return fmt.Errorf("%w: %s", ErrExists, name)
		}
	}

	if err := s.store.Store(ctx, name, secret); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}

	logger.WithField("kdf", secret.KDF().String()).Info("Imported secret")
	return nil
}

// List returns all secret names in order.
func (s *Service) List(ctx context.Context) (_ []string, err error) {
	defer func(start time.Time) { s.observe(s.logger, "list", start, err) }(time.Now())

	names, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	return names, nil
}

// Delete removes name. Unlike the store, a missing name is an error so the
// CLI can report typos.
func (s *Service) Delete(ctx context.Context, name string) (err error) {
	ctx, logger := s.begin(ctx, "delete", name)
	defer func(start time.Time) { s.observe(logger, "delete", start, err) }(time.Now())

	if _, err := s.Get(ctx, name); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}

	logger.Info("Deleted secret")
	return nil
}

// SealBatch seals every item under one password and stores each success
// under its label. Names that already exist fail individually unless
// Overwrite is set; one failing item never stops the others.
func (s *Service) SealBatch(ctx context.Context, items []crypto.BatchItem, password []byte, opts *SealOptions) (_ *crypto.BatchResult, err error) {
	ctx, logger := s.begin(ctx, "seal_batch", "")
	defer func(start time.Time) { s.observe(logger, "seal_batch", start, err) }(time.Now())
	if opts == nil {
		opts = &SealOptions{}
	}

	result := &crypto.BatchResult{Items: make([]crypto.BatchItemResult, len(items))}
	var pending []crypto.BatchItem
	var slots []int

	for i, item := range items {
		result.Items[i].Label = item.Label

		if err := store.ValidateKey(item.Label); err != nil {
			result.Items[i].Err = err
			continue
		}
		if !opts.Overwrite {
			_, ok, err := s.store.Retrieve(ctx, item.Label)
			if err != nil {
				result.Items[i].Err = fmt.Errorf("check existing: %w", err)
				continue
			}
			if ok {
				result.Items[i].Err = fmt.Errorf("%w: %s", ErrExists, item.Label)
				continue
			}
		}
		pending = append(pending, item)
		slots = append(slots, i)
	}

	if len(pending) == 0 {
		return result, nil
	}

	if err := s.checkPassword(logger, password); err != nil {
		return nil, err
	}

	start := time.Now()
	sealed, err := s.engine.EncryptBatch(ctx, pending, password, opts.Encryption)
	if err != nil {
		logger.WithError(err).Error("Batch seal failed")
		return nil, err
	}

	for j, it := range sealed.Items {
		slot := slots[j]
		result.Items[slot] = it
		if it.Err != nil {
			continue
		}
		if err := s.store.Store(ctx, it.Label, it.Secret); err != nil {
			result.Items[slot].Secret = nil
			result.Items[slot].Err = fmt.Errorf("store secret: %w", err)
		}
	}

	logger.WithFields(map[string]interface{}{
		"items":       len(items),
		"sealed":      len(result.Successes()),
		"failed":      len(result.Failures()),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Sealed batch")

	return result, nil
}
