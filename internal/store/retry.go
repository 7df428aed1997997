package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheMichaelB/vaultseal/internal/events"
	"github.com/TheMichaelB/vaultseal/internal/models"
)

// RetryPolicy controls how a RetryStore repeats failed calls.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first. Zero disables
	// retrying.
	MaxRetries int

	// BaseDelay is the wait before the first retry. It doubles each time up
	// to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// RetryStore repeats transient failures of another store with exponential
// backoff. Validation errors, corrupt data and context errors are returned
// at once.
type RetryStore struct {
	next   SecretStore
	policy RetryPolicy
	logger *events.Logger
}

// NewRetryStore wraps next with policy.
func NewRetryStore(next SecretStore, policy RetryPolicy, logger *events.Logger) *RetryStore {
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	return &RetryStore{next: next, policy: policy, logger: logger}
}

// Store implements SecretStore.
func (r *RetryStore) Store(ctx context.Context, key string, secret *models.EncryptedSecret) error {
	return r.retry(ctx, "store", func() error {
		return r.next.Store(ctx, key, secret)
	})
}

// Retrieve implements SecretStore.
func (r *RetryStore) Retrieve(ctx context.Context, key string) (*models.EncryptedSecret, bool, error) {
	var (
		secret *models.EncryptedSecret
		ok     bool
	)
	err := r.retry(ctx, "retrieve", func() error {
		var err error
		secret, ok, err = r.next.Retrieve(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return secret, ok, nil
}

// Delete implements SecretStore.
func (r *RetryStore) Delete(ctx context.Context, key string) error {
	return r.retry(ctx, "delete", func() error {
		return r.next.Delete(ctx, key)
	})
}

// List implements SecretStore.
func (r *RetryStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.retry(ctx, "list", func() error {
		var err error
		keys, err = r.next.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close implements SecretStore.
func (r *RetryStore) Close() error {
	return r.next.Close()
}

// retry executes fn with exponential backoff.
func (r *RetryStore) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	delay := r.policy.BaseDelay

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.WithFields(map[string]interface{}{
				"op":      op,
				"attempt": attempt,
				"delay":   delay,
			}).Debug("Retrying store call")

			select {
			case <-time.After(delay):
				delay = min(delay*2, r.policy.MaxDelay)
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}

	if r.policy.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("%s: max retries exceeded: %w", op, lastErr)
}

// retryable reports whether err may clear up on its own.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrNilSecret),
		errors.Is(err, ErrSecretNotFound), errors.Is(err, ErrCorrupt):
		return false
	case models.ErrorCode(err) != "":
		return false
	}
	return true
}
