package store

import (
	"context"
	"fmt"

	"github.com/TheMichaelB/vaultseal/internal/config"
	"github.com/TheMichaelB/vaultseal/internal/events"
)

// New opens the backend selected by cfg. The sqlite and s3 backends are
// wrapped in a RetryStore when cfg.Retries is positive.
func New(ctx context.Context, cfg config.StoreConfig, logger *events.Logger) (SecretStore, error) {
	var (
		st  SecretStore
		err error
	)

	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendFile:
		return NewFileStore(cfg.Dir, logger)
	case config.BackendSQLite:
		st, err = NewSQLiteStore(cfg.Path, logger)
	case config.BackendS3:
		st, err = NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, logger)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return withRetry(st, cfg, logger), nil
}

func withRetry(st SecretStore, cfg config.StoreConfig, logger *events.Logger) SecretStore {
	if cfg.Retries <= 0 {
		return st
	}
	return NewRetryStore(st, RetryPolicy{
		MaxRetries: cfg.Retries,
		BaseDelay:  cfg.RetryDelay,
		MaxDelay:   cfg.RetryMaxDelay,
	}, logger)
}
