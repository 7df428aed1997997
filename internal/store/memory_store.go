package store

import (
	"context"
	"sort"
	"sync"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

// MemoryStore keeps secrets in a map. Reads run concurrently; writes are
// exclusive.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]*models.EncryptedSecret
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		secrets: make(map[string]*models.EncryptedSecret),
	}
}

// Store saves a copy of secret.
func (s *MemoryStore) Store(ctx context.Context, key string, secret *models.EncryptedSecret) error {
	if err := checkStore(ctx, key, secret); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.secrets[key] = secret.Clone()
	return nil
}

// Retrieve returns a copy of the stored secret.
func (s *MemoryStore) Retrieve(ctx context.Context, key string) (*models.EncryptedSecret, bool, error) {
	if err := checkKey(ctx, key); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[key]
	if !ok {
		return nil, false, nil
	}
	return secret.Clone(), true, nil
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.secrets, key)
	return nil
}

// List returns the keys present at the time of the call.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.secrets))
	for k := range s.secrets {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored secrets.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.secrets)
}

// Close releases resources.
func (s *MemoryStore) Close() error {
	return nil
}
