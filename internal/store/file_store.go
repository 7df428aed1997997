package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/TheMichaelB/vaultseal/internal/events"
	"github.com/TheMichaelB/vaultseal/internal/models"
)

const (
	envelopeExt = ".json"
	backupExt   = ".bak"
)

// ErrCorrupt is returned when neither an envelope file nor its backup parses.
var ErrCorrupt = errors.New("secret file is corrupt")

// FileStore keeps one JSON envelope per secret in a directory. File names are
// the URL-safe base64 of the key so any valid key maps to a flat file.
type FileStore struct {
	baseDir string
	logger  *events.Logger

	mu sync.RWMutex
}

// NewFileStore creates a file-based store rooted at baseDir.
func NewFileStore(baseDir string, logger *events.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	return &FileStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "file_store"),
	}, nil
}

// Dir returns the directory holding the envelopes.
func (s *FileStore) Dir() string {
	return s.baseDir
}

// Store writes the envelope atomically. The previous version, if any, is kept
// as a backup for recovery from a corrupted write.
func (s *FileStore) Store(ctx context.Context, key string, secret *models.EncryptedSecret) error {
	if err := checkStore(ctx, key, secret); err != nil {
		return err
	}

	data, err := secret.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal secret: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.secretPath(key)

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Writing secret")

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+backupExt); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		}
	}

	if err := writeAtomic(path, data); err != nil {
		return err
	}

	return nil
}

// Retrieve reads and parses the envelope for key.
func (s *FileStore) Retrieve(ctx context.Context, key string) (*models.EncryptedSecret, bool, error) {
	if err := checkKey(ctx, key); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.secretPath(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read secret file: %w", err)
	}

	secret, err := models.ParseJSON(data)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Secret file unreadable, trying backup")

		backup, berr := os.ReadFile(path + backupExt)
		if berr != nil {
			return nil, false, fmt.Errorf("%w: %s", ErrCorrupt, key)
		}
		if secret, berr = models.ParseJSON(backup); berr != nil {
			return nil, false, fmt.Errorf("%w: %s", ErrCorrupt, key)
		}
		s.logger.WithField("key", key).Warn("Loaded secret from backup due to corruption")
	}

	return secret, true, nil
}

// Delete removes the envelope and its backup.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.secretPath(key)
	for _, p := range []string{path, path + backupExt} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove secret file: %w", err)
		}
	}

	s.logger.WithField("key", key).Debug("Deleted secret")
	return nil
}

// List returns the keys of all envelopes in the directory.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read store directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, envelopeExt) {
			continue
		}

		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, envelopeExt))
		if err != nil {
			s.logger.WithField("file", name).Debug("Skipping foreign file")
			continue
		}
		keys = append(keys, string(raw))
	}

	sort.Strings(keys)
	return keys, nil
}

// Close releases resources.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) secretPath(key string) string {
	return filepath.Join(s.baseDir, base64.RawURLEncoding.EncodeToString([]byte(key))+envelopeExt)
}

// writeAtomic writes data to a temp file in the same directory, syncs it and
// renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename secret file: %w", err)
	}

	success = true
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
