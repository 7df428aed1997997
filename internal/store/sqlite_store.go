package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/vaultseal/internal/events"
	"github.com/TheMichaelB/vaultseal/internal/models"
)

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

// SQLiteStore keeps envelopes in a SQLite database using the binary codec.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS secrets (
        key TEXT PRIMARY KEY,
        envelope BLOB NOT NULL,
        algorithm TEXT NOT NULL,
        created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Store upserts the envelope for key.
func (s *SQLiteStore) Store(ctx context.Context, key string, secret *models.EncryptedSecret) error {
	if err := checkStore(ctx, key, secret); err != nil {
		return err
	}

	blob, err := secret.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal secret: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(blob),
	}).Debug("Saving secret to SQLite")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO secrets (key, envelope, algorithm, updated_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET
            envelope = excluded.envelope,
            algorithm = excluded.algorithm,
            updated_at = CURRENT_TIMESTAMP
    `, key, blob, secret.Algorithm().String())
	if err != nil {
		return fmt.Errorf("upsert secret: %w", err)
	}

	return tx.Commit()
}

// Retrieve loads the envelope for key.
func (s *SQLiteStore) Retrieve(ctx context.Context, key string) (*models.EncryptedSecret, bool, error) {
	if err := checkKey(ctx, key); err != nil {
		return nil, false, err
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT envelope FROM secrets WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query secret: %w", err)
	}

	secret, err := models.ParseBinary(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decode secret %s: %w", key, err)
	}
	return secret, true, nil
}

// Delete removes key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}

	s.logger.WithField("key", key).Debug("Deleting secret from SQLite")

	if _, err := s.db.ExecContext(ctx, "DELETE FROM secrets WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

// List returns all keys in order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM secrets ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("query secrets: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
