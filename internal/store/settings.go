package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// SettingSchemaVersion is the settings key holding the database schema
// version stamp.
const SettingSchemaVersion = "schema_version"

// schemaVersion is the version this build reads and writes.
const schemaVersion = "1"

// SettingsRepository provides key-value access to application settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get retrieves a setting value by key. Returns ErrNotFound when the key has
// never been set.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores a setting value, replacing any previous value for the key.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// ensureSchemaVersion stamps a fresh database with the current schema
// version and refuses to open a database written by an incompatible build.
func (s *Store) ensureSchemaVersion() error {
	settings := s.Settings()

	current, err := settings.Get(SettingSchemaVersion)
	if errors.Is(err, ErrNotFound) {
		return settings.Set(SettingSchemaVersion, schemaVersion)
	}
	if err != nil {
		return err
	}

	if current != schemaVersion {
		return fmt.Errorf("unsupported database schema version %s (want %s)", current, schemaVersion)
	}
	return nil
}
