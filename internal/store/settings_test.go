package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestSettingsRepository_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Settings().Get("no-such-key")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSettingsRepository_SetAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	if err := repo.Set("osc_host", "10.0.0.5"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := repo.Get("osc_host")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "10.0.0.5" {
		t.Errorf("Get() = %q, want %q", got, "10.0.0.5")
	}

	// Setting again replaces the value.
	if err := repo.Set("osc_host", "10.0.0.6"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err = repo.Get("osc_host")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "10.0.0.6" {
		t.Errorf("Get() after overwrite = %q, want %q", got, "10.0.0.6")
	}
}

func TestStore_StampsSchemaVersion(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Settings().Get(SettingSchemaVersion)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", SettingSchemaVersion, err)
	}
	if got != schemaVersion {
		t.Errorf("schema version = %q, want %q", got, schemaVersion)
	}
}

func TestStore_RejectsNewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Settings().Set(SettingSchemaVersion, "999"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := New(dbPath); err == nil {
		t.Error("New() should refuse a database with an unsupported schema version")
	}
}

func TestStore_ReopensStampedDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("New() on an existing database error = %v", err)
	}
	s.Close()
}
