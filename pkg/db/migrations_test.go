package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMigrationFiles_SortedSQLOnly(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"0002_add_index.sql": "CREATE INDEX idx_grants_chain ON permission_grants(chain_id);",
		"0001_create.sql":    "CREATE TABLE permission_grants (id SERIAL PRIMARY KEY);",
		"README.md":          "# Migrations",
		"notes.txt":          "some notes",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("db:migrations_test - failed to write %s: %v", name, err)
		}
	}

	result, err := LoadMigrationFiles(dir)
	if err != nil {
		t.Fatalf("db:migrations_test - unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("db:migrations_test - expected 2 SQL files, got %d", len(result))
	}
	if result[0] != files["0001_create.sql"] {
		t.Errorf("db:migrations_test - expected create migration first, got %q", result[0])
	}
	if result[1] != files["0002_add_index.sql"] {
		t.Errorf("db:migrations_test - expected index migration second, got %q", result[1])
	}
}

func TestLoadMigrationFiles_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()

	// A directory with a tricky .sql suffix must be skipped.
	if err := os.Mkdir(filepath.Join(dir, "subdir.sql"), 0755); err != nil {
		t.Fatalf("db:migrations_test - failed to create subdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "0001_create.sql"), []byte("CREATE TABLE x;"), 0644); err != nil {
		t.Fatalf("db:migrations_test - failed to write file: %v", err)
	}

	result, err := LoadMigrationFiles(dir)
	if err != nil {
		t.Fatalf("db:migrations_test - unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("db:migrations_test - expected 1 migration (skipping dir), got %d", len(result))
	}
}

func TestLoadMigrationFiles_NonExistentDir(t *testing.T) {
	_, err := LoadMigrationFiles(filepath.Join(t.TempDir(), "nonexistent"))
	if err == nil {
		t.Error("db:migrations_test - expected error for non-existent directory")
	}
}
