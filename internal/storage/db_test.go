package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// TestNew_FileSystemDatabase tests database creation with file system persistence
func TestNew_FileSystemDatabase(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "nested", "campus.db")

	ctx := context.Background()
	db, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file not created: %s", dbPath)
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}
	if err := db.Ready(ctx); err != nil {
		t.Errorf("Ready() error = %v", err)
	}
}

func TestNew_Reopen(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "campus.db")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		db, err := New(ctx, dbPath)
		if err != nil {
			t.Fatalf("open %d: %v", i+1, err)
		}
		_ = db.Close()
	}
}
