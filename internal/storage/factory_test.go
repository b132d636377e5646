package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fidde/appmarket_pipeline/pkg/models"
)

func TestNewStoreSQLite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "factory.db")

	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	apps := []*models.AppRecord{
		{
			AppID:     "a1",
			Title:     "Notely",
			Developer: "Acme",
			Score:     4.3,
			LoadedAt:  time.Now().UTC(),
		},
	}

	result, err := store.MergeApps(ctx, "apps.json", apps)
	if err != nil {
		t.Fatalf("MergeApps() error = %v", err)
	}
	if result.Inserted != 1 {
		t.Errorf("Inserted = %d, want 1", result.Inserted)
	}

	got, err := store.GetApp(ctx, "a1")
	if err != nil {
		t.Fatalf("GetApp() error = %v", err)
	}
	if got.Title != "Notely" {
		t.Errorf("Title = %q, want %q", got.Title, "Notely")
	}
}

func TestNewStoreUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "postgres"

	if _, err := NewStore(cfg); err == nil {
		t.Fatal("NewStore() with unknown backend should fail")
	}
}
