package board

import (
	"flag"
	"path/filepath"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.StorageDriver != DriverMemory {
		t.Fatalf("expected memory driver by default, got %q", cfg.StorageDriver)
	}
	if cfg.CatalogPath != "" {
		t.Fatalf("expected embedded catalog by default, got %q", cfg.CatalogPath)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("SETBOARD_HTTP_ADDR", "env-addr")
	t.Setenv("SETBOARD_STORAGE_DRIVER", "sqlite")

	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-addr",
		"-storage-driver", "bolt",
		"-bolt-path", "custom.bolt",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-addr" {
		t.Fatalf("expected flag to beat env, got %q", cfg.HTTPAddr)
	}
	if cfg.StorageDriver != DriverBolt {
		t.Fatalf("expected flag driver, got %q", cfg.StorageDriver)
	}
	if cfg.BoltPath != "custom.bolt" {
		t.Fatalf("expected flag bolt path, got %q", cfg.BoltPath)
	}
}

func TestOpenStoreByDriver(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "memory", cfg: Config{StorageDriver: DriverMemory}},
		{name: "sqlite", cfg: Config{StorageDriver: DriverSQLite, SQLitePath: filepath.Join(dir, "board.db")}},
		{name: "bolt", cfg: Config{StorageDriver: DriverBolt, BoltPath: filepath.Join(dir, "board.bolt")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := OpenStore(tc.cfg)
			if err != nil {
				t.Fatalf("open store: %v", err)
			}
			if err := store.Close(); err != nil {
				t.Fatalf("close store: %v", err)
			}
		})
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenStore(Config{StorageDriver: "etcd"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoadCatalogFallsBackToEmbedded(t *testing.T) {
	cat, err := LoadCatalog(Config{})
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(cat.Slots()) == 0 {
		t.Fatal("expected embedded catalog to define slots")
	}
}

func TestLoadCatalogRejectsMissingFile(t *testing.T) {
	if _, err := LoadCatalog(Config{CatalogPath: filepath.Join(t.TempDir(), "absent.json")}); err == nil {
		t.Fatal("expected error for missing catalog file")
	}
}
