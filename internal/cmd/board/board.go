// Package board parses board command flags and composes the service
// entrypoint.
package board

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/opensetlist/setboard/internal/platform/cmd"
	server "github.com/opensetlist/setboard/internal/services/board/app"
	"github.com/opensetlist/setboard/internal/services/board/catalog"
	"github.com/opensetlist/setboard/internal/services/board/storage"
	"github.com/opensetlist/setboard/internal/services/board/storage/bolt"
	"github.com/opensetlist/setboard/internal/services/board/storage/memory"
	"github.com/opensetlist/setboard/internal/services/board/storage/sqlite"
)

// Storage driver names accepted by -storage-driver.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Config holds board command configuration.
type Config struct {
	HTTPAddr      string `env:"SETBOARD_HTTP_ADDR"      envDefault:":8080"`
	StorageDriver string `env:"SETBOARD_STORAGE_DRIVER" envDefault:"memory"`
	SQLitePath    string `env:"SETBOARD_SQLITE_PATH"    envDefault:"setboard.db"`
	BoltPath      string `env:"SETBOARD_BOLT_PATH"      envDefault:"setboard.bolt"`
	CatalogPath   string `env:"SETBOARD_CATALOG_PATH"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "board HTTP listen address")
	fs.StringVar(&cfg.StorageDriver, "storage-driver", cfg.StorageDriver, "storage backend: memory, sqlite, or bolt")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "sqlite database file path")
	fs.StringVar(&cfg.BoltPath, "bolt-path", cfg.BoltPath, "bolt database file path")
	fs.StringVar(&cfg.CatalogPath, "catalog-path", cfg.CatalogPath, "catalog JSON file; empty uses the embedded default")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// OpenStore builds the storage backend named by the config.
func OpenStore(cfg Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case DriverMemory:
		return memory.New(), nil
	case DriverSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case DriverBolt:
		return bolt.Open(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// LoadCatalog loads the configured catalog, or the embedded default when no
// path is set.
func LoadCatalog(cfg Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.Default()
	}
	return catalog.Load(cfg.CatalogPath)
}

// Run builds the board service and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBoard, func(context.Context) error {
		store, err := OpenStore(cfg)
		if err != nil {
			return fmt.Errorf("open storage backend: %w", err)
		}

		cat, err := LoadCatalog(cfg)
		if err != nil {
			_ = store.Close()
			return fmt.Errorf("load catalog: %w", err)
		}

		if err := server.Run(ctx, server.Config{HTTPAddr: cfg.HTTPAddr}, store, cat); err != nil {
			return fmt.Errorf("serve board: %w", err)
		}
		return nil
	})
}
