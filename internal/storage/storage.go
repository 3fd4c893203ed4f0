package storage

import (
	"context"
	"fmt"

	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
)

// Storage persists relay snapshots. Save replaces the previous snapshot
// atomically; Load returns an empty snapshot when nothing was saved yet.
type Storage interface {
	Load(ctx context.Context) (models.Snapshot, error)
	Save(ctx context.Context, snapshot models.Snapshot) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
)

// Options selects and configures a storage backend.
type Options struct {
	Driver   string
	Path     string         // file driver, and sqlite database path
	DSN      string         // mysql
	Postgres DatabaseConfig // postgres
}

// Open returns the backend named by opts.Driver.
func Open(opts Options, logger *zap.Logger) (Storage, error) {
	switch opts.Driver {
	case DriverFile, "":
		return NewFileStorage(opts.Path, logger)
	case DriverMemory:
		return NewMemoryStorage(), nil
	case DriverPostgres:
		return NewPostgresStorage(opts.Postgres, logger)
	case DriverSQLite:
		return NewGormStorage(DriverSQLite, opts.Path, logger)
	case DriverMySQL:
		return NewGormStorage(DriverMySQL, opts.DSN, logger)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}
