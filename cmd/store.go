package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mysql"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
)

// migratableStore is the store surface the CLI needs: the full repository
// plus schema management.
type migratableStore interface {
	database.Store

	Migrate(ctx context.Context) error
	MigrationsApplied(ctx context.Context) ([]string, error)
}

// openStore connects to the backend selected by DB_DRIVER. The caller
// owns the handle and must Close it.
func openStore(cfg *config.Config) (migratableStore, error) {
	switch cfg.Database.Driver {
	case "mysql", "":
		return mysql.New(cfg.Database.DSN(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	case "postgres":
		return postgres.New(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	default:
		return nil, fmt.Errorf("unknown database driver %q (supported: mysql, postgres)", cfg.Database.Driver)
	}
}
