// Package storage selects the repository implementation named by the
// configuration.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"vibecheck/internal/domain"
	"vibecheck/internal/shared"
	mysqlrepo "vibecheck/internal/storage/mysql"
	"vibecheck/internal/storage/sqlite"
)

// Open connects to the configured store, creating its schema when missing.
// The returned func closes the underlying pool.
func Open(ctx context.Context, cfg shared.Config) (domain.Repository, func() error, error) {
	switch cfg.StoreDriver {
	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("sql.Open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("db.Ping: %w", err)
		}
		if err := mysqlrepo.ApplySchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Str("driver", "mysql").Msg("database connection ok")
		return mysqlrepo.New(db), db.Close, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("driver", "sqlite").Str("path", cfg.SQLitePath).Msg("database ready")
		return sqlite.New(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
