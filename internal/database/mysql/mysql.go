package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/rollcall/internal/database"
)

// Store is the MySQL-backed attendance store. It owns a connection pool and
// implements the full database.Store surface.
type Store struct {
	db *sql.DB
}

var _ database.Store = (*Store)(nil)

// New opens a MySQL connection pool and verifies it with a ping.
func New(dsn string, maxOpenConns, maxIdleConns int) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("MySQL DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 5
	}
	if maxIdleConns <= 0 {
		maxIdleConns = 2
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping verifies the connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping MySQL: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
