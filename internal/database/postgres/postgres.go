package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
	_ "github.com/lib/pq"
)

// Store is a PostgreSQL-backed attendance store. Face encodings live in a
// pgvector column, so the database enforces the 128 dimensions that the
// MySQL backend can only check at load time.
type Store struct {
	db *sql.DB
}

var _ database.Store = (*Store)(nil)

// New opens a PostgreSQL connection pool and verifies it with a ping.
func New(url string, maxOpenConns, maxIdleConns int) (*Store, error) {
	if url == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
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
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
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
