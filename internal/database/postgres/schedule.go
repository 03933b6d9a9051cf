package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// ActiveClassWindow returns the class scheduled at the given moment, or nil
// when no class is running. Overlapping windows resolve to the latest start.
func (s *Store) ActiveClassWindow(ctx context.Context, at time.Time) (*database.ClassWindow, error) {
	query := `
		SELECT id, name, date, start_time, end_time
		FROM classes
		WHERE date = $1 AND start_time <= $2 AND end_time >= $2
		ORDER BY start_time DESC
		LIMIT 1
	`

	tod := database.TimeOfDayFromTime(at)
	row := s.db.QueryRowContext(ctx, query, at.Format("2006-01-02"), tod.String())

	window, err := scanClassWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active class: %w", err)
	}
	return window, nil
}

// GetClassWindow retrieves a class by ID, returns nil if not found.
func (s *Store) GetClassWindow(ctx context.Context, id int64) (*database.ClassWindow, error) {
	query := `
		SELECT id, name, date, start_time, end_time
		FROM classes
		WHERE id = $1
	`

	window, err := scanClassWindow(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query class %d: %w", id, err)
	}
	return window, nil
}

// scanClassWindow reads a class row. The time columns arrive as driver
// specific values, so they pass through ParseTimeOfDay.
func scanClassWindow(row interface{ Scan(dest ...any) error }) (*database.ClassWindow, error) {
	var window database.ClassWindow
	var start, end any

	if err := row.Scan(&window.ID, &window.Name, &window.Date, &start, &end); err != nil {
		return nil, err
	}

	var err error
	if window.Start, err = database.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	if window.End, err = database.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}
	return &window, nil
}
