package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// ActiveClassWindow returns the class window covering the given instant.
// Date must match and the clock time must fall inside [start, end],
// inclusive at both ends. When windows overlap the latest start wins.
func (s *Store) ActiveClassWindow(ctx context.Context, at time.Time) (*database.ClassWindow, error) {
	tod := database.TimeOfDayFromTime(at)
	query := `
		SELECT id, name, date, start_time, end_time
		FROM classes
		WHERE date = ? AND start_time <= ? AND end_time >= ?
		ORDER BY start_time DESC
		LIMIT 1
	`

	row := s.db.QueryRowContext(ctx, query, at.Format("2006-01-02"), tod.String(), tod.String())
	window, err := scanClassWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active class: %w", err)
	}

	return window, nil
}

// GetClassWindow retrieves a window by ID, nil when not found.
func (s *Store) GetClassWindow(ctx context.Context, id int64) (*database.ClassWindow, error) {
	query := `SELECT id, name, date, start_time, end_time FROM classes WHERE id = ?`

	window, err := scanClassWindow(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query class %d: %w", id, err)
	}

	return window, nil
}

// scanClassWindow reads one classes row. TIME columns arrive as raw bytes
// from the driver and normalize through ParseTimeOfDay.
func scanClassWindow(row interface{ Scan(...any) error }) (*database.ClassWindow, error) {
	var w database.ClassWindow
	var start, end any
	if err := row.Scan(&w.ID, &w.Name, &w.Date, &start, &end); err != nil {
		return nil, err
	}

	var err error
	if w.Start, err = database.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("class %d start time: %w", w.ID, err)
	}
	if w.End, err = database.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("class %d end time: %w", w.ID, err)
	}

	return &w, nil
}
