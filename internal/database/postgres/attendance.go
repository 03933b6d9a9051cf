package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// LatestAttendance returns the most recent record for the (student, class)
// pair, nil when none exists yet.
func (s *Store) LatestAttendance(ctx context.Context, studentID string, classID int64) (*database.AttendanceRecord, error) {
	query := `
		SELECT id, student_id, class_id, status, marked_at
		FROM attendance
		WHERE student_id = $1 AND class_id = $2
		ORDER BY marked_at DESC, id DESC
		LIMIT 1
	`

	var rec database.AttendanceRecord
	err := s.db.QueryRowContext(ctx, query, studentID, classID).Scan(
		&rec.ID, &rec.StudentID, &rec.ClassID, &rec.Status, &rec.MarkedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest attendance: %w", err)
	}

	return &rec, nil
}

// InsertAttendance creates a new record.
func (s *Store) InsertAttendance(ctx context.Context, record database.AttendanceRecord) error {
	query := `INSERT INTO attendance (student_id, class_id, status, marked_at) VALUES ($1, $2, $3, $4)`

	if _, err := s.db.ExecContext(ctx, query,
		record.StudentID, record.ClassID, string(record.Status), record.MarkedAt,
	); err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// UpdateAttendance rewrites status and timestamp of an existing record.
func (s *Store) UpdateAttendance(ctx context.Context, id int64, status database.AttendanceStatus, at time.Time) error {
	query := `UPDATE attendance SET status = $2, marked_at = $3 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, string(status), at); err != nil {
		return fmt.Errorf("update attendance %d: %w", id, err)
	}
	return nil
}

// UpsertAttendance applies latest-wins semantics in a single transaction:
// the existing (student, class) record is updated in place, otherwise a new
// row is inserted. Locking the row keeps concurrent appliers from creating
// duplicate pairs.
func (s *Store) UpsertAttendance(
	ctx context.Context, studentID string, classID int64, status database.AttendanceStatus, at time.Time,
) (database.AttendanceOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM attendance
		WHERE student_id = $1 AND class_id = $2
		ORDER BY marked_at DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`, studentID, classID).Scan(&id)

	outcome := database.AttendanceUpdated
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attendance (student_id, class_id, status, marked_at) VALUES ($1, $2, $3, $4)`,
			studentID, classID, string(status), at,
		); err != nil {
			return 0, fmt.Errorf("insert attendance: %w", err)
		}
		outcome = database.AttendanceCreated
	case err != nil:
		return 0, fmt.Errorf("select attendance for update: %w", err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE attendance SET status = $2, marked_at = $3 WHERE id = $1`,
			id, string(status), at,
		); err != nil {
			return 0, fmt.Errorf("update attendance %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return outcome, nil
}

// AppendActivityLog appends one immutable audit line. Failures here never
// roll back the attendance write that triggered them.
func (s *Store) AppendActivityLog(ctx context.Context, message string) error {
	query := `INSERT INTO activity_logs (activity) VALUES ($1)`

	if _, err := s.db.ExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("append activity log: %w", err)
	}
	return nil
}
