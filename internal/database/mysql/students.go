package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/database"
)

// ListStudentsWithEncoding returns every student that has a stored encoding
// blob. Blobs come back raw; the gallery loader validates them per row.
func (s *Store) ListStudentsWithEncoding(ctx context.Context) ([]database.Student, error) {
	query := `
		SELECT student_id, name, email, face_encoding
		FROM students
		WHERE face_encoding IS NOT NULL AND face_encoding != ''
		ORDER BY student_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		var st database.Student
		var email sql.NullString
		if err := rows.Scan(&st.ID, &st.Name, &email, &st.RawEncoding); err != nil {
			return nil, fmt.Errorf("scan student row: %w", err)
		}
		st.Email = email.String
		students = append(students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate student rows: %w", err)
	}

	return students, nil
}

// GetStudent retrieves a single student by ID, nil when not found.
func (s *Store) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	query := `
		SELECT student_id, name, email, COALESCE(face_encoding, '')
		FROM students
		WHERE student_id = ?
	`

	var st database.Student
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(&st.ID, &st.Name, &email, &st.RawEncoding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student %s: %w", id, err)
	}
	st.Email = email.String

	return &st, nil
}

// CountStudents returns the total number of registered students.
func (s *Store) CountStudents(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// UpsertStudent inserts the student or refreshes name/email on conflict.
func (s *Store) UpsertStudent(ctx context.Context, student database.Student) error {
	query := `
		INSERT INTO students (student_id, name, email)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), email = VALUES(email)
	`

	if _, err := s.db.ExecContext(ctx, query, student.ID, student.Name, student.Email); err != nil {
		return fmt.Errorf("upsert student %s: %w", student.ID, err)
	}
	return nil
}

// UpdateStudentEncoding replaces the stored encoding for a student.
func (s *Store) UpdateStudentEncoding(ctx context.Context, id string, encoding []float32) error {
	// Verify the student exists first (MySQL RowsAffected returns 0 when data is unchanged)
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM students WHERE student_id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("student %s not found", id)
	}

	blob := database.FormatEncoding(encoding)
	if _, err := s.db.ExecContext(ctx, `UPDATE students SET face_encoding = ? WHERE student_id = ?`, blob, id); err != nil {
		return fmt.Errorf("update encoding for %s: %w", id, err)
	}
	return nil
}
