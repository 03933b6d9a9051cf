package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/pgvector/pgvector-go"
)

// ListStudentsWithEncoding returns every student that has a stored face
// encoding. The vector column is rendered back to the comma-separated raw
// form so callers parse encodings the same way on every backend.
func (s *Store) ListStudentsWithEncoding(ctx context.Context) ([]database.Student, error) {
	query := `
		SELECT student_id, name, COALESCE(email, ''), face_encoding
		FROM students
		WHERE face_encoding IS NOT NULL
		ORDER BY student_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		var student database.Student
		var vec pgvector.Vector

		if err := rows.Scan(&student.ID, &student.Name, &student.Email, &vec); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}

		student.RawEncoding = database.FormatEncoding(vec.Slice())
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}

	return students, nil
}

// GetStudent retrieves a student by ID, returns nil if not found.
func (s *Store) GetStudent(ctx context.Context, studentID string) (*database.Student, error) {
	query := `
		SELECT student_id, name, COALESCE(email, ''), face_encoding
		FROM students
		WHERE student_id = $1
	`

	var student database.Student
	var vec sql.Null[pgvector.Vector]

	err := s.db.QueryRowContext(ctx, query, studentID).Scan(&student.ID, &student.Name, &student.Email, &vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student %s: %w", studentID, err)
	}

	if vec.Valid {
		student.RawEncoding = database.FormatEncoding(vec.V.Slice())
	}
	return &student, nil
}

// CountStudents returns the total number of registered students.
func (s *Store) CountStudents(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// UpsertStudent creates a student or updates the name and email of an
// existing one. The stored encoding is left untouched.
func (s *Store) UpsertStudent(ctx context.Context, student database.Student) error {
	query := `
		INSERT INTO students (student_id, name, email)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (student_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email
	`

	if _, err := s.db.ExecContext(ctx, query, student.ID, student.Name, student.Email); err != nil {
		return fmt.Errorf("upsert student %s: %w", student.ID, err)
	}
	return nil
}

// UpdateStudentEncoding replaces the stored face encoding of a student.
func (s *Store) UpdateStudentEncoding(ctx context.Context, studentID string, encoding []float32) error {
	if len(encoding) != database.EncodingDim {
		return fmt.Errorf("encoding has %d dimensions, expected %d", len(encoding), database.EncodingDim)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE students SET face_encoding = $2 WHERE student_id = $1",
		studentID, pgvector.NewVector(encoding))
	if err != nil {
		return fmt.Errorf("update encoding for %s: %w", studentID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update encoding for %s: %w", studentID, err)
	}
	if affected == 0 {
		return fmt.Errorf("student %s does not exist", studentID)
	}
	return nil
}
