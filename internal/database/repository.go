package database

import (
	"context"
	"time"
)

// StudentReader provides read-only access to registered students
type StudentReader interface {
	// ListStudentsWithEncoding returns every student that has a stored
	// encoding blob. Blobs are returned raw; validation happens at gallery
	// load so one malformed row never aborts the batch.
	ListStudentsWithEncoding(ctx context.Context) ([]Student, error)
	// GetStudent retrieves a single student by ID, nil if not found
	GetStudent(ctx context.Context, id string) (*Student, error)
	// CountStudents returns the total number of registered students
	CountStudents(ctx context.Context) (int, error)
}

// StudentWriter provides write access to student registration data
type StudentWriter interface {
	StudentReader

	// UpsertStudent inserts the student or updates name/email on ID conflict
	UpsertStudent(ctx context.Context, student Student) error
	// UpdateStudentEncoding replaces the stored encoding for a student
	UpdateStudentEncoding(ctx context.Context, id string, encoding []float32) error
}

// ScheduleReader resolves class windows against the timetable
type ScheduleReader interface {
	// ActiveClassWindow returns the window covering the given instant:
	// matching date, start <= clock <= end, inclusive on both ends.
	// Overlapping windows resolve to the one with the latest start.
	// Returns nil (no error) when no window is active.
	ActiveClassWindow(ctx context.Context, at time.Time) (*ClassWindow, error)
	// GetClassWindow retrieves a window by ID, nil if not found
	GetClassWindow(ctx context.Context, id int64) (*ClassWindow, error)
}

// AttendanceReader provides read access to attendance records
type AttendanceReader interface {
	// LatestAttendance returns the most recent record for the pair,
	// nil when the student has no record for the class yet.
	LatestAttendance(ctx context.Context, studentID string, classID int64) (*AttendanceRecord, error)
}

// AttendanceWriter provides write access to attendance records
type AttendanceWriter interface {
	AttendanceReader

	// InsertAttendance creates a new record
	InsertAttendance(ctx context.Context, record AttendanceRecord) error
	// UpdateAttendance rewrites status and timestamp of an existing record
	UpdateAttendance(ctx context.Context, id int64, status AttendanceStatus, at time.Time) error
	// UpsertAttendance applies latest-wins semantics in one atomic step:
	// update the existing (student, class) record when present, insert
	// otherwise. A crash can never leave a half-applied pair.
	UpsertAttendance(ctx context.Context, studentID string, classID int64, status AttendanceStatus, at time.Time) (AttendanceOutcome, error)
}

// ActivityLogger appends immutable audit lines
type ActivityLogger interface {
	AppendActivityLog(ctx context.Context, message string) error
}

// Store is the full persistent surface the orchestrator consumes.
// One live handle per process; callers reconnect rather than reuse a
// broken handle.
type Store interface {
	StudentWriter
	ScheduleReader
	AttendanceWriter
	ActivityLogger

	Ping(ctx context.Context) error
	Close() error
}
