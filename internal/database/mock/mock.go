// Package mock provides an in-memory database.Store for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// Store is a mock implementation of database.Store backed by in-memory maps.
// Every method honors the latest-wins semantics of the SQL backends so unit
// tests observe the same behavior as an integration run.
type Store struct {
	mu       sync.RWMutex
	students map[string]database.Student
	windows  map[int64]database.ClassWindow
	records  []database.AttendanceRecord
	activity []string
	nextID   int64

	// Error injection
	ListStudentsError     error
	GetStudentError       error
	CountStudentsError    error
	UpsertStudentError    error
	UpdateEncodingError   error
	ActiveWindowError     error
	GetWindowError        error
	LatestAttendanceError error
	InsertError           error
	UpdateError           error
	UpsertError           error
	ActivityError         error
	PingError             error
}

// NewStore creates an empty mock store
func NewStore() *Store {
	return &Store{
		students: make(map[string]database.Student),
		windows:  make(map[int64]database.ClassWindow),
	}
}

// AddStudent seeds a student, encoding included
func (m *Store) AddStudent(student database.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[student.ID] = student
}

// AddClassWindow seeds a class window and returns its ID
func (m *Store) AddClassWindow(window database.ClassWindow) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if window.ID == 0 {
		m.nextID++
		window.ID = m.nextID
	}
	m.windows[window.ID] = window
	return window.ID
}

// ActivityMessages returns a copy of all appended audit lines
func (m *Store) ActivityMessages() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.activity))
	copy(out, m.activity)
	return out
}

// AttendanceRecords returns a copy of all attendance rows
func (m *Store) AttendanceRecords() []database.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.AttendanceRecord, len(m.records))
	copy(out, m.records)
	return out
}

func (m *Store) ListStudentsWithEncoding(ctx context.Context) ([]database.Student, error) {
	if m.ListStudentsError != nil {
		return nil, m.ListStudentsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var students []database.Student
	for _, s := range m.students {
		if s.RawEncoding != "" {
			students = append(students, s)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func (m *Store) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	if m.GetStudentError != nil {
		return nil, m.GetStudentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Store) CountStudents(ctx context.Context) (int, error) {
	if m.CountStudentsError != nil {
		return 0, m.CountStudentsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students), nil
}

func (m *Store) UpsertStudent(ctx context.Context, student database.Student) error {
	if m.UpsertStudentError != nil {
		return m.UpsertStudentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.students[student.ID]
	if ok {
		existing.Name = student.Name
		existing.Email = student.Email
		m.students[student.ID] = existing
		return nil
	}
	m.students[student.ID] = student
	return nil
}

func (m *Store) UpdateStudentEncoding(ctx context.Context, id string, encoding []float32) error {
	if m.UpdateEncodingError != nil {
		return m.UpdateEncodingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return fmt.Errorf("student %s does not exist", id)
	}
	s.RawEncoding = database.FormatEncoding(encoding)
	m.students[id] = s
	return nil
}

// ActiveClassWindow mirrors the SQL resolution: matching date, inclusive
// bounds, latest start wins on overlap.
func (m *Store) ActiveClassWindow(ctx context.Context, at time.Time) (*database.ClassWindow, error) {
	if m.ActiveWindowError != nil {
		return nil, m.ActiveWindowError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	date := at.Format("2006-01-02")
	tod := database.TimeOfDayFromTime(at)

	var best *database.ClassWindow
	for id := range m.windows {
		w := m.windows[id]
		if w.Date.Format("2006-01-02") != date || !w.Contains(tod) {
			continue
		}
		if best == nil || w.Start > best.Start {
			best = &w
		}
	}
	return best, nil
}

func (m *Store) GetClassWindow(ctx context.Context, id int64) (*database.ClassWindow, error) {
	if m.GetWindowError != nil {
		return nil, m.GetWindowError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *Store) LatestAttendance(ctx context.Context, studentID string, classID int64) (*database.AttendanceRecord, error) {
	if m.LatestAttendanceError != nil {
		return nil, m.LatestAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestLocked(studentID, classID), nil
}

func (m *Store) latestLocked(studentID string, classID int64) *database.AttendanceRecord {
	var best *database.AttendanceRecord
	for i := range m.records {
		r := m.records[i]
		if r.StudentID != studentID || r.ClassID != classID {
			continue
		}
		if best == nil || r.MarkedAt.After(best.MarkedAt) ||
			(r.MarkedAt.Equal(best.MarkedAt) && r.ID > best.ID) {
			best = &r
		}
	}
	return best
}

func (m *Store) InsertAttendance(ctx context.Context, record database.AttendanceRecord) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(record)
	return nil
}

func (m *Store) insertLocked(record database.AttendanceRecord) {
	m.nextID++
	record.ID = m.nextID
	m.records = append(m.records, record)
}

func (m *Store) UpdateAttendance(ctx context.Context, id int64, status database.AttendanceStatus, at time.Time) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Status = status
			m.records[i].MarkedAt = at
			return nil
		}
	}
	return fmt.Errorf("attendance record %d does not exist", id)
}

func (m *Store) UpsertAttendance(
	ctx context.Context, studentID string, classID int64, status database.AttendanceStatus, at time.Time,
) (database.AttendanceOutcome, error) {
	if m.UpsertError != nil {
		return 0, m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.latestLocked(studentID, classID); existing != nil {
		for i := range m.records {
			if m.records[i].ID == existing.ID {
				m.records[i].Status = status
				m.records[i].MarkedAt = at
				break
			}
		}
		return database.AttendanceUpdated, nil
	}

	m.insertLocked(database.AttendanceRecord{
		StudentID: studentID,
		ClassID:   classID,
		Status:    status,
		MarkedAt:  at,
	})
	return database.AttendanceCreated, nil
}

func (m *Store) AppendActivityLog(ctx context.Context, message string) error {
	if m.ActivityError != nil {
		return m.ActivityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, message)
	return nil
}

func (m *Store) Ping(ctx context.Context) error {
	return m.PingError
}

func (m *Store) Close() error {
	return nil
}

// Verify interface compliance
var _ database.Store = (*Store)(nil)
