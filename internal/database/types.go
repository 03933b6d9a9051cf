package database

import (
	"fmt"
	"time"
)

// AttendanceStatus is the terminal state of one attendance record.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
)

// Student is a registered identity with an optional face encoding.
type Student struct {
	ID          string // stable external identifier, e.g. "S001"
	Name        string
	Email       string
	RawEncoding string // encoding blob exactly as stored, empty when unset
}

// ClassWindow is one scheduled class interval on a concrete date.
// Start and End are inclusive on both ends.
type ClassWindow struct {
	ID    int64
	Name  string
	Date  time.Time // calendar date, time part zeroed
	Start TimeOfDay
	End   TimeOfDay
}

// Contains reports whether the given time of day falls inside the window,
// inclusive at both boundary instants.
func (w *ClassWindow) Contains(tod TimeOfDay) bool {
	return w.Start <= tod && tod <= w.End
}

func (w *ClassWindow) String() string {
	return fmt.Sprintf("%s (%d) %s-%s", w.Name, w.ID, w.Start, w.End)
}

// AttendanceRecord is the persisted attendance state for one (student, class)
// pair. At most one logical record exists per pair; repeated detections update
// the existing row rather than inserting duplicates.
type AttendanceRecord struct {
	ID        int64
	StudentID string
	ClassID   int64
	Status    AttendanceStatus
	MarkedAt  time.Time
}

// AttendanceOutcome says what an upsert did.
type AttendanceOutcome int

const (
	AttendanceCreated AttendanceOutcome = iota
	AttendanceUpdated
)

func (o AttendanceOutcome) String() string {
	if o == AttendanceCreated {
		return "created"
	}
	return "updated"
}
