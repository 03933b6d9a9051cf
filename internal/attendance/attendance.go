// Package attendance persists attendance decisions and their audit trail.
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/log"
	"github.com/kozaktomas/rollcall/internal/metrics"
)

// Intent is one attendance decision ready to be persisted: a student seen
// inside a class window. StudentName, ClassName and Terminal only feed the
// audit line, the record itself carries the IDs.
type Intent struct {
	StudentID   string
	StudentName string
	ClassID     int64
	ClassName   string
	Status      database.AttendanceStatus
	At          time.Time
	Terminal    string
}

// ActivityLine renders the audit message for this intent.
func (i Intent) ActivityLine() string {
	line := fmt.Sprintf("Student %s marked %s for class %s at %s",
		i.StudentID, i.Status, i.ClassName, i.At.Format("2006-01-02 15:04:05"))
	if i.Terminal != "" {
		line += fmt.Sprintf(" (terminal %s)", i.Terminal)
	}
	return line
}

// Store is the database surface the writer needs.
type Store interface {
	database.AttendanceWriter
	database.ActivityLogger
}

// Writer applies intents with latest-wins semantics. Applying the same
// intent twice leaves one logical record carrying the latest timestamp.
type Writer struct {
	store  Store
	logger zerolog.Logger
}

// NewWriter creates a writer on top of the given store.
func NewWriter(store Store) *Writer {
	return &Writer{
		store:  store,
		logger: log.WithComponent("attendance"),
	}
}

// Apply persists one intent. The upsert decides created versus updated;
// the activity append afterwards is best-effort and its failure never
// fails the apply.
func (w *Writer) Apply(ctx context.Context, intent Intent) (database.AttendanceOutcome, error) {
	started := time.Now()
	outcome, err := w.store.UpsertAttendance(ctx, intent.StudentID, intent.ClassID, intent.Status, intent.At)
	metrics.StoreWriteDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return outcome, fmt.Errorf("upsert attendance: %w", err)
	}
	metrics.AttendanceMarked.WithLabelValues(outcome.String()).Inc()

	w.logger.Info().
		Str("student_id", intent.StudentID).
		Int64("class_id", intent.ClassID).
		Str("status", string(intent.Status)).
		Str("outcome", outcome.String()).
		Msg("attendance marked")

	if err := w.store.AppendActivityLog(ctx, intent.ActivityLine()); err != nil {
		w.logger.Warn().Err(err).Msg("failed to append activity log")
	}
	return outcome, nil
}
