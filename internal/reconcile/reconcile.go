// Package reconcile turns raw per-frame detections into attendance intents,
// suppressing repeats of the same student within a cooldown.
package reconcile

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/log"
	"github.com/kozaktomas/rollcall/internal/metrics"
	"github.com/kozaktomas/rollcall/internal/recognize"
)

// DefaultCooldown is how long a student stays debounced after being marked.
const DefaultCooldown = 3 * time.Second

// Reconciler tracks recently marked students in an expiring set. Entries
// expire lazily on the next Observe call; nothing runs in the background.
// All mutation happens on the orchestrator goroutine, the mutex only
// covers concurrent size reads from the status server.
type Reconciler struct {
	cooldown time.Duration
	logger   zerolog.Logger

	mu         sync.Mutex
	entries    map[string]time.Time // student ID -> debounce expiry
	prevWindow int64                // 0 before the first windowed call
}

// New creates a reconciler with the given cooldown, or DefaultCooldown
// when zero.
func New(cooldown time.Duration) *Reconciler {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Reconciler{
		cooldown: cooldown,
		logger:   log.WithComponent("reconcile"),
		entries:  make(map[string]time.Time),
	}
}

// Observe reduces one frame's detections to the intents that should be
// written. A nil window is a strict no-op. Switching to a different class
// window clears the whole debounce set, so the first frame of the next
// class marks everyone again. Unmatched detections never produce intents.
func (r *Reconciler) Observe(now time.Time, window *database.ClassWindow, detections []recognize.Detection) []attendance.Intent {
	if window == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.prevWindow != 0 && r.prevWindow != window.ID {
		r.logger.Debug().
			Int64("previous_class_id", r.prevWindow).
			Int64("class_id", window.ID).
			Msg("class window changed, clearing debounce set")
		r.entries = make(map[string]time.Time)
	}
	r.prevWindow = window.ID

	// Lazy expiry, inclusive: an entry expiring exactly now is gone.
	for id, expiry := range r.entries {
		if !now.Before(expiry) {
			delete(r.entries, id)
		}
	}

	var intents []attendance.Intent
	for _, d := range detections {
		if !d.Matched() {
			continue
		}
		if _, debounced := r.entries[d.StudentID]; debounced {
			metrics.DebounceSuppressed.Inc()
			continue
		}
		r.entries[d.StudentID] = now.Add(r.cooldown)
		intents = append(intents, attendance.Intent{
			StudentID:   d.StudentID,
			StudentName: d.Name,
			ClassID:     window.ID,
			ClassName:   window.Name,
			Status:      database.StatusPresent,
			At:          now,
		})
	}
	return intents
}

// Reset drops all debounce state, used when the orchestrator leaves a
// class window.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]time.Time)
	r.prevWindow = 0
}

// DebounceSize returns the number of live debounce entries. Expired but
// not yet collected entries still count; collection happens in Observe.
func (r *Reconciler) DebounceSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
