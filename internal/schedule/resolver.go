// Package schedule resolves which class window is active at a given moment.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/log"
)

// Resolver answers "which class is running right now" against the timetable.
type Resolver struct {
	windows database.ScheduleReader
	logger  zerolog.Logger
}

// NewResolver creates a resolver reading from the given timetable source.
func NewResolver(windows database.ScheduleReader) *Resolver {
	return &Resolver{
		windows: windows,
		logger:  log.WithComponent("schedule"),
	}
}

// Active returns the window covering the instant, nil when no class is
// scheduled. The timetable is consulted fresh on every call so mid-run
// edits take effect at the next tick.
func (r *Resolver) Active(ctx context.Context, at time.Time) (*database.ClassWindow, error) {
	window, err := r.windows.ActiveClassWindow(ctx, at)
	if err != nil {
		return nil, fmt.Errorf("resolve active class: %w", err)
	}
	if window == nil {
		r.logger.Debug().Time("at", at).Msg("no active class window")
		return nil, nil
	}
	r.logger.Debug().
		Int64("class_id", window.ID).
		Str("class", window.Name).
		Msg("class window active")
	return window, nil
}

// Changed reports whether two resolutions point at different windows.
// Both nil means still idle, same ID means the same session.
func Changed(prev, next *database.ClassWindow) bool {
	if prev == nil && next == nil {
		return false
	}
	if prev == nil || next == nil {
		return true
	}
	return prev.ID != next.ID
}
