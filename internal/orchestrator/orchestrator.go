// Package orchestrator drives the attendance loop: it opens and closes the
// camera based on the class schedule and pushes frames through recognition,
// reconciliation and the attendance writer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/camera"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/log"
	"github.com/kozaktomas/rollcall/internal/metrics"
	"github.com/kozaktomas/rollcall/internal/recognize"
	"github.com/kozaktomas/rollcall/internal/reconcile"
	"github.com/kozaktomas/rollcall/internal/schedule"
)

// State of the attendance loop.
type State int

const (
	// Idle means no class is running and the camera is closed
	Idle State = iota
	// Active means a class is running and frames are being processed
	Active
	// Recovering means a class is running but the camera is down
	Recovering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Recovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// FrameSource is the camera lifecycle surface the loop drives.
type FrameSource interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (*camera.Frame, error)
	NextRetryDelay() time.Duration
	Close() error
	State() camera.State
}

// WindowResolver answers which class window covers an instant.
type WindowResolver interface {
	Active(ctx context.Context, at time.Time) (*database.ClassWindow, error)
}

// GallerySource yields the current gallery snapshot.
type GallerySource interface {
	Current() *gallery.Gallery
}

// FaceRecognizer turns a frame plus gallery into detections.
type FaceRecognizer interface {
	Detect(ctx context.Context, img image.Image, g *gallery.Gallery) ([]recognize.Detection, error)
}

// IntentApplier persists attendance intents.
type IntentApplier interface {
	Apply(ctx context.Context, intent attendance.Intent) (database.AttendanceOutcome, error)
}

// Config carries the loop cadences.
type Config struct {
	// IdlePollInterval is how often the schedule is checked while idle
	IdlePollInterval time.Duration
	// FrameInterval is the pause between frames while active
	FrameInterval time.Duration
	// OpTimeout bounds one store or engine operation
	OpTimeout time.Duration
}

// Deps wires the loop to its collaborators.
type Deps struct {
	Source     FrameSource
	Resolver   WindowResolver
	Gallery    GallerySource
	Recognizer FaceRecognizer
	Reconciler *reconcile.Reconciler
	Writer     IntentApplier
	Activity   database.ActivityLogger
}

// Orchestrator is the top-level state machine. A single goroutine owns all
// transitions; the mutex only covers snapshot reads from the status server.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	window    *database.ClassWindow
	sessionID string
}

// New creates the loop in the Idle state.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.IdlePollInterval <= 0 {
		cfg.IdlePollInterval = 10 * time.Second
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 500 * time.Millisecond
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithComponent("orchestrator"),
		now:    time.Now,
	}
	o.setState(Idle)
	return o
}

// Run drives the loop until the context is canceled. Cancellation is a
// clean stop, not an error; the camera is released before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info().Msg("attendance loop started")
	defer func() {
		_ = o.deps.Source.Close()
		o.logger.Info().Msg("attendance loop stopped")
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		timer.Reset(o.tick(ctx))
	}
}

// tick runs one loop step and returns how long to wait before the next.
// Every error is absorbed here; the loop never terminates on a bad tick.
func (o *Orchestrator) tick(ctx context.Context) time.Duration {
	now := o.now()
	window, err := o.resolveWindow(ctx, now)
	if err != nil {
		metrics.TickErrors.Inc()
		o.logger.Error().Err(err).Msg("failed to resolve active class")
		return o.cadence()
	}

	if window == nil {
		return o.handleNoWindow(ctx)
	}
	return o.handleWindow(ctx, window, now)
}

func (o *Orchestrator) resolveWindow(ctx context.Context, now time.Time) (*database.ClassWindow, error) {
	opCtx, cancel := context.WithTimeout(ctx, o.cfg.OpTimeout)
	defer cancel()
	return o.deps.Resolver.Active(opCtx, now)
}

// handleNoWindow moves the loop to Idle, releasing the camera and the
// class context. The audit line is only written when a session actually
// ends, not when a recovering camera gives up.
func (o *Orchestrator) handleNoWindow(ctx context.Context) time.Duration {
	if state := o.State(); state != Idle {
		wasActive := state == Active
		_ = o.deps.Source.Close()
		o.deps.Reconciler.Reset()

		o.mu.Lock()
		o.window = nil
		o.sessionID = ""
		o.mu.Unlock()
		o.setState(Idle)
		metrics.SessionActive.Set(0)

		o.logger.Info().Msg("no active class, camera closed")
		if wasActive {
			o.appendActivity(ctx, "Camera shut down - no active class")
		}
	}
	return o.cfg.IdlePollInterval
}

func (o *Orchestrator) handleWindow(ctx context.Context, window *database.ClassWindow, now time.Time) time.Duration {
	o.enterWindow(ctx, window)

	if o.State() != Active {
		return o.openCamera(ctx)
	}
	return o.processFrame(ctx, window, now)
}

// enterWindow installs the class context. A different window ID starts a
// new session, whether the loop was idle or the classes run back to back.
func (o *Orchestrator) enterWindow(ctx context.Context, window *database.ClassWindow) {
	o.mu.Lock()
	prev := o.window
	o.window = window
	changed := schedule.Changed(prev, window)
	if changed {
		o.sessionID = uuid.NewString()
	}
	sessionID := o.sessionID
	o.mu.Unlock()

	if !changed {
		return
	}
	metrics.SessionActive.Set(1)
	o.logger.Info().
		Int64("class_id", window.ID).
		Str("class", window.Name).
		Str("session_id", sessionID).
		Msg("class started")
	o.appendActivity(ctx, fmt.Sprintf("Class started: %s", window.Name))
}

// openCamera attempts to bring the camera up. Failure moves the loop to
// Recovering and schedules the next attempt on the backoff curve.
func (o *Orchestrator) openCamera(ctx context.Context) time.Duration {
	if err := o.deps.Source.Open(ctx); err != nil {
		o.setState(Recovering)
		delay := o.deps.Source.NextRetryDelay()
		o.logger.Warn().Err(err).Dur("retry_in", delay).Msg("camera unavailable, will retry")
		return delay
	}
	o.setState(Active)
	return o.cfg.FrameInterval
}

// processFrame runs one frame through recognition, reconciliation and the
// writer. Recognition and write failures are absorbed; only a frame read
// failure changes state.
func (o *Orchestrator) processFrame(ctx context.Context, window *database.ClassWindow, now time.Time) time.Duration {
	opCtx, cancel := context.WithTimeout(ctx, o.cfg.OpTimeout)
	defer cancel()

	frame, err := o.deps.Source.Read(opCtx)
	if errors.Is(err, camera.ErrDuplicateFrame) {
		return o.cfg.FrameInterval
	}
	if err != nil {
		o.setState(Recovering)
		delay := o.deps.Source.NextRetryDelay()
		o.logger.Warn().Err(err).Dur("retry_in", delay).Msg("frame read failed, camera will be reopened")
		return delay
	}

	detections, err := o.deps.Recognizer.Detect(opCtx, frame.Image, o.deps.Gallery.Current())
	if err != nil {
		metrics.TickErrors.Inc()
		o.logger.Error().Err(err).Str("trace_id", frame.TraceID).Msg("recognition failed")
		return o.cfg.FrameInterval
	}

	for _, intent := range o.deps.Reconciler.Observe(now, window, detections) {
		if _, err := o.deps.Writer.Apply(opCtx, intent); err != nil {
			metrics.TickErrors.Inc()
			o.logger.Error().
				Err(err).
				Str("student_id", intent.StudentID).
				Str("trace_id", frame.TraceID).
				Msg("failed to write attendance")
		}
	}
	return o.cfg.FrameInterval
}

// cadence returns the tick interval for the current state, used when a
// tick could not reach a state decision.
func (o *Orchestrator) cadence() time.Duration {
	if o.State() == Active {
		return o.cfg.FrameInterval
	}
	return o.cfg.IdlePollInterval
}

func (o *Orchestrator) appendActivity(ctx context.Context, message string) {
	if o.deps.Activity == nil {
		return
	}
	if err := o.deps.Activity.AppendActivityLog(ctx, message); err != nil {
		o.logger.Warn().Err(err).Msg("failed to append activity log")
	}
}

// State returns the loop state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	for _, known := range []State{Idle, Active, Recovering} {
		var v float64
		if known == s {
			v = 1
		}
		metrics.OrchestratorState.WithLabelValues(known.String()).Set(v)
	}
}

// Status is a point-in-time snapshot for the status endpoint.
type Status struct {
	State        string `json:"state"`
	SessionID    string `json:"session_id,omitempty"`
	ClassID      int64  `json:"class_id,omitempty"`
	ClassName    string `json:"class_name,omitempty"`
	CameraState  string `json:"camera_state"`
	GallerySize  int    `json:"gallery_size"`
	DebounceSize int    `json:"debounce_size"`
}

// Status snapshots the loop for the status server.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		State:     o.state.String(),
		SessionID: o.sessionID,
	}
	if o.window != nil {
		st.ClassID = o.window.ID
		st.ClassName = o.window.Name
	}
	o.mu.Unlock()

	st.CameraState = o.deps.Source.State().String()
	if g := o.deps.Gallery.Current(); g != nil {
		st.GallerySize = g.Size()
	}
	st.DebounceSize = o.deps.Reconciler.DebounceSize()
	return st
}
