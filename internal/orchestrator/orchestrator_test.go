package orchestrator

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/camera"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/recognize"
	"github.com/kozaktomas/rollcall/internal/reconcile"
)

type stubSource struct {
	mu         sync.Mutex
	opened     bool
	openErr    error
	readErr    error
	duplicate  bool
	retryDelay time.Duration
	openCalls  int
	readCalls  int
	closeCalls int
}

func (s *stubSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openCalls++
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = true
	return nil
}

func (s *stubSource) Read(ctx context.Context) (*camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readCalls++
	if !s.opened {
		return nil, camera.ErrNotOpen
	}
	if s.duplicate {
		return nil, camera.ErrDuplicateFrame
	}
	if s.readErr != nil {
		// a failed read tears the backend down, like the real manager
		s.opened = false
		return nil, s.readErr
	}
	return &camera.Frame{
		Seq:     uint64(s.readCalls),
		TraceID: "trace-1",
		Image:   image.NewRGBA(image.Rect(0, 0, 1, 1)),
	}, nil
}

func (s *stubSource) NextRetryDelay() time.Duration { return s.retryDelay }

func (s *stubSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		s.closeCalls++
	}
	s.opened = false
	return nil
}

func (s *stubSource) State() camera.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return camera.Open
	}
	return camera.Closed
}

type stubResolver struct {
	window *database.ClassWindow
	err    error
}

func (s *stubResolver) Active(ctx context.Context, at time.Time) (*database.ClassWindow, error) {
	return s.window, s.err
}

type stubRecognizer struct {
	detections []recognize.Detection
	err        error
	calls      int
}

func (s *stubRecognizer) Detect(ctx context.Context, img image.Image, g *gallery.Gallery) ([]recognize.Detection, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.detections, nil
}

type stubGallery struct{ g *gallery.Gallery }

func (s stubGallery) Current() *gallery.Gallery { return s.g }

var (
	mathClass    = &database.ClassWindow{ID: 7, Name: "Mathematics"}
	historyClass = &database.ClassWindow{ID: 8, Name: "History"}
)

type fixture struct {
	store    *mock.Store
	source   *stubSource
	resolver *stubResolver
	rec      *stubRecognizer
	orch     *Orchestrator
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    mock.NewStore(),
		source:   &stubSource{retryDelay: 5 * time.Second},
		resolver: &stubResolver{},
		rec:      &stubRecognizer{},
		clock:    time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC),
	}
	f.orch = New(
		Config{
			IdlePollInterval: 10 * time.Second,
			FrameInterval:    500 * time.Millisecond,
			OpTimeout:        time.Second,
		},
		Deps{
			Source:     f.source,
			Resolver:   f.resolver,
			Gallery:    stubGallery{},
			Recognizer: f.rec,
			Reconciler: reconcile.New(3 * time.Second),
			Writer:     attendance.NewWriter(f.store),
			Activity:   f.store,
		},
	)
	f.orch.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) tick() time.Duration {
	return f.orch.tick(context.Background())
}

func (f *fixture) hasActivity(t *testing.T, substr string) bool {
	t.Helper()
	for _, msg := range f.store.ActivityMessages() {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func TestIdleToActive(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass

	delay := f.tick()
	if f.orch.State() != Active {
		t.Fatalf("expected Active, got %s", f.orch.State())
	}
	if delay != 500*time.Millisecond {
		t.Errorf("expected frame interval delay, got %v", delay)
	}
	if f.source.openCalls != 1 {
		t.Errorf("expected 1 camera open, got %d", f.source.openCalls)
	}
	if !f.hasActivity(t, "Class started: Mathematics") {
		t.Error("expected class start activity line")
	}
	if f.orch.Status().SessionID == "" {
		t.Error("expected a session id once a class is active")
	}
}

func TestActiveTickWritesAttendance(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.rec.detections = []recognize.Detection{
		{StudentID: "S001", Name: "Alice", Confidence: 0.95},
	}

	f.tick() // Idle -> Active, camera opened
	f.tick() // first frame processed

	records := f.store.AttendanceRecords()
	if len(records) != 1 {
		t.Fatalf("expected 1 attendance record, got %d", len(records))
	}
	if records[0].StudentID != "S001" || records[0].ClassID != 7 {
		t.Errorf("unexpected record %+v", records[0])
	}
	if records[0].Status != database.StatusPresent {
		t.Errorf("expected present, got %s", records[0].Status)
	}
	if !f.hasActivity(t, "Student S001 marked present") {
		t.Error("expected attendance activity line")
	}
}

func TestDebouncedRedetectionUpdatesRecord(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.rec.detections = []recognize.Detection{
		{StudentID: "S001", Name: "Alice", Confidence: 0.95},
	}

	f.tick() // open camera
	f.tick() // first detection, record created

	// One second later the student is still in front of the camera.
	f.clock = f.clock.Add(time.Second)
	f.tick()
	if got := len(f.store.AttendanceRecords()); got != 1 {
		t.Fatalf("debounced redetection must not write, got %d records", got)
	}

	// After the cooldown the detection writes again, as an update.
	f.clock = f.clock.Add(3 * time.Second)
	f.tick()

	records := f.store.AttendanceRecords()
	if len(records) != 1 {
		t.Fatalf("expected one logical record, got %d", len(records))
	}
	if !records[0].MarkedAt.Equal(f.clock) {
		t.Errorf("expected record updated to %v, got %v", f.clock, records[0].MarkedAt)
	}
}

func TestActiveToIdle(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.rec.detections = []recognize.Detection{
		{StudentID: "S001", Name: "Alice", Confidence: 0.95},
	}
	f.tick()
	f.tick()

	f.resolver.window = nil
	delay := f.tick()

	if f.orch.State() != Idle {
		t.Fatalf("expected Idle, got %s", f.orch.State())
	}
	if delay != 10*time.Second {
		t.Errorf("expected idle poll delay, got %v", delay)
	}
	if f.source.closeCalls != 1 {
		t.Errorf("expected camera closed once, got %d", f.source.closeCalls)
	}
	if !f.hasActivity(t, "Camera shut down - no active class") {
		t.Error("expected camera shutdown activity line")
	}

	status := f.orch.Status()
	if status.SessionID != "" || status.ClassID != 0 {
		t.Errorf("class context must be cleared, got %+v", status)
	}
	if status.DebounceSize != 0 {
		t.Errorf("debounce set must be cleared, got %d entries", status.DebounceSize)
	}
}

func TestNoWindowMeansNoWrites(t *testing.T) {
	f := newFixture(t)
	f.rec.detections = []recognize.Detection{
		{StudentID: "S001", Name: "Alice", Confidence: 0.95},
	}

	for i := 0; i < 3; i++ {
		if delay := f.tick(); delay != 10*time.Second {
			t.Errorf("expected idle poll delay, got %v", delay)
		}
		f.clock = f.clock.Add(10 * time.Second)
	}

	if f.rec.calls != 0 {
		t.Errorf("recognizer must never run without a class, got %d calls", f.rec.calls)
	}
	if f.source.openCalls != 0 {
		t.Errorf("camera must stay closed without a class, got %d opens", f.source.openCalls)
	}
	if got := len(f.store.AttendanceRecords()); got != 0 {
		t.Errorf("expected zero store writes, got %d", got)
	}
}

func TestCameraFailureEntersRecovering(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.source.openErr = errors.New("all backends failed")

	for i := 0; i < 3; i++ {
		delay := f.tick()
		if f.orch.State() != Recovering {
			t.Fatalf("tick %d: expected Recovering, got %s", i, f.orch.State())
		}
		if delay != 5*time.Second {
			t.Errorf("tick %d: expected retry delay, got %v", i, delay)
		}
		f.clock = f.clock.Add(delay)
	}
	if f.source.openCalls != 3 {
		t.Errorf("expected an open attempt per tick, got %d", f.source.openCalls)
	}
}

func TestRecoveringToActive(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.tick()

	// Stream dies mid-class.
	f.source.readErr = errors.New("connection reset")
	delay := f.tick()
	if f.orch.State() != Recovering {
		t.Fatalf("expected Recovering after read failure, got %s", f.orch.State())
	}
	if delay != 5*time.Second {
		t.Errorf("expected retry delay, got %v", delay)
	}

	// Camera comes back on the next attempt.
	f.source.readErr = nil
	f.clock = f.clock.Add(delay)
	f.tick()
	if f.orch.State() != Active {
		t.Fatalf("expected Active after successful reopen, got %s", f.orch.State())
	}
}

func TestRecoveringToIdle(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.tick()
	f.source.readErr = errors.New("connection reset")
	f.tick()

	f.resolver.window = nil
	f.tick()
	if f.orch.State() != Idle {
		t.Fatalf("expected Idle, got %s", f.orch.State())
	}
	// The session never ended cleanly from Active, so no shutdown line.
	if f.hasActivity(t, "Camera shut down") {
		t.Error("no shutdown activity expected when the class ends while recovering")
	}
}

func TestBackToBackClassesKeepCameraOpen(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.tick()
	f.tick()

	f.resolver.window = historyClass
	f.tick()

	if f.orch.State() != Active {
		t.Fatalf("expected Active across class change, got %s", f.orch.State())
	}
	if f.source.closeCalls != 0 {
		t.Errorf("camera must stay open across back-to-back classes, got %d closes", f.source.closeCalls)
	}
	if !f.hasActivity(t, "Class started: History") {
		t.Error("expected class start line for the next class")
	}

	status := f.orch.Status()
	if status.ClassID != 8 {
		t.Errorf("expected class 8 in status, got %d", status.ClassID)
	}
}

func TestNewSessionIDPerClass(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.tick()
	first := f.orch.Status().SessionID

	f.resolver.window = historyClass
	f.tick()
	second := f.orch.Status().SessionID

	if first == "" || second == "" {
		t.Fatal("expected session ids for both classes")
	}
	if first == second {
		t.Error("each class must get a fresh session id")
	}
}

func TestRecognitionErrorAbsorbed(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.tick()

	f.rec.err = errors.New("engine crashed")
	delay := f.tick()
	if f.orch.State() != Active {
		t.Fatalf("recognition failure must not change state, got %s", f.orch.State())
	}
	if delay != 500*time.Millisecond {
		t.Errorf("expected frame interval delay, got %v", delay)
	}

	f.rec.err = nil
	f.rec.detections = []recognize.Detection{
		{StudentID: "S001", Name: "Alice", Confidence: 0.95},
	}
	f.tick()
	if got := len(f.store.AttendanceRecords()); got != 1 {
		t.Errorf("loop must keep processing after an absorbed error, got %d records", got)
	}
}

func TestWriterErrorAbsorbed(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.rec.detections = []recognize.Detection{
		{StudentID: "S001", Name: "Alice", Confidence: 0.95},
	}
	f.store.UpsertError = errors.New("database is down")

	f.tick()
	delay := f.tick()
	if f.orch.State() != Active {
		t.Fatalf("writer failure must not change state, got %s", f.orch.State())
	}
	if delay != 500*time.Millisecond {
		t.Errorf("expected frame interval delay, got %v", delay)
	}
}

func TestDuplicateFrameSkipsRecognition(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.tick()

	f.source.duplicate = true
	delay := f.tick()
	if f.orch.State() != Active {
		t.Fatalf("a duplicate frame is not a failure, got state %s", f.orch.State())
	}
	if delay != 500*time.Millisecond {
		t.Errorf("expected frame interval delay, got %v", delay)
	}
	if f.rec.calls != 0 {
		t.Errorf("recognizer must not run on duplicate frames, got %d calls", f.rec.calls)
	}
}

func TestResolverErrorKeepsState(t *testing.T) {
	f := newFixture(t)
	f.resolver.window = mathClass
	f.tick()

	f.resolver.err = errors.New("database timeout")
	delay := f.tick()
	if f.orch.State() != Active {
		t.Fatalf("resolver failure must not change state, got %s", f.orch.State())
	}
	if delay != 500*time.Millisecond {
		t.Errorf("expected the active cadence, got %v", delay)
	}

	f.resolver.err = nil
	f.resolver.window = nil
	f.tick()
	if f.orch.State() != Idle {
		t.Errorf("loop must recover once the resolver answers again, got %s", f.orch.State())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestStatusSnapshot(t *testing.T) {
	f := newFixture(t)

	status := f.orch.Status()
	if status.State != "idle" {
		t.Errorf("expected idle, got %s", status.State)
	}
	if status.CameraState != "closed" {
		t.Errorf("expected closed camera, got %s", status.CameraState)
	}

	f.resolver.window = mathClass
	f.tick()

	status = f.orch.Status()
	if status.State != "active" {
		t.Errorf("expected active, got %s", status.State)
	}
	if status.ClassID != 7 || status.ClassName != "Mathematics" {
		t.Errorf("expected class context in status, got %+v", status)
	}
	if status.CameraState != "open" {
		t.Errorf("expected open camera, got %s", status.CameraState)
	}
}
