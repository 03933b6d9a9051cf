package camera

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"
)

// fakeSource is a scriptable backend for manager tests.
type fakeSource struct {
	name    string
	openErr error
	readErr error
	images  []image.Image

	state State
	opens int
	reads int
	seq   uint64
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Open(ctx context.Context) error {
	f.opens++
	if f.openErr != nil {
		f.state = Closed
		return f.openErr
	}
	f.state = Open
	return nil
}

func (f *fakeSource) Read(ctx context.Context) (*Frame, error) {
	if f.state != Open {
		return nil, ErrNotOpen
	}
	if f.readErr != nil {
		return nil, f.readErr
	}
	img := f.images[f.reads%len(f.images)]
	f.reads++
	f.seq++
	return &Frame{Seq: f.seq, Taken: time.Now(), TraceID: "trace", Image: img}, nil
}

func (f *fakeSource) Close() error {
	f.state = Closed
	return nil
}

func (f *fakeSource) State() State { return f.state }

// registerTestBackend swaps a fake into the builder registry for the
// duration of the test.
func registerTestBackend(t *testing.T, name string, src Source, buildErr error) {
	t.Helper()
	prev, had := builders[name]
	builders[name] = func(Config) (Source, error) {
		if buildErr != nil {
			return nil, buildErr
		}
		return src, nil
	}
	t.Cleanup(func() {
		if had {
			builders[name] = prev
		} else {
			delete(builders, name)
		}
	})
}

func TestManagerOpenPriority(t *testing.T) {
	ctx := context.Background()
	down := &fakeSource{name: "down", openErr: errors.New("connection refused")}
	up := &fakeSource{name: "up", images: []image.Image{fadeImage()}}
	registerTestBackend(t, "down", down, nil)
	registerTestBackend(t, "up", up, nil)

	m := NewManager(Config{Backends: []string{"down", "up"}})
	if err := m.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if got := m.State(); got != Open {
		t.Fatalf("expected state %v, got %v", Open, got)
	}
	if down.opens != 1 || down.state != Closed {
		t.Errorf("expected failed backend to be tried once and closed, got opens=%d state=%v", down.opens, down.state)
	}

	frame, err := m.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if frame.Seq != 1 {
		t.Errorf("expected first frame seq 1, got %d", frame.Seq)
	}
}

func TestManagerOpenSkipsUnknownAndUnconfigured(t *testing.T) {
	ctx := context.Background()
	up := &fakeSource{name: "up", images: []image.Image{fadeImage()}}
	registerTestBackend(t, "broken", nil, errors.New("backend needs a camera URL"))
	registerTestBackend(t, "up", up, nil)

	m := NewManager(Config{Backends: []string{"no-such-backend", "broken", "up"}})
	if err := m.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if up.opens != 1 {
		t.Errorf("expected fallback backend to open once, got %d", up.opens)
	}
}

func TestManagerOpenNoBackend(t *testing.T) {
	down := &fakeSource{name: "down", openErr: errors.New("connection refused")}
	registerTestBackend(t, "down", down, nil)

	m := NewManager(Config{Backends: []string{"down"}})
	err := m.Open(context.Background())
	if !errors.Is(err, ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
	if got := m.State(); got != Retrying {
		t.Errorf("expected state %v after failed open, got %v", Retrying, got)
	}
}

func TestManagerOpenWhileOpen(t *testing.T) {
	ctx := context.Background()
	up := &fakeSource{name: "up", images: []image.Image{fadeImage()}}
	registerTestBackend(t, "up", up, nil)

	m := NewManager(Config{Backends: []string{"up"}})
	if err := m.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := m.Open(ctx); err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	if up.opens != 1 {
		t.Errorf("expected a single backend open, got %d", up.opens)
	}
}

func TestManagerReadFailureClosesBackend(t *testing.T) {
	ctx := context.Background()
	up := &fakeSource{name: "up", images: []image.Image{fadeImage()}}
	registerTestBackend(t, "up", up, nil)

	m := NewManager(Config{Backends: []string{"up"}})
	if err := m.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	up.readErr = errors.New("stream reset")
	if _, err := m.Read(ctx); err == nil {
		t.Fatal("expected read error")
	}
	if up.state != Closed {
		t.Errorf("expected backend closed after read failure, got %v", up.state)
	}
	if got := m.State(); got != Retrying {
		t.Errorf("expected state %v after read failure, got %v", Retrying, got)
	}
	if _, err := m.Read(ctx); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen after backend closed, got %v", err)
	}
}

func TestManagerReadWithoutOpen(t *testing.T) {
	m := NewManager(Config{Backends: []string{"up"}})
	if _, err := m.Read(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestManagerDedupe(t *testing.T) {
	ctx := context.Background()
	up := &fakeSource{name: "up", images: []image.Image{
		flatImage(128),
		flatImage(128),
		fadeImage(),
	}}
	registerTestBackend(t, "up", up, nil)

	m := NewManager(Config{Backends: []string{"up"}, Dedupe: true})
	if err := m.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if _, err := m.Read(ctx); err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	if _, err := m.Read(ctx); !errors.Is(err, ErrDuplicateFrame) {
		t.Fatalf("expected ErrDuplicateFrame for unchanged scene, got %v", err)
	}
	frame, err := m.Read(ctx)
	if err != nil {
		t.Fatalf("third read failed: %v", err)
	}
	if frame == nil {
		t.Fatal("expected a frame once the scene changed")
	}
}

func TestManagerRetryDelayResetOnOpen(t *testing.T) {
	ctx := context.Background()
	up := &fakeSource{name: "up", images: []image.Image{fadeImage()}}
	registerTestBackend(t, "up", up, nil)

	m := NewManager(Config{
		Backends:      []string{"up"},
		RetryDelay:    5 * time.Second,
		MaxRetryDelay: 40 * time.Second,
	})

	if got := m.NextRetryDelay(); got != 5*time.Second {
		t.Fatalf("expected first delay 5s, got %v", got)
	}
	if got := m.NextRetryDelay(); got != 10*time.Second {
		t.Fatalf("expected second delay 10s, got %v", got)
	}

	if err := m.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if got := m.NextRetryDelay(); got != 5*time.Second {
		t.Errorf("expected delay back to 5s after successful open, got %v", got)
	}
}

func TestManagerCloseIdempotent(t *testing.T) {
	ctx := context.Background()
	up := &fakeSource{name: "up", images: []image.Image{fadeImage()}}
	registerTestBackend(t, "up", up, nil)

	m := NewManager(Config{Backends: []string{"up"}})
	if err := m.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if got := m.State(); got != Closed {
		t.Errorf("expected state %v, got %v", Closed, got)
	}
	if up.state != Closed {
		t.Errorf("expected backend closed, got %v", up.state)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{Closed, "closed"},
		{Opening, "opening"},
		{Open, "open"},
		{Retrying, "retrying"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d): expected %q, got %q", tt.state, tt.expected, got)
		}
	}
}
