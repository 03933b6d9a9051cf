package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// snapshotSource fetches a fresh still image per read. Slower than a
// stream but works with any camera that exposes a snapshot endpoint.
type snapshotSource struct {
	url    string
	client *http.Client

	mu    sync.Mutex
	state State
	seq   uint64
}

func newSnapshotSource(cfg Config) (Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("snapshot backend needs a camera URL")
	}
	return &snapshotSource{url: cfg.URL, client: &http.Client{}}, nil
}

func (s *snapshotSource) Name() string { return "snapshot" }

func (s *snapshotSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Open {
		return nil
	}
	s.state = Opening

	// Confirmation snapshot, discarded.
	if _, err := s.fetch(ctx); err != nil {
		s.state = Closed
		return fmt.Errorf("confirm snapshot endpoint: %w", err)
	}
	s.state = Open
	return nil
}

func (s *snapshotSource) Read(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	open := s.state == Open
	s.mu.Unlock()
	if !open {
		return nil, ErrNotOpen
	}

	img, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Seq:     atomic.AddUint64(&s.seq, 1),
		Taken:   time.Now(),
		TraceID: uuid.New().String(),
		Image:   img,
	}, nil
}

func (s *snapshotSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Closed
	return nil
}

func (s *snapshotSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *snapshotSource) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return img, nil
}
