package recognize

import (
	"context"
	"image"
	"sync"
)

// Static is a canned engine for tests: it answers every Detect call with
// a fixed set of observations, or a fixed error. Safe for concurrent use.
type Static struct {
	mu           sync.Mutex
	observations []Observation
	err          error
	calls        int
}

// NewStatic creates an engine answering with the given observations.
func NewStatic(observations ...Observation) *Static {
	return &Static{observations: observations}
}

func (s *Static) Name() string { return "static" }

func (s *Static) Detect(ctx context.Context, img image.Image) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Observation, len(s.observations))
	copy(out, s.observations)
	return out, nil
}

// Set replaces the canned observations for subsequent calls.
func (s *Static) Set(observations ...Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations = observations
	s.err = nil
}

// Fail makes subsequent calls return the given error.
func (s *Static) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns how many times Detect ran.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
