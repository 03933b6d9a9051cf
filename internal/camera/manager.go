package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/rollcall/internal/log"
	"github.com/kozaktomas/rollcall/internal/metrics"
)

// Manager owns the active capture backend. It walks the configured
// priority list on open, hands out frames, and tears the backend down on
// the first read failure so the caller can drive the reconnect schedule.
type Manager struct {
	cfg     Config
	logger  zerolog.Logger
	backoff *Backoff

	mu       sync.Mutex
	active   Source
	state    State
	lastHash uint64
	hasLast  bool
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: log.WithComponent("camera"),
		backoff: &Backoff{
			Delay:    cfg.RetryDelay,
			MaxDelay: cfg.MaxRetryDelay,
		},
		state: Closed,
	}
}

// Open tries each configured backend in order and keeps the first one
// that delivers a frame. Returns ErrNoBackend when every backend fails.
// Calling Open while already open is a no-op.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return nil
	}
	if m.backoff.Attempt() > 0 {
		metrics.CameraReconnects.Inc()
	}
	m.state = Opening
	m.mu.Unlock()

	for _, name := range m.cfg.Backends {
		build, ok := builders[name]
		if !ok {
			m.logger.Warn().Str("backend", name).Msg("unknown camera backend, skipping")
			continue
		}
		src, err := build(m.cfg)
		if err != nil {
			m.logger.Warn().Str("backend", name).Err(err).Msg("camera backend not configured")
			continue
		}
		if err := src.Open(ctx); err != nil {
			m.logger.Warn().Str("backend", name).Err(err).Msg("camera backend failed to open")
			_ = src.Close()
			if ctx.Err() != nil {
				break
			}
			continue
		}

		m.mu.Lock()
		m.active = src
		m.state = Open
		m.hasLast = false
		m.mu.Unlock()
		m.backoff.Reset()
		m.logger.Info().Str("backend", name).Msg("camera opened")
		return nil
	}

	m.mu.Lock()
	m.state = Retrying
	m.mu.Unlock()
	return ErrNoBackend
}

// Read pulls the next frame from the active backend. A read failure
// closes the backend, so the next Open starts from a clean slate. When
// dedupe is enabled a frame matching the previous one is dropped and
// ErrDuplicateFrame is returned instead.
func (m *Manager) Read(ctx context.Context) (*Frame, error) {
	m.mu.Lock()
	src := m.active
	m.mu.Unlock()
	if src == nil {
		return nil, ErrNotOpen
	}

	if m.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ReadTimeout)
		defer cancel()
	}

	frame, err := src.Read(ctx)
	if err != nil {
		metrics.FrameFailures.Inc()
		m.closeActive(Retrying)
		return nil, fmt.Errorf("read frame from %s: %w", src.Name(), err)
	}
	metrics.FramesTotal.Inc()

	if m.cfg.Dedupe {
		hash := frameHash(frame.Image)
		m.mu.Lock()
		duplicate := m.hasLast && similarFrames(m.lastHash, hash)
		m.lastHash, m.hasLast = hash, true
		m.mu.Unlock()
		if duplicate {
			metrics.FramesSkipped.Inc()
			m.logger.Debug().Str("trace_id", frame.TraceID).Msg("skipping unchanged frame")
			return nil, ErrDuplicateFrame
		}
	}
	return frame, nil
}

// NextRetryDelay returns how long to wait before the next Open. Each call
// advances the backoff schedule; a successful Open resets it.
func (m *Manager) NextRetryDelay() time.Duration {
	return m.backoff.Next()
}

// Close shuts the active backend down. Safe to call in any state.
func (m *Manager) Close() error {
	m.closeActive(Closed)
	return nil
}

// State reports the manager's view of the connection.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return m.active.State()
	}
	return m.state
}

func (m *Manager) closeActive(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		_ = m.active.Close()
		m.active = nil
	}
	m.state = next
	m.hasLast = false
}
