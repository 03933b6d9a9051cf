// Package camera acquires frames from the configured capture backend.
//
// Backends are tried in priority order and an open is only confirmed once
// a real frame has been produced, so a camera that accepts connections but
// never delivers data is treated as unavailable.
package camera

import (
	"context"
	"errors"
	"image"
	"time"
)

// State of a frame source connection.
type State int

const (
	// Closed means no connection is established
	Closed State = iota
	// Opening means a connection attempt is in flight
	Opening
	// Open means frames can be read
	Open
	// Retrying means the last attempt failed and a reconnect is pending
	Retrying
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Retrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// Frame is one captured image with tracing metadata.
type Frame struct {
	// Seq is the monotonic sequence number within one connection
	Seq uint64
	// Taken is when the frame was captured
	Taken time.Time
	// TraceID is a unique identifier for tracing a frame through the loop
	TraceID string
	// Image is the decoded frame
	Image image.Image
}

// Source is a single capture backend.
type Source interface {
	// Name identifies the backend
	Name() string
	// Open establishes the connection and confirms it by reading one
	// frame. The confirmation frame is discarded.
	Open(ctx context.Context) error
	// Read pulls the next frame. Only valid while open.
	Read(ctx context.Context) (*Frame, error)
	// Close tears the connection down. Safe to call in any state, more
	// than once.
	Close() error
	// State reports the connection state
	State() State
}

// Config selects and tunes the capture backends.
type Config struct {
	// Backends is the priority order to try ("mjpeg", "snapshot", "file", "gst")
	Backends []string
	// URL is the stream or snapshot endpoint
	URL string
	// Device is the local capture device for the gst backend
	Device string
	// Path is an image file or directory for the file backend
	Path string
	// ReadTimeout bounds a single frame read
	ReadTimeout time.Duration
	// RetryDelay is the initial reconnect delay
	RetryDelay time.Duration
	// MaxRetryDelay caps the reconnect delay
	MaxRetryDelay time.Duration
	// Dedupe skips frames that are near-identical to the previous one
	Dedupe bool
}

var (
	// ErrNoBackend means no configured backend could deliver a frame.
	ErrNoBackend = errors.New("no camera backend available")
	// ErrNotOpen means Read was called without an open connection.
	ErrNotOpen = errors.New("camera is not open")
	// ErrDuplicateFrame means the frame matched the previous capture and
	// was skipped. Callers treat this as "nothing new", not a failure.
	ErrDuplicateFrame = errors.New("frame unchanged since last capture")
)

// builders maps backend names to constructors. Backends that need cgo
// register themselves from build-tagged files.
var builders = map[string]func(Config) (Source, error){
	"mjpeg":    newMJPEGSource,
	"snapshot": newSnapshotSource,
	"file":     newFileSource,
}
