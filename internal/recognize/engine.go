// Package recognize matches faces found in camera frames against the
// gallery of registered students.
//
// Face localization and encoding are delegated to an Engine, an external
// capability consumed as a pure function. The package ships an HTTP
// sidecar client by default and an in-process dlib binding behind the
// goface build tag; tests use the Static engine.
package recognize

import (
	"context"
	"fmt"
	"image"
	"time"
)

// Box is a face bounding box in pixel coordinates of the original frame.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// scale maps a box from a downscaled image back to the original frame.
func (b Box) scale(factor float64) Box {
	if factor == 1 {
		return b
	}
	return Box{
		X:      int(float64(b.X) * factor),
		Y:      int(float64(b.Y) * factor),
		Width:  int(float64(b.Width) * factor),
		Height: int(float64(b.Height) * factor),
	}
}

// Observation is one face the engine found in an image: where it is and
// its feature encoding. The engine knows nothing about the gallery;
// identity assignment happens in the Recognizer.
type Observation struct {
	Box      Box
	Encoding []float32
}

// Engine is the external face detection and encoding capability.
type Engine interface {
	// Name identifies the engine implementation
	Name() string
	// Detect finds every face in the image and returns its encoding
	Detect(ctx context.Context, img image.Image) ([]Observation, error)
}

// EngineConfig selects and tunes the engine implementation.
type EngineConfig struct {
	// Provider picks the implementation ("http", "goface" when built in)
	Provider string
	// URL is the sidecar base URL for the http provider
	URL string
	// Timeout bounds one engine call
	Timeout time.Duration
	// ModelsDir holds the dlib model files for the goface provider
	ModelsDir string
}

// engineBuilders maps provider names to constructors. Providers that need
// cgo register themselves from build-tagged files.
var engineBuilders = map[string]func(EngineConfig) (Engine, error){
	"http": newHTTPEngine,
}

// NewEngine builds the configured engine implementation.
func NewEngine(cfg EngineConfig) (Engine, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "http"
	}
	build, ok := engineBuilders[provider]
	if !ok {
		return nil, fmt.Errorf("unknown face engine provider %q", provider)
	}
	return build(cfg)
}
