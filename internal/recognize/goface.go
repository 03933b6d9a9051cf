//go:build goface

package recognize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/Kagami/go-face"
)

func init() {
	engineBuilders["goface"] = newGofaceEngine
}

// gofaceEngine runs dlib face detection in-process through go-face. It
// needs the dlib model files (shape predictor, resnet descriptor net) in
// ModelsDir and a cgo build, hence the build tag.
type gofaceEngine struct {
	mu  sync.Mutex // dlib recognizer is not safe for concurrent calls
	rec *face.Recognizer
}

func newGofaceEngine(cfg EngineConfig) (Engine, error) {
	if cfg.ModelsDir == "" {
		return nil, errors.New("goface engine needs a models directory")
	}
	rec, err := face.NewRecognizer(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models from %s: %w", cfg.ModelsDir, err)
	}
	return &gofaceEngine{rec: rec}, nil
}

func (e *gofaceEngine) Name() string { return "goface" }

func (e *gofaceEngine) Detect(ctx context.Context, img image.Image) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// go-face takes JPEG bytes, not decoded images.
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	e.mu.Lock()
	faces, err := e.rec.Recognize(buf.Bytes())
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	observations := make([]Observation, 0, len(faces))
	for _, f := range faces {
		encoding := make([]float32, len(f.Descriptor))
		copy(encoding, f.Descriptor[:])
		observations = append(observations, Observation{
			Box: Box{
				X:      f.Rectangle.Min.X,
				Y:      f.Rectangle.Min.Y,
				Width:  f.Rectangle.Dx(),
				Height: f.Rectangle.Dy(),
			},
			Encoding: encoding,
		})
	}
	return observations, nil
}
