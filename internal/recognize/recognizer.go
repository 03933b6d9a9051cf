package recognize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/log"
	"github.com/kozaktomas/rollcall/internal/metrics"
)

const (
	// DefaultMatchThreshold is the dlib-style distance bound for a face
	// to count as a registered student.
	DefaultMatchThreshold = 0.6
	// DefaultFrameMaxEdge bounds the image size fed into the engine.
	DefaultFrameMaxEdge = 320
)

var (
	// ErrNoFace means the image contains no detectable face.
	ErrNoFace = errors.New("no face found in image")
	// ErrMultipleFaces means the image contains more than one face where
	// exactly one is required.
	ErrMultipleFaces = errors.New("multiple faces found in image")
)

// Detection is one face from a frame after gallery matching. StudentID is
// empty when no gallery entry passed the threshold; unmatched faces are
// reported, never discarded.
type Detection struct {
	StudentID  string
	Name       string
	Confidence float64
	Distance   float64
	Box        Box
}

// Matched reports whether the face resolved to a registered student.
func (d Detection) Matched() bool {
	return d.StudentID != ""
}

// Config tunes the gallery matching.
type Config struct {
	// MatchThreshold is the distance bound for a match. A face sitting
	// exactly on the threshold does not match.
	MatchThreshold float64
	// FrameMaxEdge is the longest edge the frame is downscaled to
	// before detection. Zero disables downscaling.
	FrameMaxEdge int
}

// Recognizer turns frames into identity detections by running the engine
// and matching each observed face against the gallery.
type Recognizer struct {
	engine    Engine
	threshold float64
	maxEdge   int
	logger    zerolog.Logger
}

// New creates a recognizer around the given engine.
func New(engine Engine, cfg Config) *Recognizer {
	threshold := cfg.MatchThreshold
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Recognizer{
		engine:    engine,
		threshold: threshold,
		maxEdge:   cfg.FrameMaxEdge,
		logger:    log.WithComponent("recognize"),
	}
}

// Detect finds every face in the frame and resolves it against the
// gallery. The frame is downscaled before the engine call and boxes are
// mapped back to original coordinates. One detection per observed face
// comes back, matched or not.
func (r *Recognizer) Detect(ctx context.Context, img image.Image, g *gallery.Gallery) ([]Detection, error) {
	if g == nil || g.Size() == 0 {
		return nil, gallery.ErrEmptyGallery
	}

	started := time.Now()
	defer func() {
		metrics.RecognizeDuration.Observe(time.Since(started).Seconds())
	}()

	scaled, factor := downscale(img, r.maxEdge)
	observations, err := r.engine.Detect(ctx, scaled)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	metrics.FacesDetected.Add(float64(len(observations)))

	detections := make([]Detection, 0, len(observations))
	for _, obs := range observations {
		detection := r.match(obs, g)
		detection.Box = obs.Box.scale(factor)
		if detection.Matched() {
			metrics.FacesMatched.Inc()
			r.logger.Info().
				Str("student_id", detection.StudentID).
				Str("name", detection.Name).
				Float64("confidence", detection.Confidence).
				Msg("student recognized")
		} else {
			metrics.FacesUnmatched.Inc()
			r.logger.Debug().
				Float64("distance", detection.Distance).
				Msg("face did not match any student")
		}
		detections = append(detections, detection)
	}
	return detections, nil
}

// match resolves one observation against the gallery. A malformed
// encoding from the engine makes the face unmatched, never an error.
func (r *Recognizer) match(obs Observation, g *gallery.Gallery) Detection {
	if len(obs.Encoding) != database.EncodingDim {
		r.logger.Warn().
			Int("dims", len(obs.Encoding)).
			Msg("engine returned encoding with unexpected dimensionality")
		return Detection{Distance: database.MaxDistance}
	}

	candidates := g.Nearest(obs.Encoding, 1)
	if len(candidates) == 0 {
		return Detection{Distance: database.MaxDistance}
	}

	best := candidates[0]
	// Strictly below: a face sitting exactly on the threshold stays
	// unmatched.
	if best.Distance >= r.threshold {
		return Detection{Distance: best.Distance}
	}
	return Detection{
		StudentID:  best.Identity.StudentID,
		Name:       best.Identity.Name,
		Confidence: 1 - best.Distance,
		Distance:   best.Distance,
	}
}

// EncodeOne extracts the encoding of the single face in the image, used
// at registration time. Zero faces and multiple faces are both errors;
// a registration photo must be unambiguous.
func EncodeOne(ctx context.Context, engine Engine, img image.Image) ([]float32, error) {
	observations, err := engine.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	switch len(observations) {
	case 0:
		return nil, ErrNoFace
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d faces", ErrMultipleFaces, len(observations))
	}

	encoding := observations[0].Encoding
	if len(encoding) != database.EncodingDim {
		return nil, fmt.Errorf("engine returned %d-dim encoding, want %d", len(encoding), database.EncodingDim)
	}
	return encoding, nil
}
