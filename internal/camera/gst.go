//go:build gst

package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/kozaktomas/rollcall/internal/log"
)

func init() {
	builders["gst"] = newGstSource
}

// gstSource captures from a local video device or an RTSP stream through
// GStreamer. The pipeline ends in jpegenc so the appsink hands out JPEG
// frames and decoding stays in plain Go, with no raw stride handling.
type gstSource struct {
	device string
	url    string
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	pipeline *gst.Pipeline
	frames   chan []byte
	closed   atomic.Bool
	seq      uint64
}

func newGstSource(cfg Config) (Source, error) {
	if cfg.Device == "" && cfg.URL == "" {
		return nil, errors.New("gst backend needs a capture device or stream URL")
	}
	return &gstSource{
		device: cfg.Device,
		url:    cfg.URL,
		logger: log.WithComponent("camera"),
	}, nil
}

func (s *gstSource) Name() string { return "gst" }

func (s *gstSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Open {
		return nil
	}
	s.state = Opening

	// Safe to call more than once.
	gst.Init(nil)

	pipeline, sink, err := s.buildPipeline()
	if err != nil {
		s.state = Closed
		return err
	}

	frames := make(chan []byte, 4)
	s.closed.Store(false)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return s.onSample(sink, frames)
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		s.state = Closed
		return fmt.Errorf("start pipeline: %w", err)
	}

	// The open only counts once a frame arrives and decodes.
	select {
	case <-ctx.Done():
		_ = pipeline.SetState(gst.StateNull)
		s.state = Closed
		return ctx.Err()
	case data := <-frames:
		if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
			_ = pipeline.SetState(gst.StateNull)
			s.state = Closed
			return fmt.Errorf("confirm capture: %w", err)
		}
	}

	s.pipeline = pipeline
	s.frames = frames
	s.state = Open
	return nil
}

func (s *gstSource) Read(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	frames := s.frames
	open := s.state == Open
	s.mu.Unlock()
	if !open || frames == nil {
		return nil, ErrNotOpen
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-frames:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		return &Frame{
			Seq:     atomic.AddUint64(&s.seq, 1),
			Taken:   time.Now(),
			TraceID: uuid.New().String(),
			Image:   img,
		}, nil
	}
}

func (s *gstSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed.Store(true)
	if s.pipeline != nil {
		_ = s.pipeline.SetState(gst.StateNull)
		s.pipeline = nil
	}
	// The channel is dropped, not closed, because the sample callback may
	// still be sending.
	s.frames = nil
	s.state = Closed
	return nil
}

func (s *gstSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// onSample copies the sample out of GStreamer memory and hands it to the
// reader. Frames are dropped when the reader falls behind so capture
// never backs up.
func (s *gstSource) onSample(sink *app.Sink, frames chan []byte) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowError
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return gst.FlowError
	}
	defer buffer.Unmap()

	data := make([]byte, len(mapInfo.Bytes()))
	copy(data, mapInfo.Bytes())

	if s.closed.Load() {
		return gst.FlowEOS
	}
	select {
	case frames <- data:
	default:
		// Reader is behind, drop this frame.
	}
	return gst.FlowOK
}

func (s *gstSource) buildPipeline() (*gst.Pipeline, *app.Sink, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, fmt.Errorf("create pipeline: %w", err)
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, fmt.Errorf("create videoconvert: %w", err)
	}
	enc, err := gst.NewElement("jpegenc")
	if err != nil {
		return nil, nil, fmt.Errorf("create jpegenc: %w", err)
	}
	enc.SetProperty("quality", 85)

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, fmt.Errorf("create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if s.device != "" {
		src, err := gst.NewElement("v4l2src")
		if err != nil {
			return nil, nil, fmt.Errorf("create v4l2src: %w", err)
		}
		src.SetProperty("device", s.device)

		if err := pipeline.AddMany(src, convert, enc, sink.Element); err != nil {
			return nil, nil, fmt.Errorf("add pipeline elements: %w", err)
		}
		if err := gst.ElementLinkMany(src, convert, enc, sink.Element); err != nil {
			return nil, nil, fmt.Errorf("link pipeline elements: %w", err)
		}
		return pipeline, sink, nil
	}

	src, err := gst.NewElement("rtspsrc")
	if err != nil {
		return nil, nil, fmt.Errorf("create rtspsrc: %w", err)
	}
	src.SetProperty("location", s.url)
	src.SetProperty("latency", 200)
	src.SetProperty("protocols", 4) // TCP only

	depay, err := gst.NewElement("rtph264depay")
	if err != nil {
		return nil, nil, fmt.Errorf("create rtph264depay: %w", err)
	}
	dec, err := gst.NewElement("avdec_h264")
	if err != nil {
		return nil, nil, fmt.Errorf("create avdec_h264: %w", err)
	}

	if err := pipeline.AddMany(src, depay, dec, convert, enc, sink.Element); err != nil {
		return nil, nil, fmt.Errorf("add pipeline elements: %w", err)
	}
	// rtspsrc pads appear at runtime, so only the tail is linked here.
	if err := gst.ElementLinkMany(depay, dec, convert, enc, sink.Element); err != nil {
		return nil, nil, fmt.Errorf("link pipeline elements: %w", err)
	}
	src.Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
		sinkPad := depay.GetStaticPad("sink")
		if sinkPad == nil {
			s.logger.Error().Msg("rtph264depay sink pad missing")
			return
		}
		if ret := pad.Link(sinkPad); ret != gst.PadLinkOK {
			s.logger.Error().Str("pad", pad.GetName()).Msg("failed to link rtsp pad")
		}
	})
	return pipeline, sink, nil
}
