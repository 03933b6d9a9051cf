package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// mjpegSource reads a multipart/x-mixed-replace JPEG stream, the format
// most IP cameras expose for continuous capture.
type mjpegSource struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	body   io.ReadCloser
	parts  *multipart.Reader
	seq    uint64
}

func newMJPEGSource(cfg Config) (Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("mjpeg backend needs a camera URL")
	}
	return &mjpegSource{url: cfg.URL, client: &http.Client{}}, nil
}

func (s *mjpegSource) Name() string { return "mjpeg" }

func (s *mjpegSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Open {
		return nil
	}
	s.state = Opening

	// The stream must outlive the open call, so it gets its own context.
	streamCtx, cancel := context.WithCancel(context.Background())

	// Tear the stream down if the caller gives up before the first frame.
	confirmed := make(chan struct{})
	defer close(confirmed)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-confirmed:
		}
	}()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()
		s.state = Closed
		return fmt.Errorf("build stream request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		s.state = Closed
		return fmt.Errorf("connect to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		s.state = Closed
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		_ = resp.Body.Close()
		cancel()
		s.state = Closed
		return fmt.Errorf("not an mjpeg stream: content type %q", resp.Header.Get("Content-Type"))
	}

	parts := multipart.NewReader(resp.Body, params["boundary"])

	// The open only counts once a real frame decodes.
	if _, err := readFramePart(parts); err != nil {
		_ = resp.Body.Close()
		cancel()
		s.state = Closed
		return fmt.Errorf("confirm stream: %w", err)
	}

	s.cancel = cancel
	s.body = resp.Body
	s.parts = parts
	s.state = Open
	return nil
}

func (s *mjpegSource) Read(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	parts := s.parts
	open := s.state == Open
	s.mu.Unlock()
	if !open || parts == nil {
		return nil, ErrNotOpen
	}

	type result struct {
		img image.Image
		err error
	}
	ch := make(chan result, 1)
	go func() {
		img, err := readFramePart(parts)
		ch <- result{img, err}
	}()

	select {
	case <-ctx.Done():
		// Closing the body unblocks the pending part read.
		_ = s.Close()
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return &Frame{
			Seq:     atomic.AddUint64(&s.seq, 1),
			Taken:   time.Now(),
			TraceID: uuid.New().String(),
			Image:   res.img,
		}, nil
	}
}

func (s *mjpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.body != nil {
		_ = s.body.Close()
		s.body = nil
	}
	s.parts = nil
	s.state = Closed
	return nil
}

func (s *mjpegSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// readFramePart pulls the next multipart section and decodes it as JPEG.
func readFramePart(parts *multipart.Reader) (image.Image, error) {
	part, err := parts.NextPart()
	if err != nil {
		return nil, fmt.Errorf("next stream part: %w", err)
	}
	defer func() { _ = part.Close() }()

	img, err := jpeg.Decode(part)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}
