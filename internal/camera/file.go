package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fileSource replays images from disk, cycling through a directory in
// name order or serving a single file over and over. It stands in for a
// real camera during development and in tests.
type fileSource struct {
	path string

	mu    sync.Mutex
	state State
	files []string
	next  int
	seq   uint64
}

func newFileSource(cfg Config) (Source, error) {
	if cfg.Path == "" {
		return nil, errors.New("file backend needs a path")
	}
	return &fileSource{path: cfg.Path}, nil
}

func (s *fileSource) Name() string { return "file" }

func (s *fileSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Open {
		return nil
	}
	s.state = Opening

	files, err := listImages(s.path)
	if err != nil {
		s.state = Closed
		return err
	}

	// Decoding the first image up front catches bad paths before the
	// loop starts ticking.
	if _, err := decodeImageFile(files[0]); err != nil {
		s.state = Closed
		return fmt.Errorf("confirm image source: %w", err)
	}

	s.files = files
	s.next = 0
	s.state = Open
	return nil
}

func (s *fileSource) Read(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Open {
		return nil, ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := decodeImageFile(s.files[s.next])
	if err != nil {
		return nil, err
	}
	s.next = (s.next + 1) % len(s.files)
	s.seq++
	return &Frame{
		Seq:     s.seq,
		Taken:   time.Now(),
		TraceID: uuid.New().String(),
		Image:   img,
	}, nil
}

func (s *fileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Closed
	s.files = nil
	return nil
}

func (s *fileSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// listImages resolves the configured path to a non-empty, sorted list of
// image files.
func listImages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat image source: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read image directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", path)
	}
	sort.Strings(files)
	return files, nil
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}
