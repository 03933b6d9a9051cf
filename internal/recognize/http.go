package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultEngineTimeout = 10 * time.Second

// httpEngine talks to a face recognition sidecar over JSON/HTTP. The
// sidecar receives a JPEG and answers with every face it found plus the
// 128-dim encoding per face.
type httpEngine struct {
	parsedURL *url.URL
	client    *http.Client
}

func newHTTPEngine(cfg EngineConfig) (Engine, error) {
	if cfg.URL == "" {
		return nil, errors.New("http face engine needs a base URL")
	}
	parsed, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid face engine URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid face engine URL scheme %q: must be http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid face engine URL: missing host")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEngineTimeout
	}
	return &httpEngine{
		parsedURL: parsed,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (e *httpEngine) Name() string { return "http" }

// detectRequest is the sidecar request payload.
type detectRequest struct {
	Image string `json:"image"` // base64 JPEG
}

// detectResponse is the sidecar answer.
type detectResponse struct {
	Faces []struct {
		X        int       `json:"x"`
		Y        int       `json:"y"`
		Width    int       `json:"width"`
		Height   int       `json:"height"`
		Encoding []float32 `json:"encoding"`
	} `json:"faces"`
	Error string `json:"error,omitempty"`
}

func (e *httpEngine) Detect(ctx context.Context, img image.Image) ([]Observation, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	body, err := json.Marshal(detectRequest{
		Image: base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.parsedURL.String()+"/api/v1/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call face engine: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read engine response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("face engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded detectResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("face engine error: %s", decoded.Error)
	}

	observations := make([]Observation, 0, len(decoded.Faces))
	for _, f := range decoded.Faces {
		observations = append(observations, Observation{
			Box:      Box{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height},
			Encoding: f.Encoding,
		})
	}
	return observations, nil
}
