package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/rollcall/internal/orchestrator"
)

type stubSource struct{}

func (stubSource) Status() orchestrator.Status {
	return orchestrator.Status{State: "idle", CameraState: "closed"}
}

type stubPinger struct{}

func (stubPinger) Ping(ctx context.Context) error { return nil }

func TestRoutes(t *testing.T) {
	server := NewServer(":0", stubSource{}, stubPinger{})

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/status", http.StatusOK, `"state":"idle"`},
		{"/metrics", http.StatusOK, "rollcall_frames_total"},
		{"/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %q, got: %s", tt.wantBody, rec.Body.String())
			}
		})
	}
}
