// Package metrics exposes Prometheus instrumentation for the attendance loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Frame pipeline metrics
	FramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_frames_total",
			Help: "Total number of frames pulled from the camera",
		},
	)

	FrameFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_frame_failures_total",
			Help: "Total number of frame reads that failed",
		},
	)

	FramesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_frames_skipped_total",
			Help: "Total number of frames skipped as near-duplicates",
		},
	)

	CameraReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_camera_reconnects_total",
			Help: "Total number of camera reconnect attempts",
		},
	)

	// Recognition metrics
	FacesDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_faces_detected_total",
			Help: "Total number of faces detected in frames",
		},
	)

	FacesMatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_faces_matched_total",
			Help: "Total number of faces matched to a registered student",
		},
	)

	FacesUnmatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_faces_unmatched_total",
			Help: "Total number of detected faces without a gallery match",
		},
	)

	RecognizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollcall_recognize_duration_seconds",
			Help:    "Time spent detecting and matching faces per frame",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Attendance metrics
	AttendanceMarked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_attendance_marked_total",
			Help: "Total number of attendance writes by outcome",
		},
		[]string{"outcome"},
	)

	DebounceSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_debounce_suppressed_total",
			Help: "Total number of detections suppressed by the cooldown",
		},
	)

	StoreWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollcall_store_write_duration_seconds",
			Help:    "Time spent writing attendance records",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Gallery metrics
	GalleryStudents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollcall_gallery_students",
			Help: "Number of students with a valid encoding in the gallery",
		},
	)

	GalleryInvalid = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollcall_gallery_invalid_encodings",
			Help: "Number of students skipped for malformed encodings",
		},
	)

	// Session metrics
	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollcall_session_active",
			Help: "Whether a class window is currently active (1 = active)",
		},
	)

	OrchestratorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollcall_orchestrator_state",
			Help: "Current orchestrator state (1 on the active state, 0 elsewhere)",
		},
		[]string{"state"},
	)

	TickErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_tick_errors_total",
			Help: "Total number of loop ticks absorbed after an error",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(FramesTotal)
	prometheus.MustRegister(FrameFailures)
	prometheus.MustRegister(FramesSkipped)
	prometheus.MustRegister(CameraReconnects)
	prometheus.MustRegister(FacesDetected)
	prometheus.MustRegister(FacesMatched)
	prometheus.MustRegister(FacesUnmatched)
	prometheus.MustRegister(RecognizeDuration)
	prometheus.MustRegister(AttendanceMarked)
	prometheus.MustRegister(DebounceSuppressed)
	prometheus.MustRegister(StoreWriteDuration)
	prometheus.MustRegister(GalleryStudents)
	prometheus.MustRegister(GalleryInvalid)
	prometheus.MustRegister(SessionActive)
	prometheus.MustRegister(OrchestratorState)
	prometheus.MustRegister(TickErrors)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
