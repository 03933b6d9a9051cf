package config

import (
	"os"
	"testing"
	"time"
)

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		User:     "attendance",
		Password: "secret",
		Name:     "school",
		Port:     3307,
	}

	dsn := cfg.DSN()

	expected := "attendance:secret@tcp(db.example.com:3307)/school?parseTime=true"
	if dsn != expected {
		t.Errorf("expected DSN '%s', got '%s'", expected, dsn)
	}
}

func TestLoad_DatabaseDefaults(t *testing.T) {
	os.Unsetenv("DB_DRIVER")
	os.Unsetenv("DB_HOST")
	os.Unsetenv("DB_PORT")

	cfg := Load()

	if cfg.Database.Driver != "mysql" {
		t.Errorf("expected default driver 'mysql', got '%s'", cfg.Database.Driver)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("expected default host 'localhost', got '%s'", cfg.Database.Host)
	}
	if cfg.Database.Port != 3306 {
		t.Errorf("expected default port 3306, got %d", cfg.Database.Port)
	}
}

func TestLoad_DatabaseFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "10.0.0.5")
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "attendance")
	t.Setenv("DB_PORT", "3308")

	cfg := Load()

	if cfg.Database.Host != "10.0.0.5" {
		t.Errorf("expected host '10.0.0.5', got '%s'", cfg.Database.Host)
	}
	if cfg.Database.User != "root" {
		t.Errorf("expected user 'root', got '%s'", cfg.Database.User)
	}
	if cfg.Database.Name != "attendance" {
		t.Errorf("expected name 'attendance', got '%s'", cfg.Database.Name)
	}
	if cfg.Database.Port != 3308 {
		t.Errorf("expected port 3308, got %d", cfg.Database.Port)
	}
}

func TestLoad_InvalidPortFallsBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	cfg := Load()

	if cfg.Database.Port != 3306 {
		t.Errorf("expected default port 3306 for invalid input, got %d", cfg.Database.Port)
	}
}

func TestLoad_NegativePortFallsBack(t *testing.T) {
	t.Setenv("DB_PORT", "-1")

	cfg := Load()

	if cfg.Database.Port != 3306 {
		t.Errorf("expected default port 3306 for negative input, got %d", cfg.Database.Port)
	}
}

func TestLoad_TuningDefaults(t *testing.T) {
	os.Unsetenv("IDLE_POLL_INTERVAL")
	os.Unsetenv("FRAME_INTERVAL")
	os.Unsetenv("DEBOUNCE_COOLDOWN")
	os.Unsetenv("MATCH_THRESHOLD")

	cfg := Load()

	if cfg.Tuning.Orchestrator.IdlePollInterval.Std() != 10*time.Second {
		t.Errorf("expected idle poll interval 10s, got %v", cfg.Tuning.Orchestrator.IdlePollInterval.Std())
	}
	if cfg.Tuning.Orchestrator.FrameInterval.Std() != 500*time.Millisecond {
		t.Errorf("expected frame interval 500ms, got %v", cfg.Tuning.Orchestrator.FrameInterval.Std())
	}
	if cfg.Tuning.Reconciler.DebounceCooldown.Std() != 3*time.Second {
		t.Errorf("expected debounce cooldown 3s, got %v", cfg.Tuning.Reconciler.DebounceCooldown.Std())
	}
	if cfg.Tuning.Recognizer.MatchThreshold != 0.6 {
		t.Errorf("expected match threshold 0.6, got %f", cfg.Tuning.Recognizer.MatchThreshold)
	}
	if cfg.Tuning.Recognizer.FrameMaxEdge != 320 {
		t.Errorf("expected frame max edge 320, got %d", cfg.Tuning.Recognizer.FrameMaxEdge)
	}
}

func TestLoad_TuningEnvOverride(t *testing.T) {
	t.Setenv("DEBOUNCE_COOLDOWN", "7s")
	t.Setenv("MATCH_THRESHOLD", "0.45")

	cfg := Load()

	if cfg.Tuning.Reconciler.DebounceCooldown.Std() != 7*time.Second {
		t.Errorf("expected debounce cooldown 7s, got %v", cfg.Tuning.Reconciler.DebounceCooldown.Std())
	}
	if cfg.Tuning.Recognizer.MatchThreshold != 0.45 {
		t.Errorf("expected match threshold 0.45, got %f", cfg.Tuning.Recognizer.MatchThreshold)
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DEBOUNCE_COOLDOWN", "three seconds")

	cfg := Load()

	if cfg.Tuning.Reconciler.DebounceCooldown.Std() != 3*time.Second {
		t.Errorf("expected default cooldown 3s for invalid input, got %v", cfg.Tuning.Reconciler.DebounceCooldown.Std())
	}
}

func TestLoad_ThresholdOutOfRangeFallsBack(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "5.0")

	cfg := Load()

	if cfg.Tuning.Recognizer.MatchThreshold != 0.6 {
		t.Errorf("expected default threshold 0.6 for out-of-range input, got %f", cfg.Tuning.Recognizer.MatchThreshold)
	}
}

func TestLoad_CameraBackendsDefault(t *testing.T) {
	os.Unsetenv("CAMERA_BACKENDS")

	cfg := Load()

	if len(cfg.Camera.Backends) != 2 || cfg.Camera.Backends[0] != "mjpeg" || cfg.Camera.Backends[1] != "snapshot" {
		t.Errorf("expected default backends [mjpeg snapshot], got %v", cfg.Camera.Backends)
	}
}

func TestLoad_CameraBackendsFromEnv(t *testing.T) {
	t.Setenv("CAMERA_BACKENDS", "gst, file ,mjpeg")

	cfg := Load()

	want := []string{"gst", "file", "mjpeg"}
	if len(cfg.Camera.Backends) != len(want) {
		t.Fatalf("expected %d backends, got %v", len(want), cfg.Camera.Backends)
	}
	for i, b := range want {
		if cfg.Camera.Backends[i] != b {
			t.Errorf("backend %d: expected '%s', got '%s'", i, b, cfg.Camera.Backends[i])
		}
	}
}

func TestLoad_LogDefaults(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("LOG_JSON")

	cfg := Load()

	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got '%s'", cfg.Log.Level)
	}
	if cfg.Log.JSON {
		t.Error("expected JSON logging disabled by default")
	}
}

func TestLoad_LogJSONEnv(t *testing.T) {
	t.Setenv("LOG_JSON", "true")

	cfg := Load()

	if !cfg.Log.JSON {
		t.Error("expected JSON logging enabled")
	}
}
