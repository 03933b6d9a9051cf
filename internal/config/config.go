package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database DatabaseConfig
	Engine   EngineConfig
	Camera   CameraConfig
	Web      WebConfig
	Log      LogConfig
	Tuning   TuningConfig
}

type DatabaseConfig struct {
	Driver       string // "mysql" (default) or "postgres"
	Host         string
	User         string
	Password     string
	Name         string
	Port         int
	URL          string // PostgreSQL connection URL, used when Driver == "postgres"
	MaxOpenConns int    // Maximum open connections (default 5)
	MaxIdleConns int    // Maximum idle connections (default 2)
}

// DSN builds a go-sql-driver DSN from the discrete MySQL parameters.
// parseTime=true makes DATE/DATETIME columns scan into time.Time.
func (c *DatabaseConfig) DSN() string {
	return c.User + ":" + c.Password + "@tcp(" + c.Host + ":" + strconv.Itoa(c.Port) + ")/" + c.Name + "?parseTime=true"
}

type EngineConfig struct {
	Provider  string        // engine implementation, "http" (default) or "goface" when built in
	URL       string        // face engine sidecar base URL (default http://localhost:8090)
	Timeout   time.Duration // per-request timeout
	ModelsDir string        // dlib model directory for the goface provider
}

type CameraConfig struct {
	Backends []string // priority-ordered backend names (mjpeg, snapshot, file, gst)
	URL      string   // stream or snapshot endpoint, backend-dependent
	Device   string   // local capture device for the gst backend
	Path     string   // file backend source path
	Dedupe   bool     // drop consecutive identical snapshot stills
}

type WebConfig struct {
	ListenAddr string // status server bind address, empty disables it
}

type LogConfig struct {
	Level string
	JSON  bool
}

// TuningConfig carries the loop cadences and thresholds. Defaults ship in the
// embedded defaults.yaml; every value can be overridden through environment
// variables named in that file.
type TuningConfig struct {
	Orchestrator struct {
		IdlePollInterval Duration `yaml:"idle_poll_interval"`
		FrameInterval    Duration `yaml:"frame_interval"`
		OpTimeout        Duration `yaml:"op_timeout"`
	} `yaml:"orchestrator"`
	Camera struct {
		RetryDelay    Duration `yaml:"retry_delay"`
		MaxRetryDelay Duration `yaml:"max_retry_delay"`
		ReadTimeout   Duration `yaml:"read_timeout"`
	} `yaml:"camera"`
	Recognizer struct {
		MatchThreshold float64 `yaml:"match_threshold"`
		FrameMaxEdge   int     `yaml:"frame_max_edge"`
	} `yaml:"recognizer"`
	Reconciler struct {
		DebounceCooldown Duration `yaml:"debounce_cooldown"`
	} `yaml:"reconciler"`
}

// Duration wraps time.Duration so yaml values like "500ms" decode directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envStr reads an environment variable, falling back to the default when unset.
func envStr(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envBool treats "1", "true" and "yes" (any case) as true.
func envBool(key string, defaultVal bool) bool {
	s := strings.ToLower(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	return s == "1" || s == "true" || s == "yes"
}

// envDuration reads a Go duration string, falling back on parse failure.
func envDuration(key string, defaultVal Duration) Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if parsed, err := time.ParseDuration(s); err == nil && parsed > 0 {
		return Duration(parsed)
	}
	return defaultVal
}

// envFloat reads a float in (0, 2], falling back when unset, invalid or
// out of range. Face distances that matter sit well below 1.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 2 {
		return f
	}
	return defaultVal
}

// envList splits a comma-separated environment variable into trimmed entries.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func Load() *Config {
	var tuning TuningConfig
	if err := yaml.Unmarshal(defaultsYAML, &tuning); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	tuning.Orchestrator.IdlePollInterval = envDuration("IDLE_POLL_INTERVAL", tuning.Orchestrator.IdlePollInterval)
	tuning.Orchestrator.FrameInterval = envDuration("FRAME_INTERVAL", tuning.Orchestrator.FrameInterval)
	tuning.Orchestrator.OpTimeout = envDuration("OP_TIMEOUT", tuning.Orchestrator.OpTimeout)
	tuning.Camera.RetryDelay = envDuration("CAMERA_RETRY_DELAY", tuning.Camera.RetryDelay)
	tuning.Camera.MaxRetryDelay = envDuration("CAMERA_MAX_RETRY_DELAY", tuning.Camera.MaxRetryDelay)
	tuning.Camera.ReadTimeout = envDuration("CAMERA_READ_TIMEOUT", tuning.Camera.ReadTimeout)
	tuning.Recognizer.MatchThreshold = envFloat("MATCH_THRESHOLD", tuning.Recognizer.MatchThreshold)
	tuning.Recognizer.FrameMaxEdge = envInt("FRAME_MAX_EDGE", tuning.Recognizer.FrameMaxEdge)
	tuning.Reconciler.DebounceCooldown = envDuration("DEBOUNCE_COOLDOWN", tuning.Reconciler.DebounceCooldown)

	return &Config{
		Database: DatabaseConfig{
			Driver:       envStr("DB_DRIVER", "mysql"),
			Host:         envStr("DB_HOST", "localhost"),
			User:         os.Getenv("DB_USER"),
			Password:     os.Getenv("DB_PASSWORD"),
			Name:         os.Getenv("DB_NAME"),
			Port:         envInt("DB_PORT", 3306),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 5),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 2),
		},
		Engine: EngineConfig{
			Provider:  envStr("ENGINE_PROVIDER", "http"),
			URL:       envStr("ENGINE_URL", "http://localhost:8090"),
			Timeout:   envDuration("ENGINE_TIMEOUT", Duration(10*time.Second)).Std(),
			ModelsDir: os.Getenv("FACE_MODELS_DIR"),
		},
		Camera: CameraConfig{
			Backends: envList("CAMERA_BACKENDS", []string{"mjpeg", "snapshot"}),
			URL:      os.Getenv("CAMERA_URL"),
			Device:   os.Getenv("CAMERA_DEVICE"),
			Path:     os.Getenv("CAMERA_PATH"),
			Dedupe:   envBool("CAMERA_DEDUPE", true),
		},
		Web: WebConfig{
			ListenAddr: envStr("LISTEN_ADDR", ":8080"),
		},
		Log: LogConfig{
			Level: envStr("LOG_LEVEL", "info"),
			JSON:  envBool("LOG_JSON", false),
		},
		Tuning: tuning,
	}
}
