package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/facechain/internal/constants"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Backend  BackendConfig
	Models   ModelsConfig
	Detector DetectorConfig
	Matcher  MatcherConfig
	Capture  CaptureConfig
	Web      WebConfig
	LogLevel string
}

type BackendConfig struct {
	URL     string // face API base URL (GET /faces, POST /register, DELETE /faces/{id})
	AuthURL string // auth API base URL (POST /auth/login); defaults to URL
	Token   string // bearer token, optional when logging in through the web UI
}

type ModelsConfig struct {
	BaseURL string
	Dir     string
	Bundles []Bundle `yaml:"bundles"`
}

// Bundle is a single model bundle entry of the embedded manifest
type Bundle struct {
	Name     string `yaml:"name"`
	Manifest string `yaml:"manifest"`
}

type DetectorConfig struct {
	URL string
}

type MatcherConfig struct {
	Threshold float64
	UseHNSW   bool // seed matching from an HNSW index on large face sets
}

type CaptureConfig struct {
	Interval time.Duration
	Device   int
}

type WebConfig struct {
	Host          string
	Port          int
	SessionSecret string
	// AllowedOrigins receive CORS headers in addition to localhost
	AllowedOrigins []string
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float from the environment.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration accepts Go durations ("150ms") or a plain number of milliseconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}
	models.BaseURL = envString("MODEL_URL", constants.DefaultModelURL)
	models.Dir = envString("MODEL_DIR", constants.DefaultModelDir)

	backendURL := envString("FACE_API_URL", constants.DefaultFaceAPIURL)

	return &Config{
		Backend: BackendConfig{
			URL:     backendURL,
			AuthURL: envString("AUTH_API_URL", backendURL),
			Token:   os.Getenv("FACE_TOKEN"),
		},
		Models: models,
		Detector: DetectorConfig{
			URL: envString("DETECTOR_URL", constants.DefaultDetectorURL),
		},
		Matcher: MatcherConfig{
			Threshold: envFloat("MATCH_THRESHOLD", constants.DefaultDistanceThreshold),
			UseHNSW:   os.Getenv("MATCH_HNSW") == "true",
		},
		Capture: CaptureConfig{
			Interval: envDuration("CAPTURE_INTERVAL", constants.DefaultCaptureInterval),
			Device:   envInt("CAMERA_DEVICE", constants.DefaultCameraDevice),
		},
		Web: WebConfig{
			Host:           os.Getenv("WEB_HOST"),
			Port:           envInt("WEB_PORT", 0),
			SessionSecret:  os.Getenv("WEB_SESSION_SECRET"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		LogLevel: envString("LOG_LEVEL", "info"),
	}
}
