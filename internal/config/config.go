// Package config loads runtime settings from the environment. Binaries load a
// Config first and then let command-line flags override it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/attention"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/deepface"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/emotion"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/facemesh"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/logger"
)

// Prefix is prepended to every variable name, e.g. VISION_HTTP_ADDR.
const Prefix = "VISION"

type Config struct {
	// Server
	HTTPAddr       string `envconfig:"HTTP_ADDR" default:":5000"`
	AttentionAddr  string `envconfig:"ATTENTION_ADDR" default:":5001"`
	MetricsAddr    string `envconfig:"METRICS_ADDR" default:":9100"`
	CORSOrigin     string `envconfig:"CORS_ORIGIN" default:"*"`
	MaxImageBytes  int64  `envconfig:"MAX_IMAGE_BYTES" default:"8388608"`
	MaxImagePixels int    `envconfig:"MAX_IMAGE_PIXELS" default:"40000000"`

	// Attention binary; empty disables its metrics server
	AttentionMetricsAddr string `envconfig:"ATTENTION_METRICS_ADDR" default:":9101"`

	// Camera
	CameraSource   string        `envconfig:"CAMERA_SOURCE" default:"0"`
	CameraDir      string        `envconfig:"CAMERA_DIR"`
	CameraWidth    int           `envconfig:"CAMERA_WIDTH" default:"640"`
	CameraHeight   int           `envconfig:"CAMERA_HEIGHT" default:"480"`
	CameraInterval time.Duration `envconfig:"CAMERA_INTERVAL" default:"33ms"`
	JPEGQuality    int           `envconfig:"JPEG_QUALITY" default:"80"`

	// Emotion model
	DeepFaceURL      string        `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	DeepFaceDetector string        `envconfig:"DEEPFACE_DETECTOR" default:"opencv"`
	DeepFaceTimeout  time.Duration `envconfig:"DEEPFACE_TIMEOUT" default:"10s"`
	DeepFaceRetries  int           `envconfig:"DEEPFACE_RETRIES" default:"1"`

	// Emotion loop
	InferenceInterval time.Duration `envconfig:"INFERENCE_INTERVAL" default:"0s"`
	RetryInitial      time.Duration `envconfig:"CAMERA_RETRY_INITIAL" default:"10ms"`
	RetryMax          time.Duration `envconfig:"CAMERA_RETRY_MAX" default:"1s"`
	RetryMaxAttempts  int           `envconfig:"CAMERA_RETRY_MAX_ATTEMPTS" default:"0"`

	// Landmark detector
	FaceMeshNetwork string        `envconfig:"FACEMESH_NETWORK" default:"unix"`
	FaceMeshAddress string        `envconfig:"FACEMESH_ADDRESS" default:"/tmp/facemesh.sock"`
	FaceMeshTimeout time.Duration `envconfig:"FACEMESH_TIMEOUT" default:"2s"`

	// Attention thresholds
	EyesClosedEAR      float64 `envconfig:"EYES_CLOSED_EAR" default:"0.2"`
	GazeMinX           float64 `envconfig:"GAZE_MIN_X" default:"0.3"`
	GazeMaxX           float64 `envconfig:"GAZE_MAX_X" default:"0.7"`
	ReportNoFace       bool    `envconfig:"REPORT_NO_FACE" default:"false"`
	MaxDetectDimension int     `envconfig:"MAX_DETECT_DIMENSION" default:"640"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogColor  bool   `envconfig:"LOG_COLOR" default:"true"`
	LogFile   string `envconfig:"LOG_FILE"`
	LogMaxMB  int    `envconfig:"LOG_MAX_MB" default:"100"`
	LogMaxAge int    `envconfig:"LOG_MAX_AGE_DAYS" default:"7"`
}

// Load reads the optional dotenv files (".env" when none are given) and then
// the VISION_* environment. Missing dotenv files are not an error; variables
// already set in the environment win over dotenv values.
func Load(dotenv ...string) (*Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("config: jpeg quality %d out of range 1-100", c.JPEGQuality)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("config: max image bytes must be positive")
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("config: max image pixels must be positive")
	}
	return nil
}

// Thresholds returns the attention decision boundaries.
func (c *Config) Thresholds() attention.Thresholds {
	return attention.Thresholds{
		EyesClosedEAR: c.EyesClosedEAR,
		GazeMinX:      c.GazeMinX,
		GazeMaxX:      c.GazeMaxX,
	}
}

// Attention returns the classifier configuration.
func (c *Config) Attention() attention.Config {
	return attention.Config{
		Thresholds:         c.Thresholds(),
		ReportNoFace:       c.ReportNoFace,
		MaxDetectDimension: c.MaxDetectDimension,
		MaxPixels:          c.MaxImagePixels,
	}
}

// DeepFace returns the emotion model client configuration.
func (c *Config) DeepFace() deepface.Config {
	cfg := deepface.DefaultConfig()
	cfg.BaseURL = c.DeepFaceURL
	cfg.Detector = c.DeepFaceDetector
	cfg.Timeout = c.DeepFaceTimeout
	cfg.RetryCount = c.DeepFaceRetries
	return cfg
}

// FaceMesh returns the landmark detector client configuration.
func (c *Config) FaceMesh() facemesh.Config {
	cfg := facemesh.DefaultConfig()
	cfg.Network = c.FaceMeshNetwork
	cfg.Address = c.FaceMeshAddress
	cfg.Timeout = c.FaceMeshTimeout
	return cfg
}

// Loop returns the emotion loop configuration.
func (c *Config) Loop() emotion.LoopConfig {
	retry := emotion.DefaultRetryPolicy()
	retry.InitialInterval = c.RetryInitial
	retry.MaxInterval = c.RetryMax
	retry.MaxRetries = c.RetryMaxAttempts
	return emotion.LoopConfig{Retry: retry, Interval: c.InferenceInterval}
}

// Logger returns the logger options; the level falls back to INFO if unparsable.
func (c *Config) Logger() logger.Options {
	level, _ := logger.ParseLevel(c.LogLevel)
	return logger.Options{
		Level:      level,
		Color:      c.LogColor,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxMB,
		MaxAgeDays: c.LogMaxAge,
	}
}
