package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/logger"
)

// noDotenv points Load at a file that does not exist.
func noDotenv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "uses defaults when nothing is set",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, ":5000", c.HTTPAddr)
				assert.Equal(t, ":5001", c.AttentionAddr)
				assert.Equal(t, "0", c.CameraSource)
				assert.Equal(t, 0.2, c.EyesClosedEAR)
				assert.Equal(t, 0.3, c.GazeMinX)
				assert.Equal(t, 0.7, c.GazeMaxX)
				assert.False(t, c.ReportNoFace)
				assert.Equal(t, int64(8<<20), c.MaxImageBytes)
				assert.Equal(t, 40_000_000, c.MaxImagePixels)
				assert.Equal(t, ":9100", c.MetricsAddr)
				assert.Equal(t, ":9101", c.AttentionMetricsAddr, "attention metrics do not clash with the server's")
				assert.Equal(t, 10*time.Millisecond, c.RetryInitial)
			},
		},
		{
			name: "reads prefixed variables",
			envVars: map[string]string{
				"VISION_HTTP_ADDR":              ":8080",
				"VISION_DEEPFACE_URL":           "http://deepface:5005",
				"VISION_DEEPFACE_TIMEOUT":       "3s",
				"VISION_REPORT_NO_FACE":         "true",
				"VISION_EYES_CLOSED_EAR":        "0.18",
				"VISION_CAMERA_DIR":             "/frames",
				"VISION_INFERENCE_INTERVAL":     "250ms",
				"VISION_ATTENTION_METRICS_ADDR": ":9300",
				"VISION_MAX_IMAGE_PIXELS":       "1000000",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, ":8080", c.HTTPAddr)
				assert.Equal(t, "http://deepface:5005", c.DeepFaceURL)
				assert.Equal(t, 3*time.Second, c.DeepFaceTimeout)
				assert.True(t, c.ReportNoFace)
				assert.Equal(t, 0.18, c.EyesClosedEAR)
				assert.Equal(t, "/frames", c.CameraDir)
				assert.Equal(t, 250*time.Millisecond, c.InferenceInterval)
				assert.Equal(t, ":9300", c.AttentionMetricsAddr)
				assert.Equal(t, 1_000_000, c.MaxImagePixels)
			},
		},
		{
			name:    "rejects malformed duration",
			envVars: map[string]string{"VISION_FACEMESH_TIMEOUT": "soon"},
			wantErr: true,
		},
		{
			name:    "rejects inverted gaze window",
			envVars: map[string]string{"VISION_GAZE_MIN_X": "0.8"},
			wantErr: true,
		},
		{
			name:    "rejects unknown log level",
			envVars: map[string]string{"VISION_LOG_LEVEL": "chatty"},
			wantErr: true,
		},
		{
			name:    "rejects non-positive pixel limit",
			envVars: map[string]string{"VISION_MAX_IMAGE_PIXELS": "0"},
			wantErr: true,
		},
		{
			name:    "rejects jpeg quality out of range",
			envVars: map[string]string{"VISION_JPEG_QUALITY": "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load(noDotenv(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_Dotenv(t *testing.T) {
	// Register cleanup for the keys the dotenv file will set, then clear them.
	for _, k := range []string{"VISION_FACEMESH_ADDRESS", "VISION_LOG_LEVEL"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Setenv("VISION_HTTP_ADDR", ":7000")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"VISION_FACEMESH_ADDRESS=/run/facemesh.sock\n"+
			"VISION_LOG_LEVEL=debug\n"+
			"VISION_HTTP_ADDR=:9999\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/run/facemesh.sock", cfg.FaceMeshAddress)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":7000", cfg.HTTPAddr, "environment wins over dotenv")
}

func TestComponentConfigs(t *testing.T) {
	t.Setenv("VISION_DEEPFACE_RETRIES", "4")
	t.Setenv("VISION_CAMERA_RETRY_MAX_ATTEMPTS", "6")
	t.Setenv("VISION_LOG_LEVEL", "warn")
	t.Setenv("VISION_FACEMESH_NETWORK", "tcp")
	t.Setenv("VISION_FACEMESH_ADDRESS", "127.0.0.1:7070")

	cfg, err := Load(noDotenv(t))
	require.NoError(t, err)

	df := cfg.DeepFace()
	assert.Equal(t, "http://localhost:5005", df.BaseURL)
	assert.Equal(t, 4, df.RetryCount)
	assert.Equal(t, "opencv", df.Detector)

	fm := cfg.FaceMesh()
	assert.Equal(t, "tcp", fm.Network)
	assert.Equal(t, "127.0.0.1:7070", fm.Address)

	loop := cfg.Loop()
	assert.Equal(t, 6, loop.Retry.MaxRetries)
	assert.Equal(t, time.Second, loop.Retry.MaxInterval)

	att := cfg.Attention()
	assert.Equal(t, 640, att.MaxDetectDimension)
	assert.Equal(t, 40_000_000, att.MaxPixels)
	assert.NoError(t, att.Thresholds.Validate())

	assert.Equal(t, logger.WARN, cfg.Logger().Level)
}
