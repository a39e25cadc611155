package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/attention"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/logger"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/metrics"
)

// DefaultMaxImageBytes caps a posted frame.
const DefaultMaxImageBytes = 8 << 20

// AnalyzeResponse is the body of POST /analyze_frame.
type AnalyzeResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	// Set only with ?detail=1
	FaceFound *bool    `json:"face_found,omitempty"`
	EAR       *float64 `json:"ear,omitempty"`
	NoseX     *float64 `json:"nose_x,omitempty"`
}

const statusError = "error"

// Classifier is the part of attention.Classifier the server needs.
type Classifier interface {
	ClassifyBytes(ctx context.Context, data []byte) (attention.Result, error)
}

// AttentionServer classifies posted frames.
type AttentionServer struct {
	classifier Classifier
	metrics    *metrics.Metrics
	maxBytes   int64
	corsOrigin string
}

// NewAttentionServer wires the handlers. m may be nil; maxBytes <= 0 uses the default.
func NewAttentionServer(classifier Classifier, m *metrics.Metrics, maxBytes int64, corsOrigin string) *AttentionServer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &AttentionServer{
		classifier: classifier,
		metrics:    m,
		maxBytes:   maxBytes,
		corsOrigin: corsOrigin,
	}
}

// Handler exposes the HTTP handler for the server.
func (s *AttentionServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", allowMethods(serveHTML(attentionIndexHTML), http.MethodGet, http.MethodHead))
	mux.HandleFunc("/analyze_frame", corsMiddleware(s.corsOrigin, allowMethods(s.handleAnalyzeFrame, http.MethodPost)))
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

func (s *AttentionServer) handleAnalyzeFrame(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, start, "image too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.fail(w, start, "failed to read body", http.StatusBadRequest)
		return
	}

	res, err := s.classifier.ClassifyBytes(r.Context(), body)
	switch {
	case err == nil:
	case errors.Is(err, attention.ErrTooManyPixels):
		logger.Debug("Attention", "Rejected oversized image: %v", err)
		s.fail(w, start, "image too large", http.StatusRequestEntityTooLarge)
		return
	case errors.Is(err, attention.ErrInvalidImage):
		logger.Debug("Attention", "Rejected %d-byte body: %v", len(body), err)
		s.fail(w, start, "invalid image", http.StatusBadRequest)
		return
	case errors.Is(err, attention.ErrDetector):
		logger.Warn("Attention", "Landmark detection failed: %v", err)
		s.fail(w, start, "landmark detector unavailable", http.StatusBadGateway)
		return
	default:
		logger.Error("Attention", "Classification failed: %v", err)
		s.fail(w, start, "classification failed", http.StatusInternalServerError)
		return
	}

	resp := AnalyzeResponse{Status: res.Label.String()}
	if r.URL.Query().Get("detail") == "1" {
		resp.FaceFound = &res.FaceFound
		if res.EARMeasured {
			resp.EAR = &res.EAR
		}
		if res.FaceFound {
			resp.NoseX = &res.NoseX
		}
	}

	logger.Debug("Attention", "%s (face=%v ear=%.3f nose_x=%.3f) in %v",
		res.Label, res.FaceFound, res.EAR, res.NoseX, time.Since(start))
	s.metrics.Analyze(resp.Status, time.Since(start))
	writeJSON(w, resp)
}

func (s *AttentionServer) fail(w http.ResponseWriter, start time.Time, msg string, status int) {
	s.metrics.Analyze(statusError, time.Since(start))
	writeJSONWithStatus(w, AnalyzeResponse{Status: statusError, Error: msg}, status)
}

func (s *AttentionServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":          "ok",
		"max_image_bytes": s.maxBytes,
	})
}
