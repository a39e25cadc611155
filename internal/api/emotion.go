package api

import (
	"net/http"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/camera"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/emotion"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/metrics"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/stream"
)

// EmotionResponse is the body of GET /emotion.
type EmotionResponse struct {
	Emotion string `json:"emotion"`
}

// EmotionServer serves the live feed and the current emotion label.
type EmotionServer struct {
	state       *emotion.State
	cam         camera.Reader
	broadcaster *emotion.Broadcaster
	metrics     *metrics.Metrics
	corsOrigin  string
}

// NewEmotionServer wires the handlers. broadcaster and m may be nil.
func NewEmotionServer(state *emotion.State, cam camera.Reader, broadcaster *emotion.Broadcaster, m *metrics.Metrics, corsOrigin string) *EmotionServer {
	return &EmotionServer{
		state:       state,
		cam:         cam,
		broadcaster: broadcaster,
		metrics:     m,
		corsOrigin:  corsOrigin,
	}
}

// Handler exposes the HTTP handler for the server.
func (s *EmotionServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", allowMethods(serveHTML(emotionIndexHTML), http.MethodGet, http.MethodHead))
	mux.HandleFunc("/video_feed", corsMiddleware(s.corsOrigin, allowMethods(s.handleVideoFeed, http.MethodGet)))
	mux.HandleFunc("/emotion", corsMiddleware(s.corsOrigin, allowMethods(s.handleEmotion, http.MethodGet, http.MethodHead)))
	mux.HandleFunc("/emotion/stream", corsMiddleware(s.corsOrigin, allowMethods(s.handleEmotionStream, http.MethodGet)))
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

func (s *EmotionServer) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	stream.Serve(w, r, s.cam, s.metrics)
}

func (s *EmotionServer) handleEmotion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, EmotionResponse{Emotion: s.state.Get()})
}

func (s *EmotionServer) handleEmotionStream(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		http.Error(w, "Event stream disabled", http.StatusNotFound)
		return
	}

	id, eventCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	streamEventsFromChannel(w, r, eventCh, wantsProtobuf(r))
}

func (s *EmotionServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	payload := map[string]any{
		"status":          "ok",
		"emotion":         snap.Emotion,
		"emotion_version": snap.Version,
	}
	if !snap.UpdatedAt.IsZero() {
		payload["emotion_updated_at"] = float64(snap.UpdatedAt.UnixMilli()) / 1000
	}
	if s.metrics != nil {
		payload["stream_clients"] = s.metrics.StreamClients.Load()
		payload["frames_read"] = s.metrics.FramesRead.Load()
	}
	if s.broadcaster != nil {
		payload["event_clients"] = s.broadcaster.Clients()
	}
	writeJSON(w, payload)
}
