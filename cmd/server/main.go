package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/api"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/camera"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/camera/gocvcam"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/config"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/deepface"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/emotion"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/logger"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/metrics"
)

// Server runs the emotion loop and serves the live feed.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cfg           *config.Config
	metrics       *metrics.Metrics
	cam           camera.Device
	state         *emotion.State
	loop          *emotion.Loop
	broadcaster   *emotion.Broadcaster
	httpServer    *http.Server
	metricsServer *http.Server
	pprofAddr     string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var pprofAddr string

	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP server address")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Metrics server address (empty to disable)")
	flag.StringVar(&pprofAddr, "pprof", "", "pprof server address (empty to disable)")
	flag.StringVar(&cfg.CameraSource, "camera", cfg.CameraSource, "Capture device index or video URL")
	flag.StringVar(&cfg.CameraDir, "camera-dir", cfg.CameraDir, "Replay JPEG frames from this directory instead of a device")
	flag.StringVar(&cfg.DeepFaceURL, "deepface", cfg.DeepFaceURL, "DeepFace service base URL")
	flag.DurationVar(&cfg.InferenceInterval, "interval", cfg.InferenceInterval, "Minimum time between emotion inferences")
	flag.StringVar(&cfg.CORSOrigin, "cors-origin", cfg.CORSOrigin, "Access-Control-Allow-Origin value")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&cfg.LogColor, "log-color", cfg.LogColor, "Enable colored log output")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this rotating file")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.Logger())
	defer logger.Close()

	logger.Info("Main", "Vision server starting...")
	logger.Info("Main", "Log level: %s", logger.GetLevel())

	srv, err := NewServer(cfg, pprofAddr)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")

	if err := srv.Shutdown(); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}

	logger.Info("Main", "Server stopped")
}

// openCamera picks the frame source: a replay directory when set, the
// capture device otherwise.
func openCamera(cfg *config.Config) (camera.Device, error) {
	if cfg.CameraDir != "" {
		return camera.LoadDir(cfg.CameraDir, cfg.CameraInterval)
	}
	return gocvcam.Open(gocvcam.Config{
		Source:      cfg.CameraSource,
		Width:       cfg.CameraWidth,
		Height:      cfg.CameraHeight,
		JPEGQuality: cfg.JPEGQuality,
	})
}

// NewServer creates the pipeline. The camera is opened once and shared by
// the emotion loop and every stream client.
func NewServer(cfg *config.Config, pprofAddr string) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := metrics.New()

	cam, err := openCamera(cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open camera: %w", err)
	}

	state := emotion.NewState()
	model := deepface.NewModel(cfg.DeepFace())

	loop, err := emotion.NewLoop(cam, model, state, cfg.Loop(), m)
	if err != nil {
		cam.Close()
		cancel()
		return nil, fmt.Errorf("failed to create emotion loop: %w", err)
	}

	broadcaster := emotion.NewBroadcaster(state)
	handler := api.NewEmotionServer(state, cam, broadcaster, m, cfg.CORSOrigin).Handler()

	srv := &Server{
		ctx:         ctx,
		cancel:      cancel,
		cfg:         cfg,
		metrics:     m,
		cam:         cam,
		state:       state,
		loop:        loop,
		broadcaster: broadcaster,
		pprofAddr:   pprofAddr,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			// Streams end when the server context is cancelled
			BaseContext: func(net.Listener) context.Context { return ctx },
		},
	}
	if cfg.MetricsAddr != "" {
		srv.metricsServer = m.NewServer(cfg.MetricsAddr)
	}

	return srv, nil
}

// Start starts all server components
func (s *Server) Start() error {
	logger.Info("Main", "Starting vision server...")
	logger.Info("Main", "  HTTP server: %s", s.cfg.HTTPAddr)
	logger.Info("Main", "  DeepFace: %s", s.cfg.DeepFaceURL)
	if s.cfg.CameraDir != "" {
		logger.Info("Main", "  Camera: replaying %s", s.cfg.CameraDir)
	} else {
		logger.Info("Main", "  Camera: %s", s.cfg.CameraSource)
	}

	if s.pprofAddr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", s.pprofAddr)
			if err := http.ListenAndServe(s.pprofAddr, nil); err != nil {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	if s.metricsServer != nil {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Main", "Metrics server error: %v", err)
			}
		}()
	}

	go func() {
		logger.Info("Main", "Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Main", "HTTP server error: %v", err)
		}
	}()

	s.broadcaster.Start()

	s.wg.Add(1)
	go s.runLoop()

	logger.Info("Main", "Server started successfully")
	return nil
}

// runLoop keeps the emotion label current until shutdown.
func (s *Server) runLoop() {
	defer s.wg.Done()

	if err := s.loop.Run(s.ctx); err != nil {
		// The feed and /emotion stay up; the label freezes at its last value.
		logger.Error("Main", "Emotion loop stopped: %v", err)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	// Cancel context to stop the loop and open streams
	s.cancel()
	s.broadcaster.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	s.wg.Wait()

	if err := s.cam.Close(); err != nil {
		errs = append(errs, fmt.Errorf("camera: %w", err))
	}

	return errors.Join(errs...)
}
