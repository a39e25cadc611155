package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/api"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/attention"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/config"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/facemesh"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/logger"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	flag.StringVar(&cfg.AttentionAddr, "http", cfg.AttentionAddr, "HTTP server address")
	flag.StringVar(&cfg.AttentionMetricsAddr, "metrics", cfg.AttentionMetricsAddr, "Metrics server address (empty to disable)")
	flag.StringVar(&cfg.FaceMeshNetwork, "facemesh-network", cfg.FaceMeshNetwork, "Face mesh service network (unix, tcp)")
	flag.StringVar(&cfg.FaceMeshAddress, "facemesh", cfg.FaceMeshAddress, "Face mesh service address")
	flag.Float64Var(&cfg.EyesClosedEAR, "ear-threshold", cfg.EyesClosedEAR, "Eye aspect ratio below which eyes count as closed")
	flag.Float64Var(&cfg.GazeMinX, "gaze-min", cfg.GazeMinX, "Lower bound of the on-screen nose x range")
	flag.Float64Var(&cfg.GazeMaxX, "gaze-max", cfg.GazeMaxX, "Upper bound of the on-screen nose x range")
	flag.BoolVar(&cfg.ReportNoFace, "report-no-face", cfg.ReportNoFace, "Answer no_face instead of away when no face is found")
	flag.Int64Var(&cfg.MaxImageBytes, "max-image-bytes", cfg.MaxImageBytes, "Largest accepted frame upload")
	flag.IntVar(&cfg.MaxImagePixels, "max-image-pixels", cfg.MaxImagePixels, "Largest accepted frame area in pixels")
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

	detector, err := facemesh.NewClient(cfg.FaceMesh())
	if err != nil {
		log.Fatalf("Failed to create face mesh client: %v", err)
	}

	classifier, err := attention.NewClassifier(detector, cfg.Attention())
	if err != nil {
		log.Fatalf("Failed to create classifier: %v", err)
	}

	m := metrics.New()
	server := api.NewAttentionServer(classifier, m, cfg.MaxImageBytes, cfg.CORSOrigin)

	logger.Info("Main", "Attention server listening on %s", cfg.AttentionAddr)
	logger.Info("Main", "Face mesh: %s://%s", cfg.FaceMeshNetwork, cfg.FaceMeshAddress)
	logger.Info("Main", "Thresholds: ear<%.2f gaze=[%.2f, %.2f] report_no_face=%v",
		cfg.EyesClosedEAR, cfg.GazeMinX, cfg.GazeMaxX, cfg.ReportNoFace)
	logger.Info("Main", "Log level: %s", logger.GetLevel())

	httpServer := &http.Server{
		Addr:              cfg.AttentionAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.AttentionMetricsAddr != "" {
		metricsServer = m.NewServer(cfg.AttentionMetricsAddr)
		go func() {
			logger.Info("Main", "Starting metrics server on %s", cfg.AttentionMetricsAddr)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Main", "Metrics server error: %v", err)
			}
		}()
	}

	go func() {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}

	logger.Info("Main", "Server stopped")
}
