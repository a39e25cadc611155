// Package gocvcam opens a capture device through OpenCV.
package gocvcam

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/camera"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/logger"
	"github.com/dj-oyu/attention-monitor/vision-server/pkg/types"
)

// Config describes the capture source.
type Config struct {
	Source      string // device index ("0") or file/URL
	Width       int    // requested capture width (0 = driver default)
	Height      int    // requested capture height (0 = driver default)
	JPEGQuality int
}

// Device wraps a gocv VideoCapture. VideoCapture is not goroutine safe, so
// reads are serialized; each caller still receives a whole frame.
type Device struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	quality int
	seq     uint64
	closed  bool
}

// Open opens the capture source described by cfg.
func Open(cfg Config) (*Device, error) {
	var source any = cfg.Source
	if id, err := strconv.Atoi(cfg.Source); err == nil {
		source = id
	}

	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", cfg.Source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: capture %q not opened", camera.ErrUnavailable, cfg.Source)
	}

	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	logger.Info("Camera", "Opened capture %q (quality=%d)", cfg.Source, quality)

	return &Device{
		capture: capture,
		mat:     gocv.NewMat(),
		quality: quality,
	}, nil
}

// Read grabs one frame and encodes it as JPEG.
func (d *Device) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return types.Frame{}, fmt.Errorf("%w: device closed", camera.ErrUnavailable)
	}

	if ok := d.capture.Read(&d.mat); !ok || d.mat.Empty() {
		return types.Frame{}, fmt.Errorf("%w: read failed", camera.ErrUnavailable)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, d.mat, []int{int(gocv.IMWriteJpegQuality), d.quality})
	if err != nil {
		return types.Frame{}, fmt.Errorf("%w: encode: %v", camera.ErrUnavailable, err)
	}
	defer buf.Close()

	// NativeByteBuffer memory is released on Close
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	d.seq++
	return types.Frame{
		Data:      data,
		Timestamp: time.Now(),
		Seq:       d.seq,
		Width:     d.mat.Cols(),
		Height:    d.mat.Rows(),
	}, nil
}

// Close releases the capture device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.mat.Close()
	return d.capture.Close()
}
