// Package stream turns camera reads into a multipart/x-mixed-replace MJPEG body.
package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/camera"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/logger"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/metrics"
)

const (
	// Boundary separates parts of the stream.
	Boundary = "frame"
	// ContentType is the response type of an MJPEG stream.
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary
)

var (
	partHeader  = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")
	partTrailer = []byte("\r\n")
)

// Part frames one JPEG payload as a multipart element.
func Part(jpeg []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(partHeader) + len(jpeg) + len(partTrailer))
	buf.Write(partHeader)
	buf.Write(jpeg)
	buf.Write(partTrailer)
	return buf.Bytes()
}

// Generator pulls one frame from the camera per Next call. It starts at the
// live frame and ends for good on the first failed read. Use one per client.
type Generator struct {
	cam  camera.Reader
	err  error
	done bool
	sent uint64
}

// NewGenerator returns a fresh sequence over cam.
func NewGenerator(cam camera.Reader) *Generator {
	return &Generator{cam: cam}
}

// Next returns the next framed part. After the sequence ends it returns
// io.EOF; Err reports why it ended.
func (g *Generator) Next(ctx context.Context) ([]byte, error) {
	if g.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		g.finish(err)
		return nil, io.EOF
	}

	frame, err := g.cam.Read(ctx)
	if err != nil {
		g.finish(err)
		return nil, io.EOF
	}
	if frame.Empty() {
		g.finish(fmt.Errorf("%w: empty frame #%d", camera.ErrUnavailable, frame.Seq))
		return nil, io.EOF
	}

	g.sent++
	return Part(frame.Data), nil
}

// Err is the reason the sequence ended, or nil while it is still live.
func (g *Generator) Err() error {
	return g.err
}

// Sent is the number of parts produced so far.
func (g *Generator) Sent() uint64 {
	return g.sent
}

func (g *Generator) finish(err error) {
	g.done = true
	g.err = err
}

// Serve streams cam to w until the camera fails or the client goes away.
// m may be nil.
func Serve(w http.ResponseWriter, r *http.Request, cam camera.Reader, m *metrics.Metrics) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	done := m.StreamOpened()
	defer done()

	ctx := r.Context()
	gen := NewGenerator(cam)
	logger.Debug("MJPEG", "Client %s connected", r.RemoteAddr)

	for {
		part, err := gen.Next(ctx)
		if err != nil {
			cause := gen.Err()
			switch {
			case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
				logger.Debug("MJPEG", "Client %s disconnected after %d frames", r.RemoteAddr, gen.Sent())
			default:
				logger.Info("MJPEG", "Stream to %s ended after %d frames: %v", r.RemoteAddr, gen.Sent(), cause)
			}
			return
		}

		// If the client disconnected, exit immediately
		if _, err := w.Write(part); err != nil {
			logger.Debug("MJPEG", "Client %s disconnected during write: %v", r.RemoteAddr, err)
			return
		}
		flusher.Flush()
		m.StreamFrame()
	}
}
