// Package facemesh talks to an out-of-process face mesh service over a unix
// or tcp socket. One msgpack request carries an RGB frame; the reply carries
// the normalized 468-point mesh of every detected face.
package facemesh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/attention"
	"github.com/dj-oyu/attention-monitor/vision-server/pkg/types"
)

// ErrMalformedResponse is returned when a reply cannot be turned into landmarks.
var ErrMalformedResponse = errors.New("malformed face mesh response")

// Config addresses the face mesh service.
type Config struct {
	Network string        // "unix" or "tcp"
	Address string        // socket path or host:port
	Timeout time.Duration // dial + round trip
	// MaxFaces is forwarded to the service; the classifier only reads the first.
	MaxFaces int
}

// DefaultConfig returns the defaults for a local sidecar.
func DefaultConfig() Config {
	return Config{
		Network:  "unix",
		Address:  "/tmp/facemesh.sock",
		Timeout:  2 * time.Second,
		MaxFaces: 1,
	}
}

// Request is sent to the service.
type Request struct {
	Height   int    `msgpack:"h"`
	Width    int    `msgpack:"w"`
	Data     []byte `msgpack:"d"` // RGB uint8, row-major, shape (H, W, 3)
	MaxFaces int    `msgpack:"m"`
	Static   bool   `msgpack:"s"` // single-image mode, no tracking
}

// Mesh is one face in the reply.
type Mesh struct {
	Points []float32 `msgpack:"p"` // flat x,y,z triplets, normalized
	Score  float32   `msgpack:"c"`
}

// Response is received from the service.
type Response struct {
	Faces       []Mesh  `msgpack:"faces"`
	InferenceMs float32 `msgpack:"inference_ms"`
	Error       string  `msgpack:"error,omitempty"`
}

// Client is a face mesh service client. Each Detect opens its own connection,
// so a Client is safe for concurrent use.
type Client struct {
	cfg    Config
	dialer net.Dialer
}

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("facemesh: address is required")
	}
	if cfg.Network == "" {
		cfg.Network = "unix"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxFaces <= 0 {
		cfg.MaxFaces = 1
	}
	return &Client{cfg: cfg, dialer: net.Dialer{Timeout: cfg.Timeout}}, nil
}

// Detect implements attention.LandmarkDetector.
func (c *Client) Detect(ctx context.Context, img attention.RGB) ([]attention.Face, error) {
	if len(img.Pix) != img.Width*img.Height*3 {
		return nil, fmt.Errorf("facemesh: raster is %d bytes, want %d", len(img.Pix), img.Width*img.Height*3)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, c.cfg.Network, c.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to face mesh service: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	// Unblock the round trip if the caller goes away.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	req := Request{
		Height:   img.Height,
		Width:    img.Width,
		Data:     img.Pix,
		MaxFaces: c.cfg.MaxFaces,
		Static:   true,
	}
	if err := msgpack.NewEncoder(conn).Encode(&req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := msgpack.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("face mesh service: %s", resp.Error)
	}

	faces := make([]attention.Face, 0, len(resp.Faces))
	for i, m := range resp.Faces {
		lm, err := toLandmarks(m.Points)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		faces = append(faces, attention.Face{Landmarks: lm})
	}
	return faces, nil
}

func toLandmarks(flat []float32) ([]types.Point, error) {
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("%w: %d values is not a multiple of 3", ErrMalformedResponse, len(flat))
	}
	n := len(flat) / 3
	if n < types.FaceMeshLandmarks {
		return nil, fmt.Errorf("%w: %d landmarks, want %d", ErrMalformedResponse, n, types.FaceMeshLandmarks)
	}

	lm := make([]types.Point, n)
	for i := range lm {
		lm[i] = types.Point{
			X: float64(flat[i*3]),
			Y: float64(flat[i*3+1]),
			Z: float64(flat[i*3+2]),
		}
	}
	return lm, nil
}
