// Package camera defines the shared camera handle consumed by the emotion loop
// and the MJPEG stream.
package camera

import (
	"context"
	"errors"

	"github.com/dj-oyu/attention-monitor/vision-server/pkg/types"
)

// ErrUnavailable is returned when a frame cannot be read from the device.
var ErrUnavailable = errors.New("camera unavailable")

// Reader delivers whole frames. Implementations must be safe for concurrent
// Read calls; each call returns an independent frame.
type Reader interface {
	Read(ctx context.Context) (types.Frame, error)
}

// Device is a Reader that owns an underlying capture resource.
type Device interface {
	Reader
	Close() error
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(ctx context.Context) (types.Frame, error)

// Read calls f(ctx).
func (f ReaderFunc) Read(ctx context.Context) (types.Frame, error) {
	return f(ctx)
}
