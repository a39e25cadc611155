package attention

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidImage marks input that cannot be decoded into an image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrTooManyPixels marks an image whose declared size exceeds the pixel
	// limit. It also matches ErrInvalidImage.
	ErrTooManyPixels = fmt.Errorf("%w: too many pixels", ErrInvalidImage)
	// ErrDetector marks a landmark detector failure (unreachable, bad reply).
	ErrDetector = errors.New("landmark detector failure")
)
