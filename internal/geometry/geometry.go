// Package geometry holds the pixel-space math used on normalized face landmarks.
package geometry

import (
	"errors"
	"math"

	"github.com/dj-oyu/attention-monitor/vision-server/pkg/types"
)

var (
	// ErrDegenerateEye is returned when the eye corners coincide and the
	// aspect ratio cannot be measured.
	ErrDegenerateEye = errors.New("degenerate eye contour")
	// ErrLandmarkIndex is returned when an eye index is outside the landmark set.
	ErrLandmarkIndex = errors.New("landmark index out of range")
)

// minHorizontal is the smallest corner-to-corner distance (pixels) treated as measurable
const minHorizontal = 1e-9

// Distance converts two normalized points to pixel space and returns their
// Euclidean distance.
func Distance(a, b types.Point, width, height float64) float64 {
	return math.Hypot((a.X-b.X)*width, (a.Y-b.Y)*height)
}

// EyeAspectRatio computes the EAR of a six-point eye contour.
//
// eye lists landmark indices as outer corner, upper lid 1, upper lid 2,
// inner corner, lower lid 2, lower lid 1. The two vertical distances pair
// upper lid 1 with lower lid 2 and upper lid 2 with lower lid 1; the
// horizontal distance spans the corners.
//
// When the corners coincide the ratio is undefined: +Inf is returned together
// with ErrDegenerateEye so callers never read it as a closed eye.
func EyeAspectRatio(landmarks []types.Point, eye [6]int, width, height float64) (float64, error) {
	for _, idx := range eye {
		if idx < 0 || idx >= len(landmarks) {
			return math.Inf(1), ErrLandmarkIndex
		}
	}

	vertical1 := Distance(landmarks[eye[1]], landmarks[eye[4]], width, height)
	vertical2 := Distance(landmarks[eye[2]], landmarks[eye[5]], width, height)
	horizontal := Distance(landmarks[eye[0]], landmarks[eye[3]], width, height)

	if horizontal < minHorizontal || math.IsNaN(horizontal) {
		return math.Inf(1), ErrDegenerateEye
	}

	return (vertical1 + vertical2) / (2.0 * horizontal), nil
}
