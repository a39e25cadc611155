package types

import "time"

// Frame represents one complete camera frame with metadata
type Frame struct {
	Data      []byte    // JPEG-encoded image
	Timestamp time.Time // Frame capture timestamp
	Seq       uint64    // Sequential frame number (per camera handle)
	Width     int       // Frame width in pixels
	Height    int       // Frame height in pixels
}

// Empty reports whether the frame carries no image data
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// Point is a normalized landmark coordinate.
// X and Y are in [0,1] relative to image width and height.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// Face mesh landmark indices (468-point MediaPipe topology)
const (
	LandmarkNoseTip   = 1
	FaceMeshLandmarks = 468
)

// Eye contours ordered outer corner, upper lid 1, upper lid 2,
// inner corner, lower lid 2, lower lid 1.
var (
	LeftEyeContour  = [6]int{33, 160, 158, 133, 153, 144}
	RightEyeContour = [6]int{263, 387, 385, 362, 380, 373}
)
