// Package attention classifies whether a subject is watching the screen from
// face-mesh landmarks.
package attention

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/geometry"
	"github.com/dj-oyu/attention-monitor/vision-server/pkg/types"
)

// Thresholds are the empirical decision boundaries. All comparisons are strict.
type Thresholds struct {
	EyesClosedEAR float64 // average EAR below this is eyes_closed
	GazeMinX      float64 // nose tip x below this is away
	GazeMaxX      float64 // nose tip x above this is away
}

// DefaultThresholds returns the calibrated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EyesClosedEAR: 0.2,
		GazeMinX:      0.3,
		GazeMaxX:      0.7,
	}
}

// Validate checks that the thresholds describe a usable gaze window.
func (t Thresholds) Validate() error {
	if t.EyesClosedEAR <= 0 {
		return fmt.Errorf("eyes-closed EAR must be positive, got %v", t.EyesClosedEAR)
	}
	if t.GazeMinX < 0 || t.GazeMaxX > 1 || t.GazeMinX >= t.GazeMaxX {
		return fmt.Errorf("gaze window [%v, %v] must satisfy 0 <= min < max <= 1", t.GazeMinX, t.GazeMaxX)
	}
	return nil
}

// Config configures a Classifier.
type Config struct {
	Thresholds Thresholds
	// ReportNoFace emits NoFace instead of folding a missing face into Away.
	ReportNoFace bool
	// MaxDetectDimension downscales larger images before detection (0 = never).
	MaxDetectDimension int
	// MaxPixels rejects posted images with more pixels than this (0 = no limit).
	MaxPixels int
}

// DefaultMaxPixels is about 40 megapixels.
const DefaultMaxPixels = 40_000_000

// DefaultConfig returns the classifier defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds:         DefaultThresholds(),
		MaxDetectDimension: 640,
		MaxPixels:          DefaultMaxPixels,
	}
}

// Face is one detected face mesh.
type Face struct {
	Landmarks []types.Point
}

// LandmarkDetector runs single-image (non-tracking) face mesh detection.
// An empty result with a nil error means no face was found.
type LandmarkDetector interface {
	Detect(ctx context.Context, img RGB) ([]Face, error)
}

// Result is the outcome of one classification.
type Result struct {
	Label       Label
	FaceFound   bool
	EAR         float64 // average over measurable eyes; valid when EARMeasured
	EARMeasured bool
	NoseX       float64 // valid when FaceFound
}

// Classifier maps an image to an attention label. It holds no per-call state
// and is safe for concurrent use.
type Classifier struct {
	detector LandmarkDetector
	cfg      Config
}

// NewClassifier creates a Classifier backed by detector.
func NewClassifier(detector LandmarkDetector, cfg Config) (*Classifier, error) {
	if detector == nil {
		return nil, errors.New("attention: nil landmark detector")
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("attention: %w", err)
	}
	return &Classifier{detector: detector, cfg: cfg}, nil
}

// ClassifyBytes decodes data and classifies it. Undecodable input fails with
// ErrInvalidImage, oversized input with ErrTooManyPixels.
func (c *Classifier) ClassifyBytes(ctx context.Context, data []byte) (Result, error) {
	img, err := Decode(data, c.cfg.MaxPixels)
	if err != nil {
		return Result{}, err
	}
	return c.Classify(ctx, img)
}

// Classify runs landmark detection on img and classifies the first face.
func (c *Classifier) Classify(ctx context.Context, img image.Image) (Result, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Result{}, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}

	faces, err := c.detector.Detect(ctx, toRGB(fitWithin(img, c.cfg.MaxDetectDimension)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDetector, err)
	}

	if len(faces) == 0 {
		if c.cfg.ReportNoFace {
			return Result{Label: NoFace}, nil
		}
		return Result{Label: Away}, nil
	}

	return c.Evaluate(faces[0].Landmarks, float64(b.Dx()), float64(b.Dy()))
}

// Evaluate classifies one face's landmarks measured on a width x height image.
// The eyes-closed rule takes priority over the gaze rule.
func (c *Classifier) Evaluate(landmarks []types.Point, width, height float64) (Result, error) {
	if len(landmarks) < types.FaceMeshLandmarks {
		return Result{}, fmt.Errorf("%w: face has %d landmarks, want %d",
			ErrDetector, len(landmarks), types.FaceMeshLandmarks)
	}

	res := Result{FaceFound: true, NoseX: landmarks[types.LandmarkNoseTip].X}

	if ear, ok := averageEAR(landmarks, width, height); ok {
		res.EAR = ear
		res.EARMeasured = true
		if ear < c.cfg.Thresholds.EyesClosedEAR {
			res.Label = EyesClosed
			return res, nil
		}
	}

	if res.NoseX < c.cfg.Thresholds.GazeMinX || res.NoseX > c.cfg.Thresholds.GazeMaxX {
		res.Label = Away
		return res, nil
	}

	res.Label = Watching
	return res, nil
}

// averageEAR averages the eyes that can be measured. A degenerate eye is
// left out; with neither eye measurable ok is false.
func averageEAR(landmarks []types.Point, width, height float64) (float64, bool) {
	sum, n := 0.0, 0
	for _, eye := range [][6]int{types.LeftEyeContour, types.RightEyeContour} {
		ear, err := geometry.EyeAspectRatio(landmarks, eye, width, height)
		if err != nil || math.IsInf(ear, 0) || math.IsNaN(ear) {
			continue
		}
		sum += ear
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
