package emotion

import (
	"context"
	"errors"

	"github.com/dj-oyu/attention-monitor/vision-server/pkg/types"
)

// ErrNoLabel is the failure reason when a model succeeds without a label.
var ErrNoLabel = errors.New("model returned no dominant emotion")

// Result is the outcome of one inference: a label, or a failure reason.
type Result struct {
	Label  string
	Scores map[string]float64
	Err    error
}

// Success builds a successful Result.
func Success(label string, scores map[string]float64) Result {
	return Result{Label: label, Scores: scores}
}

// Failure builds a failed Result.
func Failure(err error) Result {
	if err == nil {
		err = ErrNoLabel
	}
	return Result{Err: err}
}

// OK reports whether r carries a usable label.
func (r Result) OK() bool {
	return r.Err == nil && r.Label != ""
}

// Published is the label the loop publishes for r.
func (r Result) Published() string {
	if r.OK() {
		return r.Label
	}
	return Unknown
}

// Model classifies the dominant emotion of one frame. It must tolerate frames
// without a face; reporting that as a failure is fine.
type Model interface {
	Infer(ctx context.Context, frame types.Frame) Result
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, frame types.Frame) Result

// Infer calls f(ctx, frame).
func (f ModelFunc) Infer(ctx context.Context, frame types.Frame) Result {
	return f(ctx, frame)
}
