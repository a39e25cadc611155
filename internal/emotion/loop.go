// Package emotion keeps the latest dominant-emotion label of the camera feed.
package emotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/camera"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/logger"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/metrics"
	"github.com/dj-oyu/attention-monitor/vision-server/pkg/types"
)

// ErrInferencePanic wraps a panic raised inside Model.Infer.
var ErrInferencePanic = errors.New("emotion model panicked")

// RetryPolicy controls how the loop waits after a failed camera read.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// MaxRetries bounds consecutive failed reads; 0 retries forever.
	MaxRetries int
}

// DefaultRetryPolicy retries forever, starting at 10ms and capping at 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
	}
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		eb.Multiplier = p.Multiplier
	}
	eb.MaxElapsedTime = 0
	eb.Reset()

	if p.MaxRetries > 0 {
		return backoff.WithMaxRetries(eb, uint64(p.MaxRetries))
	}
	return eb
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	Retry RetryPolicy
	// Interval throttles successive inferences; 0 runs back-to-back.
	Interval time.Duration
}

// Loop reads frames, runs the model and publishes the label into State.
type Loop struct {
	cam     camera.Reader
	model   Model
	state   *State
	cfg     LoopConfig
	metrics *metrics.Metrics
}

// NewLoop wires a loop. m may be nil.
func NewLoop(cam camera.Reader, model Model, state *State, cfg LoopConfig, m *metrics.Metrics) (*Loop, error) {
	if cam == nil || model == nil || state == nil {
		return nil, errors.New("emotion: camera, model and state are required")
	}
	return &Loop{cam: cam, model: model, state: state, cfg: cfg, metrics: m}, nil
}

// Run loops until ctx is cancelled, returning nil. It returns an error wrapping
// camera.ErrUnavailable only when a bounded retry policy is exhausted.
// Inference failures publish Unknown and never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	logger.Info("Emotion", "Inference loop started")
	defer logger.Info("Emotion", "Inference loop stopped")

	retry := l.cfg.Retry.newBackOff()
	failedReads := 0
	lastOK := true

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := l.cam.Read(ctx)
		l.metrics.FrameRead(err)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failedReads++
			wait := retry.NextBackOff()
			if wait == backoff.Stop {
				logger.Error("Emotion", "Camera unavailable after %d reads: %v", failedReads, err)
				return fmt.Errorf("%w: %d consecutive failed reads: %v", camera.ErrUnavailable, failedReads, err)
			}
			if failedReads == 1 {
				logger.Warn("Emotion", "Camera read failed, retrying: %v", err)
			} else {
				logger.Debug("Emotion", "Camera read failed (%d in a row), next try in %v", failedReads, wait)
			}
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}
		if failedReads > 0 {
			logger.Info("Emotion", "Camera recovered after %d failed reads", failedReads)
			failedReads = 0
			retry.Reset()
		}

		start := time.Now()
		res := l.infer(ctx, frame)
		if !res.OK() && ctx.Err() != nil {
			// Cancelled mid-inference; keep the last published label.
			return nil
		}
		l.metrics.Inference(res.OK(), time.Since(start))

		label := res.Published()
		version := l.state.Publish(label)
		l.metrics.EmotionPublished(version)

		switch {
		case !res.OK() && lastOK:
			logger.Warn("Emotion", "Inference failed on frame #%d: %v", frame.Seq, res.Err)
		case !res.OK():
			logger.Debug("Emotion", "Inference failed on frame #%d: %v", frame.Seq, res.Err)
		case !lastOK:
			logger.Info("Emotion", "Inference recovered: %s", label)
		default:
			logger.Debug("Emotion", "Frame #%d: %s", frame.Seq, label)
		}
		lastOK = res.OK()

		if l.cfg.Interval > 0 && !sleep(ctx, l.cfg.Interval) {
			return nil
		}
	}
}

func (l *Loop) infer(ctx context.Context, frame types.Frame) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(fmt.Errorf("%w: %v", ErrInferencePanic, r))
		}
	}()
	return l.model.Infer(ctx, frame)
}

// sleep waits for d, returning false if ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
