package emotion

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/camera"
	"github.com/dj-oyu/attention-monitor/vision-server/internal/metrics"
	"github.com/dj-oyu/attention-monitor/vision-server/pkg/types"
)

func fastRetry() LoopConfig {
	return LoopConfig{Retry: RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}}
}

// frames returns a camera that always yields a frame and counts reads.
func frames(reads *atomic.Int64) camera.Reader {
	return camera.ReaderFunc(func(ctx context.Context) (types.Frame, error) {
		n := reads.Add(1)
		return types.Frame{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, Seq: uint64(n)}, nil
	})
}

func runLoop(t *testing.T, l *Loop, ctx context.Context) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
		return nil
	}
}

func TestLoop_SurvivesConsecutiveInferenceFailures(t *testing.T) {
	const failures = 5

	state := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	var seenBefore []string
	model := ModelFunc(func(ctx context.Context, f types.Frame) Result {
		calls++
		seenBefore = append(seenBefore, state.Get())
		if calls <= failures {
			return Failure(errors.New("no face"))
		}
		cancel()
		return Success("happy", map[string]float64{"happy": 91.2})
	})

	var reads atomic.Int64
	m := metrics.New()
	l, err := NewLoop(frames(&reads), model, state, fastRetry(), m)
	require.NoError(t, err)

	require.NoError(t, runLoop(t, l, ctx))

	require.Len(t, seenBefore, failures+1)
	assert.Equal(t, Neutral, seenBefore[0])
	for i := 1; i <= failures; i++ {
		assert.Equal(t, Unknown, seenBefore[i], "state after failure %d", i)
	}
	assert.Equal(t, "happy", state.Get())
	assert.Equal(t, uint64(failures+1), state.Snapshot().Version)
	assert.Equal(t, uint64(failures), m.InferencesFailed.Load())
	assert.Equal(t, uint64(1), m.InferencesOK.Load())
	assert.Equal(t, uint64(failures+1), m.EmotionVersion.Load())
}

func TestLoop_RecoversFromPanickingModel(t *testing.T) {
	state := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	model := ModelFunc(func(ctx context.Context, f types.Frame) Result {
		calls++
		if calls == 1 {
			panic("model exploded")
		}
		assert.Equal(t, Unknown, state.Get())
		cancel()
		return Success("sad", nil)
	})

	var reads atomic.Int64
	l, err := NewLoop(frames(&reads), model, state, fastRetry(), nil)
	require.NoError(t, err)

	require.NoError(t, runLoop(t, l, ctx))
	assert.Equal(t, 2, calls)
	assert.Equal(t, "sad", state.Get())
}

func TestLoop_EmptyLabelIsUnknown(t *testing.T) {
	state := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := ModelFunc(func(ctx context.Context, f types.Frame) Result {
		cancel()
		return Success("", nil)
	})

	var reads atomic.Int64
	l, err := NewLoop(frames(&reads), model, state, fastRetry(), nil)
	require.NoError(t, err)

	require.NoError(t, runLoop(t, l, ctx))
	assert.Equal(t, Unknown, state.Get())
}

func TestLoop_RetriesCameraUntilItRecovers(t *testing.T) {
	const badReads = 4

	var reads atomic.Int64
	cam := camera.ReaderFunc(func(ctx context.Context) (types.Frame, error) {
		if reads.Add(1) <= badReads {
			return types.Frame{}, camera.ErrUnavailable
		}
		return types.Frame{Data: []byte{1}}, nil
	})

	state := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := ModelFunc(func(ctx context.Context, f types.Frame) Result {
		cancel()
		return Success("neutral", nil)
	})

	m := metrics.New()
	l, err := NewLoop(cam, model, state, fastRetry(), m)
	require.NoError(t, err)

	require.NoError(t, runLoop(t, l, ctx))
	assert.Equal(t, int64(badReads+1), reads.Load())
	assert.Equal(t, "neutral", state.Get())
	assert.Equal(t, uint64(badReads), m.ReadErrors.Load())
	assert.Equal(t, uint64(1), m.FramesRead.Load())
}

func TestLoop_BoundedRetryGivesUp(t *testing.T) {
	var reads atomic.Int64
	cam := camera.ReaderFunc(func(ctx context.Context) (types.Frame, error) {
		reads.Add(1)
		return types.Frame{}, errors.New("device unplugged")
	})

	cfg := fastRetry()
	cfg.Retry.MaxRetries = 3

	model := ModelFunc(func(ctx context.Context, f types.Frame) Result {
		t.Fatal("model must not run without frames")
		return Result{}
	})

	state := NewState()
	l, err := NewLoop(cam, model, state, cfg, nil)
	require.NoError(t, err)

	err = runLoop(t, l, context.Background())
	assert.ErrorIs(t, err, camera.ErrUnavailable)
	assert.Equal(t, int64(4), reads.Load())
	assert.Equal(t, Neutral, state.Get())
}

func TestLoop_CancelWhileReading(t *testing.T) {
	started := make(chan struct{})
	cam := camera.ReaderFunc(func(ctx context.Context) (types.Frame, error) {
		close(started)
		<-ctx.Done()
		return types.Frame{}, ctx.Err()
	})

	state := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	l, err := NewLoop(cam, ModelFunc(func(context.Context, types.Frame) Result { return Success("x", nil) }), state, fastRetry(), nil)
	require.NoError(t, err)

	go func() {
		<-started
		cancel()
	}()

	require.NoError(t, runLoop(t, l, ctx))
	assert.Equal(t, Neutral, state.Get())
	assert.Equal(t, uint64(0), state.Snapshot().Version)
}

func TestLoop_CancelDuringInferenceKeepsLastLabel(t *testing.T) {
	state := NewState()
	state.Publish("happy")

	ctx, cancel := context.WithCancel(context.Background())
	model := ModelFunc(func(ctx context.Context, f types.Frame) Result {
		cancel()
		<-ctx.Done()
		return Failure(ctx.Err())
	})

	var reads atomic.Int64
	l, err := NewLoop(frames(&reads), model, state, fastRetry(), nil)
	require.NoError(t, err)

	require.NoError(t, runLoop(t, l, ctx))
	assert.Equal(t, "happy", state.Get())
	assert.Equal(t, uint64(1), state.Snapshot().Version)
}

func TestLoop_IntervalThrottles(t *testing.T) {
	state := NewState()
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	var calls atomic.Int64
	model := ModelFunc(func(ctx context.Context, f types.Frame) Result {
		calls.Add(1)
		return Success("calm", nil)
	})

	cfg := fastRetry()
	cfg.Interval = 50 * time.Millisecond

	var reads atomic.Int64
	l, err := NewLoop(frames(&reads), model, state, cfg, nil)
	require.NoError(t, err)

	require.NoError(t, runLoop(t, l, ctx))
	assert.LessOrEqual(t, calls.Load(), int64(3))
	assert.GreaterOrEqual(t, calls.Load(), int64(1))
}

func TestLoop_SharesCameraWithOtherReaders(t *testing.T) {
	jpegs := [][]byte{{0xFF, 0xD8, 1, 0xFF, 0xD9}, {0xFF, 0xD8, 2, 0xFF, 0xD9}}
	cam := camera.NewPlaylist(jpegs, true, 0)
	defer cam.Close()

	state := NewState()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	model := ModelFunc(func(ctx context.Context, f types.Frame) Result {
		if len(f.Data) != 5 {
			return Failure(errors.New("torn frame"))
		}
		return Success("focused", nil)
	})

	l, err := NewLoop(cam, model, state, fastRetry(), nil)
	require.NoError(t, err)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for ctx.Err() == nil {
			f, err := cam.Read(ctx)
			if err == nil {
				assert.Len(t, f.Data, 5)
			}
		}
	}()

	require.NoError(t, runLoop(t, l, ctx))
	<-readerDone
	assert.Equal(t, "focused", state.Get())
}

func TestNewLoop_RequiresCollaborators(t *testing.T) {
	_, err := NewLoop(nil, nil, nil, LoopConfig{}, nil)
	assert.Error(t, err)
}

func TestRetryPolicy_BoundedBackOffStops(t *testing.T) {
	p := RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxRetries: 2}
	b := p.newBackOff()

	assert.NotEqual(t, time.Duration(-1), b.NextBackOff())
	assert.NotEqual(t, time.Duration(-1), b.NextBackOff())
	assert.Equal(t, time.Duration(-1), b.NextBackOff())
}
