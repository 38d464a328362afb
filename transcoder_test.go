package transcoder

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsJobs(t *testing.T) {
	logger, _ := testLogger()
	p := NewPool(2, logger)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(context.Context) {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(10), ran.Load())
}

func TestPoolRunsJobsConcurrently(t *testing.T) {
	logger, _ := testLogger()
	p := NewPool(2, logger)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	// Both jobs must be running at once to pass the barrier.
	var barrier sync.WaitGroup
	barrier.Add(2)
	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		require.NoError(t, p.Submit(func(context.Context) {
			barrier.Done()
			barrier.Wait()
			done <- struct{}{}
		}))
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("jobs did not run concurrently")
		}
	}
}

func TestPoolStartTwice(t *testing.T) {
	logger, _ := testLogger()
	p := NewPool(1, logger)
	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))
	p.Stop()
	assert.ErrorIs(t, p.Start(context.Background()), ErrPoolClosed)
}

func TestPoolStopCancelsAndDrains(t *testing.T) {
	logger, _ := testLogger()
	p := NewPool(1, logger)
	require.NoError(t, p.Start(context.Background()))

	started := make(chan struct{})
	var runningCanceled, queuedCanceled atomic.Bool
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		runningCanceled.Store(true)
	}))
	<-started
	require.NoError(t, p.Submit(func(ctx context.Context) {
		queuedCanceled.Store(ctx.Err() != nil)
	}))

	p.Stop()
	assert.True(t, runningCanceled.Load())
	assert.True(t, queuedCanceled.Load(), "queued jobs run with a canceled context")
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolClosed)
	p.Stop()
}

func TestFutureWait(t *testing.T) {
	f := newFuture()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	f.complete(CompletionNotNeeded, nil)
	f.complete(CompletionTranscoded, errBoom)
	code, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CompletionNotNeeded, code)

	select {
	case <-f.Done():
	default:
		t.Fatal("Done must be closed after completion")
	}
	assert.NotEqual(t, f.ID().String(), newFuture().ID().String())
}

func stalledRun(t *testing.T) (*Options, *recordingListener, *fakeSource) {
	t.Helper()
	logger, _ := testLogger()
	src := newAudioSource(10*time.Second, 48000, 1)
	src.stallAfter = 3
	listener := &recordingListener{}
	opts, err := NewOptionsBuilder().
		AddSource(src).
		SetSink(&fakeSink{}).
		SetCodecs(&fakeCodecs{}).
		SetListener(listener).
		SetLogger(logger).
		Build()
	require.NoError(t, err)
	return opts, listener, src
}

func TestTranscodeFutureCancel(t *testing.T) {
	logger, _ := testLogger()
	tc := NewTranscoder(1, logger)
	defer tc.Close()

	opts, listener, src := stalledRun(t)
	f := tc.Transcode(opts)
	time.Sleep(30 * time.Millisecond)
	f.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := f.Wait(ctx)
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	assert.Equal(t, 1, listener.canceled)
	assert.Equal(t, 1, listener.terminal())
	assert.Equal(t, 1, src.released)
}

func TestTranscodeFutureCompletes(t *testing.T) {
	logger, _ := testLogger()
	tc := NewTranscoder(2, logger)
	defer tc.Close()

	src := newAudioSource(time.Second, 48000, 1)
	listener := &recordingListener{}
	opts, err := NewOptionsBuilder().
		AddSource(src).
		SetSink(&fakeSink{}).
		SetCodecs(&fakeCodecs{}).
		SetListener(listener).
		SetLogger(logger).
		Build()
	require.NoError(t, err)

	f := tc.Transcode(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, CompletionTranscoded, code)

	// The listener saw the completion before Wait returned.
	listener.mu.Lock()
	defer listener.mu.Unlock()
	assert.Equal(t, []CompletionCode{CompletionTranscoded}, listener.completed)
}

func TestTranscoderCloseCancelsRuns(t *testing.T) {
	logger, _ := testLogger()
	tc := NewTranscoder(1, logger)

	running, runningListener, _ := stalledRun(t)
	queued, queuedListener, queuedSrc := stalledRun(t)
	f1 := tc.Transcode(running)
	f2 := tc.Transcode(queued)
	time.Sleep(30 * time.Millisecond)
	tc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, f := range []*Future{f1, f2} {
		_, err := f.Wait(ctx)
		assert.True(t, IsCanceled(err), "got %v", err)
	}
	assert.Equal(t, 1, runningListener.canceled)
	assert.Equal(t, 1, queuedListener.canceled)
	assert.Equal(t, 1, queuedSrc.released)

	// A closed transcoder still completes submissions, as canceled.
	late, lateListener, _ := stalledRun(t)
	_, err := tc.Transcode(late).Wait(ctx)
	assert.True(t, IsCanceled(err))
	assert.Equal(t, 1, lateListener.canceled)
}

func TestTranscodeWithInlineDispatcher(t *testing.T) {
	logger, _ := testLogger()
	src := newAudioSource(200*time.Millisecond, 48000, 1)
	var calls []string
	opts, err := NewOptionsBuilder().
		AddSource(src).
		SetSink(&fakeSink{}).
		SetCodecs(&fakeCodecs{}).
		SetDispatcher(InlineDispatcher{}).
		SetListener(ListenerFuncs{
			Progress:  func(float64) { calls = append(calls, "progress") },
			Completed: func(CompletionCode) { calls = append(calls, "completed") },
		}).
		SetLogger(logger).
		Build()
	require.NoError(t, err)

	tc := NewTranscoder(1, logger)
	defer tc.Close()
	code, err := tc.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, CompletionTranscoded, code)
	require.NotEmpty(t, calls)
	assert.Equal(t, "completed", calls[len(calls)-1])
}
