package transcoder

import (
	"context"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Future is the handle of a submitted run.
type Future struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	once sync.Once
	code CompletionCode
	err  error
}

func newFuture() *Future {
	ctx, cancel := context.WithCancel(context.Background())
	return &Future{
		id:     uuid.New(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID identifies the run in logs.
func (f *Future) ID() uuid.UUID { return f.id }

// Cancel requests cancellation. The run stops at its next checkpoint and
// completes with an error matching ErrCanceled, unless it already finished.
func (f *Future) Cancel() { f.cancel() }

// Done is closed once the run finished and its terminal listener callback
// returned.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the run finishes or ctx is done. Giving up on ctx does
// not cancel the run.
func (f *Future) Wait(ctx context.Context) (CompletionCode, error) {
	select {
	case <-f.done:
		return f.code, f.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (f *Future) complete(code CompletionCode, err error) {
	f.once.Do(func() {
		f.code, f.err = code, err
		f.cancel()
		close(f.done)
	})
}

// Transcoder runs transcode operations on a bounded pool of workers. Each
// run occupies one worker from start to finish.
type Transcoder struct {
	pool *Pool
	log  logrus.FieldLogger
}

// NewTranscoder starts a transcoder with the given number of workers.
// workers < 1 selects the number of CPUs.
func NewTranscoder(workers int, log logrus.FieldLogger) *Transcoder {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	pool := NewPool(workers, log)
	// Start only fails on a closed or started pool.
	_ = pool.Start(context.Background())
	return &Transcoder{pool: pool, log: log}
}

var (
	defaultOnce       sync.Once
	defaultTranscoder *Transcoder
)

// Default returns the process-wide transcoder, created on first use with
// one worker per CPU.
func Default() *Transcoder {
	defaultOnce.Do(func() {
		defaultTranscoder = NewTranscoder(0, nil)
	})
	return defaultTranscoder
}

// Transcode submits a run to the default transcoder.
func Transcode(opts *Options) *Future {
	return Default().Transcode(opts)
}

// Transcode submits a run and returns immediately. The listener of opts is
// notified through its dispatcher; the returned Future completes after the
// terminal callback ran.
func (t *Transcoder) Transcode(opts *Options) *Future {
	f := newFuture()
	err := t.pool.Submit(func(poolCtx context.Context) {
		ctx, stop := context.WithCancel(f.ctx)
		defer stop()
		unregister := context.AfterFunc(poolCtx, stop)
		defer unregister()
		if poolCtx.Err() != nil {
			stop()
		}

		execute(ctx, opts, f)
	})
	if err != nil {
		t.log.WithField("run", f.id).WithError(err).Warn("transcode rejected")
		f.cancel()
		execute(f.ctx, opts, f)
	}
	return f
}

// Run transcodes on the calling goroutine and returns once the terminal
// listener callback ran. Canceling ctx cancels the run.
func (t *Transcoder) Run(ctx context.Context, opts *Options) (CompletionCode, error) {
	f := newFuture()
	runCtx, stop := context.WithCancel(f.ctx)
	defer stop()
	unregister := context.AfterFunc(ctx, stop)
	defer unregister()
	if ctx.Err() != nil {
		stop()
	}

	execute(runCtx, opts, f)
	<-f.done
	return f.code, f.err
}

// Close stops the workers. Runs in progress are canceled and queued runs
// complete as canceled.
func (t *Transcoder) Close() {
	t.pool.Stop()
}

// execute runs the engine and reports the outcome through the listener.
// The future completes from the dispatched terminal callback, so listener
// and Wait observe the same event.
func execute(ctx context.Context, opts *Options, f *Future) {
	dispatcher := opts.dispatcher
	if dispatcher == nil {
		queue := NewQueueDispatcher()
		defer queue.Close()
		dispatcher = queue
	}

	e := newEngine(opts, f.id, dispatcher)
	code, err := e.run(ctx)

	listener := opts.listener
	switch {
	case err == nil:
		dispatcher.Dispatch(func() {
			listener.OnCompleted(code)
			f.complete(code, nil)
		})
	case IsCanceled(err):
		dispatcher.Dispatch(func() {
			listener.OnCanceled()
			f.complete(code, err)
		})
	default:
		dispatcher.Dispatch(func() {
			listener.OnFailed(err)
			f.complete(code, err)
		})
	}
}
