package transcoder

import "sync"

// Listener receives the progress and the outcome of a run. Exactly one of
// OnCompleted, OnCanceled and OnFailed is called, and it is the last call.
type Listener interface {
	OnProgress(progress float64)
	OnCompleted(code CompletionCode)
	OnCanceled()
	OnFailed(err error)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	Progress  func(progress float64)
	Completed func(code CompletionCode)
	Canceled  func()
	Failed    func(err error)
}

func (l ListenerFuncs) OnProgress(progress float64) {
	if l.Progress != nil {
		l.Progress(progress)
	}
}

func (l ListenerFuncs) OnCompleted(code CompletionCode) {
	if l.Completed != nil {
		l.Completed(code)
	}
}

func (l ListenerFuncs) OnCanceled() {
	if l.Canceled != nil {
		l.Canceled()
	}
}

func (l ListenerFuncs) OnFailed(err error) {
	if l.Failed != nil {
		l.Failed(err)
	}
}

// Dispatcher delivers listener callbacks on a context chosen by the caller.
// Dispatch must not block the transcoding goroutine for long and must run
// callbacks in submission order.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// InlineDispatcher runs callbacks on the calling goroutine, which is the
// transcoding goroutine. Listeners must then return quickly.
type InlineDispatcher struct{}

// Dispatch implements Dispatcher.
func (InlineDispatcher) Dispatch(fn func()) { fn() }

// QueueDispatcher runs callbacks in order on its own goroutine. Dispatch
// never blocks.
type QueueDispatcher struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// NewQueueDispatcher starts a dispatcher goroutine. Close stops it.
func NewQueueDispatcher() *QueueDispatcher {
	d := &QueueDispatcher{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go d.loop()
	return d
}

// Dispatch implements Dispatcher. Callbacks dispatched after Close are dropped.
func (d *QueueDispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting callbacks. Queued callbacks still run.
func (d *QueueDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Stopped is closed once every callback queued before Close has run.
func (d *QueueDispatcher) Stopped() <-chan struct{} { return d.stopped }

func (d *QueueDispatcher) loop() {
	defer close(d.stopped)
	for range d.wake {
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				closed := d.closed
				d.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()

			fn()
		}
	}
}

// nopListener discards every callback.
type nopListener struct{}

func (nopListener) OnProgress(float64)        {}
func (nopListener) OnCompleted(CompletionCode) {}
func (nopListener) OnCanceled()               {}
func (nopListener) OnFailed(error)            {}
