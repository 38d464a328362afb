package transcoder

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// job runs on a pool worker. ctx is canceled when the pool stops.
type job func(ctx context.Context)

// Pool runs jobs on a fixed number of worker goroutines. The queue is
// unbounded so Submit never blocks.
type Pool struct {
	size int
	log  logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	ctx    context.Context
	queue  []job
	closed bool
	wake   chan struct{}
	wg     sync.WaitGroup
}

// NewPool creates a pool of size workers. Start launches them.
func NewPool(size int, log logrus.FieldLogger) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pool{
		size: size,
		log:  log,
		wake: make(chan struct{}, 1),
	}
}

// Start launches the workers. Jobs observe ctx and Stop.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if p.cancel != nil {
		return fmt.Errorf("pool already started")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(p.ctx, i)
	}
	p.log.WithField("workers", p.size).Debug("pool started")
	return nil
}

// Submit queues j.
func (p *Pool) Submit(j job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queue = append(p.queue, j)
	p.mu.Unlock()

	p.signal()
	return nil
}

// Stop cancels running jobs, waits for the workers and then runs every job
// still queued with a canceled context so that none is lost.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	ctx := p.ctx
	p.mu.Unlock()

	p.wg.Wait()

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.Background())
		cancel()
	}
	for {
		j, ok := p.next()
		if !ok {
			break
		}
		j(ctx)
	}
	p.log.Debug("pool stopped")
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, false
	}
	j := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	if len(p.queue) > 0 {
		// Hand the remaining work to an idle worker.
		p.signal()
	}
	return j, true
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if j, ok := p.next(); ok {
			j(ctx)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
	}
}
