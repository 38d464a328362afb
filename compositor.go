package transcoder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultFrameTimeout bounds how long the compositor waits for a decoded frame.
const DefaultFrameTimeout = 10 * time.Second

// Surface receives decoded video frames from a decoder. Publish may be
// called from a goroutine owned by the decoder.
type Surface interface {
	Publish(frame *VideoFrame) error
}

// CompositorConfig configures a Compositor.
type CompositorConfig struct {
	InputWidth   int
	InputHeight  int
	OutputWidth  int
	OutputHeight int
	Rotation     int // clockwise, one of 0, 90, 180, 270
	ScalePolicy  ScalePolicy
	FlipY        bool
	FrameTimeout time.Duration // 0 = DefaultFrameTimeout
	Renderer     Renderer      // nil = NewSoftwareRenderer(nil)

	Logger  logrus.FieldLogger
	Metrics *Metrics
}

// Compositor receives decoded frames through a single-slot mailbox and redraws
// them into the encoder input frame with scale, rotation and flip applied.
//
// Exactly one frame may be pending at a time: publishing a second frame before
// AwaitFrame consumed the first fails with ErrProtocolViolation.
type Compositor struct {
	renderer  Renderer
	policy    ScalePolicy
	flipY     bool
	transform TextureTransform
	matrix    Mat4
	timeout   time.Duration
	output    *VideoFrame
	log       logrus.FieldLogger
	metrics   *Metrics

	mu        sync.Mutex
	available bool
	pending   *VideoFrame
	violation error
	released  bool
	signal    chan struct{}

	// Owned by the rendering goroutine.
	latched *VideoFrame
}

// NewCompositor creates a compositor and its output frame.
func NewCompositor(cfg CompositorConfig) (*Compositor, error) {
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 || cfg.OutputWidth <= 0 || cfg.OutputHeight <= 0 {
		return nil, fmt.Errorf("%w: compositor size %dx%d -> %dx%d", ErrConfiguration,
			cfg.InputWidth, cfg.InputHeight, cfg.OutputWidth, cfg.OutputHeight)
	}
	if !validRotation(cfg.Rotation) {
		return nil, fmt.Errorf("%w: rotation %d", ErrConfiguration, cfg.Rotation)
	}
	timeout := cfg.FrameTimeout
	if timeout <= 0 {
		timeout = DefaultFrameTimeout
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = NewSoftwareRenderer(nil)
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	c := &Compositor{
		renderer: renderer,
		policy:   cfg.ScalePolicy,
		flipY:    cfg.FlipY,
		timeout:  timeout,
		output:   NewI420Frame(cfg.OutputWidth, cfg.OutputHeight),
		log:      log,
		metrics:  cfg.Metrics,
		signal:   make(chan struct{}, 1),
	}
	c.setInput(cfg.InputWidth, cfg.InputHeight, cfg.Rotation)
	return c, nil
}

// Reconfigure draws the following frames for an input of a new size and
// rotation. Like DrawFrame, it must be called from the rendering goroutine.
func (c *Compositor) Reconfigure(inputWidth, inputHeight, rotation int) error {
	if inputWidth <= 0 || inputHeight <= 0 {
		return fmt.Errorf("%w: compositor input %dx%d", ErrConfiguration, inputWidth, inputHeight)
	}
	if !validRotation(rotation) {
		return fmt.Errorf("%w: rotation %d", ErrConfiguration, rotation)
	}
	c.setInput(inputWidth, inputHeight, rotation)
	return nil
}

func (c *Compositor) setInput(width, height, rotation int) {
	c.transform = computeTransform(width, height, c.output.Width, c.output.Height,
		rotation, c.policy, c.flipY)
	c.matrix = c.transform.Matrix()
	c.log.WithFields(logrus.Fields{
		"input":    fmt.Sprintf("%dx%d", width, height),
		"scale_x":  c.transform.ScaleX,
		"scale_y":  c.transform.ScaleY,
		"rotation": c.transform.Rotation,
		"policy":   c.policy,
	}).Debug("compositor configured")
}

// Transform returns the transform the compositor draws with.
func (c *Compositor) Transform() TextureTransform { return c.transform }

// Matrix returns the texture matrix the compositor draws with.
func (c *Compositor) Matrix() Mat4 { return c.matrix }

// Publish implements Surface. It hands a decoded frame to the compositor.
func (c *Compositor) Publish(frame *VideoFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return ErrReleased
	}
	if c.available {
		err := fmt.Errorf("%w: frame available already set, frame at %v would be dropped",
			ErrProtocolViolation, frame.Timestamp)
		if c.violation == nil {
			c.violation = err
		}
		return err
	}
	c.available = true
	c.pending = frame
	select {
	case c.signal <- struct{}{}:
	default:
	}
	return nil
}

// AwaitFrame blocks until a frame has been published, the frame timeout
// elapses (ErrFrameTimeout), or ctx is done. The available flag is cleared and
// the frame latched in the same critical section.
func (c *Compositor) AwaitFrame(ctx context.Context) error {
	start := time.Now()
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		switch {
		case c.released:
			c.mu.Unlock()
			return ErrReleased
		case c.violation != nil:
			err := c.violation
			c.mu.Unlock()
			return err
		case c.available:
			c.available = false
			c.latched = c.pending
			c.pending = nil
			c.mu.Unlock()
			c.metrics.observeFrameWait(time.Since(start))
			return nil
		}
		c.mu.Unlock()

		select {
		case <-c.signal:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
		case <-timer.C:
			return fmt.Errorf("%w: no frame after %v", ErrFrameTimeout, c.timeout)
		}
	}
}

// DrawFrame renders the latched frame into the output frame, stamped with the
// output timestamp pts. The returned frame is reused by the next call.
func (c *Compositor) DrawFrame(pts time.Duration) (*VideoFrame, error) {
	if c.latched == nil {
		return nil, fmt.Errorf("%w: draw without a latched frame", ErrProtocolViolation)
	}
	src := c.latched
	c.latched = nil
	if err := c.renderer.Render(c.output, src, c.matrix); err != nil {
		return nil, err
	}
	c.output.Timestamp = pts
	return c.output, nil
}

// Release frees the renderer and drops any pending frame. It is idempotent.
func (c *Compositor) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	c.available = false
	c.pending = nil
	c.mu.Unlock()

	c.latched = nil
	return c.renderer.Release()
}
