package transcoder

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// OptionsBuilder collects the configuration of a run. It is not safe for
// concurrent use. Build validates it once and freezes it into Options.
type OptionsBuilder struct {
	sources      [2][]Source
	strategies   [2]TrackStrategy
	validator    Validator
	interpolator TimeInterpolator
	stretcher    AudioStretcher
	resampler    AudioResampler
	rotation     int
	sink         Sink
	listener     Listener
	dispatcher   Dispatcher
	codecs       CodecFactory
	renderer     func() Renderer
	frameTimeout time.Duration
	logger       logrus.FieldLogger
	metrics      *Metrics
	errs         []error
}

// NewOptionsBuilder returns a builder with the default collaborators.
func NewOptionsBuilder() *OptionsBuilder {
	return &OptionsBuilder{}
}

// AddSource adds src to every track it carries. Sources of the same track
// are played back to back in the order they were added.
func (b *OptionsBuilder) AddSource(src Source) *OptionsBuilder {
	b.sources[TrackVideo] = append(b.sources[TrackVideo], src)
	b.sources[TrackAudio] = append(b.sources[TrackAudio], src)
	return b
}

// AddTrackSource adds src for one track only.
func (b *OptionsBuilder) AddTrackSource(track TrackType, src Source) *OptionsBuilder {
	b.sources[track] = append(b.sources[track], src)
	return b
}

// SetVideoStrategy sets the video output strategy.
func (b *OptionsBuilder) SetVideoStrategy(s TrackStrategy) *OptionsBuilder {
	b.strategies[TrackVideo] = s
	return b
}

// SetAudioStrategy sets the audio output strategy.
func (b *OptionsBuilder) SetAudioStrategy(s TrackStrategy) *OptionsBuilder {
	b.strategies[TrackAudio] = s
	return b
}

// SetValidator sets the validator gating the copy-only path.
func (b *OptionsBuilder) SetValidator(v Validator) *OptionsBuilder {
	b.validator = v
	return b
}

// SetTimeInterpolator sets the timestamp mapping.
func (b *OptionsBuilder) SetTimeInterpolator(ti TimeInterpolator) *OptionsBuilder {
	b.interpolator = ti
	return b
}

// SetSpeed installs a SpeedTimeInterpolator.
func (b *OptionsBuilder) SetSpeed(speed float64) *OptionsBuilder {
	ti, err := NewSpeedTimeInterpolator(speed)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	return b.SetTimeInterpolator(ti)
}

// SetAudioStretcher sets the audio stretch policy.
func (b *OptionsBuilder) SetAudioStretcher(s AudioStretcher) *OptionsBuilder {
	b.stretcher = s
	return b
}

// SetAudioResampler sets the audio resampler.
func (b *OptionsBuilder) SetAudioResampler(r AudioResampler) *OptionsBuilder {
	b.resampler = r
	return b
}

// SetRotation sets the clockwise rotation applied to the video, on top of
// the rotation the source declares. Must be 0, 90, 180 or 270.
func (b *OptionsBuilder) SetRotation(degrees int) *OptionsBuilder {
	b.rotation = degrees
	return b
}

// SetSink sets the output.
func (b *OptionsBuilder) SetSink(s Sink) *OptionsBuilder {
	b.sink = s
	return b
}

// SetListener sets the listener.
func (b *OptionsBuilder) SetListener(l Listener) *OptionsBuilder {
	b.listener = l
	return b
}

// SetDispatcher sets where listener callbacks run. By default every run
// gets its own QueueDispatcher.
func (b *OptionsBuilder) SetDispatcher(d Dispatcher) *OptionsBuilder {
	b.dispatcher = d
	return b
}

// SetCodecs sets the codec factory. Defaults to DefaultRegistry.
func (b *OptionsBuilder) SetCodecs(c CodecFactory) *OptionsBuilder {
	b.codecs = c
	return b
}

// SetRenderer sets the factory of the renderer used by the compositor.
func (b *OptionsBuilder) SetRenderer(newRenderer func() Renderer) *OptionsBuilder {
	b.renderer = newRenderer
	return b
}

// SetFrameTimeout bounds the wait for each decoded frame.
func (b *OptionsBuilder) SetFrameTimeout(d time.Duration) *OptionsBuilder {
	b.frameTimeout = d
	return b
}

// SetLogger sets the logger. Defaults to logrus.StandardLogger().
func (b *OptionsBuilder) SetLogger(l logrus.FieldLogger) *OptionsBuilder {
	b.logger = l
	return b
}

// SetMetrics sets the metrics. Nil disables metrics.
func (b *OptionsBuilder) SetMetrics(m *Metrics) *OptionsBuilder {
	b.metrics = m
	return b
}

// Build validates the configuration and returns frozen Options.
// Failures wrap ErrConfiguration.
func (b *OptionsBuilder) Build() (*Options, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(b.errs...))
	}
	if len(b.sources[TrackVideo]) == 0 && len(b.sources[TrackAudio]) == 0 {
		return nil, fmt.Errorf("%w: no sources", ErrConfiguration)
	}
	if !validRotation(b.rotation) {
		return nil, fmt.Errorf("%w: rotation must be 0, 90, 180 or 270, got %d", ErrConfiguration, b.rotation)
	}
	if b.sink == nil {
		return nil, fmt.Errorf("%w: no sink", ErrConfiguration)
	}
	if b.frameTimeout < 0 {
		return nil, fmt.Errorf("%w: negative frame timeout %v", ErrConfiguration, b.frameTimeout)
	}
	for _, track := range TrackTypes {
		for i, src := range b.sources[track] {
			if src == nil {
				return nil, fmt.Errorf("%w: nil %s source %d", ErrConfiguration, track, i)
			}
		}
	}

	o := &Options{
		rotation:     b.rotation,
		validator:    b.validator,
		interpolator: b.interpolator,
		stretcher:    b.stretcher,
		resampler:    b.resampler,
		sink:         b.sink,
		listener:     b.listener,
		dispatcher:   b.dispatcher,
		codecs:       b.codecs,
		renderer:     b.renderer,
		frameTimeout: b.frameTimeout,
		logger:       b.logger,
		metrics:      b.metrics,
	}
	for _, track := range TrackTypes {
		o.sources[track] = append([]Source(nil), b.sources[track]...)
	}
	o.strategies = b.strategies
	if o.strategies[TrackVideo] == nil {
		o.strategies[TrackVideo] = DefaultVideoStrategyFor720x1280()
	}
	if o.strategies[TrackAudio] == nil {
		o.strategies[TrackAudio] = &DefaultAudioStrategy{}
	}
	if o.validator == nil {
		o.validator = DefaultValidator{}
	}
	if o.interpolator == nil {
		o.interpolator = DefaultTimeInterpolator{}
	}
	if o.stretcher == nil {
		o.stretcher = DefaultAudioStretcher{}
	}
	if o.resampler == nil {
		o.resampler = DefaultAudioResampler{}
	}
	if o.listener == nil {
		o.listener = nopListener{}
	}
	if o.codecs == nil {
		o.codecs = DefaultRegistry
	}
	if o.renderer == nil {
		o.renderer = func() Renderer { return NewSoftwareRenderer(nil) }
	}
	if o.frameTimeout == 0 {
		o.frameTimeout = DefaultFrameTimeout
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	return o, nil
}

// Options is the frozen configuration of a run. It is read-only and may be
// shared between goroutines.
type Options struct {
	sources      [2][]Source
	strategies   [2]TrackStrategy
	validator    Validator
	interpolator TimeInterpolator
	stretcher    AudioStretcher
	resampler    AudioResampler
	rotation     int
	sink         Sink
	listener     Listener
	dispatcher   Dispatcher
	codecs       CodecFactory
	renderer     func() Renderer
	frameTimeout time.Duration
	logger       logrus.FieldLogger
	metrics      *Metrics
}

// Rotation returns the configured clockwise rotation.
func (o *Options) Rotation() int { return o.rotation }

// Sources returns the sources registered for track.
func (o *Options) Sources(track TrackType) []Source {
	return append([]Source(nil), o.sources[track]...)
}

// Sink returns the output.
func (o *Options) Sink() Sink { return o.sink }

// TimeInterpolator returns the timestamp mapping.
func (o *Options) TimeInterpolator() TimeInterpolator { return o.interpolator }

// Validator returns the validator.
func (o *Options) Validator() Validator { return o.validator }
