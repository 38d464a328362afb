package transcoder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type trackState int

const (
	stateConfiguring trackState = iota
	stateDrainingExtractor
	stateAwaitingDecoderOutput
	stateRendering
	stateAwaitingEncoderOutput
	stateMuxing
	stateFinished
)

func (s trackState) String() string {
	switch s {
	case stateConfiguring:
		return "configuring"
	case stateDrainingExtractor:
		return "draining-extractor"
	case stateAwaitingDecoderOutput:
		return "awaiting-decoder-output"
	case stateRendering:
		return "rendering"
	case stateAwaitingEncoderOutput:
		return "awaiting-encoder-output"
	case stateMuxing:
		return "muxing"
	case stateFinished:
		return "finished"
	default:
		return fmt.Sprintf("trackState(%d)", int(s))
	}
}

// trackConfig carries what a trackTranscoder needs from the engine.
type trackConfig struct {
	track    TrackType
	input    *trackInput
	formats  []*MediaFormat // input formats, rotation already combined
	output   *MediaFormat
	opts     *Options
	teardown *releaseStack
	log      logrus.FieldLogger
	metrics  *Metrics
}

// trackTranscoder decodes, transforms and re-encodes one track. Each step
// does a bounded amount of work; only the compositor frame wait blocks.
type trackTranscoder struct {
	track  TrackType
	state  trackState
	input  *trackInput
	output *MediaFormat
	sink   Sink
	handle int
	log    logrus.FieldLogger

	decoder    Decoder
	encoder    Encoder
	video      VideoEncoder
	audio      AudioEncoder
	compositor *Compositor
	formats    []*MediaFormat
	source     int // source the compositor is configured for
	timeline   *timeline
	dropper    *frameDropper
	stretcher  AudioStretcher
	resampler  AudioResampler
	resample   ResampleStream
	streamRate int
	metrics    *Metrics

	pending       *Sample
	extractorDone bool
	decoderDone   bool
	lastWritten   time.Duration
	written       int
}

func newTrackTranscoder(cfg trackConfig) (*trackTranscoder, error) {
	t := &trackTranscoder{
		track:     cfg.track,
		input:     cfg.input,
		formats:   cfg.formats,
		output:    cfg.output,
		sink:      cfg.opts.sink,
		log:       cfg.log,
		timeline:  newTimeline(cfg.track, cfg.opts.interpolator),
		stretcher: cfg.opts.stretcher,
		resampler: cfg.opts.resampler,
		metrics:   cfg.metrics,
	}
	t.setState(stateConfiguring)
	if err := t.configure(cfg); err != nil {
		return nil, trackErr(cfg.track, StageConfigure, err)
	}
	return t, nil
}

// configure opens the codec chain. Every acquisition is pushed onto the
// teardown stack as soon as it succeeds.
func (t *trackTranscoder) configure(cfg trackConfig) error {
	first := cfg.formats[0]
	for i, f := range cfg.formats[1:] {
		if f.MimeType != first.MimeType {
			return fmt.Errorf("%w: %s source %d is %s, source 0 is %s",
				ErrUnsupportedFormat, t.track, i+1, f.MimeType, first.MimeType)
		}
	}
	codecs := cfg.opts.codecs

	decoder, err := codecs.NewDecoder(first)
	if err != nil {
		return err
	}
	t.decoder = decoder
	cfg.teardown.push(t.track.String()+" decoder", decoder.Release)

	var surface Surface
	switch t.track {
	case TrackVideo:
		renderer := cfg.opts.renderer()
		compositor, err := NewCompositor(CompositorConfig{
			InputWidth:   first.Width,
			InputHeight:  first.Height,
			OutputWidth:  t.output.Width,
			OutputHeight: t.output.Height,
			Rotation:     first.Rotation,
			ScalePolicy:  t.output.ScalePolicy,
			FrameTimeout: cfg.opts.frameTimeout,
			Renderer:     renderer,
			Logger:       t.log,
			Metrics:      cfg.metrics,
		})
		if err != nil {
			renderer.Release()
			return err
		}
		t.compositor = compositor
		surface = compositor
		cfg.teardown.push("compositor", compositor.Release)

		encoder, err := codecs.NewVideoEncoder(t.output)
		if err != nil {
			return err
		}
		t.video, t.encoder = encoder, encoder
		cfg.teardown.push("video encoder", encoder.Release)
		t.dropper = newFrameDropper(t.output.FrameRate)

	case TrackAudio:
		encoder, err := codecs.NewAudioEncoder(t.output)
		if err != nil {
			return err
		}
		t.audio, t.encoder = encoder, encoder
		cfg.teardown.push("audio encoder", encoder.Release)
		if t.output.SampleRate > first.SampleRate {
			t.log.WithFields(logrus.Fields{
				"input_rate":  first.SampleRate,
				"output_rate": t.output.SampleRate,
			}).Warn("upsampling audio, output quality is bounded by the input")
		}
	}

	if err := t.decoder.Start(first, surface); err != nil {
		return fmt.Errorf("%w: start decoder: %w", ErrCodec, err)
	}
	if err := t.encoder.Start(t.output); err != nil {
		return fmt.Errorf("%w: start encoder: %w", ErrCodec, err)
	}
	handle, err := t.sink.AddTrack(t.encoder.OutputFormat())
	if err != nil {
		return sinkErr(err)
	}
	t.handle = handle

	t.log.WithFields(logrus.Fields{
		"input":  first.String(),
		"output": t.output.String(),
	}).Info("track configured")
	return nil
}

func (t *trackTranscoder) setState(s trackState) {
	if t.state == s && s != stateConfiguring {
		return
	}
	t.state = s
	t.log.WithField("state", s).Debug("track state")
}

// step feeds one sample, handles one decoded buffer and writes whatever
// the encoder has ready. It reports whether anything moved.
func (t *trackTranscoder) step(ctx context.Context) (bool, error) {
	if t.state == stateFinished {
		return false, nil
	}
	fed, err := t.feed()
	if err != nil {
		return false, err
	}
	decoded, err := t.drainDecoder(ctx)
	if err != nil {
		return false, err
	}
	encoded, err := t.drainEncoder()
	if err != nil {
		return false, err
	}
	return fed || decoded || encoded, nil
}

func (t *trackTranscoder) feed() (bool, error) {
	if t.extractorDone {
		return false, nil
	}
	t.setState(stateDrainingExtractor)
	if t.pending == nil {
		s, status, err := t.input.Read()
		if err != nil {
			return false, trackErr(t.track, StageExtract, err)
		}
		switch status {
		case TrackStatusNoData:
			return false, nil
		case TrackStatusEndOfStream:
			s = endOfStreamSample(0)
		}
		t.pending = &s
	}

	ok, err := t.decoder.Feed(*t.pending)
	if err != nil {
		return false, trackErr(t.track, StageDecode, codecErr(err))
	}
	if !ok {
		return false, nil
	}
	if t.pending.EndOfStream() {
		t.extractorDone = true
		t.log.Debug("extractor drained")
	}
	t.pending = nil
	return true, nil
}

func (t *trackTranscoder) drainDecoder(ctx context.Context) (bool, error) {
	if t.decoderDone {
		return false, nil
	}
	t.setState(stateAwaitingDecoderOutput)
	buf, status, err := t.decoder.Drain()
	if err != nil {
		return false, trackErr(t.track, StageDecode, codecErr(err))
	}
	if status == TrackStatusNoData {
		return false, nil
	}
	if status == TrackStatusEndOfStream || buf == nil || buf.EndOfStream {
		if buf != nil {
			if err := buf.Release(false); err != nil {
				return false, trackErr(t.track, StageDecode, err)
			}
		}
		t.decoderDone = true
		if err := t.encoder.SignalEndOfStream(); err != nil {
			return false, trackErr(t.track, StageEncode, codecErr(err))
		}
		t.log.Debug("decoder drained, end of stream signaled to encoder")
		return true, nil
	}

	if t.track == TrackVideo {
		err = t.renderFrame(ctx, buf)
	} else {
		err = t.encodeAudio(buf)
	}
	if err != nil {
		return false, err
	}
	t.setState(stateAwaitingEncoderOutput)
	return true, nil
}

// renderFrame maps the frame timestamp, hands the frame to the compositor
// and encodes the redrawn frame at the output timestamp.
func (t *trackTranscoder) renderFrame(ctx context.Context, buf *DecodedBuffer) error {
	t.setState(stateRendering)
	pts := t.timeline.Map(buf.PTS)
	if !t.dropper.ShouldRender(pts) {
		t.metrics.frameDropped()
		t.log.WithField("pts", pts).Debug("frame dropped")
		return trackErr(t.track, StageDecode, buf.Release(false))
	}
	if err := t.followSource(buf.PTS); err != nil {
		return trackErr(t.track, StageRender, err)
	}
	if err := buf.Release(true); err != nil {
		return trackErr(t.track, StageRender, err)
	}
	if err := t.compositor.AwaitFrame(ctx); err != nil {
		return trackErr(t.track, StageRender, err)
	}
	frame, err := t.compositor.DrawFrame(pts)
	if err != nil {
		return trackErr(t.track, StageRender, err)
	}
	if err := t.video.EncodeFrame(frame); err != nil {
		return trackErr(t.track, StageEncode, codecErr(err))
	}
	return nil
}

// followSource reconfigures the compositor when a frame at input timestamp
// pts comes from a different concatenated source than the previous one.
func (t *trackTranscoder) followSource(pts time.Duration) error {
	i := t.input.SourceAt(pts)
	if i == t.source || i >= len(t.formats) {
		return nil
	}
	f := t.formats[i]
	if err := t.compositor.Reconfigure(f.Width, f.Height, f.Rotation); err != nil {
		return err
	}
	t.source = i
	t.log.WithFields(logrus.Fields{
		"source": i,
		"input":  f.String(),
	}).Debug("compositor switched source")
	return nil
}

// encodeAudio stretches the buffer to its remapped duration, converts it to
// the output layout and encodes it at the output timestamp.
func (t *trackTranscoder) encodeAudio(buf *DecodedBuffer) error {
	in := buf.Audio
	if in == nil || in.SampleCount == 0 {
		return trackErr(t.track, StageDecode, buf.Release(false))
	}

	start := t.timeline.Map(buf.PTS)
	end := start + t.timeline.Span(buf.PTS, in.Duration())
	frames := durationToSamples(end, in.SampleRate) - durationToSamples(start, in.SampleRate)

	out, err := t.transformAudio(in, frames)
	if releaseErr := buf.Release(false); err == nil && releaseErr != nil {
		err = trackErr(t.track, StageDecode, releaseErr)
	}
	if err != nil {
		return err
	}
	if out.SampleCount == 0 {
		return nil
	}
	out.Timestamp = start
	if err := t.audio.EncodeSamples(out); err != nil {
		return trackErr(t.track, StageEncode, codecErr(err))
	}
	return nil
}

func (t *trackTranscoder) transformAudio(in *AudioSamples, frames int) (*AudioSamples, error) {
	mixed, err := remix(in, t.output.Channels)
	if err != nil {
		return nil, trackErr(t.track, StageRender, err)
	}
	stretched, err := t.stretcher.Stretch(mixed, frames)
	if err != nil {
		return nil, trackErr(t.track, StageRender, err)
	}
	// Concatenated sources may change the input rate.
	if t.resample == nil || t.streamRate != stretched.SampleRate {
		stream, err := t.resampler.NewStream(stretched.SampleRate, t.output.SampleRate, t.output.Channels)
		if err != nil {
			return nil, trackErr(t.track, StageRender, err)
		}
		t.resample, t.streamRate = stream, stretched.SampleRate
	}
	out, err := t.resample.Resample(stretched)
	if err != nil {
		return nil, trackErr(t.track, StageRender, err)
	}
	return out, nil
}

// drainEncoder writes every encoded sample that is ready. Encoder end of
// stream finishes the track.
func (t *trackTranscoder) drainEncoder() (bool, error) {
	progressed := false
	for {
		s, status, err := t.encoder.Drain()
		if err != nil {
			return progressed, trackErr(t.track, StageEncode, codecErr(err))
		}
		switch status {
		case TrackStatusNoData:
			return progressed, nil
		case TrackStatusEndOfStream:
			if !t.decoderDone {
				return progressed, trackErr(t.track, StageEncode,
					fmt.Errorf("%w: encoder ended before the decoder", ErrProtocolViolation))
			}
			t.setState(stateMuxing)
			if err := t.sink.WriteSample(t.handle, endOfStreamSample(t.lastWritten)); err != nil {
				return progressed, trackErr(t.track, StageMux, sinkErr(err))
			}
			t.setState(stateFinished)
			t.log.WithFields(logrus.Fields{
				"samples":  t.written,
				"last_pts": t.lastWritten,
				"clamped":  t.timeline.clamped,
			}).Info("track finished")
			return true, nil
		}

		t.setState(stateMuxing)
		s.Flags &^= SampleFlagEndOfStream
		if s.PTS < t.lastWritten {
			s.PTS = t.lastWritten
		}
		if err := t.sink.WriteSample(t.handle, s); err != nil {
			return progressed, trackErr(t.track, StageMux, sinkErr(err))
		}
		t.lastWritten = s.PTS
		t.written++
		t.metrics.sampleWritten(t.track)
		progressed = true
	}
}

func (t *trackTranscoder) done() bool { return t.state == stateFinished }

func (t *trackTranscoder) progress() float64 {
	if t.state == stateFinished {
		return 1
	}
	return t.input.Progress()
}

// codecErr marks err as a codec failure unless it already carries a
// classification.
func codecErr(err error) error {
	if err == nil || errors.Is(err, ErrCodec) || errors.Is(err, ErrCanceled) ||
		errors.Is(err, ErrProtocolViolation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCodec, err)
}

// sinkErr marks err as a sink failure.
func sinkErr(err error) error {
	if err == nil || errors.Is(err, ErrSinkWrite) || errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrUnsupportedFormat) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSinkWrite, err)
}
