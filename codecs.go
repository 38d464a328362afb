package transcoder

import (
	"sync"
	"time"
)

// DecodedBuffer is one output of a Decoder. Exactly one of Audio or Video is
// set unless EndOfStream is true.
//
// Video buffers are not visible to the pipeline directly: releasing them with
// render=true hands the frame to the Surface the decoder was started with.
type DecodedBuffer struct {
	PTS         time.Duration
	EndOfStream bool
	Audio       *AudioSamples
	Video       *VideoFrame

	// OnRelease is called once by Release. May be nil.
	OnRelease func(render bool) error

	once sync.Once
}

// Release returns the buffer to its decoder, rendering video buffers to the
// decoder surface when render is true. Only the first call has an effect.
func (b *DecodedBuffer) Release(render bool) error {
	var err error
	b.once.Do(func() {
		if b.OnRelease != nil {
			err = b.OnRelease(render)
		}
	})
	return err
}

// Decoder turns compressed samples into raw audio or video. All calls come
// from the transcoding goroutine, but video output may be published to the
// surface from any goroutine.
type Decoder interface {
	// Start configures the decoder. surface is nil for audio.
	Start(format *MediaFormat, surface Surface) error

	// Feed offers one sample. It returns false when the decoder has no free
	// input slot; the sample must then be offered again later. A sample with
	// SampleFlagEndOfStream starts draining.
	Feed(s Sample) (bool, error)

	// Drain pulls one decoded buffer. TrackStatusNoData means nothing is
	// ready yet; TrackStatusEndOfStream is returned with a buffer whose
	// EndOfStream is set.
	Drain() (*DecodedBuffer, TrackStatus, error)

	Release() error
}

// Encoder is the output half of a codec pair.
type Encoder interface {
	Start(format *MediaFormat) error

	// SignalEndOfStream flushes the encoder; Drain reports
	// TrackStatusEndOfStream once all output has been pulled.
	SignalEndOfStream() error

	// Drain pulls one encoded sample.
	Drain() (Sample, TrackStatus, error)

	// OutputFormat describes the encoded stream. Valid after Start.
	OutputFormat() *MediaFormat

	Release() error
}

// VideoEncoder encodes raw frames. EncodeFrame must not retain frame.
type VideoEncoder interface {
	Encoder
	EncodeFrame(frame *VideoFrame) error
}

// AudioEncoder encodes raw PCM. EncodeSamples must not retain samples.
type AudioEncoder interface {
	Encoder
	EncodeSamples(samples *AudioSamples) error
}

// CodecFactory opens codecs for the formats chosen by track strategies.
type CodecFactory interface {
	NewDecoder(format *MediaFormat) (Decoder, error)
	NewVideoEncoder(format *MediaFormat) (VideoEncoder, error)
	NewAudioEncoder(format *MediaFormat) (AudioEncoder, error)
}

// renderOnRelease returns a release hook that publishes frame to surface.
func renderOnRelease(surface Surface, frame *VideoFrame) func(bool) error {
	return func(render bool) error {
		if !render || surface == nil {
			return nil
		}
		return surface.Publish(frame)
	}
}

// outputQueue buffers codec outputs for synchronous codecs, which produce
// output as a side effect of input.
type outputQueue[T any] struct {
	items   []T
	eos     bool // end of stream signaled
	drained bool // end of stream reported
}

func (q *outputQueue[T]) push(v T) { q.items = append(q.items, v) }

func (q *outputQueue[T]) len() int { return len(q.items) }

// pop returns the next item, or the zero value with NoData or EndOfStream.
func (q *outputQueue[T]) pop() (T, TrackStatus) {
	var zero T
	if len(q.items) > 0 {
		v := q.items[0]
		q.items[0] = zero
		q.items = q.items[1:]
		return v, TrackStatusAvailable
	}
	if q.eos {
		q.drained = true
		return zero, TrackStatusEndOfStream
	}
	return zero, TrackStatusNoData
}
