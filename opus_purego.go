//go:build (darwin || linux) && !noopus

// Opus codecs backed by libstream_opus, a thin primitive-only wrapper around
// libopus, loaded at runtime with purego.

package transcoder

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	streamOpusOnce    sync.Once
	streamOpusHandle  uintptr
	streamOpusInitErr error
)

// libstream_opus function pointers
var (
	streamOpusEncoderCreate     func(sampleRate, channels, application int32) uint64
	streamOpusEncoderEncode     func(encoder uint64, pcm uintptr, frameSize int32, outData uintptr, outCapacity int32) int32
	streamOpusEncoderSetBitrate func(encoder uint64, bitrate int32) int32
	streamOpusEncoderDestroy    func(encoder uint64)

	streamOpusDecoderCreate  func(sampleRate, channels int32) uint64
	streamOpusDecoderDecode  func(decoder uint64, data uintptr, dataLen int32, pcm uintptr, frameSize, decodeFEC int32) int32
	streamOpusDecoderDestroy func(decoder uint64)

	streamOpusGetError func() uintptr
)

// Constants from stream_opus.h
const (
	streamOpusApplicationAudio = 2049

	// Largest packet libopus produces.
	opusMaxPacket = 1275 * 3
	// Encoder frame length.
	opusFrameDuration = 20 * time.Millisecond
)

func loadStreamOpus() error {
	streamOpusOnce.Do(func() {
		paths := nativeLibPaths("libstream_opus", "STREAM_OPUS_LIB_PATH", "STREAM_SDK_LIB_PATH")
		streamOpusHandle, streamOpusInitErr = openNativeLib("libstream_opus", paths, loadStreamOpusSymbols)
	})
	return streamOpusInitErr
}

func loadStreamOpusSymbols(handle uintptr) error {
	purego.RegisterLibFunc(&streamOpusEncoderCreate, handle, "stream_opus_encoder_create")
	purego.RegisterLibFunc(&streamOpusEncoderEncode, handle, "stream_opus_encoder_encode")
	purego.RegisterLibFunc(&streamOpusEncoderSetBitrate, handle, "stream_opus_encoder_set_bitrate")
	purego.RegisterLibFunc(&streamOpusEncoderDestroy, handle, "stream_opus_encoder_destroy")

	purego.RegisterLibFunc(&streamOpusDecoderCreate, handle, "stream_opus_decoder_create")
	purego.RegisterLibFunc(&streamOpusDecoderDecode, handle, "stream_opus_decoder_decode")
	purego.RegisterLibFunc(&streamOpusDecoderDestroy, handle, "stream_opus_decoder_destroy")

	purego.RegisterLibFunc(&streamOpusGetError, handle, "stream_opus_get_error")
	return nil
}

func getOpusError() string {
	ptr := streamOpusGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

func validOpusRate(rate int) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	default:
		return false
	}
}

// opusDecoder decodes one packet per Feed into S16 PCM.
type opusDecoder struct {
	handle     uint64
	sampleRate int
	channels   int
	pcm        []int16
	queue      outputQueue[*DecodedBuffer]
}

func newOpusDecoder(format *MediaFormat) (Decoder, error) {
	if err := loadStreamOpus(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderNotFound, err)
	}
	return &opusDecoder{}, nil
}

func (d *opusDecoder) Start(format *MediaFormat, _ Surface) error {
	if d.handle != 0 {
		return fmt.Errorf("%w: decoder already started", ErrProtocolViolation)
	}
	rate, channels := format.SampleRate, format.Channels
	if rate <= 0 {
		rate = opusClockRate
	}
	if channels <= 0 {
		channels = 1
	}
	if !validOpusRate(rate) || channels > 2 {
		return fmt.Errorf("%w: opus %d Hz x %d", ErrUnsupportedFormat, rate, channels)
	}
	d.handle = streamOpusDecoderCreate(int32(rate), int32(channels))
	if d.handle == 0 {
		return fmt.Errorf("%w: create opus decoder: %s", ErrCodec, getOpusError())
	}
	d.sampleRate, d.channels = rate, channels
	// 120 ms, the longest Opus frame.
	d.pcm = make([]int16, rate*120/1000*channels)
	return nil
}

func (d *opusDecoder) Feed(s Sample) (bool, error) {
	if d.handle == 0 {
		return false, fmt.Errorf("%w: decoder not started", ErrProtocolViolation)
	}
	if d.queue.eos {
		return false, fmt.Errorf("%w: input after end of stream", ErrProtocolViolation)
	}
	if d.queue.len() > 0 {
		return false, nil
	}
	if s.EndOfStream() {
		d.queue.eos = true
		return true, nil
	}
	if len(s.Data) == 0 {
		return true, nil
	}

	n := streamOpusDecoderDecode(
		d.handle,
		uintptr(unsafe.Pointer(&s.Data[0])),
		int32(len(s.Data)),
		uintptr(unsafe.Pointer(&d.pcm[0])),
		int32(len(d.pcm)/d.channels),
		0,
	)
	runtime.KeepAlive(s.Data)
	if n < 0 {
		return false, fmt.Errorf("%w: opus decode: %s", ErrCodec, getOpusError())
	}
	if n == 0 {
		return true, nil
	}
	pcm := append(pcm16(nil), d.pcm[:int(n)*d.channels]...)
	d.queue.push(&DecodedBuffer{
		PTS:   s.PTS,
		Audio: newAudioSamples(pcm, d.sampleRate, d.channels, s.PTS),
	})
	return true, nil
}

func (d *opusDecoder) Drain() (*DecodedBuffer, TrackStatus, error) {
	buf, status := d.queue.pop()
	if status == TrackStatusEndOfStream {
		return &DecodedBuffer{EndOfStream: true}, status, nil
	}
	return buf, status, nil
}

func (d *opusDecoder) Release() error {
	if d.handle != 0 {
		streamOpusDecoderDestroy(d.handle)
		d.handle = 0
	}
	d.queue = outputQueue[*DecodedBuffer]{}
	return nil
}

// opusEncoder collects PCM into 20 ms frames. The tail is padded with
// silence at end of stream.
type opusEncoder struct {
	handle    uint64
	format    *MediaFormat
	frameSize int // samples per channel
	pending   pcm16
	start     time.Duration // timestamp of pending[0]
	out       []byte
	queue     outputQueue[Sample]
}

func newOpusEncoder(format *MediaFormat) (AudioEncoder, error) {
	if err := loadStreamOpus(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderNotFound, err)
	}
	return &opusEncoder{}, nil
}

func (e *opusEncoder) Start(format *MediaFormat) error {
	if e.handle != 0 {
		return fmt.Errorf("%w: encoder already started", ErrProtocolViolation)
	}
	if !validOpusRate(format.SampleRate) || format.Channels < 1 || format.Channels > 2 {
		return fmt.Errorf("%w: opus %d Hz x %d", ErrUnsupportedFormat, format.SampleRate, format.Channels)
	}
	e.handle = streamOpusEncoderCreate(int32(format.SampleRate), int32(format.Channels), streamOpusApplicationAudio)
	if e.handle == 0 {
		return fmt.Errorf("%w: create opus encoder: %s", ErrCodec, getOpusError())
	}
	if format.BitrateBps > 0 {
		if rc := streamOpusEncoderSetBitrate(e.handle, int32(format.BitrateBps)); rc < 0 {
			return fmt.Errorf("%w: set opus bitrate: %s", ErrCodec, getOpusError())
		}
	}
	e.format = format.Clone()
	e.frameSize = durationToSamples(opusFrameDuration, format.SampleRate)
	e.out = make([]byte, opusMaxPacket)
	return nil
}

func (e *opusEncoder) EncodeSamples(samples *AudioSamples) error {
	if e.handle == 0 {
		return fmt.Errorf("%w: encoder not started", ErrProtocolViolation)
	}
	if e.queue.eos {
		return fmt.Errorf("%w: samples after end of stream", ErrProtocolViolation)
	}
	if samples.SampleRate != e.format.SampleRate || samples.Channels != e.format.Channels {
		return fmt.Errorf("%w: encoder expects %d Hz x %d, got %d Hz x %d", ErrUnsupportedFormat,
			e.format.SampleRate, e.format.Channels, samples.SampleRate, samples.Channels)
	}
	if len(e.pending) == 0 {
		e.start = samples.Timestamp
	}
	e.pending = append(e.pending, decodePCM16(samples.Data)...)

	frame := e.frameSize * e.format.Channels
	for len(e.pending) >= frame {
		if err := e.encode(e.pending[:frame]); err != nil {
			return err
		}
		e.pending = append(e.pending[:0], e.pending[frame:]...)
	}
	return nil
}

func (e *opusEncoder) encode(pcm pcm16) error {
	n := streamOpusEncoderEncode(
		e.handle,
		uintptr(unsafe.Pointer(&pcm[0])),
		int32(e.frameSize),
		uintptr(unsafe.Pointer(&e.out[0])),
		int32(len(e.out)),
	)
	runtime.KeepAlive(pcm)
	if n < 0 {
		return fmt.Errorf("%w: opus encode: %s", ErrCodec, getOpusError())
	}
	if n > 0 {
		e.queue.push(Sample{
			Data:     append([]byte(nil), e.out[:n]...),
			PTS:      e.start,
			Duration: opusFrameDuration,
			Flags:    SampleFlagKeyFrame,
		})
	}
	e.start += opusFrameDuration
	return nil
}

func (e *opusEncoder) SignalEndOfStream() error {
	if e.queue.eos {
		return fmt.Errorf("%w: end of stream signaled twice", ErrProtocolViolation)
	}
	if len(e.pending) > 0 {
		frame := e.frameSize * e.format.Channels
		padded := make(pcm16, frame)
		copy(padded, e.pending)
		if err := e.encode(padded); err != nil {
			return err
		}
		e.pending = e.pending[:0]
	}
	e.queue.eos = true
	return nil
}

func (e *opusEncoder) Drain() (Sample, TrackStatus, error) {
	s, status := e.queue.pop()
	return s, status, nil
}

func (e *opusEncoder) OutputFormat() *MediaFormat { return e.format.Clone() }

func (e *opusEncoder) Release() error {
	if e.handle != 0 {
		streamOpusEncoderDestroy(e.handle)
		e.handle = 0
	}
	e.queue = outputQueue[Sample]{}
	return nil
}

// Register Opus encoder and decoder (libopus)
func init() {
	if err := loadStreamOpus(); err != nil {
		return
	}
	mime := AudioCodecOpus.MimeType()
	DefaultRegistry.RegisterDecoder(mime, ProviderLibopus, newOpusDecoder)
	DefaultRegistry.RegisterAudioEncoder(mime, ProviderLibopus, newOpusEncoder)
}
