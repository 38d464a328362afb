//go:build (darwin || linux) && !novpx

// VP8/VP9 codecs backed by libmedia_vpx, a thin primitive-only wrapper
// around libvpx, loaded at runtime with purego.
//
// Library locations checked (in order):
//   - MEDIA_VPX_LIB_PATH environment variable
//   - MEDIA_SDK_LIB_PATH environment variable
//   - next to the executable
//   - build/ and build/ffi/ of the module
//   - system library paths

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
	mediaVPXOnce    sync.Once
	mediaVPXHandle  uintptr
	mediaVPXInitErr error
)

// libmedia_vpx function pointers
var (
	mediaVPXEncoderCreate        func(codec, width, height, fps, bitrateKbps, threads int32) uint64
	mediaVPXEncoderEncode        func(encoder uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride, forceKeyframe int32, outData uintptr, outCapacity int32, outFrameType, outPts uintptr) int32
	mediaVPXEncoderMaxOutputSize func(encoder uint64) int32
	mediaVPXEncoderDestroy       func(encoder uint64)

	mediaVPXDecoderCreate   func(codec, threads int32) uint64
	mediaVPXDecoderDecodeV2 func(decoder uint64, data uintptr, dataLen int32, resultOut uintptr) int32
	mediaVPXDecoderDestroy  func(decoder uint64)

	mediaVPXGetError       func() uintptr
	mediaVPXCodecAvailable func(codec int32) int32
)

// mediaVPXDecodeResult matches media_vpx_decode_result_t in C.
// It must be heap-allocated for purego to work correctly on arm64.
type mediaVPXDecodeResult struct {
	YPtr     uint64
	UPtr     uint64
	VPtr     uint64
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
	Result   int32 // 1=decoded, 0=buffering, <0=error
	Reserved int32
}

// Constants from media_vpx.h
const (
	mediaVPXCodecVP8 = 0
	mediaVPXCodecVP9 = 1

	mediaVPXFrameKey = 0
)

// loadMediaVPX loads the libmedia_vpx shared library once.
func loadMediaVPX() error {
	mediaVPXOnce.Do(func() {
		paths := nativeLibPaths("libmedia_vpx", "MEDIA_VPX_LIB_PATH", "MEDIA_SDK_LIB_PATH")
		mediaVPXHandle, mediaVPXInitErr = openNativeLib("libmedia_vpx", paths, loadMediaVPXSymbols)
	})
	return mediaVPXInitErr
}

func loadMediaVPXSymbols(handle uintptr) error {
	purego.RegisterLibFunc(&mediaVPXEncoderCreate, handle, "media_vpx_encoder_create")
	purego.RegisterLibFunc(&mediaVPXEncoderEncode, handle, "media_vpx_encoder_encode")
	purego.RegisterLibFunc(&mediaVPXEncoderMaxOutputSize, handle, "media_vpx_encoder_max_output_size")
	purego.RegisterLibFunc(&mediaVPXEncoderDestroy, handle, "media_vpx_encoder_destroy")

	purego.RegisterLibFunc(&mediaVPXDecoderCreate, handle, "media_vpx_decoder_create")
	purego.RegisterLibFunc(&mediaVPXDecoderDecodeV2, handle, "media_vpx_decoder_decode_v2")
	purego.RegisterLibFunc(&mediaVPXDecoderDestroy, handle, "media_vpx_decoder_destroy")

	purego.RegisterLibFunc(&mediaVPXGetError, handle, "media_vpx_get_error")
	purego.RegisterLibFunc(&mediaVPXCodecAvailable, handle, "media_vpx_codec_available")
	return nil
}

func getVPXError() string {
	ptr := mediaVPXGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

func vpxCodecID(mime string) (int32, error) {
	switch VideoCodecFromMime(mime) {
	case VideoCodecVP8:
		return mediaVPXCodecVP8, nil
	case VideoCodecVP9:
		return mediaVPXCodecVP9, nil
	default:
		return 0, fmt.Errorf("%w: libvpx cannot handle %s", ErrCodecNotSupported, mime)
	}
}

func vpxThreads() int32 {
	return int32(min(runtime.NumCPU(), 4))
}

// vpxDecoder decodes VP8/VP9 synchronously. It holds at most one decoded
// frame, so Feed refuses input until the previous frame was drained.
type vpxDecoder struct {
	codec   int32
	handle  uint64
	result  *mediaVPXDecodeResult
	surface Surface
	queue   outputQueue[*DecodedBuffer]
}

func newVPXDecoder(format *MediaFormat) (Decoder, error) {
	codec, err := vpxCodecID(format.MimeType)
	if err != nil {
		return nil, err
	}
	if err := loadMediaVPX(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderNotFound, err)
	}
	return &vpxDecoder{codec: codec, result: &mediaVPXDecodeResult{}}, nil
}

func (d *vpxDecoder) Start(format *MediaFormat, surface Surface) error {
	if d.handle != 0 {
		return fmt.Errorf("%w: decoder already started", ErrProtocolViolation)
	}
	d.handle = mediaVPXDecoderCreate(d.codec, vpxThreads())
	if d.handle == 0 {
		return fmt.Errorf("%w: create vpx decoder: %s", ErrCodec, getVPXError())
	}
	d.surface = surface
	return nil
}

func (d *vpxDecoder) Feed(s Sample) (bool, error) {
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

	out := d.result
	result := mediaVPXDecoderDecodeV2(
		d.handle,
		uintptr(unsafe.Pointer(&s.Data[0])),
		int32(len(s.Data)),
		uintptr(unsafe.Pointer(out)),
	)
	runtime.KeepAlive(s.Data)
	runtime.KeepAlive(out)

	if result < 0 {
		return false, fmt.Errorf("%w: vpx decode: %s", ErrCodec, getVPXError())
	}
	w, h := int(out.Width), int(out.Height)
	if result == 0 || w == 0 || h == 0 || out.YPtr == 0 {
		return true, nil // buffering
	}

	frame := NewI420Frame(w, h)
	frame.Timestamp = s.PTS
	copyPlane(frame.Data[0], frame.Stride[0], uintptr(out.YPtr), int(out.YStride), w, h)
	uvW, uvH := (w+1)/2, (h+1)/2
	copyPlane(frame.Data[1], frame.Stride[1], uintptr(out.UPtr), int(out.UVStride), uvW, uvH)
	copyPlane(frame.Data[2], frame.Stride[2], uintptr(out.VPtr), int(out.UVStride), uvW, uvH)

	d.queue.push(&DecodedBuffer{
		PTS:       s.PTS,
		Video:     frame,
		OnRelease: renderOnRelease(d.surface, frame),
	})
	return true, nil
}

// copyPlane copies a codec-owned plane into dst row by row.
func copyPlane(dst []byte, dstStride int, src uintptr, srcStride, width, height int) {
	for row := 0; row < height; row++ {
		line := unsafe.Slice((*byte)(unsafe.Pointer(src+uintptr(row*srcStride))), width)
		copy(dst[row*dstStride:row*dstStride+width], line)
	}
}

func (d *vpxDecoder) Drain() (*DecodedBuffer, TrackStatus, error) {
	buf, status := d.queue.pop()
	if status == TrackStatusEndOfStream {
		return &DecodedBuffer{EndOfStream: true}, status, nil
	}
	return buf, status, nil
}

func (d *vpxDecoder) Release() error {
	if d.handle != 0 {
		mediaVPXDecoderDestroy(d.handle)
		d.handle = 0
	}
	d.queue = outputQueue[*DecodedBuffer]{}
	return nil
}

// vpxEncoder encodes VP8/VP9 synchronously; every encoded frame is queued
// until drained.
type vpxEncoder struct {
	codec    int32
	format   *MediaFormat
	handle   uint64
	buf      []byte
	queue    outputQueue[Sample]
	frameDur time.Duration
	keyEvery time.Duration
	lastKey  time.Duration
	keyed    bool
}

func newVPXEncoder(format *MediaFormat) (VideoEncoder, error) {
	codec, err := vpxCodecID(format.MimeType)
	if err != nil {
		return nil, err
	}
	if err := loadMediaVPX(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderNotFound, err)
	}
	return &vpxEncoder{codec: codec}, nil
}

func (e *vpxEncoder) Start(format *MediaFormat) error {
	if e.handle != 0 {
		return fmt.Errorf("%w: encoder already started", ErrProtocolViolation)
	}
	if err := format.Validate(); err != nil {
		return err
	}
	fps := format.FrameRate
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	kbps := format.BitrateBps / 1000
	if kbps <= 0 {
		kbps = 1000
	}
	e.handle = mediaVPXEncoderCreate(e.codec, int32(format.Width), int32(format.Height),
		int32(fps+0.5), int32(kbps), vpxThreads())
	if e.handle == 0 {
		return fmt.Errorf("%w: create vpx encoder: %s", ErrCodec, getVPXError())
	}
	e.format = format.Clone()
	e.buf = make([]byte, mediaVPXEncoderMaxOutputSize(e.handle))
	e.frameDur = time.Duration(float64(time.Second) / fps)
	e.keyEvery = format.KeyFrameInterval
	return nil
}

func (e *vpxEncoder) EncodeFrame(frame *VideoFrame) error {
	if e.handle == 0 {
		return fmt.Errorf("%w: encoder not started", ErrProtocolViolation)
	}
	if e.queue.eos {
		return fmt.Errorf("%w: frame after end of stream", ErrProtocolViolation)
	}
	if frame.Format != PixelFormatI420 || frame.Width != e.format.Width || frame.Height != e.format.Height {
		return fmt.Errorf("%w: encoder expects %dx%d i420, got %dx%d %s", ErrUnsupportedFormat,
			e.format.Width, e.format.Height, frame.Width, frame.Height, frame.Format)
	}

	forceKeyframe := int32(0)
	if !e.keyed || (e.keyEvery > 0 && frame.Timestamp-e.lastKey >= e.keyEvery) {
		forceKeyframe = 1
	}

	var frameType int32
	var pts int64
	result := mediaVPXEncoderEncode(
		e.handle,
		uintptr(unsafe.Pointer(&frame.Data[0][0])),
		uintptr(unsafe.Pointer(&frame.Data[1][0])),
		uintptr(unsafe.Pointer(&frame.Data[2][0])),
		int32(frame.Stride[0]),
		int32(frame.Stride[1]),
		forceKeyframe,
		uintptr(unsafe.Pointer(&e.buf[0])),
		int32(len(e.buf)),
		uintptr(unsafe.Pointer(&frameType)),
		uintptr(unsafe.Pointer(&pts)),
	)
	runtime.KeepAlive(frame.Data)
	if result < 0 {
		return fmt.Errorf("%w: vpx encode: %s", ErrCodec, getVPXError())
	}
	if result == 0 {
		return nil
	}

	s := Sample{
		Data:     append([]byte(nil), e.buf[:result]...),
		PTS:      frame.Timestamp,
		Duration: e.frameDur,
	}
	if frameType == mediaVPXFrameKey {
		s.Flags |= SampleFlagKeyFrame
		e.keyed, e.lastKey = true, frame.Timestamp
	}
	e.queue.push(s)
	return nil
}

func (e *vpxEncoder) SignalEndOfStream() error {
	if e.queue.eos {
		return fmt.Errorf("%w: end of stream signaled twice", ErrProtocolViolation)
	}
	e.queue.eos = true
	return nil
}

func (e *vpxEncoder) Drain() (Sample, TrackStatus, error) {
	s, status := e.queue.pop()
	return s, status, nil
}

func (e *vpxEncoder) OutputFormat() *MediaFormat { return e.format.Clone() }

func (e *vpxEncoder) Release() error {
	if e.handle != 0 {
		mediaVPXEncoderDestroy(e.handle)
		e.handle = 0
	}
	e.queue = outputQueue[Sample]{}
	return nil
}

// Register VP8/VP9 encoders and decoders (libvpx)
func init() {
	if err := loadMediaVPX(); err != nil {
		return
	}
	for _, c := range []struct {
		id    int32
		codec VideoCodec
	}{
		{mediaVPXCodecVP8, VideoCodecVP8},
		{mediaVPXCodecVP9, VideoCodecVP9},
	} {
		if mediaVPXCodecAvailable(c.id) == 0 {
			continue
		}
		DefaultRegistry.RegisterDecoder(c.codec.MimeType(), ProviderLibvpx, newVPXDecoder)
		DefaultRegistry.RegisterVideoEncoder(c.codec.MimeType(), ProviderLibvpx, newVPXEncoder)
	}
}
