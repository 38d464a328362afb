package transcoder

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func testLogger() (logrus.FieldLogger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// counter tallies named events across goroutines.
type counter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *counter) inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[name]++
}

func (c *counter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

func (c *counter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}

// fakeSource serves prepared samples for at most one track per kind.
type fakeSource struct {
	formats [2]*MediaFormat
	samples [2][]Sample
	pos     [2]int

	// stallAfter > 0 makes reads return NoData after that many samples.
	stallAfter int
	initErr    error

	initialized int
	rewound     int
	released    int
}

func newVideoSource(d time.Duration, fps float64, width, height, rotation int) *fakeSource {
	s := &fakeSource{}
	s.formats[TrackVideo] = &MediaFormat{
		Track:     TrackVideo,
		MimeType:  VideoCodecVP8.MimeType(),
		Duration:  d,
		Width:     width,
		Height:    height,
		FrameRate: fps,
		Rotation:  rotation,
	}
	interval := time.Duration(float64(time.Second) / fps)
	n := int(math.Round(d.Seconds() * fps))
	for i := 0; i < n; i++ {
		sample := Sample{
			Data:     []byte{0x10, byte(i), byte(i >> 8)},
			PTS:      time.Duration(i) * interval,
			Duration: interval,
		}
		if i%30 == 0 {
			sample.Flags = SampleFlagKeyFrame
		}
		s.samples[TrackVideo] = append(s.samples[TrackVideo], sample)
	}
	return s
}

func newAudioSource(d time.Duration, rate, channels int) *fakeSource {
	s := &fakeSource{}
	s.formats[TrackAudio] = &MediaFormat{
		Track:      TrackAudio,
		MimeType:   AudioCodecOpus.MimeType(),
		Duration:   d,
		SampleRate: rate,
		Channels:   channels,
	}
	const packet = 20 * time.Millisecond
	for i := 0; i < int(d/packet); i++ {
		s.samples[TrackAudio] = append(s.samples[TrackAudio], Sample{
			Data:     []byte{0xfc, byte(i), byte(i >> 8)},
			PTS:      time.Duration(i) * packet,
			Duration: packet,
			Flags:    SampleFlagKeyFrame,
		})
	}
	return s
}

func (s *fakeSource) Initialize() error {
	s.initialized++
	return s.initErr
}

func (s *fakeSource) Format(track TrackType) *MediaFormat { return s.formats[track] }

func (s *fakeSource) ReadSample(track TrackType) (Sample, TrackStatus, error) {
	if s.released > 0 {
		return Sample{}, 0, ErrReleased
	}
	if s.formats[track] == nil {
		return Sample{}, TrackStatusEndOfStream, nil
	}
	if s.stallAfter > 0 && s.pos[track] >= s.stallAfter {
		return Sample{}, TrackStatusNoData, nil
	}
	if s.pos[track] >= len(s.samples[track]) {
		return Sample{}, TrackStatusEndOfStream, nil
	}
	sample := s.samples[track][s.pos[track]]
	s.pos[track]++
	return sample, TrackStatusAvailable, nil
}

func (s *fakeSource) Rewind() error {
	s.rewound++
	s.pos = [2]int{}
	return nil
}

func (s *fakeSource) Release() error {
	s.released++
	return nil
}

// fakeSink records every track and sample it receives.
type fakeSink struct {
	formats  []*MediaFormat
	samples  [][]Sample
	released int
	writeErr error
}

func (s *fakeSink) AddTrack(format *MediaFormat) (int, error) {
	s.formats = append(s.formats, format.Clone())
	s.samples = append(s.samples, nil)
	return len(s.formats) - 1, nil
}

func (s *fakeSink) WriteSample(track int, sample Sample) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	if track < 0 || track >= len(s.samples) {
		return fmt.Errorf("unknown track %d", track)
	}
	sample.Data = append([]byte(nil), sample.Data...)
	s.samples[track] = append(s.samples[track], sample)
	return nil
}

func (s *fakeSink) Release() error {
	s.released++
	return nil
}

// track returns the samples written for a track type.
func (s *fakeSink) track(t TrackType) []Sample {
	for i, f := range s.formats {
		if f.Track == t {
			return s.samples[i]
		}
	}
	return nil
}

// fakeCodecs opens in-memory codecs. Decoders emit a test pattern for video
// and silence for audio; encoders emit one sample per input.
type fakeCodecs struct {
	opened   counter
	released counter

	videoEncodeErr error
	// withholdFrames makes video decoders never publish to their surface.
	withholdFrames bool

	mu       sync.Mutex
	videoEnc *fakeVideoEncoder
	audioEnc *fakeAudioEncoder
}

func (c *fakeCodecs) NewDecoder(format *MediaFormat) (Decoder, error) {
	c.opened.inc(format.Track.String() + " decoder")
	return &fakeDecoder{codecs: c}, nil
}

func (c *fakeCodecs) NewVideoEncoder(format *MediaFormat) (VideoEncoder, error) {
	c.opened.inc("video encoder")
	e := &fakeVideoEncoder{codecs: c, err: c.videoEncodeErr}
	c.mu.Lock()
	c.videoEnc = e
	c.mu.Unlock()
	return e, nil
}

func (c *fakeCodecs) NewAudioEncoder(format *MediaFormat) (AudioEncoder, error) {
	c.opened.inc("audio encoder")
	e := &fakeAudioEncoder{codecs: c}
	c.mu.Lock()
	c.audioEnc = e
	c.mu.Unlock()
	return e, nil
}

// testPatternFrame is dark on the left half and bright on the right half.
func testPatternFrame(width, height int) *VideoFrame {
	f := NewI420Frame(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := byte(16)
			if x >= width/2 {
				v = 235
			}
			f.Data[0][y*f.Stride[0]+x] = v
		}
	}
	for i := range f.Data[1] {
		f.Data[1][i] = 128
		f.Data[2][i] = 128
	}
	return f
}

type fakeDecoder struct {
	codecs  *fakeCodecs
	format  *MediaFormat
	surface Surface
	queue   outputQueue[*DecodedBuffer]
}

func (d *fakeDecoder) Start(format *MediaFormat, surface Surface) error {
	d.format, d.surface = format.Clone(), surface
	return nil
}

func (d *fakeDecoder) Feed(s Sample) (bool, error) {
	if d.format == nil {
		return false, fmt.Errorf("%w: not started", ErrProtocolViolation)
	}
	if d.queue.len() > 0 {
		return false, nil
	}
	if s.EndOfStream() {
		d.queue.eos = true
		return true, nil
	}
	buf := &DecodedBuffer{PTS: s.PTS}
	if d.format.IsVideo() {
		frame := testPatternFrame(d.format.Width, d.format.Height)
		frame.Timestamp = s.PTS
		buf.Video = frame
		if !d.codecs.withholdFrames {
			buf.OnRelease = renderOnRelease(d.surface, frame)
		}
	} else {
		n := durationToSamples(s.Duration, d.format.SampleRate)
		pcm := make(pcm16, n*d.format.Channels)
		for i := range pcm {
			pcm[i] = int16(i % 100)
		}
		buf.Audio = newAudioSamples(pcm, d.format.SampleRate, d.format.Channels, s.PTS)
	}
	d.queue.push(buf)
	return true, nil
}

func (d *fakeDecoder) Drain() (*DecodedBuffer, TrackStatus, error) {
	buf, status := d.queue.pop()
	return buf, status, nil
}

func (d *fakeDecoder) Release() error {
	track := "unknown"
	if d.format != nil {
		track = d.format.Track.String()
	}
	d.codecs.released.inc(track + " decoder")
	return nil
}

type fakeVideoEncoder struct {
	codecs *fakeCodecs
	format *MediaFormat
	queue  outputQueue[Sample]
	err    error

	frames int
	first  *VideoFrame
}

func (e *fakeVideoEncoder) Start(format *MediaFormat) error {
	e.format = format.Clone()
	return nil
}

func (e *fakeVideoEncoder) EncodeFrame(frame *VideoFrame) error {
	if e.err != nil {
		return e.err
	}
	if e.queue.eos {
		return fmt.Errorf("%w: frame after end of stream", ErrProtocolViolation)
	}
	if frame.Width != e.format.Width || frame.Height != e.format.Height {
		return fmt.Errorf("%w: frame %dx%d, encoder %dx%d", ErrUnsupportedFormat,
			frame.Width, frame.Height, e.format.Width, e.format.Height)
	}
	if e.first == nil {
		e.first = frame.Clone()
	}
	s := Sample{Data: []byte{0x10, byte(e.frames)}, PTS: frame.Timestamp}
	if e.frames == 0 {
		s.Flags = SampleFlagKeyFrame
	}
	e.queue.push(s)
	e.frames++
	return nil
}

func (e *fakeVideoEncoder) SignalEndOfStream() error {
	if e.queue.eos {
		return fmt.Errorf("%w: end of stream signaled twice", ErrProtocolViolation)
	}
	e.queue.eos = true
	return nil
}

func (e *fakeVideoEncoder) Drain() (Sample, TrackStatus, error) {
	s, status := e.queue.pop()
	return s, status, nil
}

func (e *fakeVideoEncoder) OutputFormat() *MediaFormat { return e.format.Clone() }

func (e *fakeVideoEncoder) Release() error {
	e.codecs.released.inc("video encoder")
	return nil
}

type fakeAudioEncoder struct {
	codecs *fakeCodecs
	format *MediaFormat
	queue  outputQueue[Sample]

	frames int
}

func (e *fakeAudioEncoder) Start(format *MediaFormat) error {
	e.format = format.Clone()
	return nil
}

func (e *fakeAudioEncoder) EncodeSamples(samples *AudioSamples) error {
	if e.queue.eos {
		return fmt.Errorf("%w: samples after end of stream", ErrProtocolViolation)
	}
	if samples.SampleRate != e.format.SampleRate || samples.Channels != e.format.Channels {
		return fmt.Errorf("%w: samples %d Hz x %d", ErrUnsupportedFormat, samples.SampleRate, samples.Channels)
	}
	e.frames += samples.SampleCount
	e.queue.push(Sample{
		Data:     []byte{0xfc, byte(e.queue.len())},
		PTS:      samples.Timestamp,
		Duration: samples.Duration(),
		Flags:    SampleFlagKeyFrame,
	})
	return nil
}

func (e *fakeAudioEncoder) SignalEndOfStream() error {
	if e.queue.eos {
		return fmt.Errorf("%w: end of stream signaled twice", ErrProtocolViolation)
	}
	e.queue.eos = true
	return nil
}

func (e *fakeAudioEncoder) Drain() (Sample, TrackStatus, error) {
	s, status := e.queue.pop()
	return s, status, nil
}

func (e *fakeAudioEncoder) OutputFormat() *MediaFormat { return e.format.Clone() }

func (e *fakeAudioEncoder) Release() error {
	e.codecs.released.inc("audio encoder")
	return nil
}

// countingRenderer wraps the software renderer and records every draw.
type countingRenderer struct {
	*SoftwareRenderer
	renders  int
	releases int
	matrices []Mat4
}

func newCountingRenderer() *countingRenderer {
	return &countingRenderer{SoftwareRenderer: NewSoftwareRenderer(nil)}
}

func (r *countingRenderer) Render(dst, src *VideoFrame, m Mat4) error {
	r.renders++
	r.matrices = append(r.matrices, m)
	return r.SoftwareRenderer.Render(dst, src, m)
}

func (r *countingRenderer) Release() error {
	r.releases++
	return r.SoftwareRenderer.Release()
}

// recordingListener keeps every callback in arrival order.
type recordingListener struct {
	mu        sync.Mutex
	events    []string
	progress  []float64
	completed []CompletionCode
	canceled  int
	failed    []error
}

func (l *recordingListener) OnProgress(p float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "progress")
	l.progress = append(l.progress, p)
}

func (l *recordingListener) OnCompleted(code CompletionCode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "completed")
	l.completed = append(l.completed, code)
}

func (l *recordingListener) OnCanceled() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "canceled")
	l.canceled++
}

func (l *recordingListener) OnFailed(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "failed")
	l.failed = append(l.failed, err)
}

func (l *recordingListener) terminal() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.completed) + l.canceled + len(l.failed)
}

// strategyFunc adapts a function to TrackStrategy.
type strategyFunc func(inputs []*MediaFormat) (TrackMode, *MediaFormat, error)

func (f strategyFunc) CreateOutputFormat(inputs []*MediaFormat) (TrackMode, *MediaFormat, error) {
	return f(inputs)
}

var errBoom = errors.New("boom")
