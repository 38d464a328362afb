package transcoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

// IVFSource reads VP8, VP9 or AV1 video from an IVF stream.
type IVFSource struct {
	r        io.ReadSeeker
	closer   io.Closer
	rotation int

	reader   *ivfreader.IVFReader
	header   *ivfreader.IVFFileHeader
	format   *MediaFormat
	frames   int
	released bool
}

// NewIVFSource creates a source over r. Rotation is the clockwise rotation
// the video must be presented with, which IVF cannot carry.
func NewIVFSource(r io.ReadSeeker, rotation int) *IVFSource {
	s := &IVFSource{r: r, rotation: rotation}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenIVFSource opens an IVF file.
func OpenIVFSource(path string, rotation int) (*IVFSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewIVFSource(f, rotation), nil
}

// Initialize implements Source. It scans the stream once to measure its
// duration, since the frame count in the header is often left unset.
func (s *IVFSource) Initialize() error {
	if !validRotation(s.rotation) {
		return fmt.Errorf("%w: ivf rotation %d", ErrConfiguration, s.rotation)
	}
	if err := s.open(); err != nil {
		return err
	}
	codec := VideoCodecFromFourCC(s.header.FourCC)
	if codec == VideoCodecUnknown {
		return fmt.Errorf("%w: ivf fourcc %q", ErrUnsupportedFormat, s.header.FourCC)
	}

	var last uint64
	for {
		_, hdr, err := s.reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("scan ivf: %w", err)
		}
		last = hdr.Timestamp
		s.frames++
	}

	frameDur := s.ticks(1)
	var duration time.Duration
	if s.frames > 0 {
		duration = s.ticks(last) + frameDur
	}
	var fps float64
	if s.header.TimebaseNumerator > 0 {
		fps = float64(s.header.TimebaseDenominator) / float64(s.header.TimebaseNumerator)
	}
	s.format = &MediaFormat{
		Track:     TrackVideo,
		MimeType:  codec.MimeType(),
		Duration:  duration,
		Width:     int(s.header.Width),
		Height:    int(s.header.Height),
		FrameRate: fps,
		Rotation:  s.rotation,
	}
	return s.Rewind()
}

func (s *IVFSource) open() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek ivf: %w", err)
	}
	reader, header, err := ivfreader.NewWith(s.r)
	if err != nil {
		return fmt.Errorf("%w: ivf header: %v", ErrUnsupportedFormat, err)
	}
	s.reader, s.header = reader, header
	return nil
}

// ticks converts timebase units to a duration.
func (s *IVFSource) ticks(n uint64) time.Duration {
	if s.header.TimebaseDenominator == 0 {
		return 0
	}
	return time.Duration(n * uint64(time.Second) * uint64(s.header.TimebaseNumerator) / uint64(s.header.TimebaseDenominator))
}

// Format implements Source.
func (s *IVFSource) Format(track TrackType) *MediaFormat {
	if track != TrackVideo {
		return nil
	}
	return s.format
}

// ReadSample implements Source.
func (s *IVFSource) ReadSample(track TrackType) (Sample, TrackStatus, error) {
	if track != TrackVideo {
		return Sample{}, TrackStatusEndOfStream, nil
	}
	if s.released {
		return Sample{}, 0, ErrReleased
	}
	payload, hdr, err := s.reader.ParseNextFrame()
	if errors.Is(err, io.EOF) {
		return Sample{}, TrackStatusEndOfStream, nil
	}
	if err != nil {
		return Sample{}, 0, err
	}
	sample := Sample{
		Data:     payload,
		PTS:      s.ticks(hdr.Timestamp),
		Duration: s.ticks(1),
	}
	if s.keyFrame(payload) {
		sample.Flags |= SampleFlagKeyFrame
	}
	return sample, TrackStatusAvailable, nil
}

func (s *IVFSource) keyFrame(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	switch VideoCodecFromMime(s.format.MimeType) {
	case VideoCodecVP8:
		return payload[0]&0x01 == 0
	case VideoCodecVP9:
		// frame_marker(2) profile(2) show_existing(1) frame_type(1)
		profile := (payload[0]>>5)&0x01 | (payload[0]>>4)&0x01<<1
		shift := uint(2)
		if profile == 3 {
			shift = 1
		}
		if payload[0]>>(shift+1)&0x01 == 1 {
			return false
		}
		return payload[0]>>shift&0x01 == 0
	default:
		return false
	}
}

// Rewind implements Source.
func (s *IVFSource) Rewind() error {
	if s.released {
		return ErrReleased
	}
	return s.open()
}

// Release implements Source.
func (s *IVFSource) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
