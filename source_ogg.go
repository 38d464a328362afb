package transcoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// opusClockRate is the granule rate of Opus in Ogg.
const opusClockRate = 48000

// OggSource reads Opus audio from an Ogg stream. Each page is expected to
// carry one Opus packet, as written by recorders built on oggwriter.
type OggSource struct {
	r      io.ReadSeeker
	closer io.Closer

	reader   *oggreader.OggReader
	header   *oggreader.OggHeader
	format   *MediaFormat
	granule  uint64
	released bool
}

// NewOggSource creates a source over r.
func NewOggSource(r io.ReadSeeker) *OggSource {
	s := &OggSource{r: r}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenOggSource opens an Ogg/Opus file.
func OpenOggSource(path string) (*OggSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewOggSource(f), nil
}

// Initialize implements Source.
func (s *OggSource) Initialize() error {
	if err := s.open(); err != nil {
		return err
	}
	var last uint64
	for {
		_, page, err := s.reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("scan ogg: %w", err)
		}
		if page.GranulePosition > last {
			last = page.GranulePosition
		}
	}
	s.format = &MediaFormat{
		Track:      TrackAudio,
		MimeType:   AudioCodecOpus.MimeType(),
		Duration:   granuleDuration(last),
		SampleRate: opusClockRate,
		Channels:   int(s.header.Channels),
	}
	return s.Rewind()
}

func (s *OggSource) open() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek ogg: %w", err)
	}
	reader, header, err := oggreader.NewWith(s.r)
	if err != nil {
		return fmt.Errorf("%w: ogg header: %v", ErrUnsupportedFormat, err)
	}
	s.reader, s.header = reader, header
	s.granule = 0
	return nil
}

func granuleDuration(g uint64) time.Duration {
	return time.Duration(g * uint64(time.Second) / opusClockRate)
}

// Format implements Source.
func (s *OggSource) Format(track TrackType) *MediaFormat {
	if track != TrackAudio {
		return nil
	}
	return s.format
}

// ReadSample implements Source.
func (s *OggSource) ReadSample(track TrackType) (Sample, TrackStatus, error) {
	if track != TrackAudio {
		return Sample{}, TrackStatusEndOfStream, nil
	}
	if s.released {
		return Sample{}, 0, ErrReleased
	}
	for {
		payload, page, err := s.reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return Sample{}, TrackStatusEndOfStream, nil
		}
		if err != nil {
			return Sample{}, 0, err
		}
		if len(payload) == 0 || bytes.HasPrefix(payload, []byte("OpusTags")) {
			continue
		}
		start := s.granule
		if page.GranulePosition > start {
			s.granule = page.GranulePosition
		}
		return Sample{
			Data:     payload,
			PTS:      granuleDuration(start),
			Duration: granuleDuration(s.granule) - granuleDuration(start),
			Flags:    SampleFlagKeyFrame,
		}, TrackStatusAvailable, nil
	}
}

// Rewind implements Source.
func (s *OggSource) Rewind() error {
	if s.released {
		return ErrReleased
	}
	return s.open()
}

// Release implements Source.
func (s *OggSource) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
