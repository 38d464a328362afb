package transcoder

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// rtpWriter is implemented by the pion container writers.
type rtpWriter interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

type fileTrack struct {
	format     *MediaFormat
	writer     rtpWriter
	packetizer *packetizer
	closed     bool
}

// FileSink writes video to an IVF file and audio to an Ogg/Opus file. Either
// path may be empty when the run has no such track.
type FileSink struct {
	videoPath string
	audioPath string
	create    func(path string) (io.WriteCloser, error)

	tracks   []*fileTrack
	released bool
}

// NewFileSink creates a sink writing to the given paths. Files are created
// when their track is added.
func NewFileSink(videoPath, audioPath string) *FileSink {
	return &FileSink{
		videoPath: videoPath,
		audioPath: audioPath,
		create: func(path string) (io.WriteCloser, error) {
			return os.Create(path)
		},
	}
}

// AddTrack implements Sink.
func (s *FileSink) AddTrack(format *MediaFormat) (int, error) {
	if s.released {
		return 0, ErrReleased
	}
	p, err := newPacketizer(format.MimeType)
	if err != nil {
		return 0, err
	}

	var w rtpWriter
	switch format.Track {
	case TrackVideo:
		if s.videoPath == "" {
			return 0, fmt.Errorf("%w: no video output path", ErrConfiguration)
		}
		out, err := s.create(s.videoPath)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrSinkWrite, err)
		}
		if w, err = ivfwriter.NewWith(out, ivfwriter.WithCodec(format.MimeType)); err != nil {
			out.Close()
			return 0, fmt.Errorf("%w: ivf writer: %v", ErrSinkWrite, err)
		}
	case TrackAudio:
		if s.audioPath == "" {
			return 0, fmt.Errorf("%w: no audio output path", ErrConfiguration)
		}
		if !strings.EqualFold(format.MimeType, AudioCodecOpus.MimeType()) {
			return 0, fmt.Errorf("%w: ogg output needs opus, got %s", ErrUnsupportedFormat, format.MimeType)
		}
		out, err := s.create(s.audioPath)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrSinkWrite, err)
		}
		if w, err = oggwriter.NewWith(out, uint32(format.SampleRate), uint16(format.Channels)); err != nil {
			out.Close()
			return 0, fmt.Errorf("%w: ogg writer: %v", ErrSinkWrite, err)
		}
	default:
		return 0, fmt.Errorf("%w: track %d", ErrUnsupportedFormat, format.Track)
	}

	s.tracks = append(s.tracks, &fileTrack{format: format, writer: w, packetizer: p})
	return len(s.tracks) - 1, nil
}

// WriteSample implements Sink.
func (s *FileSink) WriteSample(track int, sample Sample) error {
	if track < 0 || track >= len(s.tracks) {
		return fmt.Errorf("%w: unknown track %d", ErrSinkWrite, track)
	}
	t := s.tracks[track]
	if t.closed {
		return fmt.Errorf("%w: %s track already ended", ErrSinkWrite, t.format.Track)
	}
	for _, pkt := range t.packetizer.Packetize(sample) {
		if err := t.writer.WriteRTP(pkt); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkWrite, err)
		}
	}
	if sample.EndOfStream() {
		t.closed = true
		if err := t.writer.Close(); err != nil {
			return fmt.Errorf("%w: close %s: %v", ErrSinkWrite, t.format.Track, err)
		}
	}
	return nil
}

// Release implements Sink. Writers of tracks that never ended are closed.
func (s *FileSink) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	var result *multierror.Error
	for _, t := range s.tracks {
		if t.closed {
			continue
		}
		t.closed = true
		if err := t.writer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
