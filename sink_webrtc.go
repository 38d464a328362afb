package transcoder

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// WebRTCSink writes each output track to a TrackLocalStaticSample, ready to
// be added to a PeerConnection. With Realtime set, samples are paced to
// their presentation timestamps.
type WebRTCSink struct {
	StreamID string
	Realtime bool

	tracks   []*webrtcTrack
	start    time.Time
	released bool
}

type webrtcTrack struct {
	format  *MediaFormat
	local   *webrtc.TrackLocalStaticSample
	lastPTS time.Duration
	started bool
	ended   bool
}

// NewWebRTCSink creates a sink. An empty streamID gets a random one.
func NewWebRTCSink(streamID string, realtime bool) *WebRTCSink {
	if streamID == "" {
		streamID = uuid.NewString()
	}
	return &WebRTCSink{StreamID: streamID, Realtime: realtime}
}

// AddTrack implements Sink.
func (s *WebRTCSink) AddTrack(format *MediaFormat) (int, error) {
	if s.released {
		return 0, ErrReleased
	}
	capability := webrtc.RTPCodecCapability{MimeType: format.MimeType}
	switch format.Track {
	case TrackVideo:
		capability.ClockRate = VideoCodecFromMime(format.MimeType).ClockRate()
	case TrackAudio:
		codec := AudioCodecFromMime(format.MimeType)
		if codec == AudioCodecUnknown {
			return 0, fmt.Errorf("%w: audio %s", ErrUnsupportedFormat, format.MimeType)
		}
		capability.ClockRate = codec.ClockRate()
		capability.Channels = uint16(format.Channels)
	}
	local, err := webrtc.NewTrackLocalStaticSample(capability, format.Track.String(), s.StreamID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	s.tracks = append(s.tracks, &webrtcTrack{format: format, local: local})
	return len(s.tracks) - 1, nil
}

// Tracks returns the local tracks in the order they were added.
func (s *WebRTCSink) Tracks() []*webrtc.TrackLocalStaticSample {
	out := make([]*webrtc.TrackLocalStaticSample, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t.local
	}
	return out
}

// WriteSample implements Sink.
func (s *WebRTCSink) WriteSample(track int, sample Sample) error {
	if track < 0 || track >= len(s.tracks) {
		return fmt.Errorf("%w: unknown track %d", ErrSinkWrite, track)
	}
	t := s.tracks[track]
	if t.ended {
		return fmt.Errorf("%w: %s track already ended", ErrSinkWrite, t.format.Track)
	}
	if sample.EndOfStream() && len(sample.Data) == 0 {
		t.ended = true
		return nil
	}

	duration := sample.Duration
	if duration <= 0 && t.started {
		duration = sample.PTS - t.lastPTS
	}
	t.lastPTS, t.started = sample.PTS, true

	if s.Realtime {
		if s.start.IsZero() {
			s.start = time.Now()
		}
		if wait := time.Until(s.start.Add(sample.PTS)); wait > 0 {
			time.Sleep(wait)
		}
	}
	if err := t.local.WriteSample(media.Sample{Data: sample.Data, Duration: duration}); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	if sample.EndOfStream() {
		t.ended = true
	}
	return nil
}

// Release implements Sink.
func (s *WebRTCSink) Release() error {
	s.released = true
	return nil
}
