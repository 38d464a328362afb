package transcoder

import (
	"fmt"
	"time"
)

// Raw mime types describe decoded media passed between codecs and the pipeline.
const (
	MimeTypeRawVideo = "video/raw"
	MimeTypeRawAudio = "audio/raw"
)

// MediaFormat describes one track of a source or of the output.
// Video fields are ignored for audio tracks and the other way around.
type MediaFormat struct {
	Track    TrackType
	MimeType string
	Duration time.Duration

	// Video
	Width            int
	Height           int
	FrameRate        float64
	Rotation         int // clockwise degrees to apply on presentation
	KeyFrameInterval time.Duration
	ScalePolicy      ScalePolicy

	// Audio
	SampleRate int
	Channels   int

	BitrateBps int
}

// Clone returns a copy of the format. Formats are small values, but pipeline
// components hold pointers, so copies are taken before mutation.
func (f *MediaFormat) Clone() *MediaFormat {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// IsVideo reports whether the format describes a video track.
func (f *MediaFormat) IsVideo() bool { return f != nil && f.Track == TrackVideo }

// IsAudio reports whether the format describes an audio track.
func (f *MediaFormat) IsAudio() bool { return f != nil && f.Track == TrackAudio }

// Validate checks the fields required by the track type.
func (f *MediaFormat) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil format", ErrUnsupportedFormat)
	}
	if f.MimeType == "" {
		return fmt.Errorf("%w: %s format has no mime type", ErrUnsupportedFormat, f.Track)
	}
	switch f.Track {
	case TrackVideo:
		if f.Width <= 0 || f.Height <= 0 {
			return fmt.Errorf("%w: invalid video size %dx%d", ErrUnsupportedFormat, f.Width, f.Height)
		}
		if !validRotation(f.Rotation) {
			return fmt.Errorf("%w: invalid rotation %d", ErrUnsupportedFormat, f.Rotation)
		}
	case TrackAudio:
		if f.SampleRate <= 0 || f.Channels <= 0 {
			return fmt.Errorf("%w: invalid audio layout %d Hz x %d", ErrUnsupportedFormat, f.SampleRate, f.Channels)
		}
	default:
		return fmt.Errorf("%w: unknown track %d", ErrUnsupportedFormat, f.Track)
	}
	return nil
}

func (f *MediaFormat) String() string {
	if f == nil {
		return "<nil>"
	}
	switch f.Track {
	case TrackVideo:
		return fmt.Sprintf("%s %dx%d@%.2f rot=%d %dbps", f.MimeType, f.Width, f.Height, f.FrameRate, f.Rotation, f.BitrateBps)
	case TrackAudio:
		return fmt.Sprintf("%s %dHz ch=%d %dbps", f.MimeType, f.SampleRate, f.Channels, f.BitrateBps)
	default:
		return f.MimeType
	}
}

// PresentationSize returns the frame size after applying the rotation.
func (f *MediaFormat) PresentationSize() (width, height int) {
	if f.Rotation%180 != 0 {
		return f.Height, f.Width
	}
	return f.Width, f.Height
}

func validRotation(r int) bool {
	switch r {
	case 0, 90, 180, 270:
		return true
	default:
		return false
	}
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r
}
