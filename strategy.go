package transcoder

import (
	"fmt"
	"math"
	"time"
)

// TrackStrategy selects the output format of a track from the formats of its
// input sources. Returning an error aborts the run before any codec is opened.
type TrackStrategy interface {
	CreateOutputFormat(inputs []*MediaFormat) (TrackMode, *MediaFormat, error)
}

// PassThroughStrategy copies the track without decoding.
type PassThroughStrategy struct{}

// CreateOutputFormat implements TrackStrategy.
func (PassThroughStrategy) CreateOutputFormat(inputs []*MediaFormat) (TrackMode, *MediaFormat, error) {
	if len(inputs) == 0 {
		return TrackModeAbsent, nil, nil
	}
	first := inputs[0]
	for _, f := range inputs[1:] {
		if f.MimeType != first.MimeType {
			return 0, nil, fmt.Errorf("%w: cannot pass through mixed %s and %s",
				ErrUnsupportedFormat, first.MimeType, f.MimeType)
		}
	}
	out := first.Clone()
	out.Duration = totalDuration(inputs)
	return TrackModePassThrough, out, nil
}

// RemoveStrategy drops the track from the output.
type RemoveStrategy struct{}

// CreateOutputFormat implements TrackStrategy.
func (RemoveStrategy) CreateOutputFormat(inputs []*MediaFormat) (TrackMode, *MediaFormat, error) {
	if len(inputs) == 0 {
		return TrackModeAbsent, nil, nil
	}
	return TrackModeRemoving, nil, nil
}

// Video strategy defaults.
const (
	DefaultFrameRate        = 30
	DefaultKeyFrameInterval = 3 * time.Second
	DefaultBitsPerPixel     = 0.09
)

// DefaultVideoStrategy resizes video within an envelope and estimates a
// bitrate for the output size.
type DefaultVideoStrategy struct {
	Resizer          Resizer       // nil = PassThroughResizer
	MimeType         string        // "" = VP8
	BitrateBps       int           // 0 = estimate from BitsPerPixel
	BitsPerPixel     float64       // 0 = DefaultBitsPerPixel
	FrameRate        float64       // 0 = DefaultFrameRate; never above the input rate
	KeyFrameInterval time.Duration // 0 = DefaultKeyFrameInterval
	ScalePolicy      ScalePolicy
}

// DefaultVideoStrategyFor720x1280 fits video in 720x1280 (either orientation).
func DefaultVideoStrategyFor720x1280() *DefaultVideoStrategy {
	return &DefaultVideoStrategy{Resizer: AtMostResizer{Minor: 720, Major: 1280}}
}

// CreateOutputFormat implements TrackStrategy. Input sizes are taken in
// presentation space, after each input's rotation.
func (s *DefaultVideoStrategy) CreateOutputFormat(inputs []*MediaFormat) (TrackMode, *MediaFormat, error) {
	if len(inputs) == 0 {
		return TrackModeAbsent, nil, nil
	}

	// Concatenated inputs are drawn into the largest presentation size.
	var in Size
	inFPS := math.MaxFloat64
	for _, f := range inputs {
		if f.Width <= 0 || f.Height <= 0 {
			return 0, nil, fmt.Errorf("%w: input video size %dx%d", ErrUnsupportedFormat, f.Width, f.Height)
		}
		w, h := f.PresentationSize()
		if w*h > in.Width*in.Height {
			in = Size{Width: w, Height: h}
		}
		if f.FrameRate > 0 {
			inFPS = math.Min(inFPS, f.FrameRate)
		}
	}

	resizer := s.Resizer
	if resizer == nil {
		resizer = PassThroughResizer{}
	}
	out, err := MultiResizer{resizer, AlignResizer{Multiple: 2}}.Resize(in)
	if err != nil {
		return 0, nil, err
	}

	mime := s.MimeType
	if mime == "" {
		mime = VideoCodecVP8.MimeType()
	}
	fps := s.FrameRate
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	if inFPS < fps {
		fps = inFPS
	}
	bitrate := s.BitrateBps
	if bitrate <= 0 {
		bpp := s.BitsPerPixel
		if bpp <= 0 {
			bpp = DefaultBitsPerPixel
		}
		bitrate = int(bpp * fps * float64(out.Width*out.Height))
	}
	keyInterval := s.KeyFrameInterval
	if keyInterval <= 0 {
		keyInterval = DefaultKeyFrameInterval
	}

	return TrackModeCompressing, &MediaFormat{
		Track:            TrackVideo,
		MimeType:         mime,
		Duration:         totalDuration(inputs),
		Width:            out.Width,
		Height:           out.Height,
		FrameRate:        fps,
		KeyFrameInterval: keyInterval,
		ScalePolicy:      s.ScalePolicy,
		BitrateBps:       bitrate,
	}, nil
}

// Audio strategy defaults.
const (
	DefaultAudioBitrateBps = 128000
)

// DefaultAudioStrategy encodes audio with a fixed profile. Zero channel or
// sample rate fields keep the input value.
type DefaultAudioStrategy struct {
	MimeType   string // "" = Opus
	Channels   int
	SampleRate int
	BitrateBps int // 0 = DefaultAudioBitrateBps
}

// CreateOutputFormat implements TrackStrategy.
func (s *DefaultAudioStrategy) CreateOutputFormat(inputs []*MediaFormat) (TrackMode, *MediaFormat, error) {
	if len(inputs) == 0 {
		return TrackModeAbsent, nil, nil
	}

	// Without explicit values, use the largest channel count and the
	// lowest sample rate among the inputs, so no input is upsampled.
	channels, rate := s.Channels, s.SampleRate
	if channels == 0 || rate == 0 {
		inChannels, inRate := 0, math.MaxInt
		for _, f := range inputs {
			inChannels = max(inChannels, f.Channels)
			inRate = min(inRate, f.SampleRate)
		}
		if channels == 0 {
			channels = inChannels
		}
		if rate == 0 {
			rate = inRate
		}
	}
	if channels < 1 || channels > 2 {
		return 0, nil, fmt.Errorf("%w: %d audio channels", ErrUnsupportedFormat, channels)
	}
	if rate <= 0 {
		return 0, nil, fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, rate)
	}

	mime := s.MimeType
	if mime == "" {
		mime = AudioCodecOpus.MimeType()
	}
	bitrate := s.BitrateBps
	if bitrate <= 0 {
		bitrate = DefaultAudioBitrateBps
	}
	return TrackModeCompressing, &MediaFormat{
		Track:      TrackAudio,
		MimeType:   mime,
		Duration:   totalDuration(inputs),
		SampleRate: rate,
		Channels:   channels,
		BitrateBps: bitrate,
	}, nil
}

func totalDuration(formats []*MediaFormat) time.Duration {
	var d time.Duration
	for _, f := range formats {
		d += f.Duration
	}
	return d
}
