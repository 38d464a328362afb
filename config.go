package transcoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoInputs is returned when a job lists no inputs.
	ErrNoInputs = errors.New("at least one input is required")
	// ErrNoOutput is returned when a job has no output path.
	ErrNoOutput = errors.New("an output path is required")
	// ErrInvalidMode is returned for an unknown track mode.
	ErrInvalidMode = errors.New("invalid track mode")
	// ErrInvalidLogLevel is returned when log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Track modes accepted by job files.
const (
	ModeCompress    = "compress"
	ModePassThrough = "passthrough"
	ModeRemove      = "remove"
)

// JobConfig describes a transcode job, as read from a YAML file.
type JobConfig struct {
	Inputs       []InputConfig `mapstructure:"inputs"`
	Output       OutputConfig  `mapstructure:"output"`
	Rotation     int           `mapstructure:"rotation"`
	Speed        float64       `mapstructure:"speed"`
	FrameTimeout time.Duration `mapstructure:"frame_timeout"`
	Video        VideoConfig   `mapstructure:"video"`
	Audio        AudioConfig   `mapstructure:"audio"`
	LogLevel     string        `mapstructure:"log_level"`
}

// InputConfig is one source file. Inputs of the same track are concatenated
// in order.
type InputConfig struct {
	Path     string `mapstructure:"path"`
	Rotation int    `mapstructure:"rotation"` // IVF only
}

// OutputConfig names the output files.
type OutputConfig struct {
	Video string `mapstructure:"video"` // IVF
	Audio string `mapstructure:"audio"` // Ogg/Opus
}

// VideoConfig selects the video strategy.
type VideoConfig struct {
	Mode             string        `mapstructure:"mode"`
	Codec            string        `mapstructure:"codec"`
	MaxMinor         int           `mapstructure:"max_minor"`
	MaxMajor         int           `mapstructure:"max_major"`
	FrameRate        float64       `mapstructure:"frame_rate"`
	Bitrate          int           `mapstructure:"bitrate"`
	KeyFrameInterval time.Duration `mapstructure:"key_frame_interval"`
	ScalePolicy      string        `mapstructure:"scale_policy"`
}

// AudioConfig selects the audio strategy.
type AudioConfig struct {
	Mode       string `mapstructure:"mode"`
	Channels   int    `mapstructure:"channels"`
	SampleRate int    `mapstructure:"sample_rate"`
	Bitrate    int    `mapstructure:"bitrate"`
}

// DefaultJobConfig returns the values used for keys a job file omits.
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		Speed:        1,
		FrameTimeout: DefaultFrameTimeout,
		Video: VideoConfig{
			Mode:        ModeCompress,
			Codec:       "vp8",
			MaxMinor:    720,
			MaxMajor:    1280,
			ScalePolicy: DefaultScalePolicy.String(),
		},
		Audio:    AudioConfig{Mode: ModeCompress},
		LogLevel: "info",
	}
}

// LoadJobConfig decodes a YAML job over the defaults. Durations accept Go
// syntax ("10s") and unknown keys are rejected.
func LoadJobConfig(r io.Reader) (*JobConfig, error) {
	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse job: %w", err)
	}

	cfg := DefaultJobConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return cfg, nil
}

// LoadJobConfigFile reads a YAML job file.
func LoadJobConfigFile(path string) (*JobConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadJobConfig(f)
}

// Validate checks the job. Rotation and speed are checked again by Build.
func (c *JobConfig) Validate() error {
	if len(c.Inputs) == 0 {
		return ErrNoInputs
	}
	for i, in := range c.Inputs {
		if in.Path == "" {
			return fmt.Errorf("input %d: empty path", i)
		}
		if _, err := inputKind(in.Path); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}
	if c.Output.Video == "" && c.Output.Audio == "" {
		return ErrNoOutput
	}
	if !validRotation(c.Rotation) {
		return fmt.Errorf("%w: rotation must be 0, 90, 180 or 270, got %d", ErrConfiguration, c.Rotation)
	}
	if !(c.Speed > 0) {
		return fmt.Errorf("%w: speed must be > 0, got %v", ErrConfiguration, c.Speed)
	}
	for track, mode := range map[string]string{"video": c.Video.Mode, "audio": c.Audio.Mode} {
		switch mode {
		case ModeCompress, ModePassThrough, ModeRemove:
		default:
			return fmt.Errorf("%w: %s mode %q", ErrInvalidMode, track, mode)
		}
	}
	if _, ok := ParseScalePolicy(c.Video.ScalePolicy); !ok {
		return fmt.Errorf("%w: scale policy %q", ErrConfiguration, c.Video.ScalePolicy)
	}
	if c.Video.Mode == ModeCompress && videoMime(c.Video.Codec) == "" {
		return fmt.Errorf("%w: video codec %q", ErrUnsupportedFormat, c.Video.Codec)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("%w: %s (must be debug, info, warn, or error)", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

func inputKind(path string) (TrackType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ivf":
		return TrackVideo, nil
	case ".ogg", ".opus":
		return TrackAudio, nil
	default:
		return 0, fmt.Errorf("%w: unknown container %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func videoMime(codec string) string {
	switch strings.ToLower(codec) {
	case "vp8":
		return VideoCodecVP8.MimeType()
	case "vp9":
		return VideoCodecVP9.MimeType()
	case "av1":
		return VideoCodecAV1.MimeType()
	default:
		return ""
	}
}

// VideoStrategy returns the strategy the job selects for video.
func (c *JobConfig) VideoStrategy() TrackStrategy {
	switch c.Video.Mode {
	case ModePassThrough:
		return PassThroughStrategy{}
	case ModeRemove:
		return RemoveStrategy{}
	}
	policy, _ := ParseScalePolicy(c.Video.ScalePolicy)
	var resizer Resizer = PassThroughResizer{}
	if c.Video.MaxMinor > 0 && c.Video.MaxMajor > 0 {
		resizer = AtMostResizer{Minor: c.Video.MaxMinor, Major: c.Video.MaxMajor}
	}
	return &DefaultVideoStrategy{
		Resizer:          resizer,
		MimeType:         videoMime(c.Video.Codec),
		BitrateBps:       c.Video.Bitrate,
		FrameRate:        c.Video.FrameRate,
		KeyFrameInterval: c.Video.KeyFrameInterval,
		ScalePolicy:      policy,
	}
}

// AudioStrategy returns the strategy the job selects for audio.
func (c *JobConfig) AudioStrategy() TrackStrategy {
	switch c.Audio.Mode {
	case ModePassThrough:
		return PassThroughStrategy{}
	case ModeRemove:
		return RemoveStrategy{}
	}
	return &DefaultAudioStrategy{
		Channels:   c.Audio.Channels,
		SampleRate: c.Audio.SampleRate,
		BitrateBps: c.Audio.Bitrate,
	}
}

// OpenSources opens every input. On failure the sources opened so far are
// released.
func (c *JobConfig) OpenSources() (video, audio []Source, err error) {
	var opened []Source
	for i, in := range c.Inputs {
		kind, err := inputKind(in.Path)
		if err != nil {
			return nil, nil, err
		}
		var src Source
		switch kind {
		case TrackVideo:
			src, err = OpenIVFSource(in.Path, in.Rotation)
		case TrackAudio:
			src, err = OpenOggSource(in.Path)
		}
		if err != nil {
			for _, s := range opened {
				s.Release()
			}
			return nil, nil, fmt.Errorf("open input %d: %w", i, err)
		}
		opened = append(opened, src)
		if kind == TrackVideo {
			video = append(video, src)
		} else {
			audio = append(audio, src)
		}
	}
	return video, audio, nil
}

// Builder opens the inputs and returns a builder configured for the job,
// writing to a FileSink. Callers add a listener, logger and metrics.
func (c *JobConfig) Builder() (*OptionsBuilder, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	video, audio, err := c.OpenSources()
	if err != nil {
		return nil, err
	}
	b := NewOptionsBuilder().
		SetVideoStrategy(c.VideoStrategy()).
		SetAudioStrategy(c.AudioStrategy()).
		SetRotation(c.Rotation).
		SetSpeed(c.Speed).
		SetFrameTimeout(c.FrameTimeout).
		SetSink(NewFileSink(c.Output.Video, c.Output.Audio))
	for _, src := range video {
		b.AddTrackSource(TrackVideo, src)
	}
	for _, src := range audio {
		b.AddTrackSource(TrackAudio, src)
	}
	return b, nil
}
