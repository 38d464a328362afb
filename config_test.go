package transcoder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJobConfig(t *testing.T) {
	job := `
inputs:
  - path: clips/a.ivf
    rotation: 90
  - path: clips/b.ogg
output:
  video: out.ivf
  audio: out.ogg
rotation: 180
speed: 1.5
frame_timeout: 2s
video:
  codec: vp9
  max_minor: 480
  max_major: 854
  frame_rate: 24
  key_frame_interval: 5s
  scale_policy: fit
audio:
  channels: 1
  sample_rate: 24000
  bitrate: 48000
log_level: debug
`
	cfg, err := LoadJobConfig(strings.NewReader(job))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []InputConfig{{Path: "clips/a.ivf", Rotation: 90}, {Path: "clips/b.ogg"}}, cfg.Inputs)
	assert.Equal(t, OutputConfig{Video: "out.ivf", Audio: "out.ogg"}, cfg.Output)
	assert.Equal(t, 180, cfg.Rotation)
	assert.Equal(t, 1.5, cfg.Speed)
	assert.Equal(t, 2*time.Second, cfg.FrameTimeout)
	assert.Equal(t, 5*time.Second, cfg.Video.KeyFrameInterval)
	assert.Equal(t, ModeCompress, cfg.Video.Mode, "omitted keys keep their defaults")
	assert.Equal(t, "debug", cfg.LogLevel)

	video, ok := cfg.VideoStrategy().(*DefaultVideoStrategy)
	require.True(t, ok)
	assert.Equal(t, AtMostResizer{Minor: 480, Major: 854}, video.Resizer)
	assert.Equal(t, VideoCodecVP9.MimeType(), video.MimeType)
	assert.Equal(t, 24.0, video.FrameRate)
	assert.Equal(t, ScaleFit, video.ScalePolicy)

	audio, ok := cfg.AudioStrategy().(*DefaultAudioStrategy)
	require.True(t, ok)
	assert.Equal(t, DefaultAudioStrategy{Channels: 1, SampleRate: 24000, BitrateBps: 48000}, *audio)
}

func TestLoadJobConfigEmpty(t *testing.T) {
	cfg, err := LoadJobConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultJobConfig(), cfg)
	assert.ErrorIs(t, cfg.Validate(), ErrNoInputs)
}

func TestLoadJobConfigRejectsUnknownKeys(t *testing.T) {
	_, err := LoadJobConfig(strings.NewReader("inputs: []\nsped: 2\n"))
	assert.Error(t, err)

	_, err = LoadJobConfig(strings.NewReader("speed: [1, 2\n"))
	assert.Error(t, err)
}

func TestJobConfigValidate(t *testing.T) {
	valid := func() *JobConfig {
		cfg := DefaultJobConfig()
		cfg.Inputs = []InputConfig{{Path: "in.ivf"}, {Path: "in.opus"}}
		cfg.Output = OutputConfig{Video: "out.ivf"}
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(*JobConfig)
		wantErr error
	}{
		{"no inputs", func(c *JobConfig) { c.Inputs = nil }, ErrNoInputs},
		{"unknown container", func(c *JobConfig) { c.Inputs[0].Path = "in.mp4" }, ErrUnsupportedFormat},
		{"no output", func(c *JobConfig) { c.Output = OutputConfig{} }, ErrNoOutput},
		{"bad rotation", func(c *JobConfig) { c.Rotation = 45 }, ErrConfiguration},
		{"zero speed", func(c *JobConfig) { c.Speed = 0 }, ErrConfiguration},
		{"bad mode", func(c *JobConfig) { c.Audio.Mode = "mute" }, ErrInvalidMode},
		{"bad scale policy", func(c *JobConfig) { c.Video.ScalePolicy = "stretch" }, ErrConfiguration},
		{"bad codec", func(c *JobConfig) { c.Video.Codec = "h263" }, ErrUnsupportedFormat},
		{"bad log level", func(c *JobConfig) { c.LogLevel = "verbose" }, ErrInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}

	// Codecs are only checked when video is encoded.
	cfg := valid()
	cfg.Video.Mode = ModePassThrough
	cfg.Video.Codec = "h263"
	assert.NoError(t, cfg.Validate())
}

func TestJobConfigStrategies(t *testing.T) {
	cfg := DefaultJobConfig()
	cfg.Video.Mode = ModePassThrough
	cfg.Audio.Mode = ModeRemove
	assert.Equal(t, PassThroughStrategy{}, cfg.VideoStrategy())
	assert.Equal(t, RemoveStrategy{}, cfg.AudioStrategy())

	cfg.Video.Mode = ModeRemove
	cfg.Audio.Mode = ModePassThrough
	assert.Equal(t, RemoveStrategy{}, cfg.VideoStrategy())
	assert.Equal(t, PassThroughStrategy{}, cfg.AudioStrategy())

	cfg = DefaultJobConfig()
	cfg.Video.MaxMajor = 0
	video := cfg.VideoStrategy().(*DefaultVideoStrategy)
	assert.Equal(t, PassThroughResizer{}, video.Resizer)
	assert.Equal(t, VideoCodecVP8.MimeType(), video.MimeType)
}
