package transcoder

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsBuilderRotation(t *testing.T) {
	tests := []struct {
		rotation int
		valid    bool
	}{
		{0, true},
		{90, true},
		{180, true},
		{270, true},
		{45, false},
		{-90, false},
		{360, false},
		{1, false},
	}

	for _, tt := range tests {
		opts, err := NewOptionsBuilder().
			AddSource(newAudioSource(time.Second, 48000, 1)).
			SetSink(&fakeSink{}).
			SetRotation(tt.rotation).
			Build()
		if !tt.valid {
			assert.ErrorIs(t, err, ErrConfiguration, "rotation %d", tt.rotation)
			continue
		}
		require.NoError(t, err, "rotation %d", tt.rotation)
		assert.Equal(t, tt.rotation, opts.Rotation(), "configured rotation is preserved")
	}
}

func TestOptionsBuilderRejects(t *testing.T) {
	src := newAudioSource(time.Second, 48000, 1)
	tests := []struct {
		name  string
		build func() *OptionsBuilder
	}{
		{"no sources", func() *OptionsBuilder {
			return NewOptionsBuilder().SetSink(&fakeSink{})
		}},
		{"no sink", func() *OptionsBuilder {
			return NewOptionsBuilder().AddSource(src)
		}},
		{"zero speed", func() *OptionsBuilder {
			return NewOptionsBuilder().AddSource(src).SetSink(&fakeSink{}).SetSpeed(0)
		}},
		{"negative speed", func() *OptionsBuilder {
			return NewOptionsBuilder().AddSource(src).SetSink(&fakeSink{}).SetSpeed(-1)
		}},
		{"negative frame timeout", func() *OptionsBuilder {
			return NewOptionsBuilder().AddSource(src).SetSink(&fakeSink{}).SetFrameTimeout(-time.Second)
		}},
		{"nil source", func() *OptionsBuilder {
			return NewOptionsBuilder().AddTrackSource(TrackVideo, nil).SetSink(&fakeSink{})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Build()
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestOptionsBuilderDefaults(t *testing.T) {
	src := newAudioSource(time.Second, 48000, 1)
	opts, err := NewOptionsBuilder().AddSource(src).SetSink(&fakeSink{}).Build()
	require.NoError(t, err)

	assert.Equal(t, DefaultValidator{}, opts.Validator())
	assert.Equal(t, DefaultTimeInterpolator{}, opts.TimeInterpolator())
	assert.Equal(t, DefaultAudioStretcher{}, opts.stretcher)
	assert.Equal(t, DefaultAudioResampler{}, opts.resampler)
	assert.Equal(t, DefaultFrameTimeout, opts.frameTimeout)
	assert.Same(t, DefaultRegistry, opts.codecs)
	assert.Equal(t, logrus.StandardLogger(), opts.logger)
	assert.Nil(t, opts.dispatcher)
	assert.IsType(t, nopListener{}, opts.listener)
	assert.IsType(t, &DefaultVideoStrategy{}, opts.strategies[TrackVideo])
	assert.IsType(t, &DefaultAudioStrategy{}, opts.strategies[TrackAudio])
	assert.IsType(t, &SoftwareRenderer{}, opts.renderer())

	assert.Equal(t, []Source{src}, opts.Sources(TrackVideo))
	assert.Equal(t, []Source{src}, opts.Sources(TrackAudio))
}

func TestOptionsAreFrozen(t *testing.T) {
	first := newAudioSource(time.Second, 48000, 1)
	b := NewOptionsBuilder().AddTrackSource(TrackAudio, first).SetSink(&fakeSink{}).SetSpeed(4)
	opts, err := b.Build()
	require.NoError(t, err)

	b.AddTrackSource(TrackAudio, newAudioSource(time.Second, 48000, 1)).SetRotation(90)
	assert.Len(t, opts.Sources(TrackAudio), 1)
	assert.Equal(t, 0, opts.Rotation())

	speed, ok := opts.TimeInterpolator().(*SpeedTimeInterpolator)
	require.True(t, ok)
	assert.Equal(t, 4.0, speed.Speed())
}
