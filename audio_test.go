package transcoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ramp returns mono samples where frame i holds base+i*step.
func ramp(frames, rate int, base, step int16) *AudioSamples {
	p := make(pcm16, frames)
	for i := range p {
		p[i] = base + int16(i)*step
	}
	return newAudioSamples(p, rate, 1, time.Second)
}

func TestCutAudioStretcher(t *testing.T) {
	in := ramp(100, 48000, 1000, 1)
	out, err := CutAudioStretcher{}.Stretch(in, 60)
	require.NoError(t, err)
	assert.Equal(t, 60, out.SampleCount)
	assert.Equal(t, decodePCM16(in.Data)[:60], decodePCM16(out.Data))
	assert.Equal(t, in.Timestamp, out.Timestamp)
	assert.Equal(t, 100, in.SampleCount, "input is not modified")

	_, err = CutAudioStretcher{}.Stretch(in, 120)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestInsertAudioStretcher(t *testing.T) {
	in := ramp(100, 48000, 10000, 1)
	out, err := InsertAudioStretcher{}.Stretch(in, 150)
	require.NoError(t, err)
	require.Equal(t, 150, out.SampleCount)

	// Every original frame survives in order; the rest is quiet noise.
	var kept pcm16
	for _, v := range decodePCM16(out.Data) {
		if v >= 10000 {
			kept = append(kept, v)
			continue
		}
		assert.LessOrEqual(t, v, int16(noiseAmplitude))
		assert.GreaterOrEqual(t, v, int16(-noiseAmplitude))
	}
	assert.Equal(t, decodePCM16(in.Data), kept)

	_, err = InsertAudioStretcher{}.Stretch(in, 50)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestPitchAudioStretcher(t *testing.T) {
	in := ramp(100, 48000, 0, 10)
	out, err := PitchAudioStretcher{}.Stretch(in, 50)
	require.NoError(t, err)
	require.Equal(t, 50, out.SampleCount)
	for i, v := range decodePCM16(out.Data) {
		assert.Equal(t, int16(i*20), v)
	}

	same, err := PitchAudioStretcher{}.Stretch(in, 100)
	require.NoError(t, err)
	assert.Same(t, in, same)
}

func TestDefaultAudioStretcher(t *testing.T) {
	in := ramp(100, 48000, 10000, 1)
	for _, frames := range []int{40, 100, 180} {
		out, err := DefaultAudioStretcher{}.Stretch(in, frames)
		require.NoError(t, err)
		assert.Equal(t, frames, out.SampleCount)
	}

	_, err := PassThroughAudioStretcher{}.Stretch(in, 99)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestResampleDownsamples(t *testing.T) {
	stream, err := DefaultAudioResampler{}.NewStream(48000, 16000, 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out, err := stream.Resample(ramp(960, 48000, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, 320, out.SampleCount)
		assert.Equal(t, 16000, out.SampleRate)
		assert.Equal(t, 20*time.Millisecond, out.Duration())
	}
}

func TestResampleIsContinuousAcrossBuffers(t *testing.T) {
	whole := ramp(960, 48000, 0, 10)

	stream, err := DefaultAudioResampler{}.NewStream(48000, 32000, 1)
	require.NoError(t, err)
	want, err := stream.Resample(whole)
	require.NoError(t, err)
	require.Equal(t, 640, want.SampleCount)

	// A split whose second half starts between input frames.
	src := decodePCM16(whole.Data)
	first := newAudioSamples(src[:482], 48000, 1, 0)
	second := newAudioSamples(src[482:], 48000, 1, 0)

	stream, err = DefaultAudioResampler{}.NewStream(48000, 32000, 1)
	require.NoError(t, err)
	a, err := stream.Resample(first)
	require.NoError(t, err)
	b, err := stream.Resample(second)
	require.NoError(t, err)

	got := append(decodePCM16(a.Data), decodePCM16(b.Data)...)
	assert.Equal(t, decodePCM16(want.Data), got)
}

func TestResampleRejects(t *testing.T) {
	_, err := DefaultAudioResampler{}.NewStream(0, 48000, 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = PassThroughAudioResampler{}.NewStream(44100, 48000, 2)
	assert.ErrorIs(t, err, ErrConfiguration)

	stream, err := DefaultAudioResampler{}.NewStream(48000, 16000, 1)
	require.NoError(t, err)
	_, err = stream.Resample(ramp(10, 44100, 0, 1))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestResampleEqualRatesPassThrough(t *testing.T) {
	in := ramp(480, 48000, 0, 1)
	for _, r := range []AudioResampler{DefaultAudioResampler{}, PassThroughAudioResampler{}} {
		stream, err := r.NewStream(48000, 48000, 1)
		require.NoError(t, err)
		out, err := stream.Resample(in)
		require.NoError(t, err)
		assert.Same(t, in, out)
	}
}

func TestRemix(t *testing.T) {
	mono := newAudioSamples(pcm16{100, -200, 300}, 48000, 1, 0)
	stereo, err := remix(mono, 2)
	require.NoError(t, err)
	assert.Equal(t, pcm16{100, 100, -200, -200, 300, 300}, decodePCM16(stereo.Data))
	assert.Equal(t, 3, stereo.SampleCount)

	in := newAudioSamples(pcm16{100, 300, -32768, -32768}, 48000, 2, 0)
	down, err := remix(in, 1)
	require.NoError(t, err)
	assert.Equal(t, pcm16{200, -32768}, decodePCM16(down.Data))

	same, err := remix(in, 2)
	require.NoError(t, err)
	assert.Same(t, in, same)

	_, err = remix(newAudioSamples(make(pcm16, 6), 48000, 3, 0), 2)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
