package transcoder

import (
	"fmt"
	"math/rand/v2"
)

// AudioStretcher changes the length of a PCM buffer to a target number of
// frames (samples per channel) at the buffer's own sample rate. It is how
// time remapping reaches audio.
type AudioStretcher interface {
	Stretch(in *AudioSamples, frames int) (*AudioSamples, error)
}

// DefaultAudioStretcher cuts buffers that must shrink and inserts low level
// noise into buffers that must grow. Pitch is preserved.
type DefaultAudioStretcher struct{}

// Stretch implements AudioStretcher.
func (DefaultAudioStretcher) Stretch(in *AudioSamples, frames int) (*AudioSamples, error) {
	switch {
	case frames < in.SampleCount:
		return CutAudioStretcher{}.Stretch(in, frames)
	case frames > in.SampleCount:
		return InsertAudioStretcher{}.Stretch(in, frames)
	default:
		return PassThroughAudioStretcher{}.Stretch(in, frames)
	}
}

// PassThroughAudioStretcher accepts only buffers that already have the
// target length.
type PassThroughAudioStretcher struct{}

// Stretch implements AudioStretcher.
func (PassThroughAudioStretcher) Stretch(in *AudioSamples, frames int) (*AudioSamples, error) {
	if frames != in.SampleCount {
		return nil, fmt.Errorf("%w: pass-through stretcher cannot change %d frames to %d",
			ErrConfiguration, in.SampleCount, frames)
	}
	return in, nil
}

// CutAudioStretcher shortens buffers by dropping trailing frames.
type CutAudioStretcher struct{}

// Stretch implements AudioStretcher.
func (CutAudioStretcher) Stretch(in *AudioSamples, frames int) (*AudioSamples, error) {
	if frames > in.SampleCount {
		return nil, fmt.Errorf("%w: cut stretcher cannot grow %d frames to %d",
			ErrConfiguration, in.SampleCount, frames)
	}
	out := in.Clone()
	out.Data = out.Data[:frames*in.Channels*in.Format.BytesPerSample()]
	out.SampleCount = frames
	return out, nil
}

// InsertAudioStretcher lengthens buffers by spreading noise frames evenly
// between the original frames.
type InsertAudioStretcher struct{}

// noiseAmplitude is about 1% of full scale.
const noiseAmplitude = 328

// Stretch implements AudioStretcher.
func (InsertAudioStretcher) Stretch(in *AudioSamples, frames int) (*AudioSamples, error) {
	if frames < in.SampleCount {
		return nil, fmt.Errorf("%w: insert stretcher cannot shrink %d frames to %d",
			ErrConfiguration, in.SampleCount, frames)
	}
	src := decodePCM16(in.Data)
	ch := in.Channels
	extra := frames - in.SampleCount
	rng := rand.New(rand.NewPCG(uint64(in.Timestamp), uint64(frames)))

	out := make(pcm16, 0, frames*ch)
	inserted, next := 0, 0
	for i := 0; i < frames; i++ {
		due := (i + 1) * extra / frames
		if inserted < due || next >= in.SampleCount {
			for c := 0; c < ch; c++ {
				out = append(out, int16(rng.IntN(2*noiseAmplitude+1)-noiseAmplitude))
			}
			inserted++
			continue
		}
		out = append(out, src[next*ch:(next+1)*ch]...)
		next++
	}
	return newAudioSamples(out, in.SampleRate, ch, in.Timestamp), nil
}

// PitchAudioStretcher stretches by linear interpolation, which shifts the
// pitch by the stretch ratio.
type PitchAudioStretcher struct{}

// Stretch implements AudioStretcher.
func (PitchAudioStretcher) Stretch(in *AudioSamples, frames int) (*AudioSamples, error) {
	if frames == in.SampleCount {
		return in, nil
	}
	src := decodePCM16(in.Data)
	ch := in.Channels
	out := make(pcm16, frames*ch)
	if in.SampleCount == 0 {
		return newAudioSamples(out, in.SampleRate, ch, in.Timestamp), nil
	}
	ratio := float64(in.SampleCount) / float64(frames)
	for i := 0; i < frames; i++ {
		pos := float64(i) * ratio
		i0 := int(pos)
		i1 := i0 + 1
		if i1 >= in.SampleCount {
			i1 = in.SampleCount - 1
		}
		frac := pos - float64(i0)
		for c := 0; c < ch; c++ {
			a := float64(src[i0*ch+c])
			b := float64(src[i1*ch+c])
			out[i*ch+c] = clamp16(int32(a + (b-a)*frac))
		}
	}
	return newAudioSamples(out, in.SampleRate, ch, in.Timestamp), nil
}
