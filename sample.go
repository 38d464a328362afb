package transcoder

import (
	"fmt"
	"time"
)

// SampleFlags carry per-sample metadata through sources, codecs and sinks.
type SampleFlags uint8

const (
	SampleFlagKeyFrame SampleFlags = 1 << iota
	SampleFlagEndOfStream
)

// Sample is a unit of compressed media.
type Sample struct {
	Data     []byte
	PTS      time.Duration
	Duration time.Duration
	Flags    SampleFlags
}

// KeyFrame reports whether the sample can be decoded on its own.
func (s Sample) KeyFrame() bool { return s.Flags&SampleFlagKeyFrame != 0 }

// EndOfStream reports whether the sample terminates its track.
func (s Sample) EndOfStream() bool { return s.Flags&SampleFlagEndOfStream != 0 }

// endOfStreamSample is the marker written to sinks when a track completes.
func endOfStreamSample(pts time.Duration) Sample {
	return Sample{PTS: pts, Flags: SampleFlagEndOfStream}
}

// TrackStatus is the result of a pull against a source or codec stage.
type TrackStatus int

const (
	TrackStatusNoData TrackStatus = iota
	TrackStatusAvailable
	TrackStatusEndOfStream
)

func (s TrackStatus) String() string {
	switch s {
	case TrackStatusNoData:
		return "no-data"
	case TrackStatusAvailable:
		return "available"
	case TrackStatusEndOfStream:
		return "end-of-stream"
	default:
		return fmt.Sprintf("TrackStatus(%d)", int(s))
	}
}

// TrackMode is the decision a strategy takes for one track.
type TrackMode int

const (
	TrackModeAbsent      TrackMode = iota // no input for this track
	TrackModeRemoving                     // input exists, output drops it
	TrackModePassThrough                  // copied without decode/encode
	TrackModeCompressing                  // decoded, transformed, encoded
)

func (m TrackMode) String() string {
	switch m {
	case TrackModeAbsent:
		return "absent"
	case TrackModeRemoving:
		return "removing"
	case TrackModePassThrough:
		return "pass-through"
	case TrackModeCompressing:
		return "compressing"
	default:
		return fmt.Sprintf("TrackMode(%d)", int(m))
	}
}

// Transcoding reports whether the track is written to the output.
func (m TrackMode) Transcoding() bool {
	return m == TrackModePassThrough || m == TrackModeCompressing
}

// CompletionCode is the successful outcome of a run.
type CompletionCode int

const (
	CompletionTranscoded CompletionCode = 0
	CompletionNotNeeded  CompletionCode = 1
)

func (c CompletionCode) String() string {
	switch c {
	case CompletionTranscoded:
		return "transcoded"
	case CompletionNotNeeded:
		return "not-needed"
	default:
		return fmt.Sprintf("CompletionCode(%d)", int(c))
	}
}
