package transcoder

import (
	"fmt"
	"sort"
	"time"
)

// Source supplies compressed samples for one or both tracks.
type Source interface {
	// Initialize opens the source. It is called once before any other method.
	Initialize() error

	// Format returns the track format, or nil if the source has no such track.
	Format(track TrackType) *MediaFormat

	// ReadSample pulls the next sample of a track. TrackStatusNoData means the
	// source is not ready yet and the call should be repeated later.
	ReadSample(track TrackType) (Sample, TrackStatus, error)

	// Rewind seeks every track back to its first sample.
	Rewind() error

	Release() error
}

// trackInput reads the sources of one track back to back. Later sources are
// offset by the accumulated duration of the earlier ones.
type trackInput struct {
	track   TrackType
	sources []Source
	index   int
	offset  time.Duration
	end     time.Duration // end of the latest sample, relative to the current source
	total   time.Duration
	read    time.Duration   // absolute end of the latest sample
	starts  []time.Duration // offset of every source reached so far
}

func newTrackInput(track TrackType, sources []Source) *trackInput {
	in := &trackInput{track: track, sources: sources, starts: []time.Duration{0}}
	for _, s := range sources {
		in.total += s.Format(track).Duration
	}
	return in
}

// Formats returns the formats of every source, in order.
func (in *trackInput) Formats() []*MediaFormat {
	out := make([]*MediaFormat, len(in.sources))
	for i, s := range in.sources {
		out[i] = s.Format(in.track)
	}
	return out
}

// Current returns the format of the source being read.
func (in *trackInput) Current() *MediaFormat {
	if in.index >= len(in.sources) {
		return nil
	}
	return in.sources[in.index].Format(in.track)
}

// Read returns the next sample with its timestamp moved into the
// concatenated timeline. Sources that end advance to the next one; the
// end of stream is reported once the last source ends.
func (in *trackInput) Read() (Sample, TrackStatus, error) {
	for in.index < len(in.sources) {
		src := in.sources[in.index]
		s, status, err := src.ReadSample(in.track)
		if err != nil {
			return Sample{}, 0, fmt.Errorf("read %s source %d: %w", in.track, in.index, err)
		}
		switch status {
		case TrackStatusNoData:
			return Sample{}, TrackStatusNoData, nil
		case TrackStatusAvailable:
			if s.EndOfStream() {
				in.advance(src)
				continue
			}
			if e := s.PTS + s.Duration; e > in.end {
				in.end = e
			}
			s.PTS += in.offset
			if e := s.PTS + s.Duration; e > in.read {
				in.read = e
			}
			return s, TrackStatusAvailable, nil
		default:
			in.advance(src)
		}
	}
	return Sample{}, TrackStatusEndOfStream, nil
}

func (in *trackInput) advance(src Source) {
	d := src.Format(in.track).Duration
	if in.end > d {
		d = in.end
	}
	in.offset += d
	in.end = 0
	in.index++
	if in.index < len(in.sources) {
		in.starts = append(in.starts, in.offset)
	}
}

// SourceAt returns the index of the source a concatenated timestamp was
// read from. Only sources already reached are considered.
func (in *trackInput) SourceAt(pts time.Duration) int {
	i := sort.Search(len(in.starts), func(i int) bool { return in.starts[i] > pts })
	return max(i-1, 0)
}

// Progress returns the fraction of the total duration read so far.
func (in *trackInput) Progress() float64 {
	if in.index >= len(in.sources) {
		return 1
	}
	if in.total <= 0 {
		return 0
	}
	return min(1, float64(in.read)/float64(in.total))
}

// Done reports whether every source reached its end.
func (in *trackInput) Done() bool { return in.index >= len(in.sources) }
