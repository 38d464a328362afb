package transcoder

import (
	"fmt"
	"time"
)

// TimeInterpolator maps input presentation timestamps to output timestamps.
// Implementations may keep per-track state but must never revise a value
// they already returned.
type TimeInterpolator interface {
	Interpolate(track TrackType, pts time.Duration) time.Duration
}

// DefaultTimeInterpolator leaves timestamps unchanged.
type DefaultTimeInterpolator struct{}

// Interpolate implements TimeInterpolator.
func (DefaultTimeInterpolator) Interpolate(_ TrackType, pts time.Duration) time.Duration {
	return pts
}

// SpeedTimeInterpolator plays the input at a constant speed factor:
// output = input / speed.
type SpeedTimeInterpolator struct {
	speed float64
}

// NewSpeedTimeInterpolator creates a constant speed interpolator. Speed must
// be positive; values above 1 shorten the output.
func NewSpeedTimeInterpolator(speed float64) (*SpeedTimeInterpolator, error) {
	if !(speed > 0) {
		return nil, fmt.Errorf("%w: speed must be > 0, got %v", ErrConfiguration, speed)
	}
	return &SpeedTimeInterpolator{speed: speed}, nil
}

// Speed returns the speed factor.
func (s *SpeedTimeInterpolator) Speed() float64 { return s.speed }

// Interpolate implements TimeInterpolator.
func (s *SpeedTimeInterpolator) Interpolate(_ TrackType, pts time.Duration) time.Duration {
	return time.Duration(float64(pts) / s.speed)
}

// TimeInterpolatorFunc adapts a function to TimeInterpolator.
type TimeInterpolatorFunc func(track TrackType, pts time.Duration) time.Duration

// Interpolate implements TimeInterpolator.
func (f TimeInterpolatorFunc) Interpolate(track TrackType, pts time.Duration) time.Duration {
	return f(track, pts)
}

// timeline applies an interpolator to one track and guarantees a monotonic
// non-decreasing output, even for interpolators that are not.
type timeline struct {
	track   TrackType
	interp  TimeInterpolator
	emitted bool
	last    time.Duration
	clamped int
}

func newTimeline(track TrackType, interp TimeInterpolator) *timeline {
	if interp == nil {
		interp = DefaultTimeInterpolator{}
	}
	return &timeline{track: track, interp: interp}
}

// Map returns the output timestamp for pts.
func (t *timeline) Map(pts time.Duration) time.Duration {
	out := t.interp.Interpolate(t.track, pts)
	if t.emitted && out < t.last {
		out = t.last
		t.clamped++
	}
	t.emitted = true
	t.last = out
	return out
}

// Span returns the output length of the input interval [pts, pts+d). It
// does not advance the timeline.
func (t *timeline) Span(pts, d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return max(0, t.interp.Interpolate(t.track, pts+d)-t.interp.Interpolate(t.track, pts))
}

// Last returns the last emitted timestamp.
func (t *timeline) Last() time.Duration { return t.last }
