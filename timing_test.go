package transcoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeedTimeInterpolator(t *testing.T) {
	for _, speed := range []float64{0, -1} {
		_, err := NewSpeedTimeInterpolator(speed)
		assert.ErrorIs(t, err, ErrConfiguration, "speed %v", speed)
	}

	fast, err := NewSpeedTimeInterpolator(2)
	require.NoError(t, err)
	slow, err := NewSpeedTimeInterpolator(0.5)
	require.NoError(t, err)

	var prevFast, prevSlow time.Duration = -1, -1
	for pts := time.Duration(0); pts < 2*time.Second; pts += 33 * time.Millisecond {
		f := fast.Interpolate(TrackVideo, pts)
		s := slow.Interpolate(TrackAudio, pts)
		assert.Greater(t, f, prevFast)
		assert.Greater(t, s, prevSlow)
		prevFast, prevSlow = f, s
	}
	assert.Equal(t, 5*time.Second, fast.Interpolate(TrackVideo, 10*time.Second))
	assert.Equal(t, 20*time.Second, slow.Interpolate(TrackAudio, 10*time.Second))
}

func TestTimelineClampsRegressions(t *testing.T) {
	// An interpolator that jumps backwards once.
	values := map[time.Duration]time.Duration{
		0:  0,
		10: 100,
		20: 50,
		30: 300,
	}
	tl := newTimeline(TrackVideo, TimeInterpolatorFunc(func(_ TrackType, pts time.Duration) time.Duration {
		return values[pts]
	}))

	assert.Equal(t, time.Duration(0), tl.Map(0))
	assert.Equal(t, time.Duration(100), tl.Map(10))
	assert.Equal(t, time.Duration(100), tl.Map(20))
	assert.Equal(t, time.Duration(300), tl.Map(30))
	assert.Equal(t, 1, tl.clamped)
	assert.Equal(t, time.Duration(300), tl.Last())
}

func TestTimelineSpan(t *testing.T) {
	speed, err := NewSpeedTimeInterpolator(2)
	require.NoError(t, err)
	tl := newTimeline(TrackAudio, speed)

	assert.Equal(t, 10*time.Millisecond, tl.Span(time.Second, 20*time.Millisecond))
	assert.Equal(t, time.Duration(0), tl.Span(time.Second, 0))
	assert.Equal(t, time.Duration(0), tl.Last(), "span does not advance the timeline")

	assert.Equal(t, 20*time.Millisecond, newTimeline(TrackAudio, nil).Span(0, 20*time.Millisecond))
}

func TestFrameDropper(t *testing.T) {
	frame := time.Second / 30

	tests := []struct {
		name      string
		targetFPS float64
		step      time.Duration // output distance between input frames
		want      int
	}{
		{"no target keeps all", 0, frame / 2, 300},
		{"same rate keeps all", 30, frame, 300},
		{"double speed keeps half", 30, frame / 2, 150},
		{"slow motion keeps all", 30, 2 * frame, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFrameDropper(tt.targetFPS)
			kept := 0
			var keptPTS []time.Duration
			for i := 0; i < 300; i++ {
				pts := time.Duration(i) * tt.step
				if d.ShouldRender(pts) {
					kept++
					keptPTS = append(keptPTS, pts)
				}
			}
			assert.Equal(t, tt.want, kept)
			assert.Equal(t, 300-tt.want, d.dropped)
			assert.Equal(t, time.Duration(0), keptPTS[0], "the first frame is always kept")
		})
	}
}
