package transcoder

import "time"

// frameDropper decides which frames to render so that output timestamps do
// not exceed the target frame rate. Decisions use output timestamps, so
// speed changes are accounted for.
type frameDropper struct {
	interval time.Duration // 0 renders every frame
	next     time.Duration
	started  bool
	dropped  int
}

func newFrameDropper(targetFPS float64) *frameDropper {
	d := &frameDropper{}
	if targetFPS > 0 {
		d.interval = time.Duration(float64(time.Second) / targetFPS)
	}
	return d
}

// ShouldRender reports whether the frame at output timestamp pts is kept.
func (d *frameDropper) ShouldRender(pts time.Duration) bool {
	if d.interval == 0 {
		return true
	}
	if !d.started {
		d.started = true
		d.next = pts + d.interval
		return true
	}
	// Half an interval of tolerance absorbs timestamp jitter.
	if pts+d.interval/2 >= d.next {
		d.next += d.interval
		if d.next <= pts {
			d.next = pts + d.interval
		}
		return true
	}
	d.dropped++
	return false
}
