package transcoder

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// passThroughTranscoder copies compressed samples from the sources to the
// sink without decoding. Timestamps still go through the timeline.
type passThroughTranscoder struct {
	track    TrackType
	input    *trackInput
	timeline *timeline
	sink     Sink
	handle   int
	log      logrus.FieldLogger
	metrics  *Metrics

	last     time.Duration
	written  int
	finished bool
}

func newPassThroughTranscoder(track TrackType, input *trackInput, format *MediaFormat, sink Sink,
	interp TimeInterpolator, log logrus.FieldLogger, metrics *Metrics) (*passThroughTranscoder, error) {
	handle, err := sink.AddTrack(format)
	if err != nil {
		return nil, trackErr(track, StageMux, sinkErr(err))
	}
	log.WithField("format", format.String()).Info("copying track")
	return &passThroughTranscoder{
		track:    track,
		input:    input,
		timeline: newTimeline(track, interp),
		sink:     sink,
		handle:   handle,
		log:      log,
		metrics:  metrics,
	}, nil
}

func (p *passThroughTranscoder) step(context.Context) (bool, error) {
	if p.finished {
		return false, nil
	}
	s, status, err := p.input.Read()
	if err != nil {
		return false, trackErr(p.track, StageExtract, err)
	}
	switch status {
	case TrackStatusNoData:
		return false, nil
	case TrackStatusEndOfStream:
		if err := p.sink.WriteSample(p.handle, endOfStreamSample(p.last)); err != nil {
			return false, trackErr(p.track, StageMux, sinkErr(err))
		}
		p.finished = true
		p.log.WithField("samples", p.written).Info("track copied")
		return true, nil
	}

	out := Sample{
		Data:     s.Data,
		PTS:      p.timeline.Map(s.PTS),
		Duration: p.timeline.Span(s.PTS, s.Duration),
		Flags:    s.Flags &^ SampleFlagEndOfStream,
	}
	if err := p.sink.WriteSample(p.handle, out); err != nil {
		return false, trackErr(p.track, StageMux, sinkErr(err))
	}
	p.last = out.PTS
	p.written++
	p.metrics.sampleWritten(p.track)
	return true, nil
}

func (p *passThroughTranscoder) done() bool { return p.finished }

func (p *passThroughTranscoder) progress() float64 {
	if p.finished {
		return 1
	}
	return p.input.Progress()
}
