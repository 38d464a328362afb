package transcoder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// idleWait is how long the engine sleeps when no track made progress.
const idleWait = 10 * time.Millisecond

// progressStep is the smallest progress change reported to the listener.
const progressStep = 0.01

type releaser struct {
	name    string
	release func() error
}

// releaseStack releases resources in reverse acquisition order.
type releaseStack struct {
	items []releaser
}

func (s *releaseStack) push(name string, release func() error) {
	s.items = append(s.items, releaser{name: name, release: release})
}

// release runs every release function, even after failures, and empties
// the stack.
func (s *releaseStack) release() error {
	var result *multierror.Error
	for i := len(s.items) - 1; i >= 0; i-- {
		r := s.items[i]
		if err := r.release(); err != nil {
			result = multierror.Append(result, fmt.Errorf("release %s: %w", r.name, err))
		}
	}
	s.items = nil
	return result.ErrorOrNil()
}

// stepper is one track of a running transcode.
type stepper interface {
	step(ctx context.Context) (bool, error)
	done() bool
	progress() float64
}

// engine runs one transcode on the calling goroutine.
type engine struct {
	id         uuid.UUID
	opts       *Options
	dispatcher Dispatcher
	log        logrus.FieldLogger
	metrics    *Metrics

	teardown releaseStack
	inputs   [2][]Source
	formats  [2][]*MediaFormat
	modes    TrackModes
	outputs  [2]*MediaFormat

	progress float64
	reported bool
}

func newEngine(opts *Options, id uuid.UUID, dispatcher Dispatcher) *engine {
	return &engine{
		id:         id,
		opts:       opts,
		dispatcher: dispatcher,
		log:        opts.logger.WithField("run", id.String()),
		metrics:    opts.metrics,
	}
}

// run transcodes and releases every acquired resource before returning.
// Cancellation is reported as an error matching ErrCanceled.
func (e *engine) run(ctx context.Context) (code CompletionCode, err error) {
	start := time.Now()
	e.metrics.runStarted()
	e.log.Info("transcode started")

	defer func() {
		result := code.String()
		switch {
		case IsCanceled(err):
			result = "canceled"
			e.log.WithField("elapsed", time.Since(start)).Info("transcode canceled")
		case err != nil:
			result = "failed"
			e.log.WithError(err).Error("transcode failed")
		default:
			e.log.WithFields(logrus.Fields{
				"code":    code,
				"elapsed": time.Since(start),
			}).Info("transcode completed")
		}
		e.metrics.runFinished(result, time.Since(start))
	}()

	// The run owns the sink and the sources: all are released on every
	// outcome, initialized or not.
	e.teardown.push("sink", func() error {
		if err := e.opts.sink.Release(); err != nil {
			return sinkErr(err)
		}
		return nil
	})
	sources := e.distinctSources()
	for i, src := range sources {
		e.teardown.push(fmt.Sprintf("source %d", i), src.Release)
	}
	defer func() {
		terr := e.teardown.release()
		if terr == nil {
			return
		}
		if err == nil && errors.Is(terr, ErrSinkWrite) {
			err = terr
			return
		}
		e.log.WithError(terr).Warn("teardown failed")
	}()

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCanceled, err)
	}
	if err := e.configure(sources); err != nil {
		return 0, err
	}

	if !e.opts.validator.NeedsTranscoding(e.modes) {
		e.log.WithFields(logrus.Fields{
			"video": e.modes.Video,
			"audio": e.modes.Audio,
		}).Info("no transformation needed, copying tracks")
		if err := e.copyTracks(ctx); err != nil {
			return 0, err
		}
		return CompletionNotNeeded, nil
	}
	if err := e.transcode(ctx); err != nil {
		return 0, err
	}
	return CompletionTranscoded, nil
}

// distinctSources returns every source once, in registration order. A
// source added for both tracks is shared.
func (e *engine) distinctSources() []Source {
	var distinct []Source
	for _, track := range TrackTypes {
		for _, src := range e.opts.sources[track] {
			if !containsSource(distinct, src) {
				distinct = append(distinct, src)
			}
		}
	}
	return distinct
}

// configure initializes the sources, selects the output formats and
// rewinds the sources for the actual run.
func (e *engine) configure(distinct []Source) error {
	for i, src := range distinct {
		if err := src.Initialize(); err != nil {
			return fmt.Errorf("initialize source %d: %w", i, err)
		}
	}

	for _, track := range TrackTypes {
		log := e.log.WithField("track", track)
		for i, src := range e.opts.sources[track] {
			f := src.Format(track)
			if f == nil {
				log.WithField("source", i).Debug("source has no such track")
				continue
			}
			f = f.Clone()
			if track == TrackVideo {
				f.Rotation = normalizeRotation(f.Rotation + e.opts.rotation)
			}
			e.inputs[track] = append(e.inputs[track], src)
			e.formats[track] = append(e.formats[track], f)
		}
		if n, total := len(e.inputs[track]), len(e.opts.sources[track]); n > 0 && n < total {
			log.WithFields(logrus.Fields{"with_track": n, "sources": total}).
				Warn("some sources lack the track and are skipped")
		}

		mode, out, err := e.opts.strategies[track].CreateOutputFormat(e.formats[track])
		if err != nil {
			return fmt.Errorf("%w: %s strategy: %w", ErrConfiguration, track, err)
		}
		if len(e.formats[track]) == 0 {
			mode, out = TrackModeAbsent, nil
		}
		switch mode {
		case TrackModeCompressing:
			if err := out.Validate(); err != nil {
				return fmt.Errorf("%w: %s output: %w", ErrConfiguration, track, err)
			}
		case TrackModePassThrough:
			if out == nil {
				out = e.formats[track][0].Clone()
				out.Duration = totalDuration(e.formats[track])
			}
		}
		e.modes.set(track, mode)
		e.outputs[track] = out
		log.WithFields(logrus.Fields{
			"mode":   mode,
			"inputs": len(e.formats[track]),
			"output": out.String(),
		}).Debug("track strategy selected")
	}

	for i, src := range distinct {
		if err := src.Rewind(); err != nil {
			return fmt.Errorf("rewind source %d: %w", i, err)
		}
	}
	return nil
}

func containsSource(list []Source, src Source) bool {
	for _, s := range list {
		if s == src {
			return true
		}
	}
	return false
}

// copyTracks writes every present track to the sink unchanged.
func (e *engine) copyTracks(ctx context.Context) error {
	var steppers []stepper
	for _, track := range TrackTypes {
		switch e.modes.Get(track) {
		case TrackModeAbsent, TrackModeRemoving:
			continue
		}
		format := e.formats[track][0].Clone()
		format.Duration = totalDuration(e.formats[track])
		p, err := newPassThroughTranscoder(track, newTrackInput(track, e.inputs[track]), format,
			e.opts.sink, DefaultTimeInterpolator{}, e.log.WithField("track", track), e.metrics)
		if err != nil {
			return err
		}
		steppers = append(steppers, p)
	}
	return e.loop(ctx, steppers)
}

// transcode builds a transcoder per written track and runs them.
func (e *engine) transcode(ctx context.Context) error {
	var steppers []stepper
	for _, track := range TrackTypes {
		log := e.log.WithField("track", track)
		input := newTrackInput(track, e.inputs[track])
		switch e.modes.Get(track) {
		case TrackModePassThrough:
			p, err := newPassThroughTranscoder(track, input, e.outputs[track], e.opts.sink,
				e.opts.interpolator, log, e.metrics)
			if err != nil {
				return err
			}
			steppers = append(steppers, p)
		case TrackModeCompressing:
			t, err := newTrackTranscoder(trackConfig{
				track:    track,
				input:    input,
				formats:  e.formats[track],
				output:   e.outputs[track],
				opts:     e.opts,
				teardown: &e.teardown,
				log:      log,
				metrics:  e.metrics,
			})
			if err != nil {
				return err
			}
			steppers = append(steppers, t)
		case TrackModeRemoving:
			log.Info("track removed from output")
		}
	}
	return e.loop(ctx, steppers)
}

// loop steps every unfinished track in turn until all are done. Cancellation
// is checked before each round.
func (e *engine) loop(ctx context.Context, steppers []stepper) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCanceled, err)
		}

		progressed, finished := false, true
		for _, s := range steppers {
			if s.done() {
				continue
			}
			ok, err := s.step(ctx)
			if err != nil {
				return err
			}
			progressed = progressed || ok
			finished = finished && s.done()
		}
		if finished {
			e.report(1)
			return nil
		}
		e.report(averageProgress(steppers))

		if !progressed {
			timer := time.NewTimer(idleWait)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

func averageProgress(steppers []stepper) float64 {
	if len(steppers) == 0 {
		return 1
	}
	var sum float64
	for _, s := range steppers {
		sum += s.progress()
	}
	return sum / float64(len(steppers))
}

// report delivers progress to the listener when it grew by at least
// progressStep. Completion is always delivered.
func (e *engine) report(p float64) {
	p = min(max(p, e.progress), 1)
	if e.reported && p-e.progress < progressStep && (p < 1 || e.progress == 1) {
		return
	}
	e.progress, e.reported = p, true
	listener := e.opts.listener
	e.dispatcher.Dispatch(func() { listener.OnProgress(p) })
}
