package transcoder

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrConfiguration     = errors.New("invalid configuration")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrFrameTimeout      = errors.New("frame wait timed out")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrCodec             = errors.New("codec error")
	ErrSinkWrite         = errors.New("sink write failed")
	ErrCanceled          = errors.New("transcode canceled")
	ErrReleased          = errors.New("resource already released")
	ErrCodecNotSupported = errors.New("codec not supported by provider")
	ErrProviderNotFound  = errors.New("provider not available")
	ErrPoolClosed        = errors.New("pool closed")
)

// Stage names the pipeline step an error occurred in.
type Stage string

const (
	StageConfigure Stage = "configure"
	StageExtract   Stage = "extract"
	StageDecode    Stage = "decode"
	StageRender    Stage = "render"
	StageEncode    Stage = "encode"
	StageMux       Stage = "mux"
	StageRelease   Stage = "release"
)

// TrackError attributes a failure to a track and a pipeline stage.
type TrackError struct {
	Track TrackType
	Stage Stage
	Err   error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Track, e.Stage, e.Err)
}

func (e *TrackError) Unwrap() error { return e.Err }

func trackErr(track TrackType, stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var te *TrackError
	if errors.As(err, &te) {
		return err
	}
	return &TrackError{Track: track, Stage: stage, Err: err}
}

// IsCanceled reports whether err represents a canceled run.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
