package transcoder

// TrackModes holds the strategy decision for each track.
type TrackModes struct {
	Video TrackMode
	Audio TrackMode
}

// Get returns the mode for track.
func (m TrackModes) Get(track TrackType) TrackMode {
	if track == TrackVideo {
		return m.Video
	}
	return m.Audio
}

func (m *TrackModes) set(track TrackType, mode TrackMode) {
	if track == TrackVideo {
		m.Video = mode
	} else {
		m.Audio = mode
	}
}

// Validator decides whether a run needs to decode and encode anything. When
// it returns false the engine copies the input tracks and completes with
// CompletionNotNeeded.
type Validator interface {
	NeedsTranscoding(modes TrackModes) bool
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(modes TrackModes) bool

// NeedsTranscoding implements Validator.
func (f ValidatorFunc) NeedsTranscoding(modes TrackModes) bool { return f(modes) }

// DefaultValidator always transcodes when a video track is present, since
// rotation, scale and speed changes are the common case. Audio alone is
// transcoded only when its strategy asks for compression.
type DefaultValidator struct{}

// NeedsTranscoding implements Validator.
func (DefaultValidator) NeedsTranscoding(modes TrackModes) bool {
	if modes.Video != TrackModeAbsent {
		return true
	}
	return modes.Audio == TrackModeCompressing
}

// StatusValidator transcodes when any track is compressed or removed.
type StatusValidator struct{}

// NeedsTranscoding implements Validator.
func (StatusValidator) NeedsTranscoding(modes TrackModes) bool {
	for _, m := range []TrackMode{modes.Video, modes.Audio} {
		if m == TrackModeCompressing || m == TrackModeRemoving {
			return true
		}
	}
	return false
}

// WriteAlwaysValidator always transcodes.
type WriteAlwaysValidator struct{}

// NeedsTranscoding implements Validator.
func (WriteAlwaysValidator) NeedsTranscoding(TrackModes) bool { return true }
