package transcoder

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

// TrackType identifies one of the two tracks a transcode can carry.
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
)

// TrackTypes lists every track type in the order the engine visits them.
var TrackTypes = [...]TrackType{TrackVideo, TrackAudio}

func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
	VideoCodecH264
	VideoCodecAV1
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	case VideoCodecH264:
		return "H264"
	case VideoCodecAV1:
		return "AV1"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c VideoCodec) MimeType() string {
	switch c {
	case VideoCodecVP8:
		return webrtc.MimeTypeVP8
	case VideoCodecVP9:
		return webrtc.MimeTypeVP9
	case VideoCodecH264:
		return webrtc.MimeTypeH264
	case VideoCodecAV1:
		return webrtc.MimeTypeAV1
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c VideoCodec) ClockRate() uint32 {
	// All video codecs use 90kHz clock
	return 90000
}

// FourCC returns the IVF fourcc for this codec, or "" when IVF cannot carry it.
func (c VideoCodec) FourCC() string {
	switch c {
	case VideoCodecVP8:
		return "VP80"
	case VideoCodecVP9:
		return "VP90"
	case VideoCodecAV1:
		return "AV01"
	default:
		return ""
	}
}

// VideoCodecFromMime maps a MIME type (case-insensitive) to a VideoCodec.
func VideoCodecFromMime(mime string) VideoCodec {
	for _, c := range []VideoCodec{VideoCodecVP8, VideoCodecVP9, VideoCodecH264, VideoCodecAV1} {
		if strings.EqualFold(c.MimeType(), mime) {
			return c
		}
	}
	return VideoCodecUnknown
}

// VideoCodecFromFourCC maps an IVF fourcc to a VideoCodec.
func VideoCodecFromFourCC(fourcc string) VideoCodec {
	switch fourcc {
	case "VP80":
		return VideoCodecVP8
	case "VP90":
		return VideoCodecVP9
	case "AV01":
		return VideoCodecAV1
	default:
		return VideoCodecUnknown
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
	AudioCodecG711A // A-law (PCMA)
	AudioCodecG711U // μ-law (PCMU)
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "Opus"
	case AudioCodecG711A:
		return "PCMA"
	case AudioCodecG711U:
		return "PCMU"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecOpus:
		return webrtc.MimeTypeOpus
	case AudioCodecG711A:
		return webrtc.MimeTypePCMA
	case AudioCodecG711U:
		return webrtc.MimeTypePCMU
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c AudioCodec) ClockRate() uint32 {
	switch c {
	case AudioCodecG711A, AudioCodecG711U:
		return 8000
	default:
		return 48000
	}
}

// AudioCodecFromMime maps a MIME type (case-insensitive) to an AudioCodec.
func AudioCodecFromMime(mime string) AudioCodec {
	for _, c := range []AudioCodec{AudioCodecOpus, AudioCodecG711A, AudioCodecG711U} {
		if strings.EqualFold(c.MimeType(), mime) {
			return c
		}
	}
	return AudioCodecUnknown
}
