package transcoder

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
)

// DefaultMTU is the packet size used when splitting samples into RTP packets.
const DefaultMTU = 1200

// Dynamic payload types used for RTP packets written to container writers.
const (
	payloadTypeVP8  = 96
	payloadTypeVP9  = 98
	payloadTypeAV1  = 45
	payloadTypeOpus = 111
)

// packetizer splits encoded samples into RTP packets stamped with the
// sample's presentation time in clock-rate units.
type packetizer struct {
	ssrc        uint32
	payloadType uint8
	clockRate   uint32
	mtu         int
	sequencer   rtp.Sequencer
	payloader   rtp.Payloader
}

func newPacketizer(mime string) (*packetizer, error) {
	p := &packetizer{
		ssrc:      rand.Uint32(),
		mtu:       DefaultMTU,
		sequencer: rtp.NewRandomSequencer(),
	}
	switch strings.ToLower(mime) {
	case strings.ToLower(webrtc.MimeTypeVP8):
		p.payloader, p.payloadType, p.clockRate = &codecs.VP8Payloader{}, payloadTypeVP8, VideoCodecVP8.ClockRate()
	case strings.ToLower(webrtc.MimeTypeVP9):
		p.payloader, p.payloadType, p.clockRate = &codecs.VP9Payloader{}, payloadTypeVP9, VideoCodecVP9.ClockRate()
	case strings.ToLower(webrtc.MimeTypeAV1):
		p.payloader, p.payloadType, p.clockRate = &codecs.AV1Payloader{}, payloadTypeAV1, VideoCodecAV1.ClockRate()
	case strings.ToLower(webrtc.MimeTypeOpus):
		p.payloader, p.payloadType, p.clockRate = &codecs.OpusPayloader{}, payloadTypeOpus, AudioCodecOpus.ClockRate()
	default:
		return nil, fmt.Errorf("%w: no packetizer for %s", ErrUnsupportedFormat, mime)
	}
	return p, nil
}

// Packetize converts one encoded sample into RTP packets. The marker bit is
// set on the last packet of the sample.
func (p *packetizer) Packetize(s Sample) []*rtp.Packet {
	if len(s.Data) == 0 {
		return nil
	}
	payloads := p.payloader.Payload(uint16(p.mtu-12), s.Data)
	if len(payloads) == 0 {
		return nil
	}
	timestamp := uint32(s.PTS.Nanoseconds() * int64(p.clockRate) / 1e9)

	packets := make([]*rtp.Packet, len(payloads))
	for i, payload := range payloads {
		packets[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      timestamp,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		}
	}
	return packets
}
