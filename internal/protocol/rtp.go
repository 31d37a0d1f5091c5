package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"

	"github.com/dkeye/voicecall/internal/domain"
)

// Binary audio frames are RTP packets: payload is the same little-endian
// float32 layout as the JSON form, the room and sample rate travel in
// two-byte header extensions so the relay can route without decoding samples.
const (
	AudioPayloadType uint8 = 96

	extRoomID     uint8 = 1
	extSampleRate uint8 = 2
)

type AudioPacket struct {
	Room       domain.RoomID
	SampleRate int
	Sequence   uint16
	Timestamp  uint32
	SSRC       uint32
	// Payload is little-endian float32 samples, see EncodeSamples.
	Payload []byte
}

func MarshalAudioRTP(p AudioPacket) ([]byte, error) {
	if p.Room == "" || len(p.Room) > 255 {
		return nil, fmt.Errorf("%w: room id length %d", ErrMalformedAudio, len(p.Room))
	}
	rate := make([]byte, 4)
	binary.BigEndian.PutUint32(rate, uint32(p.SampleRate))

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:          2,
			PayloadType:      AudioPayloadType,
			SequenceNumber:   p.Sequence,
			Timestamp:        p.Timestamp,
			SSRC:             p.SSRC,
			Extension:        true,
			ExtensionProfile: rtp.ExtensionProfileTwoByte,
		},
		Payload: p.Payload,
	}
	if err := pkt.Header.SetExtension(extRoomID, []byte(p.Room)); err != nil {
		return nil, fmt.Errorf("set room extension: %w", err)
	}
	if err := pkt.Header.SetExtension(extSampleRate, rate); err != nil {
		return nil, fmt.Errorf("set rate extension: %w", err)
	}
	return pkt.Marshal()
}

func UnmarshalAudioRTP(b []byte) (AudioPacket, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(b); err != nil {
		return AudioPacket{}, fmt.Errorf("%w: %v", ErrMalformedAudio, err)
	}
	room, rate, err := audioHeader(&pkt.Header)
	if err != nil {
		return AudioPacket{}, err
	}
	return AudioPacket{
		Room:       room,
		SampleRate: rate,
		Sequence:   pkt.SequenceNumber,
		Timestamp:  pkt.Timestamp,
		SSRC:       pkt.SSRC,
		Payload:    pkt.Payload,
	}, nil
}

// AudioRTPRoom parses only the header; the relay never touches the payload.
func AudioRTPRoom(b []byte) (domain.RoomID, error) {
	var h rtp.Header
	if _, err := h.Unmarshal(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedAudio, err)
	}
	room, _, err := audioHeader(&h)
	return room, err
}

func audioHeader(h *rtp.Header) (domain.RoomID, int, error) {
	if h.PayloadType != AudioPayloadType {
		return "", 0, fmt.Errorf("%w: payload type %d", ErrMalformedAudio, h.PayloadType)
	}
	room := h.GetExtension(extRoomID)
	if len(room) == 0 {
		return "", 0, fmt.Errorf("%w: missing room extension", ErrMalformedAudio)
	}
	rate := h.GetExtension(extSampleRate)
	if len(rate) != 4 {
		return "", 0, fmt.Errorf("%w: missing sample rate extension", ErrMalformedAudio)
	}
	return domain.RoomID(room), int(binary.BigEndian.Uint32(rate)), nil
}
