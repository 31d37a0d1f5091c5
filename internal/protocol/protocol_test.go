package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeekType(t *testing.T) {
	typ, err := PeekType([]byte(`{"type":"start-call","targetUserId":"bob"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeStartCall, typ)

	_, err = PeekType([]byte(`{"targetUserId":"bob"}`))
	assert.ErrorIs(t, err, ErrNoType)

	_, err = PeekType([]byte(`not json`))
	assert.Error(t, err)
}

func TestWireFieldNames(t *testing.T) {
	b, err := Marshal(StartCall{Type: TypeStartCall, TargetUserID: "bob", CallerID: "alice", RoomID: "alice-bob"})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, map[string]any{
		"type":         "start-call",
		"targetUserId": "bob",
		"callerId":     "alice",
		"roomId":       "alice-bob",
	}, m)

	b, err = Marshal(CallAccepted{Type: TypeCallAccepted})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"call-accepted"}`, string(b))
}

func TestSamplesLittleEndian(t *testing.T) {
	raw := EncodeSamples([]float32{1.0, -0.5})
	// 1.0 = 0x3f800000, -0.5 = 0xbf000000
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xbf}, raw)

	out, err := DecodeSamples(raw)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.0, -0.5}, out)
}

func TestDecodeSamplesRejectsPartialSample(t *testing.T) {
	_, err := DecodeSamples([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedAudio)
}

func TestAudioPayloadBase64(t *testing.T) {
	raw := EncodeSamples(make([]float32, 512))
	payload := EncodeAudioPayload(raw)

	back, err := DecodeAudioPayload(payload)
	require.NoError(t, err)
	assert.Len(t, back, 512*4)

	_, err = DecodeAudioPayload("%%%")
	assert.ErrorIs(t, err, ErrMalformedAudio)
}

func TestAudioRTP(t *testing.T) {
	raw := EncodeSamples([]float32{0.25, 0.5, 0.75})
	b, err := MarshalAudioRTP(AudioPacket{
		Room:       "alice-bob",
		SampleRate: 44100,
		Sequence:   7,
		Timestamp:  512,
		SSRC:       42,
		Payload:    raw,
	})
	require.NoError(t, err)

	room, err := AudioRTPRoom(b)
	require.NoError(t, err)
	assert.EqualValues(t, "alice-bob", room)

	p, err := UnmarshalAudioRTP(b)
	require.NoError(t, err)
	assert.EqualValues(t, "alice-bob", p.Room)
	assert.Equal(t, 44100, p.SampleRate)
	assert.EqualValues(t, 7, p.Sequence)
	assert.EqualValues(t, 512, p.Timestamp)
	assert.EqualValues(t, 42, p.SSRC)
	assert.Equal(t, raw, p.Payload)
}

func TestAudioRTPRejects(t *testing.T) {
	_, err := MarshalAudioRTP(AudioPacket{SampleRate: 44100})
	assert.ErrorIs(t, err, ErrMalformedAudio)

	_, err = AudioRTPRoom([]byte{0x80})
	assert.ErrorIs(t, err, ErrMalformedAudio)
}

func TestClientTypes(t *testing.T) {
	assert.True(t, ClientTypes[TypeStartCall])
	assert.False(t, ClientTypes[TypeIncomingCall])
	assert.False(t, ClientTypes["teleport"])
}
