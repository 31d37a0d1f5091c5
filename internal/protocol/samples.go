package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrMalformedAudio = errors.New("malformed audio payload")

const bytesPerSample = 4

// EncodeSamples lays samples out as concatenated little-endian IEEE-754 float32.
func EncodeSamples(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*bytesPerSample:], math.Float32bits(s))
	}
	return out
}

func DecodeSamples(b []byte) ([]float32, error) {
	if len(b)%bytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of samples", ErrMalformedAudio, len(b))
	}
	out := make([]float32, len(b)/bytesPerSample)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*bytesPerSample:]))
	}
	return out, nil
}

// EncodeAudioPayload makes raw sample bytes safe for a JSON text message.
func EncodeAudioPayload(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func DecodeAudioPayload(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAudio, err)
	}
	return raw, nil
}
