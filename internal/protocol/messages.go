// Package protocol defines the signaling wire format shared by the relay and its clients.
// Every text message is a JSON object discriminated by its "type" field.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/voicecall/internal/domain"
)

const (
	TypeRegister     = "register"
	TypeOnlineUsers  = "online-users"
	TypeStartCall    = "start-call"
	TypeIncomingCall = "incoming-call"
	TypeAcceptCall   = "accept-call"
	TypeCallAccepted = "call-accepted"
	TypeAudio        = "audio"
	TypeEndCall      = "end-call"
	TypeCallEnded    = "call-ended"
	TypeCallFailed   = "call-failed"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeError        = "error"
)

// Reasons carried by call-failed.
const (
	ReasonCalleeOffline = "callee_offline"
	ReasonBusy          = "busy"
	ReasonSelfCall      = "self_call"
	ReasonRateLimited   = "rate_limited"
	ReasonNotRegistered = "not_registered"
)

var ErrNoType = errors.New("message has no type")

// ClientTypes are the messages a client may send.
var ClientTypes = map[string]bool{
	TypeRegister:   true,
	TypeStartCall:  true,
	TypeAcceptCall: true,
	TypeAudio:      true,
	TypeEndCall:    true,
	TypePing:       true,
}

type Envelope struct {
	Type string `json:"type"`
}

type Register struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

type OnlineUsers struct {
	Type  string            `json:"type"`
	Users []domain.ClientID `json:"users"`
}

type StartCall struct {
	Type         string          `json:"type"`
	TargetUserID domain.ClientID `json:"targetUserId"`
	CallerID     domain.ClientID `json:"callerId"`
	RoomID       domain.RoomID   `json:"roomId"`
}

type IncomingCall struct {
	Type     string          `json:"type"`
	CallerID domain.ClientID `json:"callerId"`
	RoomID   domain.RoomID   `json:"roomId"`
}

type AcceptCall struct {
	Type     string          `json:"type"`
	CallerID domain.ClientID `json:"callerId"`
	RoomID   domain.RoomID   `json:"roomId"`
}

type CallAccepted struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId,omitempty"`
}

// Audio carries base64 of little-endian float32 mono samples.
type Audio struct {
	Type       string        `json:"type"`
	RoomID     domain.RoomID `json:"roomId"`
	Data       string        `json:"data"`
	SampleRate int           `json:"sampleRate"`
}

type EndCall struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type CallEnded struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId,omitempty"`
}

type CallFailed struct {
	Type         string          `json:"type"`
	RoomID       domain.RoomID   `json:"roomId"`
	TargetUserID domain.ClientID `json:"targetUserId"`
	Reason       string          `json:"reason"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// PeekType reads only the discriminator of a text message.
func PeekType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return "", ErrNoType
	}
	return env.Type, nil
}

func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
