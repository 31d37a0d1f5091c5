package client

import "github.com/dkeye/voicecall/internal/domain"

// Event is something the relay told us.
type Event interface {
	isEvent()
}

type RosterUpdated struct {
	Users []domain.ClientID
}

type IncomingCall struct {
	Caller domain.ClientID
	Room   domain.RoomID
}

// CallAccepted may carry an empty Room, which matches the current call.
type CallAccepted struct {
	Room domain.RoomID
}

// AudioReceived carries undecoded little-endian float32 sample bytes.
type AudioReceived struct {
	Room       domain.RoomID
	SampleRate int
	Payload    []byte
}

type CallEnded struct {
	Room domain.RoomID
}

type CallFailed struct {
	Room   domain.RoomID
	Target domain.ClientID
	Reason string
}

// ServerError is a {"type":"error"} reply.
type ServerError struct {
	Code string
}

func (RosterUpdated) isEvent() {}
func (IncomingCall) isEvent()  {}
func (CallAccepted) isEvent()  {}
func (AudioReceived) isEvent() {}
func (CallEnded) isEvent()     {}
func (CallFailed) isEvent()    {}
func (ServerError) isEvent()   {}
