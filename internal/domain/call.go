package domain

type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallConnected
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallRinging:
		return "ringing"
	case CallConnected:
		return "connected"
	case CallEnded:
		return "ended"
	}
	return "unknown"
}

// CallDirection tells which side of the call the local client is on.
type CallDirection int

const (
	Outgoing CallDirection = iota
	Incoming
)

func (d CallDirection) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}
