package app

import "github.com/dkeye/voicecall/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	}
	return "none"
}

// MessageKind separates stale-tolerant audio from signaling that must arrive.
type MessageKind int

const (
	SignalMessage MessageKind = iota
	AudioMessage
)

type Policy interface {
	OnBackPressure(kind MessageKind, sid core.SessionID) BackpressureAction
}

// SimplePolicy drops audio that cannot be queued and disconnects a client that
// cannot keep up with signaling.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(kind MessageKind, _ core.SessionID) BackpressureAction {
	if kind == AudioMessage {
		return DropFrame
	}
	return KickMember
}
