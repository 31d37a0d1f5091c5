package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type SessionID string

type FrameKind int

const (
	TextFrame FrameKind = iota
	BinaryFrame
)

// Frame is a serialized message ready for the wire.
type Frame struct {
	Kind FrameKind
	Data []byte
}

func Text(b []byte) Frame   { return Frame{Kind: TextFrame, Data: b} }
func Binary(b []byte) Frame { return Frame{Kind: BinaryFrame, Data: b} }

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend never blocks; a full queue yields ErrBackpressure.
	TrySend(Frame) error
	Close()
}
