package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/voicecall/internal/domain"
)

var ErrInvalidTransition = errors.New("invalid call state transition")

// CallSession is the local view of one call. Transitions only move forward:
// Idle, Ringing, Connected, Ended. Ringing may go straight to Ended.
type CallSession struct {
	Room      domain.RoomID
	Caller    domain.ClientID
	Callee    domain.ClientID
	Direction domain.CallDirection

	state     domain.CallState
	startedAt time.Time
	duration  int
	reason    string
}

func NewOutgoing(self, callee domain.ClientID) *CallSession {
	return &CallSession{
		Room:      domain.NewRoomID(self, callee),
		Caller:    self,
		Callee:    callee,
		Direction: domain.Outgoing,
	}
}

func NewIncoming(caller, self domain.ClientID, room domain.RoomID) *CallSession {
	if room == "" {
		room = domain.NewRoomID(caller, self)
	}
	return &CallSession{
		Room:      room,
		Caller:    caller,
		Callee:    self,
		Direction: domain.Incoming,
	}
}

func (s *CallSession) State() domain.CallState { return s.state }

// Peer is the other party.
func (s *CallSession) Peer() domain.ClientID {
	if s.Direction == domain.Incoming {
		return s.Caller
	}
	return s.Callee
}

// Active is true while the session blocks another call.
func (s *CallSession) Active() bool {
	return s.state == domain.CallRinging || s.state == domain.CallConnected
}

func (s *CallSession) transition(from, to domain.CallState) error {
	if s.state != from {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	return nil
}

func (s *CallSession) Ring() error {
	return s.transition(domain.CallIdle, domain.CallRinging)
}

func (s *CallSession) Connect(now time.Time) error {
	if err := s.transition(domain.CallRinging, domain.CallConnected); err != nil {
		return err
	}
	s.startedAt = now
	s.duration = 0
	return nil
}

// End moves a ringing or connected call to Ended and forgets its room.
func (s *CallSession) End(reason string) error {
	if !s.Active() {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.state, domain.CallEnded)
	}
	s.state = domain.CallEnded
	s.reason = reason
	s.Room = ""
	return nil
}

// Tick advances the displayed duration by one second while connected.
func (s *CallSession) Tick() {
	if s.state == domain.CallConnected {
		s.duration++
	}
}

// Matches reports whether a message for room belongs to this session. An
// empty room matches.
func (s *CallSession) Matches(room domain.RoomID) bool {
	return room == "" || room == s.Room
}

type Snapshot struct {
	Self            domain.ClientID      `json:"self"`
	Roster          []domain.ClientID    `json:"roster"`
	State           domain.CallState     `json:"-"`
	StateName       string               `json:"state"`
	Direction       domain.CallDirection `json:"-"`
	Peer            domain.ClientID      `json:"peer,omitempty"`
	Room            domain.RoomID        `json:"roomId,omitempty"`
	StartedAt       time.Time            `json:"startedAt,omitzero"`
	DurationSeconds int                  `json:"durationSeconds"`
	EndReason       string               `json:"endReason,omitempty"`
}

func (s *CallSession) snapshot() Snapshot {
	return Snapshot{
		State:           s.state,
		StateName:       s.state.String(),
		Direction:       s.Direction,
		Peer:            s.Peer(),
		Room:            s.Room,
		StartedAt:       s.startedAt,
		DurationSeconds: s.duration,
		EndReason:       s.reason,
	}
}
