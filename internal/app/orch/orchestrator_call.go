package orch

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/app"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/protocol"
)

// StartCall opens a room for the caller behind sid and rings the target. The
// room id is derived here; a client-proposed one is ignored.
func (o *Orchestrator) StartCall(sid core.SessionID, target domain.ClientID) {
	caller, ok := o.Registry.ClientOf(sid)
	if !ok {
		o.RejectCall(sid, target, "", protocol.ReasonNotRegistered)
		return
	}
	roomID := domain.NewRoomID(caller, target)
	if caller == target {
		o.RejectCall(sid, target, roomID, protocol.ReasonSelfCall)
		return
	}
	if _, _, ok := o.Registry.Lookup(target); !ok {
		o.RejectCall(sid, target, roomID, protocol.ReasonCalleeOffline)
		return
	}
	room, err := o.Rooms.Open(caller, target)
	if errors.Is(err, app.ErrBusy) {
		o.RejectCall(sid, target, roomID, protocol.ReasonBusy)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("open room")
		return
	}
	o.Metrics.SetRooms(o.Rooms.Len())

	l := log.With().Str("module", "orch").Str("room", string(room.ID)).Logger()
	if !o.sendTo(target, protocol.IncomingCall{Type: protocol.TypeIncomingCall, CallerID: caller, RoomID: room.ID}) {
		// callee vanished between lookup and delivery
		o.Rooms.Close(room.ID)
		o.Metrics.SetRooms(o.Rooms.Len())
		o.RejectCall(sid, target, room.ID, protocol.ReasonCalleeOffline)
		return
	}
	l.Info().Str("caller", string(caller)).Str("callee", string(target)).Msg("ringing")
}

func (o *Orchestrator) RejectCall(sid core.SessionID, target domain.ClientID, room domain.RoomID, reason string) {
	o.Metrics.CallFailed(reason)
	o.SendSID(sid, protocol.CallFailed{
		Type:         protocol.TypeCallFailed,
		RoomID:       room,
		TargetUserID: target,
		Reason:       reason,
	})
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("target", string(target)).Str("reason", reason).Msg("call rejected")
}

// AcceptCall marks the room accepted and tells the caller. Only the callee
// of the room may accept; anything else is ignored.
func (o *Orchestrator) AcceptCall(sid core.SessionID, roomID domain.RoomID) {
	callee, ok := o.Registry.ClientOf(sid)
	if !ok {
		return
	}
	l := log.With().Str("module", "orch").Str("room", string(roomID)).Str("client", string(callee)).Logger()
	room, err := o.Rooms.Accept(roomID, callee)
	if err != nil {
		l.Warn().Err(err).Msg("accept ignored")
		return
	}
	o.sendTo(room.Caller, protocol.CallAccepted{Type: protocol.TypeCallAccepted, RoomID: room.ID})
	l.Info().Msg("call accepted")
}

// EndCall closes the room and notifies the other member. It covers cancel,
// reject and hang-up, and is idempotent.
func (o *Orchestrator) EndCall(sid core.SessionID, roomID domain.RoomID) {
	client, ok := o.Registry.ClientOf(sid)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok || !room.Has(client) {
		return
	}
	if _, closed := o.Rooms.Close(roomID); !closed {
		return
	}
	o.Metrics.SetRooms(o.Rooms.Len())
	if peer, ok := room.Peer(client); ok {
		o.sendTo(peer, protocol.CallEnded{Type: protocol.TypeCallEnded, RoomID: room.ID})
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("client", string(client)).Msg("call ended")
}
