package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/protocol"
)

func (ctl *SignalWSController) handleRegister(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Register
	if err := protocol.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad register payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	id, err := domain.ParseClientIDLimit(p.ClientID, ctl.opts.MaxClientIDLen)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("invalid client id")
		ctl.sendError(conn, "invalid_client_id")
		return
	}
	if err := ctl.Orch.Register(sid, id); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("register")
		ctl.sendError(conn, "register_failed")
	}
}

func (ctl *SignalWSController) handleStartCall(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.StartCall
	if err := protocol.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad start-call payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	target, err := domain.ParseClientIDLimit(string(p.TargetUserID), ctl.opts.MaxClientIDLen)
	if err != nil {
		ctl.sendError(conn, "invalid_target")
		return
	}

	caller, ok := ctl.Orch.Registry.ClientOf(sid)
	if ok {
		l := log.With().Str("module", "signal").Str("sid", string(sid)).Logger()
		if p.CallerID != "" && p.CallerID != caller {
			l.Warn().Str("claimed", string(p.CallerID)).Str("caller", string(caller)).Msg("callerId ignored")
		}
		if want := domain.NewRoomID(caller, target); p.RoomID != "" && p.RoomID != want {
			l.Warn().Str("proposed", string(p.RoomID)).Str("room", string(want)).Msg("roomId replaced")
		}
		if ctl.Limiter != nil && !ctl.Limiter.Allow(caller) {
			ctl.Orch.RejectCall(sid, target, domain.NewRoomID(caller, target), protocol.ReasonRateLimited)
			return
		}
	}
	ctl.Orch.StartCall(sid, target)
}

func (ctl *SignalWSController) handleAcceptCall(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.AcceptCall
	if err := protocol.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad accept-call payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	room := p.RoomID
	if room == "" && p.CallerID != "" {
		if self, ok := ctl.Orch.Registry.ClientOf(sid); ok {
			room = domain.NewRoomID(p.CallerID, self)
		}
	}
	ctl.Orch.AcceptCall(sid, room)
}

func (ctl *SignalWSController) handleEndCall(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.EndCall
	if err := protocol.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad end-call payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	room := p.RoomID
	if room == "" {
		if self, ok := ctl.Orch.Registry.ClientOf(sid); ok {
			room, _ = ctl.Orch.Rooms.RoomOf(self)
		}
	}
	ctl.Orch.EndCall(sid, room)
}
