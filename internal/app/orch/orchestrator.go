// Package orch ties presence, rooms and the audio relay together and speaks
// the signaling protocol to connected clients.
package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/app"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/metrics"
	"github.com/dkeye/voicecall/internal/protocol"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomTable
	Relay    *app.AudioRelay
	Policy   app.Policy
	Metrics  *metrics.Metrics
}

func New(reg *app.Registry, rooms *app.RoomTable, policy app.Policy, m *metrics.Metrics) *Orchestrator {
	o := &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Relay:    app.NewAudioRelay(rooms, reg, policy, m),
		Policy:   policy,
		Metrics:  m,
	}
	reg.SetBroadcaster(o.broadcastRoster)
	return o
}

func (o *Orchestrator) OnConnect(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.Registry.Bind(sid, conn, cancel)
}

// OnDisconnect ends the session's call, telling the peer, then deregisters
// its client. A connection that lost its id to a takeover ends nothing.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	if id, ok := o.Registry.ClientOf(sid); ok {
		if owner, _, found := o.Registry.Lookup(id); found && owner == sid {
			o.endCallOf(id)
		}
	}
	_, _, slow := o.Registry.Unbind(sid)
	o.kickSlow(slow)
	o.Metrics.SetOnline(o.Registry.Online())
}

func (o *Orchestrator) endCallOf(id domain.ClientID) {
	room, ok := o.Rooms.CloseFor(id)
	if !ok {
		return
	}
	o.Metrics.SetRooms(o.Rooms.Len())
	if peer, ok := room.Peer(id); ok {
		o.sendTo(peer, protocol.CallEnded{Type: protocol.TypeCallEnded, RoomID: room.ID})
	}
	log.Info().Str("module", "orch").Str("client", string(id)).Str("room", string(room.ID)).Msg("call ended, owner left")
}

func (o *Orchestrator) KickBySID(sid core.SessionID) {
	if o.Registry.Cancel(sid) {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicked")
	}
}

func (o *Orchestrator) kickSlow(sids []core.SessionID) {
	for _, sid := range sids {
		if o.Policy != nil && o.Policy.OnBackPressure(app.SignalMessage, sid) == app.KickMember {
			o.KickBySID(sid)
		}
	}
}

func (o *Orchestrator) broadcastRoster(roster []domain.ClientID, targets map[core.SessionID]core.SignalConnection) []core.SessionID {
	frame, err := encode(protocol.OnlineUsers{Type: protocol.TypeOnlineUsers, Users: roster})
	if err != nil {
		return nil
	}
	var slow []core.SessionID
	for sid, conn := range targets {
		if err := conn.TrySend(frame); err != nil {
			slow = append(slow, sid)
		}
	}
	return slow
}

// SendSID delivers a signaling message to one connection, applying the
// backpressure policy if its queue is full.
func (o *Orchestrator) SendSID(sid core.SessionID, v any) {
	conn, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	o.send(sid, conn, v)
}

func (o *Orchestrator) sendTo(id domain.ClientID, v any) bool {
	sid, conn, ok := o.Registry.Lookup(id)
	if !ok {
		return false
	}
	return o.send(sid, conn, v)
}

func (o *Orchestrator) send(sid core.SessionID, conn core.SignalConnection, v any) bool {
	frame, err := encode(v)
	if err != nil {
		return false
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("signal send failed")
		o.kickSlow([]core.SessionID{sid})
		return false
	}
	return true
}

func encode(v any) (core.Frame, error) {
	b, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal")
		return core.Frame{}, err
	}
	return core.Text(b), nil
}
