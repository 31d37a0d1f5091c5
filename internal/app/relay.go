package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/metrics"
)

// AudioRelay forwards audio frames to the other member of a room. Frames are
// passed on byte for byte; the relay never decodes samples.
type AudioRelay struct {
	rooms    *RoomTable
	presence *Registry
	policy   Policy
	metrics  *metrics.Metrics
}

func NewAudioRelay(rooms *RoomTable, presence *Registry, policy Policy, m *metrics.Metrics) *AudioRelay {
	return &AudioRelay{rooms: rooms, presence: presence, policy: policy, metrics: m}
}

// Relay never fails the sender. The returned outcome is one of the metrics
// Relayed/Dropped* labels.
func (r *AudioRelay) Relay(roomID domain.RoomID, sender domain.ClientID, frame core.Frame) string {
	result := r.forward(roomID, sender, frame)
	r.metrics.AudioFrame(result)
	return result
}

func (r *AudioRelay) forward(roomID domain.RoomID, sender domain.ClientID, frame core.Frame) string {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return metrics.DroppedUnknownRoom
	}
	peer, ok := room.Peer(sender)
	if !ok {
		return metrics.DroppedNotMember
	}
	sid, conn, ok := r.presence.Lookup(peer)
	if !ok {
		return metrics.DroppedPeerOffline
	}
	if err := conn.TrySend(frame); err != nil {
		switch r.policy.OnBackPressure(AudioMessage, sid) {
		case KickMember:
			r.presence.Cancel(sid)
		case MarkSlow:
			log.Warn().Str("module", "app.relay").Str("sid", string(sid)).Msg("slow audio consumer")
		}
		return metrics.DroppedBackpressure
	}
	return metrics.Relayed
}
