package orch

import (
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/metrics"
)

// OnAudio relays a frame from sid to the other member of roomID.
func (o *Orchestrator) OnAudio(sid core.SessionID, roomID domain.RoomID, frame core.Frame) string {
	sender, ok := o.Registry.ClientOf(sid)
	if !ok {
		o.Metrics.AudioFrame(metrics.DroppedNotMember)
		return metrics.DroppedNotMember
	}
	return o.Relay.Relay(roomID, sender, frame)
}
