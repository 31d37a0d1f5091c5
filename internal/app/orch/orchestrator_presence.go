package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/protocol"
)

// Register binds the session to id. Every roster change is pushed to all
// connections; a registrant that did not change the roster still gets it.
// A session that renames itself leaves its call under the old id.
func (o *Orchestrator) Register(sid core.SessionID, id domain.ClientID) error {
	if old, ok := o.Registry.ClientOf(sid); ok && old != id {
		if owner, _, found := o.Registry.Lookup(old); found && owner == sid {
			o.endCallOf(old)
		}
	}
	changed, slow, err := o.Registry.Register(sid, id)
	if err != nil {
		return err
	}
	o.kickSlow(slow)
	o.Metrics.SetOnline(o.Registry.Online())
	if !changed {
		o.SendSID(sid, protocol.OnlineUsers{Type: protocol.TypeOnlineUsers, Users: o.Registry.Roster()})
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("client", string(id)).Msg("client online")
	return nil
}

// Roster is served to REST callers as well as over signaling.
func (o *Orchestrator) Roster() []domain.ClientID {
	return o.Registry.Roster()
}
