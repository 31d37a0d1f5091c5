package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping")
				return
			}
		case f, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			kind := websocket.TextMessage
			if f.Kind == core.BinaryFrame {
				kind = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, f.Data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		if id, ok := ctl.Orch.Registry.ClientOf(sid); ok && ctl.Limiter != nil {
			ctl.Limiter.Forget(id)
		}
		ctl.Orch.OnDisconnect(sid)
		cancel()
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			kind, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
			if kind == websocket.BinaryMessage {
				ctl.handleBinaryAudio(sid, data)
				continue
			}
			ctl.handleSignal(sid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(sid core.SessionID, c *WsSignalConn, data []byte) {
	typ, err := protocol.PeekType(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}
	if protocol.ClientTypes[typ] {
		ctl.Orch.Metrics.Signal(typ)
	} else {
		ctl.Orch.Metrics.Signal("unknown")
	}

	switch typ {
	case protocol.TypeRegister:
		ctl.handleRegister(sid, c, data)
	case protocol.TypeStartCall:
		ctl.handleStartCall(sid, c, data)
	case protocol.TypeAcceptCall:
		ctl.handleAcceptCall(sid, c, data)
	case protocol.TypeEndCall:
		ctl.handleEndCall(sid, c, data)
	case protocol.TypeAudio:
		ctl.handleTextAudio(sid, data)
	case protocol.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", typ).Msg("unknown signal")
		ctl.sendError(c, "unknown_type")
	}
}

// handleBinaryAudio routes an RTP audio frame by its header alone.
func (ctl *SignalWSController) handleBinaryAudio(sid core.SessionID, data []byte) {
	room, err := protocol.AudioRTPRoom(data)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("dropping binary frame")
		return
	}
	ctl.Orch.OnAudio(sid, room, core.Binary(data))
}

func (ctl *SignalWSController) handleTextAudio(sid core.SessionID, data []byte) {
	var p struct {
		RoomID domain.RoomID `json:"roomId"`
	}
	if err := protocol.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("dropping audio without room")
		return
	}
	ctl.Orch.OnAudio(sid, p.RoomID, core.Text(data))
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(core.Text(b))
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code string) {
	ctl.sendJSON(c, protocol.Error{Type: protocol.TypeError, Error: code})
}
