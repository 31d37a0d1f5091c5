package client

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/protocol"
)

const (
	EncodingJSON = "json"
	EncodingRTP  = "rtp"
)

var ErrDisconnected = errors.New("signaling connection closed")

// Signaler is the agent's view of the relay connection.
type Signaler interface {
	Register(id domain.ClientID) error
	StartCall(caller, callee domain.ClientID, room domain.RoomID) error
	AcceptCall(caller domain.ClientID, room domain.RoomID) error
	EndCall(room domain.RoomID) error
	SendAudio(room domain.RoomID, samples []float32, sampleRate int) error
	// Events is closed when the connection is gone.
	Events() <-chan Event
}

type TransportOptions struct {
	Encoding     string
	SendBuffer   int
	WriteTimeout time.Duration
}

// Transport is a client signaling connection to the relay.
type Transport struct {
	conn *websocket.Conn
	opts TransportOptions

	send   chan core.Frame
	events chan Event

	mu      sync.RWMutex
	closed  bool
	pumping atomic.Bool
	flushed chan struct{}

	ssrc uint32
	seq  atomic.Uint32
	ts   atomic.Uint32
}

func Dial(ctx context.Context, url string, opts TransportOptions) (*Transport, error) {
	if opts.Encoding == "" {
		opts.Encoding = EncodingJSON
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "client.transport").Str("url", url).Str("encoding", opts.Encoding).Msg("connected")
	return &Transport{
		conn:    conn,
		opts:    opts,
		send:    make(chan core.Frame, opts.SendBuffer),
		events:  make(chan Event, 256),
		flushed: make(chan struct{}),
		ssrc:    rand.Uint32(),
	}, nil
}

func (t *Transport) Events() <-chan Event { return t.events }

// Run pumps the connection until ctx ends, Close is called or the socket
// fails.
func (t *Transport) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.pumping.Store(true)
	go t.writePump(ctx)
	err := t.readPump(ctx)
	t.mu.RLock()
	local := t.closed
	t.mu.RUnlock()
	t.Close()
	close(t.events)
	if ctx.Err() != nil || local {
		return nil
	}
	return err
}

// Close stops accepting frames, lets the writer flush what is already
// queued, then closes the socket.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.send)
	t.mu.Unlock()

	if t.pumping.Load() {
		select {
		case <-t.flushed:
		case <-time.After(t.opts.WriteTimeout):
		}
	}
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = t.conn.Close()
}

func (t *Transport) trySend(f core.Frame) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return core.ErrConnClosed
	}
	select {
	case t.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (t *Transport) sendJSON(v any) error {
	b, err := protocol.Marshal(v)
	if err != nil {
		return err
	}
	return t.trySend(core.Text(b))
}

func (t *Transport) Register(id domain.ClientID) error {
	return t.sendJSON(protocol.Register{Type: protocol.TypeRegister, ClientID: string(id)})
}

func (t *Transport) StartCall(caller, callee domain.ClientID, room domain.RoomID) error {
	return t.sendJSON(protocol.StartCall{Type: protocol.TypeStartCall, TargetUserID: callee, CallerID: caller, RoomID: room})
}

func (t *Transport) AcceptCall(caller domain.ClientID, room domain.RoomID) error {
	return t.sendJSON(protocol.AcceptCall{Type: protocol.TypeAcceptCall, CallerID: caller, RoomID: room})
}

func (t *Transport) EndCall(room domain.RoomID) error {
	return t.sendJSON(protocol.EndCall{Type: protocol.TypeEndCall, RoomID: room})
}

func (t *Transport) SendAudio(room domain.RoomID, samples []float32, sampleRate int) error {
	raw := protocol.EncodeSamples(samples)
	if t.opts.Encoding == EncodingRTP {
		b, err := protocol.MarshalAudioRTP(protocol.AudioPacket{
			Room:       room,
			SampleRate: sampleRate,
			Sequence:   uint16(t.seq.Add(1)),
			Timestamp:  t.ts.Add(uint32(len(samples))),
			SSRC:       t.ssrc,
			Payload:    raw,
		})
		if err != nil {
			return err
		}
		return t.trySend(core.Binary(b))
	}
	return t.sendJSON(protocol.Audio{
		Type:       protocol.TypeAudio,
		RoomID:     room,
		Data:       protocol.EncodeAudioPayload(raw),
		SampleRate: sampleRate,
	})
}

func (t *Transport) writePump(ctx context.Context) {
	defer close(t.flushed)
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-t.send:
			if !ok {
				return
			}
			if err := t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout)); err != nil {
				return
			}
			kind := websocket.TextMessage
			if f.Kind == core.BinaryFrame {
				kind = websocket.BinaryMessage
			}
			if err := t.conn.WriteMessage(kind, f.Data); err != nil {
				log.Error().Err(err).Str("module", "client.transport").Msg("write error")
				_ = t.conn.Close()
				return
			}
		}
	}
}

func (t *Transport) readPump(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = t.conn.Close()
	}()
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "client.transport").Msg("read error")
			}
			return ErrDisconnected
		}
		ev, err := decode(kind, data)
		if err != nil {
			log.Debug().Err(err).Str("module", "client.transport").Msg("dropping message")
			continue
		}
		if ev == nil {
			continue
		}
		if _, isAudio := ev.(AudioReceived); isAudio {
			// audio never blocks the reader
			select {
			case t.events <- ev:
			default:
				log.Debug().Str("module", "client.transport").Msg("event queue full, audio dropped")
			}
			continue
		}
		select {
		case t.events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

func decode(kind int, data []byte) (Event, error) {
	if kind == websocket.BinaryMessage {
		p, err := protocol.UnmarshalAudioRTP(data)
		if err != nil {
			return nil, err
		}
		return AudioReceived{Room: p.Room, SampleRate: p.SampleRate, Payload: p.Payload}, nil
	}

	typ, err := protocol.PeekType(data)
	if err != nil {
		return nil, err
	}
	switch typ {
	case protocol.TypeOnlineUsers:
		var m protocol.OnlineUsers
		if err := protocol.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return RosterUpdated{Users: m.Users}, nil
	case protocol.TypeIncomingCall:
		var m protocol.IncomingCall
		if err := protocol.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return IncomingCall{Caller: m.CallerID, Room: m.RoomID}, nil
	case protocol.TypeCallAccepted:
		var m protocol.CallAccepted
		if err := protocol.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return CallAccepted{Room: m.RoomID}, nil
	case protocol.TypeAudio:
		var m protocol.Audio
		if err := protocol.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		raw, err := protocol.DecodeAudioPayload(m.Data)
		if err != nil {
			return nil, err
		}
		return AudioReceived{Room: m.RoomID, SampleRate: m.SampleRate, Payload: raw}, nil
	case protocol.TypeCallEnded:
		var m protocol.CallEnded
		if err := protocol.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return CallEnded{Room: m.RoomID}, nil
	case protocol.TypeCallFailed:
		var m protocol.CallFailed
		if err := protocol.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return CallFailed{Room: m.RoomID, Target: m.TargetUserID, Reason: m.Reason}, nil
	case protocol.TypeError:
		var m protocol.Error
		if err := protocol.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return ServerError{Code: m.Error}, nil
	case protocol.TypePong:
		return nil, nil
	}
	log.Debug().Str("module", "client.transport").Str("type", typ).Msg("unknown message")
	return nil, nil
}
