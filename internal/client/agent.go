package client

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/audio"
	"github.com/dkeye/voicecall/internal/domain"
)

var (
	ErrBusy     = errors.New("already in a call")
	ErrNoCall   = errors.New("no call to act on")
	ErrSelfCall = errors.New("cannot call yourself")
	ErrStopped  = errors.New("agent stopped")
)

// CaptureOpener opens the capture device for one call.
type CaptureOpener func() (audio.CaptureDevice, error)

type Options struct {
	Self     domain.ClientID
	Signaler Signaler
	Capture  CaptureOpener
	Renderer audio.Renderer
	// Tick is the duration display interval, one second unless overridden.
	Tick time.Duration
}

// Agent is the call client. All state lives on the Run goroutine; commands,
// relay events, device completions and the duration ticker are serialized
// there.
type Agent struct {
	self      domain.ClientID
	sig       Signaler
	openCap   CaptureOpener
	tickEvery time.Duration

	tasks   chan func()
	updates chan Snapshot
	done    chan struct{}
	log     zerolog.Logger

	roster   []domain.ClientID
	call     *CallSession
	capture  *audio.CapturePipeline
	playback *audio.PlaybackPipeline
	ticker   *time.Ticker
}

func NewAgent(opts Options) *Agent {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	a := &Agent{
		self:      opts.Self,
		sig:       opts.Signaler,
		openCap:   opts.Capture,
		tickEvery: opts.Tick,
		tasks:     make(chan func(), 64),
		updates:   make(chan Snapshot, 64),
		done:      make(chan struct{}),
		log:       log.With().Str("module", "client.agent").Str("client_id", string(opts.Self)).Logger(),
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = audio.NewNullRenderer(44100)
	}
	a.playback = audio.NewPlaybackPipeline(renderer, a.post)
	return a
}

// Updates delivers a snapshot after every visible change. Slow readers miss
// intermediate snapshots.
func (a *Agent) Updates() <-chan Snapshot { return a.updates }

// Run registers with the relay and serves until ctx ends or the connection
// drops. An active call is hung up on the way out.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.done)
	if err := a.sig.Register(a.self); err != nil {
		return err
	}
	a.log.Info().Msg("registered")

	events := a.sig.Events()
	for {
		var tick <-chan time.Time
		if a.ticker != nil {
			tick = a.ticker.C
		}
		select {
		case <-ctx.Done():
			a.endCall(true, "shutdown")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				a.endCall(false, "disconnected")
				return ErrDisconnected
			}
			a.handle(ev)
		case fn := <-a.tasks:
			fn()
		case <-tick:
			if a.call != nil {
				a.call.Tick()
				a.emit()
			}
		}
	}
}

// post queues fn onto the Run goroutine.
func (a *Agent) post(fn func()) {
	select {
	case a.tasks <- fn:
	case <-a.done:
	}
}

// do runs fn on the Run goroutine and returns its result.
func (a *Agent) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	select {
	case a.tasks <- func() { res <- fn() }:
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call rings callee.
func (a *Agent) Call(ctx context.Context, callee domain.ClientID) error {
	return a.do(ctx, func() error {
		if a.busy() {
			return ErrBusy
		}
		if callee == a.self {
			return ErrSelfCall
		}
		s := NewOutgoing(a.self, callee)
		_ = s.Ring()
		if err := a.sig.StartCall(a.self, callee, s.Room); err != nil {
			return err
		}
		a.call = s
		a.log.Info().Str("room_id", string(s.Room)).Str("callee", string(callee)).Msg("calling")
		a.emit()
		return nil
	})
}

// Accept answers the ringing incoming call. The session connects without
// waiting for the relay.
func (a *Agent) Accept(ctx context.Context) error {
	return a.do(ctx, func() error {
		if a.call == nil || a.call.State() != domain.CallRinging || a.call.Direction != domain.Incoming {
			return ErrNoCall
		}
		if err := a.sig.AcceptCall(a.call.Caller, a.call.Room); err != nil {
			return err
		}
		a.connect()
		return nil
	})
}

// Hangup cancels, rejects or ends the current call.
func (a *Agent) Hangup(ctx context.Context) error {
	return a.do(ctx, func() error {
		if !a.busy() {
			return ErrNoCall
		}
		a.endCall(true, "local")
		return nil
	})
}

func (a *Agent) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := a.do(ctx, func() error {
		s = a.snapshot()
		return nil
	})
	return s, err
}

func (a *Agent) busy() bool {
	return a.call != nil && a.call.Active()
}

func (a *Agent) handle(ev Event) {
	switch ev := ev.(type) {
	case RosterUpdated:
		a.roster = ev.Users
		a.emit()

	case IncomingCall:
		if a.busy() {
			a.log.Info().Str("caller", string(ev.Caller)).Msg("busy, declining incoming call")
			if err := a.sig.EndCall(ev.Room); err != nil {
				a.log.Warn().Err(err).Msg("decline")
			}
			return
		}
		s := NewIncoming(ev.Caller, a.self, ev.Room)
		_ = s.Ring()
		a.call = s
		a.log.Info().Str("room_id", string(s.Room)).Str("caller", string(ev.Caller)).Msg("incoming call")
		a.emit()

	case CallAccepted:
		if a.call == nil || a.call.Direction != domain.Outgoing ||
			a.call.State() != domain.CallRinging || !a.call.Matches(ev.Room) {
			return
		}
		a.connect()

	case AudioReceived:
		if a.call == nil || a.call.State() != domain.CallConnected || !a.call.Matches(ev.Room) {
			return
		}
		if err := a.playback.Receive(ev.Payload, ev.SampleRate); err != nil {
			a.log.Debug().Err(err).Msg("frame dropped")
		}

	case CallEnded:
		if a.busy() && a.call.Matches(ev.Room) {
			a.endCall(false, "remote")
		}

	case CallFailed:
		if a.busy() && a.call.Direction == domain.Outgoing && a.call.Matches(ev.Room) {
			a.log.Info().Str("reason", ev.Reason).Msg("call failed")
			a.endCall(false, ev.Reason)
		}

	case ServerError:
		a.log.Warn().Str("code", ev.Code).Msg("relay error")
	}
}

// connect moves a ringing call to Connected and starts media.
func (a *Agent) connect() {
	if err := a.call.Connect(time.Now()); err != nil {
		a.log.Warn().Err(err).Msg("connect")
		return
	}
	a.ticker = time.NewTicker(a.tickEvery)
	a.playback.Enable()
	a.startCapture()
	a.log.Info().Str("room_id", string(a.call.Room)).Msg("connected")
	a.emit()
}

func (a *Agent) startCapture() {
	if a.openCap == nil {
		return
	}
	dev, err := a.openCap()
	if err != nil {
		a.log.Error().Err(err).Msg("no capture device, call continues receive-only")
		return
	}
	room := a.call.Room
	p := audio.NewCapturePipeline(dev, func(samples []float32, rate int) error {
		return a.sig.SendAudio(room, samples, rate)
	})
	if err := p.Start(); err != nil {
		a.log.Error().Err(err).Msg("capture failed, call continues receive-only")
		return
	}
	a.capture = p
}

// endCall tears a call down. notify tells the relay.
func (a *Agent) endCall(notify bool, reason string) {
	if !a.busy() {
		return
	}
	room := a.call.Room
	if notify {
		if err := a.sig.EndCall(room); err != nil {
			a.log.Warn().Err(err).Msg("end-call not sent")
		}
	}
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
	if a.capture != nil {
		a.capture.Stop()
		a.capture = nil
	}
	a.playback.StopAll()
	_ = a.call.End(reason)
	a.log.Info().Str("room_id", string(room)).Str("reason", reason).Msg("call ended")
	a.emit()
}

func (a *Agent) snapshot() Snapshot {
	s := Snapshot{StateName: domain.CallIdle.String()}
	if a.call != nil {
		s = a.call.snapshot()
	}
	s.Self = a.self
	s.Roster = slices.Clone(a.roster)
	return s
}

func (a *Agent) emit() {
	select {
	case a.updates <- a.snapshot():
	default:
		a.log.Debug().Msg("update dropped")
	}
}

// PlaybackActive is the number of playing nodes, for diagnostics.
func (a *Agent) PlaybackActive(ctx context.Context) (int, error) {
	var n int
	err := a.do(ctx, func() error {
		n = a.playback.Active()
		return nil
	})
	return n, err
}
