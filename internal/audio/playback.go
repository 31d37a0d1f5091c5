package audio

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/protocol"
)

// PostFunc runs fn on the goroutine that owns the PlaybackPipeline.
type PostFunc func(fn func())

// PlaybackPipeline turns received frames into playing nodes. Each frame gets
// a fresh node that is released when its buffer finishes. All methods must
// be called from the owning goroutine; node completions are routed back
// there through post.
type PlaybackPipeline struct {
	r    Renderer
	post PostFunc

	active     map[Node]struct{}
	enabled    bool
	rateWarned bool

	played  uint64
	dropped uint64
}

func NewPlaybackPipeline(r Renderer, post PostFunc) *PlaybackPipeline {
	return &PlaybackPipeline{
		r:      r,
		post:   post,
		active: make(map[Node]struct{}),
	}
}

// Enable accepts frames until the next StopAll.
func (p *PlaybackPipeline) Enable() {
	p.enabled = true
	p.rateWarned = false
}

// Receive decodes raw little-endian float32 bytes and schedules them on a new
// node. Frames arriving while disabled, or that fail to decode, are dropped.
func (p *PlaybackPipeline) Receive(payload []byte, sampleRate int) error {
	if !p.enabled {
		p.dropped++
		return nil
	}
	samples, err := protocol.DecodeSamples(payload)
	if err != nil {
		p.dropped++
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	if sampleRate != p.r.SampleRate() && !p.rateWarned {
		p.rateWarned = true
		log.Warn().Str("module", "audio.playback").
			Int("frame_rate", sampleRate).
			Int("device_rate", p.r.SampleRate()).
			Msg("sample rate mismatch, playing without resampling")
	}

	node, err := p.r.NewNode()
	if err != nil {
		p.dropped++
		return err
	}
	p.active[node] = struct{}{}
	err = node.Schedule(samples, sampleRate, func() {
		p.post(func() { p.release(node) })
	})
	if err != nil {
		p.release(node)
		p.dropped++
		return err
	}
	p.played++
	return nil
}

func (p *PlaybackPipeline) release(n Node) {
	if _, ok := p.active[n]; !ok {
		return
	}
	delete(p.active, n)
	n.Stop()
}

// StopAll halts every active node and stops accepting frames.
func (p *PlaybackPipeline) StopAll() {
	for n := range p.active {
		n.Stop()
		delete(p.active, n)
	}
	p.enabled = false
	if p.played > 0 || p.dropped > 0 {
		log.Info().Str("module", "audio.playback").Uint64("played", p.played).Uint64("dropped", p.dropped).Msg("playback stopped")
	}
	p.played, p.dropped = 0, 0
}

// Active is the number of nodes still playing.
func (p *PlaybackPipeline) Active() int {
	return len(p.active)
}
