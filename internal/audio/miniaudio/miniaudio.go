// Package miniaudio binds the audio pipelines to the host's default capture
// and playback devices.
package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/audio"
	"github.com/dkeye/voicecall/internal/protocol"
)

// Backend owns the miniaudio context shared by all devices.
type Backend struct {
	ctx *malgo.AllocatedContext
}

func Open() (*Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		log.Debug().Str("module", "audio.miniaudio").Msg(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %v", audio.ErrDeviceUnavailable, err)
	}
	return &Backend{ctx: ctx}, nil
}

func (b *Backend) Close() {
	if b == nil || b.ctx == nil {
		return
	}
	_ = b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
}

// Capture is the default input device, mono float32, delivering blocks of a
// fixed number of frames at the device's native rate.
type Capture struct {
	b     *Backend
	block int

	mu   sync.Mutex
	dev  *malgo.Device
	rate int
}

func (b *Backend) NewCapture(block int) *Capture {
	return &Capture{b: b, block: block}
}

func (c *Capture) Start(onBlock func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		return nil
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = 0 // native
	cfg.PeriodSizeInFrames = uint32(c.block)

	dev, err := malgo.InitDevice(c.b.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			samples, err := protocol.DecodeSamples(input[:int(frames)*4])
			if err != nil {
				return
			}
			onBlock(samples)
		},
	})
	if err != nil {
		return fmt.Errorf("%w: init capture: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("%w: start capture: %v", audio.ErrDeviceUnavailable, err)
	}
	c.dev = dev
	c.rate = int(dev.SampleRate())
	log.Info().Str("module", "audio.miniaudio").Int("sample_rate", c.rate).Int("block", c.block).Msg("capture device open")
	return nil
}

func (c *Capture) SampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		return c.rate
	}
	return 0
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return nil
	}
	err := c.dev.Stop()
	c.dev.Uninit()
	c.dev = nil
	return err
}

// Playback is the default output device. Nodes are mixed sequentially: the
// device drains the oldest scheduled buffer first.
type Playback struct {
	rate int
	dev  *malgo.Device

	mu    sync.Mutex
	queue []*playNode
}

func (b *Backend) NewPlayback(sampleRate int) (*Playback, error) {
	p := &Playback{rate: sampleRate}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{Data: p.fill})
	if err != nil {
		return nil, fmt.Errorf("%w: init playback: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("%w: start playback: %v", audio.ErrDeviceUnavailable, err)
	}
	p.dev = dev
	log.Info().Str("module", "audio.miniaudio").Int("sample_rate", sampleRate).Msg("playback device open")
	return p, nil
}

func (p *Playback) SampleRate() int { return p.rate }

func (p *Playback) NewNode() (audio.Node, error) {
	return &playNode{p: p}, nil
}

func (p *Playback) Close() {
	if p.dev == nil {
		return
	}
	_ = p.dev.Stop()
	p.dev.Uninit()
	p.dev = nil
}

// fill runs on the device thread.
func (p *Playback) fill(output, _ []byte, frames uint32) {
	out := make([]float32, frames)
	var finished []func()

	p.mu.Lock()
	n := 0
	for n < len(out) && len(p.queue) > 0 {
		head := p.queue[0]
		c := copy(out[n:], head.samples[head.pos:])
		head.pos += c
		n += c
		if head.pos >= len(head.samples) {
			p.queue = p.queue[1:]
			head.queued = false
			if head.done != nil {
				finished = append(finished, head.done)
				head.done = nil
			}
		}
	}
	p.mu.Unlock()

	copy(output, protocol.EncodeSamples(out))
	for _, fn := range finished {
		go fn()
	}
}

type playNode struct {
	p *Playback

	samples []float32
	pos     int
	done    func()
	queued  bool
}

func (n *playNode) Schedule(samples []float32, _ int, done func()) error {
	n.p.mu.Lock()
	defer n.p.mu.Unlock()
	n.samples = samples
	n.pos = 0
	n.done = done
	n.queued = true
	n.p.queue = append(n.p.queue, n)
	return nil
}

func (n *playNode) Stop() {
	n.p.mu.Lock()
	defer n.p.mu.Unlock()
	n.done = nil
	if !n.queued {
		return
	}
	n.queued = false
	for i, q := range n.p.queue {
		if q == n {
			n.p.queue = append(n.p.queue[:i], n.p.queue[i+1:]...)
			break
		}
	}
}
