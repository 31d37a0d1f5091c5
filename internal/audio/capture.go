package audio

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// SendFunc forwards one captured block to the call. It runs off the device
// thread and should not block for long.
type SendFunc func(samples []float32, sampleRate int) error

// CaptureStats counts blocks. Sent includes blocks whose send failed.
type CaptureStats struct {
	Sent    uint64
	Dropped uint64
	Failed  uint64
}

// CapturePipeline taps a capture device and forwards blocks while a call is
// connected. There is a single hand-off slot: a block that arrives while the
// previous one is still being sent is dropped, never queued.
type CapturePipeline struct {
	dev  CaptureDevice
	send SendFunc

	mu      sync.Mutex
	started bool
	stopped bool
	slot    chan []float32
	quit    chan struct{}
	wg      sync.WaitGroup

	rate    atomic.Int64
	busy    atomic.Bool
	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewCapturePipeline(dev CaptureDevice, send SendFunc) *CapturePipeline {
	return &CapturePipeline{
		dev:  dev,
		send: send,
		slot: make(chan []float32, 1),
		quit: make(chan struct{}),
	}
}

// Start installs the tap. A pipeline starts at most once.
func (p *CapturePipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return nil
	}
	p.wg.Add(1)
	go p.sender()
	if err := p.dev.Start(p.onBlock); err != nil {
		close(p.quit)
		p.wg.Wait()
		p.stopped = true
		return err
	}
	p.started = true
	log.Info().Str("module", "audio.capture").Int("sample_rate", p.sampleRate()).Msg("capture started")
	return nil
}

// onBlock runs on the device thread.
func (p *CapturePipeline) onBlock(samples []float32) {
	if !p.busy.CompareAndSwap(false, true) {
		p.dropped.Add(1)
		return
	}
	block := make([]float32, len(samples))
	copy(block, samples)
	// busy guarantees the slot is empty
	p.slot <- block
}

// sampleRate reads the device format once it is running. A device only
// knows its native rate after Start.
func (p *CapturePipeline) sampleRate() int {
	if r := p.rate.Load(); r > 0 {
		return int(r)
	}
	r := p.dev.SampleRate()
	if r > 0 {
		p.rate.Store(int64(r))
	}
	return r
}

func (p *CapturePipeline) sender() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case block := <-p.slot:
			if err := p.send(block, p.sampleRate()); err != nil {
				p.failed.Add(1)
				log.Debug().Err(err).Str("module", "audio.capture").Msg("block not sent")
			}
			p.busy.Store(false)
			p.sent.Add(1)
		}
	}
}

// Stop removes the tap and waits for the sender to exit. Safe to call more
// than once, and before Start.
func (p *CapturePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	if !p.started {
		return
	}
	if err := p.dev.Stop(); err != nil {
		log.Warn().Err(err).Str("module", "audio.capture").Msg("stop device")
	}
	close(p.quit)
	p.wg.Wait()
	s := p.Stats()
	log.Info().Str("module", "audio.capture").Uint64("sent", s.Sent).Uint64("dropped", s.Dropped).Msg("capture stopped")
}

func (p *CapturePipeline) Stats() CaptureStats {
	return CaptureStats{
		Sent:    p.sent.Load(),
		Dropped: p.dropped.Load(),
		Failed:  p.failed.Load(),
	}
}
