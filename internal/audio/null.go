package audio

import (
	"sync"
	"time"
)

// NullRenderer discards samples but keeps real-time pacing: a buffer
// "finishes" after len/sampleRate seconds, queued behind earlier buffers.
// It stands in when no output device can be opened.
type NullRenderer struct {
	rate int

	mu        sync.Mutex
	busyUntil time.Time
	pending   int
}

func NewNullRenderer(sampleRate int) *NullRenderer {
	return &NullRenderer{rate: sampleRate}
}

func (r *NullRenderer) SampleRate() int { return r.rate }

func (r *NullRenderer) NewNode() (Node, error) {
	return &nullNode{r: r}, nil
}

// slot reserves playback time for d and returns how long until it ends.
func (r *NullRenderer) slot(d time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	start := r.busyUntil
	if start.Before(now) {
		start = now
	}
	r.busyUntil = start.Add(d)
	r.pending++
	return r.busyUntil.Sub(now)
}

// finish drops one reservation. Once nothing is pending the renderer is idle
// and time held by stopped buffers is given back.
func (r *NullRenderer) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending--
	if r.pending <= 0 {
		r.pending = 0
		r.busyUntil = time.Time{}
	}
}

type nullNode struct {
	r *NullRenderer

	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

func (n *nullNode) Schedule(samples []float32, sampleRate int, done func()) error {
	if sampleRate <= 0 {
		sampleRate = n.r.rate
	}
	d := time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done {
		return nil
	}
	n.timer = time.AfterFunc(n.r.slot(d), func() {
		n.mu.Lock()
		fire := !n.done
		n.done = true
		n.mu.Unlock()
		if fire {
			n.r.finish()
			done()
		}
	})
	return nil
}

func (n *nullNode) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done {
		return
	}
	n.done = true
	if n.timer != nil {
		n.timer.Stop()
		n.r.finish()
	}
}
