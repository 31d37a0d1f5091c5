// Package audio moves mono float32 samples between local devices and the
// call. Device callbacks run on real-time threads; the pipelines keep work
// on those threads to a copy and a non-blocking hand-off.
package audio

import "errors"

var ErrDeviceUnavailable = errors.New("audio device unavailable")

// CaptureDevice delivers fixed-size blocks of mono samples.
type CaptureDevice interface {
	// Start begins delivery. The slice passed to onBlock is only valid for
	// the duration of the call.
	Start(onBlock func(samples []float32)) error
	// SampleRate is the device's native rate, fixed while started. It may
	// be 0 before Start.
	SampleRate() int
	// Stop ends delivery and releases the device. No block is delivered
	// after Stop returns.
	Stop() error
}

// Renderer hands out playback nodes on the output device. Nodes scheduled
// one after another play back to back in scheduling order.
type Renderer interface {
	SampleRate() int
	NewNode() (Node, error)
}

// Node plays one buffer.
type Node interface {
	// Schedule queues samples for playback. done is called once, from a
	// render thread, when the buffer finished playing. It is not called if
	// the node is stopped first.
	Schedule(samples []float32, sampleRate int, done func()) error
	// Stop halts playback and releases the node. Safe to call more than once.
	Stop()
}
