// Package metrics exposes relay counters on a private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Audio relay outcomes.
const (
	Relayed             = "relayed"
	DroppedUnknownRoom  = "dropped_unknown_room"
	DroppedNotMember    = "dropped_not_member"
	DroppedPeerOffline  = "dropped_peer_offline"
	DroppedBackpressure = "dropped_backpressure"
)

// Metrics methods are safe on a nil receiver so components can run without them.
type Metrics struct {
	reg *prometheus.Registry

	online       prometheus.Gauge
	rooms        prometheus.Gauge
	audioFrames  *prometheus.CounterVec
	signals      *prometheus.CounterVec
	callFailures *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voicecall",
			Name:      "presence_online",
			Help:      "Registered clients with a live signaling connection.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voicecall",
			Name:      "rooms_active",
			Help:      "Rooms currently open.",
		}),
		audioFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicecall",
			Name:      "audio_frames_total",
			Help:      "Audio frames seen by the relay, by outcome.",
		}, []string{"result"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicecall",
			Name:      "signals_total",
			Help:      "Signaling messages received, by type.",
		}, []string{"type"}),
		callFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicecall",
			Name:      "call_failures_total",
			Help:      "Rejected start-call requests, by reason.",
		}, []string{"reason"}),
	}
	m.reg.MustRegister(
		m.online, m.rooms, m.audioFrames, m.signals, m.callFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) SetOnline(n int) {
	if m == nil {
		return
	}
	m.online.Set(float64(n))
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

func (m *Metrics) AudioFrame(result string) {
	if m == nil {
		return
	}
	m.audioFrames.WithLabelValues(result).Inc()
}

func (m *Metrics) Signal(typ string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(typ).Inc()
}

func (m *Metrics) CallFailed(reason string) {
	if m == nil {
		return
	}
	m.callFailures.WithLabelValues(reason).Inc()
}
