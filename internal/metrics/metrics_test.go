package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.AudioFrame(Relayed)
	m.AudioFrame(Relayed)
	m.AudioFrame(DroppedUnknownRoom)
	m.CallFailed("busy")
	m.SetOnline(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.audioFrames.WithLabelValues(Relayed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.audioFrames.WithLabelValues(DroppedUnknownRoom)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callFailures.WithLabelValues("busy")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.online))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AudioFrame(Relayed)
		m.Signal("register")
		m.SetRooms(1)
	})
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.SetRooms(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "voicecall_rooms_active 3")
}
