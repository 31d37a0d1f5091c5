package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	router "github.com/dkeye/voicecall/internal/adapters/http"
	"github.com/dkeye/voicecall/internal/app"
	"github.com/dkeye/voicecall/internal/app/orch"
	"github.com/dkeye/voicecall/internal/audio"
	"github.com/dkeye/voicecall/internal/config"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/metrics"
)

// recordingRenderer keeps every scheduled buffer and finishes it at once
// unless held.
type recordingRenderer struct {
	mu      sync.Mutex
	buffers [][]float32
	rates   []int
	hold    bool
}

func (r *recordingRenderer) SampleRate() int { return 44100 }

func (r *recordingRenderer) NewNode() (audio.Node, error) { return recordingNode{r}, nil }

func (r *recordingRenderer) holdNodes() {
	r.mu.Lock()
	r.hold = true
	r.mu.Unlock()
}

func (r *recordingRenderer) received() ([][]float32, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]float32(nil), r.buffers...), append([]int(nil), r.rates...)
}

type recordingNode struct{ r *recordingRenderer }

func (n recordingNode) Schedule(samples []float32, rate int, done func()) error {
	n.r.mu.Lock()
	n.r.buffers = append(n.r.buffers, samples)
	n.r.rates = append(n.r.rates, rate)
	hold := n.r.hold
	n.r.mu.Unlock()
	if !hold {
		go done()
	}
	return nil
}

func (recordingNode) Stop() {}

func startRelay(t *testing.T) (string, *app.RoomTable) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := &config.Config{
		Mode:         "test",
		ReadLimit:    1 << 20,
		WriteTimeout: time.Second,
		PingPeriod:   time.Minute,
		SendBuffer:   64,
		CallRate:     100,
		CallBurst:    100,
	}
	rooms := app.NewRoomTable()
	o := orch.New(app.NewRegistry(), rooms, app.SimplePolicy{}, metrics.New())
	srv := httptest.NewServer(router.SetupRouter(ctx, cfg, o))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal", rooms
}

type peer struct {
	agent *Agent
	mic   *fakeMic
	out   *recordingRenderer
}

func startPeer(t *testing.T, url string, id domain.ClientID, encoding string) *peer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tr, err := Dial(ctx, url, TransportOptions{Encoding: encoding})
	require.NoError(t, err)
	p := &peer{mic: &fakeMic{}, out: &recordingRenderer{}}
	p.agent = NewAgent(Options{
		Self:     id,
		Signaler: tr,
		Capture:  func() (audio.CaptureDevice, error) { return p.mic, nil },
		Renderer: p.out,
	})
	go func() { _ = tr.Run(ctx) }()
	go func() { _ = p.agent.Run(ctx) }()
	return p
}

func (p *peer) waitFor(t *testing.T, cond func(Snapshot) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := p.agent.Snapshot(context.Background())
		return err == nil && cond(s)
	}, 3*time.Second, 10*time.Millisecond)
}

func testCall(t *testing.T, encoding string) {
	url, rooms := startRelay(t)
	alice := startPeer(t, url, "alice", encoding)
	bob := startPeer(t, url, "bob", encoding)
	bob.out.holdNodes()
	ctx := context.Background()

	alice.waitFor(t, func(s Snapshot) bool { return len(s.Roster) == 2 })

	require.NoError(t, alice.agent.Call(ctx, "bob"))
	bob.waitFor(t, func(s Snapshot) bool {
		return s.State == domain.CallRinging && s.Peer == "alice" && s.Room == "alice-bob"
	})
	require.NoError(t, bob.agent.Accept(ctx))
	alice.waitFor(t, func(s Snapshot) bool { return s.State == domain.CallConnected })

	block := make([]float32, 512)
	for i := range block {
		block[i] = float32(i) / 1024
	}
	require.Eventually(t, func() bool { return alice.mic.push(block) }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		got, _ := bob.out.received()
		return len(got) == 1
	}, 3*time.Second, 10*time.Millisecond)
	got, rates := bob.out.received()
	assert.Equal(t, block, got[0])
	assert.Equal(t, []int{44100}, rates)
	active, err := bob.agent.PlaybackActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	require.NoError(t, alice.agent.Hangup(ctx))
	alice.waitFor(t, func(s Snapshot) bool { return s.State == domain.CallEnded && s.Room == "" })
	bob.waitFor(t, func(s Snapshot) bool { return s.State == domain.CallEnded && s.Room == "" })

	active, err = bob.agent.PlaybackActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, active)
	require.Eventually(t, func() bool {
		_, open := rooms.Get("alice-bob")
		return !open
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, rooms.Len())
}

func TestCallOverRelayJSON(t *testing.T) {
	testCall(t, EncodingJSON)
}

func TestCallOverRelayRTP(t *testing.T) {
	testCall(t, EncodingRTP)
}

func TestCallOfflineCallee(t *testing.T) {
	url, _ := startRelay(t)
	alice := startPeer(t, url, "alice", EncodingJSON)
	alice.waitFor(t, func(s Snapshot) bool { return len(s.Roster) == 1 })

	require.NoError(t, alice.agent.Call(context.Background(), "bob"))
	alice.waitFor(t, func(s Snapshot) bool {
		return s.State == domain.CallEnded && s.EndReason == "callee_offline"
	})
}

func TestTransportFlushesOnClose(t *testing.T) {
	got := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			got <- string(data)
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), TransportOptions{})
	require.NoError(t, err)
	runErr := make(chan error, 1)
	go func() { runErr <- tr.Run(ctx) }()

	require.NoError(t, tr.EndCall("alice-bob"))
	tr.Close()

	select {
	case msg := <-got:
		assert.JSONEq(t, `{"type":"end-call","roomId":"alice-bob"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("end-call lost on close")
	}
	select {
	case err := <-runErr:
		assert.NoError(t, err, "a local close is not a failure")
	case <-time.After(2 * time.Second):
		t.Fatal("transport still running")
	}
	assert.ErrorIs(t, tr.EndCall("alice-bob"), core.ErrConnClosed)
}
