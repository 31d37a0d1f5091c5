package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/metrics"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) sent() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}

type rosterLog struct {
	rosters [][]domain.ClientID
	targets []int
}

func (l *rosterLog) broadcast(roster []domain.ClientID, targets map[core.SessionID]core.SignalConnection) []core.SessionID {
	l.rosters = append(l.rosters, roster)
	l.targets = append(l.targets, len(targets))
	return nil
}

func TestRegistryBroadcastsOnEveryMutation(t *testing.T) {
	reg := NewRegistry()
	log := &rosterLog{}
	reg.SetBroadcaster(log.broadcast)

	reg.Bind("s1", &fakeConn{}, nil)
	reg.Bind("s2", &fakeConn{}, nil)

	changed, _, err := reg.Register("s1", "alice")
	require.NoError(t, err)
	assert.True(t, changed)

	_, _, err = reg.Register("s2", "bob")
	require.NoError(t, err)

	assert.Equal(t, [][]domain.ClientID{{"alice"}, {"alice", "bob"}}, log.rosters)
	assert.Equal(t, []int{2, 2}, log.targets)

	id, owned, _ := reg.Unbind("s1")
	assert.Equal(t, domain.ClientID("alice"), id)
	assert.True(t, owned)
	assert.Equal(t, []domain.ClientID{"bob"}, log.rosters[2])
	assert.Equal(t, 1, log.targets[2])
}

func TestRegistryUnknownSession(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Register("nope", "alice")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRegistryTakeover(t *testing.T) {
	reg := NewRegistry()
	log := &rosterLog{}
	reg.SetBroadcaster(log.broadcast)

	old, fresh := &fakeConn{}, &fakeConn{}
	reg.Bind("s1", old, nil)
	reg.Bind("s2", fresh, nil)
	_, _, _ = reg.Register("s1", "alice")

	changed, _, err := reg.Register("s2", "alice")
	require.NoError(t, err)
	assert.False(t, changed, "roster membership did not change")
	assert.Len(t, log.rosters, 1)

	sid, conn, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, core.SessionID("s2"), sid)
	assert.Same(t, fresh, conn)

	// the superseded connection closing must not remove alice
	_, owned, _ := reg.Unbind("s1")
	assert.False(t, owned)
	assert.Equal(t, []domain.ClientID{"alice"}, reg.Roster())
}

func TestRegistryRename(t *testing.T) {
	reg := NewRegistry()
	reg.Bind("s1", &fakeConn{}, nil)
	_, _, _ = reg.Register("s1", "alice")

	changed, _, err := reg.Register("s1", "alicia")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []domain.ClientID{"alicia"}, reg.Roster())

	reg.Deregister("alicia")
	assert.Empty(t, reg.Roster())
	_, ok := reg.ClientOf("s1")
	assert.False(t, ok)
}

func TestRoomTableOneCallPerClient(t *testing.T) {
	rooms := NewRoomTable()

	room, err := rooms.Open("alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("alice-bob"), room.ID)

	_, err = rooms.Open("carol", "bob")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = rooms.Open("bob", "alice")
	assert.ErrorIs(t, err, ErrBusy)

	_, err = rooms.Accept("alice-bob", "alice")
	assert.ErrorIs(t, err, ErrNotCallee)
	room, err = rooms.Accept("alice-bob", "bob")
	require.NoError(t, err)
	assert.True(t, room.Accepted)

	_, ok := rooms.Close("alice-bob")
	assert.True(t, ok)
	_, ok = rooms.Close("alice-bob")
	assert.False(t, ok, "close is idempotent")

	_, err = rooms.Open("carol", "bob")
	assert.NoError(t, err)
	_, ok = rooms.CloseFor("bob")
	assert.True(t, ok)
	assert.Zero(t, rooms.Len())
}

func TestRelayForwardsToPeerOnly(t *testing.T) {
	reg := NewRegistry()
	rooms := NewRoomTable()
	relay := NewAudioRelay(rooms, reg, SimplePolicy{}, metrics.New())

	alice, bob := &fakeConn{}, &fakeConn{}
	reg.Bind("sa", alice, nil)
	reg.Bind("sb", bob, nil)
	_, _, _ = reg.Register("sa", "alice")
	_, _, _ = reg.Register("sb", "bob")

	frame := core.Binary([]byte{1, 2, 3, 4})
	assert.Equal(t, metrics.DroppedUnknownRoom, relay.Relay("alice-bob", "alice", frame))

	_, err := rooms.Open("alice", "bob")
	require.NoError(t, err)

	assert.Equal(t, metrics.Relayed, relay.Relay("alice-bob", "alice", frame))
	assert.Equal(t, []core.Frame{frame}, bob.sent())
	assert.Empty(t, alice.sent())

	assert.Equal(t, metrics.DroppedNotMember, relay.Relay("alice-bob", "carol", frame))
}

func TestRelayDropsOnBackpressure(t *testing.T) {
	reg := NewRegistry()
	rooms := NewRoomTable()
	relay := NewAudioRelay(rooms, reg, SimplePolicy{}, nil)

	canceled := false
	reg.Bind("sa", &fakeConn{}, nil)
	reg.Bind("sb", &fakeConn{full: true}, func() { canceled = true })
	_, _, _ = reg.Register("sa", "alice")
	_, _, _ = reg.Register("sb", "bob")
	_, _ = rooms.Open("alice", "bob")

	assert.Equal(t, metrics.DroppedBackpressure, relay.Relay("alice-bob", "alice", core.Binary([]byte{0})))
	assert.False(t, canceled, "audio backpressure drops, it does not kick")
}

func TestSimplePolicy(t *testing.T) {
	p := SimplePolicy{}
	assert.Equal(t, DropFrame, p.OnBackPressure(AudioMessage, "s"))
	assert.Equal(t, KickMember, p.OnBackPressure(SignalMessage, "s"))
}
