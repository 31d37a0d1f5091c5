package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicecall/internal/domain"
)

func TestSessionHappyPath(t *testing.T) {
	s := NewOutgoing("alice", "bob")
	assert.Equal(t, domain.RoomID("alice-bob"), s.Room)
	assert.Equal(t, domain.CallIdle, s.State())
	assert.Equal(t, domain.ClientID("bob"), s.Peer())

	require.NoError(t, s.Ring())
	now := time.Unix(100, 0)
	require.NoError(t, s.Connect(now))
	s.Tick()
	s.Tick()

	snap := s.snapshot()
	assert.Equal(t, "connected", snap.StateName)
	assert.Equal(t, 2, snap.DurationSeconds)
	assert.Equal(t, now, snap.StartedAt)

	require.NoError(t, s.End("local"))
	assert.Equal(t, domain.CallEnded, s.State())
	assert.Empty(t, s.Room)
	s.Tick()
	assert.Equal(t, 2, s.snapshot().DurationSeconds)
}

func TestSessionRejectsBackwardMoves(t *testing.T) {
	s := NewIncoming("alice", "bob", "")
	assert.Equal(t, domain.RoomID("alice-bob"), s.Room)
	assert.Equal(t, domain.ClientID("alice"), s.Peer())

	assert.ErrorIs(t, s.Connect(time.Now()), ErrInvalidTransition)
	assert.ErrorIs(t, s.End(""), ErrInvalidTransition)

	require.NoError(t, s.Ring())
	assert.ErrorIs(t, s.Ring(), ErrInvalidTransition)
	require.NoError(t, s.End("rejected"))
	assert.ErrorIs(t, s.End(""), ErrInvalidTransition)
	assert.ErrorIs(t, s.Connect(time.Now()), ErrInvalidTransition)
}

func TestSessionMatches(t *testing.T) {
	s := NewOutgoing("alice", "bob")
	assert.True(t, s.Matches(""))
	assert.True(t, s.Matches("alice-bob"))
	assert.False(t, s.Matches("carol-bob"))
}

func TestSnapshotOmitsStartWhileIdle(t *testing.T) {
	s := NewOutgoing("alice", "bob")
	b, err := json.Marshal(s.snapshot())
	require.NoError(t, err)
	assert.NotContains(t, string(b), "startedAt")

	require.NoError(t, s.Ring())
	require.NoError(t, s.Connect(time.Unix(100, 0)))
	b, err = json.Marshal(s.snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"startedAt":"`)
}
