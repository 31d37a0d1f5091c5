package app

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/domain"
)

var (
	ErrBusy        = errors.New("client already in a call")
	ErrUnknownRoom = errors.New("unknown room")
	ErrNotCallee   = errors.New("only the callee can accept")
)

// RoomTable owns all open rooms. Open, Accept and Close are serialized so a
// client is never a member of two rooms.
type RoomTable struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]*domain.Room
	byClient map[domain.ClientID]domain.RoomID
}

func NewRoomTable() *RoomTable {
	return &RoomTable{
		rooms:    make(map[domain.RoomID]*domain.Room),
		byClient: make(map[domain.ClientID]domain.RoomID),
	}
}

func (t *RoomTable) Open(caller, callee domain.ClientID) (domain.Room, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byClient[caller]; ok {
		return domain.Room{}, ErrBusy
	}
	if _, ok := t.byClient[callee]; ok {
		return domain.Room{}, ErrBusy
	}
	room := &domain.Room{ID: domain.NewRoomID(caller, callee), Caller: caller, Callee: callee}
	if _, ok := t.rooms[room.ID]; ok {
		return domain.Room{}, ErrBusy
	}
	t.rooms[room.ID] = room
	t.byClient[caller] = room.ID
	t.byClient[callee] = room.ID
	log.Info().Str("module", "app.rooms").Str("room", string(room.ID)).Msg("room opened")
	return *room, nil
}

func (t *RoomTable) Accept(id domain.RoomID, callee domain.ClientID) (domain.Room, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.rooms[id]
	if !ok {
		return domain.Room{}, ErrUnknownRoom
	}
	if room.Callee != callee {
		return domain.Room{}, ErrNotCallee
	}
	room.Accepted = true
	return *room, nil
}

// Close removes the room. Closing twice is a no-op reporting false.
func (t *RoomTable) Close(id domain.RoomID) (domain.Room, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked(id)
}

// CloseFor closes whatever room the client is in.
func (t *RoomTable) CloseFor(client domain.ClientID) (domain.Room, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byClient[client]
	if !ok {
		return domain.Room{}, false
	}
	return t.closeLocked(id)
}

func (t *RoomTable) closeLocked(id domain.RoomID) (domain.Room, bool) {
	room, ok := t.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	delete(t.rooms, id)
	delete(t.byClient, room.Caller)
	delete(t.byClient, room.Callee)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room closed")
	return *room, true
}

func (t *RoomTable) Get(id domain.RoomID) (domain.Room, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	room, ok := t.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	return *room, true
}

func (t *RoomTable) RoomOf(client domain.ClientID) (domain.RoomID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byClient[client]
	return id, ok
}

func (t *RoomTable) List() []domain.Room {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Room, 0, len(t.rooms))
	for _, r := range t.rooms {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *RoomTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}
