package domain

type RoomID string

// NewRoomID derives the room for a call from the ordered (caller, callee) pair.
func NewRoomID(caller, callee ClientID) RoomID {
	return RoomID(string(caller) + "-" + string(callee))
}

// Room is the membership of one call. The relay keeps nothing else about a call.
type Room struct {
	ID       RoomID   `json:"roomId"`
	Caller   ClientID `json:"callerId"`
	Callee   ClientID `json:"calleeId"`
	Accepted bool     `json:"accepted"`
}

// Has reports whether id is one of the two members.
func (r Room) Has(id ClientID) bool {
	return r.Caller == id || r.Callee == id
}

// Peer returns the member that is not id.
func (r Room) Peer(id ClientID) (ClientID, bool) {
	switch id {
	case r.Caller:
		return r.Callee, true
	case r.Callee:
		return r.Caller, true
	}
	return "", false
}
