package models

import "time"

// CallRoom is the single authoritative record of a pairing between two
// connections. It lives only in the hub's memory and is never persisted.
type CallRoom struct {
	// RoomID is the generated identifier shared by both members.
	RoomID string
	// InitiatorID is the connection that opens the peer-connection handshake.
	InitiatorID string
	// ResponderID is the other member; it waits for the initiator's offer.
	ResponderID string
	// StartedAt is when the match was made.
	StartedAt time.Time
}

// Peer returns the other member of the room for the given connection.
func (r *CallRoom) Peer(clientID string) (string, bool) {
	switch clientID {
	case r.InitiatorID:
		return r.ResponderID, true
	case r.ResponderID:
		return r.InitiatorID, true
	}
	return "", false
}

// IsInitiator reports whether clientID holds the initiator role in this room.
func (r *CallRoom) IsInitiator(clientID string) bool {
	return r.InitiatorID == clientID
}

// Members returns both connection ids, initiator first.
func (r *CallRoom) Members() [2]string {
	return [2]string{r.InitiatorID, r.ResponderID}
}
