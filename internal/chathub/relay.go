package chathub

import (
	"encoding/json"

	"voicechat/backend/internal/models"

	"github.com/rs/zerolog/log"
)

// Relay forwards handshake payloads between room members and tears rooms down.
type Relay struct {
	Rooms    *RoomRegistry
	Notifier Notifier
}

func NewRelay(rooms *RoomRegistry, n Notifier) *Relay {
	return &Relay{Rooms: rooms, Notifier: n}
}

// RelaySignal sends signal to the peer of from without inspecting it. It
// reports false when from is not in a room; the payload is then dropped.
func (r *Relay) RelaySignal(from string, signal json.RawMessage) bool {
	room, ok := r.Rooms.Lookup(from)
	if !ok {
		log.Debug().Str("module", "relay").Str("client", from).Msg("signal from unpaired connection dropped")
		return false
	}
	peer, _ := room.Peer(from)

	env, err := models.NewEnvelope(models.EventSignal, models.SignalPayload{Signal: signal, From: from})
	if err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("client", from).Msg("unencodable signal dropped")
		return false
	}
	r.Notifier.Notify(peer, env)
	return true
}

// EndRoom notifies the peer of clientID and removes the room. A second call for
// the same room finds nothing and sends nothing.
func (r *Relay) EndRoom(clientID string, reason models.EndReason) bool {
	room, ok := r.Rooms.Lookup(clientID)
	if !ok {
		return false
	}
	peer, _ := room.Peer(clientID)

	r.Rooms.Remove(room)
	r.Notifier.Notify(peer, models.MustEnvelope(reason.EventType(), nil))

	log.Info().
		Str("module", "relay").
		Str("room", room.RoomID).
		Str("client", clientID).
		Str("reason", string(reason)).
		Msg("room ended")
	return true
}
