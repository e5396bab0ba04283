package chathub

import (
	"time"

	"voicechat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Notifier delivers an outbound envelope to one connection. Delivery to an
// unknown or closed connection is silently dropped.
type Notifier interface {
	Notify(clientID string, env models.Envelope)
}

// MatcherService pairs waiting connections. It shares its queue and registry
// with the Relay and must only be called from the hub loop.
type MatcherService struct {
	Queue    *WaitingQueue
	Rooms    *RoomRegistry
	Notifier Notifier

	now       func() time.Time
	newRoomID func() string
}

func NewMatcherService(q *WaitingQueue, rooms *RoomRegistry, n Notifier) *MatcherService {
	return &MatcherService{
		Queue:     q,
		Rooms:     rooms,
		Notifier:  n,
		now:       time.Now,
		newRoomID: func() string { return uuid.New().String() },
	}
}

// RequestMatch pairs clientID with the first compatible waiting entry, or
// queues it. The entry that was already waiting becomes the initiator.
// It returns the created room, or nil if the caller was queued.
func (m *MatcherService) RequestMatch(clientID string, p Profile) *models.CallRoom {
	m.Queue.Remove(clientID)
	p.Filters = p.Filters.Normalize()

	candidate, ok := m.Queue.FirstMatch(p, clientID)
	if !ok {
		m.Queue.Push(QueueEntry{ClientID: clientID, Profile: p, EnqueuedAt: m.now()})
		m.Notifier.Notify(clientID, models.MustEnvelope(models.EventWaiting, nil))
		log.Debug().Str("module", "matcher").Str("client", clientID).Int("waiting", m.Queue.Len()).Msg("queued")
		return nil
	}

	m.Queue.Remove(candidate.ClientID)
	room := m.Rooms.Create(m.newRoomID(), candidate.ClientID, clientID, m.now())

	for _, id := range room.Members() {
		peerID, _ := room.Peer(id)
		m.Notifier.Notify(id, models.MustEnvelope(models.EventMatched, models.MatchedPayload{
			RoomID:      room.RoomID,
			PeerID:      peerID,
			IsInitiator: room.IsInitiator(id),
		}))
	}

	log.Info().
		Str("module", "matcher").
		Str("room", room.RoomID).
		Str("initiator", room.InitiatorID).
		Str("responder", room.ResponderID).
		Dur("waited", m.now().Sub(candidate.EnqueuedAt)).
		Msg("match found")
	return room
}

// LeaveQueue removes clientID from the queue. Calling it for a connection that
// is not waiting is a no-op.
func (m *MatcherService) LeaveQueue(clientID string) bool {
	return m.Queue.Remove(clientID)
}
