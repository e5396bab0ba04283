package chathub

import (
	"time"

	"voicechat/backend/internal/models"
)

// RoomRegistry holds one record per live room, indexed by both members.
// Like WaitingQueue it is owned by the hub loop.
type RoomRegistry struct {
	rooms    map[string]*models.CallRoom
	byMember map[string]*models.CallRoom
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:    make(map[string]*models.CallRoom),
		byMember: make(map[string]*models.CallRoom),
	}
}

// Create registers a room for the two members. Neither member may already be
// in a room; callers end the old room first.
func (r *RoomRegistry) Create(roomID, initiatorID, responderID string, now time.Time) *models.CallRoom {
	room := &models.CallRoom{
		RoomID:      roomID,
		InitiatorID: initiatorID,
		ResponderID: responderID,
		StartedAt:   now,
	}
	r.rooms[roomID] = room
	r.byMember[initiatorID] = room
	r.byMember[responderID] = room
	return room
}

// Lookup returns the room clientID is in.
func (r *RoomRegistry) Lookup(clientID string) (*models.CallRoom, bool) {
	room, ok := r.byMember[clientID]
	return room, ok
}

// Remove drops the room and both member index entries. It reports false if
// the room was already gone.
func (r *RoomRegistry) Remove(room *models.CallRoom) bool {
	if _, ok := r.rooms[room.RoomID]; !ok {
		return false
	}
	delete(r.rooms, room.RoomID)
	for _, id := range room.Members() {
		if cur, ok := r.byMember[id]; ok && cur == room {
			delete(r.byMember, id)
		}
	}
	return true
}

func (r *RoomRegistry) Len() int { return len(r.rooms) }
