package models

import "encoding/json"

// Client to server event types.
const (
	EventJoinQueue  = "join-queue"
	EventLeaveQueue = "leave-queue"
	EventSignal     = "signal"
	EventEndCall    = "end-call"
)

// Server to client event types. EventSignal is shared by both directions.
const (
	EventWaiting          = "waiting"
	EventMatched          = "matched"
	EventCallEnded        = "call-ended"
	EventPeerDisconnected = "peer-disconnected"
	EventUserCount        = "user-count"
	EventAuthRequired     = "auth-required"
)

// Envelope is the frame exchanged over the real-time connection.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InboundEvent is an envelope tagged with the connection it arrived on.
type InboundEvent struct {
	ClientID string
	Envelope Envelope
}

// MatchedPayload tells one side of a new room who its peer is.
type MatchedPayload struct {
	RoomID      string `json:"roomId"`
	PeerID      string `json:"peerId"`
	IsInitiator bool   `json:"isInitiator"`
}

// SignalRequest carries an opaque handshake blob from a client.
type SignalRequest struct {
	Signal json.RawMessage `json:"signal"`
}

// SignalPayload is the relayed handshake blob as seen by the receiving peer.
type SignalPayload struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
}

// AuthRequiredPayload is sent right before an unauthenticated connection is closed.
type AuthRequiredPayload struct {
	Message string `json:"message"`
}

// EndReason is why a room was torn down, from the point of view of the peer
// being notified.
type EndReason string

const (
	ReasonEndedByPeer      EndReason = "ended-by-peer"
	ReasonPeerDisconnected EndReason = "peer-disconnected"
)

// EventType maps the reason to the outbound event the peer receives.
func (r EndReason) EventType() string {
	if r == ReasonPeerDisconnected {
		return EventPeerDisconnected
	}
	return EventCallEnded
}

// NewEnvelope builds an envelope, marshalling payload when it is not nil.
func NewEnvelope(eventType string, payload any) (Envelope, error) {
	env := Envelope{Type: eventType}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = data
	return env, nil
}

// MustEnvelope is NewEnvelope for payloads that always marshal.
func MustEnvelope(eventType string, payload any) Envelope {
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		panic(err)
	}
	return env
}
