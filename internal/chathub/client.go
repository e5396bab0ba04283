package chathub

import "voicechat/backend/internal/models"

// Client is one admitted real-time connection. The hub only talks to clients
// through this interface, so tests can register in-memory fakes.
type Client interface {
	// GetClientID returns the opaque connection id assigned at admission.
	GetClientID() string
	// GetSession returns the validated session the connection was admitted with.
	GetSession() models.SessionStatus

	// GetSendChannel returns the channel the hub writes outbound envelopes to.
	// The hub never blocks on it; a full channel drops the envelope.
	GetSendChannel() chan<- models.Envelope

	// Run starts the transport pumps.
	Run()
	// Close stops the write side. It is called by the hub exactly once per
	// registered client, after the client has left the client table.
	Close()
}
