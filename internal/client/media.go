package client

import (
	"context"
	"encoding/json"
)

// AudioConstraints are requested from the capture device for every call.
type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
}

// CallAudio is what a call asks for: processed mono voice at 48 kHz.
var CallAudio = AudioConstraints{
	EchoCancellation: true,
	NoiseSuppression: true,
	AutoGainControl:  true,
	SampleRate:       48000,
}

type AudioTrack interface {
	SetEnabled(enabled bool)
	Stop()
}

// LocalStream is an acquired capture stream. Its tracks must be stopped when
// the call that owns it ends.
type LocalStream interface {
	AudioTracks() []AudioTrack
}

// MediaDevices acquires local audio. A denied or missing microphone is
// reported as an error.
type MediaDevices interface {
	GetUserAudio(ctx context.Context, c AudioConstraints) (LocalStream, error)
}

// PeerEventKind classifies peer callbacks. PeerInterrupted means media
// stopped flowing but the connection may still recover; it is followed by
// PeerConnected or PeerError.
type PeerEventKind string

const (
	// PeerSignal carries a handshake payload to forward to the remote side.
	PeerSignal      PeerEventKind = "signal"
	PeerConnected   PeerEventKind = "connected"
	PeerInterrupted PeerEventKind = "interrupted"
	PeerError       PeerEventKind = "error"
	PeerClosed      PeerEventKind = "closed"
)

type PeerEvent struct {
	Kind   PeerEventKind
	Signal json.RawMessage
	Err    error
}

type PeerConfig struct {
	Initiator bool
	Stream    LocalStream
}

// Peer is one peer connection. Signal feeds it a payload produced by the
// remote side; Close is idempotent.
type Peer interface {
	Signal(payload json.RawMessage) error
	Close() error
}

// PeerFactory builds peers. emit may be called from any goroutine, including
// synchronously from inside NewPeer.
type PeerFactory interface {
	NewPeer(cfg PeerConfig, emit func(PeerEvent)) (Peer, error)
}
