package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voicechat/backend/internal/client"
	"voicechat/backend/internal/models"

	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	up     atomic.Bool
	sent   chan models.Envelope
	events chan client.GatewayEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sent:   make(chan models.Envelope, 64),
		events: make(chan client.GatewayEvent, 64),
	}
}

func (g *fakeGateway) Send(env models.Envelope) error {
	if !g.up.Load() {
		return client.ErrNotConnected
	}
	g.sent <- env
	return nil
}

func (g *fakeGateway) Events() <-chan client.GatewayEvent { return g.events }

func (g *fakeGateway) transport(state client.TransportState) {
	g.up.Store(state == client.TransportConnected || state == client.TransportReconnected)
	g.events <- client.GatewayEvent{Transport: state}
}

func (g *fakeGateway) deliver(eventType string, payload any) {
	env := models.MustEnvelope(eventType, payload)
	g.events <- client.GatewayEvent{Envelope: &env}
}

// expectSent returns the next envelope the session sent, which must be of eventType.
func (g *fakeGateway) expectSent(t *testing.T, eventType string) models.Envelope {
	t.Helper()
	select {
	case env := <-g.sent:
		require.Equal(t, eventType, env.Type)
		return env
	case <-time.After(time.Second):
		t.Fatalf("no %q sent", eventType)
		return models.Envelope{}
	}
}

func (g *fakeGateway) expectNothingSent(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case env := <-g.sent:
		t.Fatalf("unexpected %q sent", env.Type)
	case <-time.After(within):
	}
}

type fakeTrack struct {
	enabled atomic.Bool
	stopped atomic.Bool
}

func (t *fakeTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *fakeTrack) Stop()                   { t.stopped.Store(true) }

type fakeStream struct {
	track *fakeTrack
}

func newFakeStream() *fakeStream {
	s := &fakeStream{track: &fakeTrack{}}
	s.track.enabled.Store(true)
	return s
}

func (s *fakeStream) AudioTracks() []client.AudioTrack { return []client.AudioTrack{s.track} }

// fakeMedia hands out streams. When gate is set, acquisition blocks until the
// gate is closed, even if the context is cancelled, to model a slow prompt.
type fakeMedia struct {
	mu      sync.Mutex
	err     error
	gate    chan struct{}
	streams []*fakeStream
	asked   []client.AudioConstraints
}

func (m *fakeMedia) GetUserAudio(_ context.Context, c client.AudioConstraints) (client.LocalStream, error) {
	m.mu.Lock()
	gate, err := m.gate, m.err
	m.asked = append(m.asked, c)
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	s := newFakeStream()
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

func (m *fakeMedia) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	var s *fakeStream
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(m.streams) > i {
			s = m.streams[i]
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return s
}

type fakePeer struct {
	cfg  client.PeerConfig
	emit func(client.PeerEvent)

	mu       sync.Mutex
	received []string
	closed   atomic.Bool
}

func (p *fakePeer) Signal(payload json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, string(payload))
	return nil
}

func (p *fakePeer) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *fakePeer) signals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.received...)
}

// fakePeers builds fakePeers; an initiator emits its offer from inside NewPeer.
type fakePeers struct {
	mu    sync.Mutex
	err   error
	peers []*fakePeer
}

const testOffer = `{"type":"offer","sdp":"v=0"}`

func (f *fakePeers) NewPeer(cfg client.PeerConfig, emit func(client.PeerEvent)) (client.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{cfg: cfg, emit: emit}
	f.peers = append(f.peers, p)
	if cfg.Initiator {
		emit(client.PeerEvent{Kind: client.PeerSignal, Signal: json.RawMessage(testOffer)})
	}
	return p, nil
}

func (f *fakePeers) peer(t *testing.T, i int) *fakePeer {
	t.Helper()
	var p *fakePeer
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.peers) > i {
			p = f.peers[i]
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return p
}

var errDenied = errors.New("permission denied")
