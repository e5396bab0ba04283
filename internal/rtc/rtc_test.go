package rtc_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"voicechat/backend/internal/client"
	"voicechat/backend/internal/rtc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSilenceDevices(t *testing.T) {
	stream, err := rtc.SilenceDevices{}.GetUserAudio(context.Background(), client.CallAudio)
	require.NoError(t, err)

	audio := stream.(*rtc.LocalAudio)
	require.Len(t, audio.AudioTracks(), 1)
	require.Len(t, audio.LocalTracks(), 1)
	assert.True(t, audio.Enabled())

	audio.AudioTracks()[0].SetEnabled(false)
	assert.False(t, audio.Enabled())

	audio.Stop()
	audio.Stop()
	assert.True(t, audio.Stopped())
}

func TestSilenceDevices_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rtc.SilenceDevices{}.GetUserAudio(ctx, client.CallAudio)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPeer_RejectsUnknownSignal(t *testing.T) {
	f := &rtc.Factory{Loopback: true}
	p, err := f.NewPeer(client.PeerConfig{}, func(client.PeerEvent) {})
	require.NoError(t, err)
	defer p.Close()

	assert.ErrorIs(t, p.Signal(json.RawMessage(`{"type":"renegotiate"}`)), rtc.ErrUnexpectedSignal)
	assert.ErrorIs(t, p.Signal(json.RawMessage(`not json`)), rtc.ErrUnexpectedSignal)
	assert.NoError(t, p.Signal(json.RawMessage(`{"type":"candidate"}`)))
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}

// TestPeer_LoopbackCall connects an initiator and a responder on this host by
// handing each side's descriptions to the other.
func TestPeer_LoopbackCall(t *testing.T) {
	if testing.Short() {
		t.Skip("starts real ICE agents")
	}
	f := &rtc.Factory{Loopback: true}

	type tagged struct {
		from string
		ev   client.PeerEvent
	}
	events := make(chan tagged, 32)
	emitter := func(name string) func(client.PeerEvent) {
		return func(ev client.PeerEvent) { events <- tagged{from: name, ev: ev} }
	}

	micA, err := rtc.SilenceDevices{}.GetUserAudio(context.Background(), client.CallAudio)
	require.NoError(t, err)
	defer micA.AudioTracks()[0].Stop()
	micB, err := rtc.SilenceDevices{}.GetUserAudio(context.Background(), client.CallAudio)
	require.NoError(t, err)
	defer micB.AudioTracks()[0].Stop()

	a, err := f.NewPeer(client.PeerConfig{Initiator: true, Stream: micA}, emitter("a"))
	require.NoError(t, err)
	defer a.Close()
	b, err := f.NewPeer(client.PeerConfig{Initiator: false, Stream: micB}, emitter("b"))
	require.NoError(t, err)
	defer b.Close()

	peers := map[string]client.Peer{"a": a, "b": b}
	other := map[string]string{"a": "b", "b": "a"}
	connected := map[string]bool{}

	deadline := time.After(20 * time.Second)
	for !connected["a"] || !connected["b"] {
		select {
		case te := <-events:
			switch te.ev.Kind {
			case client.PeerSignal:
				require.NoError(t, peers[other[te.from]].Signal(te.ev.Signal))
			case client.PeerConnected:
				connected[te.from] = true
			case client.PeerError:
				t.Fatalf("peer %s failed: %v", te.from, te.ev.Err)
			}
		case <-deadline:
			t.Fatal("peers did not connect")
		}
	}
}
