package rtc

import (
	"testing"

	"voicechat/backend/internal/client"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

func TestStateEvent(t *testing.T) {
	tests := []struct {
		state webrtc.PeerConnectionState
		kind  client.PeerEventKind
		ok    bool
	}{
		{webrtc.PeerConnectionStateNew, "", false},
		{webrtc.PeerConnectionStateConnecting, "", false},
		{webrtc.PeerConnectionStateConnected, client.PeerConnected, true},
		{webrtc.PeerConnectionStateDisconnected, client.PeerInterrupted, true},
		{webrtc.PeerConnectionStateFailed, client.PeerError, true},
		{webrtc.PeerConnectionStateClosed, client.PeerClosed, true},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			ev, ok := stateEvent(tt.state)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, ev.Kind)
		})
	}

	ev, _ := stateEvent(webrtc.PeerConnectionStateFailed)
	assert.ErrorIs(t, ev.Err, ErrConnectionFailed)
}
