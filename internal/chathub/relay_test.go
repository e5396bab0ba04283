package chathub_test

import (
	"encoding/json"
	"testing"
	"time"

	"voicechat/backend/internal/chathub"
	"voicechat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelay() (*chathub.Relay, *chathub.RoomRegistry, *recordingNotifier) {
	n := newRecordingNotifier()
	rooms := chathub.NewRoomRegistry()
	return chathub.NewRelay(rooms, n), rooms, n
}

func TestRelay_SignalReachesPeerUnmodified(t *testing.T) {
	r, rooms, n := newRelay()
	rooms.Create("room-1", "a", "b", time.Now())

	blob := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n","extra":[1,2,{"x":null}]}`)
	assert.True(t, r.RelaySignal("a", blob))

	got := n.For("b")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventSignal, got[0].Type)
	payload := decode[models.SignalPayload](t, got[0])
	assert.JSONEq(t, string(blob), string(payload.Signal))
	assert.Equal(t, "a", payload.From)
	assert.Empty(t, n.For("a"))
}

func TestRelay_SignalFromUnpairedIsDropped(t *testing.T) {
	r, _, n := newRelay()
	assert.False(t, r.RelaySignal("ghost", json.RawMessage(`{}`)))
	assert.Empty(t, n.sent)
}

func TestRelay_EndRoomIsIdempotent(t *testing.T) {
	r, rooms, n := newRelay()
	rooms.Create("room-1", "a", "b", time.Now())

	assert.True(t, r.EndRoom("a", models.ReasonEndedByPeer))
	assert.False(t, r.EndRoom("a", models.ReasonEndedByPeer))
	assert.False(t, r.EndRoom("b", models.ReasonPeerDisconnected))

	got := n.For("b")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventCallEnded, got[0].Type)
	assert.Empty(t, n.For("a"))

	_, ok := rooms.Lookup("b")
	assert.False(t, ok)
	assert.False(t, r.RelaySignal("b", json.RawMessage(`{}`)), "relay after teardown is a no-op")
}

func TestRelay_DisconnectReason(t *testing.T) {
	r, rooms, n := newRelay()
	rooms.Create("room-1", "a", "b", time.Now())

	r.EndRoom("b", models.ReasonPeerDisconnected)

	got := n.For("a")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventPeerDisconnected, got[0].Type)
}
