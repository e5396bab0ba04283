// Package rtc implements the call session's peer and media interfaces on pion.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"voicechat/backend/internal/client"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnexpectedSignal = errors.New("rtc: unexpected signal")
	ErrConnectionFailed = errors.New("rtc: peer connection failed")
)

// DefaultICEServers are public STUN servers used when none are configured.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:global.stun.twilio.com:3478",
}

// TrackSource is implemented by local streams that can feed pion directly.
type TrackSource interface {
	LocalTracks() []webrtc.TrackLocal
}

// Factory builds pion peer connections. Descriptions are exchanged only after
// ICE gathering completes, so one offer and one answer carry every candidate.
type Factory struct {
	ICEServers []string
	// Loopback admits 127.0.0.1 candidates. Only useful when both peers share a host.
	Loopback bool
}

func NewFactory(iceServers []string) *Factory {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers
	}
	return &Factory{ICEServers: iceServers}
}

func (f *Factory) api() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	se := webrtc.SettingEngine{}
	if f.Loopback {
		se.SetIncludeLoopbackCandidate(true)
		se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)), nil
}

func (f *Factory) NewPeer(cfg client.PeerConfig, emit func(client.PeerEvent)) (client.Peer, error) {
	api, err := f.api()
	if err != nil {
		return nil, err
	}

	var servers []webrtc.ICEServer
	if len(f.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: f.ICEServers}}
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &peer{pc: pc, emit: emit}
	if err := p.attach(cfg.Stream); err != nil {
		pc.Close()
		return nil, err
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("module", "rtc").Str("state", s.String()).Msg("peer connection state")
		if ev, ok := stateEvent(s); ok {
			p.emit(ev)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("codec", track.Codec().MimeType).Msg("remote audio track")
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})

	if cfg.Initiator {
		go p.offer()
	}
	return p, nil
}

// stateEvent maps a connection state to the event the call session sees.
// Disconnected is transient: ICE keeps checking and pion moves on to either
// Connected or Failed.
func stateEvent(s webrtc.PeerConnectionState) (client.PeerEvent, bool) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		return client.PeerEvent{Kind: client.PeerConnected}, true
	case webrtc.PeerConnectionStateDisconnected:
		return client.PeerEvent{Kind: client.PeerInterrupted}, true
	case webrtc.PeerConnectionStateFailed:
		return client.PeerEvent{Kind: client.PeerError, Err: ErrConnectionFailed}, true
	case webrtc.PeerConnectionStateClosed:
		return client.PeerEvent{Kind: client.PeerClosed}, true
	}
	return client.PeerEvent{}, false
}

type peer struct {
	pc        *webrtc.PeerConnection
	emit      func(client.PeerEvent)
	closeOnce sync.Once
}

// attach adds the stream's tracks, or a receive-only audio transceiver when
// there is nothing to send.
func (p *peer) attach(stream client.LocalStream) error {
	src, ok := stream.(TrackSource)
	if !ok || len(src.LocalTracks()) == 0 {
		_, err := p.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		return err
	}
	for _, track := range src.LocalTracks() {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add track: %w", err)
		}
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

// signalMessage is the handshake payload. Descriptions use pion's JSON form
// ({"type":"offer","sdp":"..."}); candidates arrive as {"type":"candidate",...}.
type signalMessage struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func (p *peer) Signal(payload json.RawMessage) error {
	var msg signalMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedSignal, err)
	}

	switch msg.Type {
	case "offer":
		if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		go p.answer()
		return nil
	case "answer":
		if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		return nil
	case "candidate":
		if msg.Candidate == nil {
			return nil
		}
		return p.pc.AddICECandidate(*msg.Candidate)
	}
	return fmt.Errorf("%w: type %q", ErrUnexpectedSignal, msg.Type)
}

func (p *peer) offer() {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		p.fail(fmt.Errorf("create offer: %w", err))
		return
	}
	p.publish(offer)
}

func (p *peer) answer() {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		p.fail(fmt.Errorf("create answer: %w", err))
		return
	}
	p.publish(answer)
}

// publish sets the local description and emits it once gathering is done.
func (p *peer) publish(desc webrtc.SessionDescription) {
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		p.fail(fmt.Errorf("set local description: %w", err))
		return
	}
	<-gathered

	local := p.pc.LocalDescription()
	if local == nil {
		return
	}
	data, err := json.Marshal(local)
	if err != nil {
		p.fail(err)
		return
	}
	p.emit(client.PeerEvent{Kind: client.PeerSignal, Signal: data})
}

func (p *peer) fail(err error) {
	p.emit(client.PeerEvent{Kind: client.PeerError, Err: err})
}

func (p *peer) Close() error {
	var err error
	p.closeOnce.Do(func() { err = p.pc.Close() })
	return err
}
