package client

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"voicechat/backend/internal/models"

	"github.com/rs/zerolog/log"
)

var (
	ErrCallInProgress = errors.New("client: call already in progress")
	ErrTransportDown  = errors.New("client: gateway transport is down")
	ErrSessionClosed  = errors.New("client: session closed")
)

// State is the call session's position in the call lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateSearching    State = "searching"
	StateCreating     State = "creating"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

func (s State) inCall() bool {
	switch s {
	case StateCreating, StateConnecting, StateConnected, StateDisconnected:
		return true
	}
	return false
}

// Failure is a user-visible error category.
type Failure string

const (
	FailureNone              Failure = ""
	FailureMicPermission     Failure = "mic-permission"
	FailureConnectionFailed  Failure = "connection-failed"
	FailureConnectionDropped Failure = "connection-dropped"
	FailureAuthRequired      Failure = "auth-required"
)

// EndReason says why the session went back to idle.
type EndReason string

const (
	EndManual            EndReason = "manual"
	EndCancelled         EndReason = "cancelled"
	EndByPeer            EndReason = "ended-by-peer"
	EndPeerDisconnected  EndReason = "peer-disconnected"
	EndConnectionFailed  EndReason = "connection-failed"
	EndConnectionDropped EndReason = "connection-dropped"
	EndTransportLost     EndReason = "transport-lost"
	EndMicPermission     EndReason = "mic-permission"
	EndAuthRequired      EndReason = "auth-required"
)

// redials reports whether auto-redial may follow a call that ended this way.
func (r EndReason) redials() bool {
	switch r {
	case EndByPeer, EndPeerDisconnected, EndConnectionFailed, EndConnectionDropped, EndTransportLost:
		return true
	}
	return false
}

type EventKind string

const (
	EventState           EventKind = "state"
	EventMatched         EventKind = "matched"
	EventCallEnded       EventKind = "call-ended"
	EventFailure         EventKind = "failure"
	EventNoUsers         EventKind = "no-users"
	EventTransport       EventKind = "transport"
	EventUserCount       EventKind = "user-count"
	EventMute            EventKind = "mute"
	EventRedialScheduled EventKind = "redial-scheduled"
)

// Event is everything a UI needs to render the session. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind      EventKind
	State     State
	RoomID    string
	PeerID    string
	Initiator bool
	Reason    EndReason
	Failure   Failure
	Err       error
	Transport TransportState
	UserCount int
	Muted     bool
}

type options struct {
	redialDelay   time.Duration
	searchTimeout time.Duration
	mediaTimeout  time.Duration
}

type Option func(*options)

func WithRedialDelay(d time.Duration) Option   { return func(o *options) { o.redialDelay = d } }
func WithSearchTimeout(d time.Duration) Option { return func(o *options) { o.searchTimeout = d } }
func WithMediaTimeout(d time.Duration) Option  { return func(o *options) { o.mediaTimeout = d } }

// callAttempt is the state of one matched call. It is created on matched and
// released exactly once on every exit path.
type callAttempt struct {
	gen       uint64
	roomID    string
	peerID    string
	initiator bool

	stream      LocalStream
	peer        Peer
	pending     []json.RawMessage
	cancelMedia context.CancelFunc
	released    bool
}

func (a *callAttempt) release() {
	if a.released {
		return
	}
	a.released = true
	if a.cancelMedia != nil {
		a.cancelMedia()
	}
	if a.peer != nil {
		if err := a.peer.Close(); err != nil {
			log.Debug().Err(err).Str("module", "session").Str("room", a.roomID).Msg("peer close failed")
		}
	}
	if a.stream != nil {
		stopTracks(a.stream)
	}
	a.pending = nil
}

func stopTracks(s LocalStream) {
	for _, t := range s.AudioTracks() {
		t.Stop()
	}
}

// CallSession drives one user's calls. Run owns all state; the exported
// methods post work to it and wait for the result.
type CallSession struct {
	gateway Gateway
	media   MediaDevices
	peers   PeerFactory
	opts    options

	inbox  *mailbox
	events chan Event
	done   chan struct{}
	ctx    context.Context

	// Owned by the Run goroutine.
	state             State
	transportUp       bool
	autoRedial        bool
	muted             bool
	lastFilters       models.FilterSet
	call              *callAttempt
	gen               uint64
	redialGen         uint64
	redialTimer       *time.Timer
	redialOnReconnect bool
	searchGen         uint64
	searchTimer       *time.Timer
	noUsersSent       bool
}

func NewCallSession(gw Gateway, media MediaDevices, peers PeerFactory, opts ...Option) *CallSession {
	o := options{
		redialDelay:   3 * time.Second,
		searchTimeout: 30 * time.Second,
		mediaTimeout:  15 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &CallSession{
		gateway: gw,
		media:   media,
		peers:   peers,
		opts:    o,
		inbox:   newMailbox(),
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
		state:   StateIdle,
	}
}

// Events is closed when Run returns.
func (s *CallSession) Events() <-chan Event { return s.events }

// Run processes gateway traffic, commands, media results, peer callbacks and
// timers one at a time until ctx is done.
func (s *CallSession) Run(ctx context.Context) error {
	s.ctx = ctx
	defer func() {
		s.cancelRedial()
		s.stopSearchTimer()
		if s.call != nil {
			s.call.release()
			s.call = nil
		}
		close(s.done)
		close(s.events)
	}()

	gwEvents := s.gateway.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-gwEvents:
			if !ok {
				gwEvents = nil
				s.onTransport(TransportDisconnected)
				continue
			}
			if ev.Envelope != nil {
				s.onEnvelope(*ev.Envelope)
			} else {
				s.onTransport(ev.Transport)
			}

		case <-s.inbox.notify:
			for _, fn := range s.inbox.drain() {
				fn()
			}
		}
	}
}

// exec runs fn on the session loop and waits for it to finish.
func (s *CallSession) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	s.inbox.put(func() {
		fn()
		close(finished)
	})
	select {
	case <-finished:
		return nil
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartCall joins the queue with filters. It is only valid from idle.
func (s *CallSession) StartCall(ctx context.Context, filters models.FilterSet) error {
	var err error
	if xerr := s.exec(ctx, func() {
		if s.state != StateIdle {
			err = ErrCallInProgress
			return
		}
		s.cancelRedial()
		s.lastFilters = filters.Normalize()
		err = s.joinQueue()
	}); xerr != nil {
		return xerr
	}
	return err
}

// EndCall cancels a search or hangs up a call. Neither triggers auto-redial.
// In idle it only cancels a pending redial.
func (s *CallSession) EndCall(ctx context.Context) error {
	return s.exec(ctx, func() {
		s.cancelRedial()
		switch {
		case s.state == StateSearching:
			s.send(models.EventLeaveQueue, nil)
			s.finish(EndCancelled, FailureNone, nil)
		case s.state.inCall():
			s.send(models.EventEndCall, nil)
			s.finish(EndManual, FailureNone, nil)
		}
	})
}

// ToggleMute flips the enabled flag of the local audio tracks and returns the
// new muted state. Without a local stream it does nothing and returns false.
func (s *CallSession) ToggleMute(ctx context.Context) (bool, error) {
	var muted bool
	err := s.exec(ctx, func() {
		if s.call == nil || s.call.stream == nil {
			return
		}
		s.muted = !s.muted
		for _, t := range s.call.stream.AudioTracks() {
			t.SetEnabled(!s.muted)
		}
		muted = s.muted
		s.emit(Event{Kind: EventMute, Muted: s.muted})
	})
	return muted, err
}

// SetAutoRedial turns automatic redialing on or off. Turning it off cancels a
// scheduled redial.
func (s *CallSession) SetAutoRedial(ctx context.Context, enabled bool) error {
	return s.exec(ctx, func() {
		s.autoRedial = enabled
		if !enabled {
			s.cancelRedial()
		}
	})
}

func (s *CallSession) State(ctx context.Context) (State, error) {
	var st State
	err := s.exec(ctx, func() { st = s.state })
	return st, err
}

func (s *CallSession) joinQueue() error {
	if !s.transportUp {
		return ErrTransportDown
	}
	if err := s.send(models.EventJoinQueue, s.lastFilters); err != nil {
		return ErrTransportDown
	}
	s.noUsersSent = false
	s.setState(StateSearching)
	return nil
}

func (s *CallSession) onTransport(state TransportState) {
	s.emit(Event{Kind: EventTransport, Transport: state})

	switch state {
	case TransportConnected, TransportReconnected:
		s.transportUp = true
		if s.redialOnReconnect && s.autoRedial && s.state == StateIdle {
			s.redialOnReconnect = false
			s.scheduleRedial()
		}

	case TransportDisconnected:
		s.transportUp = false
		// The gateway forgets rooms and queue entries of dropped connections.
		switch {
		case s.state == StateSearching:
			s.finish(EndTransportLost, FailureNone, nil)
		case s.state.inCall():
			s.finish(EndTransportLost, FailureNone, nil)
		}
	}
}

func (s *CallSession) onEnvelope(env models.Envelope) {
	logger := log.With().Str("module", "session").Str("type", env.Type).Logger()

	switch env.Type {
	case models.EventWaiting:
		switch {
		case s.state == StateSearching:
			s.startSearchTimer()
		case s.state.inCall():
			// waiting only answers a join-queue, so the room this attempt
			// belongs to is gone and the gateway has queued us again.
			logger.Debug().Str("room", s.call.roomID).Msg("room superseded by queue entry")
			s.dropAttempt()
			s.noUsersSent = false
			s.setState(StateSearching)
			s.startSearchTimer()
		}

	case models.EventMatched:
		var m models.MatchedPayload
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			logger.Warn().Err(err).Msg("malformed matched ignored")
			return
		}
		switch {
		case s.state == StateSearching:
			s.onMatched(m)
		case s.state.inCall():
			if s.call != nil && s.call.roomID == m.RoomID {
				return
			}
			// The gateway pairs only queued connections, so it already tore
			// down the room this attempt belongs to.
			logger.Debug().Str("room", m.RoomID).Msg("newer match replaces current room")
			s.dropAttempt()
			s.onMatched(m)
		default:
			// Matched after a local cancel; release the room on the server.
			logger.Debug().Str("room", m.RoomID).Msg("stale match, ending it")
			s.send(models.EventEndCall, nil)
		}

	case models.EventSignal:
		var p models.SignalPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || len(p.Signal) == 0 {
			logger.Warn().Msg("malformed signal ignored")
			return
		}
		s.onRemoteSignal(p.Signal)

	case models.EventCallEnded:
		if s.state.inCall() {
			s.finish(EndByPeer, FailureNone, nil)
		}

	case models.EventPeerDisconnected:
		if s.state.inCall() {
			s.finish(EndPeerDisconnected, FailureConnectionDropped, nil)
		}

	case models.EventUserCount:
		var n int
		if err := json.Unmarshal(env.Payload, &n); err == nil {
			s.emit(Event{Kind: EventUserCount, UserCount: n})
		}

	case models.EventAuthRequired:
		var p models.AuthRequiredPayload
		_ = json.Unmarshal(env.Payload, &p)
		s.cancelRedial()
		if s.state != StateIdle {
			s.finish(EndAuthRequired, FailureAuthRequired, errors.New(p.Message))
			return
		}
		s.emit(Event{Kind: EventFailure, Failure: FailureAuthRequired, Err: errors.New(p.Message)})

	default:
		logger.Debug().Msg("unknown event ignored")
	}
}

func (s *CallSession) onMatched(m models.MatchedPayload) {
	s.stopSearchTimer()
	s.gen++
	gen := s.gen
	attempt := &callAttempt{gen: gen, roomID: m.RoomID, peerID: m.PeerID, initiator: m.IsInitiator}
	s.call = attempt
	s.muted = false

	s.setState(StateCreating)
	s.emit(Event{Kind: EventMatched, RoomID: m.RoomID, PeerID: m.PeerID, Initiator: m.IsInitiator})

	mctx, cancel := context.WithTimeout(s.ctx, s.opts.mediaTimeout)
	attempt.cancelMedia = cancel
	go func() {
		stream, err := s.media.GetUserAudio(mctx, CallAudio)
		s.inbox.put(func() { s.onMedia(gen, stream, err) })
	}()
}

func (s *CallSession) onMedia(gen uint64, stream LocalStream, err error) {
	a := s.call
	if a == nil || a.gen != gen || a.released {
		if stream != nil {
			stopTracks(stream)
		}
		return
	}
	a.cancelMedia()
	a.cancelMedia = nil

	if err != nil {
		log.Warn().Err(err).Str("module", "session").Str("room", a.roomID).Msg("microphone unavailable")
		s.send(models.EventEndCall, nil)
		s.finish(EndMicPermission, FailureMicPermission, err)
		return
	}
	a.stream = stream

	peer, err := s.peers.NewPeer(PeerConfig{Initiator: a.initiator, Stream: stream}, func(ev PeerEvent) {
		s.inbox.put(func() { s.onPeerEvent(gen, ev) })
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Str("room", a.roomID).Msg("peer construction failed")
		s.send(models.EventEndCall, nil)
		s.finish(EndConnectionFailed, FailureConnectionFailed, err)
		return
	}
	a.peer = peer
	s.setState(StateConnecting)

	pending := a.pending
	a.pending = nil
	for _, p := range pending {
		if err := peer.Signal(p); err != nil {
			log.Warn().Err(err).Str("module", "session").Str("room", a.roomID).Msg("buffered signal rejected")
		}
	}
}

func (s *CallSession) onRemoteSignal(payload json.RawMessage) {
	a := s.call
	if a == nil {
		log.Debug().Str("module", "session").Msg("signal outside a call dropped")
		return
	}
	if a.peer == nil {
		a.pending = append(a.pending, payload)
		return
	}
	if err := a.peer.Signal(payload); err != nil {
		log.Warn().Err(err).Str("module", "session").Str("room", a.roomID).Msg("signal rejected by peer")
	}
}

func (s *CallSession) onPeerEvent(gen uint64, ev PeerEvent) {
	a := s.call
	if a == nil || a.gen != gen || a.released {
		return
	}

	switch ev.Kind {
	case PeerSignal:
		s.send(models.EventSignal, models.SignalRequest{Signal: ev.Signal})

	case PeerConnected:
		if s.state == StateConnecting || s.state == StateCreating || s.state == StateDisconnected {
			s.setState(StateConnected)
		}

	case PeerInterrupted:
		if s.state == StateConnected {
			s.setState(StateDisconnected)
		}

	case PeerError:
		log.Warn().Err(ev.Err).Str("module", "session").Str("room", a.roomID).Msg("peer connection failed")
		s.setState(StateDisconnected)
		s.send(models.EventEndCall, nil)
		s.finish(EndConnectionFailed, FailureConnectionFailed, ev.Err)

	case PeerClosed:
		s.setState(StateDisconnected)
		s.send(models.EventEndCall, nil)
		s.finish(EndConnectionDropped, FailureConnectionDropped, nil)
	}
}

// dropAttempt releases the current attempt without telling the gateway.
func (s *CallSession) dropAttempt() {
	if s.call != nil {
		s.call.release()
		s.call = nil
	}
	s.muted = false
}

// finish releases the current attempt, returns to idle and applies the
// auto-redial policy.
func (s *CallSession) finish(reason EndReason, failure Failure, err error) {
	prev := s.state
	s.stopSearchTimer()
	var roomID string
	if s.call != nil {
		roomID = s.call.roomID
		s.call.release()
		s.call = nil
	}
	s.muted = false

	s.setState(StateIdle)
	s.emit(Event{Kind: EventCallEnded, RoomID: roomID, Reason: reason, Failure: failure, Err: err})
	if failure != FailureNone {
		s.emit(Event{Kind: EventFailure, Failure: failure, Err: err})
	}

	log.Info().Str("module", "session").Str("room", roomID).Str("reason", string(reason)).Str("from", string(prev)).Msg("call ended")

	if s.autoRedial && reason.redials() && prev.inCall() {
		s.scheduleRedial()
	}
}

func (s *CallSession) scheduleRedial() {
	if !s.transportUp {
		s.redialOnReconnect = true
		return
	}
	s.stopRedialTimer()
	s.redialGen++
	gen := s.redialGen
	s.redialTimer = time.AfterFunc(s.opts.redialDelay, func() {
		s.inbox.put(func() {
			if gen == s.redialGen {
				s.fireRedial()
			}
		})
	})
	s.emit(Event{Kind: EventRedialScheduled})
}

func (s *CallSession) fireRedial() {
	s.redialTimer = nil
	if s.state != StateIdle || !s.autoRedial {
		return
	}
	if !s.transportUp {
		s.redialOnReconnect = true
		return
	}
	if err := s.joinQueue(); err != nil {
		s.redialOnReconnect = true
	}
}

func (s *CallSession) stopRedialTimer() {
	if s.redialTimer != nil {
		s.redialTimer.Stop()
		s.redialTimer = nil
	}
}

func (s *CallSession) cancelRedial() {
	s.redialGen++
	s.stopRedialTimer()
	s.redialOnReconnect = false
}

func (s *CallSession) startSearchTimer() {
	s.stopSearchTimer()
	gen := s.searchGen
	s.searchTimer = time.AfterFunc(s.opts.searchTimeout, func() {
		s.inbox.put(func() {
			if gen != s.searchGen || s.state != StateSearching || s.noUsersSent {
				return
			}
			s.noUsersSent = true
			s.emit(Event{Kind: EventNoUsers, State: s.state})
		})
	})
}

func (s *CallSession) stopSearchTimer() {
	s.searchGen++
	if s.searchTimer != nil {
		s.searchTimer.Stop()
		s.searchTimer = nil
	}
}

func (s *CallSession) setState(st State) {
	if s.state == st {
		return
	}
	s.state = st
	s.emit(Event{Kind: EventState, State: st})
}

func (s *CallSession) send(eventType string, payload any) error {
	env, err := models.NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	if err := s.gateway.Send(env); err != nil {
		log.Debug().Err(err).Str("module", "session").Str("type", eventType).Msg("send failed")
		return err
	}
	return nil
}

func (s *CallSession) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Warn().Str("module", "session").Str("kind", string(ev.Kind)).Msg("event buffer full, event dropped")
	}
}
