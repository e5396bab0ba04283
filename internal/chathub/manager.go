package chathub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"voicechat/backend/internal/models"

	"github.com/rs/zerolog/log"
)

// ErrHubStopped is returned by queries made after Run has returned.
var ErrHubStopped = errors.New("chathub: hub stopped")

// Role is a connection's position in the pairing lifecycle.
type Role string

const (
	RoleUnknown  Role = ""
	RoleUnpaired Role = "unpaired"
	RoleWaiting  Role = "waiting"
	RolePaired   Role = "paired"
)

// ManagerService is the hub. Run owns the client table, the waiting queue and
// the room registry; everything else reaches them through channels, so each
// event (including a whole match) is applied atomically.
type ManagerService struct {
	clients map[string]Client
	// lagging holds clients whose send buffer overflowed during the current event.
	lagging map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan models.InboundEvent

	Queue   *WaitingQueue
	Rooms   *RoomRegistry
	Matcher *MatcherService
	Relay   *Relay

	// Reporter receives hub snapshots off the loop goroutine. Optional.
	Reporter StatsReporter

	queryCh  chan func()
	reportCh chan models.HubStats
	done     chan struct{}
}

func NewManagerService(reporter StatsReporter) *ManagerService {
	m := &ManagerService{
		clients:      make(map[string]Client),
		lagging:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan models.InboundEvent, 256),
		Queue:        NewWaitingQueue(),
		Rooms:        NewRoomRegistry(),
		Reporter:     reporter,
		queryCh:      make(chan func()),
		reportCh:     make(chan models.HubStats, 1),
		done:         make(chan struct{}),
	}
	m.Matcher = NewMatcherService(m.Queue, m.Rooms, m)
	m.Relay = NewRelay(m.Rooms, m)
	return m
}

// Done is closed once Run has returned.
func (m *ManagerService) Done() <-chan struct{} { return m.done }

// Run processes hub events until ctx is cancelled, then closes every client.
func (m *ManagerService) Run(ctx context.Context) {
	log.Info().Str("module", "hub").Msg("hub started")
	if m.Reporter != nil {
		go m.runReporter(ctx)
	}

	defer func() {
		for id, c := range m.clients {
			delete(m.clients, id)
			c.Close()
		}
		close(m.done)
		log.Info().Str("module", "hub").Msg("hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-m.RegisterCh:
			m.register(c)

		case c := <-m.UnregisterCh:
			m.unregister(c)

		case ev := <-m.IncomingCh:
			m.dispatch(ev)

		case fn := <-m.queryCh:
			fn()
		}
		m.dropLagging()
	}
}

// Notify queues env on the client's send channel without blocking the hub.
// A client that cannot keep up is disconnected once the current event has
// been applied, so its room is torn down like any other disconnect.
func (m *ManagerService) Notify(clientID string, env models.Envelope) {
	c, ok := m.clients[clientID]
	if !ok {
		return
	}
	if _, ok := m.lagging[clientID]; ok {
		return
	}
	select {
	case c.GetSendChannel() <- env:
	default:
		log.Warn().Str("module", "hub").Str("client", clientID).Str("type", env.Type).Msg("send buffer full, dropping client")
		m.lagging[clientID] = c
	}
}

// dropLagging disconnects clients marked by Notify. Dropping one may overflow
// its peer's buffer in turn, hence the loop.
func (m *ManagerService) dropLagging() {
	for len(m.lagging) > 0 {
		for id, c := range m.lagging {
			delete(m.lagging, id)
			if cur, ok := m.clients[id]; ok && cur == c {
				m.drop(c)
			}
		}
		m.broadcastCount()
	}
}

func (m *ManagerService) register(c Client) {
	id := c.GetClientID()
	if old, ok := m.clients[id]; ok && old != c {
		m.drop(old)
	}
	m.clients[id] = c
	log.Info().Str("module", "hub").Str("client", id).Int("online", len(m.clients)).Msg("client admitted")
	m.broadcastCount()
}

func (m *ManagerService) unregister(c Client) {
	id := c.GetClientID()
	if cur, ok := m.clients[id]; !ok || cur != c {
		return
	}
	m.drop(c)
	log.Info().Str("module", "hub").Str("client", id).Int("online", len(m.clients)).Msg("client left")
	m.broadcastCount()
}

// drop runs the disconnect path: leave the queue, end the room, forget the client.
func (m *ManagerService) drop(c Client) {
	id := c.GetClientID()
	m.Matcher.LeaveQueue(id)
	m.Relay.EndRoom(id, models.ReasonPeerDisconnected)
	delete(m.clients, id)
	c.Close()
}

func (m *ManagerService) dispatch(ev models.InboundEvent) {
	c, ok := m.clients[ev.ClientID]
	if !ok {
		return
	}
	logger := log.With().Str("module", "hub").Str("client", ev.ClientID).Str("type", ev.Envelope.Type).Logger()

	switch ev.Envelope.Type {
	case models.EventJoinQueue:
		filters, err := decodeFilters(ev.Envelope.Payload)
		if err != nil {
			logger.Warn().Err(err).Msg("malformed join-queue ignored")
			return
		}
		if _, paired := m.Rooms.Lookup(ev.ClientID); paired {
			m.Relay.EndRoom(ev.ClientID, models.ReasonEndedByPeer)
		}
		m.Matcher.RequestMatch(ev.ClientID, Profile{Filters: filters, Country: c.GetSession().Country})
		m.publishStats()

	case models.EventLeaveQueue:
		if m.Matcher.LeaveQueue(ev.ClientID) {
			m.publishStats()
		}

	case models.EventSignal:
		var req models.SignalRequest
		if err := json.Unmarshal(ev.Envelope.Payload, &req); err != nil || len(req.Signal) == 0 {
			logger.Debug().Msg("malformed signal ignored")
			return
		}
		m.Relay.RelaySignal(ev.ClientID, req.Signal)

	case models.EventEndCall:
		if m.Relay.EndRoom(ev.ClientID, models.ReasonEndedByPeer) {
			m.publishStats()
		}

	default:
		logger.Debug().Msg("unknown event ignored")
	}
}

func decodeFilters(payload json.RawMessage) (models.FilterSet, error) {
	var f models.FilterSet
	if len(payload) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		return f, nil
	}
	if err := json.Unmarshal(payload, &f); err != nil {
		return models.FilterSet{}, err
	}
	return f.Normalize(), nil
}

func (m *ManagerService) broadcastCount() {
	env := models.MustEnvelope(models.EventUserCount, len(m.clients))
	for id := range m.clients {
		m.Notify(id, env)
	}
	m.publishStats()
}

func (m *ManagerService) snapshot() models.HubStats {
	s := models.HubStats{
		Online:  len(m.clients),
		Waiting: m.Queue.Len(),
		Rooms:   m.Rooms.Len(),
	}
	if oldest, ok := m.Queue.Oldest(); ok {
		s.OldestWaitSeconds = m.Matcher.now().Sub(oldest.EnqueuedAt).Seconds()
	}
	return s
}

// do runs fn on the hub goroutine and waits for it.
func (m *ManagerService) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}
	select {
	case m.queryCh <- wrapped:
	case <-m.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Stats returns a consistent snapshot of the hub.
func (m *ManagerService) Stats(ctx context.Context) (models.HubStats, error) {
	var s models.HubStats
	err := m.do(ctx, func() { s = m.snapshot() })
	return s, err
}

// Role reports where clientID currently is in the pairing lifecycle.
func (m *ManagerService) Role(ctx context.Context, clientID string) (Role, error) {
	role := RoleUnknown
	err := m.do(ctx, func() {
		switch {
		case m.clients[clientID] == nil:
			role = RoleUnknown
		case m.Queue.Contains(clientID):
			role = RoleWaiting
		default:
			if _, ok := m.Rooms.Lookup(clientID); ok {
				role = RolePaired
			} else {
				role = RoleUnpaired
			}
		}
	})
	return role, err
}
