package chathub_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voicechat/backend/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingNotifier captures envelopes per connection.
type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]models.Envelope
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[string][]models.Envelope)}
}

func (n *recordingNotifier) Notify(clientID string, env models.Envelope) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[clientID] = append(n.sent[clientID], env)
}

func (n *recordingNotifier) For(clientID string) []models.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Envelope(nil), n.sent[clientID]...)
}

// MockClient is an in-memory chathub.Client.
type MockClient struct {
	id      string
	session models.SessionStatus
	send    chan models.Envelope
	closed  atomic.Bool
}

func newMockClient(id string) *MockClient {
	return &MockClient{
		id:      id,
		session: models.SessionStatus{Valid: true, SessionID: "session-" + id},
		send:    make(chan models.Envelope, 32),
	}
}

// newSlowClient never drains more than capacity envelopes on its own.
func newSlowClient(id string, capacity int) *MockClient {
	c := newMockClient(id)
	c.send = make(chan models.Envelope, capacity)
	return c
}

func (c *MockClient) GetClientID() string                    { return c.id }
func (c *MockClient) GetSession() models.SessionStatus       { return c.session }
func (c *MockClient) GetSendChannel() chan<- models.Envelope { return c.send }
func (c *MockClient) Run()                                   {}
func (c *MockClient) Close()                                 { c.closed.Store(true) }

// next returns the next envelope of type eventType, skipping user-count
// broadcasts unless that is what is asked for.
func (c *MockClient) next(t *testing.T, eventType string) models.Envelope {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case env := <-c.send:
			if env.Type == models.EventUserCount && eventType != models.EventUserCount {
				continue
			}
			require.Equal(t, eventType, env.Type, "client %s", c.id)
			return env
		case <-deadline:
			t.Fatalf("client %s: no %q envelope", c.id, eventType)
			return models.Envelope{}
		}
	}
}

// expectNothing asserts that no envelope other than user-count arrives.
func (c *MockClient) expectNothing(t *testing.T) {
	t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case env := <-c.send:
			if env.Type != models.EventUserCount {
				t.Fatalf("client %s: unexpected %q envelope", c.id, env.Type)
			}
		case <-deadline:
			return
		}
	}
}

func decode[T any](t *testing.T, env models.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

// MockReporter is a testify mock for chathub.StatsReporter.
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) ReportStats(ctx context.Context, stats models.HubStats) error {
	args := m.Called(ctx, stats)
	return args.Error(0)
}
