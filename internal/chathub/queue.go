package chathub

import "time"

// QueueEntry is one connection waiting for a partner.
type QueueEntry struct {
	ClientID   string
	Profile    Profile
	EnqueuedAt time.Time
}

// WaitingQueue keeps entries in arrival order. A connection appears at most
// once; Push replaces an existing entry and moves it to the tail.
// It is not safe for concurrent use; the hub loop owns it.
type WaitingQueue struct {
	entries []QueueEntry
	index   map[string]struct{}
}

func NewWaitingQueue() *WaitingQueue {
	return &WaitingQueue{index: make(map[string]struct{})}
}

func (q *WaitingQueue) Push(e QueueEntry) {
	q.Remove(e.ClientID)
	q.entries = append(q.entries, e)
	q.index[e.ClientID] = struct{}{}
}

// Remove deletes the entry for clientID and reports whether one existed.
func (q *WaitingQueue) Remove(clientID string) bool {
	if _, ok := q.index[clientID]; !ok {
		return false
	}
	delete(q.index, clientID)
	for i, e := range q.entries {
		if e.ClientID == clientID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return true
}

func (q *WaitingQueue) Contains(clientID string) bool {
	_, ok := q.index[clientID]
	return ok
}

func (q *WaitingQueue) Len() int { return len(q.entries) }

// Oldest returns the head of the queue.
func (q *WaitingQueue) Oldest() (QueueEntry, bool) {
	if len(q.entries) == 0 {
		return QueueEntry{}, false
	}
	return q.entries[0], true
}

// FirstMatch scans in FIFO order and returns the first entry compatible with p,
// skipping the entry owned by skip.
func (q *WaitingQueue) FirstMatch(p Profile, skip string) (QueueEntry, bool) {
	for _, e := range q.entries {
		if e.ClientID == skip {
			continue
		}
		if CompatibleProfiles(e.Profile, p) {
			return e, true
		}
	}
	return QueueEntry{}, false
}
