package memory

import (
	"sync"
)

// EventLedger is a bounded in-memory set of webhook event ids.
// It is NOT persistent: a restart forgets everything, which is fine for
// catching redeliveries that arrive within minutes.
type EventLedger struct {
	mu    sync.Mutex
	limit int
	seen  map[string]struct{}
	order []string // insertion order, oldest first
}

// NewEventLedger keeps at most limit ids, evicting the oldest first.
func NewEventLedger(limit int) *EventLedger {
	if limit <= 0 {
		limit = 1024
	}
	return &EventLedger{
		limit: limit,
		seen:  make(map[string]struct{}, limit),
		order: make([]string, 0, limit),
	}
}

// MarkSeen records id and reports whether it was already present.
func (l *EventLedger) MarkSeen(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.seen[id]; exists {
		return true
	}

	if len(l.order) >= l.limit {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.seen, oldest)
	}

	l.seen[id] = struct{}{}
	l.order = append(l.order, id)
	return false
}

func (l *EventLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
