package history

import (
	"github.com/roach88/tilehist/internal/ir"
)

// EventType identifies a manager notification.
type EventType string

const (
	EventEntryCreated        EventType = "entry_created"
	EventEntryCompleted      EventType = "entry_completed"
	EventEntryDiscarded      EventType = "entry_discarded"
	EventDocumentReplaced    EventType = "document_replaced"
	EventHistoryIndexChanged EventType = "history_index_changed"
	EventUndoChanged         EventType = "undo_changed"
)

// Event is delivered to subscribers after the manager releases its lock.
// Fields not relevant to the event type are zero.
type Event struct {
	Type EventType

	// HistoryEntryID is set for entry events.
	HistoryEntryID string

	// Entry is the completed entry (EventEntryCompleted only).
	Entry *ir.HistoryEntrySnapshot

	// Index is the entry's history index for EventEntryCompleted and the
	// new cursor for EventHistoryIndexChanged.
	Index int

	// UndoLevels and RedoLevels are set for EventUndoChanged.
	UndoLevels int
	RedoLevels int
}

type subscriber struct {
	id int
	fn func(Event)
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it. fn runs on the goroutine that caused the event and must
// not block for long.
func (m *TreeManager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.subMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: fn})
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		for i, s := range m.subscribers {
			if s.id == id {
				m.subscribers = append(m.subscribers[:i:i], m.subscribers[i+1:]...)
				return
			}
		}
	}
}

// emit delivers events in order. Callers must not hold m.mu.
func (m *TreeManager) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	m.subMu.Lock()
	subs := append([]subscriber(nil), m.subscribers...)
	m.subMu.Unlock()

	for _, ev := range events {
		for _, s := range subs {
			s.fn(ev)
		}
	}
}
