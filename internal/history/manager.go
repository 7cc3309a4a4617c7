package history

import (
	"log/slog"
	"slices"
	"strconv"
	"sync"
)

// TreeManager coordinates trees and records their changes.
//
// Thread-safety: every method is safe for concurrent use. Navigation calls
// (ReplayHistoryToTrees, GoToHistoryEntry, Undo, Redo) are expected to be
// serialized by the caller; overlapping navigations are not detected.
//
// INVARIANTS:
//   - 0 <= cursor <= document.Len() whenever the cursor is set
//   - an id in usedIDs is never accepted by CreateHistoryEntry again
//   - m.mu is never held while a Tree method runs
type TreeManager struct {
	mu        sync.Mutex
	document  *ChangeDocument
	undoStore *UndoStore
	active    map[string]*HistoryEntry
	usedIDs   map[string]bool
	trees     map[string]Tree
	treeOrder []string // registration order
	cursor    int
	cursorSet bool

	logger      *slog.Logger
	entryIDs    IDGenerator
	exchangeIDs IDGenerator
	undoLimit   int

	subMu       sync.Mutex
	subscribers []subscriber
	nextSubID   int
}

// ManagerOption configures a TreeManager.
type ManagerOption func(*TreeManager)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *TreeManager) {
		m.logger = logger
	}
}

// WithEntryIDs sets the generator for entries the manager creates itself
// (undo and redo). Default: UUIDv7Generator.
func WithEntryIDs(gen IDGenerator) ManagerOption {
	return func(m *TreeManager) {
		m.entryIDs = gen
	}
}

// WithExchangeIDs sets the generator for exchanges the manager opens on
// behalf of trees. Default: ULIDGenerator.
func WithExchangeIDs(gen IDGenerator) ManagerOption {
	return func(m *TreeManager) {
		m.exchangeIDs = gen
	}
}

// WithUndoLimit caps the undo store depth; the oldest entries are dropped
// first. Zero or negative means unlimited.
func WithUndoLimit(limit int) ManagerOption {
	return func(m *TreeManager) {
		if limit < 0 {
			limit = 0
		}
		m.undoLimit = limit
	}
}

// NewTreeManager creates a manager with an empty change document and an
// undefined history cursor.
func NewTreeManager(opts ...ManagerOption) *TreeManager {
	m := &TreeManager{
		document:    NewChangeDocument(),
		active:      make(map[string]*HistoryEntry),
		usedIDs:     make(map[string]bool),
		trees:       make(map[string]Tree),
		logger:      slog.Default(),
		entryIDs:    UUIDv7Generator{},
		exchangeIDs: ULIDGenerator{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.undoStore = newUndoStore(m, m.undoLimit)
	return m
}

// PutTree registers tree under id, replacing any previous registration.
func (m *TreeManager) PutTree(id string, tree Tree) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trees[id]; !ok {
		m.treeOrder = append(m.treeOrder, id)
	}
	m.trees[id] = tree
}

// RemoveTree unregisters the tree. Unknown ids are ignored.
func (m *TreeManager) RemoveTree(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trees[id]; !ok {
		return
	}
	delete(m.trees, id)
	m.treeOrder = slices.DeleteFunc(m.treeOrder, func(s string) bool { return s == id })
}

// Tree returns the tree registered under id.
func (m *TreeManager) Tree(id string) (Tree, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trees[id]
	return t, ok
}

// TreeIDs returns registered tree ids in registration order.
func (m *TreeManager) TreeIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.treeOrder)
}

// ChangeDocument returns a copy of the current change document.
func (m *TreeManager) ChangeDocument() *ChangeDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.document.clone()
}

// UndoStore returns the manager's undo store.
func (m *TreeManager) UndoStore() *UndoStore {
	return m.undoStore
}

// ActiveEntry returns a copy of the active entry with the given id.
func (m *TreeManager) ActiveEntry(id string) (*HistoryEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.active[id]
	if !ok {
		return nil, false
	}
	cp := *e
	cp.records = slices.Clone(e.records)
	cp.exchanges = e.OpenExchanges()
	return &cp, true
}

// ActiveEntryIDs returns the ids of entries that still have open exchanges,
// sorted. A non-empty result after all work has settled means some tree
// never closed its exchange.
func (m *TreeManager) ActiveEntryIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CurrentHistoryIndex returns the history cursor and whether it is set.
func (m *TreeManager) CurrentHistoryIndex() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, m.cursorSet
}

// SetCurrentHistoryIndex sets the cursor without applying any patches. Use
// it to declare which prefix of the document the trees already reflect.
func (m *TreeManager) SetCurrentHistoryIndex(index int) error {
	m.mu.Lock()
	if index < 0 || index > m.document.Len() {
		n := m.document.Len()
		m.mu.Unlock()
		return indexError(index, n)
	}
	m.cursor = index
	m.cursorSet = true
	m.mu.Unlock()

	m.emit(Event{Type: EventHistoryIndexChanged, Index: index})
	return nil
}

// ReplaceChangeDocument swaps in externally loaded history. The cursor moves
// to the end of the new document and the undo store is cleared, since the
// loaded entries were not produced in this session. Ids of the loaded
// entries are retired.
func (m *TreeManager) ReplaceChangeDocument(doc *ChangeDocument) {
	m.mu.Lock()
	m.document = doc.clone()
	for _, e := range m.document.entries {
		m.usedIDs[e.ID] = true
	}
	m.cursor = m.document.Len()
	m.cursorSet = true
	index := m.cursor
	m.mu.Unlock()

	m.logger.Info("change document replaced", "entries", index)
	m.emit(
		Event{Type: EventDocumentReplaced, Index: index},
		Event{Type: EventHistoryIndexChanged, Index: index},
	)
	m.undoStore.Clear()
}

func indexError(index, length int) *ProtocolError {
	return &ProtocolError{
		Code:    ErrCodeIndexOutOfRange,
		Message: "history index outside document",
		Details: map[string]string{
			"index":  strconv.Itoa(index),
			"length": strconv.Itoa(length),
		},
	}
}

func cursorError(cursor, length int) *ProtocolError {
	return &ProtocolError{
		Code:    ErrCodeCursorNotAtEnd,
		Message: "history cursor is not at the end of the document",
		Details: map[string]string{
			"index":  strconv.Itoa(cursor),
			"length": strconv.Itoa(length),
		},
	}
}
