package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/tilehist/internal/history"
)

// Recorder persists a manager's change document as it grows. Completed
// entries are appended at their history index; a wholesale replacement
// rewrites the stored document.
//
// Write failures are logged and remembered (see Err); the manager keeps
// running.
type Recorder struct {
	store      *Store
	documentID string
	manager    *history.TreeManager
	logger     *slog.Logger
	ctx        context.Context

	mu          sync.Mutex
	err         error
	unsubscribe func()
}

// NewRecorder starts recording manager events into documentID, which is
// created if needed.
func NewRecorder(ctx context.Context, s *Store, documentID string, m *history.TreeManager, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := s.CreateDocument(ctx, documentID, ""); err != nil {
		return nil, err
	}
	r := &Recorder{
		store:      s,
		documentID: documentID,
		manager:    m,
		logger:     logger,
		ctx:        ctx,
	}
	r.unsubscribe = m.Subscribe(r.handle)
	return r, nil
}

// Close stops recording.
func (r *Recorder) Close() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) handle(ev history.Event) {
	var err error
	switch ev.Type {
	case history.EventEntryCompleted:
		if ev.Entry == nil {
			return
		}
		_, err = r.store.AppendEntry(r.ctx, r.documentID, ev.Index, *ev.Entry)
	case history.EventDocumentReplaced:
		err = r.store.ReplaceDocument(r.ctx, r.documentID, r.manager.ChangeDocument().Snapshot())
	default:
		return
	}
	if err != nil {
		r.logger.Error("recording history failed",
			"document_id", r.documentID,
			"event", string(ev.Type),
			"history_entry_id", ev.HistoryEntryID,
			"error", err,
		)
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}
}
