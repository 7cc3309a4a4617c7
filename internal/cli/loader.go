package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tilehist/internal/history"
	"github.com/roach88/tilehist/internal/ir"
	"github.com/roach88/tilehist/internal/schema"
	"github.com/roach88/tilehist/internal/store"
	"github.com/roach88/tilehist/internal/tile"
)

// Error codes for CLI responses.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeReadFailed   = "E002" // File read error
	ErrCodeParseFailed  = "E003" // JSON or YAML parse error
	ErrCodeInvalid      = "E004" // Schema validation failed
	ErrCodeNotFound     = "E005" // Path or document not found
	ErrCodeStoreFailed  = "E006" // Database error
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeReplayFailed = "E008" // Replay or navigation failed
	ErrCodeScenario     = "E009" // Scenario failed
)

// LoadError represents an error that occurred while loading a document.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// isYAML reports whether path should be read and written as YAML.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// yamlToJSON converts a YAML document into JSON text.
func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// jsonToYAML converts JSON text into a YAML document.
func jsonToYAML(data []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readDocumentJSON reads a snapshot file and returns it as JSON text.
// Files ending in .yaml or .yml are converted.
func readDocumentJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading %s", path), Err: err}
	}
	if isYAML(path) {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing %s", path), Err: err}
		}
	}
	return data, nil
}

// loadSnapshotFile reads, validates and decodes a snapshot file. Schema
// failures come back as a *schema.ValidationError wrapped in a LoadError.
func loadSnapshotFile(path string) (ir.ChangeDocumentSnapshot, error) {
	data, err := readDocumentJSON(path)
	if err != nil {
		return ir.ChangeDocumentSnapshot{}, err
	}
	if err := schema.Validate(data); err != nil {
		return ir.ChangeDocumentSnapshot{}, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("invalid document %s", path), Err: err}
	}
	var snap ir.ChangeDocumentSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return ir.ChangeDocumentSnapshot{}, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("decoding %s", path), Err: err}
	}
	return snap, nil
}

// openStore opens the database at path. Unlike store.Open it refuses to
// create a new file, so a mistyped --db is reported instead of silently
// producing an empty database.
func openStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("database not found: %s", path), Err: err}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStoreFailed, Message: "opening database", Err: err}
	}
	return st, nil
}

// loadStoredDocument reads a document from the database.
func loadStoredDocument(ctx context.Context, st *store.Store, documentID string) (ir.ChangeDocumentSnapshot, error) {
	snap, err := st.LoadDocument(ctx, documentID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		return snap, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("document not found: %s", documentID), Err: err}
	}
	if err != nil {
		return snap, &LoadError{Code: ErrCodeStoreFailed, Message: fmt.Sprintf("loading document %s", documentID), Err: err}
	}
	return snap, nil
}

// Session is a tree manager with one empty tile per tree referenced by a
// document, brought to the end of the document's history by replay.
type Session struct {
	Manager *history.TreeManager
	Tiles   []*tile.Tile
}

// TileState is one tile's state in command output.
type TileState struct {
	ID    string          `json:"id"`
	State json.RawMessage `json:"state"`
}

// newSession builds a session for snap. treeIDs lists the tiles to create;
// every tree the document references must be among them.
func newSession(ctx context.Context, snap ir.ChangeDocumentSnapshot, treeIDs []string, logger *slog.Logger) (*Session, error) {
	m := history.NewTreeManager(history.WithLogger(logger))
	s := &Session{Manager: m}
	for _, id := range treeIDs {
		t, err := tile.New(id, m, tile.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		m.PutTree(id, t)
		s.Tiles = append(s.Tiles, t)
	}

	m.ReplaceChangeDocument(history.ChangeDocumentFromSnapshot(snap))
	if err := m.ReplayHistoryToTrees(ctx); err != nil {
		return nil, &LoadError{Code: ErrCodeReplayFailed, Message: "replaying history", Err: err}
	}
	return s, nil
}

// openSession loads documentID from the database at dbPath and replays it.
func openSession(ctx context.Context, dbPath, documentID string, logger *slog.Logger) (*Session, ir.ChangeDocumentSnapshot, error) {
	st, err := openStore(dbPath)
	if err != nil {
		return nil, ir.ChangeDocumentSnapshot{}, err
	}
	defer st.Close()

	snap, err := loadStoredDocument(ctx, st, documentID)
	if err != nil {
		return nil, snap, err
	}
	treeIDs, err := st.TreeIDs(ctx, documentID)
	if err != nil {
		return nil, snap, &LoadError{Code: ErrCodeStoreFailed, Message: "listing trees", Err: err}
	}
	s, err := newSession(ctx, snap, treeIDs, logger)
	if err != nil {
		return nil, snap, err
	}
	return s, snap, nil
}

// States returns every tile's state in canonical JSON, in tile order.
func (s *Session) States() ([]TileState, error) {
	out := make([]TileState, 0, len(s.Tiles))
	for _, t := range s.Tiles {
		canonical, err := ir.CanonicalizeJSON(t.State())
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", t.ID(), err)
		}
		out = append(out, TileState{ID: t.ID(), State: canonical})
	}
	return out, nil
}
