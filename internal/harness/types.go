package harness

import (
	"encoding/json"

	"github.com/roach88/tilehist/internal/ir"
)

// StepResult records the outcome of one step.
type StepResult struct {
	Index int    `json:"index"`
	Do    string `json:"do"`
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step behaved as expected and every assertion
	// held.
	Pass bool `json:"pass"`

	// Steps has one entry per executed step.
	Steps []StepResult `json:"steps"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Document is the final change document.
	Document ir.ChangeDocumentSnapshot `json:"document"`

	// Tiles holds each tile's final state.
	Tiles map[string]json.RawMessage `json:"tiles"`

	// HistoryIndex is the final cursor, -1 if undefined.
	HistoryIndex int `json:"history_index"`

	// UndoLevels and RedoLevels are the final undo store depths.
	UndoLevels int `json:"undo_levels"`
	RedoLevels int `json:"redo_levels"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:         true,
		Steps:        []StepResult{},
		Errors:       []string{},
		Tiles:        make(map[string]json.RawMessage),
		HistoryIndex: -1,
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
