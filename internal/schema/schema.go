// Package schema validates change document snapshots against an embedded
// CUE schema.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/tilehist/internal/ir"
)

//go:embed history.cue
var schemaSource string

// ValidationError lists every problem found in a snapshot.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "invalid change document: " + e.Issues[0]
	}
	return fmt.Sprintf("invalid change document: %d issues: %s", len(e.Issues), strings.Join(e.Issues, "; "))
}

// Validate checks JSON change document data. Beyond the CUE schema it
// requires entry ids to be unique.
func Validate(data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("history.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#ChangeDocument"))

	v := ctx.CompileBytes(data, cue.Filename("document.json"))
	if err := v.Err(); err != nil {
		return &ValidationError{Issues: issues(err)}
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Issues: issues(err)}
	}

	var snap ir.ChangeDocumentSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return &ValidationError{Issues: []string{err.Error()}}
	}
	return checkUniqueIDs(snap)
}

// ValidateValue checks an in-memory snapshot.
func ValidateValue(snap ir.ChangeDocumentSnapshot) error {
	if snap.Entries == nil {
		snap.Entries = []ir.HistoryEntrySnapshot{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return Validate(data)
}

func checkUniqueIDs(snap ir.ChangeDocumentSnapshot) error {
	seen := make(map[string]int, len(snap.Entries))
	var problems []string
	for i, e := range snap.Entries {
		if first, ok := seen[e.ID]; ok {
			problems = append(problems, fmt.Sprintf("entries.%d.id: %q already used by entries.%d", i, e.ID, first))
			continue
		}
		seen[e.ID] = i
	}
	if len(problems) > 0 {
		return &ValidationError{Issues: problems}
	}
	return nil
}

func issues(err error) []string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path := e.Path(); len(path) > 0 {
			msg = strings.Join(path, ".") + ": " + msg
		}
		out = append(out, msg)
	}
	return out
}
