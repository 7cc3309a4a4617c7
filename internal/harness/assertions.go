package harness

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/tilehist/internal/ir"
	"github.com/roach88/tilehist/internal/tile"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext provides the live tiles for value assertions.
type AssertionContext struct {
	Tiles map[string]*tile.Tile
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertTileValue:
		return assertTileValue(actx, a)
	case AssertTileAbsent:
		return assertTileAbsent(actx, a)
	case AssertHistoryLength:
		return assertCount(a.Type, "entries", a.Count, len(result.Document.Entries))
	case AssertUndoLevels:
		return assertCount(a.Type, "undo levels", a.Count, result.UndoLevels)
	case AssertRedoLevels:
		return assertCount(a.Type, "redo levels", a.Count, result.RedoLevels)
	case AssertHistoryIndex:
		return assertCount(a.Type, "history index", a.Count, result.HistoryIndex)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertTileValue compares canonical forms, so key order and number
// formatting do not matter.
func assertTileValue(actx *AssertionContext, a Assertion) error {
	t, ok := actx.Tiles[a.Tile]
	if !ok {
		return fmt.Errorf("unknown tile %q", a.Tile)
	}
	want, err := ir.CanonicalizeValue(a.Value)
	if err != nil {
		return fmt.Errorf("expected value: %w", err)
	}

	raw, ok := t.Get(a.Path)
	if !ok {
		return &AssertionError{
			Type:     AssertTileValue,
			Expected: fmt.Sprintf("%s%s = %s", a.Tile, a.Path, want),
			Actual:   "no value",
		}
	}
	got, err := ir.CanonicalizeJSON(raw)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) {
		return &AssertionError{
			Type:     AssertTileValue,
			Expected: fmt.Sprintf("%s%s = %s", a.Tile, a.Path, want),
			Actual:   string(got),
		}
	}
	return nil
}

func assertTileAbsent(actx *AssertionContext, a Assertion) error {
	t, ok := actx.Tiles[a.Tile]
	if !ok {
		return fmt.Errorf("unknown tile %q", a.Tile)
	}
	if raw, ok := t.Get(a.Path); ok {
		return &AssertionError{
			Type:     AssertTileAbsent,
			Expected: fmt.Sprintf("nothing at %s%s", a.Tile, a.Path),
			Actual:   string(raw),
		}
	}
	return nil
}

func assertCount(typ, what string, want, got int) error {
	if want != got {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%d %s", want, what),
			Actual:   fmt.Sprintf("%d %s", got, what),
		}
	}
	return nil
}
