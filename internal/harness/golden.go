package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tilehist/internal/ir"
)

// Snapshot is the golden view of a finished scenario.
type Snapshot struct {
	Scenario     string                     `json:"scenario"`
	Document     ir.ChangeDocumentSnapshot  `json:"document"`
	Tiles        map[string]json.RawMessage `json:"tiles"`
	HistoryIndex int                        `json:"history_index"`
}

// NewSnapshot builds the golden view of a result.
func NewSnapshot(scenarioName string, result *Result) Snapshot {
	return Snapshot{
		Scenario:     scenarioName,
		Document:     result.Document,
		Tiles:        result.Tiles,
		HistoryIndex: result.HistoryIndex,
	}
}

// MarshalCanonical encodes the snapshot as RFC 8785 canonical JSON.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.CanonicalizeValue(s)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. A snapshot mismatch fails the
// test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
