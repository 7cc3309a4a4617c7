// Package harness runs history scenarios against real tiles and a real
// tree manager.
//
// The harness builds the tiles a scenario declares, executes its steps,
// records the change document into an in-memory SQLite store and evaluates
// assertions on the final state.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	tiles:
//	  - id: T1
//	    state: { count: 0 }
//	steps:
//	  - do: edit
//	    tile: T1
//	    action: increment
//	    patches:
//	      - { op: replace, path: /count, value: 1 }
//	  - do: undo
//	assertions:
//	  - type: tile_value
//	    tile: T1
//	    path: /count
//	    value: 0
//	  - type: history_length
//	    count: 2
//
// # Step Types
//
//   - edit: apply patches to a tile as a new history entry
//   - update: replace a tile's state; the difference becomes the entry
//   - share: write a shared model into a tile, propagating it to the others
//   - undo, redo: move through the undo store
//   - goto: navigate to a history index
//   - replay: reset every tile and replay the whole document
//
// # Assertion Types
//
//   - tile_value: the JSON value at path in a tile equals value
//   - tile_absent: nothing exists at path in a tile
//   - history_length: number of entries in the change document
//   - undo_levels, redo_levels: undo store depth in each direction
//   - history_index: the manager's history cursor
//
// # Deterministic Testing
//
// Every id comes from testutil.SequenceGenerator: the manager uses
// "entry-N" and "exchange-N", each tile uses "<tile id>-N". Two runs of the
// same scenario produce byte-identical change documents, which RunWithGolden
// compares against testdata/golden.
package harness
