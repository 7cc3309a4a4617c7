package tile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	jsondiff "github.com/snorwin/jsonpatch"

	"github.com/roach88/tilehist/internal/ir"
)

// diff returns patches that turn the current state into newState.
//
// The structural diff is checked by applying it to a copy; if the result
// does not match newState, a per-key diff of the top-level object is used
// instead.
func (t *Tile) diff(newState []byte) ([]ir.Patch, error) {
	modified, err := decode(newState)
	if err != nil {
		return nil, fmt.Errorf("decode new state: %w", err)
	}
	modObj, ok := modified.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("new state must be a JSON object")
	}

	current := t.State()
	cur, err := decode(current)
	if err != nil {
		return nil, err
	}
	curObj := cur.(map[string]any)

	list, err := jsondiff.CreateJSONPatch(modObj, curObj)
	if err != nil {
		return nil, fmt.Errorf("diff state: %w", err)
	}
	patches, err := fromDiff(list)
	if err != nil {
		return nil, err
	}
	if ok, err := reaches(current, patches, newState); err == nil && ok {
		return patches, nil
	}
	return shallowDiff(curObj, modObj)
}

func fromDiff(list jsondiff.JSONPatchList) ([]ir.Patch, error) {
	ops := list.List()
	patches := make([]ir.Patch, 0, len(ops))
	for _, op := range ops {
		p := ir.Patch{Op: op.Operation, Path: op.Path}
		if op.Operation != ir.OpRemove {
			raw, err := json.Marshal(op.Value)
			if err != nil {
				return nil, fmt.Errorf("encode %s %s: %w", op.Operation, op.Path, err)
			}
			p.Value = raw
		}
		patches = append(patches, p)
	}
	return patches, nil
}

// reaches reports whether applying patches to from yields want.
func reaches(from []byte, patches []ir.Patch, want []byte) (bool, error) {
	doc := from
	for _, p := range patches {
		var err error
		if doc, err = applyOne(doc, p); err != nil {
			return false, err
		}
	}
	got, err := ir.CanonicalizeJSON(doc)
	if err != nil {
		return false, err
	}
	expected, err := ir.CanonicalizeJSON(want)
	if err != nil {
		return false, err
	}
	return bytes.Equal(got, expected), nil
}

func shallowDiff(cur, mod map[string]any) ([]ir.Patch, error) {
	keys := make([]string, 0, len(cur)+len(mod))
	for k := range cur {
		keys = append(keys, k)
	}
	for k := range mod {
		if _, ok := cur[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var patches []ir.Patch
	for _, k := range keys {
		path := joinPointer([]string{k})
		oldV, inOld := cur[k]
		newV, inNew := mod[k]
		switch {
		case inOld && !inNew:
			patches = append(patches, ir.Patch{Op: ir.OpRemove, Path: path})
		case !inOld:
			p, err := valuePatch(ir.OpAdd, path, newV)
			if err != nil {
				return nil, err
			}
			patches = append(patches, p)
		default:
			a, err := ir.CanonicalizeValue(oldV)
			if err != nil {
				return nil, err
			}
			b, err := ir.CanonicalizeValue(newV)
			if err != nil {
				return nil, err
			}
			if bytes.Equal(a, b) {
				continue
			}
			p, err := valuePatch(ir.OpReplace, path, newV)
			if err != nil {
				return nil, err
			}
			patches = append(patches, p)
		}
	}
	return patches, nil
}
