package tile

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tilehist/internal/ir"
)

// invert returns the patch that undoes p when applied to the state p
// produced from doc. doc is the decoded state p is about to be applied to.
func invert(doc any, p ir.Patch) (ir.Patch, error) {
	tokens, err := parsePointer(p.Path)
	if err != nil {
		return ir.Patch{}, err
	}
	if len(tokens) == 0 && p.Op != ir.OpTest {
		return ir.Patch{}, fmt.Errorf("%s on document root is not supported", p.Op)
	}

	switch p.Op {
	case ir.OpAdd:
		parentTokens := tokens[:len(tokens)-1]
		last := tokens[len(tokens)-1]
		parent, ok := lookup(doc, parentTokens)
		if !ok {
			return ir.Patch{}, fmt.Errorf("add %s: parent does not exist", p.Path)
		}
		switch node := parent.(type) {
		case []any:
			i, ok := arrayIndex(last, len(node))
			if !ok || i > len(node) {
				return ir.Patch{}, fmt.Errorf("add %s: bad array index", p.Path)
			}
			path := joinPointer(append(append([]string(nil), parentTokens...), fmt.Sprint(i)))
			return ir.Patch{Op: ir.OpRemove, Path: path}, nil
		case map[string]any:
			if old, exists := node[last]; exists {
				return valuePatch(ir.OpReplace, p.Path, old)
			}
			return ir.Patch{Op: ir.OpRemove, Path: p.Path}, nil
		default:
			return ir.Patch{}, fmt.Errorf("add %s: parent is not a container", p.Path)
		}

	case ir.OpRemove, ir.OpReplace:
		old, ok := lookup(doc, tokens)
		if !ok {
			return ir.Patch{}, fmt.Errorf("%s %s: path does not exist", p.Op, p.Path)
		}
		if p.Op == ir.OpRemove {
			return valuePatch(ir.OpAdd, p.Path, old)
		}
		return valuePatch(ir.OpReplace, p.Path, old)

	case ir.OpTest:
		return p.Clone(), nil
	}
	return ir.Patch{}, fmt.Errorf("op %q cannot be inverted", p.Op)
}

func valuePatch(op, path string, v any) (ir.Patch, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return ir.Patch{}, fmt.Errorf("%s %s: %w", op, path, err)
	}
	return ir.Patch{Op: op, Path: path, Value: raw}, nil
}
