package tile

import (
	"fmt"
	"strconv"
	"strings"
)

const sharedRoot = "shared"

// parsePointer splits an RFC 6901 pointer into unescaped reference tokens.
// The empty pointer addresses the whole document and has no tokens.
func parsePointer(pointer string) ([]string, error) {
	if pointer == "" {
		return nil, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("json pointer %q must start with /", pointer)
	}
	tokens := strings.Split(pointer[1:], "/")
	for i, tok := range tokens {
		tokens[i] = unescapeToken(tok)
	}
	return tokens, nil
}

func unescapeToken(tok string) string {
	if !strings.Contains(tok, "~") {
		return tok
	}
	return strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
}

func escapeToken(tok string) string {
	return strings.ReplaceAll(strings.ReplaceAll(tok, "~", "~0"), "/", "~1")
}

func joinPointer(tokens []string) string {
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteByte('/')
		b.WriteString(escapeToken(tok))
	}
	return b.String()
}

// lookup resolves tokens against a decoded JSON value.
func lookup(doc any, tokens []string) (any, bool) {
	cur := doc
	for _, tok := range tokens {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[tok]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, ok := arrayIndex(tok, len(node))
			if !ok || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// arrayIndex parses an array token. "-" means one past the last element.
func arrayIndex(tok string, length int) (int, bool) {
	if tok == "-" {
		return length, true
	}
	if tok == "" || (len(tok) > 1 && tok[0] == '0') {
		return 0, false
	}
	i, err := strconv.Atoi(tok)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// sharedModelID returns the shared model a pointer falls under, if any.
func sharedModelID(pointer string) (string, bool) {
	tokens, err := parsePointer(pointer)
	if err != nil || len(tokens) < 2 || tokens[0] != sharedRoot {
		return "", false
	}
	return tokens[1], true
}

func sharedPointer(id string) string {
	return joinPointer([]string{sharedRoot, id})
}
