// Package fieldpath parses dotted field paths such as "services.items.0.title"
// and resolves them against JSON document trees.
package fieldpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath is matched by every *InvalidPathError.
var ErrInvalidPath = errors.New("invalid path")

// InvalidPathError names the path that failed and why.
type InvalidPathError struct {
	Path    string
	Segment int // zero-based segment index, -1 when the whole path is at fault
	Reason  string
}

func (e *InvalidPathError) Error() string {
	if e.Segment < 0 {
		return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("invalid path %q: segment %d: %s", e.Path, e.Segment, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidPath) work.
func (e *InvalidPathError) Is(target error) bool {
	return target == ErrInvalidPath
}

// Kind distinguishes object properties from array indices.
type Kind int

const (
	Property Kind = iota
	Index
)

// String returns a human-readable name for the kind
func (k Kind) String() string {
	switch k {
	case Property:
		return "property"
	case Index:
		return "index"
	default:
		return "unknown"
	}
}

// Token is one parsed path segment. Key always holds the raw segment text.
type Token struct {
	Kind  Kind
	Key   string
	Index int
}

// Path is a parsed field path.
type Path struct {
	raw    string
	tokens []Token
}

// Parse splits a dotted path into tokens. Digit-only segments become Index tokens.
func Parse(raw string) (Path, error) {
	if raw == "" {
		return Path{}, &InvalidPathError{Path: raw, Segment: -1, Reason: "empty path"}
	}

	segments := strings.Split(raw, ".")
	tokens := make([]Token, 0, len(segments))
	for i, seg := range segments {
		if seg == "" {
			return Path{}, &InvalidPathError{Path: raw, Segment: i, Reason: "empty segment"}
		}
		if isDigits(seg) {
			n, err := strconv.Atoi(seg)
			if err != nil {
				return Path{}, &InvalidPathError{Path: raw, Segment: i, Reason: "array index out of range"}
			}
			tokens = append(tokens, Token{Kind: Index, Key: seg, Index: n})
			continue
		}
		tokens = append(tokens, Token{Kind: Property, Key: seg})
	}

	return Path{raw: raw, tokens: tokens}, nil
}

// MustParse is Parse for constant paths; it panics on error.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original path text.
func (p Path) String() string {
	return p.raw
}

// Tokens returns a copy of the parsed tokens.
func (p Path) Tokens() []Token {
	out := make([]Token, len(p.tokens))
	copy(out, p.tokens)
	return out
}

// Get returns the value at the path.
func (p Path) Get(root map[string]any) (any, error) {
	var cur any = root
	for i, tok := range p.tokens {
		next, ok, err := p.child(cur, tok, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, p.fail(i, fmt.Sprintf("%q does not exist", tok.Key))
		}
		cur = next
	}
	return cur, nil
}

// Set writes value at the path. Missing intermediate objects are created only
// when the following segment is a property; arrays are never created or grown.
// When Set returns an error, root has not been modified.
func (p Path) Set(root map[string]any, value any) error {
	if len(p.tokens) == 0 {
		return p.fail(-1, "empty path")
	}

	// Walk first without writing so a failure leaves root untouched.
	var cur any = root
	create := -1
	for i, tok := range p.tokens[:len(p.tokens)-1] {
		next, ok, err := p.child(cur, tok, i)
		if err != nil {
			return err
		}
		if !ok {
			if p.tokens[i+1].Kind == Index {
				return p.fail(i+1, fmt.Sprintf("cannot index into missing %q", tok.Key))
			}
			for j := i + 1; j < len(p.tokens)-1; j++ {
				if p.tokens[j+1].Kind == Index {
					return p.fail(j+1, fmt.Sprintf("cannot index into missing %q", p.tokens[j].Key))
				}
			}
			create = i
			break
		}
		cur = next
	}

	if create >= 0 {
		obj := cur.(map[string]any)
		for _, tok := range p.tokens[create : len(p.tokens)-1] {
			m := map[string]any{}
			obj[tok.Key] = m
			obj = m
		}
		obj[p.tokens[len(p.tokens)-1].Key] = value
		return nil
	}

	last := len(p.tokens) - 1
	return p.assign(cur, p.tokens[last], last, value)
}

// child looks tok up in container. ok is false when an object lacks the key.
func (p Path) child(container any, tok Token, seg int) (any, bool, error) {
	switch c := container.(type) {
	case map[string]any:
		v, ok := c[tok.Key]
		return v, ok, nil
	case []any:
		if tok.Kind != Index {
			return nil, false, p.fail(seg, fmt.Sprintf("non-numeric array index %q", tok.Key))
		}
		if tok.Index >= len(c) {
			return nil, false, p.fail(seg, fmt.Sprintf("index %d out of bounds (length %d)", tok.Index, len(c)))
		}
		return c[tok.Index], true, nil
	default:
		return nil, false, p.fail(seg, fmt.Sprintf("cannot traverse %s with %q", describe(container), tok.Key))
	}
}

func (p Path) assign(container any, tok Token, seg int, value any) error {
	switch c := container.(type) {
	case map[string]any:
		c[tok.Key] = value
		return nil
	case []any:
		if tok.Kind != Index {
			return p.fail(seg, fmt.Sprintf("non-numeric array index %q", tok.Key))
		}
		if tok.Index >= len(c) {
			return p.fail(seg, fmt.Sprintf("index %d out of bounds (length %d)", tok.Index, len(c)))
		}
		c[tok.Index] = value
		return nil
	default:
		return p.fail(seg, fmt.Sprintf("cannot set %q on %s", tok.Key, describe(container)))
	}
}

func (p Path) fail(seg int, reason string) error {
	return &InvalidPathError{Path: p.raw, Segment: seg, Reason: reason}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
