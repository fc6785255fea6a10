// Package patch applies batches of field-path changes to document content,
// all-or-nothing.
package patch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kilupskalvis/sitedoc/internal/fieldpath"
	"github.com/kilupskalvis/sitedoc/internal/models"
)

// ErrInvalidValue is returned when a change value cannot be represented as JSON.
var ErrInvalidValue = errors.New("invalid value")

// Op is a compiled change: a parsed path and a JSON-normalized value.
type Op struct {
	Path  fieldpath.Path
	Value any
}

// Compile parses every path and normalizes every value. It touches no document,
// so callers can reject malformed requests before taking any lock.
func Compile(changes []models.Change) ([]Op, error) {
	ops := make([]Op, 0, len(changes))
	for i, ch := range changes {
		p, err := fieldpath.Parse(ch.Field)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		v, err := normalize(ch.Value)
		if err != nil {
			return nil, fmt.Errorf("change %d (%s): %w", i, ch.Field, err)
		}
		ops = append(ops, Op{Path: p, Value: v})
	}
	return ops, nil
}

// Apply returns a new content tree with ops applied in order. content is never
// modified; on error no partial result is returned.
func Apply(content map[string]any, ops []Op) (map[string]any, error) {
	work := models.CloneContent(content)
	for i, op := range ops {
		// Each op gets its own copy of the value so two ops sharing a value
		// cannot alias into the same subtree.
		if err := op.Path.Set(work, models.CloneValue(op.Value)); err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
	}
	return work, nil
}

// ApplyChanges compiles and applies in one step.
func ApplyChanges(content map[string]any, changes []models.Change) (map[string]any, error) {
	ops, err := Compile(changes)
	if err != nil {
		return nil, err
	}
	return Apply(content, ops)
}

// normalize round-trips v through JSON so stored content only holds JSON types
// and never aliases caller memory.
func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return out, nil
}

// NormalizeContent returns a JSON-normalized deep copy of a whole content tree.
func NormalizeContent(content map[string]any) (map[string]any, error) {
	if content == nil {
		return map[string]any{}, nil
	}
	v, err := normalize(content)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: content must be an object", ErrInvalidValue)
	}
	return m, nil
}
