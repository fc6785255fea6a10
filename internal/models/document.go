package models

import (
	"encoding/json"
	"time"
)

// InitialVersion is the version a document is created with.
const InitialVersion int64 = 1

// Document is the editable content of one site plus its version and owner.
type Document struct {
	SiteID    string         `json:"site_id"`
	Owner     string         `json:"owner"`
	Version   int64          `json:"version"`
	Content   map[string]any `json:"content"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Content = CloneContent(d.Content)
	return &c
}

// CloneContent deep-copies a JSON content tree.
func CloneContent(content map[string]any) map[string]any {
	if content == nil {
		return map[string]any{}
	}
	return CloneValue(content).(map[string]any)
}

// CloneValue deep-copies a JSON value tree. Scalars are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = CloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = CloneValue(val)
		}
		return s
	default:
		return v
	}
}

// ContentEqual reports whether two content trees encode to the same JSON.
func ContentEqual(a, b map[string]any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
