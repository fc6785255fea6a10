package models

import (
	"strconv"
	"time"
)

// TagBeforeRestore marks the safety snapshot taken right before a restore.
const TagBeforeRestore = "before-restore"

// Checkpoint is an immutable snapshot of a document's content.
type Checkpoint struct {
	ID           string         `json:"id"`
	Seq          uint64         `json:"seq"`
	SiteID       string         `json:"site_id"`
	Version      int64          `json:"version"` // version of the captured content
	Timestamp    time.Time      `json:"timestamp"`
	Content      map[string]any `json:"content"`
	Changes      []Change       `json:"changes,omitempty"`
	Tag          string         `json:"tag,omitempty"`
	RestoredFrom string         `json:"restored_from,omitempty"`
}

// ShortID returns the last 8 characters of the ID, the random part of a ULID.
func (c *Checkpoint) ShortID() string {
	if len(c.ID) > 8 {
		return c.ID[len(c.ID)-8:]
	}
	return c.ID
}

// IsBeforeRestore reports whether the checkpoint was taken by a restore.
func (c *Checkpoint) IsBeforeRestore() bool {
	return c.Tag == TagBeforeRestore
}

// SeqString returns the sequence number in decimal.
func (c *Checkpoint) SeqString() string {
	return strconv.FormatUint(c.Seq, 10)
}
