package models

// EditSession is the per-request view of a document for one caller.
type EditSession struct {
	SiteID         string `json:"subdomain"`
	CurrentVersion int64  `json:"currentVersion"`
	CanEdit        bool   `json:"canEdit"`
}

// WriteResult is returned by a successful patch.
type WriteResult struct {
	Version      int64  `json:"version"`
	CheckpointID string `json:"checkpoint_id"`
}

// RestoreResult is returned by a successful restore.
type RestoreResult struct {
	Version      int64          `json:"version"`
	CheckpointID string         `json:"checkpoint_id"` // the restored checkpoint
	BackupID     string         `json:"backup_id"`     // the before-restore checkpoint
	Content      map[string]any `json:"content"`
}
