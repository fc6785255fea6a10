package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/models"
	bolt "go.etcd.io/bbolt"
)

// Bucket names. Checkpoints live in one nested bucket per site keyed by
// big-endian sequence; checkpoint_ids maps checkpoint ID -> sequence.
var (
	bucketDocuments     = []byte("documents")
	bucketCheckpoints   = []byte("checkpoints")
	bucketCheckpointIDs = []byte("checkpoint_ids")
)

// BboltStore implements Backend using bbolt.
type BboltStore struct {
	db *bolt.DB
}

// NewBboltStore opens or creates a bbolt database at the given path.
func NewBboltStore(dbPath string) (*BboltStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDocuments, bucketCheckpoints, bucketCheckpointIDs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BboltStore{db: db}, nil
}

// Close releases the bbolt database.
func (s *BboltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetDocument retrieves the live document for a site. Returns ErrNotFound if missing.
func (s *BboltStore) GetDocument(_ context.Context, siteID string) (*models.Document, error) {
	var doc *models.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(siteID))
		if data == nil {
			return ErrNotFound
		}
		doc = &models.Document{}
		return json.Unmarshal(data, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateDocument stores a new document. Returns ErrConflict if the site already has one.
func (s *BboltStore) CreateDocument(_ context.Context, doc *models.Document) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if b.Get([]byte(doc.SiteID)) != nil {
			return ErrConflict
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		return b.Put([]byte(doc.SiteID), data)
	})
}

// CommitDocument performs a compare-and-swap on the document version, appends
// the checkpoint, prunes old checkpoints and stores the new document, all in
// one transaction.
func (s *BboltStore) CommitDocument(_ context.Context, c *Commit) (*CommitResult, error) {
	if err := validateCommit(c); err != nil {
		return nil, err
	}

	result := &CommitResult{}
	err := s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		siteKey := []byte(c.Document.SiteID)

		data := docs.Get(siteKey)
		if data == nil {
			return ErrNotFound
		}
		var current models.Document
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("unmarshal document: %w", err)
		}
		if current.Version != c.ExpectedVersion {
			return ErrConflict
		}

		cps, err := tx.Bucket(bucketCheckpoints).CreateBucketIfNotExists(siteKey)
		if err != nil {
			return fmt.Errorf("create checkpoint bucket: %w", err)
		}
		ids, err := tx.Bucket(bucketCheckpointIDs).CreateBucketIfNotExists(siteKey)
		if err != nil {
			return fmt.Errorf("create checkpoint id bucket: %w", err)
		}

		cp := *c.Checkpoint
		if _, last := cps.Cursor().Last(); last != nil {
			var prev models.Checkpoint
			if err := json.Unmarshal(last, &prev); err != nil {
				return fmt.Errorf("unmarshal checkpoint: %w", err)
			}
			cp.Timestamp = nextTimestamp(cp.Timestamp, prev.Timestamp)
		}

		seq, err := cps.NextSequence()
		if err != nil {
			return fmt.Errorf("next checkpoint sequence: %w", err)
		}
		cp.Seq = seq
		if ids.Get([]byte(cp.ID)) != nil {
			return fmt.Errorf("checkpoint id %s already exists", cp.ID)
		}

		cpData, err := json.Marshal(&cp)
		if err != nil {
			return fmt.Errorf("marshal checkpoint: %w", err)
		}
		key := seqKey(seq)
		if err := cps.Put(key, cpData); err != nil {
			return fmt.Errorf("store checkpoint: %w", err)
		}
		if err := ids.Put([]byte(cp.ID), key); err != nil {
			return fmt.Errorf("store checkpoint id: %w", err)
		}

		if c.Retain > 0 {
			pruned, err := pruneBucket(cps, ids, c.Retain)
			if err != nil {
				return err
			}
			result.Pruned = pruned
		}

		docData, err := json.Marshal(c.Document)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		if err := docs.Put(siteKey, docData); err != nil {
			return fmt.Errorf("store document: %w", err)
		}

		result.Checkpoint = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListSites returns all site IDs sorted by name.
func (s *BboltStore) ListSites(_ context.Context) ([]string, error) {
	var sites []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, _ []byte) error {
			sites = append(sites, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(sites)
	return sites, nil
}

// GetCheckpoint retrieves a checkpoint by ID. Returns ErrNotFound if missing or pruned.
func (s *BboltStore) GetCheckpoint(_ context.Context, siteID, id string) (*models.Checkpoint, error) {
	var cp *models.Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		ids := tx.Bucket(bucketCheckpointIDs).Bucket([]byte(siteID))
		cps := tx.Bucket(bucketCheckpoints).Bucket([]byte(siteID))
		if ids == nil || cps == nil {
			return ErrNotFound
		}
		key := ids.Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		var err error
		cp, err = getCheckpoint(cps, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// GetCheckpointBySeq retrieves a checkpoint by sequence number.
func (s *BboltStore) GetCheckpointBySeq(_ context.Context, siteID string, seq uint64) (*models.Checkpoint, error) {
	var cp *models.Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		cps := tx.Bucket(bucketCheckpoints).Bucket([]byte(siteID))
		if cps == nil {
			return ErrNotFound
		}
		var err error
		cp, err = getCheckpoint(cps, seqKey(seq))
		return err
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// ListCheckpoints returns checkpoints newest first by walking the sequence keys backwards.
func (s *BboltStore) ListCheckpoints(_ context.Context, siteID string, limit, offset int) ([]*models.Checkpoint, error) {
	checkpoints := []*models.Checkpoint{}
	err := s.db.View(func(tx *bolt.Tx) error {
		cps := tx.Bucket(bucketCheckpoints).Bucket([]byte(siteID))
		if cps == nil {
			return nil
		}

		skipped := 0
		c := cps.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && len(checkpoints) >= limit {
				break
			}
			var cp models.Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				return fmt.Errorf("unmarshal checkpoint: %w", err)
			}
			checkpoints = append(checkpoints, &cp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return checkpoints, nil
}

// CountCheckpoints returns the number of retained checkpoints for a site.
func (s *BboltStore) CountCheckpoints(_ context.Context, siteID string) (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		cps := tx.Bucket(bucketCheckpoints).Bucket([]byte(siteID))
		if cps == nil {
			return nil
		}
		count = cps.Stats().KeyN
		return nil
	})
	return count, err
}

// PruneCheckpoints deletes the oldest checkpoints until at most retain remain.
func (s *BboltStore) PruneCheckpoints(_ context.Context, siteID string, retain int) (int, error) {
	if retain < 1 {
		return 0, fmt.Errorf("retain must be at least 1, got %d", retain)
	}

	var pruned int
	err := s.db.Update(func(tx *bolt.Tx) error {
		cps := tx.Bucket(bucketCheckpoints).Bucket([]byte(siteID))
		ids := tx.Bucket(bucketCheckpointIDs).Bucket([]byte(siteID))
		if cps == nil || ids == nil {
			return nil
		}
		var err error
		pruned, err = pruneBucket(cps, ids, retain)
		return err
	})
	return pruned, err
}

// pruneBucket removes the lowest sequence keys until retain remain.
func pruneBucket(cps, ids *bolt.Bucket, retain int) (int, error) {
	var keys [][]byte
	c := cps.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	excess := len(keys) - retain
	if excess <= 0 {
		return 0, nil
	}

	for _, k := range keys[:excess] {
		var cp models.Checkpoint
		if err := json.Unmarshal(cps.Get(k), &cp); err != nil {
			return 0, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
		if err := ids.Delete([]byte(cp.ID)); err != nil {
			return 0, fmt.Errorf("delete checkpoint id: %w", err)
		}
		if err := cps.Delete(k); err != nil {
			return 0, fmt.Errorf("delete checkpoint: %w", err)
		}
	}
	return excess, nil
}

func getCheckpoint(cps *bolt.Bucket, key []byte) (*models.Checkpoint, error) {
	data := cps.Get(key)
	if data == nil {
		return nil, ErrNotFound
	}
	cp := &models.Checkpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
