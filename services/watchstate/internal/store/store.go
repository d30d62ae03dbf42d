package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/watch-platform/services/watchstate/internal/watch"
)

// MaxBatchKeys bounds a single LookupBatch call to keep query fan-out
// in check.
const MaxBatchKeys = 100

var (
	ErrBatchTooLarge    = errors.New("too many keys in batch lookup")
	ErrStateNotStorable = errors.New("state cannot be stored")
)

// ScanEntry is one distinct in-progress item from a partition scan.
// UpdatedAt is the greatest updated_at among the item's records.
type ScanEntry struct {
	ItemID    string
	UpdatedAt time.Time
}

// Store defines persistence for per-user watch state. A record exists
// only while its state is watching or watched; not_watched is absence.
type Store interface {
	// Upsert inserts or overwrites the record for rec's key, setting
	// UpdatedAt to commit time. rec.State must be storable.
	Upsert(ctx context.Context, rec watch.Record) (watch.Record, error)
	// Delete removes the record for key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, userID string, key watch.Key) error
	// LookupBatch returns states for the subset of keys that have a
	// stored record; absent keys are simply missing from the map. An
	// empty key list returns an empty map without touching the store.
	LookupBatch(ctx context.Context, userID string, keys []watch.Key) (map[watch.Key]watch.State, error)
	// ScanPartition returns distinct in-progress item ids for one
	// partition, most recently touched first, truncated to limit.
	ScanPartition(ctx context.Context, userID string, itemType watch.ItemType, limit int) ([]ScanEntry, error)
}
