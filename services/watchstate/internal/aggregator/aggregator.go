// Package aggregator builds the continue-watching view: the most
// recently touched in-progress items per partition, enriched with
// provider metadata.
//
// Partial-failure policy, applied uniformly: an item whose metadata
// fetch fails is returned with empty metadata fields; a partition whose
// store scan fails is omitted while the remaining partitions return.
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/example/watch-platform/services/watchstate/internal/metadata"
	"github.com/example/watch-platform/services/watchstate/internal/store"
	"github.com/example/watch-platform/services/watchstate/internal/watch"
)

const (
	// DefaultLimit is the per-partition item cap when the caller does
	// not supply one.
	DefaultLimit = 5
	// maxEnrichConcurrency bounds concurrent metadata calls per partition.
	maxEnrichConcurrency = 10
)

// Entry is one continue-watching row.
type Entry struct {
	ItemID     string      `json:"item_id"`
	Title      string      `json:"title"`
	ArtworkRef string      `json:"artwork_ref"`
	Year       int         `json:"year,omitempty"`
	State      watch.State `json:"state"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Scanner is the slice of the store the aggregator needs.
type Scanner interface {
	ScanPartition(ctx context.Context, userID string, itemType watch.ItemType, limit int) ([]store.ScanEntry, error)
}

type Aggregator struct {
	scanner   Scanner
	providers map[watch.ItemType]metadata.Provider
	log       *zap.Logger
}

func New(scanner Scanner, providers map[watch.ItemType]metadata.Provider, log *zap.Logger) *Aggregator {
	return &Aggregator{scanner: scanner, providers: providers, log: log}
}

// ContinueWatching returns up to limit in-progress items for each of the
// four partitions, all partitions scanned and enriched concurrently.
// The only error it returns is context cancellation; everything else is
// absorbed by the partial-failure policy.
func (a *Aggregator) ContinueWatching(ctx context.Context, userID string, limit int) (map[watch.ItemType][]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	out := make(map[watch.ItemType][]Entry, 4)
	var mu sync.Mutex

	p := pool.New().WithContext(ctx)
	for _, part := range watch.Partitions() {
		p.Go(func(ctx context.Context) error {
			entries, err := a.partition(ctx, userID, part, limit)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.log.Warn("continue watching: partition scan failed",
					zap.String("item_type", string(part)), zap.Error(err))
				return nil
			}
			mu.Lock()
			out[part] = entries
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// partition scans one partition and enriches each item. Enrichment
// results land at their scan index, so recency order survives
// out-of-order completion.
func (a *Aggregator) partition(ctx context.Context, userID string, itemType watch.ItemType, limit int) ([]Entry, error) {
	scanned, err := a.scanner.ScanPartition(ctx, userID, itemType, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(scanned))
	provider := a.providers[itemType]

	ep := pool.New().WithMaxGoroutines(maxEnrichConcurrency)
	for i, se := range scanned {
		entries[i] = Entry{ItemID: se.ItemID, State: watch.StateWatching, UpdatedAt: se.UpdatedAt}
		if provider == nil {
			continue
		}
		ep.Go(func() {
			item, err := provider.Fetch(ctx, se.ItemID)
			if err != nil {
				a.log.Warn("continue watching: metadata fetch failed",
					zap.String("item_type", string(itemType)),
					zap.String("item_id", se.ItemID),
					zap.Error(err))
				return
			}
			entries[i].Title = item.Title
			entries[i].ArtworkRef = item.ArtworkRef
			entries[i].Year = item.Year
		})
	}
	ep.Wait()

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
