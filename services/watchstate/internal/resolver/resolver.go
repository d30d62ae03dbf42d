// Package resolver expands batch state lookups so that every requested
// item descriptor receives an explicit state. Callers never have to
// distinguish "absent from the response" from "not watched".
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/example/watch-platform/services/watchstate/internal/watch"
)

// ID accepts JSON strings or numbers; clients send both.
type ID string

func (v *ID) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		*v = ID(x)
	case float64:
		*v = ID(strconv.FormatInt(int64(x), 10))
	default:
		return fmt.Errorf("item id must be a string or number, got %T", raw)
	}
	return nil
}

// ItemRef is a caller-supplied item descriptor. Season and episode may
// be omitted and default to the 0 sentinel.
type ItemRef struct {
	ItemType string `json:"item_type"`
	ItemID   ID     `json:"item_id"`
	Season   *int   `json:"season_number,omitempty"`
	Episode  *int   `json:"episode_number,omitempty"`
}

// Key normalizes the descriptor into a composite key.
func (r ItemRef) Key() watch.Key {
	k := watch.Key{Type: watch.ItemType(r.ItemType), ItemID: string(r.ItemID)}
	if r.Season != nil {
		k.Season = *r.Season
	}
	if r.Episode != nil {
		k.Episode = *r.Episode
	}
	return k
}

// StateLookup is the slice of the store the resolver needs.
type StateLookup interface {
	LookupBatch(ctx context.Context, userID string, keys []watch.Key) (map[watch.Key]watch.State, error)
}

// Resolver answers batch state queries over a StateLookup.
type Resolver struct {
	Lookup StateLookup
}

// Resolve normalizes and deduplicates the requested descriptors, queries
// the store once, and re-expands the result: every requested key appears
// in the returned map, with not_watched synthesized for absent records.
// Map keys are the canonical string form of the composite key.
func (r *Resolver) Resolve(ctx context.Context, userID string, items []ItemRef) (map[string]watch.State, error) {
	keys := make([]watch.Key, 0, len(items))
	seen := make(map[watch.Key]struct{}, len(items))
	for i, it := range items {
		k := it.Key()
		if err := k.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	out := make(map[string]watch.State, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	states, err := r.Lookup.LookupBatch(ctx, userID, keys)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		st, ok := states[k]
		if !ok {
			st = watch.StateNotWatched
		}
		out[k.String()] = st
	}
	return out, nil
}
