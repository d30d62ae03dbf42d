package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/watch-platform/services/watchstate/internal/watch"
)

// InMemoryStore is a development and test implementation.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[watch.Key]watch.Record // userID -> key -> record

	now func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]map[watch.Key]watch.Record),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Upsert(_ context.Context, rec watch.Record) (watch.Record, error) {
	if !rec.State.Storable() {
		return watch.Record{}, ErrStateNotStorable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[rec.UserID] == nil {
		s.records[rec.UserID] = make(map[watch.Key]watch.Record)
	}
	rec.UpdatedAt = s.now().UTC()
	s.records[rec.UserID][rec.Key] = rec
	return rec, nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID string, key watch.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records[userID], key)
	return nil
}

func (s *InMemoryStore) LookupBatch(_ context.Context, userID string, keys []watch.Key) (map[watch.Key]watch.State, error) {
	if len(keys) == 0 {
		return map[watch.Key]watch.State{}, nil
	}
	if len(keys) > MaxBatchKeys {
		return nil, ErrBatchTooLarge
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[watch.Key]watch.State, len(keys))
	for _, k := range keys {
		if rec, ok := s.records[userID][k]; ok {
			out[k] = rec.State
		}
	}
	return out, nil
}

func (s *InMemoryStore) ScanPartition(_ context.Context, userID string, itemType watch.ItemType, limit int) ([]ScanEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest record per distinct item id.
	newest := make(map[string]time.Time)
	for k, rec := range s.records[userID] {
		if k.Type != itemType || rec.State != watch.StateWatching {
			continue
		}
		if ts, ok := newest[k.ItemID]; !ok || rec.UpdatedAt.After(ts) {
			newest[k.ItemID] = rec.UpdatedAt
		}
	}

	out := make([]ScanEntry, 0, len(newest))
	for id, ts := range newest {
		out = append(out, ScanEntry{ItemID: id, UpdatedAt: ts})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ItemID > out[j].ItemID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
