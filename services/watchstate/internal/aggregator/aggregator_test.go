package aggregator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/watch-platform/services/watchstate/internal/metadata"
	"github.com/example/watch-platform/services/watchstate/internal/store"
	"github.com/example/watch-platform/services/watchstate/internal/watch"
)

type scannerFunc func(ctx context.Context, userID string, itemType watch.ItemType, limit int) ([]store.ScanEntry, error)

func (f scannerFunc) ScanPartition(ctx context.Context, userID string, itemType watch.ItemType, limit int) ([]store.ScanEntry, error) {
	return f(ctx, userID, itemType, limit)
}

func titledProvider() metadata.Provider {
	return metadata.ProviderFunc(func(_ context.Context, itemID string) (metadata.Item, error) {
		return metadata.Item{Title: "title-" + itemID, ArtworkRef: "/art-" + itemID, Year: 2020}, nil
	})
}

func allProviders(p metadata.Provider) map[watch.ItemType]metadata.Provider {
	out := make(map[watch.ItemType]metadata.Provider, 4)
	for _, t := range watch.Partitions() {
		out[t] = p
	}
	return out
}

func entriesAt(base time.Time, ids ...string) []store.ScanEntry {
	out := make([]store.ScanEntry, len(ids))
	for i, id := range ids {
		out[i] = store.ScanEntry{ItemID: id, UpdatedAt: base.Add(-time.Duration(i) * time.Minute)}
	}
	return out
}

func TestContinueWatching_EnrichesAllPartitions(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	scanner := scannerFunc(func(_ context.Context, _ string, itemType watch.ItemType, _ int) ([]store.ScanEntry, error) {
		return entriesAt(base, string(itemType)+"-1"), nil
	})

	a := New(scanner, allProviders(titledProvider()), zap.NewNop())
	got, err := a.ContinueWatching(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 partitions, got %d", len(got))
	}
	for _, part := range watch.Partitions() {
		items := got[part]
		if len(items) != 1 {
			t.Fatalf("partition %s: expected 1 item, got %d", part, len(items))
		}
		e := items[0]
		if e.Title != "title-"+e.ItemID || e.ArtworkRef != "/art-"+e.ItemID {
			t.Fatalf("partition %s: item not enriched: %+v", part, e)
		}
		if e.State != watch.StateWatching {
			t.Fatalf("partition %s: expected watching state, got %q", part, e.State)
		}
	}
}

func TestContinueWatching_OrderSurvivesSlowEnrichment(t *testing.T) {
	base := time.Now().UTC()
	scanner := scannerFunc(func(_ context.Context, _ string, itemType watch.ItemType, _ int) ([]store.ScanEntry, error) {
		if itemType != watch.TypeCatalogSeries {
			return nil, nil
		}
		return entriesAt(base, "newest", "middle", "oldest"), nil
	})

	// The most recent item resolves slowest, so completion order is the
	// exact reverse of scan order.
	slowFirst := metadata.ProviderFunc(func(_ context.Context, itemID string) (metadata.Item, error) {
		switch itemID {
		case "newest":
			time.Sleep(30 * time.Millisecond)
		case "middle":
			time.Sleep(15 * time.Millisecond)
		}
		return metadata.Item{Title: "title-" + itemID}, nil
	})

	a := New(scanner, allProviders(slowFirst), zap.NewNop())
	got, err := a.ContinueWatching(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	items := got[watch.TypeCatalogSeries]
	want := []string{"newest", "middle", "oldest"}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, id := range want {
		if items[i].ItemID != id {
			t.Fatalf("position %d: expected %q, got %q", i, id, items[i].ItemID)
		}
		if items[i].Title != "title-"+id {
			t.Fatalf("position %d: not enriched: %+v", i, items[i])
		}
	}
}

func TestContinueWatching_ProviderOutageKeepsOtherPartitions(t *testing.T) {
	base := time.Now().UTC()
	scanner := scannerFunc(func(_ context.Context, _ string, itemType watch.ItemType, _ int) ([]store.ScanEntry, error) {
		return entriesAt(base, string(itemType)+"-1"), nil
	})

	providers := allProviders(titledProvider())
	providers[watch.TypeAnimeSeries] = metadata.ProviderFunc(func(context.Context, string) (metadata.Item, error) {
		return metadata.Item{}, errors.New("anilist is down")
	})

	a := New(scanner, providers, zap.NewNop())
	got, err := a.ContinueWatching(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	// Failed enrichment keeps the item, with empty metadata fields.
	anime := got[watch.TypeAnimeSeries]
	if len(anime) != 1 {
		t.Fatalf("expected anime item to survive provider outage, got %v", anime)
	}
	if anime[0].Title != "" || anime[0].ArtworkRef != "" {
		t.Fatalf("expected empty metadata on failure, got %+v", anime[0])
	}
	if anime[0].ItemID != "anime-series-1" || anime[0].State != watch.StateWatching {
		t.Fatalf("expected record fields intact, got %+v", anime[0])
	}

	// Healthy partitions come back fully enriched.
	for _, part := range []watch.ItemType{watch.TypeCatalogMovie, watch.TypeCatalogSeries, watch.TypeAnimeMovie} {
		items := got[part]
		if len(items) != 1 || items[0].Title == "" {
			t.Fatalf("partition %s: expected enriched result, got %v", part, items)
		}
	}
}

func TestContinueWatching_ScanFailureOmitsOnlyThatPartition(t *testing.T) {
	base := time.Now().UTC()
	scanner := scannerFunc(func(_ context.Context, _ string, itemType watch.ItemType, _ int) ([]store.ScanEntry, error) {
		if itemType == watch.TypeAnimeMovie {
			return nil, fmt.Errorf("store unreachable")
		}
		return entriesAt(base, "x"), nil
	})

	a := New(scanner, allProviders(titledProvider()), zap.NewNop())
	got, err := a.ContinueWatching(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if _, present := got[watch.TypeAnimeMovie]; present {
		t.Fatal("expected failed partition to be absent")
	}
	if len(got) != 3 {
		t.Fatalf("expected the 3 healthy partitions, got %d", len(got))
	}
}

func TestContinueWatching_DefaultLimit(t *testing.T) {
	var gotLimit int
	scanner := scannerFunc(func(_ context.Context, _ string, _ watch.ItemType, limit int) ([]store.ScanEntry, error) {
		gotLimit = limit
		return nil, nil
	})

	a := New(scanner, nil, zap.NewNop())
	if _, err := a.ContinueWatching(context.Background(), "u1", 0); err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if gotLimit != DefaultLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultLimit, gotLimit)
	}
}

func TestContinueWatching_EmptyPartitionIsEmptySlice(t *testing.T) {
	scanner := scannerFunc(func(context.Context, string, watch.ItemType, int) ([]store.ScanEntry, error) {
		return nil, nil
	})
	a := New(scanner, nil, zap.NewNop())
	got, err := a.ContinueWatching(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	for _, part := range watch.Partitions() {
		items, present := got[part]
		if !present || items == nil {
			t.Fatalf("partition %s: expected empty slice, got %v (present=%v)", part, items, present)
		}
	}
}

func TestContinueWatching_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scanner := scannerFunc(func(ctx context.Context, _ string, _ watch.ItemType, _ int) ([]store.ScanEntry, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	a := New(scanner, nil, zap.NewNop())
	if _, err := a.ContinueWatching(ctx, "u1", 5); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
