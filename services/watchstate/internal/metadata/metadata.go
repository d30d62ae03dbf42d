// Package metadata is the port to external catalog metadata providers.
package metadata

import (
	"context"
	"errors"
)

// Item is the display metadata for one catalog item.
type Item struct {
	Title      string `json:"title"`
	ArtworkRef string `json:"artwork_ref"`
	Year       int    `json:"year,omitempty"`
}

// ErrNotFound indicates the provider has no item for the id.
var ErrNotFound = errors.New("metadata: item not found")

// Provider fetches display metadata for one item id within a partition.
type Provider interface {
	Fetch(ctx context.Context, itemID string) (Item, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, itemID string) (Item, error)

func (f ProviderFunc) Fetch(ctx context.Context, itemID string) (Item, error) {
	return f(ctx, itemID)
}
