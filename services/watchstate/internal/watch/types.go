// Package watch defines the value types shared by the watch-state
// subsystem: content-type partitions, watch states, and the composite
// key that identifies a single watch record.
package watch

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ItemType is one of the four content-type partitions. It determines
// which metadata provider applies to an item.
type ItemType string

const (
	TypeCatalogMovie  ItemType = "catalog-movie"
	TypeCatalogSeries ItemType = "catalog-series"
	TypeAnimeMovie    ItemType = "anime-movie"
	TypeAnimeSeries   ItemType = "anime-series"
)

// Partitions returns every item type in a stable order.
func Partitions() []ItemType {
	return []ItemType{TypeCatalogMovie, TypeCatalogSeries, TypeAnimeMovie, TypeAnimeSeries}
}

func (t ItemType) Valid() bool {
	switch t {
	case TypeCatalogMovie, TypeCatalogSeries, TypeAnimeMovie, TypeAnimeSeries:
		return true
	}
	return false
}

// State is a watch state. StateNotWatched is never persisted: it is
// represented by the absence of a record.
type State string

const (
	StateWatching   State = "watching"
	StateWatched    State = "watched"
	StateNotWatched State = "not_watched"
)

func (s State) Valid() bool {
	return s == StateWatching || s == StateWatched || s == StateNotWatched
}

// Storable reports whether s may be written to the store.
func (s State) Storable() bool {
	return s == StateWatching || s == StateWatched
}

// ErrInvalidKey marks key validation failures so handlers can map them
// to a 400 response.
var ErrInvalidKey = errors.New("invalid watch key")

// Key identifies one watch record within a user's state. Season and
// Episode 0 mean "not applicable" (movies, flat episode lists).
// Key is comparable and safe to use as a map key.
type Key struct {
	Type    ItemType
	ItemID  string
	Season  int
	Episode int
}

func (k Key) Validate() error {
	if !k.Type.Valid() {
		return fmt.Errorf("%w: unknown item_type %q", ErrInvalidKey, k.Type)
	}
	if k.ItemID == "" {
		return fmt.Errorf("%w: empty item_id", ErrInvalidKey)
	}
	if k.Season < 0 || k.Episode < 0 {
		return fmt.Errorf("%w: negative season or episode", ErrInvalidKey)
	}
	return nil
}

// String renders the canonical form "type:id[:sN][:eM]". The season and
// episode segments are omitted when they hold the 0 sentinel.
func (k Key) String() string {
	s := string(k.Type) + ":" + k.ItemID
	if k.Season != 0 {
		s += ":s" + strconv.Itoa(k.Season)
	}
	if k.Episode != 0 {
		s += ":e" + strconv.Itoa(k.Episode)
	}
	return s
}

// Record is the persisted watch state for one key. UpdatedAt is set by
// the store at mutation time, never by the caller.
type Record struct {
	UserID    string
	Key       Key
	State     State
	UpdatedAt time.Time
}
