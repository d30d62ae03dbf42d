package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/watch-platform/services/watchstate/internal/watch"
)

// PostgresStore is the production Postgres-backed implementation.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert is a single atomic statement keyed by the composite primary
// key, so concurrent writers to the same key resolve last-writer-wins
// by commit order. updated_at is always the database clock.
func (s *PostgresStore) Upsert(ctx context.Context, rec watch.Record) (watch.Record, error) {
	if !rec.State.Storable() {
		return watch.Record{}, ErrStateNotStorable
	}

	q := `
INSERT INTO watched (user_id, item_type, item_id, season_number, episode_number, state, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (user_id, item_type, item_id, season_number, episode_number)
DO UPDATE SET
  state      = EXCLUDED.state,
  updated_at = now()
RETURNING state, updated_at`

	out := rec
	err := s.db.QueryRow(ctx, q,
		rec.UserID, rec.Key.Type, rec.Key.ItemID, rec.Key.Season, rec.Key.Episode, rec.State,
	).Scan(&out.State, &out.UpdatedAt)
	if err != nil {
		return watch.Record{}, fmt.Errorf("upsert watched: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string, key watch.Key) error {
	q := `DELETE FROM watched
	      WHERE user_id=$1 AND item_type=$2 AND item_id=$3 AND season_number=$4 AND episode_number=$5`
	if _, err := s.db.Exec(ctx, q, userID, key.Type, key.ItemID, key.Season, key.Episode); err != nil {
		return fmt.Errorf("delete watched: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupBatch(ctx context.Context, userID string, keys []watch.Key) (map[watch.Key]watch.State, error) {
	if len(keys) == 0 {
		return map[watch.Key]watch.State{}, nil
	}
	if len(keys) > MaxBatchKeys {
		return nil, ErrBatchTooLarge
	}

	args := []any{userID}
	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(item_type=$%d AND item_id=$%d AND season_number=$%d AND episode_number=$%d)",
			n+1, n+2, n+3, n+4))
		args = append(args, k.Type, k.ItemID, k.Season, k.Episode)
	}

	q := `SELECT item_type, item_id, season_number, episode_number, state
	      FROM watched WHERE user_id=$1 AND (` + strings.Join(clauses, " OR ") + `)`
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup watched batch: %w", err)
	}
	defer rows.Close()

	out := make(map[watch.Key]watch.State, len(keys))
	for rows.Next() {
		var k watch.Key
		var st watch.State
		if err := rows.Scan(&k.Type, &k.ItemID, &k.Season, &k.Episode, &st); err != nil {
			return nil, fmt.Errorf("lookup watched batch: %w", err)
		}
		out[k] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup watched batch: %w", err)
	}
	return out, nil
}

// ScanPartition collapses a series with several in-progress episodes to
// one entry carrying the greatest updated_at, then orders entries by
// that timestamp descending.
func (s *PostgresStore) ScanPartition(ctx context.Context, userID string, itemType watch.ItemType, limit int) ([]ScanEntry, error) {
	q := `
SELECT item_id, updated_at FROM (
  SELECT DISTINCT ON (item_id) item_id, updated_at FROM watched
  WHERE user_id = $1 AND item_type = $2 AND state = $3
  ORDER BY item_id, updated_at DESC
) AS sub ORDER BY updated_at DESC LIMIT $4`

	rows, err := s.db.Query(ctx, q, userID, itemType, watch.StateWatching, limit)
	if err != nil {
		return nil, fmt.Errorf("scan watched partition: %w", err)
	}
	defer rows.Close()

	var out []ScanEntry
	for rows.Next() {
		var e ScanEntry
		if err := rows.Scan(&e.ItemID, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan watched partition: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan watched partition: %w", err)
	}
	return out, nil
}
