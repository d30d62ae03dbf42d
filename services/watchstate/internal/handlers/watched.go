package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/watch-platform/internal/platform/analytics"
	"github.com/example/watch-platform/internal/platform/api"
	"github.com/example/watch-platform/internal/platform/auth"
	"github.com/example/watch-platform/internal/platform/httpserver"
	"github.com/example/watch-platform/services/watchstate/internal/aggregator"
	"github.com/example/watch-platform/services/watchstate/internal/resolver"
	"github.com/example/watch-platform/services/watchstate/internal/store"
	"github.com/example/watch-platform/services/watchstate/internal/watch"
)

// maxContinueLimit caps the per-partition item count a caller may request.
const maxContinueLimit = 20

type mutationRequest struct {
	ItemType string      `json:"item_type"`
	ItemID   resolver.ID `json:"item_id"`
	Season   *int        `json:"season_number"`
	Episode  *int        `json:"episode_number"`
	State    string      `json:"state"`
}

type watchedRecord struct {
	ItemType  watch.ItemType `json:"item_type"`
	ItemID    string         `json:"item_id"`
	Season    int            `json:"season_number"`
	Episode   int            `json:"episode_number"`
	State     watch.State    `json:"state"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toWatchedRecord(rec watch.Record) watchedRecord {
	return watchedRecord{
		ItemType:  rec.Key.Type,
		ItemID:    rec.Key.ItemID,
		Season:    rec.Key.Season,
		Episode:   rec.Key.Episode,
		State:     rec.State,
		UpdatedAt: rec.UpdatedAt,
	}
}

// SetWatchState handles POST /v1/watched. A not_watched state is a
// delete: the record is removed rather than stored (absence is the
// not_watched signal).
func SetWatchState(st store.Store, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}

		var req mutationRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}

		state := watch.State(strings.TrimSpace(req.State))
		if !state.Valid() {
			api.BadRequest(w, "UNKNOWN_STATE", "State must be watching, watched or not_watched", rid, nil)
			return
		}

		ref := resolver.ItemRef{ItemType: strings.TrimSpace(req.ItemType), ItemID: req.ItemID, Season: req.Season, Episode: req.Episode}
		key := ref.Key()
		if err := key.Validate(); err != nil {
			api.BadRequest(w, "INVALID_ITEM", err.Error(), rid, nil)
			return
		}

		if state == watch.StateNotWatched {
			if err := st.Delete(r.Context(), uid, key); err != nil {
				api.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Watch state store unavailable", rid, nil)
				return
			}
			ap.Publish(analytics.SubjectWatchStateRemoved, "watch_state_removed", uid, map[string]any{
				"item_type": string(key.Type),
				"item_id":   key.ItemID,
			})
			api.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": true})
			return
		}

		rec, err := st.Upsert(r.Context(), watch.Record{UserID: uid, Key: key, State: state})
		if err != nil {
			api.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Watch state store unavailable", rid, nil)
			return
		}
		ap.Publish(analytics.SubjectWatchStateUpserted, "watch_state_upserted", uid, map[string]any{
			"item_type": string(key.Type),
			"item_id":   key.ItemID,
			"state":     string(state),
		})
		api.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "record": toWatchedRecord(rec)})
	}
}

// GetWatchStates handles GET /v1/watched/states?items=<json array>.
// Every requested descriptor appears in the response; keys without a
// stored record resolve to not_watched.
func GetWatchStates(res *resolver.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}

		raw := strings.TrimSpace(r.URL.Query().Get("items"))
		if raw == "" {
			api.BadRequest(w, "MISSING_ITEMS", "items query parameter is required", rid, nil)
			return
		}
		var refs []resolver.ItemRef
		if err := json.Unmarshal([]byte(raw), &refs); err != nil {
			api.BadRequest(w, "INVALID_ITEMS", "items must be a JSON array of item descriptors", rid, nil)
			return
		}

		states, err := res.Resolve(r.Context(), uid, refs)
		if err != nil {
			switch {
			case errors.Is(err, watch.ErrInvalidKey):
				api.BadRequest(w, "INVALID_ITEM", err.Error(), rid, nil)
			case errors.Is(err, store.ErrBatchTooLarge):
				api.BadRequest(w, "BATCH_TOO_LARGE", "Too many items requested", rid,
					map[string]any{"max": store.MaxBatchKeys})
			default:
				// Point lookups never degrade to partial results.
				api.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Watch state store unavailable", rid, nil)
			}
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"states": states})
	}
}

// ContinueWatching handles GET /v1/watched/continue?limit=. Partitions
// are independently complete-or-absent; the response omits a partition
// only when its scan failed.
func ContinueWatching(agg *aggregator.Aggregator, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}

		limit := aggregator.DefaultLimit
		if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < 1 {
					n = 1
				}
				if n > maxContinueLimit {
					n = maxContinueLimit
				}
				limit = n
			}
		}

		result, err := agg.ContinueWatching(r.Context(), uid, limit)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		ap.Publish(analytics.SubjectContinueRequested, "continue_requested", uid, map[string]any{
			"limit": limit,
		})
		api.WriteJSON(w, http.StatusOK, result)
	}
}
