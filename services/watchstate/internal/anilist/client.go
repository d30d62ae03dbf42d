// Package anilist fetches anime display metadata from the AniList
// GraphQL API.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/example/watch-platform/services/watchstate/internal/metadata"
)

const mediaQuery = `
query ($id: Int) {
  Media(id: $id, type: ANIME) {
    id
    title {
      romaji
      english
    }
    coverImage {
      large
    }
    seasonYear
  }
}`

type Client struct {
	URL        string
	HTTPClient *http.Client
}

func New(apiURL string) *Client {
	if apiURL == "" {
		apiURL = "https://graphql.anilist.co"
	}
	return &Client{URL: strings.TrimSpace(apiURL), HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

var errTransient = errors.New("transient anilist failure")

type mediaEnvelope struct {
	Data struct {
		Media *struct {
			ID    int64 `json:"id"`
			Title struct {
				Romaji  string `json:"romaji"`
				English string `json:"english"`
			} `json:"title"`
			CoverImage struct {
				Large string `json:"large"`
			} `json:"coverImage"`
			SeasonYear int `json:"seasonYear"`
		} `json:"Media"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors"`
}

// FetchAnime returns display metadata for an AniList media id.
func (c *Client) FetchAnime(ctx context.Context, itemID string) (metadata.Item, error) {
	id, err := strconv.Atoi(strings.TrimSpace(itemID))
	if err != nil {
		// A non-numeric id cannot exist upstream.
		return metadata.Item{}, fmt.Errorf("anilist: item id %q: %w", itemID, metadata.ErrNotFound)
	}

	var out metadata.Item
	err = retry.Do(
		func() error {
			item, err := c.query(ctx, id)
			if err != nil {
				return err
			}
			out = item
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(250*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errTransient) }),
	)
	return out, err
}

func (c *Client) query(ctx context.Context, id int) (metadata.Item, error) {
	body, err := json.Marshal(map[string]any{
		"query":     mediaQuery,
		"variables": map[string]any{"id": id},
	})
	if err != nil {
		return metadata.Item{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return metadata.Item{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "watch-platform/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return metadata.Item{}, fmt.Errorf("anilist: %w: %v", errTransient, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return metadata.Item{}, fmt.Errorf("anilist: %w: %v", errTransient, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return metadata.Item{}, fmt.Errorf("anilist: media %d: %w", id, metadata.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return metadata.Item{}, fmt.Errorf("anilist: %w: status %d", errTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return metadata.Item{}, fmt.Errorf("anilist: status %d body=%q", resp.StatusCode, string(b[:min(len(b), 200)]))
	}

	var env mediaEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return metadata.Item{}, fmt.Errorf("anilist: decode error: %w", err)
	}
	if env.Data.Media == nil {
		if len(env.Errors) > 0 && env.Errors[0].Status == http.StatusNotFound {
			return metadata.Item{}, fmt.Errorf("anilist: media %d: %w", id, metadata.ErrNotFound)
		}
		if len(env.Errors) > 0 {
			return metadata.Item{}, fmt.Errorf("anilist: media %d: %s", id, env.Errors[0].Message)
		}
		return metadata.Item{}, fmt.Errorf("anilist: media %d: %w", id, metadata.ErrNotFound)
	}

	m := env.Data.Media
	title := m.Title.English
	if title == "" {
		title = m.Title.Romaji
	}
	return metadata.Item{Title: title, ArtworkRef: m.CoverImage.Large, Year: m.SeasonYear}, nil
}
