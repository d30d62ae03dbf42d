// Package tmdb fetches movie and TV display metadata from the TMDB API.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/example/watch-platform/services/watchstate/internal/metadata"
)

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.themoviedb.org/3"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     strings.TrimSpace(apiKey),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// errTransient marks failures worth one retry: network errors, 429s and 5xx.
var errTransient = errors.New("transient tmdb failure")

type itemResponse struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	PosterPath   string `json:"poster_path"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
}

// FetchMovie returns display metadata for a movie id.
func (c *Client) FetchMovie(ctx context.Context, itemID string) (metadata.Item, error) {
	return c.fetch(ctx, "/movie/"+url.PathEscape(itemID))
}

// FetchSeries returns display metadata for a TV series id.
func (c *Client) FetchSeries(ctx context.Context, itemID string) (metadata.Item, error) {
	return c.fetch(ctx, "/tv/"+url.PathEscape(itemID))
}

func (c *Client) fetch(ctx context.Context, path string) (metadata.Item, error) {
	var out metadata.Item
	err := retry.Do(
		func() error {
			item, err := c.get(ctx, path)
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

func (c *Client) get(ctx context.Context, path string) (metadata.Item, error) {
	u := c.BaseURL + path + "?api_key=" + url.QueryEscape(c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return metadata.Item{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "watch-platform/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return metadata.Item{}, fmt.Errorf("tmdb: %w: %v", errTransient, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return metadata.Item{}, fmt.Errorf("tmdb: %w: %v", errTransient, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return metadata.Item{}, fmt.Errorf("tmdb: %s: %w", path, metadata.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return metadata.Item{}, fmt.Errorf("tmdb: %w: status %d", errTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return metadata.Item{}, fmt.Errorf("tmdb: status %d body=%q", resp.StatusCode, string(b[:min(len(b), 200)]))
	}

	var raw itemResponse
	if err := json.Unmarshal(b, &raw); err != nil {
		return metadata.Item{}, fmt.Errorf("tmdb: decode error: %w", err)
	}
	return toItem(raw), nil
}

func toItem(raw itemResponse) metadata.Item {
	title := raw.Title
	if title == "" {
		title = raw.Name
	}
	date := raw.ReleaseDate
	if date == "" {
		date = raw.FirstAirDate
	}
	item := metadata.Item{Title: title, ArtworkRef: raw.PosterPath}
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			item.Year = y
		}
	}
	return item
}
