package anilist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/watch-platform/services/watchstate/internal/metadata"
)

func TestFetchAnime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		var body struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Variables["id"] != float64(5114) {
			t.Fatalf("expected id variable 5114, got %v", body.Variables["id"])
		}
		_, _ = w.Write([]byte(`{"data":{"Media":{
			"id":5114,
			"title":{"romaji":"Hagane no Renkinjutsushi","english":"Fullmetal Alchemist: Brotherhood"},
			"coverImage":{"large":"https://img.example/5114.jpg"},
			"seasonYear":2009}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	item, err := c.FetchAnime(context.Background(), "5114")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if item.Title != "Fullmetal Alchemist: Brotherhood" {
		t.Fatalf("expected english title preferred, got %q", item.Title)
	}
	if item.ArtworkRef != "https://img.example/5114.jpg" || item.Year != 2009 {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestFetchAnime_RomajiFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"Media":{"id":1,"title":{"romaji":"Cowboy Bebop"},"coverImage":{"large":"x"},"seasonYear":1998}}}`))
	}))
	defer srv.Close()

	item, err := New(srv.URL).FetchAnime(context.Background(), "1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if item.Title != "Cowboy Bebop" {
		t.Fatalf("expected romaji fallback, got %q", item.Title)
	}
}

func TestFetchAnime_NullMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"Media":null},"errors":[{"message":"Not Found.","status":404}]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchAnime(context.Background(), "123")
	if !errors.Is(err, metadata.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchAnime_NonNumericID(t *testing.T) {
	_, err := New("http://unused.invalid").FetchAnime(context.Background(), "abc")
	if !errors.Is(err, metadata.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-numeric id, got %v", err)
	}
}
