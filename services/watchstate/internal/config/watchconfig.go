package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type WatchConfig struct {
	DatabaseURL string
	JWTSecret   []byte

	TMDBBaseURL string
	TMDBAPIKey  string
	AniListURL  string

	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadWatch() (WatchConfig, error) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		return WatchConfig{}, errors.New("DATABASE_URL is required")
	}
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return WatchConfig{}, errors.New("JWT_SECRET is required")
	}
	apiKey := strings.TrimSpace(os.Getenv("TMDB_API_KEY"))
	if apiKey == "" {
		return WatchConfig{}, errors.New("TMDB_API_KEY is required")
	}

	return WatchConfig{
		DatabaseURL:    dsn,
		JWTSecret:      []byte(secret),
		TMDBBaseURL:    strings.TrimSpace(os.Getenv("TMDB_BASE_URL")),
		TMDBAPIKey:     apiKey,
		AniListURL:     strings.TrimSpace(os.Getenv("ANILIST_URL")),
		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),
	}, nil
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
