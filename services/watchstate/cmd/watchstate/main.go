package main

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/example/watch-platform/internal/platform/analytics"
	"github.com/example/watch-platform/internal/platform/auth"
	"github.com/example/watch-platform/internal/platform/config"
	"github.com/example/watch-platform/internal/platform/db"
	"github.com/example/watch-platform/internal/platform/httpserver"
	"github.com/example/watch-platform/internal/platform/logging"
	"github.com/example/watch-platform/internal/platform/natsconn"
	"github.com/example/watch-platform/internal/platform/run"
	"github.com/example/watch-platform/services/watchstate/internal/aggregator"
	"github.com/example/watch-platform/services/watchstate/internal/anilist"
	watchconfig "github.com/example/watch-platform/services/watchstate/internal/config"
	"github.com/example/watch-platform/services/watchstate/internal/handlers"
	watchhttp "github.com/example/watch-platform/services/watchstate/internal/http"
	"github.com/example/watch-platform/services/watchstate/internal/metadata"
	"github.com/example/watch-platform/services/watchstate/internal/resolver"
	"github.com/example/watch-platform/services/watchstate/internal/store"
	"github.com/example/watch-platform/services/watchstate/internal/tmdb"
	"github.com/example/watch-platform/services/watchstate/internal/watch"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	wcfg, err := watchconfig.LoadWatch()
	if err != nil {
		log.Error("load watchstate config", zap.Error(err))
		run.Exit(1)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx, wcfg.DatabaseURL); err != nil {
		log.Error("migrate", zap.Error(err))
		run.Exit(1)
	}
	pool, err := db.Open(ctx, wcfg.DatabaseURL)
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)
	res := &resolver.Resolver{Lookup: st}

	tmdbClient := tmdb.New(wcfg.TMDBBaseURL, wcfg.TMDBAPIKey)
	anilistClient := anilist.New(wcfg.AniListURL)
	providers := map[watch.ItemType]metadata.Provider{
		watch.TypeCatalogMovie:  metadata.ProviderFunc(tmdbClient.FetchMovie),
		watch.TypeCatalogSeries: metadata.ProviderFunc(tmdbClient.FetchSeries),
		watch.TypeAnimeMovie:    metadata.ProviderFunc(anilistClient.FetchAnime),
		watch.TypeAnimeSeries:   metadata.ProviderFunc(anilistClient.FetchAnime),
	}
	agg := aggregator.New(st, providers, log)

	var pub *analytics.Publisher
	if nc, err := natsconn.Connect(natsconn.Options{}); err != nil {
		log.Warn("nats connect, events disabled", zap.Error(err))
	} else {
		defer nc.Close()
		if js, err := nc.JetStream(); err != nil {
			log.Warn("jetstream init, events disabled", zap.Error(err))
		} else {
			pub = analytics.New(js, log)
		}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error { return pool.Ping(context.Background()) },
	})

	limiter := watchhttp.NewRateLimiter(wcfg.RateLimitRPS, wcfg.RateLimitBurst)
	verifier := auth.JWTVerifier{Secret: wcfg.JWTSecret}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Use(limiter.Middleware)
		r.Post("/v1/watched", handlers.SetWatchState(st, pub))
		r.Get("/v1/watched/states", handlers.GetWatchStates(res))
		r.Get("/v1/watched/continue", handlers.ContinueWatching(agg, pub))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
