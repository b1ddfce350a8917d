package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "vibecheck/internal/adapters/http_server"
	"vibecheck/internal/adapters/observability"
	redisad "vibecheck/internal/adapters/redis"
	"vibecheck/internal/adapters/sentiment"
	"vibecheck/internal/app"
	"vibecheck/internal/domain"
	"vibecheck/internal/shared"
	"vibecheck/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	repo, closeDB, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store failed")
	}
	defer closeDB()

	// cache is optional
	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, cache calls will fail until it recovers")
		}
		cache = rc
	} else {
		log.Info().Msg("REDIS_ADDR empty, caching disabled")
	}

	// the model loads on the first classification
	classifier := sentiment.NewLazy(sentiment.Loader(
		cfg.ModelBaseURL, cfg.ModelName, cfg.ModelKey, cfg.ModelRPS, cfg.ModelTimeout(),
	), sentiment.WithLoadTimeout(cfg.ModelLoadTimeout()))

	views := app.NewViewCache(cache)
	agg := app.NewAggregationService(repo, views)
	reviews := app.NewReviewService(repo, classifier, agg, cfg.MaxKeywords,
		app.WithClassifyTimeout(cfg.ClassifyTimeout()))
	q := app.NewQueryService(repo, views, cfg.CacheTTL())

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, Reviews: reviews, Agg: agg, Users: app.NewUserService(repo), MinReviewLength: cfg.MinReviewLength})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
