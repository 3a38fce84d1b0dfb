// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-backend/internal/app"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/controller"
	"github.com/unclebandit/outreach-backend/internal/handler"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/ratelimit"
	"github.com/unclebandit/outreach-backend/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New("development").Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer rt.Close()

	q, runWorker := dispatchQueue(rt)
	if q != nil {
		defer q.Close()
	}

	subs := service.NewSubscriptionService(rt.Store, log)
	contacts := service.NewContactService(rt.Store, subs, log)
	accounts := service.NewAccountService(rt.Store, subs, rt.Transport, log)
	campaigns := service.NewCampaignService(rt.Store, rt.Scheduler, subs, q, service.CampaignDefaults{
		DelayMinSeconds: cfg.DefaultDelayMin,
		DelayMaxSeconds: cfg.DefaultDelayMax,
	}, log)
	tracking := handler.NewTrackingHandler(service.NewTrackingService(rt.Store.Deliveries, log), log)

	limiter, closeLimiter := rateLimitStore(ctx, cfg, log)
	defer closeLimiter()

	health := &handler.HealthHandler{Checks: map[string]func(context.Context) error{
		"database": rt.Ping,
	}}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", health.Healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/api", controller.NewAPI(rt.Store, contacts, accounts, campaigns, subs, log).Routes())
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(ratelimit.Policy{
			Name:   "tracking",
			Window: cfg.TrackingRateWindow,
			Limit:  cfg.TrackingRateLimit,
			Key:    ratelimit.KeyIP("tracking"),
		}, limiter, log))
		r.Get("/track/pixel/{token}", tracking.Pixel)
		r.Get("/track/click/{token}", tracking.Click)
	})

	srv := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if runWorker != nil {
		go func() {
			if err := runWorker(ctx); err != nil {
				log.Error().Err(err).Msg("embedded worker exited")
			}
		}()
	}

	go func() {
		log.Info().Str("addr", cfg.AppAddr).Str("storage", cfg.StorageDriver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// dispatchQueue picks how campaign start/resume triggers reach a worker. With the embedded
// worker the triggers stay in process and the returned func runs the worker loop.
func dispatchQueue(rt *app.Runtime) (queue.Queue, func(context.Context) error) {
	cfg, log := rt.Config, rt.Log

	if cfg.EmbeddedWorker {
		q := queue.NewInMemoryQueue(log)
		w := rt.NewWorker()
		if err := q.Subscribe(queue.TopicCampaignDispatch, w.HandleDispatch); err != nil {
			log.Fatal().Err(err).Msg("subscribe embedded worker")
		}
		return q, w.Run
	}

	if cfg.AMQPURL != "" {
		q, err := queue.DialAMQP(cfg.AMQPURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to broker")
		}
		return q, nil
	}

	log.Warn().Msg("no AMQP_URL and embedded worker disabled; workers rely on their own polling interval")
	return nil, nil
}

func rateLimitStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (ratelimit.Store, func()) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryStore(), func() {}
	}
	rs := ratelimit.NewRedisStore(cfg.RedisAddr, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, rate limiting per process")
		_ = rs.Close()
		return ratelimit.NewMemoryStore(), func() {}
	}
	return rs, func() { _ = rs.Close() }
}
