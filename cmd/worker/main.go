package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-backend/internal/app"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/queue"
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

	var q queue.Queue
	if cfg.AMQPURL != "" {
		aq, err := queue.DialAMQP(cfg.AMQPURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to broker")
		}
		defer aq.Close()
		q = aq
	} else {
		log.Warn().Msg("AMQP_URL not set, polling only")
	}

	if err := run(ctx, rt.NewWorker(), q, log); err != nil {
		log.Fatal().Err(err).Msg("worker failed")
	}
}

// run subscribes the worker to dispatch triggers when a queue is given and blocks until ctx ends.
func run(ctx context.Context, w *service.Worker, q queue.Queue, log zerolog.Logger) error {
	if q != nil {
		if err := q.Subscribe(queue.TopicCampaignDispatch, w.HandleDispatch); err != nil {
			return fmt.Errorf("subscribe %s: %w", queue.TopicCampaignDispatch, err)
		}
		log.Info().Str("topic", queue.TopicCampaignDispatch).Msg("listening for dispatch triggers")
	}
	return w.Run(ctx)
}
