// Package app wires storage, transport and the sending pipeline for the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
	"github.com/unclebandit/outreach-backend/internal/transport"
)

type Runtime struct {
	Config    config.Config
	Log       zerolog.Logger
	DB        *sql.DB // nil with the memory driver
	Store     *repository.Store
	Transport service.Transport
	Executor  *service.Executor
	Scheduler *service.Scheduler
}

// Build opens storage (running migrations when configured) and assembles the executor and
// scheduler on top of the provider-routing transport.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Log: log}

	switch cfg.StorageDriver {
	case "memory":
		log.Warn().Msg("using in-memory storage; data is lost on restart")
		rt.Store = repository.NewMemoryStore()
	default:
		conn, err := db.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		if cfg.RunMigrations {
			if err := db.Migrate(conn, log); err != nil {
				conn.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		rt.DB = conn
		rt.Store = repository.NewPostgresStore(conn)
	}

	rt.Transport = transport.NewRouter(transport.NewSMTP(cfg.SMTPTimeout), transport.NewSendGrid())
	rt.Executor = service.NewExecutor(rt.Store, rt.Transport, service.ExecutorConfig{
		Retry:                   service.RetryPolicy{Base: cfg.RetryBase, Cap: cfg.RetryCap},
		NoAccountRetryDelay:     cfg.NoAccountRetryDelay,
		AccountFailureThreshold: cfg.AccountFailureThreshold,
		SendWindowStartHour:     cfg.SendWindowStartHour,
		PublicBaseURL:           cfg.PublicBaseURL,
	}, log)
	rt.Scheduler = service.NewScheduler(rt.Store, rt.Executor, service.SchedulerConfig{
		BatchSize:           cfg.CycleBatchSize,
		PaceMin:             cfg.PaceMin,
		PaceMax:             cfg.PaceMax,
		SendWindowStartHour: cfg.SendWindowStartHour,
		DefaultDelayMin:     cfg.DefaultDelayMin,
		DefaultDelayMax:     cfg.DefaultDelayMax,
	}, log)
	return rt, nil
}

func (rt *Runtime) NewWorker() *service.Worker {
	return service.NewWorker(rt.Scheduler, rt.Store.Accounts, rt.Config.CycleInterval, rt.Config.ErrorCooldown, rt.Log)
}

// Ping checks the database; the memory driver is always healthy.
func (rt *Runtime) Ping(ctx context.Context) error {
	if rt.DB == nil {
		return nil
	}
	return rt.DB.PingContext(ctx)
}

func (rt *Runtime) Close() error {
	if rt.DB == nil {
		return nil
	}
	return rt.DB.Close()
}
