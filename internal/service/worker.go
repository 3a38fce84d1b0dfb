package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// Cycler is the part of the Scheduler the worker drives.
type Cycler interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

// Worker runs dequeue cycles on a ticker and on dispatch triggers, and zeroes stale
// account counters once per UTC day.
type Worker struct {
	Cycler        Cycler
	Accounts      repository.SendingAccountRepositoryInterface
	Interval      time.Duration
	ErrorCooldown time.Duration
	Clock         Clock
	Sleeper       Sleeper
	Log           zerolog.Logger

	trigger   chan struct{}
	lastReset string
}

func NewWorker(cycler Cycler, accounts repository.SendingAccountRepositoryInterface, interval, cooldown time.Duration, log zerolog.Logger) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Worker{
		Cycler:        cycler,
		Accounts:      accounts,
		Interval:      interval,
		ErrorCooldown: cooldown,
		Clock:         SystemClock,
		Sleeper:       TimerSleeper,
		Log:           log.With().Str("component", "worker").Logger(),
		trigger:       make(chan struct{}, 1),
	}
}

// Trigger asks for a cycle as soon as the loop is free. Triggers coalesce.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// HandleDispatch is the queue subscriber for TopicCampaignDispatch.
func (w *Worker) HandleDispatch(ctx context.Context, body []byte) error {
	var t queue.DispatchTrigger
	if err := json.Unmarshal(body, &t); err != nil {
		// malformed triggers are dropped
		w.Log.Warn().Err(err).Msg("invalid dispatch trigger")
		return nil
	}
	w.Log.Debug().Str("campaign", t.CampaignID).Str("reason", t.Reason).Msg("dispatch trigger received")
	w.Trigger()
	return nil
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.Log.Info().Dur("interval", w.Interval).Msg("worker started")
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.Log.Info().Msg("worker stopped")
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		case <-w.trigger:
			w.Tick(ctx)
		}
	}
}

// Tick runs the daily reset and one cycle. A failed cycle is followed by ErrorCooldown.
func (w *Worker) Tick(ctx context.Context) {
	w.resetDailyCounts(ctx)

	err := w.runCycle(ctx)
	if err == nil || errors.Is(err, ErrCycleInProgress) || ctx.Err() != nil {
		return
	}
	w.Log.Error().Err(err).Dur("cooldown", w.ErrorCooldown).Msg("dequeue cycle failed")
	_ = w.Sleeper.Sleep(ctx, w.ErrorCooldown)
}

func (w *Worker) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dequeue cycle panicked: %v", r)
		}
	}()
	_, err = w.Cycler.RunCycle(ctx)
	return err
}

func (w *Worker) resetDailyCounts(ctx context.Context) {
	if w.Accounts == nil {
		return
	}
	day := model.UsageDay(w.Clock.Now())
	if day == w.lastReset {
		return
	}
	n, err := w.Accounts.ResetDailyCounts(ctx, day)
	if err != nil {
		w.Log.Error().Err(err).Msg("reset daily account counters")
		return
	}
	w.lastReset = day
	w.Log.Info().Str("day", day).Int64("accounts", n).Msg("daily account counters reset")
}
