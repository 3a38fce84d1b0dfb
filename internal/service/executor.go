package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/transport"
)

// Transport is the mail wire. transport.Router is the production implementation.
type Transport interface {
	Send(ctx context.Context, account *model.SendingAccount, msg transport.Message) error
}

type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeRetry    Outcome = "retry"
	OutcomeFailed   Outcome = "failed"
	OutcomeDeferred Outcome = "deferred"
	OutcomeSkipped  Outcome = "skipped"
)

// usedTransport reports whether the outcome involved a transport call.
func (o Outcome) usedTransport() bool {
	return o == OutcomeSent || o == OutcomeRetry || o == OutcomeFailed
}

type ExecutorConfig struct {
	Retry                   RetryPolicy
	NoAccountRetryDelay     time.Duration
	AccountFailureThreshold int
	SendWindowStartHour     int
	PublicBaseURL           string
}

// Executor sends one queue item.
type Executor struct {
	Store     *repository.Store
	Transport Transport
	Config    ExecutorConfig
	Clock     Clock
	Log       zerolog.Logger
	NewID     func() string
}

func NewExecutor(store *repository.Store, t Transport, cfg ExecutorConfig, log zerolog.Logger) *Executor {
	if cfg.Retry.Base <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.NoAccountRetryDelay <= 0 {
		cfg.NoAccountRetryDelay = 15 * time.Minute
	}
	return &Executor{
		Store:     store,
		Transport: t,
		Config:    cfg,
		Clock:     SystemClock,
		Log:       log.With().Str("component", "executor").Logger(),
		NewID:     uuid.NewString,
	}
}

// Execute processes a due item. Handled send failures are reported through the Outcome;
// the error is reserved for storage problems.
func (e *Executor) Execute(ctx context.Context, queued *model.QueueItem) (Outcome, error) {
	item, err := e.Store.Queue.GetByID(ctx, queued.ID)
	if err != nil {
		return "", fmt.Errorf("reload queue item %s: %w", queued.ID, err)
	}
	if item == nil || item.IsTerminal() {
		return e.done(OutcomeSkipped), nil
	}
	log := e.Log.With().Str("item", item.ID).Str("campaign", item.CampaignID).Logger()

	campaign, err := e.Store.Campaigns.GetByID(ctx, item.TenantID, item.CampaignID)
	if appErrors.IsNotFound(err) {
		return e.done(OutcomeSkipped), nil
	}
	if err != nil {
		return "", err
	}
	if !campaign.Status.Dispatchable() {
		return e.done(OutcomeSkipped), nil
	}

	contact, err := e.Store.Contacts.GetByID(ctx, item.TenantID, item.ContactID)
	if appErrors.IsNotFound(err) {
		return e.fail(ctx, item, "contact no longer exists")
	}
	if err != nil {
		return "", err
	}

	step, ok := campaign.Step(item.StepID)
	if !ok {
		return e.fail(ctx, item, "campaign step no longer exists")
	}
	variation, ok := step.Variation(item.VariationID)
	if !ok {
		if variation, err = SelectVariation(step, contact.ID); err != nil {
			return e.fail(ctx, item, err.Error())
		}
	}

	now := e.Clock.Now()
	day := model.UsageDay(now)
	pool, err := e.Store.Accounts.List(ctx, item.TenantID)
	if err != nil {
		return "", err
	}
	account, err := SelectAccount(pool, day)
	if errors.Is(err, appErrors.ErrNoAccountAvailable) {
		return e.deferItem(ctx, item, pool, now)
	}

	token := e.NewID()
	content := Render(variation.Content, contact, campaign.CustomVariables)
	content = Instrument(content, e.Config.PublicBaseURL, token, campaign.TrackOpens, campaign.TrackClicks)
	msg := transport.Message{
		MessageID: token + "@" + mailDomain(account.FromEmail),
		ToEmail:   contact.Email,
		ToName:    contact.FullName(),
		Subject:   Render(variation.Subject, contact, campaign.CustomVariables),
		Content:   content,
	}

	started := time.Now()
	sendErr := e.Transport.Send(ctx, account, msg)
	metrics.ObserveTransport(time.Since(started))
	if sendErr != nil {
		return e.retry(ctx, item, account, transport.Classify(sendErr, account), now)
	}

	counted, err := e.Store.Accounts.IncrementSent(ctx, account.ID, day)
	if err != nil {
		log.Error().Err(err).Str("account", account.ID).Msg("count send against account")
	} else if !counted {
		log.Warn().Str("account", account.ID).Msg("account reached its daily limit concurrently; send already went out")
	}

	marked, err := e.Store.Queue.MarkSent(ctx, item.ID, account.ID, now)
	if err != nil {
		return "", err
	}
	if !marked {
		log.Warn().Msg("item left pending state during send")
	}

	record := &model.DeliveryRecord{
		ID:               e.NewID(),
		TenantID:         item.TenantID,
		QueueItemID:      item.ID,
		CampaignID:       item.CampaignID,
		StepID:           step.ID,
		VariationID:      variation.ID,
		ContactID:        contact.ID,
		SendingAccountID: account.ID,
		TrackingToken:    token,
		MessageID:        msg.MessageID,
		SentAt:           now,
	}
	if err := e.Store.Deliveries.Create(ctx, record); err != nil {
		return "", fmt.Errorf("record delivery of %s: %w", item.ID, err)
	}

	if account.ConsecutiveFailures > 0 {
		if err := e.Store.Accounts.ResetFailures(ctx, account.ID); err != nil {
			log.Error().Err(err).Msg("reset account failure streak")
		}
	}

	log.Info().Str("account", account.ID).Str("variation", variation.ID).Msg("email sent")
	return e.done(OutcomeSent), nil
}

func (e *Executor) retry(ctx context.Context, item *model.QueueItem, account *model.SendingAccount, te *appErrors.TransportError, now time.Time) (Outcome, error) {
	metrics.IncFailure(string(te.Category))

	deactivated, err := e.Store.Accounts.RecordFailure(ctx, account.ID, te.Error(), e.Config.AccountFailureThreshold)
	if err != nil {
		e.Log.Error().Err(err).Str("account", account.ID).Msg("record account failure")
	}
	if deactivated {
		e.Log.Warn().Str("account", account.ID).Int("threshold", e.Config.AccountFailureThreshold).
			Msg("sending account deactivated after consecutive failures")
	}

	decision := e.Config.Retry.Next(item.Attempts, item.MaxAttempts, now)
	if decision.Terminal() {
		if err := e.Store.Queue.MarkFailed(ctx, item.ID, decision.Attempts, te.Error()); err != nil {
			return "", err
		}
		e.Log.Warn().Str("item", item.ID).Str("category", string(te.Category)).Int("attempts", decision.Attempts).
			Msg("send failed permanently")
		return e.done(OutcomeFailed), nil
	}
	if err := e.Store.Queue.MarkRetry(ctx, item.ID, decision.Attempts, decision.ScheduledAt, te.Error()); err != nil {
		return "", err
	}
	e.Log.Info().Str("item", item.ID).Str("category", string(te.Category)).Int("attempts", decision.Attempts).
		Time("next", decision.ScheduledAt).Msg("send failed, retry scheduled")
	return e.done(OutcomeRetry), nil
}

// fail ends items that can never be sent.
func (e *Executor) fail(ctx context.Context, item *model.QueueItem, reason string) (Outcome, error) {
	if err := e.Store.Queue.MarkFailed(ctx, item.ID, item.Attempts+1, reason); err != nil {
		return "", err
	}
	e.Log.Warn().Str("item", item.ID).Str("reason", reason).Msg("queue item failed")
	return e.done(OutcomeFailed), nil
}

// deferItem reschedules without consuming an attempt. An exhausted pool waits for the next
// day's send window; a tenant with no active account is polled again after NoAccountRetryDelay.
func (e *Executor) deferItem(ctx context.Context, item *model.QueueItem, pool []*model.SendingAccount, now time.Time) (Outcome, error) {
	next := now.Add(e.Config.NoAccountRetryDelay)
	if PoolCapacity(pool) > 0 {
		next = nextSendWindow(now, e.Config.SendWindowStartHour)
	}
	if err := e.Store.Queue.Defer(ctx, item.ID, next, appErrors.ErrNoAccountAvailable.Error()); err != nil {
		return "", err
	}
	metrics.IncDeferral()
	e.Log.Info().Str("item", item.ID).Time("next", next).Msg("no sending account available, deferred")
	return e.done(OutcomeDeferred), nil
}

func (e *Executor) done(o Outcome) Outcome {
	metrics.IncSend(string(o))
	return o
}

func mailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "localhost"
}
