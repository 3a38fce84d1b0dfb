package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// ErrCycleInProgress is returned when a dequeue cycle is triggered while another one runs.
var ErrCycleInProgress = errors.New("dequeue cycle already in progress")

type SchedulerConfig struct {
	BatchSize           int
	PaceMin             time.Duration
	PaceMax             time.Duration
	SendWindowStartHour int
	DefaultDelayMin     int
	DefaultDelayMax     int
}

// Scheduler turns campaign starts into queue items and drains due items one at a time.
type Scheduler struct {
	Store    *repository.Store
	Executor *Executor
	Config   SchedulerConfig
	Clock    Clock
	Sleeper  Sleeper
	Log      zerolog.Logger
	NewID    func() string

	running atomic.Bool

	paceMu sync.Mutex
	pace   *rand.Rand
}

func NewScheduler(store *repository.Store, executor *Executor, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.DefaultDelayMin <= 0 && cfg.DefaultDelayMax <= 0 {
		cfg.DefaultDelayMin, cfg.DefaultDelayMax = 60, 300
	}
	return &Scheduler{
		Store:    store,
		Executor: executor,
		Config:   cfg,
		Clock:    SystemClock,
		Sleeper:  TimerSleeper,
		Log:      log.With().Str("component", "scheduler").Logger(),
		NewID:    uuid.NewString,
		pace:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

// SetPaceSource replaces the generator behind inter-send pacing.
func (s *Scheduler) SetPaceSource(src rand.Source) {
	s.paceMu.Lock()
	defer s.paceMu.Unlock()
	s.pace = rand.New(src)
}

// StartResult summarises a successful campaign start.
type StartResult struct {
	Queued      int       `json:"queued"`
	FirstSendAt time.Time `json:"first_send_at"`
	LastSendAt  time.Time `json:"last_send_at"`
}

// StartCampaign validates the campaign, checks the monthly quota and persists one pending
// item per (contact, step) that has no item yet. A paused campaign whose pairs are all
// queued already is marked sent.
func (s *Scheduler) StartCampaign(ctx context.Context, tenantID, campaignID string) (*StartResult, error) {
	campaign, err := s.Store.Campaigns.GetByID(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignDraft && campaign.Status != model.CampaignPaused {
		return nil, appErrors.NewValidationError(fmt.Sprintf("campaign is %s; only draft or paused campaigns can be started", campaign.Status))
	}
	if campaign.Status == model.CampaignPaused {
		counts, err := s.Store.Queue.CountByStatus(ctx, campaign.ID)
		if err != nil {
			return nil, err
		}
		if counts[model.QueuePending] > 0 {
			return nil, appErrors.NewValidationError("campaign has pending queue items; resume it instead")
		}
	}

	contacts, err := s.Store.Contacts.ListByIDs(ctx, tenantID, campaign.ContactIDs)
	if err != nil {
		return nil, err
	}
	pool, err := s.Store.Accounts.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	report := ValidateCampaign(campaign, contacts, pool, now)
	if !report.Valid {
		return nil, appErrors.NewValidationError(report.Errors...)
	}

	existing, err := s.Store.Queue.Keys(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	items := unqueued(s.Plan(campaign, contacts, pool, now), existing)
	if len(items) == 0 && len(existing) > 0 {
		// every (contact, step) already has an item and none is pending
		if err := s.Store.Campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignSent); err != nil {
			return nil, err
		}
		s.Log.Info().Str("campaign", campaign.ID).Msg("campaign has nothing left to send, marked sent")
		return &StartResult{}, nil
	}
	if err := s.checkMonthlyQuota(ctx, tenantID, len(items), now); err != nil {
		return nil, err
	}
	if err := s.Store.Queue.CreateBatch(ctx, items); err != nil {
		return nil, fmt.Errorf("queue campaign %s: %w", campaign.ID, err)
	}

	campaign.Status = model.CampaignScheduled
	campaign.StartedAt = &now
	if err := s.Store.Campaigns.Update(ctx, campaign); err != nil {
		return nil, err
	}
	metrics.AddQueued(len(items))

	res := &StartResult{Queued: len(items)}
	for i, it := range items {
		if i == 0 || it.ScheduledAt.Before(res.FirstSendAt) {
			res.FirstSendAt = it.ScheduledAt
		}
		if it.ScheduledAt.After(res.LastSendAt) {
			res.LastSendAt = it.ScheduledAt
		}
	}
	s.Log.Info().Str("campaign", campaign.ID).Int("queued", len(items)).Time("first", res.FirstSendAt).
		Time("last", res.LastSendAt).Msg("campaign scheduled")
	return res, nil
}

// unqueued drops planned items whose (contact, step) the campaign already holds.
func unqueued(items []*model.QueueItem, existing map[model.QueueKey]bool) []*model.QueueItem {
	if len(existing) == 0 {
		return items
	}
	out := items[:0]
	for _, it := range items {
		if !existing[it.Key()] {
			out = append(out, it)
		}
	}
	return out
}

func (s *Scheduler) checkMonthlyQuota(ctx context.Context, tenantID string, queued int, now time.Time) error {
	tenant, err := s.Store.Tenants.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	plan, _ := model.LookupPlan(tenant.Plan)
	sent, err := s.Store.Deliveries.CountSentSince(ctx, tenantID, monthStart(now))
	if err != nil {
		return err
	}
	if sent+queued > plan.MonthlyEmails {
		return appErrors.NewSubscriptionLimit(string(plan.Name), "monthly emails", plan.MonthlyEmails, sent+queued)
	}
	return nil
}

// Plan computes every queue item of a campaign start. Steps begin DelayDays after start.
// Each UTC day takes at most min(campaign daily limit, pool headroom) items of the campaign;
// the first item of a day goes out at the cohort start and each next one a random
// delay_min..delay_max seconds later. Overflow rolls to the send window of the next day.
// The planned account of each item comes from simulating the rotation.
func (s *Scheduler) Plan(c *model.Campaign, contacts []*model.Contact, pool []*model.SendingAccount, start time.Time) []*model.QueueItem {
	start = start.UTC()
	if PoolCapacity(pool) == 0 || len(contacts) == 0 {
		return nil
	}
	delayMin, delayMax := c.DelayMinSeconds, c.DelayMaxSeconds
	if delayMin <= 0 && delayMax <= 0 {
		delayMin, delayMax = s.Config.DefaultDelayMin, s.Config.DefaultDelayMax
	}
	if delayMax < delayMin {
		delayMax = delayMin
	}
	jitter := stableRand(c.ID, strconv.FormatInt(start.UnixNano(), 10))

	sim := make([]*model.SendingAccount, 0, len(pool))
	for _, a := range pool {
		cp := *a
		sim = append(sim, &cp)
	}
	campaignPerDay := map[string]int{}

	var items []*model.QueueItem
	for _, step := range c.OrderedSteps() {
		step := step
		cohortStart := start.AddDate(0, 0, step.DelayDays)
		remaining := contacts

		for len(remaining) > 0 {
			day := model.UsageDay(cohortStart)
			capacity := PoolHeadroom(sim, day)
			if c.DailyLimit > 0 {
				capacity = min(capacity, c.DailyLimit-campaignPerDay[day])
			}

			at := cohortStart
			for n := 0; n < capacity && len(remaining) > 0; n++ {
				if n > 0 {
					at = at.Add(time.Duration(delayMin+jitter.IntN(delayMax-delayMin+1)) * time.Second)
					if model.UsageDay(at) != day {
						break
					}
				}
				contact := remaining[0]
				remaining = remaining[1:]

				accountID := ""
				if a, err := SelectAccount(sim, day); err == nil {
					a.DailySentCount = a.SentOn(day) + 1
					a.UsageDate = day
					accountID = a.ID
				}
				variationID := ""
				if v, err := SelectVariation(&step, contact.ID); err == nil {
					variationID = v.ID
				}
				campaignPerDay[day]++

				items = append(items, &model.QueueItem{
					ID:               s.NewID(),
					TenantID:         c.TenantID,
					CampaignID:       c.ID,
					StepID:           step.ID,
					VariationID:      variationID,
					ContactID:        contact.ID,
					SendingAccountID: accountID,
					Status:           model.QueuePending,
					ScheduledAt:      at,
					MaxAttempts:      model.DefaultMaxAttempts,
				})
			}
			cohortStart = nextSendWindow(cohortStart, s.Config.SendWindowStartHour)
		}
	}
	return items
}

// Pause removes the campaign's items from dequeueing. Sends already in flight finish.
func (s *Scheduler) Pause(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error) {
	campaign, err := s.Store.Campaigns.GetByID(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.Dispatchable() {
		return nil, appErrors.NewValidationError(fmt.Sprintf("campaign is %s; only scheduled or sending campaigns can be paused", campaign.Status))
	}
	if err := s.Store.Campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignPaused); err != nil {
		return nil, err
	}
	campaign.Status = model.CampaignPaused
	s.Log.Info().Str("campaign", campaign.ID).Msg("campaign paused")
	return campaign, nil
}

// Resume puts a paused campaign back in the queue. Without pending items only contacts or
// steps added while paused are planned; when there are none the campaign is marked sent.
func (s *Scheduler) Resume(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error) {
	campaign, err := s.Store.Campaigns.GetByID(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignPaused {
		return nil, appErrors.NewValidationError(fmt.Sprintf("campaign is %s; only paused campaigns can be resumed", campaign.Status))
	}
	counts, err := s.Store.Queue.CountByStatus(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	if counts[model.QueuePending] == 0 {
		if _, err := s.StartCampaign(ctx, tenantID, campaignID); err != nil {
			return nil, err
		}
		return s.Store.Campaigns.GetByID(ctx, tenantID, campaignID)
	}
	if err := s.Store.Campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignScheduled); err != nil {
		return nil, err
	}
	campaign.Status = model.CampaignScheduled
	s.Log.Info().Str("campaign", campaign.ID).Int("pending", counts[model.QueuePending]).Msg("campaign resumed")
	return campaign, nil
}

// CycleResult counts what a dequeue cycle did.
type CycleResult struct {
	Due      int `json:"due"`
	Sent     int `json:"sent"`
	Retried  int `json:"retried"`
	Failed   int `json:"failed"`
	Deferred int `json:"deferred"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

func (r *CycleResult) add(o Outcome) {
	switch o {
	case OutcomeSent:
		r.Sent++
	case OutcomeRetry:
		r.Retried++
	case OutcomeFailed:
		r.Failed++
	case OutcomeDeferred:
		r.Deferred++
	case OutcomeSkipped:
		r.Skipped++
	}
}

type campaignRef struct{ tenantID, campaignID string }

// RunCycle drains up to BatchSize due items sequentially, pausing between transport calls.
// Only one cycle runs at a time; a concurrent call returns ErrCycleInProgress at once.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	if !s.running.CompareAndSwap(false, true) {
		metrics.IncCycle("skipped")
		return res, ErrCycleInProgress
	}
	defer s.running.Store(false)

	due, err := s.Store.Queue.ListDue(ctx, s.Clock.Now(), s.Config.BatchSize)
	if err != nil {
		metrics.IncCycle("error")
		return res, fmt.Errorf("list due items: %w", err)
	}
	res.Due = len(due)

	touched := map[campaignRef]bool{}
	pacePending := false
	for _, item := range due {
		if pacePending {
			if err := s.Sleeper.Sleep(ctx, s.paceDelay()); err != nil {
				s.finish(ctx, touched)
				metrics.IncCycle("error")
				return res, err
			}
			pacePending = false
		}
		if err := ctx.Err(); err != nil {
			s.finish(ctx, touched)
			metrics.IncCycle("error")
			return res, err
		}

		ref := campaignRef{item.TenantID, item.CampaignID}
		if !touched[ref] {
			s.markSending(ctx, ref)
			touched[ref] = true
		}

		outcome, err := s.execute(ctx, item)
		if err != nil {
			res.Errors++
			s.Log.Error().Err(err).Str("item", item.ID).Msg("execute queue item")
			continue
		}
		res.add(outcome)
		pacePending = outcome.usedTransport()
	}

	s.finish(ctx, touched)
	metrics.IncCycle("ok")
	if res.Due > 0 {
		s.Log.Info().Int("due", res.Due).Int("sent", res.Sent).Int("retried", res.Retried).Int("failed", res.Failed).
			Int("deferred", res.Deferred).Int("skipped", res.Skipped).Int("errors", res.Errors).Msg("dequeue cycle finished")
	}
	return res, nil
}

// execute turns a panic on one item into an error so the rest of the batch still runs.
func (s *Scheduler) execute(ctx context.Context, item *model.QueueItem) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue item %s panicked: %v", item.ID, r)
		}
	}()
	return s.Executor.Execute(ctx, item)
}

func (s *Scheduler) paceDelay() time.Duration {
	lo, hi := s.Config.PaceMin, s.Config.PaceMax
	if hi <= lo {
		return lo
	}
	s.paceMu.Lock()
	defer s.paceMu.Unlock()
	return lo + time.Duration(s.pace.Int64N(int64(hi-lo)+1))
}

func (s *Scheduler) markSending(ctx context.Context, ref campaignRef) {
	c, err := s.Store.Campaigns.GetByID(ctx, ref.tenantID, ref.campaignID)
	if err != nil {
		return
	}
	if c.Status == model.CampaignScheduled {
		if err := s.Store.Campaigns.UpdateStatus(ctx, c.ID, model.CampaignSending); err != nil {
			s.Log.Error().Err(err).Str("campaign", c.ID).Msg("mark campaign sending")
		}
	}
}

// finish marks campaigns without pending items as sent.
func (s *Scheduler) finish(ctx context.Context, touched map[campaignRef]bool) {
	for ref := range touched {
		c, err := s.Store.Campaigns.GetByID(ctx, ref.tenantID, ref.campaignID)
		if err != nil || !c.Status.Dispatchable() {
			continue
		}
		counts, err := s.Store.Queue.CountByStatus(ctx, c.ID)
		if err != nil {
			s.Log.Error().Err(err).Str("campaign", c.ID).Msg("count queue items")
			continue
		}
		if counts[model.QueuePending] == 0 {
			if err := s.Store.Campaigns.UpdateStatus(ctx, c.ID, model.CampaignSent); err != nil {
				s.Log.Error().Err(err).Str("campaign", c.ID).Msg("mark campaign sent")
				continue
			}
			s.Log.Info().Str("campaign", c.ID).Int("sent", counts[model.QueueSent]).Int("failed", counts[model.QueueFailed]).
				Msg("campaign finished")
		}
	}
}
