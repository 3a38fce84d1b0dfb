// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

const defaultCampaignDailyLimit = 50

type VariationInput struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name" validate:"max=100"`
	Subject string `json:"subject" validate:"max=998"`
	Content string `json:"content" validate:"required"`
	Weight  int    `json:"weight" validate:"gte=0"`
}

type StepInput struct {
	ID            string           `json:"id,omitempty"`
	SequenceOrder int              `json:"sequence_order" validate:"gte=0"`
	DelayDays     int              `json:"delay_days" validate:"gte=0,lte=365"`
	Variations    []VariationInput `json:"variations" validate:"required,min=1,dive"`
}

type CampaignInput struct {
	Name            string            `json:"name" validate:"required,max=200"`
	ContactIDs      []string          `json:"contact_ids"`
	CustomVariables map[string]string `json:"custom_variables"`
	DailyLimit      int               `json:"daily_limit" validate:"gte=0"`
	DelayMinSeconds int               `json:"delay_min_seconds" validate:"gte=0"`
	DelayMaxSeconds int               `json:"delay_max_seconds" validate:"gte=0,gtefield=DelayMinSeconds"`
	TrackOpens      bool              `json:"track_opens"`
	TrackClicks     bool              `json:"track_clicks"`
	Steps           []StepInput       `json:"steps" validate:"dive"`
}

type CampaignDefaults struct {
	DailyLimit      int
	DelayMinSeconds int
	DelayMaxSeconds int
}

// CampaignService is the tenant-facing campaign API. Scheduling and sending are delegated to
// the Scheduler; starts and resumes also publish a dispatch trigger for the worker.
type CampaignService struct {
	Store         *repository.Store
	Scheduler     *Scheduler
	Subscriptions *SubscriptionService
	Queue         queue.Queue
	Defaults      CampaignDefaults
	Clock         Clock
	Log           zerolog.Logger
	NewID         func() string
}

func NewCampaignService(store *repository.Store, scheduler *Scheduler, subs *SubscriptionService, q queue.Queue, defaults CampaignDefaults, log zerolog.Logger) *CampaignService {
	if defaults.DailyLimit <= 0 {
		defaults.DailyLimit = defaultCampaignDailyLimit
	}
	if defaults.DelayMinSeconds <= 0 && defaults.DelayMaxSeconds <= 0 {
		defaults.DelayMinSeconds, defaults.DelayMaxSeconds = 60, 300
	}
	return &CampaignService{
		Store:         store,
		Scheduler:     scheduler,
		Subscriptions: subs,
		Queue:         q,
		Defaults:      defaults,
		Clock:         SystemClock,
		Log:           log.With().Str("component", "campaigns").Logger(),
		NewID:         uuid.NewString,
	}
}

func (s *CampaignService) CreateCampaign(ctx context.Context, tenantID string, in CampaignInput) (*model.Campaign, error) {
	plan, err := s.Subscriptions.Plan(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	count, err := s.Store.Campaigns.Count(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := checkAllowance(plan, "campaigns", plan.MaxCampaigns, count); err != nil {
		return nil, err
	}

	c := &model.Campaign{ID: s.NewID(), TenantID: tenantID, Status: model.CampaignDraft}
	if err := s.apply(c, in); err != nil {
		return nil, err
	}
	if err := s.Store.Campaigns.Create(ctx, c); err != nil {
		return nil, err
	}
	s.Log.Info().Str("tenant", tenantID).Str("campaign", c.ID).Int("steps", len(c.Steps)).Msg("campaign created")
	return c, nil
}

// UpdateCampaign replaces content and audience. Only draft and paused campaigns are editable.
func (s *CampaignService) UpdateCampaign(ctx context.Context, tenantID, id string, in CampaignInput) (*model.Campaign, error) {
	c, err := s.Store.Campaigns.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.Editable() {
		return nil, appErrors.NewValidationError(fmt.Sprintf("campaign is %s; pause it before editing", c.Status))
	}
	if err := s.apply(c, in); err != nil {
		return nil, err
	}
	if err := s.Store.Campaigns.Update(ctx, c); err != nil {
		return nil, err
	}
	return s.Store.Campaigns.GetByID(ctx, tenantID, id)
}

func (s *CampaignService) GetCampaign(ctx context.Context, tenantID, id string) (*model.Campaign, error) {
	return s.Store.Campaigns.GetByID(ctx, tenantID, id)
}

// DeleteCampaign removes the campaign with its queue items and delivery records.
func (s *CampaignService) DeleteCampaign(ctx context.Context, tenantID, id string) error {
	if err := s.Store.Campaigns.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.Log.Info().Str("tenant", tenantID).Str("campaign", id).Msg("campaign deleted")
	return nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, tenantID string, page, pageSize int, status string) ([]*model.Campaign, Pagination, error) {
	page, pageSize, offset := paging(page, pageSize)
	campaigns, total, err := s.Store.Campaigns.List(ctx, tenantID, offset, pageSize, status)
	if err != nil {
		return nil, Pagination{}, err
	}
	return campaigns, newPagination(page, pageSize, total), nil
}

func (s *CampaignService) Validate(ctx context.Context, tenantID, id string) (*ValidationReport, error) {
	c, err := s.Store.Campaigns.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	contacts, err := s.Store.Contacts.ListByIDs(ctx, tenantID, c.ContactIDs)
	if err != nil {
		return nil, err
	}
	pool, err := s.Store.Accounts.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	report := ValidateCampaign(c, contacts, pool, s.Clock.Now())
	return &report, nil
}

func (s *CampaignService) Start(ctx context.Context, tenantID, id string) (*StartResult, error) {
	res, err := s.Scheduler.StartCampaign(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if res.Queued > 0 {
		s.dispatch(ctx, tenantID, id, "started")
	}
	return res, nil
}

func (s *CampaignService) Pause(ctx context.Context, tenantID, id string) (*model.Campaign, error) {
	return s.Scheduler.Pause(ctx, tenantID, id)
}

func (s *CampaignService) Resume(ctx context.Context, tenantID, id string) (*model.Campaign, error) {
	c, err := s.Scheduler.Resume(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.Status.Dispatchable() {
		s.dispatch(ctx, tenantID, id, "resumed")
	}
	return c, nil
}

// dispatch nudges the worker. The ticker picks the campaign up anyway, so failures are only logged.
func (s *CampaignService) dispatch(ctx context.Context, tenantID, campaignID, reason string) {
	if s.Queue == nil {
		return
	}
	trigger := queue.DispatchTrigger{TenantID: tenantID, CampaignID: campaignID, Reason: reason, At: s.Clock.Now()}
	if err := s.Queue.Publish(ctx, queue.TopicCampaignDispatch, trigger); err != nil {
		s.Log.Warn().Err(err).Str("campaign", campaignID).Msg("publish dispatch trigger")
	}
}

type AnalyticsStats struct {
	model.DeliveryStats
	OpenRate  float64 `json:"open_rate"`
	ClickRate float64 `json:"click_rate"`
}

type VariationAnalytics struct {
	StepOrder     int    `json:"step_order"`
	VariationName string `json:"variation_name,omitempty"`
	AnalyticsStats
}

type CampaignAnalytics struct {
	CampaignID string                    `json:"campaign_id"`
	Status     model.CampaignStatus      `json:"status"`
	Queue      map[model.QueueStatus]int `json:"queue"`
	Overall    AnalyticsStats            `json:"overall"`
	Variations []VariationAnalytics      `json:"variations"`
}

func newAnalyticsStats(d model.DeliveryStats) AnalyticsStats {
	return AnalyticsStats{DeliveryStats: d, OpenRate: round2(d.OpenRate()), ClickRate: round2(d.ClickRate())}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Analytics combines queue counts with the per-variation delivery aggregate for A/B comparison.
func (s *CampaignService) Analytics(ctx context.Context, tenantID, id string) (*CampaignAnalytics, error) {
	c, err := s.Store.Campaigns.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.Store.Queue.CountByStatus(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	groups, err := s.Store.Deliveries.Aggregate(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	queueCounts := map[model.QueueStatus]int{model.QueuePending: 0, model.QueueSent: 0, model.QueueFailed: 0}
	for status, n := range counts {
		queueCounts[status] = n
	}

	out := &CampaignAnalytics{CampaignID: c.ID, Status: c.Status, Queue: queueCounts, Variations: []VariationAnalytics{}}
	var overall model.DeliveryStats
	for _, g := range groups {
		overall.Sent += g.Sent
		overall.Opened += g.Opened
		overall.Clicked += g.Clicked
		overall.Bounced += g.Bounced
		overall.Replied += g.Replied
		overall.TotalOpens += g.TotalOpens
		overall.TotalClicks += g.TotalClicks

		va := VariationAnalytics{AnalyticsStats: newAnalyticsStats(g)}
		if step, ok := c.Step(g.StepID); ok {
			va.StepOrder = step.SequenceOrder
			if v, ok := step.Variation(g.VariationID); ok {
				va.VariationName = v.Name
			}
		}
		out.Variations = append(out.Variations, va)
	}
	out.Overall = newAnalyticsStats(overall)
	return out, nil
}

func (s *CampaignService) QueueItems(ctx context.Context, tenantID, id, status string, page, pageSize int) ([]*model.QueueItem, Pagination, error) {
	if _, err := s.Store.Campaigns.GetByID(ctx, tenantID, id); err != nil {
		return nil, Pagination{}, err
	}
	switch model.QueueStatus(status) {
	case "", model.QueuePending, model.QueueSent, model.QueueFailed:
	default:
		return nil, Pagination{}, appErrors.NewValidationError(fmt.Sprintf("unknown queue status %q", status))
	}
	page, pageSize, offset := paging(page, pageSize)
	items, total, err := s.Store.Queue.ListByCampaign(ctx, id, status, offset, pageSize)
	if err != nil {
		return nil, Pagination{}, err
	}
	return items, newPagination(page, pageSize, total), nil
}

type PreviewInput struct {
	ContactID   string `json:"contact_id" validate:"required"`
	StepID      string `json:"step_id"`
	VariationID string `json:"variation_id"`
}

type Preview struct {
	ContactID           string   `json:"contact_id"`
	StepID              string   `json:"step_id"`
	VariationID         string   `json:"variation_id"`
	Subject             string   `json:"subject"`
	Content             string   `json:"content"`
	UnresolvedVariables []string `json:"unresolved_variables"`
}

// PersonalizedPreview renders a step for one contact exactly as the executor would, without
// tracking instrumentation. Without a variation the contact's own A/B draw is used.
func (s *CampaignService) PersonalizedPreview(ctx context.Context, tenantID, id string, in PreviewInput) (*Preview, error) {
	c, err := s.Store.Campaigns.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	contact, err := s.Store.Contacts.GetByID(ctx, tenantID, in.ContactID)
	if err != nil {
		return nil, err
	}

	var step *model.Step
	if in.StepID != "" {
		found, ok := c.Step(in.StepID)
		if !ok {
			return nil, appErrors.NewNotFound("step", in.StepID)
		}
		step = found
	} else {
		ordered := c.OrderedSteps()
		if len(ordered) == 0 {
			return nil, appErrors.NewValidationError("campaign has no steps")
		}
		step, _ = c.Step(ordered[0].ID)
	}

	var variation *model.Variation
	if in.VariationID != "" {
		found, ok := step.Variation(in.VariationID)
		if !ok {
			return nil, appErrors.NewNotFound("variation", in.VariationID)
		}
		variation = found
	} else if variation, err = SelectVariation(step, contact.ID); err != nil {
		return nil, appErrors.NewValidationError(err.Error())
	}

	unresolved := UnresolvedVariables(variation.Subject+"\n"+variation.Content, c.CustomVariables)
	if unresolved == nil {
		unresolved = []string{}
	}
	return &Preview{
		ContactID:           contact.ID,
		StepID:              step.ID,
		VariationID:         variation.ID,
		Subject:             Render(variation.Subject, contact, c.CustomVariables),
		Content:             Render(variation.Content, contact, c.CustomVariables),
		UnresolvedVariables: unresolved,
	}, nil
}

type DashboardStats struct {
	TotalContacts    int     `json:"total_contacts"`
	RecentContacts   int     `json:"recent_contacts"`
	TotalCampaigns   int     `json:"total_campaigns"`
	ActiveCampaigns  int     `json:"active_campaigns"`
	TotalEmailsSent  int     `json:"total_emails_sent"`
	EmailsThisMonth  int     `json:"emails_this_month"`
	OverallOpenRate  float64 `json:"overall_open_rate"`
	OverallClickRate float64 `json:"overall_click_rate"`
}

// Dashboard summarises a tenant. Recent contacts are those created in the last seven days.
func (s *CampaignService) Dashboard(ctx context.Context, tenantID string) (*DashboardStats, error) {
	now := s.Clock.Now()
	var out DashboardStats
	var err error
	if out.TotalContacts, err = s.Store.Contacts.Count(ctx, tenantID); err != nil {
		return nil, err
	}
	if out.RecentContacts, err = s.Store.Contacts.CountCreatedSince(ctx, tenantID, now.AddDate(0, 0, -7)); err != nil {
		return nil, err
	}
	byStatus, err := s.Store.Campaigns.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for status, n := range byStatus {
		out.TotalCampaigns += n
		if status.Dispatchable() {
			out.ActiveCampaigns += n
		}
	}
	totals, err := s.Store.Deliveries.TenantTotals(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out.TotalEmailsSent = totals.Sent
	out.OverallOpenRate = round2(totals.OpenRate())
	out.OverallClickRate = round2(totals.ClickRate())
	if out.EmailsThisMonth, err = s.Store.Deliveries.CountSentSince(ctx, tenantID, monthStart(now)); err != nil {
		return nil, err
	}
	return &out, nil
}

// apply copies input onto c, filling defaults and ids for new steps and variations.
func (s *CampaignService) apply(c *model.Campaign, in CampaignInput) error {
	var problems []string
	c.Name = strings.TrimSpace(in.Name)
	if c.Name == "" {
		problems = append(problems, "name is required")
	}
	c.ContactIDs = uniqueStrings(in.ContactIDs)
	c.CustomVariables = map[string]string{}
	for k, v := range in.CustomVariables {
		if key := strings.ToLower(strings.TrimSpace(k)); key != "" {
			c.CustomVariables[key] = v
		}
	}

	c.DailyLimit = in.DailyLimit
	if c.DailyLimit == 0 {
		c.DailyLimit = s.Defaults.DailyLimit
	}
	c.DelayMinSeconds, c.DelayMaxSeconds = in.DelayMinSeconds, in.DelayMaxSeconds
	if c.DelayMinSeconds == 0 && c.DelayMaxSeconds == 0 {
		c.DelayMinSeconds, c.DelayMaxSeconds = s.Defaults.DelayMinSeconds, s.Defaults.DelayMaxSeconds
	}
	if c.DelayMinSeconds < 0 || c.DelayMaxSeconds < c.DelayMinSeconds {
		problems = append(problems, "delay_max_seconds must not be lower than delay_min_seconds")
	}
	c.TrackOpens, c.TrackClicks = in.TrackOpens, in.TrackClicks

	c.Steps = make([]model.Step, 0, len(in.Steps))
	for i, si := range in.Steps {
		step := model.Step{ID: si.ID, SequenceOrder: si.SequenceOrder, DelayDays: si.DelayDays}
		if step.ID == "" {
			step.ID = s.NewID()
		}
		if step.SequenceOrder == 0 {
			step.SequenceOrder = i + 1
		}
		if step.DelayDays < 0 {
			problems = append(problems, fmt.Sprintf("step %d has a negative delay", step.SequenceOrder))
		}
		for j, vi := range si.Variations {
			v := model.Variation{ID: vi.ID, Name: strings.TrimSpace(vi.Name), Subject: vi.Subject, Content: vi.Content, Weight: vi.Weight}
			if v.ID == "" {
				v.ID = s.NewID()
			}
			if v.Name == "" {
				v.Name = string(rune('A' + j%26))
			}
			if v.Weight < 0 {
				problems = append(problems, fmt.Sprintf("step %d variation %s has a negative weight", step.SequenceOrder, v.Name))
			}
			step.Variations = append(step.Variations, v)
		}
		c.Steps = append(c.Steps, step)
	}
	if len(problems) > 0 {
		return appErrors.NewValidationError(problems...)
	}
	return nil
}
