package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

type Usage struct {
	Contacts        int `json:"contacts"`
	Campaigns       int `json:"campaigns"`
	SendingAccounts int `json:"sending_accounts"`
	EmailsThisMonth int `json:"emails_this_month"`
}

type Subscription struct {
	TenantID string     `json:"tenant_id"`
	Plan     model.Plan `json:"plan"`
	Usage    Usage      `json:"usage"`
}

// SubscriptionService owns plan lookups and the per-resource limits of a tenant.
type SubscriptionService struct {
	Store *repository.Store
	Clock Clock
	Log   zerolog.Logger
}

func NewSubscriptionService(store *repository.Store, log zerolog.Logger) *SubscriptionService {
	return &SubscriptionService{
		Store: store,
		Clock: SystemClock,
		Log:   log.With().Str("component", "subscription").Logger(),
	}
}

func (s *SubscriptionService) Plan(ctx context.Context, tenantID string) (model.Plan, error) {
	tenant, err := s.Store.Tenants.GetByID(ctx, tenantID)
	if err != nil {
		return model.Plan{}, err
	}
	plan, known := model.LookupPlan(tenant.Plan)
	if !known {
		s.Log.Warn().Str("tenant", tenantID).Str("plan", string(tenant.Plan)).Msg("unknown plan, using free limits")
	}
	return plan, nil
}

func (s *SubscriptionService) Get(ctx context.Context, tenantID string) (*Subscription, error) {
	plan, err := s.Plan(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sub := &Subscription{TenantID: tenantID, Plan: plan}
	if sub.Usage.Contacts, err = s.Store.Contacts.Count(ctx, tenantID); err != nil {
		return nil, err
	}
	if sub.Usage.Campaigns, err = s.Store.Campaigns.Count(ctx, tenantID); err != nil {
		return nil, err
	}
	if sub.Usage.SendingAccounts, err = s.Store.Accounts.Count(ctx, tenantID); err != nil {
		return nil, err
	}
	if sub.Usage.EmailsThisMonth, err = s.Store.Deliveries.CountSentSince(ctx, tenantID, monthStart(s.Clock.Now())); err != nil {
		return nil, err
	}
	return sub, nil
}

// ChangePlan switches plans. Existing resources above a lower limit are kept; only new ones are refused.
func (s *SubscriptionService) ChangePlan(ctx context.Context, tenantID string, name model.PlanName) (*Subscription, error) {
	if _, known := model.LookupPlan(name); !known {
		return nil, appErrors.NewValidationError(fmt.Sprintf("unknown plan %q", name))
	}
	if err := s.Store.Tenants.UpdatePlan(ctx, tenantID, name); err != nil {
		return nil, err
	}
	s.Log.Info().Str("tenant", tenantID).Str("plan", string(name)).Msg("plan changed")
	return s.Get(ctx, tenantID)
}

// checkAllowance refuses one more resource once current has reached allowed.
func checkAllowance(plan model.Plan, limit string, allowed, current int) error {
	if current+1 > allowed {
		return appErrors.NewSubscriptionLimit(string(plan.Name), limit, allowed, current)
	}
	return nil
}
