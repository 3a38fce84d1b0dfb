package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
)

func TestSubscriptionService_GetReportsUsage(t *testing.T) {
	h := newHarness(t)
	h.addAccount("acct-1", 10, 0)
	contacts := h.addContacts(3)
	h.addCampaign(contacts)
	require.NoError(t, h.store.Deliveries.Create(h.ctx, &model.DeliveryRecord{
		ID: "d-old", TenantID: h.tenantID, TrackingToken: "tok-old", SentAt: testStart.AddDate(0, -1, 0),
	}))
	require.NoError(t, h.store.Deliveries.Create(h.ctx, &model.DeliveryRecord{
		ID: "d-new", TenantID: h.tenantID, TrackingToken: "tok-new", SentAt: testStart.Add(-time.Hour),
	}))

	svc := NewSubscriptionService(h.store, logger.Nop())
	svc.Clock = h.clock
	sub, err := svc.Get(h.ctx, h.tenantID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanStarter, sub.Plan.Name)
	assert.Equal(t, Usage{Contacts: 3, Campaigns: 1, SendingAccounts: 1, EmailsThisMonth: 1}, sub.Usage)
}

func TestSubscriptionService_ChangePlan(t *testing.T) {
	h := newHarness(t)
	svc := NewSubscriptionService(h.store, logger.Nop())

	sub, err := svc.ChangePlan(h.ctx, h.tenantID, model.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, 25, sub.Plan.MaxSendingAccounts)

	_, err = svc.ChangePlan(h.ctx, h.tenantID, "platinum")
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.ChangePlan(h.ctx, "nobody", model.PlanFree)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestSubscriptionService_UnknownPlanFallsBackToFree(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Tenants.UpdatePlan(h.ctx, h.tenantID, "legacy"))
	svc := NewSubscriptionService(h.store, logger.Nop())

	plan, err := svc.Plan(h.ctx, h.tenantID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, plan.Name)
}

func TestCheckAllowance(t *testing.T) {
	plan, _ := model.LookupPlan(model.PlanFree)
	assert.NoError(t, checkAllowance(plan, "contacts", 500, 499))

	err := checkAllowance(plan, "contacts", 500, 500)
	var limit *appErrors.SubscriptionLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, "free", limit.Plan)
	assert.Equal(t, 500, limit.Current)
}
